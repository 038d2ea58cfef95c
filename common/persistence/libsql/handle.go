package libsql

import (
	"context"
	"github.com/forbiddencoding/deal-notifier/common/config"
	"github.com/forbiddencoding/deal-notifier/common/persistence/sqlstore"
	"github.com/jmoiron/sqlx"
	_ "github.com/tursodatabase/go-libsql"
)

func init() {
	sqlx.BindDriver("libsql", sqlx.QUESTION)
}

// NewHandle connects to a libSQL database (a local file or a Turso URL). It shares the SQLite
// dialect.
func NewHandle(ctx context.Context, config *config.Persistence) (*sqlstore.Handle, error) {
	db, err := sqlx.Open("libsql", config.DSN)
	if err != nil {
		return nil, err
	}

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return sqlstore.NewHandle(db, sqlstore.SQLite), nil
}
