package sqlite

import (
	"context"
	"fmt"
	"github.com/forbiddencoding/deal-notifier/common/config"
	"github.com/forbiddencoding/deal-notifier/common/persistence/sqlstore"
	"github.com/jmoiron/sqlx"
	"strings"
	_ "modernc.org/sqlite"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// NewHandle opens a local SQLite database through the pure Go driver. In-memory databases are
// pinned to a single connection so every query sees the same database.
func NewHandle(ctx context.Context, config *config.Persistence) (*sqlstore.Handle, error) {
	db, err := sqlx.Open("sqlite", dsn(config.DSN))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if strings.Contains(config.DSN, ":memory:") || strings.Contains(config.DSN, "mode=memory") {
		db.SetMaxOpenConns(1)
	}

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return sqlstore.NewHandle(db, sqlstore.SQLite), nil
}

func dsn(path string) string {
	path = strings.TrimSpace(path)
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}

	return path + sep + "_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}
