// Package sqlstore implements persistence on top of sqlx for the database/sql backends (MySQL and
// the SQLite family). The driver packages open the connection and pick a Dialect.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"github.com/jmoiron/sqlx"
	"io/fs"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Handle struct {
	dbPtr   atomic.Pointer[sqlx.DB]
	running atomic.Bool
	mu      sync.Mutex
	dialect *Dialect
	now     func() time.Time
}

func NewHandle(db *sqlx.DB, dialect *Dialect) *Handle {
	handle := &Handle{
		dialect: dialect,
		now:     time.Now,
	}

	handle.dbPtr.Store(db)
	handle.running.Store(true)

	return handle
}

func (h *Handle) Close(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running.Load() {
		h.running.Swap(false)
		db := h.dbPtr.Swap(nil)
		if db != nil {
			return db.Close()
		}
	}
	return nil
}

func (h *Handle) db() (*sqlx.DB, error) {
	if db := h.dbPtr.Load(); db != nil {
		return db, nil
	}

	return nil, errors.New("no usable database connection found")
}

// Migrate applies the dialect's embedded SQL files in lexicographical order. Every statement is
// written to be re-runnable.
func (h *Handle) Migrate(ctx context.Context) error {
	db, err := h.db()
	if err != nil {
		return err
	}

	entries, err := fs.ReadDir(h.dialect.migrations, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		content, err := fs.ReadFile(h.dialect.migrations, entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		for _, stmt := range strings.Split(string(content), ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, err = db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("execute migration %s: %w", entry.Name(), err)
			}
		}
	}

	return nil
}

func (h *Handle) timeArg(t time.Time) any {
	return h.dialect.timeArg(t)
}
