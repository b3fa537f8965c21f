package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"IssueSync/internal/ports"
)

// Store is a task store that can be closed and keeps a UDA schema.
type Store interface {
	ports.TaskStore
	ports.UDAConfigurer
	Close() error
}

type memoryCloser struct {
	*MemoryStore
}

func (memoryCloser) Close() error { return nil }

// Open builds a store from a DSN:
//
//	memory:                    in-process, lost on exit
//	file:///path/tasks.yaml    YAML snapshot (also a bare path)
//	sqlite:///path/tasks.db    SQLite database (sqlite://:memory: for tests)
//	postgres://user@host/db    Postgres database
func Open(ctx context.Context, dsn string) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("empty store dsn")
	}

	scheme, rest := splitDSN(dsn)
	switch scheme {
	case "", "file":
		return OpenFileStore(rest)
	case "memory", "mem":
		return memoryCloser{NewMemoryStore()}, nil
	case "sqlite", "sqlite3":
		db, err := sql.Open("sqlite3", rest)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		if rest == ":memory:" {
			db.SetMaxOpenConns(1)
		}
		return migrated(ctx, NewSQLStore(db, sq.Question))
	case "postgres", "postgresql":
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return migrated(ctx, NewSQLStore(db, sq.Dollar))
	default:
		return nil, fmt.Errorf("unsupported store scheme: %s", scheme)
	}
}

func migrated(ctx context.Context, store *SQLStore) (Store, error) {
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func splitDSN(dsn string) (scheme, rest string) {
	idx := strings.Index(dsn, ":")
	// no scheme, or a windows drive letter
	if idx <= 1 {
		return "", dsn
	}
	scheme = strings.ToLower(dsn[:idx])
	if strings.ContainsAny(scheme, `/\.`) {
		return "", dsn
	}
	rest = strings.TrimPrefix(dsn[idx+1:], "//")
	return scheme, rest
}
