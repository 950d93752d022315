package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// ErrUnavailable is returned by every operation when the storage engine could
// not be opened or has been closed. Callers treat it as a cache miss.
var ErrUnavailable = errors.New("store: storage engine unavailable")

// DB wraps the SQLite database that holds one user's private-message cache.
type DB struct {
	*sql.DB
}

// Open creates a new SQLite connection with WAL mode and recommended pragmas.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", errors.Join(ErrUnavailable, err))
	}
	// One writer keeps every multi-row write and its trim pass serialized.
	db.SetMaxOpenConns(1)
	return &DB{db}, nil
}

func (db *DB) ready() error {
	if db == nil || db.DB == nil {
		return ErrUnavailable
	}
	return nil
}
