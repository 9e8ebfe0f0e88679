package driver

import (
	"database/sql"
	"fmt"

	// sqlite driver
	_ "github.com/mattn/go-sqlite3"
)

var sqlitePragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
}

// OpenSQLite opens the database file at path with WAL enabled.
// SQLite only supports one writer at a time, the pool is limited to a single connection.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range sqlitePragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return db, nil
}

// NewSQLiteConn Returns a sqlite backed ITransactionalDB
func NewSQLiteConn(path string, cfg *DBConfig) (ITransactionalDB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite requires a database file path")
	}
	db, err := OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	return &SQLWrapper{db, "sqlite", sqliteAdapter}, nil
}

// sqlite understands `?` and double quoted identifiers, only placeholders are rewritten
func sqliteAdapter(query string) string {
	query = DollarPlaceholderPattern.ReplaceAllString(query, "?")
	query = SpacePattern.ReplaceAllString(query, " ")
	return query
}
