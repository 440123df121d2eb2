// Package storage provides the shared SQLite open path and disk usage helpers
// used by the corpus and dictionary databases.
package storage

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
)

// SQLite driver names registered by the two drivers in use.
const (
	// DriverPure is modernc.org/sqlite, which ships FTS5.
	DriverPure = "sqlite"
	// DriverCGO is github.com/mattn/go-sqlite3.
	DriverCGO = "sqlite3"
)

// BusyTimeoutMillis is how long a connection waits on a locked database.
const BusyTimeoutMillis = 5000

// OpenSQLite opens or creates a SQLite database at dbPath with the given driver,
// enables WAL so readers never block readers, and applies schema.
// Parent directories are created if they do not exist. The caller must have
// imported the driver.
func OpenSQLite(driver, dbPath, schema string) (*sql.DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	dsn, err := DSN(driver, dbPath)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if schema != "" {
		if _, err := db.Exec(schema); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return db, nil
}

// DSN builds a connection string that sets WAL, foreign keys and the busy timeout
// on every pooled connection, in the dialect of the given driver.
func DSN(driver, dbPath string) (string, error) {
	q := url.Values{}
	switch driver {
	case DriverPure:
		q.Add("_pragma", "journal_mode(WAL)")
		q.Add("_pragma", "foreign_keys(1)")
		q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", BusyTimeoutMillis))
	case DriverCGO:
		q.Set("_journal_mode", "WAL")
		q.Set("_foreign_keys", "on")
		q.Set("_busy_timeout", fmt.Sprint(BusyTimeoutMillis))
	default:
		return "", fmt.Errorf("unsupported sqlite driver %q", driver)
	}
	return "file:" + dbPath + "?" + q.Encode(), nil
}
