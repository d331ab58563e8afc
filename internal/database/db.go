// Package database provides the SQLite-backed refresh history store.
package database

import (
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Config holds database settings.
type Config struct {
	DatabasePath string
}

// DB wraps the SQLite connection.
type DB struct {
	conn *sql.DB
}

// NewDB opens (creating if needed) the database and runs pending
// migrations.
func NewDB(cfg Config) (*DB, error) {
	dsn := cfg.DatabasePath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.DatabasePath, err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database %s: %w", cfg.DatabasePath, err)
	}

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.Up(conn, "migrations"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Connection returns the underlying *sql.DB for repositories.
func (db *DB) Connection() *sql.DB { return db.conn }

// Close closes the database.
func (db *DB) Close() error { return db.conn.Close() }
