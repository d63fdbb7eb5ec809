package database

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	*sql.DB
}

// schema holds the idempotent migrations applied on every open. A session's
// actor only becomes reachable after these succeed, so handlers never see a
// partially created schema.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		seq           INTEGER PRIMARY KEY AUTOINCREMENT,
		id            TEXT NOT NULL UNIQUE,
		role          TEXT NOT NULL CHECK (role IN ('user','assistant','system','tool')),
		content       TEXT NOT NULL,
		parts         TEXT,
		created_at_ms INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS questions (
		id            TEXT PRIMARY KEY,
		text          TEXT NOT NULL,
		options       TEXT,
		status        TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','answered','expired')),
		answer        TEXT,
		created_at_ms INTEGER NOT NULL,
		expires_at_ms INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_questions_pending ON questions(status, expires_at_ms)`,
	`CREATE TABLE IF NOT EXISTS prompt_queue (
		seq           INTEGER PRIMARY KEY AUTOINCREMENT,
		id            TEXT NOT NULL UNIQUE,
		content       TEXT NOT NULL,
		status        TEXT NOT NULL DEFAULT 'queued' CHECK (status IN ('queued','processing','completed')),
		created_at_ms INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_prompt_queue_status ON prompt_queue(status, seq)`,
	`CREATE TABLE IF NOT EXISTS connected_users (
		user_id         TEXT PRIMARY KEY,
		connected_at_ms INTEGER NOT NULL
	)`,
}

// Open opens one session's SQLite database and runs migrations
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Run migrations
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DB{db}, nil
}

// Exists reports whether a session database file has been created.
func Exists(dbPath string) bool {
	info, err := os.Stat(dbPath)
	return err == nil && !info.IsDir()
}

// runMigrations applies the SQL schema
func runMigrations(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
