package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// InitSQLite opens the ledger database and creates its schema. In-memory
// databases are pinned to a single connection so every query sees one store.
func InitSQLite(dbPath string) (*sqlx.DB, error) {
	memory := dbPath == ":memory:" || strings.Contains(dbPath, "mode=memory")
	if !memory {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if memory {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	if !memory {
		for _, pragma := range []string{`PRAGMA journal_mode = WAL`, `PRAGMA busy_timeout = 5000`} {
			if _, err := db.Exec(pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to set pragma: %w", err)
			}
		}
	}
	if err := createSchemas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schemas: %w", err)
	}
	return db, nil
}

func createSchemas(db *sqlx.DB) error {
	schemas := []string{
		`CREATE TABLE IF NOT EXISTS matches (
			session_id TEXT PRIMARY KEY,
			winner TEXT NOT NULL DEFAULT '',
			seats TEXT NOT NULL,
			turns INTEGER NOT NULL,
			aborted INTEGER NOT NULL DEFAULT 0,
			reason TEXT NOT NULL DEFAULT '',
			started_ms INTEGER NOT NULL,
			finished_ms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL,
			at_ms INTEGER NOT NULL,
			event_type TEXT NOT NULL,
			actor_id TEXT NOT NULL DEFAULT '',
			target_id TEXT NOT NULL DEFAULT '',
			recipient TEXT NOT NULL DEFAULT '',
			turn INTEGER NOT NULL,
			payload TEXT NOT NULL DEFAULT 'null'
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_events_actor ON events(session_id, actor_id);`,
		`CREATE INDEX IF NOT EXISTS idx_matches_finished ON matches(finished_ms);`,
	}
	for _, query := range schemas {
		if _, err := db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}
