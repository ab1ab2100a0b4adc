package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Open initialises the SQLite database and applies the base schema.
func Open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("apply pragma %s: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS feeds (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            title TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            image TEXT NOT NULL DEFAULT '',
            is_explicit INTEGER NOT NULL DEFAULT 0,
            author TEXT NOT NULL DEFAULT '',
            language TEXT NOT NULL DEFAULT '',
            episode_count INTEGER NOT NULL DEFAULT 0,
            subscribed TIMESTAMP,
            url TEXT NOT NULL DEFAULT '',
            link TEXT NOT NULL DEFAULT '',
            index_id INTEGER NOT NULL DEFAULT 0,
            index_guid TEXT NOT NULL DEFAULT ''
        );`,
		// index_id is unique only among feeds that actually carry a
		// catalog reference; locally created feeds keep index_id 0.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_feeds_index_id
            ON feeds(index_id) WHERE index_id != 0;`,
		`CREATE TABLE IF NOT EXISTS episodes (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            title TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            image TEXT NOT NULL DEFAULT '',
            is_explicit INTEGER NOT NULL DEFAULT 0,
            duration_seconds INTEGER NOT NULL DEFAULT 0,
            published TIMESTAMP,
            number INTEGER NOT NULL DEFAULT 0,
            season INTEGER NOT NULL DEFAULT 0,
            feed_id INTEGER NOT NULL DEFAULT 0,
            source TEXT NOT NULL DEFAULT '',
            source_type TEXT NOT NULL DEFAULT '',
            source_length INTEGER NOT NULL DEFAULT 0,
            index_id INTEGER NOT NULL DEFAULT 0,
            index_guid TEXT NOT NULL DEFAULT ''
        );`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_episodes_index_id
            ON episodes(index_id) WHERE index_id != 0;`,
		`CREATE INDEX IF NOT EXISTS idx_episodes_feed ON episodes(feed_id);`,
		`CREATE TABLE IF NOT EXISTS progress (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            position_ms INTEGER NOT NULL DEFAULT 0,
            created_at TIMESTAMP NOT NULL,
            updated_at TIMESTAMP NOT NULL,
            episode_id INTEGER NOT NULL
        );`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_progress_episode
            ON progress(episode_id);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	return nil
}
