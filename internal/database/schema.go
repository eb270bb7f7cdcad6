package database

import (
	"context"
	"fmt"
)

const (
	statusCheck   = `status IN ('Extracted', 'Flagged', 'Verified', 'Pending', 'Reviewing')`
	categoryCheck = `category IN ('Materials', 'Equipment', 'Labor', 'Fuel', 'Other')`
	callCheck     = `status IN ('success', 'error') AND input_type IN ('image', 'pdf')`
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS receipts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		vendor TEXT NOT NULL,
		amount REAL NOT NULL,
		date TEXT NOT NULL,
		tax REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL CHECK (` + statusCheck + `),
		category TEXT NOT NULL CHECK (` + categoryCheck + `),
		location TEXT NOT NULL,
		time TEXT NOT NULL,
		file_key TEXT,
		mime_type TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ai_calls (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		model TEXT NOT NULL,
		input_type TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		filename TEXT,
		status TEXT NOT NULL CHECK (` + callCheck + `),
		error TEXT,
		duration_ms INTEGER NOT NULL,
		created_at TEXT NOT NULL
	)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS receipts (
		id BIGSERIAL PRIMARY KEY,
		vendor TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		date TEXT NOT NULL,
		tax NUMERIC NOT NULL DEFAULT 0,
		status TEXT NOT NULL CHECK (` + statusCheck + `),
		category TEXT NOT NULL CHECK (` + categoryCheck + `),
		location TEXT NOT NULL,
		time TEXT NOT NULL,
		file_key TEXT,
		mime_type TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ai_calls (
		id BIGSERIAL PRIMARY KEY,
		model TEXT NOT NULL,
		input_type TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		filename TEXT,
		status TEXT NOT NULL CHECK (` + callCheck + `),
		error TEXT,
		duration_ms BIGINT NOT NULL,
		created_at TEXT NOT NULL
	)`,
}

func (db *DB) migrate(ctx context.Context) error {
	schema := sqliteSchema
	if db.driver == DriverPostgres {
		schema = postgresSchema
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}
