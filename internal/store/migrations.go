package store

import (
	"context"
	"database/sql"
	"strings"
)

// schema contains the DDL for all tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS serial_profiles (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		device     TEXT NOT NULL,
		baud       INTEGER NOT NULL DEFAULT 9600,
		stty_flags TEXT NOT NULL DEFAULT '',
		is_default INTEGER NOT NULL DEFAULT 0,
		read_only  INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS socat_profiles (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		tcp_host   TEXT NOT NULL DEFAULT '127.0.0.1',
		tcp_port   INTEGER NOT NULL,
		raw_mode   INTEGER NOT NULL DEFAULT 1,
		no_echo    INTEGER NOT NULL DEFAULT 1,
		verbose    INTEGER NOT NULL DEFAULT 0,
		is_default INTEGER NOT NULL DEFAULT 0,
		read_only  INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS power_profiles (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		host          TEXT NOT NULL,
		port          INTEGER NOT NULL,
		channel       INTEGER NOT NULL DEFAULT 1,
		delay_seconds INTEGER NOT NULL DEFAULT 5,
		is_default    INTEGER NOT NULL DEFAULT 0,
		read_only     INTEGER NOT NULL DEFAULT 0,
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS job_profiles (
		id                TEXT PRIMARY KEY,
		name              TEXT NOT NULL,
		is_template       INTEGER NOT NULL DEFAULT 0,
		is_default        INTEGER NOT NULL DEFAULT 0,
		read_only         INTEGER NOT NULL DEFAULT 0,
		serial_profile_id TEXT NOT NULL,
		socat_profile_id  TEXT NOT NULL,
		power_profile_id  TEXT NOT NULL,
		region            TEXT NOT NULL DEFAULT '{}',
		payload_dir       TEXT NOT NULL DEFAULT '',
		output_path       TEXT NOT NULL DEFAULT '',
		created_at        TEXT NOT NULL,
		updated_at        TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS jobs (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL,
		resources    TEXT NOT NULL DEFAULT '[]',
		profiles     TEXT NOT NULL DEFAULT '{}',
		state        TEXT NOT NULL,
		detail       TEXT NOT NULL DEFAULT '',
		created_at   TEXT NOT NULL,
		started_at   TEXT,
		completed_at TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS schedules (
		id             TEXT PRIMARY KEY,
		name           TEXT NOT NULL,
		job_profile_id TEXT NOT NULL,
		cron_expr      TEXT NOT NULL,
		enabled        INTEGER NOT NULL DEFAULT 1,
		next_due       TEXT NOT NULL,
		last_run       TEXT,
		created_at     TEXT NOT NULL,
		updated_at     TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_schedules_next_due ON schedules(next_due)`,
	`CREATE INDEX IF NOT EXISTS idx_job_profiles_serial ON job_profiles(serial_profile_id)`,
}

// alterStatements are column additions that need special handling since
// SQLite doesn't support IF NOT EXISTS for ALTER TABLE ADD COLUMN.
var alterStatements = []struct {
	table    string
	column   string
	alterSQL string
	indexSQL string // Optional index to create after column is added
}{
	{
		table:    "serial_profiles",
		column:   "stty_flags",
		alterSQL: "ALTER TABLE serial_profiles ADD COLUMN stty_flags TEXT NOT NULL DEFAULT ''",
	},
	{
		table:    "job_profiles",
		column:   "is_template",
		alterSQL: "ALTER TABLE job_profiles ADD COLUMN is_template INTEGER NOT NULL DEFAULT 0",
		indexSQL: "CREATE INDEX IF NOT EXISTS idx_job_profiles_template ON job_profiles(is_template)",
	},
}

// migrate executes all schema DDL statements and alter migrations.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	for _, alter := range alterStatements {
		if err := addColumnIfNotExists(ctx, db, alter.table, alter.column, alter.alterSQL); err != nil {
			return err
		}
		if alter.indexSQL != "" {
			if _, err := db.ExecContext(ctx, alter.indexSQL); err != nil {
				return err
			}
		}
	}

	return nil
}

// addColumnIfNotExists adds a column to a table if it doesn't already exist.
func addColumnIfNotExists(ctx context.Context, db *sql.DB, table, column, alterSQL string) error {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue *string
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if strings.EqualFold(name, column) {
			return nil // Column already exists
		}
	}

	_, err = db.ExecContext(ctx, alterSQL)
	return err
}
