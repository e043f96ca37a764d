package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Column types that differ between backends
type columnTypes struct {
	timestamp   string // local wall-clock timestamp
	timestampTZ string
	timeOfDay   string
	boolFalse   string
}

func typesFor(dialect Dialect) columnTypes {
	if dialect == DialectSQLite {
		return columnTypes{
			timestamp:   "DATETIME",
			timestampTZ: "DATETIME",
			timeOfDay:   "TEXT",
			boolFalse:   "BOOLEAN NOT NULL DEFAULT 0",
		}
	}
	return columnTypes{
		timestamp:   "TIMESTAMP",
		timestampTZ: "TIMESTAMPTZ",
		timeOfDay:   "TIME",
		boolFalse:   "BOOLEAN NOT NULL DEFAULT FALSE",
	}
}

// SchemaStatements returns the idempotent DDL for dialect
func SchemaStatements(dialect Dialect) []string {
	t := typesFor(dialect)
	return []string{
		`CREATE TABLE IF NOT EXISTS technicians (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			phone TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT ''
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS coverage_intervals (
			id TEXT PRIMARY KEY,
			technician_id TEXT NOT NULL REFERENCES technicians(id) ON DELETE CASCADE,
			start_at %[1]s NOT NULL,
			end_at %[1]s NOT NULL,
			CHECK (start_at < end_at)
		)`, t.timestamp),
		`CREATE INDEX IF NOT EXISTS idx_coverage_intervals_window ON coverage_intervals (start_at, end_at)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS business_hours (
			day_of_week INTEGER PRIMARY KEY CHECK (day_of_week BETWEEN 0 AND 6),
			start_time %[1]s NOT NULL,
			end_time %[1]s NOT NULL
		)`, t.timeOfDay),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS holidays (
			id TEXT PRIMARY KEY,
			date DATE NOT NULL UNIQUE,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			notified %s
		)`, t.boolFalse),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS tickets (
			id TEXT PRIMARY KEY,
			external_id TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			created_at %[1]s NOT NULL,
			priority TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			client TEXT NOT NULL DEFAULT '',
			requester TEXT NOT NULL DEFAULT '',
			notified %[2]s,
			ingested_at %[1]s NOT NULL
		)`, t.timestampTZ, t.boolFalse),
		`CREATE INDEX IF NOT EXISTS idx_tickets_created_at ON tickets (created_at)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS system_settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL DEFAULT '',
			updated_at %s NOT NULL
		)`, t.timestampTZ),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS notification_logs (
			id TEXT PRIMARY KEY,
			ticket_id TEXT NOT NULL REFERENCES tickets(id) ON DELETE CASCADE,
			technician_id TEXT NOT NULL,
			recipient TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			failure_category TEXT NOT NULL DEFAULT '',
			error_code INTEGER NOT NULL DEFAULT 0,
			error_message TEXT NOT NULL DEFAULT '',
			provider_sid TEXT NOT NULL DEFAULT '',
			created_at %s NOT NULL
		)`, t.timestampTZ),
		`CREATE INDEX IF NOT EXISTS idx_notification_logs_ticket ON notification_logs (ticket_id)`,
	}
}

// Migrate applies the schema for dialect in a single transaction
func Migrate(ctx context.Context, pg *sql.DB, dialect Dialect) error {
	return WithTransaction(ctx, pg, func(tx *sql.Tx) error {
		for _, stmt := range SchemaStatements(dialect) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to apply %q: %w", firstLine(stmt), err)
			}
		}
		return nil
	})
}

func firstLine(stmt string) string {
	line, _, _ := strings.Cut(stmt, "\n")
	return strings.TrimSpace(strings.TrimSuffix(line, "("))
}
