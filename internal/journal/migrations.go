package journal

import (
	"context"
	"database/sql"
	"strings"
)

// schema contains the DDL for all journal tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS commands (
		id          TEXT PRIMARY KEY,
		run         TEXT NOT NULL DEFAULT '',
		kind        TEXT NOT NULL,
		status      TEXT NOT NULL,
		first_tick  INTEGER NOT NULL,
		last_tick   INTEGER NOT NULL,
		transitions INTEGER NOT NULL DEFAULT 0,
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS transitions (
		seq         INTEGER PRIMARY KEY AUTOINCREMENT,
		command_id  TEXT NOT NULL,
		from_status TEXT NOT NULL,
		to_status   TEXT NOT NULL,
		tick        INTEGER NOT NULL,
		recorded_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS notifications (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		run        TEXT NOT NULL DEFAULT '',
		command_id TEXT NOT NULL,
		client_id  TEXT NOT NULL DEFAULT '',
		kind       TEXT NOT NULL,
		status     TEXT NOT NULL,
		front_end  INTEGER NOT NULL DEFAULT 0,
		sched      INTEGER NOT NULL DEFAULT 0,
		tick       INTEGER NOT NULL,
		at         TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_commands_run ON commands(run)`,
	`CREATE INDEX IF NOT EXISTS idx_transitions_command_id ON transitions(command_id)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_command_id ON notifications(command_id)`,
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
		table:    "commands",
		column:   "client_id",
		alterSQL: "ALTER TABLE commands ADD COLUMN client_id TEXT NOT NULL DEFAULT ''",
		indexSQL: "CREATE INDEX IF NOT EXISTS idx_commands_client_id ON commands(client_id)",
	},
}

// migrate executes all schema DDL statements, alter migrations, and post-migration indexes.
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
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	_, err = db.ExecContext(ctx, alterSQL)
	return err
}
