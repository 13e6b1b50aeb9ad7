package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/rfsched/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteJournal implements Journal using SQLite.
type SQLiteJournal struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Journal = (*SQLiteJournal)(nil)

// NewSQLiteJournal opens (or creates) a SQLite database at dbPath.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteJournal(dbPath string, logger *slog.Logger) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}

	return &SQLiteJournal{
		db:     db,
		logger: logger.With("component", "journal"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteJournal) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteJournal) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Writes ---

func (s *SQLiteJournal) RecordTransition(ctx context.Context, run string, t model.Transition) error {
	s.logger.Debug("sql", "op", "insert", "table", "transitions", "command_id", t.CommandID, "to", t.To)

	now := time.Now().UTC().Format(time.RFC3339Nano)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transitions (command_id, from_status, to_status, tick, recorded_at)
		 VALUES (?, ?, ?, ?, ?)`,
		t.CommandID, t.From.String(), t.To.String(), t.Tick, now,
	); err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO commands (id, run, kind, status, first_tick, last_tick, transitions, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   status = excluded.status,
		   last_tick = excluded.last_tick,
		   transitions = commands.transitions + 1,
		   updated_at = excluded.updated_at`,
		t.CommandID, run, t.Kind, t.To.String(), t.Tick, t.Tick, now, now,
	); err != nil {
		return fmt.Errorf("upsert command: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteJournal) RecordNotification(ctx context.Context, run string, n model.Notification) error {
	s.logger.Debug("sql", "op", "insert", "table", "notifications", "command_id", n.CommandID)

	at := n.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (run, command_id, client_id, kind, status, front_end, sched, tick, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run, n.CommandID, n.ClientID, n.Kind, n.Status.String(),
		uint32(n.FrontEnd), uint32(n.Sched), n.Tick, at.Format(time.RFC3339Nano),
	)
	if err != nil {
		return err
	}

	// The owning client is only known from deliveries.
	if n.ClientID != "" {
		_, err = s.db.ExecContext(ctx,
			`UPDATE commands SET client_id = ? WHERE id = ? AND client_id = ''`,
			n.ClientID, n.CommandID)
	}
	return err
}

// --- Reads ---

const commandColumns = `id, run, kind, client_id, status, first_tick, last_tick, transitions, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCommand(row rowScanner) (*CommandRecord, error) {
	var rec CommandRecord
	var status, createdAt, updatedAt string
	if err := row.Scan(&rec.ID, &rec.Run, &rec.Kind, &rec.ClientID, &status,
		&rec.FirstTick, &rec.LastTick, &rec.Transitions, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	st, err := model.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("command %s: %w", rec.ID, err)
	}
	rec.Status = st
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &rec, nil
}

func (s *SQLiteJournal) GetCommand(ctx context.Context, id string) (*CommandRecord, error) {
	s.logger.Debug("sql", "op", "select", "table", "commands", "id", id)

	rec, err := scanCommand(s.db.QueryRowContext(ctx,
		`SELECT `+commandColumns+` FROM commands WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func (s *SQLiteJournal) ListCommands(ctx context.Context, opts model.ListOptions) ([]*CommandRecord, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "commands", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	whereSQL := ""
	var args []any
	if opts.ClientID != "" {
		whereSQL = " WHERE client_id = ?"
		args = append(args, opts.ClientID)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM commands`+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+commandColumns+` FROM commands`+whereSQL+` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*CommandRecord
	for rows.Next() {
		rec, err := scanCommand(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

func (s *SQLiteJournal) ListTransitions(ctx context.Context, commandID string) ([]model.Transition, error) {
	s.logger.Debug("sql", "op", "list", "table", "transitions", "command_id", commandID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT t.from_status, t.to_status, t.tick, COALESCE(c.kind, '')
		 FROM transitions t LEFT JOIN commands c ON c.id = t.command_id
		 WHERE t.command_id = ? ORDER BY t.seq`, commandID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Transition
	for rows.Next() {
		tr := model.Transition{CommandID: commandID}
		var from, to string
		if err := rows.Scan(&from, &to, &tr.Tick, &tr.Kind); err != nil {
			return nil, err
		}
		if tr.From, err = model.ParseStatus(from); err != nil {
			return nil, err
		}
		if tr.To, err = model.ParseStatus(to); err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

func (s *SQLiteJournal) ListNotifications(ctx context.Context, commandID string, opts model.ListOptions) ([]model.Notification, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "notifications", "command_id", commandID,
		"limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE command_id = ?`, commandID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT client_id, kind, status, front_end, sched, tick, at
		 FROM notifications WHERE command_id = ? ORDER BY seq LIMIT ? OFFSET ?`,
		commandID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		n := model.Notification{CommandID: commandID}
		var status, at string
		var fe, sched uint32
		if err := rows.Scan(&n.ClientID, &n.Kind, &status, &fe, &sched, &n.Tick, &at); err != nil {
			return nil, 0, err
		}
		if n.Status, err = model.ParseStatus(status); err != nil {
			return nil, 0, err
		}
		n.FrontEnd = model.FrontEndEvents(fe)
		n.Sched = model.Events(sched)
		n.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, n)
	}
	return out, total, rows.Err()
}
