// Package state keeps a SQLite journal of stream sessions: when each
// started and stopped, how many ticks ran, skipped or failed, and the
// last error seen.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // sqlite driver

	"github.com/leapstack-labs/sqlstream/internal/stream"
)

// Session statuses.
const (
	StatusRunning = "running"
	StatusStopped = "stopped"
)

// writeTimeout bounds each journal write made from a session goroutine.
const writeTimeout = 2 * time.Second

// SessionRecord is one journaled stream session.
type SessionRecord struct {
	ID        string     `json:"id"`
	RefID     string     `json:"refId"`
	Query     string     `json:"query"`
	Interval  int64      `json:"intervalMs"`
	Capacity  int        `json:"capacity"`
	Status    string     `json:"status"`
	Ticks     int        `json:"ticks"`
	Skipped   int        `json:"skipped"`
	Errors    int        `json:"errors"`
	Rows      int        `json:"rows"`
	LastError string     `json:"lastError,omitempty"`
	StartedAt time.Time  `json:"startedAt"`
	StoppedAt *time.Time `json:"stoppedAt,omitempty"`
}

// Journal records stream session lifecycles. It implements
// stream.Observer; write failures are logged, never returned to sessions.
type Journal struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewJournal creates a journal. Call Open before use.
// If logger is nil, a discard logger is used.
func NewJournal(logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Journal{logger: logger.With("component", "journal")}
}

// Open opens the database at path and applies migrations.
// Use ":memory:" for an in-memory database.
func (j *Journal) Open(path string) error {
	dsn := ":memory:"
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// A single connection keeps :memory: databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	j.db = db
	j.path = path
	if err := j.Migrate(context.Background()); err != nil {
		_ = db.Close()
		j.db = nil
		return err
	}
	return nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// SessionStarted implements stream.Observer.
func (j *Journal) SessionStarted(info stream.SessionInfo) {
	j.exec("record session start", `
		INSERT INTO stream_sessions (id, ref_id, query, interval_ms, capacity, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		info.ID, info.RefID, info.Query, info.Interval.Milliseconds(), info.Capacity, StatusRunning, time.Now().UTC())
}

// TickCompleted implements stream.Observer.
func (j *Journal) TickCompleted(info stream.SessionInfo, _ stream.State, rows int, err error) {
	if err != nil {
		j.exec("record failed tick", `
			UPDATE stream_sessions SET ticks = ticks + 1, errors = errors + 1, row_count = ?, last_error = ?
			WHERE id = ?`, rows, err.Error(), info.ID)
		return
	}
	j.exec("record tick", `UPDATE stream_sessions SET ticks = ticks + 1, row_count = ? WHERE id = ?`, rows, info.ID)
}

// TickSkipped implements stream.Observer.
func (j *Journal) TickSkipped(info stream.SessionInfo) {
	j.exec("record skipped tick", `UPDATE stream_sessions SET skipped = skipped + 1 WHERE id = ?`, info.ID)
}

// SessionStopped implements stream.Observer.
func (j *Journal) SessionStopped(info stream.SessionInfo) {
	j.exec("record session stop", `UPDATE stream_sessions SET status = ?, stopped_at = ? WHERE id = ?`,
		StatusStopped, time.Now().UTC(), info.ID)
}

func (j *Journal) exec(what, query string, args ...any) {
	if j.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if _, err := j.db.ExecContext(ctx, query, args...); err != nil {
		j.logger.Warn("journal write failed", slog.String("op", what), slog.Any("error", err))
	}
}

// List returns the most recent sessions, newest first.
func (j *Journal) List(ctx context.Context, limit int) ([]SessionRecord, error) {
	if j.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, selectSessions+` ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return out, nil
}

// Get returns one session by id.
func (j *Journal) Get(ctx context.Context, id string) (*SessionRecord, error) {
	if j.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	rec, err := scanSession(j.db.QueryRowContext(ctx, selectSessions+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	return rec, err
}

const selectSessions = `
	SELECT id, ref_id, query, interval_ms, capacity, status, ticks, skipped, errors, row_count,
	       last_error, started_at, stopped_at
	FROM stream_sessions`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(s scanner) (*SessionRecord, error) {
	var rec SessionRecord
	var lastError sql.NullString
	var stoppedAt sql.NullTime
	err := s.Scan(&rec.ID, &rec.RefID, &rec.Query, &rec.Interval, &rec.Capacity, &rec.Status,
		&rec.Ticks, &rec.Skipped, &rec.Errors, &rec.Rows, &lastError, &rec.StartedAt, &stoppedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	rec.LastError = lastError.String
	if stoppedAt.Valid {
		t := stoppedAt.Time
		rec.StoppedAt = &t
	}
	return &rec, nil
}

var _ stream.Observer = (*Journal)(nil)
