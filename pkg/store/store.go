// Package store implements the durable append-only event log on SQLite.
// Appends are transactional and synchronous: once Append returns, the event
// has been fsynced and its id assigned. Per-thread ordering is total; across
// threads only timestamps order events.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/lacehq/lace/pkg/types/threads"
)

var (
	// ErrThreadNotFound is returned when an operation references an unknown
	// thread id.
	ErrThreadNotFound = errors.New("thread not found")
	// ErrDuplicateThread is returned by CreateThread when the id exists.
	ErrDuplicateThread = errors.New("thread already exists")
)

// Store is the SQLite-backed event store. Safe for concurrent use; SQLite's
// single writer plus per-append transactions serialize appends per thread.
type Store struct {
	dbPath string
	db     *sqlx.DB
}

// New opens (creating if needed) the event store at dbPath.
func New(ctx context.Context, dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create database directory")
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	if err := configureDatabase(ctx, db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to configure database")
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize schema")
	}

	return &Store{dbPath: dbPath, db: db}, nil
}

// configureDatabase sets up SQLite pragmas. synchronous=FULL keeps appends
// durable before commit returns; WAL keeps readers unblocked.
func configureDatabase(ctx context.Context, db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return errors.Wrapf(err, "failed to execute pragma: %s", pragma)
		}
	}
	db.SetMaxIdleConns(1)
	db.SetMaxOpenConns(1)

	var journalMode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode); err != nil {
		return errors.Wrap(err, "failed to query journal mode")
	}
	if strings.ToLower(journalMode) != "wal" {
		return errors.Errorf("WAL mode not enabled. Current mode: %s", journalMode)
	}

	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

type threadRow struct {
	ID          string         `db:"id"`
	CanonicalID string         `db:"canonical_id"`
	ParentID    sql.NullString `db:"parent_id"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (r threadRow) toThread() threads.Thread {
	t := threads.Thread{
		ID:          r.ID,
		CanonicalID: r.CanonicalID,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.ParentID.Valid {
		parent := r.ParentID.String
		t.ParentID = &parent
	}
	return t
}

type eventRow struct {
	ThreadID  string    `db:"thread_id"`
	ID        int64     `db:"id"`
	Timestamp time.Time `db:"timestamp"`
	Kind      string    `db:"kind"`
	Payload   string    `db:"payload"`
}

func (r eventRow) toEvent() (threads.ThreadEvent, error) {
	var payload threads.Payload
	if err := json.Unmarshal([]byte(r.Payload), &payload); err != nil {
		return threads.ThreadEvent{}, errors.Wrapf(err, "failed to decode payload of event %d", r.ID)
	}
	return threads.ThreadEvent{
		ID:        r.ID,
		ThreadID:  r.ThreadID,
		Timestamp: r.Timestamp,
		Kind:      threads.EventKind(r.Kind),
		Payload:   payload,
	}, nil
}

// CreateThread registers a new thread. canonicalID may equal id (fresh
// thread) or point at an earlier thread's canonical id (compaction
// successor). parentID links delegate children.
func (s *Store) CreateThread(ctx context.Context, id, canonicalID string, parentID *string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO threads (id, canonical_id, parent_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		id, canonicalID, parentID, now, now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return errors.Wrapf(ErrDuplicateThread, "thread %s", id)
		}
		return errors.Wrap(err, "failed to create thread")
	}
	return nil
}

// GetThread loads thread metadata.
func (s *Store) GetThread(ctx context.Context, id string) (threads.Thread, error) {
	var row threadRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM threads WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return threads.Thread{}, errors.Wrapf(ErrThreadNotFound, "thread %s", id)
	}
	if err != nil {
		return threads.Thread{}, errors.Wrap(err, "failed to load thread")
	}
	return row.toThread(), nil
}

// Append atomically persists one event and returns its assigned id. The id
// is max(id)+1 within the owning thread; the append and the updated_at bump
// commit in one transaction, so no partial append is ever observable.
func (s *Store) Append(ctx context.Context, event *threads.ThreadEvent) (int64, error) {
	if err := event.Validate(); err != nil {
		return 0, errors.Wrap(err, "invalid event")
	}

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return 0, errors.Wrap(err, "failed to encode payload")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	var exists int
	if err := tx.GetContext(ctx, &exists, `SELECT COUNT(*) FROM threads WHERE id = ?`, event.ThreadID); err != nil {
		return 0, errors.Wrap(err, "failed to check thread")
	}
	if exists == 0 {
		return 0, errors.Wrapf(ErrThreadNotFound, "thread %s", event.ThreadID)
	}

	var nextID int64
	if err := tx.GetContext(ctx, &nextID,
		`SELECT COALESCE(MAX(id), 0) + 1 FROM events WHERE thread_id = ?`, event.ThreadID); err != nil {
		return 0, errors.Wrap(err, "failed to assign event id")
	}

	now := time.Now().UTC()
	if event.Timestamp.IsZero() {
		event.Timestamp = now
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO events (thread_id, id, timestamp, kind, payload)
		VALUES (?, ?, ?, ?, ?)`,
		event.ThreadID, nextID, event.Timestamp, string(event.Kind), string(payload),
	); err != nil {
		return 0, errors.Wrap(err, "failed to append event")
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE threads SET updated_at = ? WHERE id = ?`, now, event.ThreadID); err != nil {
		return 0, errors.Wrap(err, "failed to touch thread")
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "failed to commit append")
	}

	event.ID = nextID
	return nextID, nil
}

// EventsForThread returns the full ordered event log of a thread.
func (s *Store) EventsForThread(ctx context.Context, threadID string) ([]threads.ThreadEvent, error) {
	if _, err := s.GetThread(ctx, threadID); err != nil {
		return nil, err
	}

	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM events WHERE thread_id = ? ORDER BY id`, threadID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load events")
	}

	events := make([]threads.ThreadEvent, 0, len(rows))
	for _, row := range rows {
		event, err := row.toEvent()
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

// Scan returns a lazy, restartable iterator over a thread's events starting
// after the given event id. Callers must Close it.
func (s *Store) Scan(ctx context.Context, threadID string, afterID int64) (*Iterator, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT * FROM events WHERE thread_id = ? AND id > ? ORDER BY id`, threadID, afterID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan events")
	}
	return &Iterator{rows: rows}, nil
}

// FindByCanonical returns every thread in a compaction chain ordered by
// creation time, oldest first. The newest entry is the active thread.
func (s *Store) FindByCanonical(ctx context.Context, canonicalID string) ([]threads.Thread, error) {
	var rows []threadRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM threads WHERE canonical_id = ? ORDER BY created_at, id`, canonicalID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find threads by canonical id")
	}

	result := make([]threads.Thread, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toThread())
	}
	return result, nil
}

// DeleteThread removes a thread and its events.
func (s *Store) DeleteThread(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM threads WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete thread")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check delete result")
	}
	if affected == 0 {
		return errors.Wrapf(ErrThreadNotFound, "thread %s", id)
	}
	return nil
}

// ListThreads returns all thread metadata ordered by most recent activity.
func (s *Store) ListThreads(ctx context.Context) ([]threads.Thread, error) {
	var rows []threadRow
	err := s.db.SelectContext(ctx, &rows, `SELECT * FROM threads ORDER BY updated_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list threads")
	}
	result := make([]threads.Thread, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toThread())
	}
	return result, nil
}
