// Package eventstore persists a timeline of synthesis requests and their
// outcomes in SQLite.
package eventstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/voxlabs/voxgate/internal/config"
	_ "modernc.org/sqlite"
)

// Event kinds recorded against a request.
const (
	KindAdvisory  = "advisory"
	KindFatal     = "fatal"
	KindCompleted = "completed"
	KindFailed    = "failed"
)

// RequestRecord describes one accepted synthesis request.
type RequestRecord struct {
	ID        string
	Mode      string
	Voice     string
	TextChars int
	Seed      int64
	Streaming bool
	Speed     float64
	CreatedAt time.Time
}

// Event is one timeline entry for a request.
type Event struct {
	ID        int64
	RequestID string
	Kind      string
	Detail    string
	CreatedAt time.Time
}

// Store wraps the SQLite request history. With retention mode "ephemeral"
// every method is a no-op.
type Store struct {
	db    *sql.DB
	cfg   config.EventStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the store according to config.
func Open(ctx context.Context, cfg config.EventStoreConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("event store vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("event store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS synth_requests (
    request_id TEXT PRIMARY KEY,
    mode TEXT NOT NULL,
    voice TEXT,
    text_chars INTEGER NOT NULL,
    seed INTEGER NOT NULL,
    streaming INTEGER NOT NULL,
    speed REAL NOT NULL,
    created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS synth_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    request_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    detail TEXT,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(request_id) REFERENCES synth_requests(request_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_synth_events_request_created ON synth_events(request_id, created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordRequest writes the request row. CreatedAt defaults to now.
func (s *Store) RecordRequest(ctx context.Context, rec RequestRecord) error {
	if s.db == nil {
		return nil
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO synth_requests(request_id, mode, voice, text_chars, seed, streaming, speed, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(request_id) DO NOTHING`,
		rec.ID, rec.Mode, rec.Voice, rec.TextChars, rec.Seed, rec.Streaming, rec.Speed, rec.CreatedAt)
	return err
}

// AppendEvent writes one timeline entry for a recorded request.
func (s *Store) AppendEvent(ctx context.Context, requestID, kind, detail string) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO synth_events(request_id, kind, detail, created_at) VALUES(?, ?, ?, ?)`,
		requestID, kind, detail, s.clock().UTC())
	return err
}

// ListRequestEvents retrieves up to limit events for a request ordered
// ascending by time.
func (s *Store) ListRequestEvents(ctx context.Context, requestID string, limit int) ([]Event, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request_id, kind, detail, created_at
		 FROM synth_events WHERE request_id = ? ORDER BY created_at ASC, id ASC LIMIT ?`, requestID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var created string
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Kind, &e.Detail, &created); err != nil {
			return nil, err
		}
		ts, err := parseStoredTime(created)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", e.ID, err)
		}
		e.CreatedAt = ts
		events = append(events, e)
	}
	return events, rows.Err()
}

// parseStoredTime accepts both layouts the driver may have written:
// RFC 3339 from time.Time values and sqlite's own datetime text.
func parseStoredTime(value string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse("2006-01-02 15:04:05.999999999-07:00", value); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse("2006-01-02 15:04:05", value); err == nil {
		return ts.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparseable created_at %q", value)
}

// Prune applies retention: drop requests older than retention_days and keep
// at most max_requests newest rows. Events follow their request via the
// cascade.
func (s *Store) Prune(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM synth_requests WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
	}
	if s.cfg.MaxRequests > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM synth_requests WHERE request_id IN (
			SELECT request_id FROM synth_requests ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxRequests)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}
