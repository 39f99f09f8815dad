package eventstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/voxlabs/voxgate/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	cfg := config.EventStoreConfig{RetentionMode: "ephemeral"}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	// every write is a no-op but must not fail
	if err := es.RecordRequest(context.Background(), RequestRecord{ID: "r1", Mode: "pretrained_voice"}); err != nil {
		t.Fatalf("record request: %v", err)
	}
	if err := es.AppendEvent(context.Background(), "r1", KindCompleted, ""); err != nil {
		t.Fatalf("append event: %v", err)
	}
	events, err := es.ListRequestEvents(context.Background(), "r1", 10)
	if err != nil || events != nil {
		t.Fatalf("expected no events, got %v (%v)", events, err)
	}
}

func TestRecordAndQuery(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.EventStoreConfig{Path: filepath.Join(tmp, "events.db"), RetentionMode: "persistent"}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	rec := RequestRecord{
		ID: "req-123", Mode: "rapid_cloning", Voice: "", TextChars: 42,
		Seed: 99, Streaming: true, Speed: 1.2,
	}
	if err := es.RecordRequest(context.Background(), rec); err != nil {
		t.Fatalf("record request: %v", err)
	}
	if err := es.AppendEvent(context.Background(), rec.ID, KindAdvisory, "instruct text ignored"); err != nil {
		t.Fatalf("append advisory: %v", err)
	}
	if err := es.AppendEvent(context.Background(), rec.ID, KindCompleted, "3 chunks"); err != nil {
		t.Fatalf("append completed: %v", err)
	}

	events, err := es.ListRequestEvents(context.Background(), rec.ID, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Kind != KindAdvisory || events[1].Kind != KindCompleted {
		t.Fatalf("unexpected event order: %s, %s", events[0].Kind, events[1].Kind)
	}
	if events[1].Detail != "3 chunks" {
		t.Fatalf("unexpected detail: %s", events[1].Detail)
	}
}

func TestListEventsTimestampLayouts(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.EventStoreConfig{Path: filepath.Join(tmp, "events.db"), RetentionMode: "persistent"}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	if err := es.RecordRequest(context.Background(), RequestRecord{ID: "req-1", Mode: "pretrained_voice"}); err != nil {
		t.Fatalf("record request: %v", err)
	}

	// rows written by other tools may carry sqlite's own datetime text
	_, err = es.db.ExecContext(context.Background(),
		`INSERT INTO synth_events(request_id, kind, detail, created_at) VALUES(?, ?, ?, ?)`,
		"req-1", KindCompleted, "", "2025-03-04 05:06:07")
	if err != nil {
		t.Fatalf("insert raw event: %v", err)
	}

	events, err := es.ListRequestEvents(context.Background(), "req-1", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	want := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	if !events[0].CreatedAt.Equal(want) {
		t.Fatalf("expected %v, got %v", want, events[0].CreatedAt)
	}

	// an unparseable timestamp must surface, not produce a zero time
	if err := es.RecordRequest(context.Background(), RequestRecord{ID: "req-2", Mode: "pretrained_voice"}); err != nil {
		t.Fatalf("record request: %v", err)
	}
	_, err = es.db.ExecContext(context.Background(),
		`INSERT INTO synth_events(request_id, kind, detail, created_at) VALUES(?, ?, ?, ?)`,
		"req-2", KindCompleted, "", "not a timestamp")
	if err != nil {
		t.Fatalf("insert raw event: %v", err)
	}
	if _, err := es.ListRequestEvents(context.Background(), "req-2", 10); err == nil {
		t.Fatal("expected error for unparseable created_at")
	}
}

func TestPruneByDaysAndCount(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.EventStoreConfig{Path: filepath.Join(tmp, "events.db"), RetentionMode: "persistent", RetentionDays: 1, MaxRequests: 1}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	es.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := es.RecordRequest(context.Background(), RequestRecord{ID: "old", Mode: "cross_lingual"}); err != nil {
		t.Fatalf("record old request: %v", err)
	}
	if err := es.AppendEvent(context.Background(), "old", KindFatal, "prompt audio missing"); err != nil {
		t.Fatalf("append event: %v", err)
	}

	es.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := es.RecordRequest(context.Background(), RequestRecord{ID: "new", Mode: "pretrained_voice"}); err != nil {
		t.Fatalf("record new request: %v", err)
	}
	if err := es.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	events, err := es.ListRequestEvents(context.Background(), "old", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected old request events pruned")
	}
}
