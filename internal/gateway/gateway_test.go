package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/voxlabs/voxgate/internal/config"
	"github.com/voxlabs/voxgate/internal/engine"
	"github.com/voxlabs/voxgate/internal/eventstore"
	"github.com/voxlabs/voxgate/internal/limiter"
	"github.com/voxlabs/voxgate/internal/protocol"
	"github.com/voxlabs/voxgate/internal/synthesis"
)

const outputRate = 22050

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestGateway(t *testing.T, eng engine.Engine, caps synthesis.Capabilities, gate *limiter.Gate) *httptest.Server {
	t.Helper()
	store, err := eventstore.Open(context.Background(), config.EventStoreConfig{RetentionMode: "ephemeral"}, testLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	disp := synthesis.NewDispatcher(eng, caps, nil, 16000, outputRate, testLogger())
	if gate == nil {
		gate = limiter.New(2, 4)
	}
	g := New(disp, gate, store, []string{"anna", "omar"}, 5*time.Second, func() bool { return true }, testLogger())
	srv := httptest.NewServer(g.Router(nil))
	t.Cleanup(srv.Close)
	return srv
}

func postSynthesize(t *testing.T, srv *httptest.Server, req protocol.SynthRequest) (int, []streamRecord) {
	t.Helper()
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(srv.URL+"/api/v1/synthesize", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post synthesize: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}

	var records []streamRecord
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec streamRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("decode stream line: %v", err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("read stream: %v", err)
	}
	return resp.StatusCode, records
}

func TestVoicesEndpoint(t *testing.T) {
	srv := newTestGateway(t, engine.NewMockEngine([]string{"anna", "omar"}, false, outputRate), synthesis.Capabilities{}, nil)

	resp, err := http.Get(srv.URL + "/api/v1/voices")
	if err != nil {
		t.Fatalf("get voices: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Voices []string `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Voices) != 2 || body.Voices[0] != "anna" {
		t.Fatalf("unexpected voices: %v", body.Voices)
	}
}

func TestModesEndpoint(t *testing.T) {
	srv := newTestGateway(t, engine.NewMockEngine([]string{"anna"}, false, outputRate), synthesis.Capabilities{}, nil)

	resp, err := http.Get(srv.URL + "/api/v1/modes")
	if err != nil {
		t.Fatalf("get modes: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Modes []modeInfo `json:"modes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Modes) != 4 {
		t.Fatalf("expected 4 modes, got %d", len(body.Modes))
	}
	for _, m := range body.Modes {
		if m.Description == "" {
			t.Fatalf("mode %s has no description", m.Mode)
		}
	}
}

func TestSeedEndpoint(t *testing.T) {
	srv := newTestGateway(t, engine.NewMockEngine([]string{"anna"}, false, outputRate), synthesis.Capabilities{}, nil)

	resp, err := http.Post(srv.URL+"/api/v1/seed", "application/json", nil)
	if err != nil {
		t.Fatalf("post seed: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Seed int64 `json:"seed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Seed < synthesis.SeedMin || body.Seed > synthesis.SeedMax {
		t.Fatalf("seed %d out of range", body.Seed)
	}
}

func TestSynthesizeStream(t *testing.T) {
	srv := newTestGateway(t, engine.NewMockEngine([]string{"anna"}, false, outputRate), synthesis.Capabilities{}, nil)

	status, records := postSynthesize(t, srv, protocol.SynthRequest{
		Mode: "pretrained_voice", Text: "hello", Voice: "anna", Seed: 42, Streaming: true,
	})
	if status != http.StatusOK {
		t.Fatalf("unexpected status %d", status)
	}
	if len(records) < 3 {
		t.Fatalf("expected status, chunks and done, got %v", records)
	}
	if records[0].Type != "status" || records[0].Warning != "" {
		t.Fatalf("expected clean status first, got %+v", records[0])
	}
	if records[0].RequestID == "" || records[0].Seed != 42 {
		t.Fatalf("status must carry request id and seed, got %+v", records[0])
	}
	last := records[len(records)-1]
	if last.Type != "done" {
		t.Fatalf("expected done record last, got %+v", last)
	}
	chunkCount := 0
	for _, rec := range records[1 : len(records)-1] {
		if rec.Type != "chunk" {
			t.Fatalf("unexpected record %+v", rec)
		}
		if rec.SampleRate != outputRate || rec.PCM == "" {
			t.Fatalf("bad chunk record %+v", rec)
		}
		if rec.Sequence != chunkCount {
			t.Fatalf("chunk out of order: %d != %d", rec.Sequence, chunkCount)
		}
		chunkCount++
	}
	if last.Chunks != chunkCount {
		t.Fatalf("done reports %d chunks, streamed %d", last.Chunks, chunkCount)
	}
}

func TestSynthesizeRejectionStreamsPlaceholder(t *testing.T) {
	// non-instruct model rejects instruct control outright
	srv := newTestGateway(t, engine.NewMockEngine([]string{"anna"}, false, outputRate), synthesis.Capabilities{}, nil)

	status, records := postSynthesize(t, srv, protocol.SynthRequest{
		Mode: "instruct_control", Text: "hello", Voice: "anna", InstructText: "softly", Seed: 1,
	})
	if status != http.StatusOK {
		t.Fatalf("unexpected status %d", status)
	}
	if records[0].Type != "status" || records[0].Warning == "" {
		t.Fatalf("expected warning status, got %+v", records[0])
	}
	if len(records) != 3 || records[1].Type != "chunk" || records[2].Type != "done" {
		t.Fatalf("expected status, placeholder chunk, done; got %v", records)
	}
}

func TestSynthesizeUnknownMode(t *testing.T) {
	srv := newTestGateway(t, engine.NewMockEngine([]string{"anna"}, false, outputRate), synthesis.Capabilities{}, nil)
	status, _ := postSynthesize(t, srv, protocol.SynthRequest{Mode: "interpretive_dance", Text: "hi"})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
}

func TestSynthesizeSpeedOutOfRange(t *testing.T) {
	srv := newTestGateway(t, engine.NewMockEngine([]string{"anna"}, false, outputRate), synthesis.Capabilities{}, nil)

	for _, speed := range []float64{100, 0.01, -1} {
		status, _ := postSynthesize(t, srv, protocol.SynthRequest{
			Mode: "pretrained_voice", Text: "hi", Voice: "anna", Seed: 1, Speed: speed,
		})
		if status != http.StatusBadRequest {
			t.Fatalf("speed %g: expected 400, got %d", speed, status)
		}
	}

	// boundary values and the zero default pass through
	for _, speed := range []float64{0, 0.5, 2.0} {
		status, records := postSynthesize(t, srv, protocol.SynthRequest{
			Mode: "pretrained_voice", Text: "hi", Voice: "anna", Seed: 1, Speed: speed,
		})
		if status != http.StatusOK {
			t.Fatalf("speed %g: expected 200, got %d", speed, status)
		}
		if len(records) == 0 || records[len(records)-1].Type != "done" {
			t.Fatalf("speed %g: stream did not complete", speed)
		}
	}
}

func TestSynthesizeQueueFull(t *testing.T) {
	gate := limiter.New(1, 0)
	srv := newTestGateway(t, engine.NewMockEngine([]string{"anna"}, false, outputRate), synthesis.Capabilities{}, gate)

	// hold the only slot so the request cannot be admitted
	if err := gate.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer gate.Release()

	status, _ := postSynthesize(t, srv, protocol.SynthRequest{
		Mode: "pretrained_voice", Text: "hi", Voice: "anna", Seed: 1,
	})
	if status != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", status)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestGateway(t, engine.NewMockEngine([]string{"anna"}, false, outputRate), synthesis.Capabilities{}, nil)
	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s returned %d", path, resp.StatusCode)
		}
	}
}
