// Package gateway exposes the synthesis pipeline over HTTP. Synthesized
// audio streams back as newline-delimited JSON so callers hear the first
// chunk before the generation finishes.
package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/voxlabs/voxgate/internal/audio"
	"github.com/voxlabs/voxgate/internal/eventstore"
	"github.com/voxlabs/voxgate/internal/limiter"
	"github.com/voxlabs/voxgate/internal/protocol"
	"github.com/voxlabs/voxgate/internal/synthesis"
)

// Gateway serves the HTTP API over a shared dispatcher.
type Gateway struct {
	disp    *synthesis.Dispatcher
	gate    *limiter.Gate
	store   *eventstore.Store
	voices  []string
	timeout time.Duration
	ready   func() bool
	log     *slog.Logger
}

func New(disp *synthesis.Dispatcher, gate *limiter.Gate, store *eventstore.Store, voices []string, timeout time.Duration, ready func() bool, log *slog.Logger) *Gateway {
	return &Gateway{
		disp:    disp,
		gate:    gate,
		store:   store,
		voices:  append([]string(nil), voices...),
		timeout: timeout,
		ready:   ready,
		log:     log.With(slog.String("component", "gateway")),
	}
}

// Router builds the chi handler. The metrics handler is mounted at /metrics
// when non-nil.
func (g *Gateway) Router(metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", g.handleHealth)
	r.Get("/readyz", g.handleReady)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/voices", g.handleVoices)
		r.Get("/modes", g.handleModes)
		r.Post("/seed", g.handleSeed)
		r.Post("/synthesize", g.handleSynthesize)
	})
	return r
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (g *Gateway) handleReady(w http.ResponseWriter, _ *http.Request) {
	if g.ready == nil || g.ready() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (g *Gateway) handleVoices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"voices": g.voices})
}

type modeInfo struct {
	Mode        string `json:"mode"`
	Description string `json:"description"`
}

func (g *Gateway) handleModes(w http.ResponseWriter, _ *http.Request) {
	var modes []modeInfo
	for _, m := range synthesis.Modes() {
		modes = append(modes, modeInfo{Mode: m.String(), Description: m.Description()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"modes": modes})
}

func (g *Gateway) handleSeed(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"seed": synthesis.NewSeed()})
}

// Stream record types emitted by POST /api/v1/synthesize. Every line is one
// JSON object tagged by Type; the first is always "status".
type streamRecord struct {
	Type       string   `json:"type"`
	RequestID  string   `json:"request_id,omitempty"`
	Seed       int64    `json:"seed,omitempty"`
	Warning    string   `json:"warning,omitempty"`
	Advisories []string `json:"advisories,omitempty"`
	Sequence   int      `json:"sequence,omitempty"`
	SampleRate int      `json:"sample_rate,omitempty"`
	PCM        string   `json:"pcm,omitempty"`
	Chunks     int      `json:"chunks,omitempty"`
	Error      string   `json:"error,omitempty"`
}

func (g *Gateway) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var wire protocol.SynthRequest
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": fmt.Sprintf("decode request: %v", err)})
		return
	}

	mode, err := synthesis.ParseMode(wire.Mode)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	if !synthesis.ValidSpeed(wire.Speed) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": fmt.Sprintf("speed %g is outside [%g, %g]", wire.Speed, synthesis.SpeedMin, synthesis.SpeedMax),
		})
		return
	}

	if err := g.gate.Acquire(r.Context()); err != nil {
		if errors.Is(err, limiter.ErrFull) {
			writeJSON(w, http.StatusTooManyRequests, map[string]any{"error": "synthesis queue is full, retry later"})
			return
		}
		return // caller went away while queued
	}
	defer g.gate.Release()

	req := synthesis.Request{
		Mode:         mode,
		Text:         wire.Text,
		Voice:        wire.Voice,
		PromptUpload: wire.PromptUpload,
		PromptRecord: wire.PromptRecord,
		PromptText:   wire.PromptText,
		InstructText: wire.InstructText,
		Seed:         wire.Seed,
		Streaming:    wire.Streaming,
		Speed:        wire.Speed,
	}
	if req.Seed == 0 {
		req.Seed = synthesis.NewSeed()
	}

	id := wire.RequestID
	if id == "" {
		id = uuid.NewString()
	}
	g.record(r.Context(), id, req)

	ctx := r.Context()
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	res, err := g.disp.Generate(ctx, req)
	if err != nil {
		g.event(id, eventstore.KindFailed, err.Error())
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	flusher, _ := w.(http.Flusher)

	writeLine := func(rec streamRecord) bool {
		if err := enc.Encode(rec); err != nil {
			return false
		}
		if flusher != nil {
			flusher.Flush()
		}
		return true
	}

	if !writeLine(streamRecord{Type: "status", RequestID: id, Seed: req.Seed, Warning: res.Warning, Advisories: res.Advisories}) {
		return
	}
	if res.Warning != "" {
		g.event(id, eventstore.KindFatal, res.Warning)
	}
	for _, adv := range res.Advisories {
		g.event(id, eventstore.KindAdvisory, adv)
	}

	sent := 0
	for res.Chunks != nil || res.Errs != nil {
		select {
		case chunk, ok := <-res.Chunks:
			if !ok {
				res.Chunks = nil
				continue
			}
			rec := streamRecord{
				Type:       "chunk",
				Sequence:   sent,
				SampleRate: chunk.SampleRate,
				PCM:        base64.StdEncoding.EncodeToString(audio.Float32ToPCM16(chunk.Samples)),
			}
			if !writeLine(rec) {
				return
			}
			sent++
		case genErr, ok := <-res.Errs:
			if !ok {
				res.Errs = nil
				continue
			}
			if genErr != nil {
				g.event(id, eventstore.KindFailed, genErr.Error())
				writeLine(streamRecord{Type: "error", Error: genErr.Error(), Chunks: sent})
				return
			}
		case <-ctx.Done():
			writeLine(streamRecord{Type: "error", Error: ctx.Err().Error(), Chunks: sent})
			return
		}
	}
	if res.Warning == "" {
		g.event(id, eventstore.KindCompleted, fmt.Sprintf("%d chunks", sent))
	}
	writeLine(streamRecord{Type: "done", Chunks: sent})
}

func (g *Gateway) record(ctx context.Context, id string, req synthesis.Request) {
	rec := eventstore.RequestRecord{
		ID:        id,
		Mode:      req.Mode.String(),
		Voice:     req.Voice,
		TextChars: len(req.Text),
		Seed:      req.Seed,
		Streaming: req.Streaming,
		Speed:     req.Speed,
	}
	if err := g.store.RecordRequest(ctx, rec); err != nil {
		g.log.Warn("failed to record request", slog.String("error", err.Error()))
	}
}

func (g *Gateway) event(id, kind, detail string) {
	if err := g.store.AppendEvent(context.Background(), id, kind, detail); err != nil {
		g.log.Warn("failed to record event", slog.String("error", err.Error()))
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
