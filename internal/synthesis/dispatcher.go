package synthesis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/voxlabs/voxgate/internal/audio"
	"github.com/voxlabs/voxgate/internal/engine"
	"github.com/voxlabs/voxgate/internal/promptcache"
)

// AudioChunk is one unit of a synthesis output stream.
type AudioChunk struct {
	SampleRate int
	Samples    []float32
}

// Result is the outcome of a dispatched request. When Warning is set the
// request was rejected and Chunks carries only the silent placeholder.
// Chunks and Errs are closed when the stream ends.
type Result struct {
	Warning    string
	Advisories []string
	Chunks     <-chan AudioChunk
	Errs       <-chan error
}

// Dispatcher validates requests, conditions prompt audio and routes each
// request to the matching engine operation.
type Dispatcher struct {
	engine     engine.Engine
	caps       Capabilities
	cache      *promptcache.Cache
	cond       audio.Conditioner
	promptRate int
	outputRate int
	log        *slog.Logger

	meter    metric.Meter
	requests metric.Int64Counter
	chunks   metric.Int64Counter
	duration metric.Float64Histogram

	// genMu serializes seed-then-generate pairs. Seeding mutates random
	// state shared by every generation, so one request's seed must not
	// leak into another's output.
	genMu sync.Mutex
}

func NewDispatcher(eng engine.Engine, caps Capabilities, cache *promptcache.Cache, promptRate, outputRate int, log *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		engine:     eng,
		caps:       caps,
		cache:      cache,
		cond:       audio.NewConditioner(outputRate),
		promptRate: promptRate,
		outputRate: outputRate,
		log:        log.With(slog.String("component", "dispatcher")),
		meter:      otel.Meter("github.com/voxlabs/voxgate/synthesis"),
	}
	if err := d.initMetrics(); err != nil {
		d.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}
	return d
}

// Capabilities reports what the attached engine can do.
func (d *Dispatcher) Capabilities() Capabilities {
	return d.caps
}

// OutputRate reports the fixed sample rate of produced chunks.
func (d *Dispatcher) OutputRate() int {
	return d.outputRate
}

// Generate runs one synthesis request end to end: resolve the prompt
// source, validate, condition prompt audio, then seed and invoke the
// engine, relaying its chunks. A rejected request yields a Result with
// Warning set and a one second silent chunk; an error return means the
// request never reached validation or generation.
func (d *Dispatcher) Generate(ctx context.Context, req Request) (Result, error) {
	if req.Speed <= 0 {
		req.Speed = 1.0
	}

	// Only the cloning modes read the prompt clip, so only they pay for the
	// header inspection; a stray prompt path on the other modes is advisory
	// material, never an error.
	source := req.PromptSource()
	probe := PromptProbe{Present: source != ""}
	if probe.Present && (req.Mode == ModeRapidCloning || req.Mode == ModeCrossLingual) {
		info, err := d.engine.WaveformInfo(source)
		if err != nil {
			return Result{}, fmt.Errorf("inspect prompt audio: %w", err)
		}
		probe.SampleRate = info.SampleRate
	}

	outcome := Validate(req, d.caps, probe, d.promptRate)
	if msg, ok := outcome.Fatal(); ok {
		d.log.Warn("synthesis rejected",
			slog.String("mode", req.Mode.String()),
			slog.String("reason", msg))
		d.observe(ctx, req.Mode, "rejected", 0, 0)
		return d.placeholder(msg), nil
	}

	var prompt audio.Waveform
	if req.Mode == ModeRapidCloning || req.Mode == ModeCrossLingual {
		w, err := d.loadPrompt(source)
		if err != nil {
			return Result{}, fmt.Errorf("load prompt audio: %w", err)
		}
		prompt = w
	}

	chunks := make(chan AudioChunk)
	errs := make(chan error, 1)
	opts := engine.Options{Streaming: req.Streaming, Speed: req.Speed}

	d.genMu.Lock()
	go func() {
		defer close(chunks)
		defer close(errs)
		defer d.genMu.Unlock()

		start := time.Now()
		if err := d.engine.SeedRandom(req.Seed); err != nil {
			errs <- fmt.Errorf("seed engine: %w", err)
			d.observe(ctx, req.Mode, "failed", 0, time.Since(start))
			return
		}

		var (
			engChunks <-chan engine.Chunk
			engErrs   <-chan error
		)
		switch req.Mode {
		case ModePretrainedVoice:
			engChunks, engErrs = d.engine.SynthesizeFromVoice(ctx, req.Text, req.Voice, opts)
		case ModeRapidCloning:
			engChunks, engErrs = d.engine.SynthesizeZeroShot(ctx, req.Text, req.PromptText, prompt, opts)
		case ModeCrossLingual:
			engChunks, engErrs = d.engine.SynthesizeCrossLingual(ctx, req.Text, prompt, opts)
		case ModeInstructControl:
			engChunks, engErrs = d.engine.SynthesizeInstructed(ctx, req.Text, req.Voice, req.InstructText, opts)
		default:
			errs <- fmt.Errorf("unknown synthesis mode %v", req.Mode)
			return
		}

		relayed, err := d.relay(ctx, engChunks, engErrs, chunks)
		elapsed := time.Since(start)
		if err != nil {
			errs <- err
			label := "failed"
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				label = "canceled"
			}
			d.observe(ctx, req.Mode, label, relayed, elapsed)
			d.log.Warn("synthesis failed",
				slog.String("mode", req.Mode.String()),
				slog.Int("chunks", relayed),
				slog.String("error", err.Error()))
			return
		}
		d.observe(ctx, req.Mode, "completed", relayed, elapsed)
		d.log.Info("synthesis complete",
			slog.String("mode", req.Mode.String()),
			slog.Int("chunks", relayed),
			slog.Duration("elapsed", elapsed))
	}()

	return Result{Advisories: outcome.Advisories(), Chunks: chunks, Errs: errs}, nil
}

// relay forwards engine chunks to the caller until the engine closes both
// channels, an error arrives, or the context ends. It returns the number
// of chunks delivered.
func (d *Dispatcher) relay(ctx context.Context, in <-chan engine.Chunk, inErrs <-chan error, out chan<- AudioChunk) (int, error) {
	sent := 0
	for in != nil || inErrs != nil {
		select {
		case c, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			select {
			case out <- AudioChunk{SampleRate: d.outputRate, Samples: c.Samples}:
				sent++
			case <-ctx.Done():
				return sent, ctx.Err()
			}
		case err, ok := <-inErrs:
			if !ok {
				inErrs = nil
				continue
			}
			if err != nil {
				return sent, err
			}
		case <-ctx.Done():
			return sent, ctx.Err()
		}
	}
	return sent, nil
}

// placeholder builds the rejection stream: one second of silence at the
// output rate, then end of stream.
func (d *Dispatcher) placeholder(warning string) Result {
	chunks := make(chan AudioChunk, 1)
	chunks <- AudioChunk{SampleRate: d.outputRate, Samples: audio.Silence(d.outputRate, d.outputRate).Samples}
	close(chunks)
	errs := make(chan error)
	close(errs)
	return Result{Warning: warning, Chunks: chunks, Errs: errs}
}

// loadPrompt fetches the conditioned prompt waveform, preferring the cache.
func (d *Dispatcher) loadPrompt(source string) (audio.Waveform, error) {
	if w, ok := d.cache.Get(source); ok {
		d.log.Debug("prompt cache hit", slog.String("path", source))
		return w, nil
	}
	raw, err := d.engine.LoadWaveform(source, d.promptRate)
	if err != nil {
		return audio.Waveform{}, err
	}
	conditioned := d.cond.Condition(raw)
	d.cache.Put(source, conditioned)
	return conditioned, nil
}

func (d *Dispatcher) initMetrics() error {
	if d.meter == nil {
		return nil
	}
	requests, err := d.meter.Int64Counter("voxgate.synth.requests",
		metric.WithDescription("Synthesis requests by mode and outcome"))
	if err != nil {
		return err
	}
	chunks, err := d.meter.Int64Counter("voxgate.synth.chunks",
		metric.WithDescription("Audio chunks relayed to callers"))
	if err != nil {
		return err
	}
	duration, err := d.meter.Float64Histogram("voxgate.synth.duration",
		metric.WithDescription("Generation wall time"),
		metric.WithUnit("s"))
	if err != nil {
		return err
	}
	d.requests = requests
	d.chunks = chunks
	d.duration = duration
	return nil
}

func (d *Dispatcher) observe(ctx context.Context, mode Mode, outcome string, relayed int, elapsed time.Duration) {
	if d.requests == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("mode", mode.String()),
		attribute.String("outcome", outcome),
	)
	d.requests.Add(ctx, 1, attrs)
	if relayed > 0 {
		d.chunks.Add(ctx, int64(relayed), attrs)
	}
	if elapsed > 0 {
		d.duration.Record(ctx, elapsed.Seconds(), attrs)
	}
}
