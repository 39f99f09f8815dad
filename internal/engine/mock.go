package engine

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/voxlabs/voxgate/internal/audio"
)

// MockEngine produces deterministic synthetic audio without a model
// process. It serves tests and deployments that want the full service
// surface with no model attached.
type MockEngine struct {
	voices     []string
	instruct   bool
	sampleRate int

	// Delay, when set, runs before the first chunk of each generation.
	Delay time.Duration
	// FailOp makes generations of the named op fail after any delay.
	FailOp string

	mu          sync.Mutex
	seed        int64
	calls       []string
	inFlight    int
	maxInFlight int
	waveforms   map[string]audio.Waveform
	infos       map[string]audio.Info
}

func NewMockEngine(voices []string, instruct bool, sampleRate int) *MockEngine {
	return &MockEngine{
		voices:     append([]string(nil), voices...),
		instruct:   instruct,
		sampleRate: sampleRate,
		waveforms:  make(map[string]audio.Waveform),
		infos:      make(map[string]audio.Info),
	}
}

func (m *MockEngine) ListVoices(ctx context.Context) ([]string, error) {
	return append([]string(nil), m.voices...), nil
}

func (m *MockEngine) SupportsInstruct(ctx context.Context) (bool, error) {
	return m.instruct, nil
}

func (m *MockEngine) SeedRandom(seed int64) error {
	m.mu.Lock()
	m.seed = seed
	m.calls = append(m.calls, fmt.Sprintf("seed:%d", seed))
	m.mu.Unlock()
	return nil
}

func (m *MockEngine) SynthesizeFromVoice(ctx context.Context, text, voice string, opts Options) (<-chan Chunk, <-chan error) {
	return m.synth(ctx, "voice:"+voice, "voice", text, opts)
}

func (m *MockEngine) SynthesizeZeroShot(ctx context.Context, text, promptText string, prompt audio.Waveform, opts Options) (<-chan Chunk, <-chan error) {
	return m.synth(ctx, "zero_shot", "zero_shot", text, opts)
}

func (m *MockEngine) SynthesizeCrossLingual(ctx context.Context, text string, prompt audio.Waveform, opts Options) (<-chan Chunk, <-chan error) {
	return m.synth(ctx, "cross_lingual", "cross_lingual", text, opts)
}

func (m *MockEngine) SynthesizeInstructed(ctx context.Context, text, voice, instructText string, opts Options) (<-chan Chunk, <-chan error) {
	return m.synth(ctx, "instruct:"+voice, "instruct", text, opts)
}

func (m *MockEngine) synth(ctx context.Context, record, op, text string, opts Options) (<-chan Chunk, <-chan error) {
	m.mu.Lock()
	m.calls = append(m.calls, record)
	seed := m.seed
	m.seed = 0
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	m.mu.Unlock()

	chunks := make(chan Chunk)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		defer func() {
			m.mu.Lock()
			m.inFlight--
			m.mu.Unlock()
		}()

		if m.Delay > 0 {
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			case <-time.After(m.Delay):
			}
		}
		if m.FailOp == op {
			errs <- fmt.Errorf("mock engine: %s generation failed", op)
			return
		}

		n := 1
		if opts.Streaming {
			n = 3
		}
		for i := 0; i < n; i++ {
			chunk := Chunk{Samples: mockSamples(seed, op, text, i, m.sampleRate/10)}
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()
	return chunks, errs
}

// mockSamples derives a repeatable pseudo-random signal from the generation
// inputs, so equal requests with equal seeds produce identical output.
func mockSamples(seed int64, op, text string, index, n int) []float32 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%d", op, text, index)
	rng := rand.New(rand.NewPCG(uint64(seed), h.Sum64()))
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(rng.Float64()*1.6 - 0.8)
	}
	return out
}

// AddWaveform registers a decodable fixture for LoadWaveform and WaveformInfo.
func (m *MockEngine) AddWaveform(path string, w audio.Waveform) {
	m.mu.Lock()
	m.waveforms[path] = w.Clone()
	m.mu.Unlock()
}

// AddInfo registers a probe-only fixture for WaveformInfo.
func (m *MockEngine) AddInfo(path string, info audio.Info) {
	m.mu.Lock()
	m.infos[path] = info
	m.mu.Unlock()
}

func (m *MockEngine) LoadWaveform(path string, targetRate int) (audio.Waveform, error) {
	m.mu.Lock()
	w, ok := m.waveforms[path]
	m.mu.Unlock()
	if !ok {
		return audio.Waveform{}, fmt.Errorf("no waveform fixture for %s", path)
	}
	w = w.Clone()
	if targetRate > 0 && targetRate != w.SampleRate {
		w = audio.Resample(w, targetRate)
	}
	return w, nil
}

func (m *MockEngine) WaveformInfo(path string) (audio.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info, ok := m.infos[path]; ok {
		return info, nil
	}
	if w, ok := m.waveforms[path]; ok {
		return audio.Info{SampleRate: w.SampleRate, Channels: 1}, nil
	}
	return audio.Info{}, fmt.Errorf("no waveform fixture for %s", path)
}

// Calls lists the recorded engine invocations in order.
func (m *MockEngine) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// MaxInFlight reports the peak number of concurrent generations observed.
func (m *MockEngine) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}
