package engine

import (
	"context"

	"github.com/voxlabs/voxgate/internal/audio"
)

// Chunk is one synthesized audio segment. Sample rate is fixed by the
// engine's output rate.
type Chunk struct {
	Samples []float32
}

// Options carry the generation controls shared by every synthesis call.
type Options struct {
	Streaming bool
	Speed     float64
}

// Engine is the contract to a loaded synthesis model. Synthesis calls
// return a chunk channel and an error channel; both are closed when the
// generation ends.
type Engine interface {
	// ListVoices returns the pre-trained voice identifiers in model order.
	ListVoices(ctx context.Context) ([]string, error)

	// SupportsInstruct reports whether the loaded model accepts instruct text.
	SupportsInstruct(ctx context.Context) (bool, error)

	// SeedRandom pins the random state consumed by the next generation.
	SeedRandom(seed int64) error

	SynthesizeFromVoice(ctx context.Context, text, voice string, opts Options) (<-chan Chunk, <-chan error)
	SynthesizeZeroShot(ctx context.Context, text, promptText string, prompt audio.Waveform, opts Options) (<-chan Chunk, <-chan error)
	SynthesizeCrossLingual(ctx context.Context, text string, prompt audio.Waveform, opts Options) (<-chan Chunk, <-chan error)
	SynthesizeInstructed(ctx context.Context, text, voice, instructText string, opts Options) (<-chan Chunk, <-chan error)

	// LoadWaveform decodes an audio file, resampling to targetRate when
	// targetRate is positive.
	LoadWaveform(path string, targetRate int) (audio.Waveform, error)

	// WaveformInfo probes an audio file header without decoding samples.
	WaveformInfo(path string) (audio.Info, error)
}
