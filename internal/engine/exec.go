package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/voxlabs/voxgate/internal/audio"
)

// Non-streaming generations arrive as a single response line, so the
// scanner must accept lines far beyond its default limit.
const maxResponseLine = 32 * 1024 * 1024

type execEngine struct {
	cmd        []string
	sampleRate int

	// mu serializes subprocess runs; one model process at a time.
	mu sync.Mutex

	seedMu sync.Mutex
	seed   int64
}

type controlRequest struct {
	Op string `json:"op"`
}

type voicesResponse struct {
	Voices []string `json:"voices"`
}

type capabilitiesResponse struct {
	Instruct bool `json:"instruct"`
}

type synthRequest struct {
	Op           string  `json:"op"`
	Text         string  `json:"text"`
	Voice        string  `json:"voice,omitempty"`
	PromptText   string  `json:"prompt_text,omitempty"`
	PromptPCM    string  `json:"prompt_pcm,omitempty"`
	PromptRate   int     `json:"prompt_rate,omitempty"`
	InstructText string  `json:"instruct_text,omitempty"`
	SampleRate   int     `json:"sample_rate"`
	Stream       bool    `json:"stream"`
	Speed        float64 `json:"speed"`
	Seed         int64   `json:"seed,omitempty"`
}

type synthResponse struct {
	PCMBase64 string `json:"pcm_base64"`
	Final     bool   `json:"final"`
}

// NewExecEngine wraps a model subprocess speaking JSON over stdio. Each
// request runs the command once: control ops answer with a single JSON
// object, synthesis ops answer with one JSON line per chunk.
func NewExecEngine(command string, sampleRate int) (Engine, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse engine command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("engine command empty")
	}
	return &execEngine{cmd: args, sampleRate: sampleRate}, nil
}

func (e *execEngine) control(ctx context.Context, op string, out any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	input, err := json.Marshal(controlRequest{Op: op})
	if err != nil {
		return err
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(input)
	output, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("engine %s command failed: %w", op, err)
	}
	if err := json.Unmarshal(output, out); err != nil {
		return fmt.Errorf("decode engine %s response: %w", op, err)
	}
	return nil
}

func (e *execEngine) ListVoices(ctx context.Context) ([]string, error) {
	var resp voicesResponse
	if err := e.control(ctx, "list_voices", &resp); err != nil {
		return nil, err
	}
	return resp.Voices, nil
}

func (e *execEngine) SupportsInstruct(ctx context.Context) (bool, error) {
	var resp capabilitiesResponse
	if err := e.control(ctx, "capabilities", &resp); err != nil {
		return false, err
	}
	return resp.Instruct, nil
}

// SeedRandom latches the seed; the next synthesis run carries it in its
// payload and the latch is cleared, so one seed pins exactly one generation.
func (e *execEngine) SeedRandom(seed int64) error {
	e.seedMu.Lock()
	e.seed = seed
	e.seedMu.Unlock()
	return nil
}

func (e *execEngine) takeSeed() int64 {
	e.seedMu.Lock()
	defer e.seedMu.Unlock()
	seed := e.seed
	e.seed = 0
	return seed
}

func (e *execEngine) SynthesizeFromVoice(ctx context.Context, text, voice string, opts Options) (<-chan Chunk, <-chan error) {
	return e.stream(ctx, synthRequest{Op: "voice", Text: text, Voice: voice, Stream: opts.Streaming, Speed: opts.Speed})
}

func (e *execEngine) SynthesizeZeroShot(ctx context.Context, text, promptText string, prompt audio.Waveform, opts Options) (<-chan Chunk, <-chan error) {
	return e.stream(ctx, synthRequest{
		Op:         "zero_shot",
		Text:       text,
		PromptText: promptText,
		PromptPCM:  base64.StdEncoding.EncodeToString(audio.Float32ToPCM16(prompt.Samples)),
		PromptRate: prompt.SampleRate,
		Stream:     opts.Streaming,
		Speed:      opts.Speed,
	})
}

func (e *execEngine) SynthesizeCrossLingual(ctx context.Context, text string, prompt audio.Waveform, opts Options) (<-chan Chunk, <-chan error) {
	return e.stream(ctx, synthRequest{
		Op:         "cross_lingual",
		Text:       text,
		PromptPCM:  base64.StdEncoding.EncodeToString(audio.Float32ToPCM16(prompt.Samples)),
		PromptRate: prompt.SampleRate,
		Stream:     opts.Streaming,
		Speed:      opts.Speed,
	})
}

func (e *execEngine) SynthesizeInstructed(ctx context.Context, text, voice, instructText string, opts Options) (<-chan Chunk, <-chan error) {
	return e.stream(ctx, synthRequest{Op: "instruct", Text: text, Voice: voice, InstructText: instructText, Stream: opts.Streaming, Speed: opts.Speed})
}

func (e *execEngine) stream(ctx context.Context, payload synthRequest) (<-chan Chunk, <-chan error) {
	e.mu.Lock()
	chunks := make(chan Chunk)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		defer e.mu.Unlock()

		payload.SampleRate = e.sampleRate
		payload.Seed = e.takeSeed()
		data, err := json.Marshal(payload)
		if err != nil {
			errs <- err
			return
		}

		base := e.cmd[0]
		args := append([]string{}, e.cmd[1:]...)
		cmd := exec.CommandContext(ctx, base, args...)
		stdin, err := cmd.StdinPipe()
		if err != nil {
			errs <- err
			return
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			errs <- err
			return
		}
		if err := cmd.Start(); err != nil {
			errs <- err
			return
		}

		if _, err := stdin.Write(data); err != nil {
			errs <- err
			cmd.Wait()
			return
		}
		stdin.Close()

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), maxResponseLine)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var resp synthResponse
			if err := json.Unmarshal(line, &resp); err != nil {
				errs <- err
				cmd.Wait()
				return
			}
			pcm, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
			if err != nil {
				errs <- err
				cmd.Wait()
				return
			}
			select {
			case chunks <- Chunk{Samples: audio.PCM16ToFloat32(pcm)}:
			case <-ctx.Done():
				errs <- ctx.Err()
				cmd.Wait()
				return
			}
		}
		if err := cmd.Wait(); err != nil {
			errs <- err
			return
		}
		if scanErr := scanner.Err(); scanErr != nil {
			errs <- scanErr
		}
	}()
	return chunks, errs
}

func (e *execEngine) LoadWaveform(path string, targetRate int) (audio.Waveform, error) {
	return audio.Load(path, targetRate)
}

func (e *execEngine) WaveformInfo(path string) (audio.Info, error) {
	return audio.Probe(path)
}
