// voxgate-client submits a synthesis request to a running voxgate daemon
// and writes the streamed audio to a WAV file.
package main

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/voxlabs/voxgate/internal/audio"
	"github.com/voxlabs/voxgate/internal/protocol"
)

type streamRecord struct {
	Type       string   `json:"type"`
	RequestID  string   `json:"request_id"`
	Seed       int64    `json:"seed"`
	Warning    string   `json:"warning"`
	Advisories []string `json:"advisories"`
	Sequence   int      `json:"sequence"`
	SampleRate int      `json:"sample_rate"`
	PCM        string   `json:"pcm"`
	Chunks     int      `json:"chunks"`
	Error      string   `json:"error"`
}

func main() {
	var (
		server   string
		mode     string
		text     string
		voice    string
		prompt   string
		promptTx string
		instruct string
		seed     int64
		stream   bool
		speed    float64
		outPath  string
	)

	flag.StringVar(&server, "server", "http://localhost:8080", "voxgate server URL")
	flag.StringVar(&mode, "mode", "pretrained_voice", "synthesis mode: pretrained_voice, rapid_cloning, cross_lingual, instruct_control")
	flag.StringVar(&text, "text", "", "text to synthesize")
	flag.StringVar(&voice, "voice", "", "pre-trained voice name")
	flag.StringVar(&prompt, "prompt", "", "path to prompt audio file (server-side path)")
	flag.StringVar(&promptTx, "prompt-text", "", "transcript of the prompt audio")
	flag.StringVar(&instruct, "instruct", "", "natural-language delivery instruction")
	flag.Int64Var(&seed, "seed", 0, "generation seed, 0 draws a fresh one")
	flag.BoolVar(&stream, "stream", false, "request streaming generation")
	flag.Float64Var(&speed, "speed", 1.0, "playback speed in [0.5, 2.0]")
	flag.StringVar(&outPath, "out", "out.wav", "output WAV path")
	flag.Parse()

	if text == "" {
		fmt.Fprintln(os.Stderr, "error: -text is required")
		os.Exit(2)
	}

	req := protocol.SynthRequest{
		Mode:         mode,
		Text:         text,
		Voice:        voice,
		PromptUpload: prompt,
		PromptText:   promptTx,
		InstructText: instruct,
		Seed:         seed,
		Streaming:    stream,
		Speed:        speed,
	}
	if err := run(server, req, outPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(server string, req protocol.SynthRequest, outPath string) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	resp, err := http.Post(server+"/api/v1/synthesize", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		if errBody.Error != "" {
			return fmt.Errorf("server rejected request: %s", errBody.Error)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}

	var (
		samples    []float32
		sampleRate int
	)
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 32*1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec streamRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return fmt.Errorf("decode stream line: %w", err)
		}
		switch rec.Type {
		case "status":
			fmt.Printf("request %s seed %d\n", rec.RequestID, rec.Seed)
			if rec.Warning != "" {
				fmt.Printf("warning: %s\n", rec.Warning)
			}
			for _, adv := range rec.Advisories {
				fmt.Printf("note: %s\n", adv)
			}
		case "chunk":
			pcm, err := base64.StdEncoding.DecodeString(rec.PCM)
			if err != nil {
				return fmt.Errorf("decode chunk %d: %w", rec.Sequence, err)
			}
			samples = append(samples, audio.PCM16ToFloat32(pcm)...)
			sampleRate = rec.SampleRate
		case "error":
			return fmt.Errorf("generation failed after %d chunks: %s", rec.Chunks, rec.Error)
		case "done":
			fmt.Printf("received %d chunks\n", rec.Chunks)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	if sampleRate == 0 {
		return fmt.Errorf("no audio received")
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer f.Close()

	if err := audio.EncodeWAV(f, audio.Waveform{Samples: samples, SampleRate: sampleRate}); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d samples at %d Hz)\n", outPath, len(samples), sampleRate)
	return nil
}
