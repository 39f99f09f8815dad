package audio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"
)

// Load reads a WAV or MP3 file into a mono waveform. Multi-channel input is
// downmixed by averaging. When targetRate is positive and differs from the
// file's rate the result is resampled.
func Load(path string, targetRate int) (Waveform, error) {
	var (
		w   Waveform
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		w, err = decodeMP3(path)
	default:
		w, err = decodeWAV(path)
	}
	if err != nil {
		return Waveform{}, err
	}
	if targetRate > 0 && w.SampleRate != targetRate {
		w = Resample(w, targetRate)
	}
	return w, nil
}

// Probe reports the sample rate and channel count of an audio file without
// decoding its samples.
func Probe(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	if strings.ToLower(filepath.Ext(path)) == ".mp3" {
		dec, err := mp3.NewDecoder(f)
		if err != nil {
			return Info{}, fmt.Errorf("read mp3 header: %w", err)
		}
		return Info{SampleRate: dec.SampleRate(), Channels: 2}, nil
	}

	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if dec.SampleRate == 0 {
		return Info{}, fmt.Errorf("not a usable wav file: %s", path)
	}
	return Info{SampleRate: int(dec.SampleRate), Channels: int(dec.NumChans)}, nil
}

func decodeWAV(path string) (Waveform, error) {
	f, err := os.Open(path)
	if err != nil {
		return Waveform{}, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Waveform{}, fmt.Errorf("decode wav: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 {
		return Waveform{}, fmt.Errorf("wav missing format: %s", path)
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = int(dec.BitDepth)
	}
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float32(int(1) << (bitDepth - 1))

	channels := buf.Format.NumChannels
	frames := len(buf.Data) / channels
	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += float32(buf.Data[i*channels+ch]) / scale
		}
		samples[i] = sum / float32(channels)
	}
	return Waveform{Samples: samples, SampleRate: buf.Format.SampleRate}, nil
}

func decodeMP3(path string) (Waveform, error) {
	f, err := os.Open(path)
	if err != nil {
		return Waveform{}, fmt.Errorf("open mp3: %w", err)
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return Waveform{}, fmt.Errorf("decode mp3: %w", err)
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return Waveform{}, fmt.Errorf("read mp3 pcm: %w", err)
	}

	// go-mp3 emits 16-bit little-endian stereo.
	stereo := PCM16ToFloat32(raw)
	frames := len(stereo) / 2
	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		samples[i] = (stereo[i*2] + stereo[i*2+1]) / 2
	}
	return Waveform{Samples: samples, SampleRate: dec.SampleRate()}, nil
}

// Resample converts the waveform to targetRate using linear interpolation,
// which is adequate for conditioning audio that the engine re-encodes anyway.
func Resample(w Waveform, targetRate int) Waveform {
	if targetRate <= 0 || w.SampleRate == targetRate || len(w.Samples) == 0 {
		rate := w.SampleRate
		if targetRate > 0 {
			rate = targetRate
		}
		return Waveform{Samples: append([]float32(nil), w.Samples...), SampleRate: rate}
	}
	ratio := float64(targetRate) / float64(w.SampleRate)
	n := int(float64(len(w.Samples)) * ratio)
	if n == 0 {
		n = 1
	}
	out := make([]float32, n)
	for i := range out {
		pos := float64(i) / ratio
		j := int(pos)
		if j >= len(w.Samples)-1 {
			out[i] = w.Samples[len(w.Samples)-1]
			continue
		}
		frac := pos - float64(j)
		out[i] = float32((1-frac)*float64(w.Samples[j]) + frac*float64(w.Samples[j+1]))
	}
	return Waveform{Samples: out, SampleRate: targetRate}
}

// EncodeWAV writes the waveform as 16-bit mono PCM.
func EncodeWAV(f io.WriteSeeker, w Waveform) error {
	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: 1, SampleRate: w.SampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, len(w.Samples)),
	}
	for i, s := range w.Samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		buf.Data[i] = int(s * 32767)
	}

	enc := wav.NewEncoder(f, w.SampleRate, 16, 1, 1)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}
