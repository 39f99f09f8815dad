package audio

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func writeTestWAV(t *testing.T, w Waveform) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	defer f.Close()
	if err := EncodeWAV(f, w); err != nil {
		t.Fatalf("encode wav: %v", err)
	}
	return path
}

func sineWave(rate, n int, amp float32) Waveform {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = amp * float32(math.Sin(2*math.Pi*float64(i)/64))
	}
	return Waveform{Samples: samples, SampleRate: rate}
}

func TestEncodeLoadWAV(t *testing.T) {
	src := sineWave(16000, 1600, 0.4)
	path := writeTestWAV(t, src)

	got, err := Load(path, 0)
	if err != nil {
		t.Fatalf("load wav: %v", err)
	}
	if got.SampleRate != 16000 {
		t.Fatalf("expected 16000 Hz, got %d", got.SampleRate)
	}
	if len(got.Samples) != len(src.Samples) {
		t.Fatalf("expected %d samples, got %d", len(src.Samples), len(got.Samples))
	}
	for i := range src.Samples {
		if math.Abs(float64(got.Samples[i]-src.Samples[i])) > 1e-3 {
			t.Fatalf("sample %d: wrote %f, read %f", i, src.Samples[i], got.Samples[i])
		}
	}
}

func TestProbeWAV(t *testing.T) {
	path := writeTestWAV(t, sineWave(22050, 441, 0.2))

	info, err := Probe(path)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if info.SampleRate != 22050 {
		t.Fatalf("expected 22050 Hz, got %d", info.SampleRate)
	}
	if info.Channels != 1 {
		t.Fatalf("expected mono, got %d channels", info.Channels)
	}
}

func TestProbeMissingFile(t *testing.T) {
	if _, err := Probe(filepath.Join(t.TempDir(), "absent.wav")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadResamples(t *testing.T) {
	path := writeTestWAV(t, sineWave(16000, 1600, 0.4))

	got, err := Load(path, 22050)
	if err != nil {
		t.Fatalf("load wav: %v", err)
	}
	if got.SampleRate != 22050 {
		t.Fatalf("expected 22050 Hz, got %d", got.SampleRate)
	}
	want := 1600 * 22050 / 16000
	if len(got.Samples) < want-2 || len(got.Samples) > want+2 {
		t.Fatalf("expected about %d samples, got %d", want, len(got.Samples))
	}
}

func TestResampleSameRate(t *testing.T) {
	src := sineWave(16000, 320, 0.5)
	got := Resample(src, 16000)
	if len(got.Samples) != len(src.Samples) {
		t.Fatalf("expected identical length, got %d", len(got.Samples))
	}
	for i := range src.Samples {
		if got.Samples[i] != src.Samples[i] {
			t.Fatalf("sample %d changed", i)
		}
	}
}
