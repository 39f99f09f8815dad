package audio

import "time"

// Waveform is a mono signal of float32 samples in [-1, 1] at a fixed rate.
type Waveform struct {
	Samples    []float32
	SampleRate int
}

// Info describes a decodable audio file without loading its samples.
type Info struct {
	SampleRate int
	Channels   int
}

// Duration reports the playback length of the waveform.
func (w Waveform) Duration() time.Duration {
	if w.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(w.Samples)) / float64(w.SampleRate) * float64(time.Second))
}

// Peak returns the largest absolute sample value.
func (w Waveform) Peak() float32 {
	var peak float32
	for _, s := range w.Samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}

// Clone returns a deep copy so callers can mutate samples safely.
func (w Waveform) Clone() Waveform {
	out := Waveform{SampleRate: w.SampleRate}
	if w.Samples != nil {
		out.Samples = append([]float32(nil), w.Samples...)
	}
	return out
}

// Silence returns a zero-valued waveform of the given duration in samples.
func Silence(sampleRate, samples int) Waveform {
	return Waveform{Samples: make([]float32, samples), SampleRate: sampleRate}
}
