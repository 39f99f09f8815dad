package audio

import "math"

// Default conditioning parameters for prompt audio.
const (
	DefaultTopDB       = 60.0
	DefaultFrameLength = 440
	DefaultHopLength   = 220
	DefaultPeakCeiling = 0.8
)

// Conditioner prepares a raw prompt waveform for the synthesis engine:
// boundary silence is trimmed, the peak is capped, and a fixed silence pad
// is appended.
type Conditioner struct {
	TopDB       float64
	FrameLength int
	HopLength   int
	PeakCeiling float32
	PadSamples  int
}

// NewConditioner returns a conditioner with the stock parameters. The pad
// length is 0.2 s worth of output-rate samples; the engine expects that
// count appended regardless of the prompt's own rate.
func NewConditioner(outputRate int) Conditioner {
	return Conditioner{
		TopDB:       DefaultTopDB,
		FrameLength: DefaultFrameLength,
		HopLength:   DefaultHopLength,
		PeakCeiling: DefaultPeakCeiling,
		PadSamples:  int(0.2 * float64(outputRate)),
	}
}

// Condition trims, rescales and pads the waveform. The input is never
// mutated; the result always owns fresh sample storage.
func (c Conditioner) Condition(w Waveform) Waveform {
	trimmed := c.Trim(w.Samples)

	var peak float32
	for _, s := range trimmed {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	if peak > c.PeakCeiling {
		scale := c.PeakCeiling / peak
		for i := range trimmed {
			trimmed[i] *= scale
		}
	}

	out := make([]float32, len(trimmed)+c.PadSamples)
	copy(out, trimmed)
	return Waveform{Samples: out, SampleRate: w.SampleRate}
}

// Trim removes leading and trailing regions whose frame energy sits more
// than TopDB below the loudest frame. Frames are FrameLength samples wide,
// centered every HopLength samples. The returned slice is a copy; an
// all-silent input yields an empty slice.
func (c Conditioner) Trim(samples []float32) []float32 {
	if len(samples) == 0 {
		return nil
	}

	rms := frameRMS(samples, c.FrameLength, c.HopLength)
	var ref float64
	for _, v := range rms {
		if v > ref {
			ref = v
		}
	}
	if ref == 0 {
		return []float32{}
	}

	first, last := -1, -1
	for i, v := range rms {
		db := 20 * math.Log10(v/ref)
		if db > -c.TopDB {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return []float32{}
	}

	start := first * c.HopLength
	end := (last + 1) * c.HopLength
	if end > len(samples) {
		end = len(samples)
	}
	if start > end {
		start = end
	}
	out := make([]float32, end-start)
	copy(out, samples[start:end])
	return out
}

// frameRMS computes per-frame root mean square energy with zero padding of
// half a frame on each side, so frame i is centered at sample i*hop.
func frameRMS(samples []float32, frameLen, hop int) []float64 {
	n := len(samples)
	pad := frameLen / 2
	numFrames := 1 + n/hop
	rms := make([]float64, numFrames)
	for f := 0; f < numFrames; f++ {
		start := f*hop - pad
		var sum float64
		for j := 0; j < frameLen; j++ {
			idx := start + j
			if idx < 0 || idx >= n {
				continue
			}
			v := float64(samples[idx])
			sum += v * v
		}
		rms[f] = math.Sqrt(sum / float64(frameLen))
	}
	return rms
}
