// Package audio holds the waveform processing used to turn arbitrary voice
// sample uploads into canonical mono reference clips.
package audio

import "math"

// Clip is an in-memory waveform. Samples are interleaved when Channels > 1
// and always lie in [-1, 1] after decoding.
type Clip struct {
	Samples    []float64
	SampleRate int
	Channels   int
}

// Frames returns the number of per-channel sample frames.
func (c Clip) Frames() int {
	if c.Channels <= 1 {
		return len(c.Samples)
	}
	return len(c.Samples) / c.Channels
}

// Duration returns the clip length in seconds.
func (c Clip) Duration() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(c.Frames()) / float64(c.SampleRate)
}

// Peak returns the maximum absolute sample value.
func (c Clip) Peak() float64 {
	peak := 0.0
	for _, s := range c.Samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	return peak
}

// RMS returns the root-mean-square level across all samples.
func (c Clip) RMS() float64 {
	if len(c.Samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range c.Samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(c.Samples)))
}

// Silence returns a mono clip of zeros lasting the given number of seconds.
func Silence(seconds float64, sampleRate int) Clip {
	n := int(seconds * float64(sampleRate))
	if n < 0 {
		n = 0
	}
	return Clip{Samples: make([]float64, n), SampleRate: sampleRate, Channels: 1}
}

// Concat joins clips in order. All inputs must share the first clip's sample
// rate and channel count; callers resample beforehand.
func Concat(clips ...Clip) Clip {
	if len(clips) == 0 {
		return Clip{}
	}
	total := 0
	for _, c := range clips {
		total += len(c.Samples)
	}
	out := Clip{
		Samples:    make([]float64, 0, total),
		SampleRate: clips[0].SampleRate,
		Channels:   clips[0].Channels,
	}
	for _, c := range clips {
		out.Samples = append(out.Samples, c.Samples...)
	}
	return out
}
