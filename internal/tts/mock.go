package tts

import (
	"context"
	"math"

	"github.com/podforge/podforge/internal/audio"
)

type mockSynth struct {
	sampleRate int
}

// NewMockSynth returns a deterministic synthesizer for tests and local
// development: a 220 Hz tone whose duration scales with text length.
func NewMockSynth(sampleRate int) Synthesizer {
	return &mockSynth{sampleRate: sampleRate}
}

func (m *mockSynth) Synthesize(ctx context.Context, req Request) (audio.Clip, error) {
	if err := ctx.Err(); err != nil {
		return audio.Clip{}, err
	}

	seconds := 0.05 * float64(len([]rune(req.Text)))
	if seconds < 0.5 {
		seconds = 0.5
	}
	if seconds > 10 {
		seconds = 10
	}

	n := int(seconds * float64(m.sampleRate))
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*220*float64(i)/float64(m.sampleRate))
	}
	return audio.Clip{Samples: samples, SampleRate: m.sampleRate, Channels: 1}, nil
}
