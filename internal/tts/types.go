// Package tts abstracts the external text-to-speech engine. The engine is an
// opaque collaborator: text plus an optional voice reference in, waveform out.
package tts

import (
	"context"
	"fmt"
	"time"

	"github.com/podforge/podforge/internal/audio"
	"github.com/podforge/podforge/internal/config"
)

// Request asks the engine to speak one utterance. ReferenceWAV, when set,
// points at a normalized voice reference used to clone the speaker's timbre;
// when empty the engine uses its built-in voice.
type Request struct {
	Text         string
	ReferenceWAV string
}

// Synthesizer is the contract for producing speech audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (audio.Clip, error)
}

// New builds a synthesizer from config.
func New(cfg config.TTSConfig) (Synthesizer, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	switch cfg.Mode {
	case "mock":
		return NewMockSynth(cfg.SampleRate), nil
	case "exec":
		return NewExecSynth(cfg.Command, cfg.SampleRate, timeout)
	case "http":
		return NewHTTPSynth(cfg.Endpoint, cfg.SampleRate, timeout), nil
	default:
		return nil, fmt.Errorf("unknown tts mode %q", cfg.Mode)
	}
}

// withTimeout bounds one engine call; a zero timeout leaves ctx untouched.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
