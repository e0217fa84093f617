package script

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/podforge/podforge/internal/audio"
	"github.com/podforge/podforge/internal/tts"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSynth returns a fixed-length tone per call and records every request.
type fakeSynth struct {
	rate     int
	seconds  float64
	requests []tts.Request
	failAt   int // 1-based call index that errors; 0 disables
}

func (f *fakeSynth) Synthesize(_ context.Context, req tts.Request) (audio.Clip, error) {
	f.requests = append(f.requests, req)
	if f.failAt > 0 && len(f.requests) == f.failAt {
		return audio.Clip{}, errors.New("engine exploded")
	}
	frames := int(f.seconds * float64(f.rate))
	samples := make([]float64, frames)
	for i := range samples {
		samples[i] = 0.3 * math.Sin(2*math.Pi*200*float64(i)/float64(f.rate))
	}
	return audio.Clip{Samples: samples, SampleRate: f.rate, Channels: 1}, nil
}

// mapResolver resolves voice ids from a fixed map.
type mapResolver map[string]string

func (m mapResolver) Path(id string) string { return m[id] }

const twoTurnScript = "<|Lily|>: Hello there\n\n<|Marshall|>: Indeed it is"

func TestRenderSuccess(t *testing.T) {
	synth := &fakeSynth{rate: 24000, seconds: 1}
	voices := mapResolver{"alice": "/voices/alice.wav", "default": ""}
	r := NewRenderer(synth, voices, 24000, newLogger())

	res := r.Render(context.Background(), twoTurnScript, map[string]string{
		"Lily":     "alice",
		"Marshall": "default",
	})
	if !res.OK {
		t.Fatalf("expected success, got: %s", res.Message)
	}
	if len(synth.requests) != 2 {
		t.Fatalf("expected 2 synth calls, got %d", len(synth.requests))
	}
	if synth.requests[0].ReferenceWAV != "/voices/alice.wav" {
		t.Fatalf("expected resolved reference path, got %q", synth.requests[0].ReferenceWAV)
	}
	if synth.requests[1].ReferenceWAV != "" {
		t.Fatalf("default voice must resolve to empty reference, got %q", synth.requests[1].ReferenceWAV)
	}

	// Two 1s turns, each followed by a 0.5s pause.
	if got, want := res.Audio.Duration(), 3.0; math.Abs(got-want) > 1e-6 {
		t.Fatalf("expected %vs of audio, got %vs", want, got)
	}
	if res.Audio.SampleRate != 24000 {
		t.Fatalf("unexpected sample rate %d", res.Audio.SampleRate)
	}
	if res.Turns != 2 {
		t.Fatalf("expected 2 turns, got %d", res.Turns)
	}
	if want := "Hello there\nLily\n\nIndeed it is\nMarshall"; res.Tokens != want {
		t.Fatalf("tokens mismatch:\n got %q\nwant %q", res.Tokens, want)
	}
}

func TestRenderResamplesSynthOutput(t *testing.T) {
	synth := &fakeSynth{rate: 48000, seconds: 1}
	r := NewRenderer(synth, mapResolver{"default": ""}, 24000, newLogger())

	res := r.Render(context.Background(), "<|Lily|>: Hello", map[string]string{"Lily": "default"})
	if !res.OK {
		t.Fatalf("expected success, got: %s", res.Message)
	}
	if res.Audio.SampleRate != 24000 {
		t.Fatalf("expected 24000 Hz output, got %d", res.Audio.SampleRate)
	}
	if got := res.Audio.Duration(); math.Abs(got-1.5) > 0.01 {
		t.Fatalf("expected ~1.5s after resampling, got %vs", got)
	}
}

func TestRenderUnknownSpeakerDegradesBeforeSynthesis(t *testing.T) {
	synth := &fakeSynth{rate: 24000, seconds: 1}
	r := NewRenderer(synth, mapResolver{}, 24000, newLogger())

	res := r.Render(context.Background(), twoTurnScript, map[string]string{"Lily": "default"})
	if res.OK {
		t.Fatal("expected failure for unmapped speaker")
	}
	var unk *UnknownSpeakerError
	if !errors.As(res.Err, &unk) {
		t.Fatalf("expected UnknownSpeakerError, got %v", res.Err)
	}
	if len(synth.requests) != 0 {
		t.Fatalf("no synthesis may happen for an invalid script, got %d calls", len(synth.requests))
	}
	if got := res.Audio.Duration(); math.Abs(got-3.0) > 1e-6 {
		t.Fatalf("expected 3s placeholder, got %vs", got)
	}
	if res.Message == "" {
		t.Fatal("expected a user-facing message")
	}
}

func TestRenderNoTurnsDegrades(t *testing.T) {
	r := NewRenderer(&fakeSynth{rate: 24000, seconds: 1}, mapResolver{}, 24000, newLogger())

	res := r.Render(context.Background(), "just prose, no dialogue", nil)
	if res.OK || !errors.Is(res.Err, ErrNoTurnsFound) {
		t.Fatalf("expected ErrNoTurnsFound, got ok=%v err=%v", res.OK, res.Err)
	}
	if got := res.Audio.Duration(); math.Abs(got-3.0) > 1e-6 {
		t.Fatalf("expected 3s placeholder, got %vs", got)
	}
}

func TestRenderSynthFailureDegrades(t *testing.T) {
	synth := &fakeSynth{rate: 24000, seconds: 1, failAt: 2}
	r := NewRenderer(synth, mapResolver{"default": ""}, 24000, newLogger())

	res := r.Render(context.Background(), twoTurnScript, map[string]string{
		"Lily":     "default",
		"Marshall": "default",
	})
	if res.OK {
		t.Fatal("expected failure when synthesis errors mid-script")
	}
	if got := res.Audio.Duration(); math.Abs(got-3.0) > 1e-6 {
		t.Fatalf("expected 3s placeholder instead of partial audio, got %vs", got)
	}
	if res.Message == "" || res.Err == nil {
		t.Fatalf("expected message and error, got %+v", res)
	}
}
