package script

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/podforge/podforge/internal/audio"
	"github.com/podforge/podforge/internal/tts"
)

// Seconds of silence inserted after every turn, and the length of the
// placeholder clip returned when rendering fails.
const (
	turnPauseSeconds   = 0.5
	placeholderSeconds = 3
)

// VoiceResolver maps a voice id to its reference waveform path. An empty
// path means "no cloning, use the engine's built-in voice".
type VoiceResolver interface {
	Path(id string) string
}

// RenderResult is what comes back from a render run. This is the last stage
// before playback, so failures degrade into a silence placeholder plus a
// message instead of propagating: Audio is always playable. Err carries the
// failure kind for callers that classify.
type RenderResult struct {
	Audio   audio.Clip
	Tokens  string
	Turns   int
	OK      bool
	Message string
	Err     error
}

// Renderer turns a dialogue script into one continuous waveform.
type Renderer struct {
	synth      tts.Synthesizer
	voices     VoiceResolver
	sampleRate int
	log        *slog.Logger
}

func NewRenderer(synth tts.Synthesizer, voices VoiceResolver, sampleRate int, log *slog.Logger) *Renderer {
	return &Renderer{
		synth:      synth,
		voices:     voices,
		sampleRate: sampleRate,
		log:        log.With(slog.String("component", "renderer")),
	}
}

// Render parses scriptText, resolves each speaker through speakerVoices, and
// synthesizes the turns in order with a fixed pause after each one. Every
// speaker is validated before any synthesis happens; an invalid script never
// produces partial audio.
func (r *Renderer) Render(ctx context.Context, scriptText string, speakerVoices map[string]string) RenderResult {
	turns, err := ParseTurns(scriptText)
	if err != nil {
		return r.degrade(err)
	}
	if err := validateSpeakers(turns, speakerVoices); err != nil {
		return r.degrade(err)
	}

	r.log.Info("rendering script", slog.Int("turns", len(turns)))

	segments := make([]audio.Clip, 0, len(turns)*2)
	tokens := make([]string, 0, len(turns))
	for i, turn := range turns {
		ref := r.voices.Path(speakerVoices[turn.Speaker])

		clip, err := r.synth.Synthesize(ctx, tts.Request{Text: turn.Utterance, ReferenceWAV: ref})
		if err != nil {
			return r.degrade(fmt.Errorf("synthesize turn %d (%s): %w", i+1, turn.Speaker, err))
		}
		if clip.SampleRate != r.sampleRate {
			clip.Samples = audio.Resample(clip.Samples, clip.SampleRate, r.sampleRate)
			clip.SampleRate = r.sampleRate
		}

		segments = append(segments, clip, audio.Silence(turnPauseSeconds, r.sampleRate))
		tokens = append(tokens, turn.Utterance+"\n"+turn.Speaker)
	}

	return RenderResult{
		Audio:  audio.Concat(segments...),
		Tokens: strings.Join(tokens, "\n\n"),
		Turns:  len(turns),
		OK:     true,
	}
}

// degrade abandons any partial synthesis and hands back a short silence
// placeholder; render errors never propagate past this boundary.
func (r *Renderer) degrade(err error) RenderResult {
	msg := fmt.Sprintf("Error generating podcast audio: %v", err)
	r.log.Warn("render failed", slogError(err))
	return RenderResult{
		Audio:   audio.Silence(placeholderSeconds, r.sampleRate),
		OK:      false,
		Message: msg,
		Err:     err,
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
