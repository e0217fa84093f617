package voice

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/podforge/podforge/internal/audio"
)

// Ingestion failures not covered by the audio package.
var (
	ErrInvalidName         = errors.New("invalid voice name")
	ErrVerificationFailed  = errors.New("saved audio verification failed")
	ErrRegistryWriteFailed = errors.New("voice registry write failed")
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// readBack is swapped in tests to fault-inject the reload verification.
var readBack = audio.ReadWAV

// Result is the outcome of one ingestion run. Err carries the failure kind
// for classification; Message and Trace are what a user sees. Validation
// failures never propagate as errors past the pipeline.
type Result struct {
	OK      bool        `json:"ok"`
	Message string      `json:"message"`
	Trace   audio.Trace `json:"trace"`
	Err     error       `json:"-"`
}

// Ingestor runs the upload-to-registry pipeline for voice samples.
type Ingestor struct {
	reg  *Registry
	opts audio.Options
	log  *slog.Logger

	// Progress, when set, receives each trace note as it is produced,
	// keyed by the requested voice name.
	Progress func(name string, n audio.Note)
}

func NewIngestor(reg *Registry, opts audio.Options, log *slog.Logger) *Ingestor {
	return &Ingestor{
		reg:  reg,
		opts: opts,
		log:  log.With(slog.String("component", "voice-ingest")),
	}
}

// Ingest validates and normalizes the audio at rawPath and registers it
// under the requested name. The first failing step short-circuits with the
// trace accumulated so far. The pipeline never leaves an orphaned audio file
// without a registry entry, nor a registry entry whose file is missing.
func (g *Ingestor) Ingest(rawPath, requestedName string) (res Result) {
	var (
		trace     audio.Trace
		voicePath string
	)
	note := func(tag, format string, args ...any) {
		n := audio.Note{Tag: tag, Message: fmt.Sprintf(format, args...)}
		trace = append(trace, n)
		if g.Progress != nil {
			g.Progress(requestedName, n)
		}
	}
	fail := func(err error, message string) Result {
		g.log.Warn("voice ingestion failed",
			slog.String("name", requestedName), slogError(err))
		return Result{OK: false, Message: message, Trace: trace, Err: err}
	}

	// The pipeline sits right under an upload surface; anything unexpected
	// is recovered into a failed result after cleaning up partial files.
	defer func() {
		if rec := recover(); rec != nil {
			removePartial(voicePath, g.log)
			err := fmt.Errorf("unexpected ingestion failure: %v", rec)
			res = fail(err, err.Error())
		}
	}()

	if rawPath == "" {
		return fail(fmt.Errorf("%w: no file supplied", audio.ErrUnreadableFile), "Audio file not found")
	}
	if _, err := os.Stat(rawPath); err != nil {
		return fail(fmt.Errorf("%w: %v", audio.ErrUnreadableFile, err), "Audio file not found")
	}

	name := strings.TrimSpace(requestedName)
	if name == "" {
		return fail(fmt.Errorf("%w: empty", ErrInvalidName), "Voice name cannot be empty")
	}
	if !namePattern.MatchString(name) {
		return fail(fmt.Errorf("%w: %q", ErrInvalidName, name),
			"Voice name can only contain letters, numbers, underscores, and hyphens")
	}
	if g.reg.Has(name) {
		return fail(fmt.Errorf("%w: %q", ErrDuplicateID, name), "Voice name already exists")
	}

	note("load", "Loading audio file...")
	raw, err := audio.ReadWAV(rawPath)
	if err != nil {
		return fail(err, fmt.Sprintf("Failed to load audio file: %v", err))
	}

	processed, stats, normTrace, err := audio.Normalize(raw, g.opts)
	for _, n := range normTrace {
		note(n.Tag, "%s", n.Message)
	}
	if err != nil {
		return fail(err, err.Error())
	}

	note("save", "Saving processed audio...")
	voicePath = filepath.Join(g.reg.Dir(), name+".wav")
	if err := audio.WriteWAV(voicePath, processed); err != nil {
		removePartial(voicePath, g.log)
		return fail(err, fmt.Sprintf("Failed to save audio file: %v", err))
	}
	note("save", "Audio saved to %s", filepath.Base(voicePath))

	// Reload and compare shape: a defense against the encoder silently
	// truncating the waveform.
	reloaded, err := readBack(voicePath)
	if err != nil || reloaded.SampleRate != processed.SampleRate || reloaded.Frames() != processed.Frames() {
		removePartial(voicePath, g.log)
		if err == nil {
			err = fmt.Errorf("%w: got %d frames at %dHz, wrote %d frames at %dHz",
				ErrVerificationFailed, reloaded.Frames(), reloaded.SampleRate,
				processed.Frames(), processed.SampleRate)
		} else {
			err = fmt.Errorf("%w: %v", ErrVerificationFailed, err)
		}
		return fail(err, fmt.Sprintf("Audio file verification failed: %v", err))
	}
	note("verify", "Verified saved audio file")

	note("register", "Updating voice registry...")
	rec := Record{
		ID:         name,
		Name:       name,
		Type:       TypeCloned,
		Path:       voicePath,
		Stats:      &stats,
		Created:    time.Now().UTC(),
		SourceFile: filepath.Base(rawPath),
	}
	if err := g.reg.Add(rec); err != nil {
		removePartial(voicePath, g.log)
		if !errors.Is(err, ErrDuplicateID) {
			err = fmt.Errorf("%w: %v", ErrRegistryWriteFailed, err)
		}
		return fail(err, fmt.Sprintf("Failed to update voice registry: %v", err))
	}
	note("register", "Voice registry updated")

	msg := fmt.Sprintf(
		"Voice '%s' created successfully!\nDuration: %.1fs\nSample Rate: %dkHz\nChannels: %d\nPeak Level: %.1fdB\nRMS Level: %.1fdB",
		name, stats.DurationSeconds, stats.SampleRate/1000, stats.Channels,
		toDB(stats.PeakAmplitude), toDB(stats.RMSLevel))
	note("done", "Voice processing complete!")

	g.log.Info("voice ingested",
		slog.String("name", name),
		slog.Float64("duration_seconds", stats.DurationSeconds),
		slog.String("path", voicePath))

	return Result{OK: true, Message: msg, Trace: trace}
}

func toDB(level float64) float64 {
	if level <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(level)
}

// removePartial deletes a half-written voice file. Failure here is logged
// and swallowed so it never masks the primary outcome.
func removePartial(path string, log *slog.Logger) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn("failed to remove partial voice file",
			slog.String("path", path), slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
