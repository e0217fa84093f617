package voice

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/podforge/podforge/internal/audio"
)

func testOptions() audio.Options {
	return audio.Options{MinSeconds: 5, MaxSeconds: 300, TargetRate: 24000}
}

func writeTone(t *testing.T, path string, seconds float64, rate, channels int) {
	t.Helper()
	frames := int(seconds * float64(rate))
	samples := make([]float64, frames*channels)
	for i := 0; i < frames; i++ {
		v := 0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(rate))
		for c := 0; c < channels; c++ {
			samples[i*channels+c] = v
		}
	}
	clip := audio.Clip{Samples: samples, SampleRate: rate, Channels: channels}
	if err := audio.WriteWAV(path, clip); err != nil {
		t.Fatalf("write tone: %v", err)
	}
}

func newIngestor(t *testing.T) (*Ingestor, *Registry, string) {
	t.Helper()
	dir := t.TempDir()
	reg, err := Open(dir, newLogger())
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	return NewIngestor(reg, testOptions(), newLogger()), reg, dir
}

func TestIngestSuccess(t *testing.T) {
	ing, reg, dir := newIngestor(t)

	upload := filepath.Join(t.TempDir(), "alice-sample.wav")
	writeTone(t, upload, 6, 44100, 2)

	res := ing.Ingest(upload, "alice")
	if !res.OK {
		t.Fatalf("expected success, got: %s", res.Message)
	}
	if res.Err != nil {
		t.Fatalf("expected nil Err on success, got %v", res.Err)
	}
	if len(res.Trace) == 0 {
		t.Fatal("expected a progress trace")
	}

	rec, ok := reg.Get("alice")
	if !ok {
		t.Fatal("expected registry record")
	}
	if rec.Type != TypeCloned {
		t.Fatalf("expected cloned type, got %q", rec.Type)
	}
	if rec.SourceFile != "alice-sample.wav" {
		t.Fatalf("expected provenance basename, got %q", rec.SourceFile)
	}
	if rec.Path != filepath.Join(dir, "alice.wav") {
		t.Fatalf("unexpected voice path %q", rec.Path)
	}

	stored, err := audio.ReadWAV(rec.Path)
	if err != nil {
		t.Fatalf("read stored voice: %v", err)
	}
	if stored.Channels != 1 || stored.SampleRate != 24000 {
		t.Fatalf("expected mono 24000 Hz, got %d channels at %d Hz", stored.Channels, stored.SampleRate)
	}
	if p := stored.Peak(); math.Abs(p-1.0) > 1e-3 {
		t.Fatalf("expected peak-normalized waveform, got peak %v", p)
	}
	if rec.Stats == nil || rec.Stats.Channels != 1 || rec.Stats.SampleRate != 24000 {
		t.Fatalf("unexpected stats: %+v", rec.Stats)
	}
}

func TestIngestTooShortLeavesNothingBehind(t *testing.T) {
	ing, reg, dir := newIngestor(t)

	upload := filepath.Join(t.TempDir(), "short.wav")
	writeTone(t, upload, 2, 24000, 1)

	res := ing.Ingest(upload, "shorty")
	if res.OK {
		t.Fatal("expected failure for 2s sample")
	}
	if !errors.Is(res.Err, audio.ErrTooShort) {
		t.Fatalf("expected ErrTooShort, got %v", res.Err)
	}
	if reg.Has("shorty") {
		t.Fatal("registry must be unchanged on failure")
	}
	if _, err := os.Stat(filepath.Join(dir, "shorty.wav")); !os.IsNotExist(err) {
		t.Fatalf("no audio file may exist after failure, stat err: %v", err)
	}
}

func TestIngestTooLong(t *testing.T) {
	ing, reg, _ := newIngestor(t)

	upload := filepath.Join(t.TempDir(), "long.wav")
	writeTone(t, upload, 301, 1000, 1)

	res := ing.Ingest(upload, "chatterbox")
	if res.OK || !errors.Is(res.Err, audio.ErrTooLong) {
		t.Fatalf("expected ErrTooLong, got ok=%v err=%v", res.OK, res.Err)
	}
	if reg.Has("chatterbox") {
		t.Fatal("registry must be unchanged on failure")
	}
}

func TestIngestDuplicateName(t *testing.T) {
	ing, reg, _ := newIngestor(t)

	upload := filepath.Join(t.TempDir(), "sample.wav")
	writeTone(t, upload, 6, 24000, 1)

	if res := ing.Ingest(upload, "alice"); !res.OK {
		t.Fatalf("first ingest failed: %s", res.Message)
	}
	res := ing.Ingest(upload, "alice")
	if res.OK || !errors.Is(res.Err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got ok=%v err=%v", res.OK, res.Err)
	}

	count := 0
	for _, v := range reg.List() {
		if v.ID == "alice" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one record for name, got %d", count)
	}
}

func TestIngestInvalidName(t *testing.T) {
	ing, _, _ := newIngestor(t)

	upload := filepath.Join(t.TempDir(), "sample.wav")
	writeTone(t, upload, 6, 24000, 1)

	for _, name := range []string{"", "   ", "bad name", "na/me", "p@t"} {
		res := ing.Ingest(upload, name)
		if res.OK || !errors.Is(res.Err, ErrInvalidName) {
			t.Fatalf("name %q: expected ErrInvalidName, got ok=%v err=%v", name, res.OK, res.Err)
		}
	}
}

func TestIngestTrimsSurroundingName(t *testing.T) {
	ing, reg, _ := newIngestor(t)

	upload := filepath.Join(t.TempDir(), "sample.wav")
	writeTone(t, upload, 6, 24000, 1)

	if res := ing.Ingest(upload, "  alice  "); !res.OK {
		t.Fatalf("expected success, got: %s", res.Message)
	}
	if !reg.Has("alice") {
		t.Fatal("expected trimmed name as id")
	}
}

func TestIngestMissingFile(t *testing.T) {
	ing, _, _ := newIngestor(t)

	res := ing.Ingest(filepath.Join(t.TempDir(), "missing.wav"), "ghost")
	if res.OK || !errors.Is(res.Err, audio.ErrUnreadableFile) {
		t.Fatalf("expected ErrUnreadableFile, got ok=%v err=%v", res.OK, res.Err)
	}
}

func TestIngestUnreadableFile(t *testing.T) {
	ing, _, _ := newIngestor(t)

	upload := filepath.Join(t.TempDir(), "noise.wav")
	if err := os.WriteFile(upload, []byte("not audio at all"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	res := ing.Ingest(upload, "noise")
	if res.OK || !errors.Is(res.Err, audio.ErrUnreadableFile) {
		t.Fatalf("expected ErrUnreadableFile, got ok=%v err=%v", res.OK, res.Err)
	}
}

func TestIngestRetryAfterFailureSucceeds(t *testing.T) {
	ing, reg, _ := newIngestor(t)

	tmp := t.TempDir()
	short := filepath.Join(tmp, "short.wav")
	writeTone(t, short, 2, 24000, 1)
	good := filepath.Join(tmp, "good.wav")
	writeTone(t, good, 6, 24000, 1)

	if res := ing.Ingest(short, "alice"); res.OK {
		t.Fatal("expected first ingest to fail")
	}
	if res := ing.Ingest(good, "alice"); !res.OK {
		t.Fatalf("expected retry with valid audio to succeed, got: %s", res.Message)
	}
	if !reg.Has("alice") {
		t.Fatal("expected record after retry")
	}
}

func TestIngestVerificationFailureCleansUp(t *testing.T) {
	ing, reg, dir := newIngestor(t)

	orig := readBack
	readBack = func(path string) (audio.Clip, error) {
		clip, err := audio.ReadWAV(path)
		if err != nil {
			return clip, err
		}
		clip.Samples = clip.Samples[:len(clip.Samples)/2]
		return clip, nil
	}
	defer func() { readBack = orig }()

	upload := filepath.Join(t.TempDir(), "sample.wav")
	writeTone(t, upload, 6, 24000, 1)

	res := ing.Ingest(upload, "alice")
	if res.OK || !errors.Is(res.Err, ErrVerificationFailed) {
		t.Fatalf("expected ErrVerificationFailed, got ok=%v err=%v", res.OK, res.Err)
	}
	if reg.Has("alice") {
		t.Fatal("registry must be unchanged on verification failure")
	}
	if _, err := os.Stat(filepath.Join(dir, "alice.wav")); !os.IsNotExist(err) {
		t.Fatalf("partial audio file must be deleted, stat err: %v", err)
	}
}

func TestIngestRegistryPersistFailureCleansUp(t *testing.T) {
	ing, reg, dir := newIngestor(t)

	upload := filepath.Join(t.TempDir(), "sample.wav")
	writeTone(t, upload, 6, 24000, 1)

	// Rename cannot replace a directory, so blocking the store path makes
	// the registry persist fail after the audio file is written.
	storePath := filepath.Join(dir, "voices.json")
	if err := os.Remove(storePath); err != nil {
		t.Fatalf("remove store: %v", err)
	}
	if err := os.Mkdir(storePath, 0o755); err != nil {
		t.Fatalf("block store path: %v", err)
	}

	res := ing.Ingest(upload, "alice")
	if res.OK || !errors.Is(res.Err, ErrRegistryWriteFailed) {
		t.Fatalf("expected ErrRegistryWriteFailed, got ok=%v err=%v", res.OK, res.Err)
	}
	if reg.Has("alice") {
		t.Fatal("in-memory record must be rolled back")
	}
	if _, err := os.Stat(filepath.Join(dir, "alice.wav")); !os.IsNotExist(err) {
		t.Fatalf("written audio must be deleted, stat err: %v", err)
	}
}

func TestIngestEmitsProgress(t *testing.T) {
	ing, _, _ := newIngestor(t)

	var names []string
	ing.Progress = func(name string, _ audio.Note) {
		names = append(names, name)
	}

	upload := filepath.Join(t.TempDir(), "sample.wav")
	writeTone(t, upload, 6, 24000, 1)

	res := ing.Ingest(upload, "alice")
	if !res.OK {
		t.Fatalf("expected success, got: %s", res.Message)
	}
	if len(names) != len(res.Trace) {
		t.Fatalf("expected one progress callback per note: %d vs %d", len(names), len(res.Trace))
	}
	for _, n := range names {
		if n != "alice" {
			t.Fatalf("unexpected progress name %q", n)
		}
	}
}
