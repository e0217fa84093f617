package audio

import (
	"errors"
	"math"
	"testing"
)

func tone(seconds, freq, amp float64, rate, channels int) Clip {
	frames := int(seconds * float64(rate))
	samples := make([]float64, frames*channels)
	for i := 0; i < frames; i++ {
		v := amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
		for c := 0; c < channels; c++ {
			samples[i*channels+c] = v
		}
	}
	return Clip{Samples: samples, SampleRate: rate, Channels: channels}
}

func TestNormalizeRejectsEmpty(t *testing.T) {
	_, _, trace, err := Normalize(Clip{SampleRate: 24000, Channels: 1}, DefaultOptions())
	if !errors.Is(err, ErrCorruptAudio) {
		t.Fatalf("expected ErrCorruptAudio, got %v", err)
	}
	if len(trace) == 0 {
		t.Fatal("expected a partial trace on failure")
	}
}

func TestNormalizeRejectsNonFinite(t *testing.T) {
	clip := tone(6, 440, 0.5, 24000, 1)
	clip.Samples[100] = math.NaN()
	if _, _, _, err := Normalize(clip, DefaultOptions()); !errors.Is(err, ErrCorruptAudio) {
		t.Fatalf("expected ErrCorruptAudio for NaN, got %v", err)
	}

	clip = tone(6, 440, 0.5, 24000, 1)
	clip.Samples[100] = math.Inf(1)
	if _, _, _, err := Normalize(clip, DefaultOptions()); !errors.Is(err, ErrCorruptAudio) {
		t.Fatalf("expected ErrCorruptAudio for Inf, got %v", err)
	}
}

func TestNormalizeRejectsTooShort(t *testing.T) {
	_, _, _, err := Normalize(tone(2, 440, 0.5, 24000, 1), DefaultOptions())
	if !errors.Is(err, ErrTooShort) {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}
}

func TestNormalizeRejectsTooLong(t *testing.T) {
	_, _, _, err := Normalize(tone(301, 440, 0.5, 1000, 1), Options{MinSeconds: 5, MaxSeconds: 300, TargetRate: 24000})
	if !errors.Is(err, ErrTooLong) {
		t.Fatalf("expected ErrTooLong, got %v", err)
	}
}

func TestNormalizeRejectsTooQuiet(t *testing.T) {
	_, _, _, err := Normalize(tone(6, 440, 0.005, 24000, 1), DefaultOptions())
	if !errors.Is(err, ErrTooQuiet) {
		t.Fatalf("expected ErrTooQuiet, got %v", err)
	}
}

func TestNormalizeAcceptsHotSignal(t *testing.T) {
	// Amplitudes above 1.0 are corrected by peak normalization, not rejected.
	out, stats, _, err := Normalize(tone(6, 440, 1.8, 24000, 1), DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p := out.Peak(); math.Abs(p-1.0) > 1e-9 {
		t.Fatalf("expected peak 1.0 after normalization, got %v", p)
	}
	if stats.PeakAmplitude > 1.0+1e-9 {
		t.Fatalf("expected stats peak <= 1.0, got %v", stats.PeakAmplitude)
	}
}

func TestNormalizeDownmixesStereo(t *testing.T) {
	out, stats, _, err := Normalize(tone(6, 440, 0.5, 24000, 2), DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Channels != 1 || stats.Channels != 1 {
		t.Fatalf("expected mono output, got %d channels", out.Channels)
	}
}

func TestNormalizeResamples(t *testing.T) {
	out, stats, _, err := Normalize(tone(6, 440, 0.5, 48000, 1), DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.SampleRate != 24000 || stats.SampleRate != 24000 {
		t.Fatalf("expected 24000 Hz output, got %d", out.SampleRate)
	}
	if math.Abs(stats.DurationSeconds-6) > 0.1 {
		t.Fatalf("expected ~6s after resampling, got %v", stats.DurationSeconds)
	}
}

func TestNormalizePeakNormalizes(t *testing.T) {
	out, stats, _, err := Normalize(tone(6, 440, 0.3, 24000, 1), DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p := out.Peak(); math.Abs(p-1.0) > 1e-9 {
		t.Fatalf("expected peak 1.0, got %v", p)
	}
	if stats.RMSLevel <= 0 || stats.RMSLevel > 1 {
		t.Fatalf("expected rms in (0, 1], got %v", stats.RMSLevel)
	}
}

func TestNormalizeTrimsEdgeSilence(t *testing.T) {
	rate := 24000
	clip := Concat(
		Silence(1, rate),
		tone(5, 440, 0.5, rate, 1),
		Silence(1, rate),
	)
	out, stats, _, err := Normalize(clip, DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Trim resolution is one 1024-sample block.
	if stats.DurationSeconds < 4.9 || stats.DurationSeconds > 5.2 {
		t.Fatalf("expected ~5s after trimming, got %v", stats.DurationSeconds)
	}
	if out.Frames() >= clip.Frames() {
		t.Fatal("expected trimmed output to be shorter than input")
	}
}

func TestTrimSilenceAllSilentKeepsSignal(t *testing.T) {
	samples := make([]float64, 10*trimBlockSize)
	trimmed, _, _, found := trimSilence(samples)
	if found {
		t.Fatal("expected no non-silent frames in all-zero signal")
	}
	if len(trimmed) != len(samples) {
		t.Fatalf("expected unmodified signal, got %d of %d samples", len(trimmed), len(samples))
	}
}

func TestTrimSilencePartialTrailingBlock(t *testing.T) {
	// 10.5 blocks; the trailing partial block carries signal and must be kept.
	samples := make([]float64, 10*trimBlockSize+trimBlockSize/2)
	for i := 9 * trimBlockSize; i < len(samples); i++ {
		samples[i] = 0.5
	}
	trimmed, start, end, found := trimSilence(samples)
	if !found {
		t.Fatal("expected non-silent frames")
	}
	if start != 9*trimBlockSize {
		t.Fatalf("expected trim to start at block 9, got sample %d", start)
	}
	if end != len(samples) {
		t.Fatalf("expected trim to keep the partial trailing block, got end %d", end)
	}
	if len(trimmed) != len(samples)-start {
		t.Fatalf("unexpected trimmed length %d", len(trimmed))
	}
}

func TestNormalizeDefaultsUnsetOptions(t *testing.T) {
	out, stats, _, err := Normalize(tone(6, 440, 0.5, 24000, 1), Options{TargetRate: 24000})
	if err != nil {
		t.Fatalf("unset duration bounds must fall back to defaults, got %v", err)
	}
	if out.SampleRate != 24000 || stats.Channels != 1 {
		t.Fatalf("unexpected output: %d Hz, %d channels", out.SampleRate, stats.Channels)
	}

	if _, _, _, err := Normalize(tone(2, 440, 0.5, 24000, 1), Options{TargetRate: 24000}); !errors.Is(err, ErrTooShort) {
		t.Fatalf("default minimum must still apply, got %v", err)
	}

	out, _, _, err = Normalize(tone(6, 440, 0.5, 48000, 1), Options{MinSeconds: 5, MaxSeconds: 300})
	if err != nil {
		t.Fatalf("unset target rate must fall back to default, got %v", err)
	}
	if out.SampleRate != 24000 {
		t.Fatalf("expected default 24000 Hz, got %d", out.SampleRate)
	}
}

func TestResampleRatio(t *testing.T) {
	in := tone(2, 440, 0.5, 48000, 1).Samples
	out := Resample(in, 48000, 24000)
	if got, want := len(out), len(in)/2; got != want {
		t.Fatalf("expected %d samples, got %d", want, got)
	}

	up := Resample(out, 24000, 48000)
	if math.Abs(float64(len(up)-len(in))) > 2 {
		t.Fatalf("round trip length drifted: %d vs %d", len(up), len(in))
	}
}

func TestResamplePreservesLevel(t *testing.T) {
	in := tone(2, 440, 0.5, 48000, 1)
	out := Clip{Samples: Resample(in.Samples, 48000, 24000), SampleRate: 24000, Channels: 1}
	if math.Abs(out.RMS()-in.RMS()) > 0.02 {
		t.Fatalf("rms drifted from %v to %v", in.RMS(), out.RMS())
	}
}
