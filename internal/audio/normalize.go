package audio

import (
	"errors"
	"fmt"
	"math"
)

// Validation failures for voice sample uploads.
var (
	ErrCorruptAudio = errors.New("corrupt audio")
	ErrTooShort     = errors.New("audio too short")
	ErrTooLong      = errors.New("audio too long")
	ErrTooQuiet     = errors.New("audio level too low")
)

// Policy constants for voice reference processing. The duration bounds are
// policy, not physical limits; silence trimming analyses the signal in
// non-overlapping blocks.
const (
	minPeakAmplitude = 0.01
	trimBlockSize    = 1024
	trimThreshold    = 0.01
)

// Note is one human-readable entry in the ingestion progress trace. The
// trace feeds progress reporting only, never control flow.
type Note struct {
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// Trace is the ordered progress trace accumulated while processing a sample.
type Trace []Note

func (t *Trace) add(tag, format string, args ...any) {
	*t = append(*t, Note{Tag: tag, Message: fmt.Sprintf(format, args...)})
}

// Stats describes a processed voice reference waveform.
type Stats struct {
	DurationSeconds float64 `json:"duration_seconds"`
	SampleRate      int     `json:"sample_rate"`
	Channels        int     `json:"channels"`
	PeakAmplitude   float64 `json:"peak_amplitude"`
	RMSLevel        float64 `json:"rms_level"`
}

// Options bound what the normalizer accepts and the rate it converges on.
type Options struct {
	MinSeconds float64
	MaxSeconds float64
	TargetRate int
}

// DefaultOptions returns the stock voice-reference policy: 5s to 300s,
// 24 kHz output.
func DefaultOptions() Options {
	return Options{MinSeconds: 5, MaxSeconds: 300, TargetRate: 24000}
}

// Normalize validates a raw clip and converts it into the canonical voice
// reference form: mono, resampled to the target rate, peak-normalized to 1.0,
// with leading and trailing silence trimmed. The returned trace covers every
// step taken, including the one that failed.
func Normalize(clip Clip, opts Options) (Clip, Stats, Trace, error) {
	var trace Trace

	// Unset options fall back field by field so a partial Options value
	// never rejects everything.
	def := DefaultOptions()
	if opts.MinSeconds <= 0 {
		opts.MinSeconds = def.MinSeconds
	}
	if opts.MaxSeconds <= 0 {
		opts.MaxSeconds = def.MaxSeconds
	}
	if opts.TargetRate <= 0 {
		opts.TargetRate = def.TargetRate
	}

	trace.add("validate", "Validating audio sample...")
	if len(clip.Samples) == 0 || clip.SampleRate <= 0 {
		return Clip{}, Stats{}, trace, fmt.Errorf("%w: audio is empty", ErrCorruptAudio)
	}
	for _, s := range clip.Samples {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return Clip{}, Stats{}, trace, fmt.Errorf("%w: audio contains non-finite samples", ErrCorruptAudio)
		}
	}

	duration := clip.Duration()
	if duration < opts.MinSeconds {
		return Clip{}, Stats{}, trace, fmt.Errorf("%w: %.1fs, need at least %.0f seconds", ErrTooShort, duration, opts.MinSeconds)
	}
	if duration > opts.MaxSeconds {
		return Clip{}, Stats{}, trace, fmt.Errorf("%w: %.1fs, need at most %.0f seconds", ErrTooLong, duration, opts.MaxSeconds)
	}
	trace.add("validate", "Loaded %.1f seconds of audio", duration)
	trace.add("validate", "Sample rate: %dHz, Channels: %d", clip.SampleRate, clip.Channels)

	mono := clip
	if clip.Channels > 1 {
		trace.add("downmix", "Converting %d channels to mono...", clip.Channels)
		mono = downmix(clip)
	}

	peak := mono.Peak()
	if peak < minPeakAmplitude {
		return Clip{}, Stats{}, trace, fmt.Errorf("%w: peak amplitude %.4f", ErrTooQuiet, peak)
	}
	if peak > 1.0 {
		trace.add("levels", "Audio levels high (peak %.2f), will normalize", peak)
	}

	if mono.SampleRate != opts.TargetRate {
		trace.add("resample", "Resampling from %dHz to %dHz...", mono.SampleRate, opts.TargetRate)
		mono.Samples = Resample(mono.Samples, mono.SampleRate, opts.TargetRate)
		mono.SampleRate = opts.TargetRate
	}

	trace.add("normalize", "Peak-normalizing audio...")
	peak = mono.Peak()
	if peak > 0 {
		for i := range mono.Samples {
			mono.Samples[i] /= peak
		}
	}

	trace.add("trim", "Trimming silence...")
	trimmed, start, end, found := trimSilence(mono.Samples)
	if found {
		total := float64(len(mono.Samples))
		trace.add("trim", "Trimmed %.1f%% from start, %.1f%% from end",
			float64(start)/total*100, float64(len(mono.Samples)-end)/total*100)
		mono.Samples = trimmed
	} else {
		trace.add("trim", "No non-silent parts found, using full audio")
	}

	stats := Stats{
		DurationSeconds: mono.Duration(),
		SampleRate:      mono.SampleRate,
		Channels:        1,
		PeakAmplitude:   mono.Peak(),
		RMSLevel:        mono.RMS(),
	}
	return mono, stats, trace, nil
}

// downmix averages interleaved channels into a mono clip.
func downmix(clip Clip) Clip {
	frames := clip.Frames()
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		sum := 0.0
		for c := 0; c < clip.Channels; c++ {
			sum += clip.Samples[i*clip.Channels+c]
		}
		out[i] = sum / float64(clip.Channels)
	}
	return Clip{Samples: out, SampleRate: clip.SampleRate, Channels: 1}
}

// trimSilence computes per-block RMS energy over non-overlapping blocks of
// trimBlockSize samples (a trailing partial block counts too) and keeps the
// span from the first to the last block whose RMS exceeds trimThreshold of
// the maximum block RMS. found is false when every block is below threshold;
// callers keep the signal unmodified in that case.
func trimSilence(samples []float64) (trimmed []float64, start, end int, found bool) {
	if len(samples) == 0 {
		return samples, 0, 0, false
	}

	blocks := (len(samples) + trimBlockSize - 1) / trimBlockSize
	rms := make([]float64, blocks)
	maxRMS := 0.0
	for b := 0; b < blocks; b++ {
		lo := b * trimBlockSize
		hi := lo + trimBlockSize
		if hi > len(samples) {
			hi = len(samples)
		}
		sum := 0.0
		for _, s := range samples[lo:hi] {
			sum += s * s
		}
		rms[b] = math.Sqrt(sum / float64(hi-lo))
		if rms[b] > maxRMS {
			maxRMS = rms[b]
		}
	}

	threshold := trimThreshold * maxRMS
	first, last := -1, -1
	for b, v := range rms {
		if v > threshold {
			if first < 0 {
				first = b
			}
			last = b
		}
	}
	if first < 0 {
		return samples, 0, len(samples), false
	}

	start = first * trimBlockSize
	end = (last + 1) * trimBlockSize
	if end > len(samples) {
		end = len(samples)
	}
	return samples[start:end], start, end, true
}
