package audio

import (
	"errors"
	"fmt"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrUnreadableFile marks files that cannot be decoded as WAV audio.
var ErrUnreadableFile = errors.New("unreadable audio file")

// ReadWAV decodes a WAV file into a float64 clip. Integer PCM of any bit
// depth is scaled to [-1, 1].
func ReadWAV(path string) (Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return Clip{}, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return Clip{}, fmt.Errorf("%w: not a valid wav file", ErrUnreadableFile)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return Clip{}, fmt.Errorf("%w: empty wav file", ErrUnreadableFile)
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(dec.BitDepth)
	}
	if bitDepth <= 0 || bitDepth > 32 {
		return Clip{}, fmt.Errorf("%w: unsupported bit depth %d", ErrUnreadableFile, bitDepth)
	}
	samples := make([]float64, len(buf.Data))
	if bitDepth == 8 {
		// 8-bit WAV PCM is unsigned, centered on 128.
		for i, v := range buf.Data {
			samples[i] = (float64(v) - 128) / 128
		}
	} else {
		scale := float64(int64(1) << (bitDepth - 1))
		for i, v := range buf.Data {
			samples[i] = float64(v) / scale
		}
	}

	return Clip{
		Samples:    samples,
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
	}, nil
}

// WriteWAV encodes the clip as 16-bit PCM. Canonical voice references are
// mono 24 kHz, but the encoder honours whatever the clip carries.
func WriteWAV(path string, clip Clip) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav file: %w", err)
	}

	data := make([]int, len(clip.Samples))
	for i, s := range clip.Samples {
		clamped := math.Max(-1, math.Min(1, s))
		data[i] = int(math.Round(clamped * 32767))
	}

	channels := clip.Channels
	if channels == 0 {
		channels = 1
	}

	enc := wav.NewEncoder(f, clip.SampleRate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Data:           data,
		Format:         &goaudio.Format{SampleRate: clip.SampleRate, NumChannels: channels},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		enc.Close()
		f.Close()
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finalize wav: %w", err)
	}
	return f.Close()
}
