package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"

	"github.com/podforge/podforge/internal/audio"
)

type execSynth struct {
	cmd        []string
	sampleRate int
	timeout    time.Duration
	mu         sync.Mutex
}

type engineRequest struct {
	Text         string `json:"text"`
	ReferenceWAV string `json:"reference_wav,omitempty"`
	SampleRate   int    `json:"sample_rate"`
}

type engineResponse struct {
	PCMBase64  string `json:"pcm_base64"`
	SampleRate int    `json:"sample_rate"`
	Error      string `json:"error,omitempty"`
}

// NewExecSynth wraps an external engine process. The request is written to
// the process stdin as JSON and the response is read from stdout: base64
// little-endian float32 PCM plus the rate it was rendered at.
func NewExecSynth(command string, sampleRate int, timeout time.Duration) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	return &execSynth{cmd: args, sampleRate: sampleRate, timeout: timeout}, nil
}

func (e *execSynth) Synthesize(ctx context.Context, req Request) (audio.Clip, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, cancel := withTimeout(ctx, e.timeout)
	defer cancel()

	payload, err := json.Marshal(engineRequest{
		Text:         req.Text,
		ReferenceWAV: req.ReferenceWAV,
		SampleRate:   e.sampleRate,
	})
	if err != nil {
		return audio.Clip{}, err
	}

	cmd := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		return audio.Clip{}, fmt.Errorf("tts engine: %w", err)
	}

	var resp engineResponse
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &resp); err != nil {
		return audio.Clip{}, fmt.Errorf("decode tts engine response: %w", err)
	}
	return clipFromResponse(resp)
}

func clipFromResponse(resp engineResponse) (audio.Clip, error) {
	if resp.Error != "" {
		return audio.Clip{}, fmt.Errorf("tts engine: %s", resp.Error)
	}
	pcm, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("decode tts pcm: %w", err)
	}
	if len(pcm)%4 != 0 {
		return audio.Clip{}, fmt.Errorf("tts pcm not float32-aligned: %d bytes", len(pcm))
	}
	if resp.SampleRate <= 0 {
		return audio.Clip{}, fmt.Errorf("tts engine returned sample rate %d", resp.SampleRate)
	}

	samples := make([]float64, len(pcm)/4)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(pcm[i*4:])
		samples[i] = float64(math.Float32frombits(bits))
	}
	return audio.Clip{Samples: samples, SampleRate: resp.SampleRate, Channels: 1}, nil
}
