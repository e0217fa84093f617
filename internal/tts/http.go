package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/podforge/podforge/internal/audio"
)

type httpSynth struct {
	endpoint   string
	sampleRate int
	timeout    time.Duration
	client     *http.Client
}

// NewHTTPSynth talks to an engine serving POST /synthesize with the same
// JSON request and response shapes as the exec mode.
func NewHTTPSynth(endpoint string, sampleRate int, timeout time.Duration) Synthesizer {
	return &httpSynth{
		endpoint:   strings.TrimRight(endpoint, "/"),
		sampleRate: sampleRate,
		timeout:    timeout,
		client:     http.DefaultClient,
	}
}

func (h *httpSynth) Synthesize(ctx context.Context, req Request) (audio.Clip, error) {
	ctx, cancel := withTimeout(ctx, h.timeout)
	defer cancel()

	payload, err := json.Marshal(engineRequest{
		Text:         req.Text,
		ReferenceWAV: req.ReferenceWAV,
		SampleRate:   h.sampleRate,
	})
	if err != nil {
		return audio.Clip{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint+"/synthesize", bytes.NewReader(payload))
	if err != nil {
		return audio.Clip{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("tts engine request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return audio.Clip{}, fmt.Errorf("tts engine returned status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("read tts engine response: %w", err)
	}
	var engineResp engineResponse
	if err := json.Unmarshal(body, &engineResp); err != nil {
		return audio.Clip{}, fmt.Errorf("decode tts engine response: %w", err)
	}
	return clipFromResponse(engineResp)
}
