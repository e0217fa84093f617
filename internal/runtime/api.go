package runtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/podforge/podforge/internal/audio"
	"github.com/podforge/podforge/internal/journal"
	"github.com/podforge/podforge/internal/protocol"
	"github.com/podforge/podforge/internal/voice"
)

const maxUploadBytes = 256 << 20

func (r *Runtime) buildMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", r.handleHealth)
	mux.HandleFunc("GET /readyz", r.handleReady)
	mux.HandleFunc("GET /v1/voices", r.handleListVoices)
	mux.HandleFunc("POST /v1/voices", r.handleIngestVoice)
	mux.HandleFunc("DELETE /v1/voices/{id}", r.handleDeleteVoice)
	mux.HandleFunc("GET /v1/models", r.handleListModels)
	mux.HandleFunc("POST /v1/script", r.handleGenerateScript)
	mux.HandleFunc("POST /v1/episode", r.handleRenderEpisode)
	mux.HandleFunc("GET /v1/journal", r.handleJournal)
	return mux
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (r *Runtime) handleListVoices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"voices": r.registry.List()})
}

// handleIngestVoice accepts a multipart upload with a "name" field and a
// "sample" file and runs it through the ingestion pipeline. The response
// carries the outcome and the full progress trace either way.
func (r *Runtime) handleIngestVoice(w http.ResponseWriter, req *http.Request) {
	if err := req.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	name := req.FormValue("name")

	file, header, err := req.FormFile("sample")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing sample file")
		return
	}
	defer file.Close()

	// The pipeline wants a path; stage the upload under its original
	// basename so provenance survives into the record.
	dir, err := os.MkdirTemp("", "podforge-upload-*")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to stage upload")
		return
	}
	defer os.RemoveAll(dir)

	staged := filepath.Join(dir, filepath.Base(header.Filename))
	out, err := os.Create(staged)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to stage upload")
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		writeError(w, http.StatusInternalServerError, "failed to stage upload")
		return
	}
	out.Close()

	result := r.ingestor.Ingest(staged, name)

	outcome := "failure"
	status := http.StatusUnprocessableEntity
	if result.OK {
		outcome = "success"
		status = http.StatusCreated
	}
	r.ingestCounter.Add(req.Context(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	r.recordJournal(req.Context(), journal.Entry{
		Kind: journal.KindIngest, Subject: strings.TrimSpace(name), OK: result.OK, Message: result.Message,
	})
	r.busClient.PublishJSON(protocol.SubjectIngestDone, protocol.IngestDone{
		Voice: strings.TrimSpace(name), OK: result.OK, Message: result.Message, Timestamp: time.Now().UTC(),
	})

	writeJSON(w, status, result)
}

func (r *Runtime) handleDeleteVoice(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	err := r.registry.Remove(id)

	r.recordJournal(req.Context(), journal.Entry{
		Kind: journal.KindRemove, Subject: id, OK: err == nil,
		Message: messageOrEmpty(err),
	})

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
	case errors.Is(err, voice.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, voice.ErrProtectedRecord):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (r *Runtime) handleListModels(w http.ResponseWriter, req *http.Request) {
	models, err := r.generator.Models(req.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models})
}

type scriptRequest struct {
	Topic string `json:"topic"`
	Model string `json:"model"`
	HostA string `json:"host_a"`
	HostB string `json:"host_b"`
}

func (r *Runtime) handleGenerateScript(w http.ResponseWriter, req *http.Request) {
	var body scriptRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(body.Topic) == "" {
		writeError(w, http.StatusBadRequest, "topic must not be empty")
		return
	}
	if body.HostA == "" {
		body.HostA = "Lily"
	}
	if body.HostB == "" {
		body.HostB = "Marshall"
	}

	text, err := r.generator.Generate(req.Context(), body.Topic, body.Model, body.HostA, body.HostB)
	if err != nil {
		r.logger.Warn("script generation failed", slogError(err))
		writeError(w, http.StatusBadGateway, "failed to generate podcast script")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"script": text})
}

type episodeRequest struct {
	Script string            `json:"script"`
	Voices map[string]string `json:"voices"`
}

type episodeResponse struct {
	OK              bool    `json:"ok"`
	Message         string  `json:"message,omitempty"`
	Tokens          string  `json:"tokens,omitempty"`
	SampleRate      int     `json:"sample_rate"`
	DurationSeconds float64 `json:"duration_seconds"`
	WAVBase64       string  `json:"wav_base64"`
}

// handleRenderEpisode degrades the way the renderer does: a failed render
// still returns playable placeholder audio with the error message attached.
func (r *Runtime) handleRenderEpisode(w http.ResponseWriter, req *http.Request) {
	var body episodeRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result := r.renderer.Render(req.Context(), body.Script, body.Voices)

	outcome := "failure"
	if result.OK {
		outcome = "success"
	}
	r.renderCounter.Add(req.Context(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	r.recordJournal(req.Context(), journal.Entry{
		Kind: journal.KindRender, Subject: "episode", OK: result.OK, Message: result.Message,
	})
	r.busClient.PublishJSON(protocol.SubjectRenderDone, protocol.RenderDone{
		Turns:           result.Turns,
		DurationSeconds: result.Audio.Duration(),
		OK:              result.OK,
		Message:         result.Message,
		Timestamp:       time.Now().UTC(),
	})

	wavBytes, err := encodeWAV(result.Audio)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode episode audio")
		return
	}

	writeJSON(w, http.StatusOK, episodeResponse{
		OK:              result.OK,
		Message:         result.Message,
		Tokens:          result.Tokens,
		SampleRate:      result.Audio.SampleRate,
		DurationSeconds: result.Audio.Duration(),
		WAVBase64:       base64.StdEncoding.EncodeToString(wavBytes),
	})
}

func (r *Runtime) handleJournal(w http.ResponseWriter, req *http.Request) {
	limit := 50
	if v := req.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	entries, err := r.journal.Recent(req.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// encodeWAV round-trips through a temp file; the WAV encoder needs a seeker.
func encodeWAV(clip audio.Clip) ([]byte, error) {
	tmp, err := os.CreateTemp("", "podforge-episode-*.wav")
	if err != nil {
		return nil, err
	}
	path := tmp.Name()
	tmp.Close()
	defer os.Remove(path)

	if err := audio.WriteWAV(path, clip); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

func (r *Runtime) recordJournal(ctx context.Context, e journal.Entry) {
	if err := r.journal.Record(ctx, e); err != nil {
		r.logger.Warn("failed to record journal entry", slogError(err))
	}
}

func messageOrEmpty(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
