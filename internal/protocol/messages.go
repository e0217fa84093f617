// Package protocol defines the bus message shapes podforge publishes.
package protocol

import "time"

// IngestProgress is one progress note from a running voice ingestion.
type IngestProgress struct {
	Voice     string    `json:"voice"`
	Tag       string    `json:"tag"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// IngestDone reports the final outcome of a voice ingestion.
type IngestDone struct {
	Voice     string    `json:"voice"`
	OK        bool      `json:"ok"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// RenderDone reports a completed episode render.
type RenderDone struct {
	Turns           int       `json:"turns"`
	DurationSeconds float64   `json:"duration_seconds"`
	OK              bool      `json:"ok"`
	Message         string    `json:"message,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

const (
	SubjectIngestProgress = "voice.ingest.progress"
	SubjectIngestDone     = "voice.ingest.done"
	SubjectRenderDone     = "episode.render.done"
)
