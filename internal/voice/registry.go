// Package voice maintains the registry of voice references and the pipeline
// that ingests new voice samples into it.
package voice

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/podforge/podforge/internal/audio"
)

// Registry operation failures.
var (
	ErrDuplicateID     = errors.New("voice id already exists")
	ErrNotFound        = errors.New("voice not found")
	ErrProtectedRecord = errors.New("default voice cannot be deleted")
)

// Voice record types.
const (
	TypeDefault = "default"
	TypeCloned  = "cloned"
)

// DefaultID is the identifier of the built-in voice. It has no stored audio;
// the TTS engine falls back to its own voice when no reference is supplied.
const DefaultID = "default"

const storeFile = "voices.json"

// Record is one registry entry. Records are immutable once written; the
// registry only ever adds or removes whole records.
type Record struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Type       string       `json:"type"`
	Path       string       `json:"path,omitempty"`
	Stats      *audio.Stats `json:"stats,omitempty"`
	Created    time.Time    `json:"created,omitempty"`
	SourceFile string       `json:"source_file,omitempty"`
}

// Summary is the listing view of a record.
type Summary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type store struct {
	Voices map[string]Record `json:"voices"`
}

// Registry is the durable id-to-record mapping backed by a single JSON
// document under the voices directory. Every mutation rewrites the document
// before returning; a mutex serializes writers so the filesystem and the
// metadata never disagree about which cloned voices exist.
type Registry struct {
	dir  string
	path string
	log  *slog.Logger

	mu     sync.Mutex
	voices map[string]Record
}

// Open loads the registry from dir, creating the directory and an initial
// store holding only the default record when none exists yet.
func Open(dir string, log *slog.Logger) (*Registry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create voices dir: %w", err)
	}

	r := &Registry{
		dir:  dir,
		path: filepath.Join(dir, storeFile),
		log:  log.With(slog.String("component", "voice-registry")),
	}

	data, err := os.ReadFile(r.path)
	switch {
	case err == nil:
		var st store
		if err := json.Unmarshal(data, &st); err != nil {
			return nil, fmt.Errorf("parse voice store: %w", err)
		}
		if st.Voices == nil {
			st.Voices = map[string]Record{}
		}
		r.voices = st.Voices
		if _, ok := r.voices[DefaultID]; !ok {
			r.voices[DefaultID] = defaultRecord()
			if err := r.persist(); err != nil {
				return nil, err
			}
		}
	case os.IsNotExist(err):
		r.voices = map[string]Record{DefaultID: defaultRecord()}
		if err := r.persist(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("read voice store: %w", err)
	}

	return r, nil
}

func defaultRecord() Record {
	return Record{ID: DefaultID, Name: "Default Voice", Type: TypeDefault}
}

// Dir returns the directory holding the store and the voice waveforms.
func (r *Registry) Dir() string { return r.dir }

// List returns summaries with the default voice first and the rest sorted
// by id.
func (r *Registry) List() []Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Summary, 0, len(r.voices))
	if rec, ok := r.voices[DefaultID]; ok {
		out = append(out, Summary{ID: rec.ID, Name: rec.Name, Type: rec.Type})
	}
	rest := make([]Summary, 0, len(r.voices))
	for id, rec := range r.voices {
		if id == DefaultID {
			continue
		}
		rest = append(rest, Summary{ID: rec.ID, Name: rec.Name, Type: rec.Type})
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i].ID < rest[j].ID })
	return append(out, rest...)
}

// Path returns the reference waveform location for a voice, or empty for
// unknown ids and for the default voice.
func (r *Registry) Path(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.voices[id].Path
}

// Has reports whether an id is present.
func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.voices[id]
	return ok
}

// Get returns the full record for an id.
func (r *Registry) Get(id string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.voices[id]
	return rec, ok
}

// Add inserts a record and persists the store. A colliding id fails with
// ErrDuplicateID without mutating anything; a persist failure rolls the
// in-memory insert back.
func (r *Registry) Add(rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.voices[rec.ID]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateID, rec.ID)
	}
	r.voices[rec.ID] = rec
	if err := r.persist(); err != nil {
		delete(r.voices, rec.ID)
		return err
	}
	return nil
}

// Remove deletes a cloned voice and its backing file. The file removal is
// best-effort: a failure there is logged and swallowed, it never masks the
// metadata removal. A persist failure restores the in-memory record; since
// the backing file was already deleted by then, the restored record can
// point at a missing file until the remove is retried. Removal is the one
// operation allowed to leave that state: the alternative, persisting first,
// would orphan the file instead when the process dies mid-remove.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.voices[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if rec.Type == TypeDefault {
		return fmt.Errorf("%w: %q", ErrProtectedRecord, id)
	}

	if rec.Path != "" {
		if err := os.Remove(rec.Path); err != nil && !os.IsNotExist(err) {
			r.log.Warn("failed to remove voice audio file",
				slog.String("voice", id), slogError(err))
		}
	}

	delete(r.voices, id)
	if err := r.persist(); err != nil {
		r.voices[id] = rec
		return err
	}
	return nil
}

// persist rewrites the whole store atomically: marshal, write to a temp file
// in the same directory, rename over the old document. Callers hold r.mu.
func (r *Registry) persist() error {
	data, err := json.MarshalIndent(store{Voices: r.voices}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode voice store: %w", err)
	}

	tmp, err := os.CreateTemp(r.dir, storeFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("write voice store: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write voice store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write voice store: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace voice store: %w", err)
	}
	return nil
}
