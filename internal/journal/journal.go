// Package journal records ingestion and render outcomes in a local SQLite
// database so operators can audit what the service did.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/podforge/podforge/internal/config"
)

// Entry kinds.
const (
	KindIngest = "ingest"
	KindRemove = "remove"
	KindRender = "render"
)

// Entry is one recorded operation.
type Entry struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Subject   string    `json:"subject"`
	OK        bool      `json:"ok"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Journal wraps the SQLite store. A Journal opened with an empty path is
// disabled: all methods are no-ops.
type Journal struct {
	db    *sql.DB
	cfg   config.JournalConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the journal according to config.
func Open(ctx context.Context, cfg config.JournalConfig, log *slog.Logger) (*Journal, error) {
	if cfg.Path == "" {
		return &Journal{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	j := &Journal{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := j.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if err := j.Prune(ctx); err != nil {
		log.Warn("journal prune on start failed", slogError(err))
	}

	return j, nil
}

func (j *Journal) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS operations (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    subject TEXT NOT NULL,
    ok INTEGER NOT NULL,
    message TEXT,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_operations_created ON operations(created_at);
`
	_, err := j.db.ExecContext(ctx, ddl)
	return err
}

// Record appends an entry. Disabled journals accept and drop everything.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if j.db == nil {
		return nil
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = j.clock().UTC()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO operations (id, kind, subject, ok, message, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Kind, e.Subject, boolToInt(e.OK), e.Message, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("record journal entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if j.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, kind, subject, ok, message, created_at FROM operations ORDER BY created_at DESC, id DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e  Entry
			ok int
		)
		if err := rows.Scan(&e.ID, &e.Kind, &e.Subject, &ok, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.OK = ok != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune drops entries older than the retention window.
func (j *Journal) Prune(ctx context.Context) error {
	if j.db == nil || j.cfg.RetentionDays <= 0 {
		return nil
	}
	cutoff := j.clock().UTC().AddDate(0, 0, -j.cfg.RetentionDays)
	_, err := j.db.ExecContext(ctx, `DELETE FROM operations WHERE created_at < ?`, cutoff)
	return err
}

// Close releases underlying resources.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
