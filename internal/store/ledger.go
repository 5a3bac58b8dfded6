package store

import (
	"context"
	"database/sql"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Artifact is one recorded generation output.
type Artifact struct {
	ID          int64
	Tool        string
	FileName    string
	FilePath    string
	MIMEType    string
	SizeBytes   int64
	VoiceID     string
	CreatedUnix int64
}

// Ledger records generated artifacts in a local sqlite database so they can
// be listed later. Recording is best effort: delivery never fails because the
// ledger is unavailable, so callers log and continue on error.
type Ledger struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

func NewLedger(path string) *Ledger {
	return &Ledger{path: path}
}

func (l *Ledger) Init(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", l.path)
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL;`); err != nil {
		_ = db.Close()
		return err
	}

	schema := `
CREATE TABLE IF NOT EXISTS artifacts (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  tool TEXT NOT NULL,
  file_name TEXT NOT NULL,
  file_path TEXT NOT NULL DEFAULT '',
  mime_type TEXT NOT NULL DEFAULT '',
  size_bytes INTEGER NOT NULL DEFAULT 0,
  voice_id TEXT NOT NULL DEFAULT '',
  created_unix INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_artifacts_created ON artifacts(created_unix);
CREATE INDEX IF NOT EXISTS idx_artifacts_tool ON artifacts(tool);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return err
	}

	l.db = db
	return nil
}

func (l *Ledger) ensureDB(ctx context.Context) (*sql.DB, error) {
	l.mu.Lock()
	db := l.db
	l.mu.Unlock()
	if db != nil {
		return db, nil
	}
	if err := l.Init(ctx); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db, nil
}

// Record inserts one artifact row. CreatedUnix defaults to now when zero.
func (l *Ledger) Record(ctx context.Context, a Artifact) error {
	db, err := l.ensureDB(ctx)
	if err != nil {
		return err
	}

	created := a.CreatedUnix
	if created == 0 {
		created = time.Now().Unix()
	}
	_, err = db.ExecContext(
		ctx,
		`INSERT INTO artifacts(tool, file_name, file_path, mime_type, size_bytes, voice_id, created_unix)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		a.Tool,
		a.FileName,
		a.FilePath,
		a.MIMEType,
		a.SizeBytes,
		a.VoiceID,
		created,
	)
	return err
}

// Recent returns the newest artifacts, optionally filtered by tool name.
func (l *Ledger) Recent(ctx context.Context, tool string, limit int) ([]Artifact, error) {
	db, err := l.ensureDB(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	var rows *sql.Rows
	if tool != "" {
		rows, err = db.QueryContext(
			ctx,
			`SELECT id, tool, file_name, file_path, mime_type, size_bytes, voice_id, created_unix
			 FROM artifacts WHERE tool = ? ORDER BY created_unix DESC, id DESC LIMIT ?`,
			tool, limit,
		)
	} else {
		rows, err = db.QueryContext(
			ctx,
			`SELECT id, tool, file_name, file_path, mime_type, size_bytes, voice_id, created_unix
			 FROM artifacts ORDER BY created_unix DESC, id DESC LIMIT ?`,
			limit,
		)
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []Artifact
	for rows.Next() {
		var a Artifact
		if err := rows.Scan(&a.ID, &a.Tool, &a.FileName, &a.FilePath, &a.MIMEType, &a.SizeBytes, &a.VoiceID, &a.CreatedUnix); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
}
