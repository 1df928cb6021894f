// Package store keeps the registry's provenance in SQLite: every load pass
// with the entries and diagnostics it produced, and every run-state
// transition made through the CLI, so the active run survives between
// invocations even though the log itself only marks one entry.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/expreg-labs/expreg/internal/entry"
	"github.com/expreg-labs/expreg/internal/registry"
)

// timeLayout has a fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const ddl = `
CREATE TABLE IF NOT EXISTS loads (
	id             TEXT PRIMARY KEY,
	source         TEXT NOT NULL,
	schema_version TEXT NOT NULL,
	entries        INTEGER NOT NULL,
	diagnostics    INTEGER NOT NULL,
	loaded_at      TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
	load_id     TEXT NOT NULL REFERENCES loads(id),
	name        TEXT NOT NULL,
	section     TEXT NOT NULL,
	position    INTEGER NOT NULL,
	run_state   TEXT NOT NULL,
	valid       INTEGER NOT NULL,
	fields_json TEXT NOT NULL,
	PRIMARY KEY (load_id, name)
);
CREATE TABLE IF NOT EXISTS diagnostics (
	load_id  TEXT NOT NULL REFERENCES loads(id),
	entry    TEXT NOT NULL,
	kind     TEXT NOT NULL,
	severity TEXT NOT NULL,
	key      TEXT,
	line     INTEGER,
	message  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS transitions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	source     TEXT NOT NULL,
	name       TEXT NOT NULL,
	from_state TEXT NOT NULL,
	to_state   TEXT NOT NULL,
	at         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS transitions_source ON transitions(source, id);
`

// Load summarizes one recorded load pass.
type Load struct {
	ID            string    `json:"id"`
	Source        string    `json:"source"`
	SchemaVersion string    `json:"schema_version"`
	Entries       int       `json:"entries"`
	Diagnostics   int       `json:"diagnostics"`
	LoadedAt      time.Time `json:"loaded_at"`
}

// Snapshot is an entry as it was recorded by one load.
type Snapshot struct {
	LoadID   string            `json:"load_id"`
	Name     string            `json:"name"`
	Section  string            `json:"section"`
	RunState string            `json:"run_state"`
	Valid    bool              `json:"valid"`
	Fields   map[string]string `json:"fields"`
	LoadedAt time.Time         `json:"loaded_at"`
}

// Store is a SQLite-backed provenance log.
type Store struct {
	db  *sql.DB
	log *slog.Logger
	now func() time.Time
}

// Open opens (creating if needed) the database at path. ":memory:" gives a
// private in-memory database.
func Open(ctx context.Context, path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: an in-memory database is per connection, and the CLI
	// is the only writer.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	log.Debug("provenance store open", "path", path)
	return &Store{db: db, log: log, now: time.Now}, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// RecordLoad snapshots every entry and diagnostic of reg under a new load
// id and returns that id.
func (s *Store) RecordLoad(ctx context.Context, source string, reg *registry.Registry) (retID string, retErr error) {
	id := uuid.NewString()
	entries := reg.Entries()
	diags := reg.Diagnostics()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO loads (id, source, schema_version, entries, diagnostics, loaded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, source, reg.Schema().Version(), len(entries), len(diags), s.now().UTC().Format(timeLayout),
	); err != nil {
		return "", fmt.Errorf("insert load: %w", err)
	}

	for i, e := range entries {
		fields := make(map[string]string, len(e.Fields))
		for _, f := range e.Fields {
			fields[f.Key] = f.Value.Raw
		}
		payload, err := json.Marshal(fields)
		if err != nil {
			return "", fmt.Errorf("encode %s fields: %w", e.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entries (load_id, name, section, position, run_state, valid, fields_json) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, e.Name, e.SectionTitle(), i, e.State().String(), boolInt(e.Valid()), string(payload),
		); err != nil {
			return "", fmt.Errorf("insert entry %s: %w", e.Name, err)
		}
	}

	for _, d := range diags {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO diagnostics (load_id, entry, kind, severity, key, line, message) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, d.Entry, string(d.Kind), string(d.Severity), nullIfEmpty(d.Key), d.Line, d.Message,
		); err != nil {
			return "", fmt.Errorf("insert diagnostic: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	s.log.Info("load recorded", "id", id, "source", source, "entries", len(entries))
	return id, nil
}

// RecordTransition appends one run-state change for source.
func (s *Store) RecordTransition(ctx context.Context, source string, tr registry.Transition) error {
	at := tr.At
	if at.IsZero() {
		at = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transitions (source, name, from_state, to_state, at) VALUES (?, ?, ?, ?, ?)`,
		source, tr.Name, tr.From.String(), tr.To.String(), at.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("record transition %s: %w", tr, err)
	}
	return nil
}

// Transitions returns the recorded transitions for source, oldest first.
func (s *Store) Transitions(ctx context.Context, source string) ([]registry.Transition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, from_state, to_state, at FROM transitions WHERE source = ? ORDER BY id`, source)
	if err != nil {
		return nil, fmt.Errorf("select transitions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []registry.Transition
	for rows.Next() {
		var name, from, to, at string
		if err := rows.Scan(&name, &from, &to, &at); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		tr := registry.Transition{Name: name}
		if tr.From, err = entry.ParseRunState(from); err != nil {
			return nil, err
		}
		if tr.To, err = entry.ParseRunState(to); err != nil {
			return nil, err
		}
		if tr.At, err = time.Parse(timeLayout, at); err != nil {
			return nil, fmt.Errorf("parse transition time: %w", err)
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// Loads returns the most recent load passes for source, newest first.
func (s *Store) Loads(ctx context.Context, source string, limit int) ([]Load, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, schema_version, entries, diagnostics, loaded_at FROM loads
		 WHERE source = ? ORDER BY loaded_at DESC LIMIT ?`, source, limit)
	if err != nil {
		return nil, fmt.Errorf("select loads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Load
	for rows.Next() {
		var l Load
		var at string
		if err := rows.Scan(&l.ID, &l.Source, &l.SchemaVersion, &l.Entries, &l.Diagnostics, &at); err != nil {
			return nil, fmt.Errorf("scan load: %w", err)
		}
		if l.LoadedAt, err = time.Parse(timeLayout, at); err != nil {
			return nil, fmt.Errorf("parse load time: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// History returns every recorded snapshot of one entry, oldest first, so
// edits made to an entry after it first appeared are visible.
func (s *Store) History(ctx context.Context, source, name string) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.load_id, e.name, e.section, e.run_state, e.valid, e.fields_json, l.loaded_at
		 FROM entries e JOIN loads l ON l.id = e.load_id
		 WHERE l.source = ? AND e.name = ? ORDER BY l.loaded_at`, source, name)
	if err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		var valid int
		var fields, at string
		if err := rows.Scan(&snap.LoadID, &snap.Name, &snap.Section, &snap.RunState, &valid, &fields, &at); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap.Valid = valid != 0
		if err := json.Unmarshal([]byte(fields), &snap.Fields); err != nil {
			return nil, fmt.Errorf("decode fields: %w", err)
		}
		if snap.LoadedAt, err = time.Parse(timeLayout, at); err != nil {
			return nil, fmt.Errorf("parse load time: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
