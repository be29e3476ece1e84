// Package sqlitestore implements the opportunity, cache and profile stores on
// a single SQLite file. It backs local CLI runs and store tests; embeddings
// are not stored.
package sqlitestore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/david/funding-scout/internal/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS opportunities (
  id                       TEXT PRIMARY KEY,
  external_id              TEXT NOT NULL,
  source                   TEXT NOT NULL,
  title                    TEXT NOT NULL DEFAULT '',
  program_name             TEXT NOT NULL DEFAULT '',
  sponsor                  TEXT NOT NULL DEFAULT '',
  description              TEXT NOT NULL DEFAULT '',
  source_url               TEXT NOT NULL,
  snippet                  TEXT NOT NULL DEFAULT '',
  provider                 TEXT NOT NULL DEFAULT '',
  content                  TEXT NOT NULL DEFAULT '',
  amount_min               REAL,
  amount_max               REAL,
  currency                 TEXT NOT NULL DEFAULT '',
  deadline                 TEXT,
  is_rolling               INTEGER NOT NULL DEFAULT 0 CHECK (is_rolling IN (0,1)),
  eligibility              TEXT NOT NULL DEFAULT '[]',
  eligibility_criteria     TEXT NOT NULL DEFAULT '[]',
  project_types            TEXT NOT NULL DEFAULT '[]',
  organization_types       TEXT NOT NULL DEFAULT '[]',
  source_type              TEXT NOT NULL DEFAULT '',
  is_non_monetary_resource INTEGER NOT NULL DEFAULT 0 CHECK (is_non_monetary_resource IN (0,1)),
  resource_types           TEXT NOT NULL DEFAULT '[]',
  match_score              REAL NOT NULL DEFAULT 0,
  confidence               REAL NOT NULL DEFAULT 0,
  reasoning                TEXT NOT NULL DEFAULT '',
  fit_score                INTEGER NOT NULL DEFAULT 0 CHECK (fit_score BETWEEN 0 AND 100),
  competitiveness          TEXT NOT NULL DEFAULT 'low',
  timeline_urgency         TEXT NOT NULL DEFAULT 'comfortable',
  application_priority     TEXT NOT NULL DEFAULT 'low',
  matching_project_ids     TEXT NOT NULL DEFAULT '[]',
  extracted_at             TEXT,
  created_at               TEXT NOT NULL,
  updated_at               TEXT NOT NULL,
  UNIQUE (external_id, source)
);
CREATE INDEX IF NOT EXISTS idx_opportunities_fit ON opportunities (fit_score DESC);

CREATE TABLE IF NOT EXISTS projects (
  id         TEXT PRIMARY KEY,
  user_id    TEXT NOT NULL,
  data       TEXT NOT NULL,
  updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS profiles (
  user_id    TEXT PRIMARY KEY,
  data       TEXT NOT NULL,
  updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS scoring_cache (
  user_id        TEXT NOT NULL,
  project_id     TEXT NOT NULL,
  opportunity_id TEXT NOT NULL,
  fit_score      INTEGER NOT NULL DEFAULT 0,
  analysis       TEXT,
  calculated_at  TEXT,
  status         TEXT NOT NULL DEFAULT 'needs_scoring' CHECK (status IN ('scored','needs_scoring')),
  UNIQUE (user_id, project_id, opportunity_id)
);
`

// DB wraps one SQLite handle shared by the three stores.
type DB struct {
	sql *sql.DB
}

// Open creates or opens the database at path. ":memory:" opens a private
// in-memory database on a single connection.
func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	if path == ":memory:" {
		dsn = "file::memory:?_pragma=busy_timeout(5000)"
	}
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		conn.SetMaxOpenConns(1)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &DB{sql: conn}, nil
}

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) Opportunities() *OpportunityStore { return &OpportunityStore{db: d.sql} }

func (d *DB) Cache() *CacheStore { return &CacheStore{db: d.sql} }

func (d *DB) Repository() *Repository { return &Repository{db: d.sql} }

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, db.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil, fmt.Errorf("parse time %q: %w", s.String, err)
	}
	return &t, nil
}

func encodeList[T any](items []T) (string, error) {
	if items == nil {
		return "[]", nil
	}
	b, err := json.Marshal(items)
	return string(b), err
}

func decodeList[T any](raw string, dst *[]T) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}
