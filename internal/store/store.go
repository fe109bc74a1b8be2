// Package store persists readings, predictions, outbreak records, and
// operational statistics in SQLite. Readings and predictions are
// append-only; "latest" is always resolved by maximum timestamp, so
// concurrent writers need no locking. Outbreak rows are the single
// exception: an observation inside the dedup window merges into the
// existing row.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed persistence layer.
type Store struct {
	db *sql.DB

	mu      sync.Mutex
	entropy *rand.Rand
}

// Open opens or creates the SQLite database at the given path. Acquisition
// guarantees the parent directory exists; callers never pre-create it.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &Store{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Ping reports whether the database is reachable; used by the readiness
// endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS readings (
		id            TEXT PRIMARY KEY,
		location      TEXT NOT NULL,
		signal        TEXT NOT NULL,
		captured_at   INTEGER NOT NULL,
		aqi           REAL NOT NULL DEFAULT 0,
		pm25          REAL NOT NULL DEFAULT 0,
		pm10          REAL NOT NULL DEFAULT 0,
		no2           REAL NOT NULL DEFAULT 0,
		o3            REAL NOT NULL DEFAULT 0,
		temperature_c REAL NOT NULL DEFAULT 0,
		humidity_pct  REAL NOT NULL DEFAULT 0,
		precip_mm     REAL NOT NULL DEFAULT 0,
		wind_speed_ms REAL NOT NULL DEFAULT 0,
		pressure_hpa  REAL NOT NULL DEFAULT 0,
		source        TEXT NOT NULL,
		raw_payload   BLOB
	);
	CREATE INDEX IF NOT EXISTS idx_readings_lookup
		ON readings(location, signal, captured_at DESC);

	CREATE TABLE IF NOT EXISTS predictions (
		id                 TEXT PRIMARY KEY,
		location           TEXT NOT NULL,
		generated_at       INTEGER NOT NULL,
		risk_score         INTEGER NOT NULL,
		estimated_affected INTEGER NOT NULL,
		engine_version     TEXT NOT NULL,
		payload            TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_predictions_lookup
		ON predictions(location, generated_at DESC);

	CREATE TABLE IF NOT EXISTS outbreaks (
		id                TEXT PRIMARY KEY,
		location          TEXT NOT NULL,
		disease           TEXT NOT NULL,
		observed_at       INTEGER NOT NULL,
		active_cases      INTEGER NOT NULL DEFAULT 0,
		new_cases         INTEGER NOT NULL DEFAULT 0,
		recovered         INTEGER NOT NULL DEFAULT 0,
		deaths            INTEGER NOT NULL DEFAULT 0,
		severity          TEXT NOT NULL,
		transmission_rate REAL NOT NULL DEFAULT 0,
		affected_groups   TEXT,
		medicines         TEXT,
		rationale         TEXT,
		source            TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_outbreaks_lookup
		ON outbreaks(location, disease, observed_at DESC);

	CREATE TABLE IF NOT EXISTS admissions (
		location TEXT NOT NULL,
		day      TEXT NOT NULL,
		count    INTEGER NOT NULL,
		PRIMARY KEY (location, day)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}
