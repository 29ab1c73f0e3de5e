// Package storage is the best-effort persistence side channel. The
// core's correctness never depends on anything in this package.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/meetline/recapd/internal/transcript"
)

// EventRecord is one persisted canonical transcript event, keyed by
// (session_id, seq).
type EventRecord struct {
	SessionID string
	Seq       uint64
	Source    string
	Fragment  transcript.Fragment
	CreatedAt time.Time
}

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "recapd.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			language_code TEXT NOT NULL DEFAULT '',
			sample_rate_hz INTEGER NOT NULL DEFAULT 0,
			channels INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS transcript_events (
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			speaker TEXT NOT NULL DEFAULT '',
			language TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 0,
			time_start REAL NOT NULL,
			time_end REAL NOT NULL,
			is_final INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY(session_id, seq)
		);
	`); err != nil {
		return fmt.Errorf("create transcript_events table: %w", err)
	}

	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_events_session ON transcript_events(session_id, seq)"); err != nil {
		return fmt.Errorf("create events index: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateSession records session metadata; replaying an id is a no-op.
func (s *SQLiteStore) CreateSession(id, languageCode string, sampleRateHz, channels int, createdAt time.Time) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("session id is required")
	}
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO sessions (id, language_code, sample_rate_hz, channels, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, languageCode, sampleRateHz, channels, createdAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// AppendEvent stores one canonical transcript event. Duplicate
// (session, seq) pairs are ignored so replays stay idempotent.
func (s *SQLiteStore) AppendEvent(rec EventRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO transcript_events
			(session_id, seq, source, speaker, language, text, confidence, time_start, time_end, is_final, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.Seq, rec.Source,
		rec.Fragment.Speaker, rec.Fragment.Language, rec.Fragment.Text,
		rec.Fragment.Confidence, rec.Fragment.TimeStart, rec.Fragment.TimeEnd,
		boolToInt(rec.Fragment.IsFinal), createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert transcript event: %w", err)
	}
	return nil
}

// GetEvents returns the persisted events for a session in sequence order.
func (s *SQLiteStore) GetEvents(sessionID string) ([]EventRecord, error) {
	rows, err := s.db.Query(
		`SELECT session_id, seq, source, speaker, language, text, confidence, time_start, time_end, is_final, created_at
		FROM transcript_events WHERE session_id = ? ORDER BY seq`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query transcript events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []EventRecord
	for rows.Next() {
		var rec EventRecord
		var isFinal int
		var createdAt string
		if err := rows.Scan(
			&rec.SessionID, &rec.Seq, &rec.Source,
			&rec.Fragment.Speaker, &rec.Fragment.Language, &rec.Fragment.Text,
			&rec.Fragment.Confidence, &rec.Fragment.TimeStart, &rec.Fragment.TimeEnd,
			&isFinal, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan transcript event: %w", err)
		}
		rec.Fragment.IsFinal = isFinal != 0
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			rec.CreatedAt = ts
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
