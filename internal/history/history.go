package history

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// DefaultListLimit caps List when no limit is given
const DefaultListLimit = 50

// ErrNotFound is returned by Get for an unknown id
var ErrNotFound = errors.New("history entry not found")

// Entry is one finished session
type Entry struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	MeetingURL  string    `json:"meeting_url,omitempty"`
	AudioPath   string    `json:"audio_path"`
	TextPath    string    `json:"text_path,omitempty"`
	PDFPath     string    `json:"pdf_path,omitempty"`
	Outcome     string    `json:"outcome"`
	Backend     string    `json:"backend,omitempty"`
	Duration    float64   `json:"duration"`
	ArchiveKeys []string  `json:"archive_keys,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists session history in SQLite
type Store struct {
	db  *sql.DB
	now func() time.Time

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// Open initializes the database at baseDir/history.db.
// The baseDir parameter allows tests to use t.TempDir().
func Open(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	dbPath := filepath.Join(baseDir, "history.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	_ = os.Chmod(dbPath, 0600)

	return &Store{db: db, now: time.Now, entropy: ulid.Monotonic(rand.Reader, 0)}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("failed to get user_version: %w", err)
	}

	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS sessions (
		  id           TEXT PRIMARY KEY,
		  session_id   TEXT NOT NULL,
		  meeting_url  TEXT,
		  audio_path   TEXT NOT NULL,
		  text_path    TEXT,
		  pdf_path     TEXT,
		  outcome      TEXT NOT NULL,
		  backend      TEXT,
		  duration     REAL NOT NULL,
		  archive_json TEXT,
		  created_at   INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_created
		ON sessions(created_at DESC);

		CREATE INDEX IF NOT EXISTS idx_sessions_session_id
		ON sessions(session_id);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", 1)); err != nil {
			return fmt.Errorf("failed to set user_version: %w", err)
		}
	}

	return nil
}

// newID returns a ULID that sorts after every earlier ID from this store,
// including IDs minted in the same millisecond.
func (s *Store) newID(t time.Time) (string, error) {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(t), s.entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Record stores e, assigning its ID and CreatedAt
func (s *Store) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.SessionID == "" {
		return Entry{}, fmt.Errorf("session id is required")
	}

	e.CreatedAt = s.now().UTC()
	id, err := s.newID(e.CreatedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to generate id: %w", err)
	}
	e.ID = id

	var archiveJSON sql.NullString
	if len(e.ArchiveKeys) > 0 {
		b, err := json.Marshal(e.ArchiveKeys)
		if err != nil {
			return Entry{}, err
		}
		archiveJSON = sql.NullString{String: string(b), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, session_id, meeting_url, audio_path, text_path, pdf_path,
		                      outcome, backend, duration, archive_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.MeetingURL, e.AudioPath, e.TextPath, e.PDFPath,
		e.Outcome, e.Backend, e.Duration, archiveJSON, e.CreatedAt.UnixMilli())
	if err != nil {
		return Entry{}, fmt.Errorf("failed to insert session: %w", err)
	}

	return e, nil
}

const selectColumns = `id, session_id, meeting_url, audio_path, text_path, pdf_path,
	outcome, backend, duration, archive_json, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var e Entry
	var meetingURL, textPath, pdfPath, backend, archiveJSON sql.NullString
	var createdAt int64
	if err := row.Scan(&e.ID, &e.SessionID, &meetingURL, &e.AudioPath, &textPath, &pdfPath,
		&e.Outcome, &backend, &e.Duration, &archiveJSON, &createdAt); err != nil {
		return Entry{}, err
	}

	e.MeetingURL = meetingURL.String
	e.TextPath = textPath.String
	e.PDFPath = pdfPath.String
	e.Backend = backend.String
	e.CreatedAt = time.UnixMilli(createdAt).UTC()

	if archiveJSON.Valid {
		if err := json.Unmarshal([]byte(archiveJSON.String), &e.ArchiveKeys); err != nil {
			return Entry{}, fmt.Errorf("corrupt archive keys for %s: %w", e.ID, err)
		}
	}
	return e, nil
}

// List returns the most recent entries first. limit <= 0 uses DefaultListLimit.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM sessions ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get returns the entry with the given id
func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM sessions WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("failed to get session: %w", err)
	}
	return e, nil
}
