package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/ka/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at the given path. An
// empty path or MemoryPath keeps the transcript in memory for the life of
// the process.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = MemoryPath
	}
	if dbPath != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection serializes writers and keeps an in-memory database alive.
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(0)

	if dbPath != MemoryPath {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Turns ---

// RecordTurn inserts turn, assigning an ID and completion time when unset.
func (s *SQLiteStore) RecordTurn(ctx context.Context, turn *models.Turn) error {
	if turn.SessionID == "" {
		return fmt.Errorf("record turn: session id is required")
	}
	if turn.ID == "" {
		turn.ID = newULID()
	}
	if turn.CompletedAt.IsZero() {
		turn.CompletedAt = time.Now().UTC()
	}
	sources := turn.Sources
	if sources == nil {
		sources = []models.Source{}
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("encode sources: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO turns (id, session_id, kind, mode, query, summary, sources, error, duration_ms, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		turn.ID, turn.SessionID, string(turn.Kind), string(turn.Mode), turn.Query,
		turn.Summary, string(sourcesJSON), turn.Error,
		turn.Duration.Milliseconds(), turn.CompletedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record turn: %w", err)
	}
	return nil
}

// ListTurns returns a session's turns oldest first.
func (s *SQLiteStore) ListTurns(ctx context.Context, sessionID string) ([]*models.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, kind, mode, query, summary, sources, error, duration_ms, completed_at
		FROM turns WHERE session_id = ? ORDER BY completed_at, rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var turns []*models.Turn
	for rows.Next() {
		t := &models.Turn{}
		var kind, mode, sourcesJSON string
		var durationMS, completedAt int64

		if err := rows.Scan(&t.ID, &t.SessionID, &kind, &mode, &t.Query,
			&t.Summary, &sourcesJSON, &t.Error, &durationMS, &completedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if err := json.Unmarshal([]byte(sourcesJSON), &t.Sources); err != nil {
			return nil, fmt.Errorf("decode sources for turn %s: %w", t.ID, err)
		}
		t.Kind = models.TurnKind(kind)
		t.Mode = models.SearchMode(mode)
		t.Duration = time.Duration(durationMS) * time.Millisecond
		t.CompletedAt = time.UnixMilli(completedAt).UTC()
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// DeleteTurns removes every turn of a session and returns how many were removed.
func (s *SQLiteStore) DeleteTurns(ctx context.Context, sessionID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM turns WHERE session_id = ?", sessionID)
	if err != nil {
		return 0, fmt.Errorf("delete turns: %w", err)
	}
	return result.RowsAffected()
}

// --- Sessions ---

// ListSessions summarizes recorded sessions, most recently active first.
// A limit of zero or less returns all sessions.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]*models.SessionSummary, error) {
	query := `SELECT t.session_id, COUNT(*),
			SUM(CASE WHEN t.error <> '' THEN 1 ELSE 0 END),
			MIN(t.completed_at), MAX(t.completed_at),
			(SELECT l.mode FROM turns l WHERE l.session_id = t.session_id ORDER BY l.completed_at DESC, l.rowid DESC LIMIT 1),
			(SELECT l.query FROM turns l WHERE l.session_id = t.session_id ORDER BY l.completed_at DESC, l.rowid DESC LIMIT 1)
		FROM turns t
		GROUP BY t.session_id
		ORDER BY MAX(t.completed_at) DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.SessionSummary
	for rows.Next() {
		sum := &models.SessionSummary{}
		var firstAt, lastAt int64
		var mode string
		if err := rows.Scan(&sum.SessionID, &sum.Turns, &sum.Failures,
			&firstAt, &lastAt, &mode, &sum.LastQuery); err != nil {
			return nil, fmt.Errorf("scan session summary: %w", err)
		}
		sum.LastMode = models.SearchMode(mode)
		sum.FirstAt = time.UnixMilli(firstAt).UTC()
		sum.LastAt = time.UnixMilli(lastAt).UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}
