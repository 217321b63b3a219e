package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/ka/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Running migrate again should be a no-op
	err := s.Migrate(ctx)
	assert.NoError(t, err)
}

func TestNewSQLiteStore_Memory(t *testing.T) {
	s, err := NewSQLiteStore("")
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))

	require.NoError(t, s.RecordTurn(ctx, &models.Turn{SessionID: "s1", Kind: models.TurnKindQuery, Mode: models.SearchModeInternal, Query: "q"}))
	turns, err := s.ListTurns(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, turns, 1)
}

// --- Turns ---

func TestRecordAndListTurns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	first := &models.Turn{
		SessionID:   "sess-a",
		Kind:        models.TurnKindQuery,
		Mode:        models.SearchModeExternal,
		Query:       "what is go",
		Summary:     "A language.",
		Sources:     []models.Source{{Title: "go.dev", URL: "https://go.dev", Type: models.SourceTypeWeb}},
		Duration:    1500 * time.Millisecond,
		CompletedAt: base,
	}
	require.NoError(t, s.RecordTurn(ctx, first))
	assert.NotEmpty(t, first.ID)

	second := &models.Turn{
		SessionID:   "sess-a",
		Kind:        models.TurnKindFollowUp,
		Mode:        models.SearchModeExternal,
		Query:       "who made it",
		Error:       "Rate limited",
		CompletedAt: base.Add(time.Minute),
	}
	require.NoError(t, s.RecordTurn(ctx, second))

	require.NoError(t, s.RecordTurn(ctx, &models.Turn{SessionID: "sess-b", Kind: models.TurnKindQuery, Mode: models.SearchModeInternal, Query: "other"}))

	turns, err := s.ListTurns(ctx, "sess-a")
	require.NoError(t, err)
	require.Len(t, turns, 2)

	assert.Equal(t, first.ID, turns[0].ID)
	assert.Equal(t, models.TurnKindQuery, turns[0].Kind)
	assert.Equal(t, models.SearchModeExternal, turns[0].Mode)
	assert.Equal(t, "A language.", turns[0].Summary)
	assert.Equal(t, first.Sources, turns[0].Sources)
	assert.Equal(t, 1500*time.Millisecond, turns[0].Duration)
	assert.True(t, base.Equal(turns[0].CompletedAt))
	assert.False(t, turns[0].Failed())

	assert.Equal(t, "who made it", turns[1].Query)
	assert.True(t, turns[1].Failed())
	assert.Empty(t, turns[1].Sources)
}

func TestRecordTurn_RequiresSession(t *testing.T) {
	s := newTestStore(t)
	err := s.RecordTurn(context.Background(), &models.Turn{Query: "q"})
	assert.Error(t, err)
}

func TestListTurns_Unknown(t *testing.T) {
	s := newTestStore(t)
	turns, err := s.ListTurns(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestDeleteTurns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.RecordTurn(ctx, &models.Turn{SessionID: "gone", Kind: models.TurnKindQuery, Mode: models.SearchModeInternal, Query: "q"}))
	}
	require.NoError(t, s.RecordTurn(ctx, &models.Turn{SessionID: "kept", Kind: models.TurnKindQuery, Mode: models.SearchModeInternal, Query: "q"}))

	n, err := s.DeleteTurns(ctx, "gone")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	turns, err := s.ListTurns(ctx, "kept")
	require.NoError(t, err)
	assert.Len(t, turns, 1)
}

// --- Sessions ---

func TestListSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	record := func(session, query, errMsg string, mode models.SearchMode, at time.Time) {
		require.NoError(t, s.RecordTurn(ctx, &models.Turn{
			SessionID: session, Kind: models.TurnKindQuery, Mode: mode,
			Query: query, Error: errMsg, CompletedAt: at,
		}))
	}
	record("old", "first", "", models.SearchModeInternal, base)
	record("old", "second", "boom", models.SearchModeInternal, base.Add(time.Minute))
	record("new", "external q", "", models.SearchModeExternal, base.Add(time.Hour))

	sessions, err := s.ListSessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	assert.Equal(t, "new", sessions[0].SessionID)
	assert.Equal(t, 1, sessions[0].Turns)
	assert.Equal(t, models.SearchModeExternal, sessions[0].LastMode)

	old := sessions[1]
	assert.Equal(t, "old", old.SessionID)
	assert.Equal(t, 2, old.Turns)
	assert.Equal(t, 1, old.Failures)
	assert.Equal(t, "second", old.LastQuery)
	assert.True(t, base.Equal(old.FirstAt))
	assert.True(t, base.Add(time.Minute).Equal(old.LastAt))

	limited, err := s.ListSessions(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
