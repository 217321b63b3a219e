package sessions

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/ka/internal/models"
	"github.com/joescharf/ka/internal/search"
)

var okClient = search.ClientFunc(func(context.Context, models.SearchMode, string, []models.Message) (*models.SearchResult, error) {
	return &models.SearchResult{Summary: "ok", Sources: []models.Source{}}, nil
})

type countingRecorder struct {
	mu    sync.Mutex
	turns []*models.Turn
}

func (r *countingRecorder) RecordTurn(_ context.Context, t *models.Turn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, t)
	return nil
}

func TestManager_CreateGetDelete(t *testing.T) {
	m := NewManager(Config{Client: okClient})

	c := m.Create("")
	require.NotNil(t, c)
	assert.Len(t, c.ID(), 26, "IDs are ULIDs")
	assert.Equal(t, models.SearchModeInternal, c.Snapshot().Mode)
	assert.Equal(t, 1, m.Count())

	got, err := m.Get(c.ID())
	require.NoError(t, err)
	assert.Same(t, c, got)

	assert.True(t, m.Delete(c.ID()))
	assert.False(t, m.Delete(c.ID()))

	_, err = m.Get(c.ID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_Modes(t *testing.T) {
	m := NewManager(Config{Client: okClient, DefaultMode: models.SearchModeExternal})
	assert.Equal(t, models.SearchModeExternal, m.DefaultMode())
	assert.Equal(t, models.SearchModeExternal, m.Create("").Snapshot().Mode)
	assert.Equal(t, models.SearchModeInternal, m.Create(models.SearchModeInternal).Snapshot().Mode)

	bogus := NewManager(Config{Client: okClient, DefaultMode: "bogus"})
	assert.Equal(t, models.SearchModeInternal, bogus.DefaultMode())
}

func TestManager_IDsSorted(t *testing.T) {
	m := NewManager(Config{Client: okClient})
	for i := 0; i < 3; i++ {
		m.Create("")
	}
	ids := m.IDs()
	require.Len(t, ids, 3)
	assert.IsIncreasing(t, ids)
}

func TestManager_Expiry(t *testing.T) {
	m := NewManager(Config{Client: okClient, TTL: 50 * time.Millisecond})
	c := m.Create("")

	assert.Eventually(t, func() bool {
		_, err := m.Get(c.ID())
		return err != nil
	}, time.Second, 10*time.Millisecond)
}

func TestManager_SessionsRecordTurns(t *testing.T) {
	rec := &countingRecorder{}
	m := NewManager(Config{Client: okClient, Recorder: rec})
	c := m.Create("")

	require.True(t, c.SubmitQuery(context.Background(), "q"))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.turns, 1)
	assert.Equal(t, c.ID(), rec.turns[0].SessionID)
}
