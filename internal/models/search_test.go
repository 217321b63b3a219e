package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSearchMode(t *testing.T) {
	m, err := ParseSearchMode("internal")
	require.NoError(t, err)
	assert.Equal(t, SearchModeInternal, m)

	m, err = ParseSearchMode("  External ")
	require.NoError(t, err)
	assert.Equal(t, SearchModeExternal, m)

	_, err = ParseSearchMode("web")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid search mode")
}

func TestTurnFailed(t *testing.T) {
	assert.False(t, (&Turn{}).Failed())
	assert.True(t, (&Turn{Error: "rate limited"}).Failed())
}
