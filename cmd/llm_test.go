package cmd

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/ka/internal/llm"
	"github.com/joescharf/ka/internal/models"
	"github.com/joescharf/ka/internal/search"
)

func TestNewSearchClient_HTTPDefault(t *testing.T) {
	testEnv(t)
	viper.Set("search.base_url", "http://search.example.com/")

	c, err := newSearchClient(nil)
	require.NoError(t, err)
	hc, ok := c.(*search.HTTPClient)
	require.True(t, ok)
	assert.Equal(t, "http://search.example.com/api/search", hc.Endpoint())
}

func TestNewSearchClient_Anthropic(t *testing.T) {
	testEnv(t)
	viper.Set("search.backend", "anthropic")
	viper.Set("anthropic.api_key", "sk-test")

	c, err := newSearchClient(nil)
	require.NoError(t, err)
	_, ok := c.(*llm.Client)
	assert.True(t, ok)
}

func TestNewSearchClient_AnthropicWithoutKey(t *testing.T) {
	testEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "")
	viper.Set("search.backend", "anthropic")

	_, err := newSearchClient(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestNewSearchClient_Unknown(t *testing.T) {
	testEnv(t)
	viper.Set("search.backend", "grpc")

	_, err := newSearchClient(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown search.backend")
}

func TestDefaultMode(t *testing.T) {
	testEnv(t)

	mode, err := defaultMode()
	require.NoError(t, err)
	assert.Equal(t, models.SearchModeInternal, mode)

	viper.Set("search.default_mode", "External")
	mode, err = defaultMode()
	require.NoError(t, err)
	assert.Equal(t, models.SearchModeExternal, mode)
}
