package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/viper"

	"github.com/joescharf/ka/internal/llm"
	"github.com/joescharf/ka/internal/models"
	"github.com/joescharf/ka/internal/search"
)

// Search backends selectable with search.backend.
const (
	backendHTTP      = "http"
	backendAnthropic = "anthropic"
)

const defaultAnthropicModel = llm.DefaultModel

// newSearchClient builds the configured search backend.
func newSearchClient(log *slog.Logger) (search.Client, error) {
	switch backend := viper.GetString("search.backend"); backend {
	case backendHTTP, "":
		return search.NewHTTPClient(search.HTTPConfig{
			BaseURL:       viper.GetString("search.base_url"),
			Timeout:       viper.GetDuration("search.timeout"),
			RatePerMinute: viper.GetInt("search.rate_per_minute"),
			Logger:        log,
		}), nil
	case backendAnthropic:
		c := newLLMClient(log)
		if c == nil {
			return nil, fmt.Errorf("search.backend is %q but no API key is set (anthropic.api_key or ANTHROPIC_API_KEY)", backend)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown search.backend %q (want %s or %s)", backend, backendHTTP, backendAnthropic)
	}
}

// newLLMClient creates an LLM client from config/env, or returns nil if no API key is configured.
func newLLMClient(log *slog.Logger) *llm.Client {
	apiKey := viper.GetString("anthropic.api_key")
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil
	}
	return llm.NewClient(apiKey, viper.GetString("anthropic.model"), log)
}

// defaultMode parses search.default_mode.
func defaultMode() (models.SearchMode, error) {
	mode, err := models.ParseSearchMode(viper.GetString("search.default_mode"))
	if err != nil {
		return "", fmt.Errorf("search.default_mode: %w", err)
	}
	return mode, nil
}
