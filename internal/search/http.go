package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/joescharf/ka/internal/models"
)

// searchPath is appended to the configured base URL.
const searchPath = "/api/search"

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 4 << 20

// HTTPConfig configures an HTTPClient.
type HTTPConfig struct {
	BaseURL string
	// Timeout bounds a single request. Zero means no client-side timeout.
	Timeout time.Duration
	// RatePerMinute paces outgoing requests. Zero disables pacing.
	RatePerMinute int
	Logger        *slog.Logger
}

// HTTPClient posts queries to the search service's JSON endpoint.
type HTTPClient struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	log      *slog.Logger
}

// NewHTTPClient creates a client for the service rooted at cfg.BaseURL.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	c := &HTTPClient{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + searchPath,
		client:   &http.Client{Timeout: cfg.Timeout},
		log:      cfg.Logger,
	}
	if c.log == nil {
		c.log = slog.New(slog.DiscardHandler)
	}
	if cfg.RatePerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), 1)
	}
	return c
}

// Endpoint returns the full URL requests are posted to.
func (c *HTTPClient) Endpoint() string {
	return c.endpoint
}

type searchRequest struct {
	Mode    models.SearchMode `json:"mode"`
	Query   string            `json:"query"`
	History []models.Message  `json:"history"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Search sends one request. Non-2xx responses become *Error values whose
// message is the server's "error" field when present.
func (c *HTTPClient) Search(ctx context.Context, mode models.SearchMode, query string, history []models.Message) (*models.SearchResult, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &Error{Message: ConnectErrorMessage, Err: fmt.Errorf("rate limiter: %w", err)}
		}
	}

	if history == nil {
		history = []models.Message{}
	}
	body, err := json.Marshal(searchRequest{Mode: mode, Query: query, History: history})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	c.log.Debug("search request", "mode", mode, "history", len(history), "endpoint", c.endpoint)

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Warn("search transport failure", "error", err)
		return nil, &Error{Message: ConnectErrorMessage, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &Error{Status: resp.StatusCode, Message: ConnectErrorMessage, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := serverMessage(resp.StatusCode, respBody)
		c.log.Warn("search failed", "status", resp.StatusCode, "message", msg)
		return nil, &Error{Status: resp.StatusCode, Message: msg}
	}

	var result models.SearchResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &Error{
			Status:  resp.StatusCode,
			Message: "The search service returned a malformed response.",
			Err:     fmt.Errorf("parse response: %w", err),
		}
	}
	if result.Sources == nil {
		result.Sources = []models.Source{}
	}

	c.log.Debug("search response", "status", resp.StatusCode, "sources", len(result.Sources), "took", time.Since(start))
	return &result, nil
}

// serverMessage picks the message for a non-success response: the body's
// "error" field, else a status-based message. A body that is not JSON at
// all yields UnknownServerErrorMessage.
func serverMessage(status int, body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err != nil {
		return UnknownServerErrorMessage
	}
	if msg := strings.TrimSpace(er.Error); msg != "" {
		return msg
	}
	return fmt.Sprintf("Request failed with status %d", status)
}
