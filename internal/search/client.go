// Package search talks to the remote knowledge-search service.
package search

import (
	"context"
	"errors"
	"strings"

	"github.com/joescharf/ka/internal/models"
)

// User-facing fallback messages.
const (
	UnknownErrorMessage       = "An unknown error occurred."
	UnknownServerErrorMessage = "An unknown server error occurred."
	ConnectErrorMessage       = "Failed to connect to the search service. Please check your connection and try again."
)

// Client runs a single search attempt. Implementations never retry.
type Client interface {
	Search(ctx context.Context, mode models.SearchMode, query string, history []models.Message) (*models.SearchResult, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, mode models.SearchMode, query string, history []models.Message) (*models.SearchResult, error)

// Search calls f.
func (f ClientFunc) Search(ctx context.Context, mode models.SearchMode, query string, history []models.Message) (*models.SearchResult, error) {
	return f(ctx, mode, query, history)
}

// Error is a failed search with a message suitable for display.
// Status is the HTTP status code, or 0 when no response was received.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message extracts the user-visible text from a search failure. Failures
// that carry no message map to UnknownErrorMessage.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var se *Error
	if errors.As(err, &se) {
		if msg := strings.TrimSpace(se.Message); msg != "" {
			return msg
		}
		return UnknownErrorMessage
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return UnknownErrorMessage
}
