package store

import (
	"context"

	"github.com/joescharf/ka/internal/models"
)

// Store persists the transcript of completed search requests. It is an
// audit log only; sessions are never rebuilt from it.
type Store interface {
	// Turns
	RecordTurn(ctx context.Context, turn *models.Turn) error
	ListTurns(ctx context.Context, sessionID string) ([]*models.Turn, error)
	DeleteTurns(ctx context.Context, sessionID string) (int64, error)

	// Sessions
	ListSessions(ctx context.Context, limit int) ([]*models.SessionSummary, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
