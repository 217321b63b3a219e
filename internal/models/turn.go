package models

import "time"

// TurnKind distinguishes a new top-level query from a follow-up.
type TurnKind string

const (
	TurnKindQuery    TurnKind = "query"
	TurnKindFollowUp TurnKind = "follow_up"
)

// Turn is the transcript record of one completed request, successful or not.
type Turn struct {
	ID          string
	SessionID   string
	Kind        TurnKind
	Mode        SearchMode
	Query       string
	Summary     string
	Sources     []Source
	Error       string
	Duration    time.Duration
	CompletedAt time.Time
}

// Failed reports whether the request behind the turn failed.
func (t *Turn) Failed() bool {
	return t.Error != ""
}

// SessionSummary aggregates the turns recorded for one session.
type SessionSummary struct {
	SessionID string
	Turns     int
	Failures  int
	LastMode  SearchMode
	LastQuery string
	FirstAt   time.Time
	LastAt    time.Time
}
