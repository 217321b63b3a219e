// Package session holds the state of one search session and the controller
// that is its only writer.
package session

import (
	"encoding/json"

	"github.com/joescharf/ka/internal/models"
)

// Results is the mode-specific payload of a session. Internal sessions hold
// a SingleResult, external sessions hold a Conversation; a State never
// carries the variant of the other mode.
type Results interface {
	Mode() models.SearchMode
	Empty() bool
	clone() Results
}

// SingleResult is the outcome of a one-shot internal search.
type SingleResult struct {
	Result *models.SearchResult
}

func (SingleResult) Mode() models.SearchMode { return models.SearchModeInternal }

func (r SingleResult) Empty() bool { return r.Result == nil }

func (r SingleResult) clone() Results { return r }

// Conversation is the accumulated transcript of an external session.
// History holds a user/assistant pair per entry in Turns.
type Conversation struct {
	Turns   []*models.SearchResult
	History []models.Message
}

func (Conversation) Mode() models.SearchMode { return models.SearchModeExternal }

func (c Conversation) Empty() bool { return len(c.Turns) == 0 }

func (c Conversation) clone() Results {
	return Conversation{
		Turns:   append([]*models.SearchResult(nil), c.Turns...),
		History: append([]models.Message(nil), c.History...),
	}
}

// appendTurn returns a new Conversation with one more turn. The receiver's
// backing arrays are never written, so snapshots taken earlier stay intact.
func (c Conversation) appendTurn(query string, res *models.SearchResult) Conversation {
	turns := make([]*models.SearchResult, 0, len(c.Turns)+1)
	turns = append(turns, c.Turns...)
	turns = append(turns, res)

	history := make([]models.Message, 0, len(c.History)+2)
	history = append(history, c.History...)
	history = append(history,
		models.Message{Role: models.RoleUser, Content: query},
		models.Message{Role: models.RoleAssistant, Content: res.Summary},
	)
	return Conversation{Turns: turns, History: history}
}

func emptyResults(mode models.SearchMode) Results {
	if mode == models.SearchModeExternal {
		return Conversation{}
	}
	return SingleResult{}
}

// Phase is the coarse lifecycle position of a session.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseError   Phase = "error"
	PhaseReady   Phase = "ready"
)

// State is a point-in-time view of a session.
type State struct {
	Mode    models.SearchMode
	Loading bool
	Error   string
	Results Results
}

// NewState returns the empty state for mode.
func NewState(mode models.SearchMode) State {
	if mode != models.SearchModeExternal {
		mode = models.SearchModeInternal
	}
	return State{Mode: mode, Results: emptyResults(mode)}
}

// CurrentResult is the internal-mode result, or nil.
func (s State) CurrentResult() *models.SearchResult {
	if r, ok := s.Results.(SingleResult); ok {
		return r.Result
	}
	return nil
}

// Conversation returns the external-mode turns; empty in internal mode.
func (s State) Conversation() []*models.SearchResult {
	if c, ok := s.Results.(Conversation); ok {
		return c.Turns
	}
	return nil
}

// History returns the messages sent as context with the next follow-up.
func (s State) History() []models.Message {
	if c, ok := s.Results.(Conversation); ok {
		return c.History
	}
	return nil
}

// HasResults reports whether any result is available for display.
func (s State) HasResults() bool {
	return s.Results != nil && !s.Results.Empty()
}

// Phase derives the lifecycle position from the state's fields.
func (s State) Phase() Phase {
	switch {
	case s.Loading:
		return PhaseLoading
	case s.Error != "":
		return PhaseError
	case s.HasResults():
		return PhaseReady
	default:
		return PhaseIdle
	}
}

func (s State) clone() State {
	out := s
	if s.Results != nil {
		out.Results = s.Results.clone()
	}
	return out
}

type stateJSON struct {
	Mode          models.SearchMode      `json:"mode"`
	Phase         Phase                  `json:"phase"`
	Loading       bool                   `json:"loading"`
	Error         string                 `json:"error,omitempty"`
	CurrentResult *models.SearchResult   `json:"current_result"`
	Conversation  []*models.SearchResult `json:"conversation"`
	History       []models.Message       `json:"history"`
}

// MarshalJSON flattens the results variant into the wire shape used by the
// HTTP API and MCP tools.
func (s State) MarshalJSON() ([]byte, error) {
	out := stateJSON{
		Mode:          s.Mode,
		Phase:         s.Phase(),
		Loading:       s.Loading,
		Error:         s.Error,
		CurrentResult: s.CurrentResult(),
		Conversation:  s.Conversation(),
		History:       s.History(),
	}
	if out.Conversation == nil {
		out.Conversation = []*models.SearchResult{}
	}
	if out.History == nil {
		out.History = []models.Message{}
	}
	return json.Marshal(out)
}
