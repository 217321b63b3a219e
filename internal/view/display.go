package view

import (
	"github.com/joescharf/ka/internal/models"
	"github.com/joescharf/ka/internal/session"
)

// Kind is the render case for a session.
type Kind string

const (
	ShowLoadingOnly          Kind = "loading"
	ShowInternalResult       Kind = "internal_result"
	ShowExternalConversation Kind = "external_conversation"
	ShowEmptyPrompt          Kind = "empty_prompt"
	ShowError                Kind = "error"
)

// Display describes what to render. Error is set whenever the session holds
// an error: for ShowError it is the whole view, otherwise it annotates the
// results. Spinner asks for a trailing progress indicator under an
// external conversation while a follow-up is in flight.
type Display struct {
	Kind    Kind   `json:"kind"`
	Spinner bool   `json:"spinner,omitempty"`
	Error   string `json:"error,omitempty"`
}

// DisplayState maps a snapshot to its render case.
func DisplayState(s session.State) Display {
	if !s.HasResults() {
		switch {
		case s.Loading:
			return Display{Kind: ShowLoadingOnly}
		case s.Error != "":
			return Display{Kind: ShowError, Error: s.Error}
		default:
			return Display{Kind: ShowEmptyPrompt}
		}
	}

	if s.Mode == models.SearchModeExternal {
		return Display{Kind: ShowExternalConversation, Spinner: s.Loading, Error: s.Error}
	}
	return Display{Kind: ShowInternalResult, Error: s.Error}
}
