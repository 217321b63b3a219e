package models

import (
	"fmt"
	"strings"
)

// SearchMode selects how results accumulate within a session.
type SearchMode string

const (
	// SearchModeInternal is a one-shot query with no accumulated context.
	SearchModeInternal SearchMode = "internal"
	// SearchModeExternal is a multi-turn conversation; prior turns are sent back as context.
	SearchModeExternal SearchMode = "external"
)

// ParseSearchMode converts user input into a SearchMode.
func ParseSearchMode(s string) (SearchMode, error) {
	switch SearchMode(strings.ToLower(strings.TrimSpace(s))) {
	case SearchModeInternal:
		return SearchModeInternal, nil
	case SearchModeExternal:
		return SearchModeExternal, nil
	}
	return "", fmt.Errorf("invalid search mode %q (want internal or external)", s)
}

// Role identifies the author of a history message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation history sent to the search service.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SourceType is the origin system of a source document.
type SourceType string

const (
	SourceTypeJira       SourceType = "jira"
	SourceTypeConfluence SourceType = "confluence"
	SourceTypeWeb        SourceType = "web"
)

// Source is a document referenced by a search result.
type Source struct {
	Title string     `json:"title"`
	URL   string     `json:"url"`
	Type  SourceType `json:"type"`
}

// SearchResult is the response to a single search request. Results are
// shared by pointer and must not be mutated once received.
type SearchResult struct {
	Summary string   `json:"summary,omitempty"`
	Sources []Source `json:"sources"`
}
