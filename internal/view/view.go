// Package view derives what a presentation layer should show from a session
// snapshot. Everything here is a pure function of its inputs.
package view

import (
	"fmt"
	"strings"

	"github.com/joescharf/ka/internal/models"
	"github.com/joescharf/ka/internal/session"
)

// Fixed copy shared by the terminal UI and the web page.
const (
	LoadingText         = "Searching for answers..."
	EmptyPromptText     = "Your results will appear here."
	SearchPlaceholder   = "Ask anything about Planon..."
	FollowUpPlaceholder = "Ask a follow-up question..."
)

// Filter restricts the sources shown for an internal result.
type Filter string

const (
	FilterAll        Filter = "all"
	FilterJira       Filter = "jira"
	FilterConfluence Filter = "confluence"
)

// Filters lists the selectable filters in display order.
var Filters = []Filter{FilterAll, FilterJira, FilterConfluence}

// ParseFilter converts user input into a Filter. Empty input means FilterAll.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterJira, FilterConfluence:
		return f, nil
	}
	return "", fmt.Errorf("invalid source filter %q (want all, jira or confluence)", s)
}

// VisibleSources returns the current result's sources that match f. It is
// empty when the state holds no internal result.
func VisibleSources(s session.State, f Filter) []models.Source {
	return FilterSources(s.CurrentResult(), f)
}

// FilterSources applies f to a single result.
func FilterSources(res *models.SearchResult, f Filter) []models.Source {
	if res == nil {
		return []models.Source{}
	}
	if f == FilterAll || f == "" {
		return res.Sources
	}
	out := make([]models.Source, 0, len(res.Sources))
	for _, src := range res.Sources {
		if string(src.Type) == string(f) {
			out = append(out, src)
		}
	}
	return out
}

// SourceCounts returns the number of sources each filter would show.
func SourceCounts(res *models.SearchResult) map[Filter]int {
	counts := make(map[Filter]int, len(Filters))
	for _, f := range Filters {
		counts[f] = len(FilterSources(res, f))
	}
	return counts
}

// EmptyFilterMessage is shown when a filter matches no sources.
func EmptyFilterMessage(f Filter) string {
	if f == FilterAll || f == "" {
		return "No sources found."
	}
	return fmt.Sprintf("No %s sources found.", f)
}

// FilterSelector holds the selected filter for one view. The selection
// falls back to FilterAll whenever a different result arrives.
type FilterSelector struct {
	filter Filter
	seen   *models.SearchResult
}

// Sync observes s and returns the filter in effect for it.
func (fs *FilterSelector) Sync(s session.State) Filter {
	if cur := s.CurrentResult(); cur != fs.seen {
		fs.seen = cur
		fs.filter = FilterAll
	}
	return fs.Filter()
}

// Set selects f.
func (fs *FilterSelector) Set(f Filter) {
	fs.filter = f
}

// Filter returns the selected filter.
func (fs *FilterSelector) Filter() Filter {
	if fs.filter == "" {
		return FilterAll
	}
	return fs.filter
}
