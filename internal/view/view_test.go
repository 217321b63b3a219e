package view

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/ka/internal/models"
	"github.com/joescharf/ka/internal/search"
	"github.com/joescharf/ka/internal/session"
)

func mixedResult() *models.SearchResult {
	return &models.SearchResult{
		Summary: "mixed",
		Sources: []models.Source{
			{Title: "RP-1", URL: "https://jira/RP-1", Type: models.SourceTypeJira},
			{Title: "Wiki", URL: "https://wiki/page", Type: models.SourceTypeConfluence},
			{Title: "RP-2", URL: "https://jira/RP-2", Type: models.SourceTypeJira},
			{Title: "Blog", URL: "https://example.com", Type: models.SourceTypeWeb},
		},
	}
}

func internalState(res *models.SearchResult) session.State {
	s := session.NewState(models.SearchModeInternal)
	s.Results = session.SingleResult{Result: res}
	return s
}

func TestParseFilter(t *testing.T) {
	for in, want := range map[string]Filter{"": FilterAll, "all": FilterAll, "JIRA": FilterJira, " confluence ": FilterConfluence} {
		got, err := ParseFilter(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFilter("web")
	assert.Error(t, err)
}

func TestVisibleSources(t *testing.T) {
	s := internalState(mixedResult())

	assert.Len(t, VisibleSources(s, FilterAll), 4)

	jiraOnly := VisibleSources(s, FilterJira)
	require.Len(t, jiraOnly, 2)
	assert.Equal(t, "RP-1", jiraOnly[0].Title, "order is preserved")
	assert.Equal(t, "RP-2", jiraOnly[1].Title)

	conf := VisibleSources(s, FilterConfluence)
	require.Len(t, conf, 1)
	assert.Equal(t, "Wiki", conf[0].Title)
}

func TestVisibleSources_NoResult(t *testing.T) {
	assert.Empty(t, VisibleSources(session.NewState(models.SearchModeInternal), FilterAll))

	ext := session.NewState(models.SearchModeExternal)
	ext.Results = session.Conversation{Turns: []*models.SearchResult{mixedResult()}}
	assert.Empty(t, VisibleSources(ext, FilterJira), "external conversations have no filterable current result")
}

func TestVisibleSources_DoesNotMutate(t *testing.T) {
	res := mixedResult()
	_ = VisibleSources(internalState(res), FilterJira)
	assert.Len(t, res.Sources, 4)
	assert.Equal(t, models.SourceTypeConfluence, res.Sources[1].Type)
}

func TestScenario_ResetPassword(t *testing.T) {
	client := search.ClientFunc(func(_ context.Context, mode models.SearchMode, query string, _ []models.Message) (*models.SearchResult, error) {
		assert.Equal(t, models.SearchModeInternal, mode)
		assert.Equal(t, "reset password", query)
		return &models.SearchResult{
			Summary: "Use the self-service page.",
			Sources: []models.Source{{Title: "RP-1", URL: "https://jira/RP-1", Type: models.SourceTypeJira}},
		}, nil
	})
	c := session.New(client, models.SearchModeInternal)
	require.True(t, c.SubmitQuery(context.Background(), "reset password"))

	s := c.Snapshot()
	assert.Len(t, s.CurrentResult().Sources, 1)
	assert.Len(t, VisibleSources(s, FilterJira), 1)
	assert.Len(t, VisibleSources(s, FilterConfluence), 0)
}

func TestSourceCounts(t *testing.T) {
	counts := SourceCounts(mixedResult())
	assert.Equal(t, 4, counts[FilterAll])
	assert.Equal(t, 2, counts[FilterJira])
	assert.Equal(t, 1, counts[FilterConfluence])

	empty := SourceCounts(nil)
	assert.Equal(t, 0, empty[FilterAll])
}

func TestEmptyFilterMessage(t *testing.T) {
	assert.Equal(t, "No jira sources found.", EmptyFilterMessage(FilterJira))
	assert.Equal(t, "No confluence sources found.", EmptyFilterMessage(FilterConfluence))
	assert.Equal(t, "No sources found.", EmptyFilterMessage(FilterAll))
}

func TestFilterSelector_ResetsOnNewResult(t *testing.T) {
	var fs FilterSelector
	assert.Equal(t, FilterAll, fs.Filter())

	first := internalState(mixedResult())
	assert.Equal(t, FilterAll, fs.Sync(first))

	fs.Set(FilterJira)
	assert.Equal(t, FilterJira, fs.Sync(first), "same result keeps the selection")
	assert.Equal(t, FilterJira, fs.Sync(first))

	second := internalState(mixedResult())
	assert.Equal(t, FilterAll, fs.Sync(second), "a new result resets to all")

	fs.Set(FilterConfluence)
	assert.Equal(t, FilterAll, fs.Sync(session.NewState(models.SearchModeInternal)), "clearing the result resets too")
}
