package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/joescharf/ka/internal/models"
	"github.com/joescharf/ka/internal/output"
	"github.com/joescharf/ka/internal/session"
	"github.com/joescharf/ka/internal/view"
)

var (
	searchMode   string
	searchFilter string
	searchJSON   bool
)

// searchClientFunc builds the configured search backend, replaceable in tests.
var searchClientFunc = newSearchClient

// summaryWidth is the wrap width for rendered summaries.
const summaryWidth = 100

var searchCmd = &cobra.Command{
	Use:   "search QUERY...",
	Short: "Run a single search and print the answer",
	Long: `Run a single search and print the summary and its sources.

In internal mode --filter narrows the sources to jira or confluence.
Exits non-zero when the search fails.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return searchRun(cmd.Context(), strings.Join(args, " "))
	},
}

func init() {
	searchCmd.Flags().StringVarP(&searchMode, "mode", "m", "", "Search mode: internal or external (default from config)")
	searchCmd.Flags().StringVarP(&searchFilter, "filter", "f", "all", "Source filter: all, jira or confluence")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Print the session state as JSON")
	rootCmd.AddCommand(searchCmd)
}

func searchRun(ctx context.Context, query string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	mode, err := searchModeOrDefault()
	if err != nil {
		return err
	}
	filter, err := view.ParseFilter(searchFilter)
	if err != nil {
		return err
	}

	log, err := getLogger()
	if err != nil {
		return err
	}
	client, err := searchClientFunc(log)
	if err != nil {
		return err
	}

	ctl := session.New(client, mode, sessionOptions(log)...)
	if !ctl.SubmitQuery(ctx, query) {
		return errors.New("query is empty")
	}

	st := ctl.Snapshot()
	if searchJSON {
		if err := printSearchJSON(st, filter); err != nil {
			return err
		}
	} else {
		printSearchResult(st, filter)
	}

	if st.Error != "" {
		return errors.New(st.Error)
	}
	return nil
}

func searchModeOrDefault() (models.SearchMode, error) {
	if searchMode == "" {
		return defaultMode()
	}
	return models.ParseSearchMode(searchMode)
}

// sessionOptions gives a standalone session a fresh ID and wires the logger
// and, when it opens, the transcript store.
func sessionOptions(log *slog.Logger) []session.Option {
	opts := []session.Option{session.WithID(ulid.Make().String()), session.WithLogger(log)}
	s, err := getStore()
	if err != nil {
		log.Warn("transcript store unavailable", "error", err)
		return opts
	}
	return append(opts, session.WithRecorder(s))
}

// latestResult is the result a one-shot search produced in either mode.
func latestResult(st session.State) *models.SearchResult {
	if res := st.CurrentResult(); res != nil {
		return res
	}
	if turns := st.Conversation(); len(turns) > 0 {
		return turns[len(turns)-1]
	}
	return nil
}

func printSearchResult(st session.State, filter view.Filter) {
	res := latestResult(st)
	if res == nil {
		return
	}

	fmt.Fprintln(ui.Out, output.Markdown(res.Summary, summaryWidth))

	sources := res.Sources
	if st.Mode == models.SearchModeInternal {
		sources = view.FilterSources(res, filter)
	}
	if len(sources) == 0 {
		ui.Info("%s", view.EmptyFilterMessage(filter))
		return
	}

	table := ui.Table([]string{"Type", "Title", "URL"})
	for _, src := range sources {
		_ = table.Append([]string{output.SourceTypeColor(string(src.Type)), src.Title, src.URL})
	}
	_ = table.Render()
}

type searchOutput struct {
	State          session.State       `json:"state"`
	Filter         view.Filter         `json:"filter"`
	VisibleSources []models.Source     `json:"visible_sources"`
	SourceCounts   map[view.Filter]int `json:"source_counts"`
	Display        view.Display        `json:"display"`
}

func printSearchJSON(st session.State, filter view.Filter) error {
	enc := json.NewEncoder(ui.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(searchOutput{
		State:          st,
		Filter:         filter,
		VisibleSources: view.VisibleSources(st, filter),
		SourceCounts:   view.SourceCounts(st.CurrentResult()),
		Display:        view.DisplayState(st),
	})
}
