package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/ka/internal/output"
)

var sessionsLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect the transcript log of past sessions",
	Long: `Inspect the transcript log written to store.path.

Every completed search is recorded with its session ID. The log is an
audit record; sessions are never restored from it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionsListRun(cmd.Context())
	},
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded sessions, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionsListRun(cmd.Context())
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show the recorded turns of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionsShowRun(cmd.Context(), args[0])
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete the recorded turns of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionsDeleteRun(cmd.Context(), args[0])
	},
}

func init() {
	sessionsListCmd.Flags().IntVarP(&sessionsLimit, "limit", "l", 20, "Maximum number of sessions to list")
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func warnMemoryStore() {
	if viper.GetString("store.path") == "" {
		ui.Warning("store.path is not set; the transcript log only lives in memory")
	}
}

func sessionsListRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	warnMemoryStore()

	s, err := getStore()
	if err != nil {
		return err
	}
	summaries, err := s.ListSessions(ctx, sessionsLimit)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(summaries) == 0 {
		ui.Info("No sessions recorded")
		return nil
	}

	table := ui.Table([]string{"Session", "Mode", "Turns", "Failed", "Last query", "Last activity"})
	for _, sum := range summaries {
		failed := strconv.Itoa(sum.Failures)
		if sum.Failures > 0 {
			failed = output.Red(failed)
		}
		_ = table.Append([]string{
			sum.SessionID,
			string(sum.LastMode),
			strconv.Itoa(sum.Turns),
			failed,
			truncate(sum.LastQuery, 48),
			sum.LastAt.Local().Format(time.DateTime),
		})
	}
	return table.Render()
}

func sessionsShowRun(ctx context.Context, id string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	warnMemoryStore()

	s, err := getStore()
	if err != nil {
		return err
	}
	turns, err := s.ListTurns(ctx, id)
	if err != nil {
		return fmt.Errorf("list turns: %w", err)
	}
	if len(turns) == 0 {
		return fmt.Errorf("no turns recorded for session %s", id)
	}

	for i, t := range turns {
		status := output.PhaseColor("ready")
		if t.Failed() {
			status = output.PhaseColor("error")
		}
		fmt.Fprintf(ui.Out, "%s %s [%s, %s] %s  %s\n",
			output.Cyan(fmt.Sprintf("#%d", i+1)), t.Query, t.Mode, t.Kind, status,
			t.Duration.Round(time.Millisecond))

		if t.Failed() {
			fmt.Fprintf(ui.Out, "  %s\n\n", output.Red(t.Error))
			continue
		}
		fmt.Fprintln(ui.Out, output.Markdown(t.Summary, summaryWidth))
		for _, src := range t.Sources {
			fmt.Fprintf(ui.Out, "  %s %s  %s\n", output.SourceTypeColor(string(src.Type)), src.Title, src.URL)
		}
		fmt.Fprintln(ui.Out)
	}
	return nil
}

func sessionsDeleteRun(ctx context.Context, id string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := getStore()
	if err != nil {
		return err
	}
	n, err := s.DeleteTurns(ctx, id)
	if err != nil {
		return fmt.Errorf("delete turns: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("no turns recorded for session %s", id)
	}
	ui.Success("Deleted %d turn(s) of session %s", n, id)
	return nil
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
