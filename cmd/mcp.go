package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/joescharf/ka/internal/mcp"
	"github.com/joescharf/ka/internal/session"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for Claude Code integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

The server holds one search session for its lifetime. Configure in
Claude Code with:

  {
    "mcpServers": {
      "ka": { "command": "ka", "args": ["mcp"] }
    }
  }

Available tools: ka_search, ka_follow_up, ka_switch_mode, ka_state`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcpRun(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

// newMCPServer wires the session the MCP tools operate on.
func newMCPServer() (*mcp.Server, error) {
	log, err := getLogger()
	if err != nil {
		return nil, err
	}
	mode, err := defaultMode()
	if err != nil {
		return nil, err
	}
	client, err := searchClientFunc(log)
	if err != nil {
		return nil, err
	}

	ctl := session.New(client, mode, sessionOptions(log)...)
	return mcp.NewServer(ctl, buildVersion, log), nil
}

func mcpRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	srv, err := newMCPServer()
	if err != nil {
		return err
	}
	return srv.ServeStdio(ctx)
}
