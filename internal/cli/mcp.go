package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	devmcp "github.com/valter-silva-au/devflow/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  "Commands for running the devflow MCP (Model Context Protocol) server.",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the devflow MCP server on stdio",
	Long: `Start the devflow MCP server on stdio transport.

The server exposes the workflows as MCP tools that AI coding assistants can
call: checkin, list_candidates, select_task, pause_task, resume_task,
complete_task, cleanup_worktree, debrief, worktree_status, get_metrics and
get_alerts.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireOrchestrator(); err != nil {
			return err
		}

		srv := devmcp.NewServer(Orchestrator, MetricsCalc, AlertEngine, appVersion)
		if err := srv.Run(commandContext(cmd)); err != nil {
			return fmt.Errorf("running MCP server: %w", err)
		}
		return nil
	},
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}
