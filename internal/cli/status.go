package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the worktrees devflow manages",
	Long: `List every worktree record with its lifecycle state, task, checkpoint count
and last update. Works without any remote configuration.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireOrchestrator(); err != nil {
			return err
		}
		records, err := Orchestrator.Status()
		if err != nil {
			return fmt.Errorf("listing worktrees: %w", err)
		}

		if statusJSON {
			data, err := json.MarshalIndent(records, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting status as JSON: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		fmt.Fprint(cmd.OutOrStdout(), renderRecords(records))
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output records as JSON")
	rootCmd.AddCommand(statusCmd)
}
