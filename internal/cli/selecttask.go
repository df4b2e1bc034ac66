package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/devflow/internal/core"
)

var (
	selectTaskID     string
	selectOnConflict string
)

var selectCmd = &cobra.Command{
	Use:   "select [task-id]",
	Short: "Start working on a task in its own worktree",
	Long: `Pick a task, mark it in progress, create its branch and worktree, note the
branch on the task and announce it in the daily thread.

Without a task ID an interactive list of candidates is shown. If the task's
worktree already exists you are asked whether to reuse it, create a suffixed
one or abort; --on-conflict answers in advance.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireWorkflow(); err != nil {
			return err
		}
		policy, ok := core.ParseConflictPolicy(selectOnConflict)
		if !ok {
			return fmt.Errorf("invalid --on-conflict %q: must be one of reuse, suffix, abort", selectOnConflict)
		}
		req := core.SelectRequest{TaskID: selectTaskID, OnConflict: policy}
		if len(args) > 0 {
			req.TaskID = args[0]
		}
		if NewChooser != nil {
			req.Chooser = NewChooser()
		}
		if req.TaskID == "" && req.Chooser == nil {
			return fmt.Errorf("not an interactive session: pass a task ID (see 'devflow candidates')")
		}
		return report(cmd, Orchestrator.Select(commandContext(cmd), nowFunc(), req))
	},
}

func init() {
	selectCmd.Flags().StringVar(&selectTaskID, "task", "", "Task ID to select without asking")
	selectCmd.Flags().StringVar(&selectOnConflict, "on-conflict", "", "When the worktree exists: reuse, suffix or abort")
	rootCmd.AddCommand(selectCmd)
}
