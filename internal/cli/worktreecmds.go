package cli

import (
	"github.com/spf13/cobra"
	"github.com/valter-silva-au/devflow/internal/core"
)

var (
	pauseNote     string
	pausePush     bool
	completeTitle string
	completeBody  string
)

var pauseCmd = &cobra.Command{
	Use:   "pause [branch-or-task]",
	Short: "Checkpoint and pause work on a task",
	Long: `Commit all changes in the worktree as a WIP checkpoint, mark it paused, add
the note to the task and tell the daily thread.

Defaults to the branch checked out in the current directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireOrchestrator(); err != nil {
			return err
		}
		key, err := worktreeKey(cmd, args)
		if err != nil {
			return err
		}
		return report(cmd, Orchestrator.Pause(commandContext(cmd), key, pauseNote, pausePush))
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume [branch-or-task]",
	Short: "Resume a paused task",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireOrchestrator(); err != nil {
			return err
		}
		key, err := worktreeKey(cmd, args)
		if err != nil {
			return err
		}
		return report(cmd, Orchestrator.Resume(commandContext(cmd), key))
	},
}

var completeCmd = &cobra.Command{
	Use:   "complete [branch-or-task]",
	Short: "Push, open a merge request and remove the worktree",
	Long: `Finish a task: push its branch, open a merge request (or reuse the open
one), remove the worktree, move the task to review, link the merge request on
the task and tell the daily thread.

If the worktree cannot be removed the task stays completing and the exact
cleanup command is printed; 'devflow cleanup' retries the removal.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireWorkflow(); err != nil {
			return err
		}
		key, err := worktreeKey(cmd, args)
		if err != nil {
			return err
		}
		draft := core.MergeRequestDraft{Title: completeTitle, Body: completeBody}
		return report(cmd, Orchestrator.Complete(commandContext(cmd), key, draft))
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup <branch-or-task>",
	Short: "Retry removing the worktree of a completed task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireOrchestrator(); err != nil {
			return err
		}
		return report(cmd, Orchestrator.RetryCleanup(commandContext(cmd), args[0]))
	},
}

func init() {
	pauseCmd.Flags().StringVarP(&pauseNote, "note", "m", "", "Progress note used as the checkpoint message")
	pauseCmd.Flags().BoolVar(&pausePush, "push", false, "Also push the checkpoint")
	completeCmd.Flags().StringVar(&completeTitle, "title", "", "Merge request title (defaults to the task ID and title)")
	completeCmd.Flags().StringVar(&completeBody, "body", "", "Merge request description")

	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(cleanupCmd)
}
