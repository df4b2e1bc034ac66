package cli

import (
	"github.com/spf13/cobra"
)

var checkinCmd = &cobra.Command{
	Use:   "checkin",
	Short: "Post or update today's check-in in the team thread",
	Long: `Find every task of the workstream, summarise them by due date and status,
and post the summary to the team channel.

The first check-in of the day starts the daily thread; later runs reply to it
as an update.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireWorkflow(); err != nil {
			return err
		}
		return report(cmd, Orchestrator.CheckIn(commandContext(cmd), nowFunc()))
	},
}

var candidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "List the tasks that can be selected",
	Long: `List the to do, in progress and blocked tasks of the workstream, overdue
and high-priority tasks first.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireWorkflow(); err != nil {
			return err
		}
		return report(cmd, Orchestrator.Candidates(commandContext(cmd), nowFunc()))
	},
}

var debriefCmd = &cobra.Command{
	Use:   "debrief",
	Short: "Post the end-of-day summary",
	Long: `Correlate today's merge requests with finished tasks and reply to the daily
thread with what was delivered, what awaits review and what is still open.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireWorkflow(); err != nil {
			return err
		}
		return report(cmd, Orchestrator.Debrief(commandContext(cmd), nowFunc()))
	},
}

func init() {
	rootCmd.AddCommand(checkinCmd)
	rootCmd.AddCommand(candidatesCmd)
	rootCmd.AddCommand(debriefCmd)
}
