package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
	devmcp "github.com/valter-silva-au/devflow/internal/mcp"
)

var (
	metricsJSON  bool
	metricsSince string
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Display workflow metrics",
	Long: `Display aggregated metrics derived from the event log.

Metrics include workflow runs, step outcomes, failures per external system
and the most recent failed steps.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if MetricsCalc == nil {
			return fmt.Errorf("metrics calculator not initialized (event log may be disabled)")
		}

		sinceTime, err := devmcp.ParseSince(metricsSince, nowFunc().UTC())
		if err != nil {
			return fmt.Errorf("parsing --since: %w", err)
		}

		metrics, err := MetricsCalc.Calculate(sinceTime)
		if err != nil {
			return fmt.Errorf("calculating metrics: %w", err)
		}

		w := cmd.OutOrStdout()
		if metricsJSON {
			data, err := json.MarshalIndent(metrics, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting metrics as JSON: %w", err)
			}
			fmt.Fprintln(w, string(data))
			return nil
		}

		fmt.Fprintf(w, "Metrics (since %s)\n\n", sinceTime.Format("2006-01-02"))
		fmt.Fprintf(w, "  %-24s %d\n", "Events recorded:", metrics.EventCount)
		fmt.Fprintf(w, "  %-24s %d\n", "Sessions:", metrics.Sessions)
		fmt.Fprintf(w, "  %-24s %d\n", "Sessions with failures:", metrics.FailedSessions)

		printCounts(cmd, "Workflow runs", metrics.WorkflowRuns)
		printCounts(cmd, "Steps by status", metrics.StepsByStatus)
		printCounts(cmd, "Failures by system", metrics.FailuresBySystem)

		if len(metrics.RecentFailedSteps) > 0 {
			fmt.Fprintln(w, "\n  Recent failures:")
			for _, f := range metrics.RecentFailedSteps {
				fmt.Fprintf(w, "    %s %s %s/%s: %s\n", f.Time.Format("01-02 15:04"), f.Workflow, f.System, f.Step, f.Error)
			}
		}

		if metrics.OldestEvent != nil {
			fmt.Fprintf(w, "\n  %-24s %s\n", "Oldest event:", metrics.OldestEvent.Format(time.RFC3339))
		}
		if metrics.NewestEvent != nil {
			fmt.Fprintf(w, "  %-24s %s\n", "Newest event:", metrics.NewestEvent.Format(time.RFC3339))
		}
		return nil
	},
}

func printCounts(cmd *cobra.Command, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(cmd.OutOrStdout(), "\n  %s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(cmd.OutOrStdout(), "    %-20s %d\n", k+":", counts[k])
	}
}

func init() {
	metricsCmd.Flags().BoolVar(&metricsJSON, "json", false, "Output metrics as JSON")
	metricsCmd.Flags().StringVar(&metricsSince, "since", "7d", "Time window for metrics (e.g. 7d, 30d, 24h)")
	rootCmd.AddCommand(metricsCmd)
}
