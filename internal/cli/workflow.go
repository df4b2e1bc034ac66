package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/devflow/internal/core"
)

func requireOrchestrator() error {
	if Orchestrator == nil {
		return fmt.Errorf("orchestrator not initialized")
	}
	return nil
}

// requireWorkflow checks that the remote workflows can run.
func requireWorkflow() error {
	if err := requireOrchestrator(); err != nil {
		return err
	}
	if WorkflowConfigErr != nil {
		return fmt.Errorf("%w\nset them in ~/.devflow/config.yaml or .devflow.yaml", WorkflowConfigErr)
	}
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// worktreeKey returns the branch or task ID given on the command line, or
// the branch checked out in the working directory.
func worktreeKey(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	if CurrentBranch == nil {
		return "", fmt.Errorf("no branch or task ID given")
	}
	branch, err := CurrentBranch(commandContext(cmd))
	if err != nil {
		return "", fmt.Errorf("detecting current branch (pass a branch or task ID): %w", err)
	}
	return branch, nil
}

// report prints the outcome and returns an error when any step failed.
func report(cmd *cobra.Command, out *core.Outcome) error {
	fmt.Fprint(cmd.OutOrStdout(), renderOutcome(out, nowFunc()))
	return outcomeError(out)
}
