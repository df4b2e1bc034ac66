package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/devflow/internal/core"
	"github.com/valter-silva-au/devflow/pkg/models"
)

// fakeOrchestrator records the calls made by the commands.
type fakeOrchestrator struct {
	selects []core.SelectRequest
	keys    []string
	drafts  []core.MergeRequestDraft
	outcome *core.Outcome
	records []models.WorktreeRecord
	listErr error
}

func (f *fakeOrchestrator) result(workflow string) *core.Outcome {
	if f.outcome != nil {
		return f.outcome
	}
	return &core.Outcome{
		Workflow:  workflow,
		SessionID: "session-1",
		Steps:     []core.StepResult{{System: core.SystemChat, Step: "notify", Status: core.StepSucceeded}},
	}
}

func (f *fakeOrchestrator) CheckIn(context.Context, time.Time) *core.Outcome {
	return f.result("checkin")
}

func (f *fakeOrchestrator) Candidates(context.Context, time.Time) *core.Outcome {
	return f.result("candidates")
}

func (f *fakeOrchestrator) Select(_ context.Context, _ time.Time, req core.SelectRequest) *core.Outcome {
	f.selects = append(f.selects, req)
	return f.result("select")
}

func (f *fakeOrchestrator) Pause(_ context.Context, key, _ string, _ bool) *core.Outcome {
	f.keys = append(f.keys, key)
	return f.result("pause")
}

func (f *fakeOrchestrator) Resume(_ context.Context, key string) *core.Outcome {
	f.keys = append(f.keys, key)
	return f.result("resume")
}

func (f *fakeOrchestrator) Complete(_ context.Context, key string, draft core.MergeRequestDraft) *core.Outcome {
	f.keys = append(f.keys, key)
	f.drafts = append(f.drafts, draft)
	return f.result("complete")
}

func (f *fakeOrchestrator) RetryCleanup(_ context.Context, key string) *core.Outcome {
	f.keys = append(f.keys, key)
	return f.result("cleanup")
}

func (f *fakeOrchestrator) Debrief(context.Context, time.Time) *core.Outcome {
	return f.result("debrief")
}

func (f *fakeOrchestrator) Status() ([]models.WorktreeRecord, error) {
	return f.records, f.listErr
}

type fakeChooser struct{}

func (fakeChooser) RequestChoice(context.Context, string, []core.Choice) (int, error) {
	return 0, nil
}

// withOrchestrator installs orch and a fully configured workflow for the
// duration of the test.
func withOrchestrator(t *testing.T, orch core.Orchestrator) {
	t.Helper()
	origOrch, origErr, origBranch, origChooser := Orchestrator, WorkflowConfigErr, CurrentBranch, NewChooser
	origNow := nowFunc
	t.Cleanup(func() {
		Orchestrator, WorkflowConfigErr, CurrentBranch, NewChooser = origOrch, origErr, origBranch, origChooser
		nowFunc = origNow
	})
	Orchestrator = orch
	WorkflowConfigErr = nil
	CurrentBranch = nil
	NewChooser = nil
	nowFunc = func() time.Time { return time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC) }
}

// run executes cmd's RunE with its output captured.
func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	t.Cleanup(func() { cmd.SetOut(nil) })
	err := cmd.RunE(cmd, args)
	return out.String(), err
}

var errBoom = errors.New("boom")
