package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/valter-silva-au/devflow/internal/core"
	"github.com/valter-silva-au/devflow/pkg/models"
)

// Style definitions.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	stepSucceeded = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	stepFailed    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	stepSkipped   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	stateInProgress = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	statePaused     = lipgloss.NewStyle().Foreground(lipgloss.Color("141"))
	stateCompleting = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	stateCreated    = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))
	stateRemoved    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	overdueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	severityHigh   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	severityMedium = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	severityLow    = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))

	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
)

func styleForStep(status core.StepStatus) (lipgloss.Style, string) {
	switch status {
	case core.StepSucceeded:
		return stepSucceeded, "ok"
	case core.StepFailed:
		return stepFailed, "FAILED"
	default:
		return stepSkipped, "skipped"
	}
}

func styleForState(state models.WorktreeState) lipgloss.Style {
	switch state {
	case models.WorktreeInProgress:
		return stateInProgress
	case models.WorktreePaused:
		return statePaused
	case models.WorktreeCompleting:
		return stateCompleting
	case models.WorktreeCreated:
		return stateCreated
	case models.WorktreeRemoved:
		return stateRemoved
	default:
		return lipgloss.NewStyle()
	}
}

func styleForSeverity(severity string) lipgloss.Style {
	switch strings.ToLower(severity) {
	case "high":
		return severityHigh
	case "medium":
		return severityMedium
	case "low":
		return severityLow
	default:
		return lipgloss.NewStyle()
	}
}

// renderOutcome formats the step breakdown of a workflow run followed by
// whatever the workflow produced.
func renderOutcome(out *core.Outcome, now time.Time) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(" " + out.Workflow + " "))
	b.WriteString(helpStyle.Render("  session " + out.SessionID))
	b.WriteString("\n\n")

	for _, st := range out.Steps {
		style, label := styleForStep(st.Status)
		line := fmt.Sprintf("  %-8s %s/%s", label, st.System, st.Step)
		b.WriteString(style.Render(line))
		switch {
		case st.Err != nil:
			b.WriteString(": " + st.Err.Error())
		case st.Detail != "":
			b.WriteString(helpStyle.Render(" (" + st.Detail + ")"))
		}
		b.WriteString("\n")
	}

	succeeded, failed, skipped := out.Counts()
	fmt.Fprintf(&b, "\n  %d succeeded, %d failed, %d skipped\n", succeeded, failed, skipped)

	if cmd := manualCleanup(out); cmd != "" {
		b.WriteString("\n" + stepFailed.Render("  Worktree removal failed. Clean up manually with:") + "\n")
		b.WriteString("    " + cmd + "\n")
	}

	if out.Workflow == "candidates" || (out.Workflow == "select" && out.Record == nil) {
		if len(out.Tasks) > 0 {
			b.WriteString("\n" + renderTasks(out.Tasks, now))
		}
	}
	if out.Record != nil {
		b.WriteString("\n" + headerStyle.Render("Worktree") + "\n")
		fmt.Fprintf(&b, "  %-10s %s\n", "branch:", out.Record.Branch)
		fmt.Fprintf(&b, "  %-10s %s\n", "path:", out.Record.Path)
		fmt.Fprintf(&b, "  %-10s %s\n", "state:", styleForState(out.Record.State).Render(string(out.Record.State)))
	}
	if mr := out.MergeRequest; mr != nil {
		b.WriteString("\n" + headerStyle.Render("Merge request") + "\n")
		fmt.Fprintf(&b, "  %s (%s)\n", mr.URL, mr.Status)
	}
	if out.Overview != nil {
		ov := out.Overview
		b.WriteString("\n" + headerStyle.Render(fmt.Sprintf("%s: %d active", ov.DateLabel, ov.Active)) + "\n")
		fmt.Fprintf(&b, "  overdue %d, due today %d, in progress %d, blocked %d, to do %d, completed %d\n",
			ov.Overdue, ov.DueToday, ov.InProgress, ov.Blocked, ov.ToDo, ov.Completed)
	}
	if out.Message != "" {
		b.WriteString("\n" + headerStyle.Render("Message") + "\n")
		for _, line := range strings.Split(out.Message, "\n") {
			b.WriteString("  " + line + "\n")
		}
	}
	return b.String()
}

func manualCleanup(out *core.Outcome) string {
	for _, st := range out.Steps {
		var ce *core.CleanupError
		if errors.As(st.Err, &ce) {
			return ce.ManualCommand
		}
	}
	return ""
}

// renderTasks formats tasks as a table in the order given.
func renderTasks(tasks []models.Task, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "  %-4s %-12s %-9s %-11s %-12s %s\n", "#", "ID", "PRIORITY", "DUE", "STATUS", "TITLE")
	for i, t := range tasks {
		due := "-"
		if t.DueDate != nil {
			due = t.DueDate.Format(time.DateOnly)
		}
		priority := string(t.Priority)
		if priority == "" {
			priority = "-"
		}
		line := fmt.Sprintf("  %-4d %-12s %-9s %-11s %-12s %s", i+1, t.ID, priority, due, t.Status, t.Title)
		if core.BucketOf(t, now) == core.BucketOverdue {
			line = overdueStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

// renderRecords formats worktree records as a table.
func renderRecords(records []models.WorktreeRecord) string {
	if len(records) == 0 {
		return "No worktrees.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "  %-40s %-12s %-12s %-6s %s\n", "BRANCH", "STATE", "TASK", "CKPTS", "UPDATED")
	for _, r := range records {
		state := styleForState(r.State).Render(fmt.Sprintf("%-12s", r.State))
		fmt.Fprintf(&b, "  %-40s %s %-12s %-6d %s\n", r.Branch, state, r.TaskID, r.Checkpoints, r.Updated.Format("2006-01-02 15:04"))
	}
	return b.String()
}

// outcomeError turns failed steps into a command error so the exit status
// reflects them.
func outcomeError(out *core.Outcome) error {
	_, failed, _ := out.Counts()
	if failed == 0 {
		return nil
	}
	return fmt.Errorf("%s: %d of %d steps failed: %w", out.Workflow, failed, len(out.Steps), core.ErrPartialFailure)
}
