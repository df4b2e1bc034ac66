package core

import (
	"context"
	"fmt"
	"time"

	"github.com/valter-silva-au/devflow/pkg/models"
)

// Debrief posts the end-of-day summary to today's thread: delivered tasks
// with their merge requests (or as direct edits), work in review, merge
// requests nobody claimed, and what is still open. Done tasks last edited
// before local midnight are left out.
func (o *orchestrator) Debrief(ctx context.Context, now time.Time) *Outcome {
	s := o.begin("debrief")

	tasks, ok := o.findTasks(ctx, s, models.AllStatuses)
	if !ok {
		s.skip(SystemCodeHost, "list_merge_requests", "no tasks")
		s.skip(SystemComposer, "compose", "no tasks")
		s.skip(SystemChat, "notify", "no tasks")
		return s.done()
	}

	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	callCtx, cancel := o.call(ctx)
	mrs, err := o.deps.CodeHost.ListMergeRequests(callCtx, models.MergeRequestFilter{CreatedAfter: &startOfDay})
	cancel()
	if err != nil {
		// The summary is still useful without merge requests.
		s.fail(SystemCodeHost, "list_merge_requests", err)
		mrs = nil
	} else {
		s.ok(SystemCodeHost, "list_merge_requests", fmt.Sprintf("%d merge requests", len(mrs)))
	}

	var delivered, inReview, open []models.Task
	for _, t := range tasks {
		switch t.Status {
		case models.StatusDone:
			// Done before today is not today's delivery.
			if !t.UpdatedAt.IsZero() && t.UpdatedAt.Before(startOfDay) {
				continue
			}
			delivered = append(delivered, t)
		case models.StatusInReview:
			delivered = append(delivered, t)
			inReview = append(inReview, t)
		default:
			open = append(open, t)
		}
	}
	report := Correlate(delivered, mrs)
	s.out.Correlations = &report

	summary := BuildDebriefSummary(DebriefData{
		DateLabel:    DateLabel(now),
		Workstream:   o.cfg.Workstream,
		Correlations: report,
		InReview:     inReview,
		Open:         open,
		ProjectNames: o.cfg.ProjectNames,
	}, now)
	text, err := Compose(summary, o.cfg.Budget)
	if err != nil {
		s.fail(SystemComposer, "compose", err)
		s.skip(SystemChat, "notify", "message could not be composed")
		return s.done()
	}
	s.out.Message = text
	s.ok(SystemComposer, "compose", fmt.Sprintf("%d matched, %d merge requests unmatched", len(report.Matches), len(report.UnmatchedMergeRequests)))

	o.notify(ctx, s, now, text)
	return s.done()
}
