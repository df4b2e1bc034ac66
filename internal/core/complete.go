package core

import (
	"context"
	"errors"

	"github.com/valter-silva-au/devflow/pkg/models"
)

// Complete delivers the task: push, merge request, worktree removal, task
// moved to review, link noted on the task, announcement in today's thread.
// A failed removal is reported with its manual command while the remaining
// steps still run.
func (o *orchestrator) Complete(ctx context.Context, key string, draft MergeRequestDraft) *Outcome {
	s := o.begin("complete")
	skipAfter := func(reason string) *Outcome {
		s.skip(SystemTaskStore, "update_status", reason)
		s.skip(SystemTaskStore, "append_note", reason)
		s.skip(SystemChat, "notify", reason)
		return s.done()
	}

	rec, ok := o.lookup(s, key)
	if !ok {
		s.skip(SystemWorktree, "complete", "no worktree")
		return skipAfter("no worktree")
	}

	res, err := o.deps.Lifecycle.Complete(ctx, rec, draft)
	var cleanup *CleanupError
	switch {
	case err == nil:
		s.ok(SystemCodeHost, "merge_request", mrDetail(res))
		s.ok(SystemWorktree, "remove", rec.Path)
	case errors.As(err, &cleanup) && res != nil:
		s.ok(SystemCodeHost, "merge_request", mrDetail(res))
		s.record(SystemWorktree, "remove", StepFailed, cleanup.ManualCommand, err)
	default:
		s.fail(SystemWorktree, "complete", err)
		return skipAfter("completion failed")
	}
	s.out.MergeRequest = res.MergeRequest

	o.updateStatus(ctx, s, rec.TaskID, models.StatusInReview)
	if res.MergeRequest != nil && res.MergeRequest.URL != "" {
		o.appendNote(ctx, s, rec.TaskID, "Merge request: "+res.MergeRequest.URL)
	} else {
		s.skip(SystemTaskStore, "append_note", "no merge request URL")
	}
	o.notify(ctx, s, o.now(), CompletionMessage(rec, res.MergeRequest))
	return s.done()
}

// RetryCleanup reruns worktree removal for a record left COMPLETING.
func (o *orchestrator) RetryCleanup(ctx context.Context, key string) *Outcome {
	s := o.begin("cleanup")
	rec, ok := o.lookup(s, key)
	if !ok {
		s.skip(SystemWorktree, "remove", "no worktree")
		return s.done()
	}
	if err := o.deps.Lifecycle.RetryCleanup(ctx, rec); err != nil {
		var cleanup *CleanupError
		if errors.As(err, &cleanup) {
			s.record(SystemWorktree, "remove", StepFailed, cleanup.ManualCommand, err)
		} else {
			s.fail(SystemWorktree, "remove", err)
		}
		return s.done()
	}
	s.ok(SystemWorktree, "remove", rec.Path)
	return s.done()
}

func mrDetail(res *CompletionResult) string {
	if res == nil || res.MergeRequest == nil {
		return ""
	}
	if res.ReusedMergeRequest {
		return "reused " + res.MergeRequest.URL
	}
	return "created " + res.MergeRequest.URL
}
