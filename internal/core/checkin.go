package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/valter-silva-au/devflow/pkg/models"
)

// CheckIn posts the daily overview. When today's thread already exists the
// overview is posted as an update reply; a second root message is never
// created for the same day.
func (o *orchestrator) CheckIn(ctx context.Context, now time.Time) *Outcome {
	s := o.begin("checkin")

	tasks, ok := o.findTasks(ctx, s, models.AllStatuses)
	if !ok {
		s.skip(SystemChat, "find_thread", "no tasks to report")
		s.skip(SystemComposer, "compose", "no tasks to report")
		s.skip(SystemChat, "post", "no tasks to report")
		return s.done()
	}

	label := DateLabel(now)
	thread, err := o.deps.Threads.FindTodayThread(ctx, o.cfg.ChannelID, label)
	switch {
	case err == nil:
		s.ok(SystemChat, "find_thread", thread.TimestampID)
	case errors.Is(err, ErrNotFound):
		s.ok(SystemChat, "find_thread", "no thread for "+label)
	default:
		// Posting a root message now could duplicate the daily thread.
		s.fail(SystemChat, "find_thread", err)
		s.skip(SystemComposer, "compose", "thread lookup failed")
		s.skip(SystemChat, "post", "thread lookup failed")
		return s.done()
	}

	summary, overview := BuildCheckInSummary(tasks, now, CheckInOptions{
		Workstream:   o.cfg.Workstream,
		ProjectNames: o.cfg.ProjectNames,
		Update:       thread != nil,
	})
	s.out.Overview = &overview
	text, err := Compose(summary, o.cfg.Budget)
	if err != nil {
		s.fail(SystemComposer, "compose", err)
		s.skip(SystemChat, "post", "message could not be composed")
		return s.done()
	}
	s.out.Message = text
	s.ok(SystemComposer, "compose", fmt.Sprintf("%d chars", MessageLength(text)))

	if thread != nil {
		callCtx, cancel := o.call(ctx)
		err := o.deps.Messenger.Reply(callCtx, o.cfg.ChannelID, thread.TimestampID, text)
		cancel()
		if err != nil {
			s.fail(SystemChat, "reply", err)
			return s.done()
		}
		s.out.ThreadTS = thread.TimestampID
		s.ok(SystemChat, "reply", "update in "+thread.TimestampID)
		return s.done()
	}

	callCtx, cancel := o.call(ctx)
	ts, err := o.deps.Messenger.Post(callCtx, o.cfg.ChannelID, text)
	cancel()
	if err != nil {
		s.fail(SystemChat, "post", err)
		return s.done()
	}
	s.out.ThreadTS = ts
	s.ok(SystemChat, "post", "thread "+ts)
	return s.done()
}

// findTasks runs the search aggregator and records the search step.
func (o *orchestrator) findTasks(ctx context.Context, s *session, statuses []models.TaskStatus) ([]models.Task, bool) {
	res, err := o.deps.Search.FindTasks(ctx, o.cfg.Workstream, statuses)
	if err != nil {
		s.fail(SystemTaskStore, "search", err)
		return nil, false
	}
	detail := fmt.Sprintf("%d tasks from %d candidates", len(res.Tasks), res.Candidates)
	if len(res.Unverified) > 0 {
		detail += fmt.Sprintf(", %d unverified", len(res.Unverified))
	}
	if len(res.FailedQueries) > 0 {
		detail += fmt.Sprintf(", %d queries failed", len(res.FailedQueries))
	}
	s.ok(SystemTaskStore, "search", detail)
	s.out.Tasks = res.Tasks
	return res.Tasks, true
}
