package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/valter-silva-au/devflow/pkg/models"
)

// SelectableStatuses are the statuses offered when choosing what to work on.
var SelectableStatuses = []models.TaskStatus{
	models.StatusToDo,
	models.StatusInProgress,
	models.StatusBlocked,
}

// Candidates lists the tasks that can be selected, in display order.
func (o *orchestrator) Candidates(ctx context.Context, now time.Time) *Outcome {
	s := o.begin("candidates")
	if tasks, ok := o.findTasks(ctx, s, SelectableStatuses); ok {
		s.out.Tasks = SortTasks(tasks, now)
	}
	return s.done()
}

// Select starts work on one task: create and start its worktree, mark the
// task in progress, note the branch on it, then announce it in today's
// thread. Nothing is written to the task store unless the worktree is ready.
func (o *orchestrator) Select(ctx context.Context, now time.Time, req SelectRequest) *Outcome {
	s := o.begin("select")
	skipRest := func(reason string) *Outcome {
		s.skip(SystemTaskStore, "update_status", reason)
		s.skip(SystemWorktree, "create", reason)
		s.skip(SystemTaskStore, "append_note", reason)
		s.skip(SystemChat, "notify", reason)
		return s.done()
	}

	tasks, ok := o.findTasks(ctx, s, SelectableStatuses)
	if !ok {
		return skipRest("no candidates")
	}
	tasks = SortTasks(tasks, now)
	s.out.Tasks = tasks

	task, ok := o.chooseTask(ctx, s, tasks, req, now)
	if !ok {
		return skipRest("no task selected")
	}

	rec, ok := o.openWorktree(ctx, s, task, req)
	if !ok {
		s.skip(SystemTaskStore, "update_status", "no worktree")
		s.skip(SystemTaskStore, "append_note", "no worktree")
		s.skip(SystemChat, "notify", "no worktree")
		return s.done()
	}
	s.out.Record = rec

	o.updateStatus(ctx, s, task.ID, models.StatusInProgress)
	o.appendNote(ctx, s, task.ID, fmt.Sprintf("Work started on branch %s (worktree %s).", rec.Branch, rec.Path))
	o.notify(ctx, s, now, SelectionMessage(task, rec))
	return s.done()
}

func (o *orchestrator) chooseTask(ctx context.Context, s *session, tasks []models.Task, req SelectRequest, now time.Time) (models.Task, bool) {
	if req.TaskID != "" {
		want := NormalizeID(req.TaskID)
		for _, t := range tasks {
			if t.ID == req.TaskID || NormalizeID(t.ID) == want {
				s.ok(SystemUser, "choose_task", t.ID)
				return t, true
			}
		}
		s.fail(SystemUser, "choose_task", fmt.Errorf("task %s is not a selectable %s task: %w", req.TaskID, o.cfg.Workstream, ErrNotFound))
		return models.Task{}, false
	}
	if len(tasks) == 0 {
		s.skip(SystemUser, "choose_task", "no selectable tasks")
		return models.Task{}, false
	}
	if req.Chooser == nil {
		s.fail(SystemUser, "choose_task", errors.New("no task ID given and no chooser available"))
		return models.Task{}, false
	}

	options := make([]Choice, len(tasks))
	for i, t := range tasks {
		options[i] = Choice{Label: t.Title, Description: fmt.Sprintf("%s · %s · %s", t.ID, t.Status.Label(), BucketOf(t, now))}
	}
	idx, err := req.Chooser.RequestChoice(ctx, "Which task do you want to work on?", options)
	if errors.Is(err, ErrChoiceAborted) {
		s.skip(SystemUser, "choose_task", "aborted")
		return models.Task{}, false
	}
	if err != nil {
		s.fail(SystemUser, "choose_task", err)
		return models.Task{}, false
	}
	if idx < 0 || idx >= len(tasks) {
		s.fail(SystemUser, "choose_task", fmt.Errorf("choice %d out of range", idx))
		return models.Task{}, false
	}
	s.ok(SystemUser, "choose_task", tasks[idx].ID)
	return tasks[idx], true
}

// Options offered when the worktree for a task already exists.
var conflictChoices = []Choice{
	{Label: "Reuse", Description: "continue in the existing worktree"},
	{Label: "Suffix", Description: "create a new worktree with a numbered suffix"},
	{Label: "Abort", Description: "leave everything as it is"},
}

// openWorktree creates and starts the task worktree, resolving an existing
// one by policy or by asking.
func (o *orchestrator) openWorktree(ctx context.Context, s *session, task models.Task, req SelectRequest) (*models.WorktreeRecord, bool) {
	rec, err := o.deps.Lifecycle.Create(ctx, task)
	if err == nil {
		s.ok(SystemWorktree, "create", rec.Branch)
		return o.startWorktree(ctx, s, rec)
	}
	if !errors.Is(err, ErrAlreadyExists) {
		s.fail(SystemWorktree, "create", err)
		return nil, false
	}

	policy := req.OnConflict
	if policy == ConflictAsk {
		if req.Chooser == nil {
			s.fail(SystemWorktree, "create", err)
			return nil, false
		}
		idx, cerr := req.Chooser.RequestChoice(ctx, fmt.Sprintf("A worktree for %s already exists.", task.ID), conflictChoices)
		switch {
		case errors.Is(cerr, ErrChoiceAborted):
			policy = ConflictAbort
		case cerr != nil:
			s.fail(SystemUser, "resolve_conflict", cerr)
			return nil, false
		case idx == 0:
			policy = ConflictReuse
		case idx == 1:
			policy = ConflictSuffix
		default:
			policy = ConflictAbort
		}
	}

	switch policy {
	case ConflictReuse:
		existing, lerr := o.deps.Lifecycle.Lookup(task.ID)
		if lerr != nil {
			s.fail(SystemWorktree, "reuse", fmt.Errorf("%w; no record to reuse: %w", err, lerr))
			return nil, false
		}
		s.ok(SystemWorktree, "reuse", existing.Branch)
		return o.startWorktree(ctx, s, existing)
	case ConflictSuffix:
		rec, err := o.deps.Lifecycle.CreateWithSuffix(ctx, task)
		if err != nil {
			s.fail(SystemWorktree, "create", err)
			return nil, false
		}
		s.ok(SystemWorktree, "create", rec.Branch)
		return o.startWorktree(ctx, s, rec)
	default:
		s.skip(SystemWorktree, "create", "worktree exists, aborted")
		return nil, false
	}
}

// startWorktree brings rec to IN_PROGRESS from CREATED or PAUSED.
func (o *orchestrator) startWorktree(ctx context.Context, s *session, rec *models.WorktreeRecord) (*models.WorktreeRecord, bool) {
	var err error
	switch rec.State {
	case models.WorktreeCreated:
		err = o.deps.Lifecycle.Start(ctx, rec)
	case models.WorktreePaused:
		err = o.deps.Lifecycle.Resume(ctx, rec)
	case models.WorktreeInProgress:
		s.ok(SystemWorktree, "start", "already in progress")
		return rec, true
	default:
		err = fmt.Errorf("worktree %s is %s: %w", rec.Branch, rec.State, ErrStateConflict)
	}
	if err != nil {
		s.fail(SystemWorktree, "start", err)
		return nil, false
	}
	s.ok(SystemWorktree, "start", string(rec.State))
	return rec, true
}
