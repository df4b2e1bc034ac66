package core

import (
	"context"
	"errors"
	"fmt"
)

// Pause checkpoints the worktree and parks it, then notes the checkpoint on
// the task and in today's thread.
func (o *orchestrator) Pause(ctx context.Context, key, note string, push bool) *Outcome {
	s := o.begin("pause")
	rec, ok := o.lookup(s, key)
	if !ok {
		s.skip(SystemWorktree, "pause", "no worktree")
		s.skip(SystemTaskStore, "append_note", "no worktree")
		s.skip(SystemChat, "notify", "no worktree")
		return s.done()
	}

	err := o.deps.Lifecycle.Pause(ctx, rec, note, push)
	switch {
	case err == nil:
		s.ok(SystemWorktree, "pause", shortHash(rec.LastCommit))
	case errors.Is(err, ErrPartialFailure):
		s.ok(SystemWorktree, "pause", shortHash(rec.LastCommit))
		s.fail(SystemWorktree, "push", err)
	default:
		s.fail(SystemWorktree, "pause", err)
		s.skip(SystemTaskStore, "append_note", "pause failed")
		s.skip(SystemChat, "notify", "pause failed")
		return s.done()
	}

	text := fmt.Sprintf("Paused at checkpoint %s on branch %s.", shortHash(rec.LastCommit), rec.Branch)
	if note != "" {
		text += " " + note
	}
	o.appendNote(ctx, s, rec.TaskID, text)
	o.notify(ctx, s, o.now(), PauseMessage(rec, note))
	return s.done()
}

// Resume reopens a paused worktree and announces it.
func (o *orchestrator) Resume(ctx context.Context, key string) *Outcome {
	s := o.begin("resume")
	rec, ok := o.lookup(s, key)
	if !ok {
		s.skip(SystemWorktree, "resume", "no worktree")
		s.skip(SystemChat, "notify", "no worktree")
		return s.done()
	}
	if err := o.deps.Lifecycle.Resume(ctx, rec); err != nil {
		s.fail(SystemWorktree, "resume", err)
		s.skip(SystemChat, "notify", "resume failed")
		return s.done()
	}
	s.ok(SystemWorktree, "resume", rec.Path)
	o.notify(ctx, s, o.now(), ResumeMessage(rec))
	return s.done()
}
