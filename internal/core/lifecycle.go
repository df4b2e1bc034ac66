package core

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/valter-silva-au/devflow/pkg/models"
)

// WIPPrefix marks checkpoint commits as work in progress.
const WIPPrefix = "WIP: "

// WorktreeStore persists worktree records, one per branch. Get and FindByTask
// return nil without error when no record exists.
type WorktreeStore interface {
	Get(branch string) (*models.WorktreeRecord, error)
	FindByTask(taskID string) (*models.WorktreeRecord, error)
	List() ([]models.WorktreeRecord, error)
	Put(rec models.WorktreeRecord) error
	Delete(branch string) error
}

// MergeRequestDraft is the caller-supplied content of the merge request
// opened on completion. Empty fields are derived from the record.
type MergeRequestDraft struct {
	Title string
	Body  string
}

// CompletionResult describes what Complete achieved.
type CompletionResult struct {
	MergeRequest *models.MergeRequest
	// ReusedMergeRequest is true when an open merge request for the branch
	// already existed and no new one was created.
	ReusedMergeRequest bool
	// Removed is false when cleanup failed and the record stays COMPLETING.
	Removed bool
}

// WorktreeLifecycle owns the state machine of task worktrees:
//
//	NONE -> CREATED -> IN_PROGRESS -> {PAUSED, COMPLETING} -> REMOVED
//
// PAUSED returns to IN_PROGRESS on Resume. Invalid transitions fail with
// ErrStateConflict.
type WorktreeLifecycle interface {
	Create(ctx context.Context, task models.Task) (*models.WorktreeRecord, error)
	// CreateWithSuffix behaves like Create but appends -2, -3, ... to the
	// branch and path until a free name is found.
	CreateWithSuffix(ctx context.Context, task models.Task) (*models.WorktreeRecord, error)
	Start(ctx context.Context, rec *models.WorktreeRecord) error
	Checkpoint(ctx context.Context, rec *models.WorktreeRecord, message string, push bool) (string, error)
	Pause(ctx context.Context, rec *models.WorktreeRecord, message string, push bool) error
	Resume(ctx context.Context, rec *models.WorktreeRecord) error
	Complete(ctx context.Context, rec *models.WorktreeRecord, draft MergeRequestDraft) (*CompletionResult, error)
	RetryCleanup(ctx context.Context, rec *models.WorktreeRecord) error
	// Lookup finds the record for a branch name or a task ID.
	Lookup(key string) (*models.WorktreeRecord, error)
	List() ([]models.WorktreeRecord, error)
}

// LifecycleOptions configures a WorktreeLifecycle.
type LifecycleOptions struct {
	RepoPath      string
	BasePath      string
	BranchPrefix  string
	DefaultBranch string
	Remote        string
	CallTimeout   time.Duration
	Logger        *slog.Logger
	Now           func() time.Time
}

type worktreeLifecycle struct {
	vcs      VCS
	codeHost CodeHost
	store    WorktreeStore
	workDir  WorkDir
	opts     LifecycleOptions
	logger   *slog.Logger
}

const maxNameSuffix = 20

// NewWorktreeLifecycle creates a WorktreeLifecycle for one repository.
func NewWorktreeLifecycle(vcs VCS, codeHost CodeHost, store WorktreeStore, workDir WorkDir, opts LifecycleOptions) WorktreeLifecycle {
	if opts.DefaultBranch == "" {
		opts.DefaultBranch = "main"
	}
	if opts.Remote == "" {
		opts.Remote = "origin"
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &worktreeLifecycle{
		vcs:      vcs,
		codeHost: codeHost,
		store:    store,
		workDir:  workDir,
		opts:     opts,
		logger:   loggerOrDiscard(opts.Logger),
	}
}

func (l *worktreeLifecycle) call(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, l.opts.CallTimeout)
}

// requireState returns ErrStateConflict unless rec is in one of allowed.
func requireState(op string, rec *models.WorktreeRecord, allowed ...models.WorktreeState) error {
	if rec == nil {
		return fmt.Errorf("%s: no worktree record: %w", op, ErrNotFound)
	}
	state := rec.State
	if state == "" {
		state = models.WorktreeNone
	}
	for _, s := range allowed {
		if state == s {
			return nil
		}
	}
	names := make([]string, len(allowed))
	for i, s := range allowed {
		names[i] = string(s)
	}
	return fmt.Errorf("%s %s: state is %s, want %s: %w", op, rec.Branch, state, strings.Join(names, " or "), ErrStateConflict)
}

func (l *worktreeLifecycle) save(rec *models.WorktreeRecord) error {
	rec.Updated = l.opts.Now().UTC()
	if err := l.store.Put(*rec); err != nil {
		return fmt.Errorf("saving worktree record %s: %w", rec.Branch, err)
	}
	return nil
}

func (l *worktreeLifecycle) Create(ctx context.Context, task models.Task) (*models.WorktreeRecord, error) {
	branch := BranchName(l.opts.BranchPrefix, task.ID, task.Title)
	path := WorktreePath(l.opts.BasePath, l.opts.BranchPrefix, task.ID, task.Title)
	return l.create(ctx, task, branch, path)
}

func (l *worktreeLifecycle) CreateWithSuffix(ctx context.Context, task models.Task) (*models.WorktreeRecord, error) {
	branch := BranchName(l.opts.BranchPrefix, task.ID, task.Title)
	path := WorktreePath(l.opts.BasePath, l.opts.BranchPrefix, task.ID, task.Title)
	for n := 2; n <= maxNameSuffix; n++ {
		suffix := fmt.Sprintf("-%d", n)
		rec, err := l.create(ctx, task, branch+suffix, path+suffix)
		if err == nil || !isAlreadyExists(err) {
			return rec, err
		}
	}
	return nil, fmt.Errorf("creating worktree for %s: no free suffix up to %d: %w", task.ID, maxNameSuffix, ErrAlreadyExists)
}

func (l *worktreeLifecycle) create(ctx context.Context, task models.Task, branch, path string) (*models.WorktreeRecord, error) {
	if task.ID == "" {
		return nil, fmt.Errorf("creating worktree: task ID is empty")
	}
	if err := l.ensureFree(ctx, branch, path); err != nil {
		return nil, err
	}

	fetchCtx, cancel := l.call(ctx)
	baseRef, err := l.vcs.FetchDefault(fetchCtx, l.opts.RepoPath, l.opts.Remote, l.opts.DefaultBranch)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("creating worktree %s: fetching %s: %w", branch, l.opts.DefaultBranch, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating worktree %s: creating parent directory: %w", branch, err)
	}
	createCtx, cancel := l.call(ctx)
	err = l.vcs.CreateWorktree(createCtx, l.opts.RepoPath, branch, baseRef, path)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("creating worktree %s: %w", branch, err)
	}

	now := l.opts.Now().UTC()
	rec := &models.WorktreeRecord{
		Path:      path,
		Branch:    branch,
		TaskID:    task.ID,
		TaskTitle: task.Title,
		RepoPath:  l.opts.RepoPath,
		BaseRef:   baseRef,
		State:     models.WorktreeCreated,
		Created:   now,
	}
	if err := l.save(rec); err != nil {
		return nil, err
	}
	l.logger.Info("worktree created", "task_id", task.ID, "branch", branch, "path", path, "base_ref", baseRef)
	return rec, nil
}

// ensureFree fails with ErrAlreadyExists if a record, a directory or a git
// branch already uses the name.
func (l *worktreeLifecycle) ensureFree(ctx context.Context, branch, path string) error {
	existing, err := l.store.Get(branch)
	if err != nil {
		return fmt.Errorf("checking worktree record %s: %w", branch, err)
	}
	if existing != nil {
		return fmt.Errorf("worktree record for branch %s (%s): %w", branch, existing.State, ErrAlreadyExists)
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("worktree path %s: %w", path, ErrAlreadyExists)
	}
	branchCtx, cancel := l.call(ctx)
	defer cancel()
	exists, err := l.vcs.BranchExists(branchCtx, l.opts.RepoPath, branch)
	if err != nil {
		return fmt.Errorf("checking branch %s: %w", branch, err)
	}
	if exists {
		return fmt.Errorf("branch %s: %w", branch, ErrAlreadyExists)
	}
	return nil
}

func (l *worktreeLifecycle) Start(_ context.Context, rec *models.WorktreeRecord) error {
	if err := requireState("starting", rec, models.WorktreeCreated); err != nil {
		return err
	}
	rec.State = models.WorktreeInProgress
	return l.save(rec)
}

func (l *worktreeLifecycle) Checkpoint(ctx context.Context, rec *models.WorktreeRecord, message string, push bool) (string, error) {
	if err := requireState("checkpointing", rec, models.WorktreeInProgress, models.WorktreePaused); err != nil {
		return "", err
	}
	return l.checkpoint(ctx, rec, message, push)
}

// checkpoint stages everything and records a new WIP commit. A push failure
// after a successful commit keeps the commit and reports ErrPartialFailure.
func (l *worktreeLifecycle) checkpoint(ctx context.Context, rec *models.WorktreeRecord, message string, push bool) (string, error) {
	if strings.TrimSpace(message) == "" {
		message = "checkpoint " + l.opts.Now().UTC().Format(time.RFC3339)
	}

	stageCtx, cancel := l.call(ctx)
	err := l.vcs.StageAll(stageCtx, rec.Path)
	cancel()
	if err != nil {
		return "", fmt.Errorf("checkpointing %s: staging: %w", rec.Branch, err)
	}

	commitCtx, cancel := l.call(ctx)
	hash, err := l.vcs.Commit(commitCtx, rec.Path, WIPPrefix+message)
	cancel()
	if err != nil {
		return "", fmt.Errorf("checkpointing %s: committing: %w", rec.Branch, err)
	}
	rec.Checkpoints++
	rec.LastCommit = hash
	if err := l.save(rec); err != nil {
		return hash, err
	}
	l.logger.Info("checkpoint committed", "branch", rec.Branch, "commit", hash, "checkpoints", rec.Checkpoints)

	if push {
		pushCtx, cancel := l.call(ctx)
		err := l.vcs.Push(pushCtx, rec.Path, l.opts.Remote, rec.Branch, true)
		cancel()
		if err != nil {
			return hash, fmt.Errorf("pushing checkpoint %s: %w: %w", rec.Branch, ErrPartialFailure, err)
		}
	}
	return hash, nil
}

// Pause checkpoints and moves to PAUSED. Pausing an already paused record
// takes one more checkpoint and stays PAUSED. The worktree is kept.
func (l *worktreeLifecycle) Pause(ctx context.Context, rec *models.WorktreeRecord, message string, push bool) error {
	if err := requireState("pausing", rec, models.WorktreeInProgress, models.WorktreePaused); err != nil {
		return err
	}
	_, cpErr := l.checkpoint(ctx, rec, message, push)
	if cpErr != nil && !isPartial(cpErr) {
		return cpErr
	}
	rec.State = models.WorktreePaused
	if err := l.save(rec); err != nil {
		return err
	}
	return cpErr
}

func (l *worktreeLifecycle) Resume(_ context.Context, rec *models.WorktreeRecord) error {
	if err := requireState("resuming", rec, models.WorktreePaused); err != nil {
		return err
	}
	rec.State = models.WorktreeInProgress
	return l.save(rec)
}

// Complete pushes the branch, opens (or reuses) the merge request and then
// removes the worktree. Push and merge-request failures return the record to
// IN_PROGRESS. A removal failure keeps COMPLETING and returns a
// *CleanupError; the merge request is not rolled back.
func (l *worktreeLifecycle) Complete(ctx context.Context, rec *models.WorktreeRecord, draft MergeRequestDraft) (*CompletionResult, error) {
	if err := requireState("completing", rec, models.WorktreeInProgress); err != nil {
		return nil, err
	}
	if err := l.requireCommitted(ctx, rec); err != nil {
		return nil, err
	}

	rec.State = models.WorktreeCompleting
	if err := l.save(rec); err != nil {
		return nil, err
	}

	pushCtx, cancel := l.call(ctx)
	err := l.vcs.Push(pushCtx, rec.Path, l.opts.Remote, rec.Branch, true)
	cancel()
	if err != nil {
		return nil, l.revert(rec, fmt.Errorf("completing %s: pushing: %w", rec.Branch, err))
	}

	mr, reused, err := l.openMergeRequest(ctx, rec, draft)
	if err != nil {
		return nil, l.revert(rec, fmt.Errorf("completing %s: branch pushed but merge request failed: %w: %w", rec.Branch, ErrPartialFailure, err))
	}
	rec.MergeRequestURL = mr.URL
	if err := l.save(rec); err != nil {
		return nil, err
	}
	result := &CompletionResult{MergeRequest: mr, ReusedMergeRequest: reused}

	if err := l.remove(ctx, rec); err != nil {
		return result, err
	}
	result.Removed = true
	return result, nil
}

func (l *worktreeLifecycle) RetryCleanup(ctx context.Context, rec *models.WorktreeRecord) error {
	if err := requireState("cleaning up", rec, models.WorktreeCompleting); err != nil {
		return err
	}
	return l.remove(ctx, rec)
}

// requireCommitted refuses to complete a worktree with nothing to deliver or
// with uncommitted changes that removal would destroy.
func (l *worktreeLifecycle) requireCommitted(ctx context.Context, rec *models.WorktreeRecord) error {
	statusCtx, cancel := l.call(ctx)
	dirty, err := l.vcs.Status(statusCtx, rec.Path)
	cancel()
	if err != nil {
		return fmt.Errorf("completing %s: reading status: %w", rec.Branch, err)
	}
	if len(dirty) > 0 {
		return fmt.Errorf("completing %s: %d uncommitted change(s), checkpoint first: %w", rec.Branch, len(dirty), ErrStateConflict)
	}
	if rec.Checkpoints > 0 {
		return nil
	}
	aheadCtx, cancel := l.call(ctx)
	ahead, err := l.vcs.CommitsAhead(aheadCtx, rec.Path, rec.BaseRef)
	cancel()
	if err != nil {
		return fmt.Errorf("completing %s: counting commits: %w", rec.Branch, err)
	}
	if ahead == 0 {
		return fmt.Errorf("completing %s: no commits since %s: %w", rec.Branch, rec.BaseRef, ErrStateConflict)
	}
	return nil
}

func (l *worktreeLifecycle) revert(rec *models.WorktreeRecord, cause error) error {
	rec.State = models.WorktreeInProgress
	if err := l.save(rec); err != nil {
		return fmt.Errorf("%w (restoring state: %v)", cause, err)
	}
	return cause
}

func (l *worktreeLifecycle) openMergeRequest(ctx context.Context, rec *models.WorktreeRecord, draft MergeRequestDraft) (*models.MergeRequest, bool, error) {
	listCtx, cancel := l.call(ctx)
	open, err := l.codeHost.ListMergeRequests(listCtx, models.MergeRequestFilter{
		SourceBranch: rec.Branch,
		Status:       models.MergeRequestOpened,
	})
	cancel()
	if err != nil {
		return nil, false, fmt.Errorf("listing merge requests: %w", err)
	}
	for _, mr := range open {
		if mr.SourceBranch == rec.Branch {
			return &mr, true, nil
		}
	}

	title := draft.Title
	if title == "" {
		title = recordTitle(rec)
	}
	body := draft.Body
	if body == "" {
		body = fmt.Sprintf("Task: %s\nBranch: %s", rec.TaskID, rec.Branch)
	}
	createCtx, cancel := l.call(ctx)
	defer cancel()
	mr, err := l.codeHost.CreateMergeRequest(createCtx, CreateMergeRequestInput{
		SourceBranch: rec.Branch,
		TargetBranch: l.opts.DefaultBranch,
		Title:        title,
		Body:         body,
	})
	if err != nil {
		return nil, false, fmt.Errorf("creating merge request: %w", err)
	}
	return mr, false, nil
}

// remove steps out of the worktree, removes it and prunes stale references,
// strictly in that order. RemoveWorktree is never called while the process
// is inside the worktree.
func (l *worktreeLifecycle) remove(ctx context.Context, rec *models.WorktreeRecord) error {
	manual := fmt.Sprintf("cd %s && git worktree remove --force %s && git worktree prune", rec.RepoPath, rec.Path)
	fail := func(err error) error {
		l.logger.Warn("worktree cleanup failed", "branch", rec.Branch, "path", rec.Path, "error", err)
		return &CleanupError{Path: rec.Path, ManualCommand: manual, Err: err}
	}

	cwd, err := l.workDir.Getwd()
	if err != nil {
		return fail(fmt.Errorf("reading working directory: %w", err))
	}
	if isWithin(cwd, rec.Path) {
		if err := l.workDir.Chdir(rec.RepoPath); err != nil {
			return fail(fmt.Errorf("leaving worktree: %w", err))
		}
		cwd, err = l.workDir.Getwd()
		if err != nil {
			return fail(fmt.Errorf("reading working directory: %w", err))
		}
		if isWithin(cwd, rec.Path) {
			return fail(fmt.Errorf("working directory %s is still inside the worktree", cwd))
		}
	}

	removeCtx, cancel := l.call(ctx)
	err = l.vcs.RemoveWorktree(removeCtx, rec.RepoPath, rec.Path)
	cancel()
	if err != nil {
		return fail(err)
	}

	pruneCtx, cancel := l.call(ctx)
	err = l.vcs.PruneWorktrees(pruneCtx, rec.RepoPath)
	cancel()
	if err != nil {
		return fail(fmt.Errorf("pruning: %w", err))
	}

	if err := l.store.Delete(rec.Branch); err != nil {
		return fail(fmt.Errorf("deleting record: %w", err))
	}
	rec.State = models.WorktreeRemoved
	rec.Updated = l.opts.Now().UTC()
	l.logger.Info("worktree removed", "branch", rec.Branch, "path", rec.Path)
	return nil
}

func (l *worktreeLifecycle) Lookup(key string) (*models.WorktreeRecord, error) {
	rec, err := l.store.Get(key)
	if err != nil {
		return nil, fmt.Errorf("looking up worktree %s: %w", key, err)
	}
	if rec != nil {
		return rec, nil
	}
	rec, err = l.store.FindByTask(key)
	if err != nil {
		return nil, fmt.Errorf("looking up worktree %s: %w", key, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("worktree for %s: %w", key, ErrNotFound)
	}
	return rec, nil
}

func (l *worktreeLifecycle) List() ([]models.WorktreeRecord, error) {
	return l.store.List()
}

// isWithin reports whether path is dir or lies under it.
func isWithin(path, dir string) bool {
	if path == "" || dir == "" {
		return false
	}
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
