package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/valter-silva-au/devflow/pkg/models"
)

// Systems named in step results.
const (
	SystemTaskStore = "task_store"
	SystemChat      = "chat"
	SystemCodeHost  = "code_host"
	SystemWorktree  = "worktree"
	SystemUser      = "user"
	SystemComposer  = "composer"
)

// StepStatus is the result of one workflow step.
type StepStatus string

const (
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// StepResult records one step of a workflow against one system.
type StepResult struct {
	System string     `json:"system"`
	Step   string     `json:"step"`
	Status StepStatus `json:"status"`
	Detail string     `json:"detail,omitempty"`
	Err    error      `json:"-"`
}

// Outcome is the per-step breakdown of one workflow invocation. Workflows
// never abort on an external failure; they record it and carry on with the
// steps that do not depend on it.
type Outcome struct {
	Workflow  string       `json:"workflow"`
	SessionID string       `json:"session_id"`
	Steps     []StepResult `json:"steps"`

	Message      string                 `json:"message,omitempty"`
	ThreadTS     string                 `json:"thread_ts,omitempty"`
	Tasks        []models.Task          `json:"tasks,omitempty"`
	Overview     *CheckInOverview       `json:"overview,omitempty"`
	Record       *models.WorktreeRecord `json:"record,omitempty"`
	MergeRequest *models.MergeRequest   `json:"merge_request,omitempty"`
	Correlations *CorrelationReport     `json:"correlations,omitempty"`
}

// Err joins the errors of every failed step, or returns nil.
func (o *Outcome) Err() error {
	var errs []error
	for _, s := range o.Steps {
		if s.Status == StepFailed && s.Err != nil {
			errs = append(errs, fmt.Errorf("%s/%s: %w", s.System, s.Step, s.Err))
		}
	}
	return errors.Join(errs...)
}

// Counts returns the number of succeeded, failed and skipped steps.
func (o *Outcome) Counts() (succeeded, failed, skipped int) {
	for _, s := range o.Steps {
		switch s.Status {
		case StepSucceeded:
			succeeded++
		case StepFailed:
			failed++
		case StepSkipped:
			skipped++
		}
	}
	return succeeded, failed, skipped
}

// Step returns the first result for system/step.
func (o *Outcome) Step(system, step string) (StepResult, bool) {
	for _, s := range o.Steps {
		if s.System == system && s.Step == step {
			return s, true
		}
	}
	return StepResult{}, false
}

// ConflictPolicy decides what Select does when the worktree already exists
// and no Chooser is available.
type ConflictPolicy string

const (
	ConflictAsk    ConflictPolicy = ""
	ConflictReuse  ConflictPolicy = "reuse"
	ConflictSuffix ConflictPolicy = "suffix"
	ConflictAbort  ConflictPolicy = "abort"
)

// ParseConflictPolicy parses a policy name; the empty string means ask.
func ParseConflictPolicy(s string) (ConflictPolicy, bool) {
	switch p := ConflictPolicy(s); p {
	case ConflictAsk, ConflictReuse, ConflictSuffix, ConflictAbort:
		return p, true
	}
	return "", false
}

// SelectRequest parametrizes the Select workflow. With TaskID set the
// Chooser is not asked to pick a task.
type SelectRequest struct {
	TaskID     string
	Chooser    Chooser
	OnConflict ConflictPolicy
}

// Orchestrator runs the developer workflows.
type Orchestrator interface {
	CheckIn(ctx context.Context, now time.Time) *Outcome
	Candidates(ctx context.Context, now time.Time) *Outcome
	Select(ctx context.Context, now time.Time, req SelectRequest) *Outcome
	Pause(ctx context.Context, key, note string, push bool) *Outcome
	Resume(ctx context.Context, key string) *Outcome
	Complete(ctx context.Context, key string, draft MergeRequestDraft) *Outcome
	RetryCleanup(ctx context.Context, key string) *Outcome
	Debrief(ctx context.Context, now time.Time) *Outcome
	Status() ([]models.WorktreeRecord, error)
}

// OrchestratorDeps are the collaborators of an Orchestrator.
type OrchestratorDeps struct {
	Tasks     TaskStore
	Messenger Messenger
	CodeHost  CodeHost
	Search    SearchAggregator
	Threads   ThreadLocator
	Lifecycle WorktreeLifecycle
	Events    EventLogger
}

// OrchestratorConfig holds the workflow settings.
type OrchestratorConfig struct {
	Workstream   string
	ChannelID    string
	Budget       Budget
	ProjectNames map[string]string
	CallTimeout  time.Duration
	Logger       *slog.Logger
	// NewSessionID defaults to random UUIDs.
	NewSessionID func() string
	Now          func() time.Time
}

type orchestrator struct {
	deps   OrchestratorDeps
	cfg    OrchestratorConfig
	logger *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(deps OrchestratorDeps, cfg OrchestratorConfig) Orchestrator {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.NewSessionID == nil {
		cfg.NewSessionID = uuid.NewString
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.Budget = cfg.Budget.normalized()
	return &orchestrator{deps: deps, cfg: cfg, logger: loggerOrDiscard(cfg.Logger)}
}

// session tracks one workflow invocation.
type session struct {
	out    *Outcome
	logger *slog.Logger
	events EventLogger
}

func (o *orchestrator) begin(workflow string) *session {
	id := o.cfg.NewSessionID()
	s := &session{
		out:    &Outcome{Workflow: workflow, SessionID: id},
		logger: o.logger.With("session_id", id, "workflow", workflow),
		events: o.deps.Events,
	}
	s.logger.Info("workflow started")
	return s
}

func (s *session) record(system, step string, status StepStatus, detail string, err error) {
	s.out.Steps = append(s.out.Steps, StepResult{System: system, Step: step, Status: status, Detail: detail, Err: err})

	attrs := []any{"system", system, "step", step, "status", string(status)}
	if detail != "" {
		attrs = append(attrs, "detail", detail)
	}
	if err != nil {
		attrs = append(attrs, "error", err)
		s.logger.Warn("workflow step", attrs...)
	} else {
		s.logger.Info("workflow step", attrs...)
	}

	if s.events != nil {
		data := map[string]any{
			"session_id": s.out.SessionID,
			"workflow":   s.out.Workflow,
			"system":     system,
			"step":       step,
			"status":     string(status),
		}
		if detail != "" {
			data["detail"] = detail
		}
		if err != nil {
			data["error"] = err.Error()
		}
		if logErr := s.events.LogEvent("workflow.step", data); logErr != nil {
			s.logger.Debug("event log write failed", "error", logErr)
		}
	}
}

func (s *session) ok(system, step, detail string) {
	s.record(system, step, StepSucceeded, detail, nil)
}

func (s *session) fail(system, step string, err error) {
	s.record(system, step, StepFailed, "", err)
}

func (s *session) skip(system, step, reason string) {
	s.record(system, step, StepSkipped, reason, nil)
}

func (s *session) done() *Outcome {
	succeeded, failed, skipped := s.out.Counts()
	s.logger.Info("workflow finished", "succeeded", succeeded, "failed", failed, "skipped", skipped)
	return s.out
}

func (o *orchestrator) now() time.Time { return o.cfg.Now() }

func (o *orchestrator) call(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.cfg.CallTimeout)
}

// notify replies to today's thread, or posts a standalone message when the
// thread cannot be found. It is always called after the mutation it reports.
func (o *orchestrator) notify(ctx context.Context, s *session, now time.Time, text string) {
	if o.cfg.ChannelID == "" {
		s.skip(SystemChat, "notify", "no channel configured")
		return
	}
	label := DateLabel(now)
	thread, err := o.deps.Threads.FindTodayThread(ctx, o.cfg.ChannelID, label)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.fail(SystemChat, "find_thread", err)
		} else {
			s.ok(SystemChat, "find_thread", "no thread for "+label)
		}
		postCtx, cancel := o.call(ctx)
		ts, err := o.deps.Messenger.Post(postCtx, o.cfg.ChannelID, text)
		cancel()
		if err != nil {
			s.fail(SystemChat, "post", err)
			return
		}
		s.out.ThreadTS = ts
		s.ok(SystemChat, "post", "posted without thread")
		return
	}
	s.ok(SystemChat, "find_thread", thread.TimestampID)

	replyCtx, cancel := o.call(ctx)
	err = o.deps.Messenger.Reply(replyCtx, o.cfg.ChannelID, thread.TimestampID, text)
	cancel()
	if err != nil {
		s.fail(SystemChat, "reply", err)
		return
	}
	s.out.ThreadTS = thread.TimestampID
	s.ok(SystemChat, "reply", thread.TimestampID)
}

// lookup resolves a branch name or task ID to its worktree record.
func (o *orchestrator) lookup(s *session, key string) (*models.WorktreeRecord, bool) {
	rec, err := o.deps.Lifecycle.Lookup(key)
	if err != nil {
		s.fail(SystemWorktree, "lookup", err)
		return nil, false
	}
	s.out.Record = rec
	s.ok(SystemWorktree, "lookup", rec.Branch)
	return rec, true
}

func (o *orchestrator) appendNote(ctx context.Context, s *session, taskID, text string) {
	callCtx, cancel := o.call(ctx)
	defer cancel()
	if err := o.deps.Tasks.AppendContent(callCtx, taskID, text); err != nil {
		s.fail(SystemTaskStore, "append_note", err)
		return
	}
	s.ok(SystemTaskStore, "append_note", taskID)
}

func (o *orchestrator) updateStatus(ctx context.Context, s *session, taskID string, status models.TaskStatus) {
	callCtx, cancel := o.call(ctx)
	defer cancel()
	if err := o.deps.Tasks.UpdateStatus(callCtx, taskID, status); err != nil {
		s.fail(SystemTaskStore, "update_status", err)
		return
	}
	s.ok(SystemTaskStore, "update_status", string(status))
}

func (o *orchestrator) Status() ([]models.WorktreeRecord, error) {
	return o.deps.Lifecycle.List()
}
