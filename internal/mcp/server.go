// Package mcp provides an MCP (Model Context Protocol) server that exposes
// the devflow workflows as tools for AI coding assistants.
package mcp

import (
	"context"
	"fmt"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/valter-silva-au/devflow/internal/core"
	"github.com/valter-silva-au/devflow/internal/observability"
	"github.com/valter-silva-au/devflow/pkg/models"
)

// Server wraps the orchestrator and exposes it as MCP tools.
type Server struct {
	server      *gomcp.Server
	orch        core.Orchestrator
	metricsCalc observability.MetricsCalculator
	alertEngine observability.AlertEngine
	now         func() time.Time
}

// NewServer creates a new MCP server. metricsCalc and alertEngine may be nil
// when the event log is unavailable.
func NewServer(orch core.Orchestrator, metricsCalc observability.MetricsCalculator, alertEngine observability.AlertEngine, version string) *Server {
	if version == "" {
		version = "dev"
	}
	s := &Server{
		orch:        orch,
		metricsCalc: metricsCalc,
		alertEngine: alertEngine,
		now:         time.Now,
	}
	s.server = gomcp.NewServer(&gomcp.Implementation{Name: "devflow", Version: version}, nil)
	s.registerTools()
	return s
}

// Run serves on stdio until the client disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type emptyInput struct{}

type selectTaskInput struct {
	TaskID     string `json:"task_id" jsonschema:"the task to start working on (e.g. PAY-12); list_candidates shows the options"`
	OnConflict string `json:"on_conflict,omitempty" jsonschema:"what to do when the task's worktree already exists: reuse, suffix or abort"`
}

type pauseTaskInput struct {
	Key  string `json:"key" jsonschema:"branch name or task ID of the worktree"`
	Note string `json:"note,omitempty" jsonschema:"checkpoint message and progress note"`
	Push bool   `json:"push,omitempty" jsonschema:"also push the checkpoint to the remote"`
}

type worktreeKeyInput struct {
	Key string `json:"key" jsonschema:"branch name or task ID of the worktree"`
}

type completeTaskInput struct {
	Key   string `json:"key" jsonschema:"branch name or task ID of the worktree"`
	Title string `json:"title,omitempty" jsonschema:"merge request title; defaults to the task ID and title"`
	Body  string `json:"body,omitempty" jsonschema:"merge request description"`
}

type stepOutput struct {
	System string `json:"system"`
	Step   string `json:"step"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
}

type taskOutput struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Status   string `json:"status"`
	Priority string `json:"priority,omitempty"`
	DueDate  string `json:"due_date,omitempty"`
	Project  string `json:"project,omitempty"`
	URL      string `json:"url,omitempty"`
}

type worktreeOutput struct {
	Branch          string `json:"branch"`
	Path            string `json:"path"`
	TaskID          string `json:"task_id"`
	TaskTitle       string `json:"task_title,omitempty"`
	State           string `json:"state"`
	Checkpoints     int    `json:"checkpoints"`
	LastCommit      string `json:"last_commit,omitempty"`
	MergeRequestURL string `json:"merge_request_url,omitempty"`
	Updated         string `json:"updated"`
}

type mergeRequestOutput struct {
	ID           string `json:"id"`
	URL          string `json:"url"`
	SourceBranch string `json:"source_branch"`
	Title        string `json:"title"`
	Status       string `json:"status"`
}

type outcomeOutput struct {
	Workflow     string              `json:"workflow"`
	SessionID    string              `json:"session_id"`
	Succeeded    int                 `json:"succeeded"`
	Failed       int                 `json:"failed"`
	Skipped      int                 `json:"skipped"`
	Steps        []stepOutput        `json:"steps"`
	Message      string              `json:"message,omitempty"`
	ThreadTS     string              `json:"thread_ts,omitempty"`
	Tasks        []taskOutput        `json:"tasks,omitempty"`
	Worktree     *worktreeOutput     `json:"worktree,omitempty"`
	MergeRequest *mergeRequestOutput `json:"merge_request,omitempty"`
	Error        string              `json:"error,omitempty"`
}

type statusOutput struct {
	Worktrees []worktreeOutput `json:"worktrees"`
	Count     int              `json:"count"`
}

type getMetricsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window for metrics (e.g. 7d, 24h). Defaults to 7d."`
}

type metricsOutput struct {
	Sessions         int            `json:"sessions"`
	FailedSessions   int            `json:"failed_sessions"`
	WorkflowRuns     map[string]int `json:"workflow_runs"`
	StepsByStatus    map[string]int `json:"steps_by_status"`
	FailuresBySystem map[string]int `json:"failures_by_system"`
	EventCount       int            `json:"event_count"`
	OldestEvent      string         `json:"oldest_event,omitempty"`
	NewestEvent      string         `json:"newest_event,omitempty"`
}

type alertOutput struct {
	ID          string `json:"id"`
	Condition   string `json:"condition"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	TriggeredAt string `json:"triggered_at"`
}

type getAlertsOutput struct {
	Alerts []alertOutput `json:"alerts"`
	Count  int           `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "checkin",
		Description: "Post or update today's check-in summary for the workstream in the team channel.",
	}, s.handleCheckIn)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_candidates",
		Description: "List the tasks that can be started (to do, in progress, blocked), overdue and high priority first.",
	}, s.handleListCandidates)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "select_task",
		Description: "Start work on a task: mark it in progress, create its branch and worktree, and announce it in today's thread.",
	}, s.handleSelectTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "pause_task",
		Description: "Commit a WIP checkpoint of the worktree, mark it paused, note progress on the task and announce it.",
	}, s.handlePauseTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "resume_task",
		Description: "Resume a paused worktree.",
	}, s.handleResumeTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "complete_task",
		Description: "Push the branch, open (or reuse) a merge request, remove the worktree and move the task to review.",
	}, s.handleCompleteTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "cleanup_worktree",
		Description: "Retry removing a worktree whose completion left it behind.",
	}, s.handleCleanup)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "debrief",
		Description: "Post the end-of-day summary: delivered work with merge requests, reviews pending and open tasks.",
	}, s.handleDebrief)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "worktree_status",
		Description: "List the local worktrees devflow manages and their lifecycle state.",
	}, s.handleStatus)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_metrics",
		Description: "Get workflow metrics from the event log: runs per workflow, step outcomes and failures per system.",
	}, s.handleGetMetrics)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_alerts",
		Description: "Evaluate alerts: worktrees stuck completing, long pauses, stale work and repeated failures.",
	}, s.handleGetAlerts)
}

// --- Tool handlers ---

func (s *Server) handleCheckIn(ctx context.Context, _ *gomcp.CallToolRequest, _ emptyInput) (*gomcp.CallToolResult, outcomeOutput, error) {
	return nil, outcomeToOutput(s.orch.CheckIn(ctx, s.now())), nil
}

func (s *Server) handleListCandidates(ctx context.Context, _ *gomcp.CallToolRequest, _ emptyInput) (*gomcp.CallToolResult, outcomeOutput, error) {
	return nil, outcomeToOutput(s.orch.Candidates(ctx, s.now())), nil
}

func (s *Server) handleSelectTask(ctx context.Context, _ *gomcp.CallToolRequest, input selectTaskInput) (*gomcp.CallToolResult, outcomeOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required; call list_candidates to see the options"), outcomeOutput{}, nil
	}
	policy, ok := core.ParseConflictPolicy(input.OnConflict)
	if !ok {
		return errorResult(fmt.Sprintf("invalid on_conflict %q: must be one of reuse, suffix, abort", input.OnConflict)), outcomeOutput{}, nil
	}
	out := s.orch.Select(ctx, s.now(), core.SelectRequest{TaskID: input.TaskID, OnConflict: policy})
	return nil, outcomeToOutput(out), nil
}

func (s *Server) handlePauseTask(ctx context.Context, _ *gomcp.CallToolRequest, input pauseTaskInput) (*gomcp.CallToolResult, outcomeOutput, error) {
	if input.Key == "" {
		return errorResult("key is required"), outcomeOutput{}, nil
	}
	return nil, outcomeToOutput(s.orch.Pause(ctx, input.Key, input.Note, input.Push)), nil
}

func (s *Server) handleResumeTask(ctx context.Context, _ *gomcp.CallToolRequest, input worktreeKeyInput) (*gomcp.CallToolResult, outcomeOutput, error) {
	if input.Key == "" {
		return errorResult("key is required"), outcomeOutput{}, nil
	}
	return nil, outcomeToOutput(s.orch.Resume(ctx, input.Key)), nil
}

func (s *Server) handleCompleteTask(ctx context.Context, _ *gomcp.CallToolRequest, input completeTaskInput) (*gomcp.CallToolResult, outcomeOutput, error) {
	if input.Key == "" {
		return errorResult("key is required"), outcomeOutput{}, nil
	}
	draft := core.MergeRequestDraft{Title: input.Title, Body: input.Body}
	return nil, outcomeToOutput(s.orch.Complete(ctx, input.Key, draft)), nil
}

func (s *Server) handleCleanup(ctx context.Context, _ *gomcp.CallToolRequest, input worktreeKeyInput) (*gomcp.CallToolResult, outcomeOutput, error) {
	if input.Key == "" {
		return errorResult("key is required"), outcomeOutput{}, nil
	}
	return nil, outcomeToOutput(s.orch.RetryCleanup(ctx, input.Key)), nil
}

func (s *Server) handleDebrief(ctx context.Context, _ *gomcp.CallToolRequest, _ emptyInput) (*gomcp.CallToolResult, outcomeOutput, error) {
	return nil, outcomeToOutput(s.orch.Debrief(ctx, s.now())), nil
}

func (s *Server) handleStatus(_ context.Context, _ *gomcp.CallToolRequest, _ emptyInput) (*gomcp.CallToolResult, statusOutput, error) {
	recs, err := s.orch.Status()
	if err != nil {
		return errorResult(fmt.Sprintf("listing worktrees: %s", err)), statusOutput{}, nil
	}
	out := statusOutput{Worktrees: make([]worktreeOutput, len(recs)), Count: len(recs)}
	for i := range recs {
		out.Worktrees[i] = *recordToOutput(&recs[i])
	}
	return nil, out, nil
}

func (s *Server) handleGetMetrics(_ context.Context, _ *gomcp.CallToolRequest, input getMetricsInput) (*gomcp.CallToolResult, metricsOutput, error) {
	if s.metricsCalc == nil {
		return errorResult("metrics calculator not available (event log disabled)"), emptyMetricsOutput(), nil
	}
	sinceStr := input.Since
	if sinceStr == "" {
		sinceStr = "7d"
	}
	since, err := ParseSince(sinceStr, s.now())
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), emptyMetricsOutput(), nil
	}
	m, err := s.metricsCalc.Calculate(since)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating metrics: %s", err)), emptyMetricsOutput(), nil
	}

	out := metricsOutput{
		Sessions:         m.Sessions,
		FailedSessions:   m.FailedSessions,
		WorkflowRuns:     m.WorkflowRuns,
		StepsByStatus:    m.StepsByStatus,
		FailuresBySystem: m.FailuresBySystem,
		EventCount:       m.EventCount,
	}
	if m.OldestEvent != nil {
		out.OldestEvent = m.OldestEvent.Format(time.RFC3339)
	}
	if m.NewestEvent != nil {
		out.NewestEvent = m.NewestEvent.Format(time.RFC3339)
	}
	return nil, out, nil
}

func (s *Server) handleGetAlerts(_ context.Context, _ *gomcp.CallToolRequest, _ emptyInput) (*gomcp.CallToolResult, getAlertsOutput, error) {
	if s.alertEngine == nil {
		return errorResult("alert engine not available"), getAlertsOutput{}, nil
	}
	alerts, err := s.alertEngine.Evaluate()
	if err != nil {
		return errorResult(fmt.Sprintf("evaluating alerts: %s", err)), getAlertsOutput{}, nil
	}
	out := getAlertsOutput{Alerts: make([]alertOutput, len(alerts)), Count: len(alerts)}
	for i, a := range alerts {
		out.Alerts[i] = alertOutput{
			ID:          a.ID,
			Condition:   a.Condition,
			Severity:    string(a.Severity),
			Message:     a.Message,
			TriggeredAt: a.TriggeredAt.Format(time.RFC3339),
		}
	}
	return nil, out, nil
}

// --- Helpers ---

func outcomeToOutput(o *core.Outcome) outcomeOutput {
	succeeded, failed, skipped := o.Counts()
	out := outcomeOutput{
		Workflow:  o.Workflow,
		SessionID: o.SessionID,
		Succeeded: succeeded,
		Failed:    failed,
		Skipped:   skipped,
		Steps:     make([]stepOutput, len(o.Steps)),
		Message:   o.Message,
		ThreadTS:  o.ThreadTS,
		Worktree:  recordToOutput(o.Record),
	}
	for i, st := range o.Steps {
		out.Steps[i] = stepOutput{System: st.System, Step: st.Step, Status: string(st.Status), Detail: st.Detail}
		if st.Err != nil {
			out.Steps[i].Error = st.Err.Error()
		}
	}
	for _, t := range o.Tasks {
		out.Tasks = append(out.Tasks, taskToOutput(t))
	}
	if mr := o.MergeRequest; mr != nil {
		out.MergeRequest = &mergeRequestOutput{
			ID:           mr.ID,
			URL:          mr.URL,
			SourceBranch: mr.SourceBranch,
			Title:        mr.Title,
			Status:       string(mr.Status),
		}
	}
	if err := o.Err(); err != nil {
		out.Error = err.Error()
	}
	return out
}

func taskToOutput(t models.Task) taskOutput {
	out := taskOutput{
		ID:       t.ID,
		Title:    t.Title,
		Status:   string(t.Status),
		Priority: string(t.Priority),
		Project:  t.ProjectRef,
		URL:      t.URL,
	}
	if t.DueDate != nil {
		out.DueDate = t.DueDate.Format(time.DateOnly)
	}
	return out
}

func recordToOutput(rec *models.WorktreeRecord) *worktreeOutput {
	if rec == nil {
		return nil
	}
	return &worktreeOutput{
		Branch:          rec.Branch,
		Path:            rec.Path,
		TaskID:          rec.TaskID,
		TaskTitle:       rec.TaskTitle,
		State:           string(rec.State),
		Checkpoints:     rec.Checkpoints,
		LastCommit:      rec.LastCommit,
		MergeRequestURL: rec.MergeRequestURL,
		Updated:         rec.Updated.Format(time.RFC3339),
	}
}

func emptyMetricsOutput() metricsOutput {
	return metricsOutput{
		WorkflowRuns:     make(map[string]int),
		StepsByStatus:    make(map[string]int),
		FailuresBySystem: make(map[string]int),
	}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// ParseSince parses a duration like "7d" or "24h" into the time that long
// before now.
func ParseSince(s string, now time.Time) (time.Time, error) {
	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}
	suffix := s[len(s)-1]
	var num int
	if _, err := fmt.Sscanf(s[:len(s)-1], "%d", &num); err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	switch suffix {
	case 'd':
		return now.AddDate(0, 0, -num), nil
	case 'h':
		return now.Add(-time.Duration(num) * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d or h)", string(suffix))
	}
}
