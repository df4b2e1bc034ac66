package models

import (
	"strings"
	"time"
)

// TaskStatus represents the tracker-side lifecycle state of a task.
type TaskStatus string

const (
	StatusToDo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in_progress"
	StatusBlocked    TaskStatus = "blocked"
	StatusInReview   TaskStatus = "in_review"
	StatusDone       TaskStatus = "done"
)

// AllStatuses lists every status in display order.
var AllStatuses = []TaskStatus{
	StatusToDo,
	StatusInProgress,
	StatusBlocked,
	StatusInReview,
	StatusDone,
}

// ParseStatus maps tracker labels ("In Progress", "in_progress", "Review")
// onto a TaskStatus. The second return value is false for unknown labels.
func ParseStatus(s string) (TaskStatus, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(key)
	switch key {
	case "todo", "notstarted", "open", "backlog":
		return StatusToDo, true
	case "inprogress", "doing", "started":
		return StatusInProgress, true
	case "blocked", "onhold":
		return StatusBlocked, true
	case "inreview", "review":
		return StatusInReview, true
	case "done", "complete", "completed", "closed":
		return StatusDone, true
	}
	return "", false
}

// Label returns the human-readable label used in messages and by the tracker.
func (s TaskStatus) Label() string {
	switch s {
	case StatusToDo:
		return "To Do"
	case StatusInProgress:
		return "In Progress"
	case StatusBlocked:
		return "Blocked"
	case StatusInReview:
		return "In Review"
	case StatusDone:
		return "Done"
	}
	return string(s)
}

// Priority represents the urgency of a task. The zero value means the
// tracker has no priority set.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
	PriorityBacklog  Priority = "backlog"
)

// Rank returns the sort rank of the priority (lower sorts first). Unset and
// unknown priorities rank as Backlog.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// ParsePriority maps tracker labels ("Critical", "P1", "high") onto a Priority.
func ParsePriority(s string) (Priority, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical", "urgent", "p0":
		return PriorityCritical, true
	case "high", "p1":
		return PriorityHigh, true
	case "medium", "normal", "p2":
		return PriorityMedium, true
	case "low", "p3":
		return PriorityLow, true
	case "backlog", "none", "p4":
		return PriorityBacklog, true
	}
	return "", false
}

// Task is a unit of work owned by the external task tracker. The orchestrator
// reads tasks and writes status and content, it never creates task IDs.
type Task struct {
	ID              string     `yaml:"id" json:"id"`
	Title           string     `yaml:"title" json:"title"`
	Status          TaskStatus `yaml:"status" json:"status"`
	Priority        Priority   `yaml:"priority,omitempty" json:"priority,omitempty"`
	DueDate         *time.Time `yaml:"due_date,omitempty" json:"due_date,omitempty"`
	Workstream      string     `yaml:"workstream" json:"workstream"`
	ProjectRef      string     `yaml:"project_ref,omitempty" json:"project_ref,omitempty"`
	IsEpic          bool       `yaml:"is_epic,omitempty" json:"is_epic,omitempty"`
	MergeRequestURL string     `yaml:"merge_request_url,omitempty" json:"merge_request_url,omitempty"`
	URL             string     `yaml:"url,omitempty" json:"url,omitempty"`

	// Workstreams holds every tag when the tracker stores several. UpdatedAt
	// is the tracker's last edit time, zero when unknown.
	Workstreams []string  `yaml:"workstreams,omitempty" json:"workstreams,omitempty"`
	UpdatedAt   time.Time `yaml:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// InWorkstream reports whether the task is tagged with workstream ws.
func (t Task) InWorkstream(ws string) bool {
	if t.Workstream == ws {
		return true
	}
	for _, w := range t.Workstreams {
		if w == ws {
			return true
		}
	}
	return false
}

// SearchHit is one ranked result of a tracker search. Its fields are not
// trusted beyond TaskID; hits are always verified by fetching the task.
type SearchHit struct {
	TaskID     string
	QueryIndex int
	Highlight  string
}
