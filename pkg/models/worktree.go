package models

import "time"

// WorktreeState is a node of the worktree lifecycle state machine.
type WorktreeState string

const (
	WorktreeNone       WorktreeState = "none"
	WorktreeCreated    WorktreeState = "created"
	WorktreeInProgress WorktreeState = "in_progress"
	WorktreePaused     WorktreeState = "paused"
	WorktreeCompleting WorktreeState = "completing"
	WorktreeRemoved    WorktreeState = "removed"
)

// WorktreeRecord binds one branch and worktree directory to a task.
// At most one record exists per branch.
type WorktreeRecord struct {
	Path            string        `yaml:"path" json:"path"`
	Branch          string        `yaml:"branch" json:"branch"`
	TaskID          string        `yaml:"task_id" json:"task_id"`
	TaskTitle       string        `yaml:"task_title,omitempty" json:"task_title,omitempty"`
	RepoPath        string        `yaml:"repo_path" json:"repo_path"`
	BaseRef         string        `yaml:"base_ref" json:"base_ref"`
	State           WorktreeState `yaml:"state" json:"state"`
	Checkpoints     int           `yaml:"checkpoints" json:"checkpoints"`
	LastCommit      string        `yaml:"last_commit,omitempty" json:"last_commit,omitempty"`
	MergeRequestURL string        `yaml:"merge_request_url,omitempty" json:"merge_request_url,omitempty"`
	Created         time.Time     `yaml:"created" json:"created"`
	Updated         time.Time     `yaml:"updated" json:"updated"`
}
