package models

import "time"

// TaskStoreConfig identifies where tasks live in the tracker.
type TaskStoreConfig struct {
	ScopeID    string   `yaml:"scope_id,omitempty" mapstructure:"scope_id"`
	Workstream string   `yaml:"workstream,omitempty" mapstructure:"workstream"`
	Queries    []string `yaml:"queries,omitempty" mapstructure:"queries"`
	BaseURL    string   `yaml:"base_url,omitempty" mapstructure:"base_url"`

	// ProjectNames maps project relation IDs to the names used to group
	// tasks in summaries.
	ProjectNames map[string]string `yaml:"project_names,omitempty" mapstructure:"project_names"`

	// Properties overrides the tracker property names tasks are read from.
	Properties TaskPropertiesConfig `yaml:"properties,omitempty" mapstructure:"properties"`
}

// TaskPropertiesConfig names the tracker database properties. Empty fields
// keep the stock names.
type TaskPropertiesConfig struct {
	Status       string `yaml:"status,omitempty" mapstructure:"status"`
	Priority     string `yaml:"priority,omitempty" mapstructure:"priority"`
	DueDate      string `yaml:"due_date,omitempty" mapstructure:"due_date"`
	Workstream   string `yaml:"workstream,omitempty" mapstructure:"workstream"`
	Project      string `yaml:"project,omitempty" mapstructure:"project"`
	Epic         string `yaml:"epic,omitempty" mapstructure:"epic"`
	MergeRequest string `yaml:"merge_request,omitempty" mapstructure:"merge_request"`
}

// ChatConfig identifies the team channel that carries the daily thread.
type ChatConfig struct {
	ChannelID    string `yaml:"channel_id,omitempty" mapstructure:"channel_id"`
	HistoryLimit int    `yaml:"history_limit,omitempty" mapstructure:"history_limit"`
	BaseURL      string `yaml:"base_url,omitempty" mapstructure:"base_url"`
}

// CodeHostConfig identifies the project merge requests are opened against.
type CodeHostConfig struct {
	ProjectID string `yaml:"project_id,omitempty" mapstructure:"project_id"`
	BaseURL   string `yaml:"base_url,omitempty" mapstructure:"base_url"`
}

// WorktreeConfig controls where worktrees are placed and how branches are named.
type WorktreeConfig struct {
	BasePath      string `yaml:"base_path,omitempty" mapstructure:"base_path"`
	BranchPrefix  string `yaml:"branch_prefix,omitempty" mapstructure:"branch_prefix"`
	DefaultBranch string `yaml:"default_branch,omitempty" mapstructure:"default_branch"`
	Remote        string `yaml:"remote,omitempty" mapstructure:"remote"`
}

// MessageConfig bounds the size of composed chat messages.
type MessageConfig struct {
	MaxLength       int `yaml:"max_length,omitempty" mapstructure:"max_length"`
	GroupCap        int `yaml:"group_cap,omitempty" mapstructure:"group_cap"`
	ReducedGroupCap int `yaml:"reduced_group_cap,omitempty" mapstructure:"reduced_group_cap"`
}

// Config is the full devflow configuration. The same shape is read from the
// global file (~/.devflow/config.yaml) and from the repository file
// (.devflow.yaml); zero values mean "not set" and fall through to the next
// layer when merged.
type Config struct {
	TaskStore   TaskStoreConfig `yaml:"task_store,omitempty" mapstructure:"task_store"`
	Chat        ChatConfig      `yaml:"chat,omitempty" mapstructure:"chat"`
	CodeHost    CodeHostConfig  `yaml:"code_host,omitempty" mapstructure:"code_host"`
	Worktree    WorktreeConfig  `yaml:"worktree,omitempty" mapstructure:"worktree"`
	Message     MessageConfig   `yaml:"message,omitempty" mapstructure:"message"`
	CallTimeout time.Duration   `yaml:"call_timeout,omitempty" mapstructure:"call_timeout"`
}
