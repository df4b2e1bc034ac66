// Package core contains the devflow business logic: task search and
// prioritization, daily-thread discovery, message composition, merge-request
// correlation, the worktree lifecycle and the workflows built on them.
package core

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/valter-silva-au/devflow/pkg/models"
)

// Configuration file names.
const (
	GlobalConfigDir  = ".devflow"
	GlobalConfigName = "config"
	RepoConfigName   = ".devflow"
	EnvPrefix        = "DEVFLOW"
)

// Defaults applied by MergeConfig for fields neither layer sets.
const (
	DefaultBranchPrefix = "feature"
	DefaultBaseBranch   = "main"
	DefaultRemote       = "origin"
	DefaultWorktreeDir  = ".worktrees"
	defaultChatHistory  = defaultHistoryLimit
	defaultTaskStoreURL = "https://api.notion.com/v1"
	defaultChatURL      = "https://slack.com/api"
	defaultCodeHostURL  = "https://gitlab.com/api/v4"
)

// Secrets holds the API tokens. They are only read from the environment
// (DEVFLOW_TASK_STORE_TOKEN, DEVFLOW_CHAT_TOKEN, DEVFLOW_CODE_HOST_TOKEN),
// never from configuration files.
type Secrets struct {
	TaskStoreToken string
	ChatToken      string
	CodeHostToken  string
}

// ConfigurationManager loads the global and per-repository configuration
// files and merges them.
type ConfigurationManager interface {
	LoadGlobalConfig() (*models.Config, error)
	LoadRepoConfig(repoPath string) (*models.Config, error)
	GetMergedConfig(repoPath string) (models.Config, error)
	LoadSecrets() Secrets
}

type viperConfigManager struct {
	// homeDir holds the .devflow directory with the global config.
	homeDir string
}

// NewConfigurationManager creates a ConfigurationManager whose global file is
// {homeDir}/.devflow/config.yaml.
func NewConfigurationManager(homeDir string) ConfigurationManager {
	return &viperConfigManager{homeDir: homeDir}
}

// DefaultConfig returns the built-in configuration for repoPath.
func DefaultConfig(repoPath string) models.Config {
	return models.Config{
		TaskStore: models.TaskStoreConfig{
			Queries: append([]string(nil), DefaultSearchQueries...),
			BaseURL: defaultTaskStoreURL,
		},
		Chat: models.ChatConfig{
			HistoryLimit: defaultChatHistory,
			BaseURL:      defaultChatURL,
		},
		CodeHost: models.CodeHostConfig{
			BaseURL: defaultCodeHostURL,
		},
		Worktree: models.WorktreeConfig{
			BasePath:      filepath.Join(repoPath, DefaultWorktreeDir),
			BranchPrefix:  DefaultBranchPrefix,
			DefaultBranch: DefaultBaseBranch,
			Remote:        DefaultRemote,
		},
		Message: models.MessageConfig{
			MaxLength:       DefaultMaxLength,
			GroupCap:        DefaultGroupCap,
			ReducedGroupCap: DefaultReducedGroupCap,
		},
		CallTimeout: DefaultCallTimeout,
	}
}

// LoadGlobalConfig reads ~/.devflow/config.yaml. A missing file yields an
// empty config, which merges to the defaults.
func (cm *viperConfigManager) LoadGlobalConfig() (*models.Config, error) {
	v := viper.New()
	v.SetConfigName(GlobalConfigName)
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(cm.homeDir, GlobalConfigDir))
	cfg, err := readConfig(v, "global config")
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = &models.Config{}
	}
	return cfg, nil
}

// LoadRepoConfig reads .devflow.yaml from the repository root. If the file
// does not exist, nil is returned.
func (cm *viperConfigManager) LoadRepoConfig(repoPath string) (*models.Config, error) {
	v := viper.New()
	v.SetConfigName(RepoConfigName)
	v.SetConfigType("yaml")
	v.AddConfigPath(repoPath)
	return readConfig(v, "repo config in "+repoPath)
}

func readConfig(v *viper.Viper, what string) (*models.Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", what, err)
	}
	var cfg models.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", what, err)
	}
	return &cfg, nil
}

// GetMergedConfig loads both layers and merges them over the defaults.
func (cm *viperConfigManager) GetMergedConfig(repoPath string) (models.Config, error) {
	global, err := cm.LoadGlobalConfig()
	if err != nil {
		return models.Config{}, fmt.Errorf("loading global config for merge: %w", err)
	}
	var repo *models.Config
	if repoPath != "" {
		repo, err = cm.LoadRepoConfig(repoPath)
		if err != nil {
			return models.Config{}, fmt.Errorf("loading repo config for merge: %w", err)
		}
	}
	merged := MergeConfig(DefaultConfig(repoPath), global, repo)
	if err := ValidateConfig(merged); err != nil {
		return models.Config{}, err
	}
	return merged, nil
}

// LoadSecrets reads API tokens from DEVFLOW_* environment variables.
func (cm *viperConfigManager) LoadSecrets() Secrets {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return Secrets{
		TaskStoreToken: v.GetString("task_store.token"),
		ChatToken:      v.GetString("chat.token"),
		CodeHostToken:  v.GetString("code_host.token"),
	}
}

// MergeConfig overlays each layer onto base field by field; later layers win
// and zero values never override. Nil layers are skipped.
func MergeConfig(base models.Config, layers ...*models.Config) models.Config {
	out := base
	out.TaskStore.Queries = append([]string(nil), base.TaskStore.Queries...)
	out.TaskStore.ProjectNames = nil
	for id, name := range base.TaskStore.ProjectNames {
		if out.TaskStore.ProjectNames == nil {
			out.TaskStore.ProjectNames = make(map[string]string)
		}
		out.TaskStore.ProjectNames[id] = name
	}
	for _, l := range layers {
		if l == nil {
			continue
		}
		setString(&out.TaskStore.ScopeID, l.TaskStore.ScopeID)
		setString(&out.TaskStore.Workstream, l.TaskStore.Workstream)
		setString(&out.TaskStore.BaseURL, l.TaskStore.BaseURL)
		if len(l.TaskStore.Queries) > 0 {
			out.TaskStore.Queries = append([]string(nil), l.TaskStore.Queries...)
		}
		for id, name := range l.TaskStore.ProjectNames {
			if out.TaskStore.ProjectNames == nil {
				out.TaskStore.ProjectNames = make(map[string]string)
			}
			out.TaskStore.ProjectNames[id] = name
		}
		props, lp := &out.TaskStore.Properties, l.TaskStore.Properties
		setString(&props.Status, lp.Status)
		setString(&props.Priority, lp.Priority)
		setString(&props.DueDate, lp.DueDate)
		setString(&props.Workstream, lp.Workstream)
		setString(&props.Project, lp.Project)
		setString(&props.Epic, lp.Epic)
		setString(&props.MergeRequest, lp.MergeRequest)

		setString(&out.Chat.ChannelID, l.Chat.ChannelID)
		setString(&out.Chat.BaseURL, l.Chat.BaseURL)
		setInt(&out.Chat.HistoryLimit, l.Chat.HistoryLimit)

		setString(&out.CodeHost.ProjectID, l.CodeHost.ProjectID)
		setString(&out.CodeHost.BaseURL, l.CodeHost.BaseURL)

		setString(&out.Worktree.BasePath, l.Worktree.BasePath)
		setString(&out.Worktree.BranchPrefix, l.Worktree.BranchPrefix)
		setString(&out.Worktree.DefaultBranch, l.Worktree.DefaultBranch)
		setString(&out.Worktree.Remote, l.Worktree.Remote)

		setInt(&out.Message.MaxLength, l.Message.MaxLength)
		setInt(&out.Message.GroupCap, l.Message.GroupCap)
		setInt(&out.Message.ReducedGroupCap, l.Message.ReducedGroupCap)

		if l.CallTimeout != 0 {
			out.CallTimeout = l.CallTimeout
		}
	}
	return out
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// ValidateConfig reports every invalid field of a merged configuration.
func ValidateConfig(cfg models.Config) error {
	var errs []string

	if cfg.Message.MaxLength < 0 {
		errs = append(errs, fmt.Sprintf("message.max_length must be positive, got %d", cfg.Message.MaxLength))
	}
	if cfg.Message.GroupCap < 0 {
		errs = append(errs, fmt.Sprintf("message.group_cap must be positive, got %d", cfg.Message.GroupCap))
	}
	if cfg.Message.ReducedGroupCap < 0 || cfg.Message.ReducedGroupCap > cfg.Message.GroupCap {
		errs = append(errs, fmt.Sprintf("message.reduced_group_cap %d must be between 1 and message.group_cap (%d)",
			cfg.Message.ReducedGroupCap, cfg.Message.GroupCap))
	}
	if cfg.Chat.HistoryLimit < 0 {
		errs = append(errs, fmt.Sprintf("chat.history_limit must be positive, got %d", cfg.Chat.HistoryLimit))
	}
	if cfg.CallTimeout < 0 || (cfg.CallTimeout > 0 && cfg.CallTimeout < time.Second) {
		errs = append(errs, fmt.Sprintf("call_timeout %s must be at least 1s", cfg.CallTimeout))
	}
	if strings.ContainsAny(cfg.Worktree.BranchPrefix, " ~^:?*[\\") {
		errs = append(errs, fmt.Sprintf("worktree.branch_prefix %q is not a valid git ref component", cfg.Worktree.BranchPrefix))
	}
	if strings.Contains(cfg.Worktree.BranchPrefix, "..") {
		errs = append(errs, fmt.Sprintf("worktree.branch_prefix %q must not contain ..", cfg.Worktree.BranchPrefix))
	}
	if len(cfg.TaskStore.Queries) > 0 && len(cfg.TaskStore.Queries) < minSearchQueries {
		errs = append(errs, fmt.Sprintf("task_store.queries needs at least %d queries, got %d", minSearchQueries, len(cfg.TaskStore.Queries)))
	}
	for i, q := range cfg.TaskStore.Queries {
		if strings.TrimSpace(q) == "" {
			errs = append(errs, fmt.Sprintf("task_store.queries[%d] is empty", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// RequireWorkflowConfig reports the settings a workflow needs that are not
// set. The check is separate from ValidateConfig so `status` works without
// any remote configuration.
func RequireWorkflowConfig(cfg models.Config) error {
	var missing []string
	if cfg.TaskStore.Workstream == "" {
		missing = append(missing, "task_store.workstream")
	}
	if cfg.Chat.ChannelID == "" {
		missing = append(missing, "chat.channel_id")
	}
	if cfg.CodeHost.ProjectID == "" {
		missing = append(missing, "code_host.project_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}
