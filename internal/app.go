// Package internal provides the App struct that wires all components of
// devflow together and initializes the CLI layer.
package internal

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/valter-silva-au/devflow/internal/cli"
	"github.com/valter-silva-au/devflow/internal/core"
	"github.com/valter-silva-au/devflow/internal/integration"
	"github.com/valter-silva-au/devflow/internal/observability"
	"github.com/valter-silva-au/devflow/internal/storage"
	"github.com/valter-silva-au/devflow/pkg/models"
)

// EnvHome overrides the directory holding the global .devflow config.
const EnvHome = "DEVFLOW_HOME"

const eventLogFile = "events.jsonl"

// App holds all service dependencies for devflow.
type App struct {
	HomeDir  string
	RepoPath string

	// Configuration
	ConfigMgr core.ConfigurationManager
	Config    models.Config
	// WorkflowConfigErr reports missing settings of the remote workflows.
	// Local commands still work when it is set.
	WorkflowConfigErr error

	Logger *slog.Logger

	// Storage layer
	Worktrees storage.WorktreeStore

	// Integration services
	VCS       *integration.GitVCS
	Tasks     *integration.NotionTaskStore
	Messenger *integration.SlackMessenger
	CodeHost  *integration.GitLabCodeHost

	// Core services
	Lifecycle    core.WorktreeLifecycle
	Search       core.SearchAggregator
	Threads      core.ThreadLocator
	Orchestrator core.Orchestrator

	// Observability
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
}

// NewApp creates and wires all components for the repository at repoPath.
// homeDir holds the global .devflow/config.yaml.
func NewApp(homeDir, repoPath string) (*App, error) {
	app := &App{HomeDir: homeDir, RepoPath: repoPath}

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(homeDir)
	cfg, err := app.ConfigMgr.GetMergedConfig(repoPath)
	if err != nil {
		return nil, err
	}
	app.Config = cfg
	app.WorkflowConfigErr = core.RequireWorkflowConfig(cfg)
	secrets := app.ConfigMgr.LoadSecrets()

	app.Logger = observability.NewLoggerFromEnv().With("repo", repoPath)

	// --- Storage layer ---
	app.Worktrees = storage.NewWorktreeStore(repoPath)

	// --- Observability ---
	eventLogPath := filepath.Join(repoPath, ".devflow", eventLogFile)
	app.EventLog, err = observability.NewJSONLEventLog(eventLogPath)
	if err != nil {
		// Non-fatal: workflows run without an audit trail.
		app.Logger.Warn("event log disabled", "path", eventLogPath, "error", err)
		app.EventLog = nil
	}
	var events core.EventLogger
	if app.EventLog != nil {
		events = observability.NewRecorder(app.EventLog)
		app.MetricsCalc = observability.NewMetricsCalculator(app.EventLog)
	}
	app.AlertEngine = observability.NewAlertEngine(app.Worktrees, app.EventLog, observability.DefaultAlertThresholds())

	// --- Integration services ---
	client := &http.Client{Timeout: cfg.CallTimeout}
	app.VCS = integration.NewGitVCS()
	app.Tasks = integration.NewNotionTaskStore(cfg.TaskStore.BaseURL, cfg.TaskStore.ScopeID, secrets.TaskStoreToken, integration.NotionSchemaFromConfig(cfg.TaskStore.Properties), client)
	app.Messenger = integration.NewSlackMessenger(cfg.Chat.BaseURL, secrets.ChatToken, client)
	app.CodeHost = integration.NewGitLabCodeHost(cfg.CodeHost.BaseURL, cfg.CodeHost.ProjectID, secrets.CodeHostToken, client)
	if cfg.Chat.ChannelID != "" && secrets.ChatToken != "" {
		app.Notifier = observability.NewChatNotifier(app.Messenger, cfg.Chat.ChannelID)
	}

	// --- Core services ---
	app.Lifecycle = core.NewWorktreeLifecycle(app.VCS, app.CodeHost, app.Worktrees, integration.OSWorkDir{}, core.LifecycleOptions{
		RepoPath:      repoPath,
		BasePath:      cfg.Worktree.BasePath,
		BranchPrefix:  cfg.Worktree.BranchPrefix,
		DefaultBranch: cfg.Worktree.DefaultBranch,
		Remote:        cfg.Worktree.Remote,
		CallTimeout:   cfg.CallTimeout,
		Logger:        app.Logger,
	})
	app.Search = core.NewSearchAggregator(app.Tasks, core.SearchOptions{
		ScopeID:     cfg.TaskStore.ScopeID,
		Queries:     cfg.TaskStore.Queries,
		CallTimeout: cfg.CallTimeout,
		Logger:      app.Logger,
	})
	app.Threads = core.NewThreadLocator(app.Messenger, cfg.Chat.HistoryLimit, cfg.CallTimeout, app.Logger)
	app.Orchestrator = core.NewOrchestrator(core.OrchestratorDeps{
		Tasks:     app.Tasks,
		Messenger: app.Messenger,
		CodeHost:  app.CodeHost,
		Search:    app.Search,
		Threads:   app.Threads,
		Lifecycle: app.Lifecycle,
		Events:    events,
	}, core.OrchestratorConfig{
		Workstream: cfg.TaskStore.Workstream,
		ChannelID:  cfg.Chat.ChannelID,
		Budget: core.Budget{
			MaxLength:       cfg.Message.MaxLength,
			GroupCap:        cfg.Message.GroupCap,
			ReducedGroupCap: cfg.Message.ReducedGroupCap,
		},
		ProjectNames: cfg.TaskStore.ProjectNames,
		CallTimeout:  cfg.CallTimeout,
		Logger:       app.Logger,
	})

	// --- Wire CLI package-level variables ---
	cli.Orchestrator = app.Orchestrator
	cli.WorkflowConfigErr = app.WorkflowConfigErr
	cli.CurrentBranch = app.currentBranch
	cli.NewChooser = newTerminalChooser
	cli.AlertEngine = app.AlertEngine
	cli.MetricsCalc = app.MetricsCalc
	cli.Notifier = app.Notifier

	return app, nil
}

// Close releases resources held by the App, such as the event log file handle.
// It is safe to call Close on an App whose EventLog is nil.
func (a *App) Close() error {
	if a.EventLog != nil {
		return a.EventLog.Close()
	}
	return nil
}

func (a *App) currentBranch(ctx context.Context) (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return a.VCS.CurrentBranch(ctx, wd)
}

// newTerminalChooser returns an interactive chooser when both stdin and
// stdout are terminals.
func newTerminalChooser() core.Chooser {
	if !isTerminal(os.Stdin) || !isTerminal(os.Stdout) {
		return nil
	}
	return &cli.TerminalChooser{In: os.Stdin, Out: os.Stdout}
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// ResolveHomeDir determines the directory holding the global .devflow
// config. DEVFLOW_HOME takes precedence over the user's home directory.
func ResolveHomeDir() string {
	if home := os.Getenv(EnvHome); home != "" {
		return home
	}
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "."
}

// ResolveRepoPath returns the root of the main git repository containing the
// working directory, or the working directory itself outside a repository.
func ResolveRepoPath(ctx context.Context) string {
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	if top, err := integration.NewGitVCS().TopLevel(ctx, cwd); err == nil && top != "" {
		return top
	}
	return cwd
}
