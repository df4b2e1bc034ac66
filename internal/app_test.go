package internal

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/valter-silva-au/devflow/internal/cli"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestResolveHomeDir_EnvSet(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(EnvHome, tmpDir)

	if got := ResolveHomeDir(); got != tmpDir {
		t.Errorf("ResolveHomeDir() = %q, want %q", got, tmpDir)
	}
}

func TestResolveRepoPath(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	repo := t.TempDir()
	if out, err := exec.Command("git", "init", repo).CombinedOutput(); err != nil {
		t.Fatalf("git init: %v\n%s", err, out)
	}
	sub := filepath.Join(repo, "a", "b")
	if err := os.MkdirAll(sub, 0o750); err != nil {
		t.Fatal(err)
	}

	origDir, _ := os.Getwd()
	defer func() { _ = os.Chdir(origDir) }()
	if err := os.Chdir(sub); err != nil {
		t.Fatal(err)
	}

	got := ResolveRepoPath(context.Background())
	resolved, _ := filepath.EvalSymlinks(repo)
	if got != repo && got != resolved {
		t.Errorf("ResolveRepoPath() = %q, want %q", got, repo)
	}
}

func TestResolveRepoPath_InsideWorktree(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	repo := t.TempDir()
	wt := filepath.Join(repo, ".worktrees", "feature", "task-pay12-x")
	for _, args := range [][]string{
		{"init", "-b", "main"},
		{"-c", "user.name=Test", "-c", "user.email=test@example.com", "commit", "--allow-empty", "-m", "initial"},
		{"worktree", "add", "-b", "feature/task-pay12-x", wt, "main"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = repo
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}

	origDir, _ := os.Getwd()
	defer func() { _ = os.Chdir(origDir) }()
	if err := os.Chdir(wt); err != nil {
		t.Fatal(err)
	}

	got := ResolveRepoPath(context.Background())
	resolved, _ := filepath.EvalSymlinks(repo)
	if got != repo && got != resolved {
		t.Errorf("ResolveRepoPath() inside worktree = %q, want main repository %q", got, repo)
	}
}

func TestResolveRepoPath_OutsideRepository(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	defer func() { _ = os.Chdir(origDir) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	got := ResolveRepoPath(context.Background())
	resolved, _ := filepath.EvalSymlinks(dir)
	if got != dir && got != resolved {
		t.Errorf("ResolveRepoPath() = %q, want the working directory %q", got, dir)
	}
}

func TestNewApp_WithoutConfig(t *testing.T) {
	app, err := NewApp(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	defer app.Close()

	if app.Orchestrator == nil || app.Lifecycle == nil || app.Worktrees == nil {
		t.Fatal("core services not wired")
	}
	if app.WorkflowConfigErr == nil {
		t.Error("WorkflowConfigErr should report the missing remote settings")
	}
	if app.Notifier != nil {
		t.Error("Notifier should be nil without a channel and token")
	}
	if cli.Orchestrator != app.Orchestrator || cli.AlertEngine == nil {
		t.Error("CLI variables not wired")
	}

	records, err := app.Orchestrator.Status()
	if err != nil || len(records) != 0 {
		t.Errorf("Status() = %v, %v, want no records", records, err)
	}
}

func TestNewApp_FullConfig(t *testing.T) {
	home := t.TempDir()
	repo := t.TempDir()
	writeConfig(t, filepath.Join(home, ".devflow", "config.yaml"), `
task_store:
  scope_id: db-1
  workstream: payments
chat:
  channel_id: C123
code_host:
  project_id: "42"
`)
	t.Setenv("DEVFLOW_CHAT_TOKEN", "xoxb-test")

	app, err := NewApp(home, repo)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	defer app.Close()

	if app.WorkflowConfigErr != nil {
		t.Errorf("WorkflowConfigErr = %v", app.WorkflowConfigErr)
	}
	if app.Notifier == nil {
		t.Error("Notifier should be wired with a channel and token")
	}
	if app.EventLog == nil || app.MetricsCalc == nil {
		t.Error("event log and metrics should be enabled")
	}
	if app.Config.Worktree.BasePath != filepath.Join(repo, ".worktrees") {
		t.Errorf("worktree base = %q", app.Config.Worktree.BasePath)
	}
}

func TestNewApp_InvalidConfig(t *testing.T) {
	repo := t.TempDir()
	writeConfig(t, filepath.Join(repo, ".devflow.yaml"), "message:\n  reduced_group_cap: 99\n")

	_, err := NewApp(t.TempDir(), repo)
	if err == nil || !strings.Contains(err.Error(), "message.reduced_group_cap") {
		t.Errorf("NewApp() error = %v, want a validation error", err)
	}
}

func TestApp_CloseWithoutEventLog(t *testing.T) {
	app := &App{}
	if err := app.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
