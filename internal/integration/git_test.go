package integration

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}

// setupTestGitRepo creates a repository on main with one commit.
func setupTestGitRepo(t *testing.T) string {
	t.Helper()
	requireGit(t)
	dir := t.TempDir()
	runGit(t, dir, "init", "-b", "main")
	runGit(t, dir, "config", "user.name", "Test User")
	runGit(t, dir, "config", "user.email", "test@example.com")
	runGit(t, dir, "config", "commit.gpgsign", "false")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("# test\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-m", "initial commit")
	return dir
}

// addBareRemote wires repo to a bare origin and pushes main to it.
func addBareRemote(t *testing.T, repo string) string {
	t.Helper()
	bare := filepath.Join(t.TempDir(), "origin.git")
	runGit(t, repo, "init", "--bare", "-b", "main", bare)
	runGit(t, repo, "remote", "add", "origin", bare)
	runGit(t, repo, "push", "origin", "main")
	return bare
}

func TestGitVCS_WorktreeLifecycle(t *testing.T) {
	repo := setupTestGitRepo(t)
	addBareRemote(t, repo)
	ctx := context.Background()
	g := NewGitVCS()

	base, err := g.FetchDefault(ctx, repo, "origin", "main")
	if err != nil {
		t.Fatalf("FetchDefault() error = %v", err)
	}
	if base != "origin/main" {
		t.Errorf("FetchDefault() = %q, want origin/main", base)
	}

	branch := "feature/task-pay1-refunds"
	exists, err := g.BranchExists(ctx, repo, branch)
	if err != nil || exists {
		t.Fatalf("BranchExists() before create = %v, %v", exists, err)
	}

	wt := filepath.Join(t.TempDir(), "wt")
	if err := g.CreateWorktree(ctx, repo, branch, base, wt); err != nil {
		t.Fatalf("CreateWorktree() error = %v", err)
	}
	if exists, _ := g.BranchExists(ctx, repo, branch); !exists {
		t.Error("BranchExists() after create = false")
	}
	if got, _ := g.CurrentBranch(ctx, wt); got != branch {
		t.Errorf("CurrentBranch() = %q, want %q", got, branch)
	}

	if err := os.WriteFile(filepath.Join(wt, "refund.go"), []byte("package refund\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	status, err := g.Status(ctx, wt)
	if err != nil || len(status) != 1 {
		t.Fatalf("Status() = %v, %v, want one dirty entry", status, err)
	}

	if err := g.StageAll(ctx, wt); err != nil {
		t.Fatal(err)
	}
	first, err := g.Commit(ctx, wt, "WIP: refunds")
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	second, err := g.Commit(ctx, wt, "WIP: nothing new")
	if err != nil {
		t.Fatalf("empty Commit() error = %v", err)
	}
	if len(first) != 40 || first == second {
		t.Errorf("commit hashes %q, %q should be distinct full hashes", first, second)
	}
	if ahead, err := g.CommitsAhead(ctx, wt, base); err != nil || ahead != 2 {
		t.Errorf("CommitsAhead() = %d, %v, want 2", ahead, err)
	}
	if status, _ := g.Status(ctx, wt); len(status) != 0 {
		t.Errorf("Status() after commit = %v, want clean", status)
	}

	if err := g.Push(ctx, wt, "origin", branch, true); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	if err := g.RemoveWorktree(ctx, repo, wt); err != nil {
		t.Fatalf("RemoveWorktree() error = %v", err)
	}
	if err := g.PruneWorktrees(ctx, repo); err != nil {
		t.Fatalf("PruneWorktrees() error = %v", err)
	}
	if _, err := os.Stat(wt); !os.IsNotExist(err) {
		t.Errorf("worktree directory still present: %v", err)
	}
}

func TestGitVCS_FetchDefaultWithoutRemote(t *testing.T) {
	repo := setupTestGitRepo(t)
	g := NewGitVCS()

	base, err := g.FetchDefault(context.Background(), repo, "origin", "main")
	if err != nil || base != "main" {
		t.Errorf("FetchDefault() = %q, %v, want local main", base, err)
	}
	if _, err := g.FetchDefault(context.Background(), repo, "origin", "develop"); err == nil {
		t.Error("FetchDefault() for a missing branch should fail")
	}
}

func TestGitVCS_ErrorIncludesOutput(t *testing.T) {
	requireGit(t)
	_, err := NewGitVCS().CurrentBranch(context.Background(), t.TempDir())
	if err == nil {
		t.Fatal("CurrentBranch() outside a repository should fail")
	}
	if !strings.Contains(err.Error(), "not a git repository") {
		t.Errorf("error lacks git output: %q", err)
	}
}

func TestOSWorkDir(t *testing.T) {
	orig, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(orig) })

	dir := t.TempDir()
	var wd OSWorkDir
	if err := wd.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	got, err := wd.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	resolved, _ := filepath.EvalSymlinks(dir)
	if got != dir && got != resolved {
		t.Errorf("Getwd() = %q, want %q", got, dir)
	}
}

func TestGitVCS_TopLevel(t *testing.T) {
	repo := setupTestGitRepo(t)
	sub := filepath.Join(repo, "pkg", "deep")
	if err := os.MkdirAll(sub, 0o750); err != nil {
		t.Fatal(err)
	}

	got, err := NewGitVCS().TopLevel(context.Background(), sub)
	if err != nil {
		t.Fatalf("TopLevel() error = %v", err)
	}
	resolved, _ := filepath.EvalSymlinks(repo)
	if got != repo && got != resolved {
		t.Errorf("TopLevel() = %q, want %q", got, repo)
	}
}

func TestGitVCS_TopLevelInsideWorktree(t *testing.T) {
	repo := setupTestGitRepo(t)
	ctx := context.Background()
	g := NewGitVCS()

	wt := filepath.Join(repo, ".worktrees", "feature", "task-pay12-x")
	if err := g.CreateWorktree(ctx, repo, "feature/task-pay12-x", "main", wt); err != nil {
		t.Fatalf("CreateWorktree() error = %v", err)
	}
	sub := filepath.Join(wt, "internal")
	if err := os.MkdirAll(sub, 0o750); err != nil {
		t.Fatal(err)
	}

	resolved, _ := filepath.EvalSymlinks(repo)
	for _, dir := range []string{wt, sub} {
		got, err := g.TopLevel(ctx, dir)
		if err != nil {
			t.Fatalf("TopLevel(%s) error = %v", dir, err)
		}
		if got != repo && got != resolved {
			t.Errorf("TopLevel(%s) = %q, want main repository %q", dir, got, repo)
		}
	}
}

func TestGitVCS_RemoveWorktreeKeepsResidue(t *testing.T) {
	repo := setupTestGitRepo(t)
	ctx := context.Background()
	g := NewGitVCS()

	wt := filepath.Join(t.TempDir(), "wt")
	if err := g.CreateWorktree(ctx, repo, "feature/task-pay3-residue", "main", wt); err != nil {
		t.Fatalf("CreateWorktree() error = %v", err)
	}
	residue := filepath.Join(wt, "events.jsonl")
	if err := os.WriteFile(residue, []byte("{}\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := g.RemoveWorktree(ctx, repo, wt); err == nil {
		t.Fatal("RemoveWorktree() with untracked files should fail")
	}
	if _, err := os.Stat(residue); err != nil {
		t.Errorf("untracked file was destroyed: %v", err)
	}
}
