package integration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// GitVCS drives git through its command line.
type GitVCS struct {
	// Binary is the git executable; empty means "git" on PATH.
	Binary string
}

// NewGitVCS returns a GitVCS using git from PATH.
func NewGitVCS() *GitVCS {
	return &GitVCS{}
}

func (g *GitVCS) binary() string {
	if g.Binary == "" {
		return "git"
	}
	return g.Binary
}

// run executes git in dir and returns its trimmed combined output.
func (g *GitVCS) run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, g.binary(), args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	trimmed := strings.TrimSpace(string(out))
	if err != nil {
		return trimmed, fmt.Errorf("git %s failed: %s: %w", args[0], trimmed, err)
	}
	return trimmed, nil
}

// TopLevel returns the root of the main working tree of the repository
// containing dir. Inside a linked worktree that is the repository the
// worktree was added from, not the worktree itself.
func (g *GitVCS) TopLevel(ctx context.Context, dir string) (string, error) {
	common, err := g.run(ctx, dir, "rev-parse", "--path-format=absolute", "--git-common-dir")
	if err != nil {
		return "", err
	}
	if filepath.Base(common) == ".git" {
		return filepath.Dir(common), nil
	}
	// Separate git dir or bare repository: fall back to the checkout root.
	return g.run(ctx, dir, "rev-parse", "--show-toplevel")
}

func (g *GitVCS) CurrentBranch(ctx context.Context, dir string) (string, error) {
	return g.run(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
}

func (g *GitVCS) BranchExists(ctx context.Context, repoDir, branch string) (bool, error) {
	_, err := g.run(ctx, repoDir, "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, err
}

func (g *GitVCS) Status(ctx context.Context, dir string) ([]string, error) {
	out, err := g.run(ctx, dir, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// FetchDefault fetches branch from remote and returns remote/branch. A
// repository without that remote starts new branches from the local branch.
func (g *GitVCS) FetchDefault(ctx context.Context, repoDir, remote, branch string) (string, error) {
	if _, err := g.run(ctx, repoDir, "remote", "get-url", remote); err != nil {
		if _, err := g.run(ctx, repoDir, "rev-parse", "--verify", "--quiet", branch); err != nil {
			return "", fmt.Errorf("no remote %s and no local branch %s: %w", remote, branch, err)
		}
		return branch, nil
	}
	if _, err := g.run(ctx, repoDir, "fetch", remote, branch); err != nil {
		return "", err
	}
	return remote + "/" + branch, nil
}

func (g *GitVCS) CreateWorktree(ctx context.Context, repoDir, branch, baseRef, path string) error {
	_, err := g.run(ctx, repoDir, "worktree", "add", "-b", branch, path, baseRef)
	return err
}

// RemoveWorktree refuses a worktree holding modified or untracked files.
func (g *GitVCS) RemoveWorktree(ctx context.Context, repoDir, path string) error {
	_, err := g.run(ctx, repoDir, "worktree", "remove", path)
	return err
}

func (g *GitVCS) PruneWorktrees(ctx context.Context, repoDir string) error {
	_, err := g.run(ctx, repoDir, "worktree", "prune")
	return err
}

func (g *GitVCS) StageAll(ctx context.Context, dir string) error {
	_, err := g.run(ctx, dir, "add", "-A")
	return err
}

// Commit always creates a new commit, empty if nothing is staged.
func (g *GitVCS) Commit(ctx context.Context, dir, message string) (string, error) {
	if _, err := g.run(ctx, dir, "commit", "--allow-empty", "--no-verify", "-m", message); err != nil {
		return "", err
	}
	return g.run(ctx, dir, "rev-parse", "HEAD")
}

func (g *GitVCS) Push(ctx context.Context, dir, remote, branch string, setUpstream bool) error {
	args := []string{"push"}
	if setUpstream {
		args = append(args, "--set-upstream")
	}
	args = append(args, remote, branch)
	_, err := g.run(ctx, dir, args...)
	return err
}

func (g *GitVCS) CommitsAhead(ctx context.Context, dir, baseRef string) (int, error) {
	out, err := g.run(ctx, dir, "rev-list", "--count", baseRef+"..HEAD")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(out)
	if err != nil {
		return 0, fmt.Errorf("parsing rev-list count %q: %w", out, err)
	}
	return n, nil
}

// OSWorkDir is the process working directory.
type OSWorkDir struct{}

func (OSWorkDir) Getwd() (string, error) { return os.Getwd() }

func (OSWorkDir) Chdir(dir string) error { return os.Chdir(dir) }
