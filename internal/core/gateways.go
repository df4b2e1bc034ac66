package core

import (
	"context"

	"github.com/valter-silva-au/devflow/pkg/models"
)

// TaskStore is the task tracker as seen by the orchestrator. Search is a
// lossy candidate generator; Fetch is authoritative.
type TaskStore interface {
	Search(ctx context.Context, query, scopeID string) ([]models.SearchHit, error)
	Fetch(ctx context.Context, taskID string) (*models.Task, error)
	UpdateStatus(ctx context.Context, taskID string, status models.TaskStatus) error
	AppendContent(ctx context.Context, taskID, text string) error
}

// Messenger is the team chat. History returns the newest messages first.
type Messenger interface {
	History(ctx context.Context, channelID string, limit int) ([]models.Message, error)
	Post(ctx context.Context, channelID, text string) (timestampID string, err error)
	Reply(ctx context.Context, channelID, timestampID, text string) error
}

// CreateMergeRequestInput holds the fields of a new merge request.
type CreateMergeRequestInput struct {
	SourceBranch string
	TargetBranch string
	Title        string
	Body         string
}

// CodeHost is the merge-request host.
type CodeHost interface {
	ListMergeRequests(ctx context.Context, filter models.MergeRequestFilter) ([]models.MergeRequest, error)
	CreateMergeRequest(ctx context.Context, input CreateMergeRequestInput) (*models.MergeRequest, error)
}

// VCS drives git. Every method takes the directory it operates in, which is
// either the main repository or a worktree.
type VCS interface {
	CurrentBranch(ctx context.Context, dir string) (string, error)
	BranchExists(ctx context.Context, repoDir, branch string) (bool, error)
	// Status returns the porcelain status lines; empty means clean.
	Status(ctx context.Context, dir string) ([]string, error)
	// FetchDefault fetches the default branch from the remote and returns the
	// ref new branches should start from (e.g. origin/main).
	FetchDefault(ctx context.Context, repoDir, remote, branch string) (string, error)
	CreateWorktree(ctx context.Context, repoDir, branch, baseRef, path string) error
	RemoveWorktree(ctx context.Context, repoDir, path string) error
	PruneWorktrees(ctx context.Context, repoDir string) error
	StageAll(ctx context.Context, dir string) error
	// Commit records a new commit (never amends) and returns its hash.
	Commit(ctx context.Context, dir, message string) (string, error)
	Push(ctx context.Context, dir, remote, branch string, setUpstream bool) error
	// CommitsAhead counts commits on HEAD that are not reachable from baseRef.
	CommitsAhead(ctx context.Context, dir, baseRef string) (int, error)
}

// WorkDir abstracts the process working directory so worktree removal can
// step out of the directory it is about to delete.
type WorkDir interface {
	Getwd() (string, error)
	Chdir(dir string) error
}

// Choice is one option offered to the user.
type Choice struct {
	Label       string
	Description string
}

// Chooser asks the user to pick one option and returns its index.
type Chooser interface {
	RequestChoice(ctx context.Context, prompt string, options []Choice) (int, error)
}

// EventLogger is the subset of the observability event log that core
// services need. Defining it here avoids importing the observability package.
type EventLogger interface {
	LogEvent(eventType string, data map[string]any) error
}
