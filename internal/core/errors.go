package core

import (
	"errors"
	"fmt"
)

// Error taxonomy. Every external-call failure is converted into one of these
// (wrapped with context) so workflows can keep going and report per system.
var (
	// ErrNotFound means the thread, task or worktree record is absent. It is
	// expected and usually handled by a fallback path.
	ErrNotFound = errors.New("not found")

	// ErrUnverified marks a search hit whose verification fetch failed.
	ErrUnverified = errors.New("unverified search hit")

	// ErrPartialFailure means one external system failed while others succeeded.
	ErrPartialFailure = errors.New("partial failure")

	// ErrStateConflict means the requested transition is not valid from the
	// record's current state. It is surfaced to the caller, never auto-resolved.
	ErrStateConflict = errors.New("state conflict")

	// ErrAlreadyExists is the StateConflict raised when a worktree path or
	// branch is already taken.
	ErrAlreadyExists = fmt.Errorf("already exists: %w", ErrStateConflict)

	// ErrCleanupFailure means releasing a resource failed after the work
	// itself succeeded. It is never fatal.
	ErrCleanupFailure = errors.New("cleanup failure")

	// ErrBudgetExceeded means a message cannot fit its length budget even
	// after every optional section was dropped.
	ErrBudgetExceeded = errors.New("message budget exceeded")

	// ErrChoiceAborted is returned by a Chooser when the user declines to pick.
	ErrChoiceAborted = errors.New("choice aborted")
)

// CleanupError reports a failed worktree removal together with the exact
// command that finishes the cleanup by hand.
type CleanupError struct {
	Path          string
	ManualCommand string
	Err           error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("removing worktree %s: %v (run manually: %s)", e.Path, e.Err, e.ManualCommand)
}

// Unwrap lets errors.Is match both ErrCleanupFailure and the underlying cause.
func (e *CleanupError) Unwrap() []error {
	return []error{ErrCleanupFailure, e.Err}
}

func isAlreadyExists(err error) bool { return errors.Is(err, ErrAlreadyExists) }

func isPartial(err error) bool { return errors.Is(err, ErrPartialFailure) }
