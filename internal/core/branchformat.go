package core

import (
	"path/filepath"
	"regexp"
	"strings"
)

// unsafeSlugChars matches characters that are not allowed in a branch slug.
var unsafeSlugChars = regexp.MustCompile(`[^a-z0-9._-]`)

// collapseDashes collapses consecutive dashes into a single dash.
var collapseDashes = regexp.MustCompile(`-{2,}`)

var collapseDots = regexp.MustCompile(`\.{2,}`)

// maxSlugLength keeps branch names and worktree paths readable.
const maxSlugLength = 40

// Slugify turns a task title into a lowercase segment that is safe inside a
// git branch name and a directory name. It never contains a slash, never has
// consecutive dashes, and never starts or ends with a dash or dot.
func Slugify(title string) string {
	s := strings.ToLower(title)
	s = unsafeSlugChars.ReplaceAllString(s, "-")
	s = collapseDashes.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-.")
	if len(s) > maxSlugLength {
		s = strings.Trim(s[:maxSlugLength], "-.")
	}
	// git rejects ".." anywhere and a ".lock" suffix.
	s = collapseDots.ReplaceAllString(s, ".")
	s = strings.TrimSuffix(s, ".lock")
	return strings.Trim(s, "-.")
}

// WorktreeName returns the task-{id}-{slug} segment shared by the branch name
// and the worktree directory.
func WorktreeName(taskID, title string) string {
	name := "task-" + NormalizeID(taskID)
	if slug := Slugify(title); slug != "" {
		name += "-" + slug
	}
	return name
}

// BranchName returns {prefix}/task-{id}-{slug}.
func BranchName(prefix, taskID, title string) string {
	name := WorktreeName(taskID, title)
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// WorktreePath returns {base}/{prefix}/task-{id}-{slug}.
func WorktreePath(base, prefix, taskID, title string) string {
	return filepath.Join(base, filepath.FromSlash(strings.Trim(prefix, "/")), WorktreeName(taskID, title))
}
