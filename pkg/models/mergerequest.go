package models

import "time"

// MergeRequestStatus is the code-host state of a merge request.
type MergeRequestStatus string

const (
	MergeRequestOpened MergeRequestStatus = "opened"
	MergeRequestMerged MergeRequestStatus = "merged"
	MergeRequestClosed MergeRequestStatus = "closed"
)

// MergeRequest is a code-review request as reported by the code host.
type MergeRequest struct {
	ID           string             `json:"id"`
	URL          string             `json:"url"`
	SourceBranch string             `json:"source_branch"`
	TargetBranch string             `json:"target_branch,omitempty"`
	Title        string             `json:"title"`
	Status       MergeRequestStatus `json:"status"`
	CreatedAt    time.Time          `json:"created_at"`
}

// MergeRequestFilter narrows ListMergeRequests. Zero fields are ignored.
type MergeRequestFilter struct {
	SourceBranch string
	Status       MergeRequestStatus
	CreatedAfter *time.Time
}

// Confidence tags how a correlation was established.
type Confidence string

const (
	ConfidenceExact     Confidence = "exact"
	ConfidenceHeuristic Confidence = "heuristic"
)

// Correlation pairs a task with the merge request that delivered it.
// Correlations are recomputed on every run and never persisted.
type Correlation struct {
	Task         Task
	MergeRequest MergeRequest
	Confidence   Confidence
	Rule         string
}
