package integration

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/valter-silva-au/devflow/internal/core"
	"github.com/valter-silva-au/devflow/pkg/models"
)

// DefaultGitLabURL is the GitLab REST API root.
const DefaultGitLabURL = "https://gitlab.com/api/v4"

const gitlabPageSize = 100

// GitLabCodeHost implements core.CodeHost over the GitLab merge request API.
type GitLabCodeHost struct {
	api       *jsonAPI
	projectID string
}

// NewGitLabCodeHost returns a code host for one project. projectID may be
// numeric or a namespaced path such as "group/repo".
func NewGitLabCodeHost(baseURL, projectID, token string, client *http.Client) *GitLabCodeHost {
	if baseURL == "" {
		baseURL = DefaultGitLabURL
	}
	headers := http.Header{}
	headers.Set("PRIVATE-TOKEN", token)
	return &GitLabCodeHost{api: newJSONAPI("gitlab", baseURL, client, headers), projectID: projectID}
}

type gitlabMergeRequest struct {
	IID          int       `json:"iid"`
	WebURL       string    `json:"web_url"`
	SourceBranch string    `json:"source_branch"`
	TargetBranch string    `json:"target_branch"`
	Title        string    `json:"title"`
	State        string    `json:"state"`
	CreatedAt    time.Time `json:"created_at"`
}

func (m gitlabMergeRequest) model() models.MergeRequest {
	return models.MergeRequest{
		ID:           strconv.Itoa(m.IID),
		URL:          m.WebURL,
		SourceBranch: m.SourceBranch,
		TargetBranch: m.TargetBranch,
		Title:        m.Title,
		Status:       gitlabStatus(m.State),
		CreatedAt:    m.CreatedAt,
	}
}

// gitlabStatus maps GitLab states; "locked" counts as opened.
func gitlabStatus(state string) models.MergeRequestStatus {
	switch state {
	case "merged":
		return models.MergeRequestMerged
	case "closed":
		return models.MergeRequestClosed
	default:
		return models.MergeRequestOpened
	}
}

func (g *GitLabCodeHost) projectPath() string {
	return "/projects/" + url.PathEscape(g.projectID) + "/merge_requests"
}

// ListMergeRequests pages through the project's merge requests matching filter.
func (g *GitLabCodeHost) ListMergeRequests(ctx context.Context, filter models.MergeRequestFilter) ([]models.MergeRequest, error) {
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(gitlabPageSize))
	q.Set("order_by", "created_at")
	q.Set("sort", "desc")
	if filter.SourceBranch != "" {
		q.Set("source_branch", filter.SourceBranch)
	}
	if filter.Status != "" {
		q.Set("state", string(filter.Status))
	}
	if filter.CreatedAfter != nil {
		q.Set("created_after", filter.CreatedAfter.UTC().Format(time.RFC3339))
	}

	var out []models.MergeRequest
	for page := 1; ; page++ {
		q.Set("page", strconv.Itoa(page))
		var batch []gitlabMergeRequest
		if err := g.api.do(ctx, http.MethodGet, g.projectPath(), q, nil, &batch); err != nil {
			return nil, fmt.Errorf("listing merge requests: %w", err)
		}
		for _, m := range batch {
			out = append(out, m.model())
		}
		if len(batch) < gitlabPageSize {
			return out, nil
		}
	}
}

type gitlabCreate struct {
	SourceBranch       string `json:"source_branch"`
	TargetBranch       string `json:"target_branch"`
	Title              string `json:"title"`
	Description        string `json:"description,omitempty"`
	RemoveSourceBranch bool   `json:"remove_source_branch"`
}

// CreateMergeRequest opens a merge request. GitLab answers 409 when one is
// already open for the branch; that surfaces as core.ErrAlreadyExists.
func (g *GitLabCodeHost) CreateMergeRequest(ctx context.Context, input core.CreateMergeRequestInput) (*models.MergeRequest, error) {
	body := gitlabCreate{
		SourceBranch:       input.SourceBranch,
		TargetBranch:       input.TargetBranch,
		Title:              input.Title,
		Description:        input.Body,
		RemoveSourceBranch: true,
	}
	var created gitlabMergeRequest
	if err := g.api.do(ctx, http.MethodPost, g.projectPath(), nil, body, &created); err != nil {
		if IsStatus(err, http.StatusConflict) {
			return nil, fmt.Errorf("creating merge request for %s: %w: %w", input.SourceBranch, core.ErrAlreadyExists, err)
		}
		return nil, fmt.Errorf("creating merge request for %s: %w", input.SourceBranch, err)
	}
	mr := created.model()
	return &mr, nil
}
