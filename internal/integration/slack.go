package integration

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/valter-silva-au/devflow/internal/core"
	"github.com/valter-silva-au/devflow/pkg/models"
)

// DefaultSlackURL is the Slack Web API root.
const DefaultSlackURL = "https://slack.com/api"

// slackMaxPage is the largest page conversations.history accepts.
const slackMaxPage = 200

// SlackMessenger implements core.Messenger over the Slack Web API.
type SlackMessenger struct {
	api *jsonAPI
}

// NewSlackMessenger returns a messenger authenticating with a bot token.
// A nil client uses a default with a timeout.
func NewSlackMessenger(baseURL, token string, client *http.Client) *SlackMessenger {
	if baseURL == "" {
		baseURL = DefaultSlackURL
	}
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+token)
	return &SlackMessenger{api: newJSONAPI("slack", baseURL, client, headers)}
}

// slackResponse is the envelope shared by every Web API method. Slack
// reports most failures as HTTP 200 with ok=false.
type slackResponse struct {
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	TS       string `json:"ts,omitempty"`
	Messages []struct {
		Type        string `json:"type"`
		TS          string `json:"ts"`
		Text        string `json:"text"`
		ClientMsgID string `json:"client_msg_id,omitempty"`
	} `json:"messages,omitempty"`
	HasMore          bool `json:"has_more,omitempty"`
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

func (r *slackResponse) err(method string) error {
	if r.OK {
		return nil
	}
	switch r.Error {
	case "channel_not_found", "thread_not_found", "message_not_found":
		return fmt.Errorf("slack %s: %s: %w", method, r.Error, core.ErrNotFound)
	}
	return fmt.Errorf("slack %s: %s", method, r.Error)
}

// History returns up to limit messages, newest first, following cursors
// until limit is reached.
func (s *SlackMessenger) History(ctx context.Context, channelID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	var (
		out    []models.Message
		cursor string
	)
	for len(out) < limit {
		q := url.Values{}
		q.Set("channel", channelID)
		q.Set("limit", strconv.Itoa(min(limit-len(out), slackMaxPage)))
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		var resp slackResponse
		if err := s.api.do(ctx, http.MethodGet, "/conversations.history", q, nil, &resp); err != nil {
			return nil, err
		}
		if err := resp.err("conversations.history"); err != nil {
			return nil, err
		}
		for _, m := range resp.Messages {
			id := m.ClientMsgID
			if id == "" {
				id = m.TS
			}
			out = append(out, models.Message{ID: id, Text: m.Text, TimestampID: m.TS})
		}
		cursor = resp.ResponseMetadata.NextCursor
		if !resp.HasMore || cursor == "" || len(resp.Messages) == 0 {
			break
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type slackPost struct {
	Channel  string `json:"channel"`
	Text     string `json:"text"`
	ThreadTS string `json:"thread_ts,omitempty"`
}

// Post publishes a top-level message and returns its timestamp.
func (s *SlackMessenger) Post(ctx context.Context, channelID, text string) (string, error) {
	return s.post(ctx, slackPost{Channel: channelID, Text: text})
}

// Reply posts text in the thread anchored at timestampID.
func (s *SlackMessenger) Reply(ctx context.Context, channelID, timestampID, text string) error {
	if timestampID == "" {
		return fmt.Errorf("slack reply: empty thread timestamp")
	}
	_, err := s.post(ctx, slackPost{Channel: channelID, Text: text, ThreadTS: timestampID})
	return err
}

func (s *SlackMessenger) post(ctx context.Context, msg slackPost) (string, error) {
	var resp slackResponse
	if err := s.api.do(ctx, http.MethodPost, "/chat.postMessage", nil, msg, &resp); err != nil {
		return "", err
	}
	if err := resp.err("chat.postMessage"); err != nil {
		return "", err
	}
	return resp.TS, nil
}
