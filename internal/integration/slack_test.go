package integration

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/valter-silva-au/devflow/internal/core"
)

func TestSlackMessenger_History(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path != "/conversations.history" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer xoxb-test" {
			t.Errorf("Authorization = %q", got)
		}
		if r.URL.Query().Get("channel") != "C1" {
			t.Errorf("channel = %q", r.URL.Query().Get("channel"))
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		resp := map[string]any{"ok": true}
		if r.URL.Query().Get("cursor") == "" {
			resp["messages"] = []map[string]string{
				{"ts": "1700000003.000000", "text": "newest", "client_msg_id": "m3"},
				{"ts": "1700000002.000000", "text": "middle"},
			}[:min(2, limit)]
			resp["has_more"] = true
			resp["response_metadata"] = map[string]string{"next_cursor": "page2"}
		} else {
			resp["messages"] = []map[string]string{{"ts": "1700000001.000000", "text": "oldest"}}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	s := NewSlackMessenger(srv.URL, "xoxb-test", srv.Client())
	msgs, err := s.History(t.Context(), "C1", 3)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(msgs) != 3 || calls != 2 {
		t.Fatalf("History() = %d messages in %d calls, want 3 in 2", len(msgs), calls)
	}
	if msgs[0].ID != "m3" || msgs[0].TimestampID != "1700000003.000000" || msgs[1].ID != "1700000002.000000" {
		t.Errorf("unexpected messages: %+v", msgs)
	}
}

func TestSlackMessenger_PostAndReply(t *testing.T) {
	var bodies []slackPost
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat.postMessage" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body slackPost
		_ = json.NewDecoder(r.Body).Decode(&body)
		bodies = append(bodies, body)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "ts": "1700000009.000100"})
	}))
	defer srv.Close()

	s := NewSlackMessenger(srv.URL, "t", srv.Client())
	ts, err := s.Post(t.Context(), "C1", "root")
	if err != nil || ts != "1700000009.000100" {
		t.Fatalf("Post() = %q, %v", ts, err)
	}
	if err := s.Reply(t.Context(), "C1", ts, "update"); err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if len(bodies) != 2 || bodies[0].ThreadTS != "" || bodies[1].ThreadTS != ts {
		t.Errorf("unexpected bodies: %+v", bodies)
	}
	if err := s.Reply(t.Context(), "C1", "", "x"); err == nil {
		t.Error("Reply() without thread should fail")
	}
}

func TestSlackMessenger_Errors(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		wantNotFound bool
	}{
		{"ok false", http.StatusOK, `{"ok":false,"error":"not_in_channel"}`, false},
		{"channel not found", http.StatusOK, `{"ok":false,"error":"channel_not_found"}`, true},
		{"http error", http.StatusInternalServerError, `oops`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewSlackMessenger(srv.URL, "t", srv.Client()).Post(t.Context(), "C1", "x")
			if err == nil {
				t.Fatal("Post() should fail")
			}
			if got := errors.Is(err, core.ErrNotFound); got != tt.wantNotFound {
				t.Errorf("errors.Is(err, ErrNotFound) = %v, want %v (%v)", got, tt.wantNotFound, err)
			}
		})
	}
}
