package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Jocelyn-JE/AREA-51/internal/service"
	"github.com/Jocelyn-JE/AREA-51/pkg/httpx"
	logx "github.com/Jocelyn-JE/AREA-51/pkg/logx"
)

func testProvider(t *testing.T, handler http.Handler) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p := New(httpx.New(httpx.Options{Timeout: 2 * time.Second}), logx.Nop())
	p.base = srv.URL
	return p
}

func ec() service.Context {
	return service.Context{UserID: "u1", Tokens: map[string]string{"github": "ghtok"}}
}

func TestNewPullRequestFiresOnFresh(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	p := testProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/repos/acme/widgets/pulls", r.URL.Path)
		require.Equal(t, "Bearer ghtok", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{
				"number": 7, "title": "Add frobnicator", "html_url": "https://example.com/pr/7",
				"created_at": now.Format(time.RFC3339),
				"user":       map[string]string{"login": "alice"},
			},
		})
	}))

	last := now.Add(-time.Hour)
	ctx := ec()
	ctx.LastTriggered = &last

	trig, err := p.ExecuteAction(context.Background(), "new_pull_request",
		service.Params{"repository": "acme/widgets"}, ctx)
	require.NoError(t, err)
	require.True(t, trig.Fired())

	payload := trig.Payload().(map[string]any)
	require.Equal(t, 7, payload["number"])
	require.Equal(t, "alice", payload["author"])
}

func TestNewPullRequestSkipsAlreadySeen(t *testing.T) {
	t.Parallel()

	old := time.Now().UTC().Add(-2 * time.Hour)
	p := testProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"number": 7, "title": "Old", "created_at": old.Format(time.RFC3339)},
		})
	}))

	last := time.Now().UTC().Add(-time.Hour)
	ctx := ec()
	ctx.LastTriggered = &last

	trig, err := p.ExecuteAction(context.Background(), "new_pull_request",
		service.Params{"repository": "acme/widgets"}, ctx)
	require.NoError(t, err)
	require.False(t, trig.Fired())
}

func TestIssueCommentAddedSendsSince(t *testing.T) {
	t.Parallel()

	var gotSince string
	now := time.Now().UTC()
	p := testProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/repos/acme/widgets/issues/12/comments", r.URL.Path)
		gotSince = r.URL.Query().Get("since")
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{
				"id": 991, "body": "lgtm", "html_url": "https://example.com/c/991",
				"created_at": now.Format(time.RFC3339),
				"user":       map[string]string{"login": "bob"},
			},
		})
	}))

	last := now.Add(-time.Minute)
	ctx := ec()
	ctx.LastTriggered = &last

	trig, err := p.ExecuteAction(context.Background(), "issue_comment_added",
		service.Params{"repository": "acme/widgets", "issue_number": float64(12)}, ctx)
	require.NoError(t, err)
	require.True(t, trig.Fired())
	require.Equal(t, last.Format(time.RFC3339), gotSince)

	payload := trig.Payload().(map[string]any)
	require.Equal(t, "bob", payload["author"])
}

func TestCreateIssuePostsPayload(t *testing.T) {
	t.Parallel()

	var got map[string]any
	p := testProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/repos/acme/widgets/issues", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))

	err := p.ExecuteReaction(context.Background(), "create_issue",
		service.Params{"repository": "acme/widgets", "title": "Broken build", "body": "details"}, ec())
	require.NoError(t, err)
	require.Equal(t, "Broken build", got["title"])
	require.Equal(t, "details", got["body"])
}

func TestAddLabelPostsLabels(t *testing.T) {
	t.Parallel()

	var got map[string][]string
	p := testProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/repos/acme/widgets/issues/12/labels", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))

	err := p.ExecuteReaction(context.Background(), "add_label_to_issue",
		service.Params{"repository": "acme/widgets", "issue_number": float64(12), "label": "bug"}, ec())
	require.NoError(t, err)
	require.Equal(t, []string{"bug"}, got["labels"])
}

func TestTransientPollFailureIsQuiet(t *testing.T) {
	t.Parallel()

	p := testProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))

	trig, err := p.ExecuteAction(context.Background(), "new_pull_request",
		service.Params{"repository": "acme/widgets"}, ec())
	require.NoError(t, err)
	require.False(t, trig.Fired())
}

func TestMissingCredential(t *testing.T) {
	t.Parallel()

	p := testProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))

	_, err := p.ExecuteAction(context.Background(), "new_pull_request",
		service.Params{"repository": "acme/widgets"}, service.Context{UserID: "u1"})
	require.ErrorContains(t, err, "no github credential")
}
