package github_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ghreview "github.com/arcyd/arcyd/internal/adapter/reviewclient/github"
	"github.com/arcyd/arcyd/internal/domain"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *ghreview.Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := ghreview.New("test-token", "acme", "widget", nil)
	require.NoError(t, c.WithBaseURL(srv.URL+"/"))
	return c
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestCreateOpensPullRequestAndRequestsReviewers(t *testing.T) {
	var sawReviewers bool

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widget/pulls", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		writeJSON(t, w, map[string]any{"number": 42})
	})
	mux.HandleFunc("/repos/acme/widget/pulls/42/requested_reviewers", func(w http.ResponseWriter, r *http.Request) {
		sawReviewers = true
		writeJSON(t, w, map[string]any{"number": 42})
	})

	c := newTestClient(t, mux)

	id, err := c.Create(context.Background(), domain.ReviewRequest{
		Branch:    "dev/arcyd/feature-1",
		Base:      "master",
		Title:     "feature 1",
		TestPlan:  "none",
		Reviewers: []string{"alice"},
	})
	require.NoError(t, err)
	assert.Equal(t, 42, id)
	assert.True(t, sawReviewers)
}

func TestCreateSkipsReviewerRequestWhenNoneGiven(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widget/pulls", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"number": 7})
	})
	mux.HandleFunc("/repos/acme/widget/pulls/7/requested_reviewers", func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not request reviewers when none are given")
	})

	c := newTestClient(t, mux)
	id, err := c.Create(context.Background(), domain.ReviewRequest{Branch: "b", Base: "master", Title: "t"})
	require.NoError(t, err)
	assert.Equal(t, 7, id)
}

func TestCommentPostsIssueComment(t *testing.T) {
	var gotBody string
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widget/issues/5/comments", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Body string `json:"body"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotBody = body.Body
		writeJSON(t, w, map[string]any{"id": 1})
	})

	c := newTestClient(t, mux)
	require.NoError(t, c.Comment(context.Background(), 5, "hello reviewers"))
	assert.Equal(t, "hello reviewers", gotBody)
}

func TestCloseEditsStateToClosed(t *testing.T) {
	var gotState string
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widget/pulls/9", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			var body struct {
				State string `json:"state"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			gotState = body.State
		}
		writeJSON(t, w, map[string]any{"number": 9, "state": "closed"})
	})

	c := newTestClient(t, mux)
	require.NoError(t, c.Close(context.Background(), 9))
	assert.Equal(t, "closed", gotState)
}

func TestAbandonCommentsThenCloses(t *testing.T) {
	var commented, closed bool
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widget/issues/3/comments", func(w http.ResponseWriter, r *http.Request) {
		commented = true
		writeJSON(t, w, map[string]any{"id": 1})
	})
	mux.HandleFunc("/repos/acme/widget/pulls/3", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			closed = true
		}
		writeJSON(t, w, map[string]any{"number": 3})
	})

	c := newTestClient(t, mux)
	require.NoError(t, c.Abandon(context.Background(), 3, "branch deleted upstream"))
	assert.True(t, commented)
	assert.True(t, closed)
}

func TestQueryStatusMapsMergedToClosed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widget/pulls/11", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"number": 11, "state": "closed", "merged": true})
	})

	c := newTestClient(t, mux)
	status, err := c.QueryStatus(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewClosed, status)
}

func TestQueryStatusMapsClosedUnmergedToAbandoned(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widget/pulls/12", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"number": 12, "state": "closed", "merged": false})
	})

	c := newTestClient(t, mux)
	status, err := c.QueryStatus(context.Background(), 12)
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewAbandoned, status)
}

func TestQueryStatusMapsOpenDirtyToNeedsRevision(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widget/pulls/13", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"number": 13, "state": "open", "mergeable_state": "dirty"})
	})

	c := newTestClient(t, mux)
	status, err := c.QueryStatus(context.Background(), 13)
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewNeedsRevision, status)
}

func TestQueryStatusMapsOpenCleanToAccepted(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widget/pulls/14", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"number": 14, "state": "open", "mergeable_state": "clean"})
	})

	c := newTestClient(t, mux)
	status, err := c.QueryStatus(context.Background(), 14)
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewAccepted, status)
}

func TestQueryStatusesGathersEachIDIntoAMap(t *testing.T) {
	mux := http.NewServeMux()
	for _, id := range []int{1, 2} {
		id := id
		mux.HandleFunc(fmt.Sprintf("/repos/acme/widget/pulls/%d", id), func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, map[string]any{"number": id, "state": "open", "mergeable_state": "unstable"})
		})
	}

	c := newTestClient(t, mux)
	statuses, err := c.QueryStatuses(context.Background(), []int{1, 2})
	require.NoError(t, err)
	assert.Len(t, statuses, 2)
	assert.Equal(t, domain.ReviewNeedsReview, statuses[1])
}
