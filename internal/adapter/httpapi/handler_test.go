package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewatchers/reviewd/internal/domain"
	"github.com/codewatchers/reviewd/internal/queue"
	"github.com/codewatchers/reviewd/internal/store"
)

func newTestServer(t *testing.T, capacity int, runs store.Store) (*httptest.Server, *queue.Pool) {
	t.Helper()

	pool := queue.New(capacity, 1, queue.ProcessorFunc(func(ctx context.Context, task domain.ReviewTask) error {
		return nil
	}), nil)

	srv := httptest.NewServer(NewServeMux(NewHandler(pool, runs, nil)))
	t.Cleanup(srv.Close)
	return srv, pool
}

func submitBody(repo string, pr int) string {
	body, _ := json.Marshal(SubmitReviewRequest{
		Repository: repo,
		PRNumber:   pr,
		Title:      "Fix token validation",
		BaseSHA:    "aaa111",
		HeadSHA:    "bbb222",
		Diff:       "diff --git a/auth.py b/auth.py\n",
	})
	return string(body)
}

func TestSubmitReviewAccepted(t *testing.T) {
	srv, _ := newTestServer(t, 4, nil)

	resp, err := http.Post(srv.URL+"/reviews", "application/json", strings.NewReader(submitBody("acme/payments", 42)))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var out SubmitReviewResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.NotEmpty(t, out.TaskID)
	assert.Empty(t, out.SupersededID)
}

func TestSubmitReviewReportsSupersededTask(t *testing.T) {
	srv, _ := newTestServer(t, 4, nil)

	first, err := http.Post(srv.URL+"/reviews", "application/json", strings.NewReader(submitBody("acme/payments", 42)))
	require.NoError(t, err)
	var firstOut SubmitReviewResponse
	require.NoError(t, json.NewDecoder(first.Body).Decode(&firstOut))
	first.Body.Close()

	second, err := http.Post(srv.URL+"/reviews", "application/json", strings.NewReader(submitBody("acme/payments", 42)))
	require.NoError(t, err)
	defer second.Body.Close()

	var secondOut SubmitReviewResponse
	require.NoError(t, json.NewDecoder(second.Body).Decode(&secondOut))
	assert.Equal(t, firstOut.TaskID, secondOut.SupersededID)
}

func TestSubmitReviewQueueFull(t *testing.T) {
	srv, _ := newTestServer(t, 1, nil)

	resp, err := http.Post(srv.URL+"/reviews", "application/json", strings.NewReader(submitBody("acme/payments", 1)))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/reviews", "application/json", strings.NewReader(submitBody("acme/payments", 2)))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	var out errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Contains(t, out.Error, "capacity")
}

func TestSubmitReviewRejectsBadRequests(t *testing.T) {
	srv, _ := newTestServer(t, 4, nil)

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: "{not json"},
		{name: "missing repository", body: `{"pr_number": 1, "diff": "x"}`},
		{name: "bad repository format", body: `{"repository": "acme", "pr_number": 1, "diff": "x"}`},
		{name: "zero pr number", body: `{"repository": "a/b", "pr_number": 0, "diff": "x"}`},
		{name: "empty diff", body: `{"repository": "a/b", "pr_number": 1, "diff": "  "}`},
		{name: "inverted label span", body: `{"repository": "a/b", "pr_number": 1, "diff": "x", "labels": [{"label": "auth", "file": "auth.py", "start": 9, "end": 3}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/reviews", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestSubmitReviewSkipTrigger(t *testing.T) {
	srv, pool := newTestServer(t, 4, nil)

	body, _ := json.Marshal(SubmitReviewRequest{
		Repository: "acme/payments",
		PRNumber:   42,
		Title:      "chore: deps [skip review]",
		Diff:       "diff --git a/go.mod b/go.mod\n",
	})
	resp, err := http.Post(srv.URL+"/reviews", "application/json", strings.NewReader(string(body)))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out SkippedResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.Skipped)
	assert.Equal(t, "PR title", out.Reason)
	assert.Equal(t, 0, pool.Stats().QueueDepth)
}

func TestStatusReportsQueueSnapshot(t *testing.T) {
	srv, _ := newTestServer(t, 4, nil)

	resp, err := http.Post(srv.URL+"/reviews", "application/json", strings.NewReader(submitBody("acme/payments", 7)))
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 1, out.Queue.QueueDepth)
	assert.Equal(t, 0, out.Queue.BusyWorkers)
	assert.Equal(t, 1, out.Queue.MaxWorkers)
	assert.NotEmpty(t, out.Time)
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, 4, nil)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "ok", out.Status)
}

type stubRunStore struct {
	runs   []store.RunRecord
	issues map[string][]store.IssueRecord
}

var _ store.Store = (*stubRunStore)(nil)

func (s *stubRunStore) SaveRun(ctx context.Context, run store.RunRecord) error { return nil }

func (s *stubRunStore) GetRun(ctx context.Context, taskID string) (store.RunRecord, error) {
	for _, run := range s.runs {
		if run.TaskID == taskID {
			return run, nil
		}
	}
	return store.RunRecord{}, fmt.Errorf("run not found: %s", taskID)
}

func (s *stubRunStore) ListRuns(ctx context.Context, limit int) ([]store.RunRecord, error) {
	return s.runs, nil
}

func (s *stubRunStore) SaveIssues(ctx context.Context, issues []store.IssueRecord) error {
	return nil
}

func (s *stubRunStore) GetIssuesByRun(ctx context.Context, taskID string) ([]store.IssueRecord, error) {
	return s.issues[taskID], nil
}

func (s *stubRunStore) SaveTrackResults(ctx context.Context, results []store.TrackResultRecord) error {
	return nil
}

func (s *stubRunStore) GetTrackResultsByRun(ctx context.Context, taskID string) ([]store.TrackResultRecord, error) {
	return nil, nil
}

func (s *stubRunStore) Close() error { return nil }

func TestGetRunReturnsIssues(t *testing.T) {
	started := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	runs := &stubRunStore{
		runs: []store.RunRecord{{
			TaskID:     "task-1",
			Repository: "acme/payments",
			PRNumber:   42,
			Status:     "completed",
			UnitCount:  3,
			IssueCount: 1,
			StartedAt:  started,
			FinishedAt: started.Add(12 * time.Second),
		}},
		issues: map[string][]store.IssueRecord{
			"task-1": {{
				IssueID:    "iss-1",
				File:       "auth.py",
				LineStart:  10,
				LineEnd:    25,
				Title:      "SQL injection in login query",
				Severity:   "critical",
				Track:      "security",
				Confidence: 0.9,
			}},
		},
	}
	srv, _ := newTestServer(t, 4, runs)

	resp, err := http.Get(srv.URL + "/runs/task-1")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out RunResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "acme/payments", out.Repository)
	assert.Equal(t, "completed", out.Status)
	assert.Equal(t, "2026-03-14T09:00:00Z", out.StartedAt)
	require.Len(t, out.Issues, 1)
	assert.Equal(t, "SQL injection in login query", out.Issues[0].Title)
	assert.Equal(t, 10, out.Issues[0].LineStart)
}

func TestGetRunNotFound(t *testing.T) {
	srv, _ := newTestServer(t, 4, &stubRunStore{})

	resp, err := http.Get(srv.URL + "/runs/missing")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRunEndpointsWithoutStore(t *testing.T) {
	srv, _ := newTestServer(t, 4, nil)

	for _, path := range []string{"/runs", "/runs/any"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

func TestRecoveryMiddlewareContainsPanic(t *testing.T) {
	panicky := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	srv := httptest.NewServer(WithMiddleware(panicky, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/anything")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}
