package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	adapter "github.com/codewatchers/reviewd/internal/adapter/store"
	"github.com/codewatchers/reviewd/internal/domain"
	"github.com/codewatchers/reviewd/internal/store"
	"github.com/codewatchers/reviewd/internal/workflow"
)

// recordingStore captures what the bridge writes.
type recordingStore struct {
	run     store.RunRecord
	issues  []store.IssueRecord
	results []store.TrackResultRecord
}

func (r *recordingStore) SaveRun(_ context.Context, run store.RunRecord) error {
	r.run = run
	return nil
}

func (r *recordingStore) GetRun(context.Context, string) (store.RunRecord, error) {
	return store.RunRecord{}, nil
}

func (r *recordingStore) ListRuns(context.Context, int) ([]store.RunRecord, error) {
	return nil, nil
}

func (r *recordingStore) SaveIssues(_ context.Context, issues []store.IssueRecord) error {
	r.issues = issues
	return nil
}

func (r *recordingStore) GetIssuesByRun(context.Context, string) ([]store.IssueRecord, error) {
	return nil, nil
}

func (r *recordingStore) SaveTrackResults(_ context.Context, results []store.TrackResultRecord) error {
	r.results = results
	return nil
}

func (r *recordingStore) GetTrackResultsByRun(context.Context, string) ([]store.TrackResultRecord, error) {
	return nil, nil
}

func (r *recordingStore) Close() error { return nil }

func TestBridgeSaveRunConvertsState(t *testing.T) {
	rec := &recordingStore{}
	bridge := adapter.NewBridge(rec)

	started := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	finished := started.Add(40 * time.Second)

	issue := domain.NewIssue(domain.IssueInput{
		File:          "src/auth.py",
		Range:         domain.LineRange{Start: 10, End: 25},
		Title:         "SQL injection risk",
		Description:   "Query built by string concatenation",
		Suggestion:    "Use a parameterized query",
		Severity:      domain.SeverityCritical,
		Track:         domain.TrackSecurity,
		Relevance:     0.9,
		SeverityScore: 0.95,
		Confidence:    0.85,
	})

	state := &workflow.State{
		Task: domain.ReviewTask{
			ID:         "task-1",
			Repository: "acme/payments",
			PRNumber:   42,
			HeadSHA:    "deadbeef",
		},
		Stage: workflow.StageCompleted,
		Units: []domain.AuditUnit{{ID: "u1"}, {ID: "u2"}},
		TrackResults: []domain.TrackResult{
			{Track: domain.TrackSecurity, Issues: []domain.Issue{issue}, Duration: time.Second},
			{Track: domain.TrackLogic, Err: "analysis timed out", Duration: 2 * time.Second},
		},
		Report: &domain.ReviewReport{
			TaskID:     "task-1",
			Issues:     []domain.Issue{issue},
			StartedAt:  started,
			FinishedAt: finished,
		},
	}

	require.NoError(t, bridge.SaveRun(context.Background(), state))

	assert.Equal(t, "task-1", rec.run.TaskID)
	assert.Equal(t, "acme/payments", rec.run.Repository)
	assert.Equal(t, 42, rec.run.PRNumber)
	assert.Equal(t, "Completed", rec.run.Status)
	assert.Equal(t, 2, rec.run.UnitCount)
	assert.Equal(t, 1, rec.run.IssueCount)
	assert.True(t, started.Equal(rec.run.StartedAt))
	assert.True(t, finished.Equal(rec.run.FinishedAt))

	require.Len(t, rec.issues, 1)
	assert.Equal(t, issue.ID, rec.issues[0].IssueID)
	assert.Equal(t, "task-1", rec.issues[0].TaskID)
	assert.Equal(t, 10, rec.issues[0].LineStart)
	assert.Equal(t, 25, rec.issues[0].LineEnd)
	assert.Equal(t, "critical", rec.issues[0].Severity)
	assert.Equal(t, "security", rec.issues[0].Track)

	require.Len(t, rec.results, 2)
	assert.True(t, rec.results[0].Succeeded)
	assert.Equal(t, 1, rec.results[0].IssueCount)
	assert.False(t, rec.results[1].Succeeded)
	assert.Equal(t, "analysis timed out", rec.results[1].Error)
}

func TestBridgeSaveRunFailedStateWithoutReport(t *testing.T) {
	rec := &recordingStore{}
	bridge := adapter.NewBridge(rec)

	started := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	state := &workflow.State{
		Task:          domain.ReviewTask{ID: "task-2", Repository: "acme/payments", PRNumber: 7},
		Stage:         workflow.StageFailed,
		FailureReason: "diff parsing failed",
		History: []workflow.StageRecord{
			{Stage: workflow.StageParsing, StartedAt: started, Duration: 5 * time.Millisecond, Err: "diff parsing failed"},
		},
	}

	require.NoError(t, bridge.SaveRun(context.Background(), state))

	assert.Equal(t, "Failed", rec.run.Status)
	assert.Equal(t, "diff parsing failed", rec.run.FailureReason)
	assert.Equal(t, 0, rec.run.IssueCount)
	assert.True(t, started.Equal(rec.run.StartedAt))
	assert.Nil(t, rec.issues)
}
