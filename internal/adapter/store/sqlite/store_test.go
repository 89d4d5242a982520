package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewatchers/reviewd/internal/adapter/store/sqlite"
	"github.com/codewatchers/reviewd/internal/store"
)

func setupTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	// Use in-memory database for testing
	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err, "failed to create test store")

	t.Cleanup(func() {
		s.Close()
	})

	return s
}

func testRun(taskID string, startedAt time.Time) store.RunRecord {
	return store.RunRecord{
		TaskID:     taskID,
		Repository: "acme/payments",
		PRNumber:   42,
		HeadSHA:    "deadbeef",
		Status:     "Completed",
		UnitCount:  3,
		IssueCount: 2,
		StartedAt:  startedAt,
		FinishedAt: startedAt.Add(45 * time.Second),
	}
}

func TestStore_SaveRun_GetRun(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	// Truncate to avoid precision issues
	run := testRun("task-123", time.Now().Truncate(time.Second))

	err := s.SaveRun(ctx, run)
	require.NoError(t, err)

	retrieved, err := s.GetRun(ctx, run.TaskID)
	require.NoError(t, err)

	assert.Equal(t, run.TaskID, retrieved.TaskID)
	assert.Equal(t, run.Repository, retrieved.Repository)
	assert.Equal(t, run.PRNumber, retrieved.PRNumber)
	assert.Equal(t, run.HeadSHA, retrieved.HeadSHA)
	assert.Equal(t, run.Status, retrieved.Status)
	assert.Equal(t, run.UnitCount, retrieved.UnitCount)
	assert.Equal(t, run.IssueCount, retrieved.IssueCount)
	assert.True(t, run.StartedAt.Equal(retrieved.StartedAt))
	assert.True(t, run.FinishedAt.Equal(retrieved.FinishedAt))
}

func TestStore_SaveRun_ReplacesEarlierRun(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().Truncate(time.Second)

	first := testRun("task-1", now)
	require.NoError(t, s.SaveRun(ctx, first))

	// Same task reviewed again after a new push.
	second := first
	second.HeadSHA = "cafebabe"
	second.IssueCount = 5
	second.StartedAt = now.Add(time.Hour)
	second.FinishedAt = now.Add(time.Hour + 30*time.Second)
	require.NoError(t, s.SaveRun(ctx, second))

	retrieved, err := s.GetRun(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, "cafebabe", retrieved.HeadSHA)
	assert.Equal(t, 5, retrieved.IssueCount)

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestStore_GetRun_NotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetRun(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
}

func TestStore_ListRuns_OrderAndLimit(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().Truncate(time.Second)
	require.NoError(t, s.SaveRun(ctx, testRun("task-old", now.Add(-2*time.Hour))))
	require.NoError(t, s.SaveRun(ctx, testRun("task-mid", now.Add(-1*time.Hour))))
	require.NoError(t, s.SaveRun(ctx, testRun("task-new", now)))

	runs, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)

	require.Len(t, runs, 2)
	assert.Equal(t, "task-new", runs[0].TaskID)
	assert.Equal(t, "task-mid", runs[1].TaskID)
}

func TestStore_SaveIssues_GetIssuesByRun(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	run := testRun("task-1", time.Now().Truncate(time.Second))
	require.NoError(t, s.SaveRun(ctx, run))

	issues := []store.IssueRecord{
		{
			IssueID:       "issue-b",
			TaskID:        "task-1",
			File:          "src/utils.py",
			LineStart:     1,
			LineEnd:       5,
			Title:         "Unbounded recursion",
			Description:   "Helper recurses without a depth limit",
			Severity:      "high",
			Track:         "logic",
			Relevance:     0.8,
			SeverityScore: 0.7,
			Confidence:    0.9,
		},
		{
			IssueID:       "issue-a",
			TaskID:        "task-1",
			File:          "src/auth.py",
			LineStart:     10,
			LineEnd:       25,
			Title:         "SQL injection risk",
			Suggestion:    "Use a parameterized query",
			Severity:      "critical",
			Track:         "security",
			Relevance:     0.9,
			SeverityScore: 0.95,
			Confidence:    0.85,
		},
	}

	require.NoError(t, s.SaveIssues(ctx, issues))

	retrieved, err := s.GetIssuesByRun(ctx, "task-1")
	require.NoError(t, err)

	// Ordered by file then start line.
	require.Len(t, retrieved, 2)
	assert.Equal(t, "issue-a", retrieved[0].IssueID)
	assert.Equal(t, "src/auth.py", retrieved[0].File)
	assert.Equal(t, 10, retrieved[0].LineStart)
	assert.Equal(t, 25, retrieved[0].LineEnd)
	assert.Equal(t, "critical", retrieved[0].Severity)
	assert.Equal(t, "security", retrieved[0].Track)
	assert.Equal(t, 0.85, retrieved[0].Confidence)
	assert.Equal(t, "issue-b", retrieved[1].IssueID)
}

func TestStore_SaveIssues_ReplacesEarlierIssues(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	run := testRun("task-1", time.Now().Truncate(time.Second))
	require.NoError(t, s.SaveRun(ctx, run))

	first := []store.IssueRecord{
		{IssueID: "issue-1", TaskID: "task-1", File: "a.go", LineStart: 1, LineEnd: 2, Title: "stale", Severity: "low", Track: "logic"},
	}
	require.NoError(t, s.SaveIssues(ctx, first))

	second := []store.IssueRecord{
		{IssueID: "issue-2", TaskID: "task-1", File: "b.go", LineStart: 3, LineEnd: 4, Title: "fresh", Severity: "medium", Track: "logic"},
	}
	require.NoError(t, s.SaveIssues(ctx, second))

	retrieved, err := s.GetIssuesByRun(ctx, "task-1")
	require.NoError(t, err)
	require.Len(t, retrieved, 1)
	assert.Equal(t, "issue-2", retrieved[0].IssueID)
}

func TestStore_SaveIssues_Empty(t *testing.T) {
	s := setupTestStore(t)

	assert.NoError(t, s.SaveIssues(context.Background(), nil))
}

func TestStore_SaveTrackResults_GetTrackResultsByRun(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	run := testRun("task-1", time.Now().Truncate(time.Second))
	require.NoError(t, s.SaveRun(ctx, run))

	results := []store.TrackResultRecord{
		{TaskID: "task-1", Track: "security", Succeeded: true, IssueCount: 2, Duration: 1200 * time.Millisecond},
		{TaskID: "task-1", Track: "logic", Succeeded: false, Error: "analysis timed out", Duration: 5 * time.Minute},
	}
	require.NoError(t, s.SaveTrackResults(ctx, results))

	retrieved, err := s.GetTrackResultsByRun(ctx, "task-1")
	require.NoError(t, err)

	// Ordered by track name.
	require.Len(t, retrieved, 2)
	assert.Equal(t, "logic", retrieved[0].Track)
	assert.False(t, retrieved[0].Succeeded)
	assert.Equal(t, "analysis timed out", retrieved[0].Error)
	assert.Equal(t, 5*time.Minute, retrieved[0].Duration)
	assert.Equal(t, "security", retrieved[1].Track)
	assert.True(t, retrieved[1].Succeeded)
	assert.Equal(t, 2, retrieved[1].IssueCount)
	assert.Equal(t, 1200*time.Millisecond, retrieved[1].Duration)
}

func TestStore_SaveRunUpsertKeepsIssues(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	run := testRun("task-1", time.Now().Truncate(time.Second))
	require.NoError(t, s.SaveRun(ctx, run))
	require.NoError(t, s.SaveIssues(ctx, []store.IssueRecord{
		{IssueID: "issue-1", TaskID: "task-1", File: "a.go", LineStart: 1, LineEnd: 2, Title: "x", Severity: "low", Track: "logic"},
	}))

	// Saving a run for the same task again keeps issues intact; issues
	// only disappear with their run.
	require.NoError(t, s.SaveRun(ctx, run))

	retrieved, err := s.GetIssuesByRun(ctx, "task-1")
	require.NoError(t, err)
	assert.Len(t, retrieved, 1)
}
