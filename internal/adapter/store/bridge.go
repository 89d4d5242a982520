package store

import (
	"context"
	"fmt"
	"time"

	"github.com/codewatchers/reviewd/internal/store"
	"github.com/codewatchers/reviewd/internal/workflow"
)

// Bridge adapts store.Store to the workflow.Archiver interface.
// This avoids circular dependencies between packages.
type Bridge struct {
	store store.Store
}

// NewBridge creates a new archive adapter.
func NewBridge(s store.Store) *Bridge {
	return &Bridge{store: s}
}

// SaveRun converts a finished pipeline state into archive records and
// persists them.
func (b *Bridge) SaveRun(ctx context.Context, state *workflow.State) error {
	run := store.RunRecord{
		TaskID:        state.Task.ID,
		Repository:    state.Task.Repository,
		PRNumber:      state.Task.PRNumber,
		HeadSHA:       state.Task.HeadSHA,
		Status:        string(state.Stage),
		FailureReason: state.FailureReason,
		UnitCount:     len(state.Units),
		StartedAt:     startedAt(state),
		FinishedAt:    finishedAt(state),
	}
	if state.Report != nil {
		run.IssueCount = len(state.Report.Issues)
	}

	if err := b.store.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("failed to archive run: %w", err)
	}

	if state.Report != nil {
		issues := make([]store.IssueRecord, len(state.Report.Issues))
		for i, issue := range state.Report.Issues {
			issues[i] = store.IssueRecord{
				IssueID:       issue.ID,
				TaskID:        state.Task.ID,
				File:          issue.File,
				LineStart:     issue.Range.Start,
				LineEnd:       issue.Range.End,
				Title:         issue.Title,
				Description:   issue.Description,
				Suggestion:    issue.Suggestion,
				Severity:      issue.Severity,
				Track:         string(issue.Track),
				Relevance:     issue.Relevance,
				SeverityScore: issue.SeverityScore,
				Confidence:    issue.Confidence,
			}
		}
		if err := b.store.SaveIssues(ctx, issues); err != nil {
			return fmt.Errorf("failed to archive issues: %w", err)
		}
	}

	results := make([]store.TrackResultRecord, len(state.TrackResults))
	for i, result := range state.TrackResults {
		results[i] = store.TrackResultRecord{
			TaskID:     state.Task.ID,
			Track:      string(result.Track),
			Succeeded:  result.Succeeded(),
			Error:      result.Err,
			IssueCount: len(result.Issues),
			Duration:   result.Duration,
		}
	}
	if err := b.store.SaveTrackResults(ctx, results); err != nil {
		return fmt.Errorf("failed to archive track results: %w", err)
	}

	return nil
}

// Close closes the underlying store.
func (b *Bridge) Close() error {
	return b.store.Close()
}

func startedAt(state *workflow.State) time.Time {
	if state.Report != nil {
		return state.Report.StartedAt
	}
	if len(state.History) > 0 {
		return state.History[0].StartedAt
	}
	return time.Now().UTC()
}

func finishedAt(state *workflow.State) time.Time {
	if state.Report != nil && !state.Report.FinishedAt.IsZero() {
		return state.Report.FinishedAt
	}
	if len(state.History) > 0 {
		last := state.History[len(state.History)-1]
		return last.StartedAt.Add(last.Duration)
	}
	return time.Now().UTC()
}
