package store

import (
	"context"
	"time"
)

// Store defines the persistence layer for the review run archive.
type Store interface {
	// Run management
	SaveRun(ctx context.Context, run RunRecord) error
	GetRun(ctx context.Context, taskID string) (RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)

	// Issue persistence
	SaveIssues(ctx context.Context, issues []IssueRecord) error
	GetIssuesByRun(ctx context.Context, taskID string) ([]IssueRecord, error)

	// Track outcome persistence
	SaveTrackResults(ctx context.Context, results []TrackResultRecord) error
	GetTrackResultsByRun(ctx context.Context, taskID string) ([]TrackResultRecord, error)

	// Utility
	Close() error
}

// RunRecord stores the outcome of a single pipeline run.
type RunRecord struct {
	TaskID        string
	Repository    string
	PRNumber      int
	HeadSHA       string
	Status        string
	FailureReason string
	UnitCount     int
	IssueCount    int
	StartedAt     time.Time
	FinishedAt    time.Time
}

// IssueRecord represents a published issue with all its metadata.
type IssueRecord struct {
	IssueID       string
	TaskID        string
	File          string
	LineStart     int
	LineEnd       int
	Title         string
	Description   string
	Suggestion    string
	Severity      string
	Track         string
	Relevance     float64
	SeverityScore float64
	Confidence    float64
}

// TrackResultRecord stores the outcome of one analysis track within a run.
type TrackResultRecord struct {
	TaskID     string
	Track      string
	Succeeded  bool
	Error      string
	IssueCount int
	Duration   time.Duration
}
