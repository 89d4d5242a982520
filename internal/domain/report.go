package domain

import "time"

// TrackResult records the outcome of one analysis track.
type TrackResult struct {
	Track    Track         `json:"track"`
	Issues   []Issue       `json:"issues"`
	Err      string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Succeeded reports whether the track produced a usable result.
func (r TrackResult) Succeeded() bool {
	return r.Err == ""
}

// ReviewReport is the aggregated outcome of a completed review run.
type ReviewReport struct {
	TaskID            string        `json:"taskId"`
	Repository        string        `json:"repository"`
	PRNumber          int           `json:"prNumber"`
	HeadSHA           string        `json:"headSha"`
	Units             []AuditUnit   `json:"units"`
	Issues            []Issue       `json:"issues"`
	UnmatchedEvidence []Evidence    `json:"unmatchedEvidence,omitempty"`
	TrackResults      []TrackResult `json:"trackResults"`
	StartedAt         time.Time     `json:"startedAt"`
	FinishedAt        time.Time     `json:"finishedAt"`
}

// IssuesBySeverity groups the report's issues keyed by severity label.
func (r ReviewReport) IssuesBySeverity() map[string][]Issue {
	out := make(map[string][]Issue)
	for _, issue := range r.Issues {
		out[issue.Severity] = append(out[issue.Severity], issue)
	}
	return out
}
