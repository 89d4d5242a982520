package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/codewatchers/reviewd/internal/domain"
	"github.com/codewatchers/reviewd/internal/queue"
	"github.com/codewatchers/reviewd/internal/store"
)

// SubmitReviewRequest is the body of POST /reviews.
type SubmitReviewRequest struct {
	Repository  string             `json:"repository"`
	PRNumber    int                `json:"pr_number"`
	Title       string             `json:"title"`
	Description string             `json:"description,omitempty"`
	BaseSHA     string             `json:"base_sha"`
	HeadSHA     string             `json:"head_sha"`
	Diff        string             `json:"diff"`
	Labels      []LabelSpanRequest `json:"labels,omitempty"`
}

// LabelSpanRequest marks a labeled line span in the submitted diff.
type LabelSpanRequest struct {
	Label string `json:"label"`
	File  string `json:"file"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

func (r SubmitReviewRequest) validate() error {
	if strings.Count(r.Repository, "/") != 1 || strings.HasPrefix(r.Repository, "/") || strings.HasSuffix(r.Repository, "/") {
		return fmt.Errorf("repository must be owner/name, got %q", r.Repository)
	}
	if r.PRNumber <= 0 {
		return fmt.Errorf("pr_number must be positive, got %d", r.PRNumber)
	}
	if strings.TrimSpace(r.Diff) == "" {
		return fmt.Errorf("diff is required")
	}
	for i, l := range r.Labels {
		if l.Label == "" || l.File == "" {
			return fmt.Errorf("labels[%d]: label and file are required", i)
		}
		if l.Start <= 0 || l.End < l.Start {
			return fmt.Errorf("labels[%d]: invalid line span %d-%d", i, l.Start, l.End)
		}
	}
	return nil
}

func (r SubmitReviewRequest) toTask(taskID string) domain.ReviewTask {
	task := domain.ReviewTask{
		ID:          taskID,
		Repository:  r.Repository,
		PRNumber:    r.PRNumber,
		Title:       r.Title,
		BaseSHA:     r.BaseSHA,
		HeadSHA:     r.HeadSHA,
		DiffText:    r.Diff,
		SubmittedAt: time.Now().UTC(),
	}
	for _, l := range r.Labels {
		task.Labels = append(task.Labels, domain.LabelSpan{
			Label: l.Label,
			File:  l.File,
			Range: domain.LineRange{Start: l.Start, End: l.End},
		})
	}
	return task
}

// SkippedResponse acknowledges a submission that opted out of review.
type SkippedResponse struct {
	Skipped bool   `json:"skipped"`
	Reason  string `json:"reason"`
}

// SubmitReviewResponse acknowledges an admitted task.
type SubmitReviewResponse struct {
	TaskID       string `json:"task_id"`
	SupersededID string `json:"superseded_id,omitempty"`
}

// StatusResponse reports queue health.
type StatusResponse struct {
	Queue queue.Stats `json:"queue"`
	Time  string      `json:"time"`
}

// HealthResponse is the liveness probe body.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// RunResponse is an archived pipeline run.
type RunResponse struct {
	TaskID        string          `json:"task_id"`
	Repository    string          `json:"repository"`
	PRNumber      int             `json:"pr_number"`
	HeadSHA       string          `json:"head_sha,omitempty"`
	Status        string          `json:"status"`
	FailureReason string          `json:"failure_reason,omitempty"`
	UnitCount     int             `json:"unit_count"`
	IssueCount    int             `json:"issue_count"`
	StartedAt     string          `json:"started_at"`
	FinishedAt    string          `json:"finished_at"`
	Issues        []IssueResponse `json:"issues,omitempty"`
}

// IssueResponse is one retained review issue.
type IssueResponse struct {
	IssueID    string  `json:"issue_id"`
	File       string  `json:"file"`
	LineStart  int     `json:"line_start"`
	LineEnd    int     `json:"line_end"`
	Title      string  `json:"title"`
	Severity   string  `json:"severity"`
	Track      string  `json:"track"`
	Confidence float64 `json:"confidence"`
}

func toRunResponse(run store.RunRecord) RunResponse {
	return RunResponse{
		TaskID:        run.TaskID,
		Repository:    run.Repository,
		PRNumber:      run.PRNumber,
		HeadSHA:       run.HeadSHA,
		Status:        run.Status,
		FailureReason: run.FailureReason,
		UnitCount:     run.UnitCount,
		IssueCount:    run.IssueCount,
		StartedAt:     run.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt:    run.FinishedAt.UTC().Format(time.RFC3339),
	}
}

func toIssueResponse(issue store.IssueRecord) IssueResponse {
	return IssueResponse{
		IssueID:    issue.IssueID,
		File:       issue.File,
		LineStart:  issue.LineStart,
		LineEnd:    issue.LineEnd,
		Title:      issue.Title,
		Severity:   issue.Severity,
		Track:      issue.Track,
		Confidence: issue.Confidence,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
