package domain

import (
	"fmt"
	"time"
)

// TaskState tracks a review task through the intake queue.
type TaskState string

const (
	TaskQueued     TaskState = "queued"
	TaskRunning    TaskState = "running"
	TaskCompleted  TaskState = "completed"
	TaskFailed     TaskState = "failed"
	TaskSuperseded TaskState = "superseded"
)

// ReviewTask is one unit of intake work: review a single pull request at a
// specific head commit.
type ReviewTask struct {
	ID          string      `json:"id"`
	Repository  string      `json:"repository"`
	PRNumber    int         `json:"prNumber"`
	Title       string      `json:"title"`
	BaseSHA     string      `json:"baseSha"`
	HeadSHA     string      `json:"headSha"`
	DiffText    string      `json:"-"`
	Labels      []LabelSpan `json:"labels,omitempty"`
	SubmittedAt time.Time   `json:"submittedAt"`
}

// Key identifies the pull request a task targets. Two tasks with the same
// key are alternative reviews of the same PR, and a newer submission
// supersedes an older one that is still queued.
func (t ReviewTask) Key() string {
	return fmt.Sprintf("%s#%d", t.Repository, t.PRNumber)
}
