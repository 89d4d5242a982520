// Package httpapi is the HTTP driving adapter for submitting review
// tasks and inspecting pipeline state.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/codewatchers/reviewd/internal/observability"
	"github.com/codewatchers/reviewd/internal/queue"
	"github.com/codewatchers/reviewd/internal/skip"
	"github.com/codewatchers/reviewd/internal/store"
)

// maxDiffBytes bounds the accepted request body; anything larger is not
// a reviewable pull request diff.
const maxDiffBytes = 8 << 20

// Handler serves the REST API in front of the intake queue.
type Handler struct {
	pool   *queue.Pool
	runs   store.Store
	logger observability.Logger
}

// NewHandler creates a Handler. The run store is optional; without it
// the run endpoints report 404.
func NewHandler(pool *queue.Pool, runs store.Store, logger observability.Logger) *Handler {
	return &Handler{
		pool:   pool,
		runs:   runs,
		logger: logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered.
func NewServeMux(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /reviews", h.SubmitReview)
	mux.HandleFunc("GET /status", h.Status)
	mux.HandleFunc("GET /runs", h.ListRuns)
	mux.HandleFunc("GET /runs/{id}", h.GetRun)
	mux.HandleFunc("GET /healthz", h.Health)

	return mux
}

// SubmitReview admits a review task into the queue. Accepted tasks get
// 202 with the generated task ID; a saturated queue answers 429.
func (h *Handler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	var req SubmitReviewRequest
	body := io.LimitReader(r.Body, maxDiffBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if result := skip.Check(skip.CheckRequest{PRTitle: req.Title, PRDescription: req.Description}); result.ShouldSkip {
		writeJSON(w, http.StatusOK, SkippedResponse{Skipped: true, Reason: result.Reason})
		return
	}

	task := req.toTask(ulid.Make().String())

	result, err := h.pool.Submit(task)
	if err != nil {
		if errors.Is(err, queue.ErrQueueFull) {
			writeError(w, http.StatusTooManyRequests, "review queue at capacity, retry later")
			return
		}
		h.logError(r, "task submission failed", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusAccepted, SubmitReviewResponse{
		TaskID:       result.TaskID,
		SupersededID: result.SupersededID,
	})
}

// Status reports a point-in-time snapshot of the queue and workers.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Queue: h.pool.Stats(),
		Time:  time.Now().UTC().Format(time.RFC3339),
	})
}

// ListRuns returns the most recently archived runs.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, http.StatusNotFound, "run archive disabled")
		return
	}

	runs, err := h.runs.ListRuns(r.Context(), 50)
	if err != nil {
		h.logError(r, "failed to list runs", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]RunResponse, 0, len(runs))
	for _, run := range runs {
		resp = append(resp, toRunResponse(run))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetRun returns one archived run with its issues.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, http.StatusNotFound, "run archive disabled")
		return
	}

	taskID := r.PathValue("id")
	run, err := h.runs.GetRun(r.Context(), taskID)
	if err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}

	issues, err := h.runs.GetIssuesByRun(r.Context(), taskID)
	if err != nil {
		h.logError(r, "failed to load run issues", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := toRunResponse(run)
	resp.Issues = make([]IssueResponse, 0, len(issues))
	for _, issue := range issues {
		resp.Issues = append(resp.Issues, toIssueResponse(issue))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Health is a liveness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) logError(r *http.Request, message string, err error) {
	if h.logger != nil {
		h.logger.LogError(r.Context(), message, map[string]interface{}{
			"path": r.URL.Path, "error": err.Error(),
		})
	}
}
