package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/codewatchers/reviewd/internal/store"
)

// Store implements the store.Store interface using SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates a new SQLite store at the given path.
// Use ":memory:" for in-memory database (useful for testing).
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db}

	if err := s.createSchema(); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return s, nil
}

// createSchema creates all tables and indexes if they don't exist.
func (s *Store) createSchema() error {
	schema := `
	-- Stores the outcome of each pipeline run
	CREATE TABLE IF NOT EXISTS runs (
		task_id TEXT PRIMARY KEY,
		repository TEXT NOT NULL,
		pr_number INTEGER NOT NULL,
		head_sha TEXT NOT NULL,
		status TEXT NOT NULL,
		failure_reason TEXT,
		unit_count INTEGER NOT NULL DEFAULT 0,
		issue_count INTEGER NOT NULL DEFAULT 0,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL
	);

	-- Issues kept by the consensus filter for each run
	CREATE TABLE IF NOT EXISTS issues (
		issue_id TEXT NOT NULL,
		task_id TEXT NOT NULL,
		file TEXT NOT NULL,
		line_start INTEGER NOT NULL,
		line_end INTEGER NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		suggestion TEXT,
		severity TEXT NOT NULL,
		track TEXT NOT NULL,
		relevance REAL NOT NULL DEFAULT 0.0,
		severity_score REAL NOT NULL DEFAULT 0.0,
		confidence REAL NOT NULL DEFAULT 0.0,
		PRIMARY KEY (issue_id, task_id),
		FOREIGN KEY (task_id) REFERENCES runs(task_id) ON DELETE CASCADE
	);

	-- Per-track outcomes for each run
	CREATE TABLE IF NOT EXISTS track_results (
		task_id TEXT NOT NULL,
		track TEXT NOT NULL,
		succeeded INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		issue_count INTEGER NOT NULL DEFAULT 0,
		duration_ns INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (task_id, track),
		FOREIGN KEY (task_id) REFERENCES runs(task_id) ON DELETE CASCADE
	);

	-- Indexes for performance
	CREATE INDEX IF NOT EXISTS idx_issues_task ON issues(task_id);
	CREATE INDEX IF NOT EXISTS idx_issues_file ON issues(file, line_start);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_runs_repository ON runs(repository, pr_number);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveRun upserts the outcome of a pipeline run. Re-running the same
// task (a new push to the same pull request) replaces the old record.
func (s *Store) SaveRun(ctx context.Context, run store.RunRecord) error {
	query := `
		INSERT INTO runs (task_id, repository, pr_number, head_sha, status, failure_reason, unit_count, issue_count, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			head_sha = excluded.head_sha,
			status = excluded.status,
			failure_reason = excluded.failure_reason,
			unit_count = excluded.unit_count,
			issue_count = excluded.issue_count,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at
	`

	_, err := s.db.ExecContext(ctx, query,
		run.TaskID,
		run.Repository,
		run.PRNumber,
		run.HeadSHA,
		run.Status,
		run.FailureReason,
		run.UnitCount,
		run.IssueCount,
		run.StartedAt.Unix(),
		run.FinishedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	return nil
}

// GetRun retrieves a run by task ID.
func (s *Store) GetRun(ctx context.Context, taskID string) (store.RunRecord, error) {
	query := `
		SELECT task_id, repository, pr_number, head_sha, status, failure_reason, unit_count, issue_count, started_at, finished_at
		FROM runs
		WHERE task_id = ?
	`

	run, err := scanRun(s.db.QueryRowContext(ctx, query, taskID))
	if err != nil {
		if err == sql.ErrNoRows {
			return store.RunRecord{}, fmt.Errorf("run not found: %s", taskID)
		}
		return store.RunRecord{}, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// ListRuns retrieves the most recent runs, limited by the given count.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]store.RunRecord, error) {
	query := `
		SELECT task_id, repository, pr_number, head_sha, status, failure_reason, unit_count, issue_count, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []store.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// SaveIssues stores a run's issues in a single transaction, replacing
// any issues recorded by an earlier run of the same task.
func (s *Store) SaveIssues(ctx context.Context, issues []store.IssueRecord) error {
	if len(issues) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM issues WHERE task_id = ?`, issues[0].TaskID); err != nil {
		return fmt.Errorf("failed to clear previous issues: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO issues (issue_id, task_id, file, line_start, line_end, title, description, suggestion, severity, track, relevance, severity_score, confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, issue := range issues {
		if _, err := stmt.ExecContext(ctx,
			issue.IssueID,
			issue.TaskID,
			issue.File,
			issue.LineStart,
			issue.LineEnd,
			issue.Title,
			issue.Description,
			issue.Suggestion,
			issue.Severity,
			issue.Track,
			issue.Relevance,
			issue.SeverityScore,
			issue.Confidence,
		); err != nil {
			return fmt.Errorf("failed to insert issue: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetIssuesByRun retrieves all issues recorded for a given run.
func (s *Store) GetIssuesByRun(ctx context.Context, taskID string) ([]store.IssueRecord, error) {
	query := `
		SELECT issue_id, task_id, file, line_start, line_end, title, description, suggestion, severity, track, relevance, severity_score, confidence
		FROM issues
		WHERE task_id = ?
		ORDER BY file ASC, line_start ASC
	`

	rows, err := s.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get issues by run: %w", err)
	}
	defer rows.Close()

	var issues []store.IssueRecord
	for rows.Next() {
		var issue store.IssueRecord

		if err := rows.Scan(
			&issue.IssueID,
			&issue.TaskID,
			&issue.File,
			&issue.LineStart,
			&issue.LineEnd,
			&issue.Title,
			&issue.Description,
			&issue.Suggestion,
			&issue.Severity,
			&issue.Track,
			&issue.Relevance,
			&issue.SeverityScore,
			&issue.Confidence,
		); err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}

		issues = append(issues, issue)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating issues: %w", err)
	}

	return issues, nil
}

// SaveTrackResults stores per-track outcomes in a single transaction,
// replacing earlier outcomes for the same task.
func (s *Store) SaveTrackResults(ctx context.Context, results []store.TrackResultRecord) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM track_results WHERE task_id = ?`, results[0].TaskID); err != nil {
		return fmt.Errorf("failed to clear previous track results: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO track_results (task_id, track, succeeded, error, issue_count, duration_ns)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, result := range results {
		succeeded := 0
		if result.Succeeded {
			succeeded = 1
		}

		if _, err := stmt.ExecContext(ctx,
			result.TaskID,
			result.Track,
			succeeded,
			result.Error,
			result.IssueCount,
			int64(result.Duration),
		); err != nil {
			return fmt.Errorf("failed to insert track result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetTrackResultsByRun retrieves all track outcomes for a given run.
func (s *Store) GetTrackResultsByRun(ctx context.Context, taskID string) ([]store.TrackResultRecord, error) {
	query := `
		SELECT task_id, track, succeeded, error, issue_count, duration_ns
		FROM track_results
		WHERE task_id = ?
		ORDER BY track ASC
	`

	rows, err := s.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get track results by run: %w", err)
	}
	defer rows.Close()

	var results []store.TrackResultRecord
	for rows.Next() {
		var result store.TrackResultRecord
		var succeeded int
		var durationNS int64

		if err := rows.Scan(
			&result.TaskID,
			&result.Track,
			&succeeded,
			&result.Error,
			&result.IssueCount,
			&durationNS,
		); err != nil {
			return nil, fmt.Errorf("failed to scan track result: %w", err)
		}

		result.Succeeded = succeeded == 1
		result.Duration = time.Duration(durationNS)
		results = append(results, result)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating track results: %w", err)
	}

	return results, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// scanner abstracts sql.Row and sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (store.RunRecord, error) {
	var run store.RunRecord
	var startedAt, finishedAt int64

	if err := row.Scan(
		&run.TaskID,
		&run.Repository,
		&run.PRNumber,
		&run.HeadSHA,
		&run.Status,
		&run.FailureReason,
		&run.UnitCount,
		&run.IssueCount,
		&startedAt,
		&finishedAt,
	); err != nil {
		return store.RunRecord{}, err
	}

	run.StartedAt = time.Unix(startedAt, 0)
	run.FinishedAt = time.Unix(finishedAt, 0)
	return run, nil
}
