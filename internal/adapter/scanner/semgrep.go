// Package scanner provides evidence scanners for the review pipeline.
//
// The semgrep scanner shells out to a semgrep binary against the
// repository checkout; the pattern scanner works purely on the parsed
// diff and needs no filesystem access.
package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/codewatchers/reviewd/internal/domain"
)

// SemgrepScanner runs the semgrep CLI against the changed files of a
// repository checkout and converts its findings into evidence.
type SemgrepScanner struct {
	binary  string
	rules   string
	repoDir string
	timeout time.Duration
}

// SemgrepOptions configures a semgrep scanner.
type SemgrepOptions struct {
	// Binary is the semgrep executable. Defaults to "semgrep".
	Binary string

	// Rules is passed to --config. Defaults to "auto".
	Rules string

	// RepoDir is the checkout the scanner runs in.
	RepoDir string

	// Timeout bounds a single semgrep invocation.
	Timeout time.Duration
}

// NewSemgrepScanner creates a semgrep-backed scanner.
func NewSemgrepScanner(opts SemgrepOptions) *SemgrepScanner {
	binary := opts.Binary
	if binary == "" {
		binary = "semgrep"
	}
	rules := opts.Rules
	if rules == "" {
		rules = "auto"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &SemgrepScanner{
		binary:  binary,
		rules:   rules,
		repoDir: opts.RepoDir,
		timeout: timeout,
	}
}

// Name identifies the scanner in evidence and logs.
func (s *SemgrepScanner) Name() string {
	return "semgrep"
}

// Scan runs semgrep over the files touched by the diff. A missing
// binary or failed invocation is reported as a retryable scan
// availability error; the pipeline continues without this scanner's
// evidence.
func (s *SemgrepScanner) Scan(ctx context.Context, task domain.ReviewTask, d domain.Diff) ([]domain.Evidence, error) {
	paths := changedPaths(d)
	if len(paths) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	args := []string{"--json", "--quiet", "--config", s.rules}
	args = append(args, paths...)

	cmd := exec.CommandContext(ctx, s.binary, args...)
	cmd.Dir = s.repoDir

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// Semgrep exits non-zero for some finding configurations; trust
		// the output when it parses as a result document.
		if stdout.Len() == 0 || !json.Valid(stdout.Bytes()) {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			detail := strings.TrimSpace(stderr.String())
			if detail != "" {
				err = fmt.Errorf("%w: %s", err, detail)
			}
			return nil, domain.NewScanUnavailableError("semgrep run failed", err)
		}
	}

	evidence, err := parseSemgrepOutput(stdout.Bytes())
	if err != nil {
		return nil, domain.NewScanUnavailableError("semgrep output unreadable", err)
	}
	return evidence, nil
}

// semgrepOutput mirrors the subset of semgrep's JSON report we consume.
type semgrepOutput struct {
	Results []semgrepResult `json:"results"`
}

type semgrepResult struct {
	CheckID string          `json:"check_id"`
	Path    string          `json:"path"`
	Start   semgrepPosition `json:"start"`
	End     semgrepPosition `json:"end"`
	Extra   semgrepExtra    `json:"extra"`
}

type semgrepPosition struct {
	Line int `json:"line"`
}

type semgrepExtra struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

func parseSemgrepOutput(data []byte) ([]domain.Evidence, error) {
	var out semgrepOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode semgrep JSON: %w", err)
	}

	evidence := make([]domain.Evidence, 0, len(out.Results))
	for _, result := range out.Results {
		end := result.End.Line
		if end < result.Start.Line {
			end = result.Start.Line
		}
		evidence = append(evidence, domain.Evidence{
			File:     result.Path,
			Range:    domain.LineRange{Start: result.Start.Line, End: end},
			RuleID:   result.CheckID,
			Message:  result.Extra.Message,
			Severity: mapSemgrepSeverity(result.Extra.Severity),
			Source:   "semgrep",
		})
	}
	return evidence, nil
}

func mapSemgrepSeverity(severity string) string {
	switch strings.ToUpper(severity) {
	case "ERROR":
		return domain.SeverityHigh
	case "WARNING":
		return domain.SeverityMedium
	default:
		return domain.SeverityInfo
	}
}

// changedPaths lists the post-change paths of the diff, skipping
// deletions, which have nothing on disk to scan.
func changedPaths(d domain.Diff) []string {
	var paths []string
	for _, file := range d.Files {
		if file.Status == domain.FileStatusDeleted {
			continue
		}
		paths = append(paths, file.Path)
	}
	return paths
}
