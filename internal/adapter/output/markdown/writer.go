// Package markdown renders review reports into Markdown artifacts for
// local runs.
package markdown

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/codewatchers/reviewd/internal/domain"
)

type clock func() string

// Writer renders review reports into Markdown files.
type Writer struct {
	now clock
}

// NewWriter constructs a Markdown writer with a timestamp supplier.
func NewWriter(now clock) *Writer {
	return &Writer{now: now}
}

// Write persists a Markdown artifact to disk and returns its path.
func (w *Writer) Write(report domain.ReviewReport, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	filename := fmt.Sprintf("%s_pr%d_%s.md",
		sanitise(report.Repository),
		report.PRNumber,
		w.now(),
	)
	path := filepath.Join(outputDir, filename)

	if err := os.WriteFile(path, []byte(buildContent(report)), 0o644); err != nil {
		return "", fmt.Errorf("write markdown: %w", err)
	}

	return path, nil
}

func buildContent(report domain.ReviewReport) string {
	var builder strings.Builder
	caser := cases.Title(language.English)

	builder.WriteString("# Review Report\n\n")
	builder.WriteString(fmt.Sprintf("- Repository: %s\n", report.Repository))
	builder.WriteString(fmt.Sprintf("- Pull request: #%d\n", report.PRNumber))
	if report.HeadSHA != "" {
		builder.WriteString(fmt.Sprintf("- Head: %s\n", report.HeadSHA))
	}
	builder.WriteString(fmt.Sprintf("- Audit units: %d\n\n", len(report.Units)))

	if len(report.Issues) == 0 {
		builder.WriteString("No issues found.\n")
	} else {
		builder.WriteString("## Issues\n\n")
		for _, issue := range report.Issues {
			builder.WriteString(fmt.Sprintf("### %s (%s)\n", issue.Title, caser.String(issue.Severity)))
			builder.WriteString(fmt.Sprintf("- File: %s:%d-%d\n", issue.File, issue.Range.Start, issue.Range.End))
			builder.WriteString(fmt.Sprintf("- Track: %s\n", issue.Track))
			builder.WriteString(fmt.Sprintf("- Confidence: %.2f\n", issue.Confidence))
			if issue.Description != "" {
				builder.WriteString(fmt.Sprintf("\n%s\n", issue.Description))
			}
			if issue.Suggestion != "" {
				builder.WriteString(fmt.Sprintf("\nSuggestion: %s\n", issue.Suggestion))
			}
			builder.WriteString("\n")
		}
	}

	var failed []domain.TrackResult
	for _, tr := range report.TrackResults {
		if !tr.Succeeded() {
			failed = append(failed, tr)
		}
	}
	if len(failed) > 0 {
		builder.WriteString("## Incomplete Analysis\n\n")
		for _, tr := range failed {
			builder.WriteString(fmt.Sprintf("- %s: %s\n", tr.Track, tr.Err))
		}
	}

	return builder.String()
}

func sanitise(value string) string {
	if value == "" {
		return "unknown"
	}
	value = strings.ToLower(value)
	value = strings.ReplaceAll(value, "/", "-")
	value = strings.ReplaceAll(value, " ", "-")
	return value
}
