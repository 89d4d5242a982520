package github

import (
	"fmt"
	"sort"
	"strings"

	"github.com/codewatchers/reviewd/internal/domain"
)

var severityOrder = []string{
	domain.SeverityCritical,
	domain.SeverityHigh,
	domain.SeverityMedium,
	domain.SeverityLow,
	domain.SeverityInfo,
}

// renderSummary builds the markdown body of the posted review.
func renderSummary(report domain.ReviewReport) string {
	var sb strings.Builder

	sb.WriteString("## Automated Review\n\n")

	if len(report.Issues) == 0 {
		sb.WriteString("No issues found in the changed code.\n")
	} else {
		bySeverity := report.IssuesBySeverity()
		var counts []string
		for _, severity := range severityOrder {
			if n := len(bySeverity[severity]); n > 0 {
				counts = append(counts, fmt.Sprintf("%d %s", n, severity))
			}
		}
		sb.WriteString(fmt.Sprintf("Found %d issue(s): %s.\n", len(report.Issues), strings.Join(counts, ", ")))

		sb.WriteString("\n| Severity | File | Lines | Issue |\n")
		sb.WriteString("|---|---|---|---|\n")
		for _, issue := range report.Issues {
			sb.WriteString(fmt.Sprintf("| %s | `%s` | %d-%d | %s |\n",
				issue.Severity, escapeMarkdownInlineCode(issue.File),
				issue.Range.Start, issue.Range.End, issue.Title))
		}
	}

	if appendix := trackAppendix(report); appendix != "" {
		sb.WriteString(appendix)
	}

	return sb.String()
}

// trackAppendix reports tracks that failed, so a thin review is not
// mistaken for a clean bill of health.
func trackAppendix(report domain.ReviewReport) string {
	var failed []domain.TrackResult
	for _, result := range report.TrackResults {
		if !result.Succeeded() {
			failed = append(failed, result)
		}
	}
	if len(failed) == 0 {
		return ""
	}

	sort.Slice(failed, func(i, j int) bool { return failed[i].Track < failed[j].Track })

	var sb strings.Builder
	sb.WriteString("\n---\n\n### Incomplete Analysis\n\n")
	sb.WriteString("The following analysis tracks did not finish; their findings are missing from this review:\n\n")
	for _, result := range failed {
		sb.WriteString(fmt.Sprintf("- **%s**: %s\n", result.Track, result.Err))
	}
	return sb.String()
}

// renderComment builds the body of one inline comment.
func renderComment(issue domain.Issue) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("**[%s] %s**\n\n", issue.Severity, issue.Title))
	if issue.Description != "" {
		sb.WriteString(issue.Description)
		sb.WriteString("\n")
	}
	if issue.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("\n**Suggestion:** %s\n", issue.Suggestion))
	}
	sb.WriteString(fmt.Sprintf("\n<sub>track: %s · confidence: %.2f</sub>", issue.Track, issue.Confidence))

	return sb.String()
}

// escapeMarkdownInlineCode escapes backticks so file paths render
// safely inside inline code spans.
func escapeMarkdownInlineCode(s string) string {
	return strings.ReplaceAll(s, "`", "\\`")
}
