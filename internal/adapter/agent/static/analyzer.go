// Package static provides deterministic, heuristic analysis tracks.
//
// Each analyzer turns the evidence matched to an audit unit, plus the
// unit's own shape, into reviewable issues. The heuristics run without
// network access, so they serve both as the default analysis backend
// and as a fixture for exercising the pipeline end to end.
package static

import (
	"context"
	"fmt"
	"strings"

	"github.com/codewatchers/reviewd/internal/domain"
)

// Analyzer implements one analysis track with fixed heuristics.
type Analyzer struct {
	track domain.Track
}

// NewAnalyzer constructs the analyzer for a single track.
func NewAnalyzer(track domain.Track) *Analyzer {
	return &Analyzer{track: track}
}

// NewAnalyzers constructs one analyzer per analysis track.
func NewAnalyzers() []*Analyzer {
	tracks := domain.Tracks()
	out := make([]*Analyzer, len(tracks))
	for i, track := range tracks {
		out[i] = NewAnalyzer(track)
	}
	return out
}

// Track identifies which analysis pass this analyzer runs.
func (a *Analyzer) Track() domain.Track {
	return a.track
}

// Analyze inspects one audit unit and its matched evidence.
func (a *Analyzer) Analyze(ctx context.Context, unit domain.AuditUnit, evidence []domain.Evidence) ([]domain.Issue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch a.track {
	case domain.TrackSecurity:
		return a.analyzeSecurity(unit, evidence), nil
	case domain.TrackLogic:
		return a.analyzeLogic(unit, evidence), nil
	case domain.TrackMemory:
		return a.analyzeMemory(unit, evidence), nil
	case domain.TrackStructure:
		return a.analyzeStructure(unit), nil
	default:
		return nil, fmt.Errorf("unknown analysis track: %s", a.track)
	}
}

// securityRuleHints marks evidence rules the security track claims.
var securityRuleHints = []string{
	"sql", "inject", "secret", "credential", "shell", "eval",
	"deserialize", "pickle", "hash", "crypto", "auth",
}

func (a *Analyzer) analyzeSecurity(unit domain.AuditUnit, evidence []domain.Evidence) []domain.Issue {
	var issues []domain.Issue
	for _, ev := range evidence {
		if !matchesHints(ev, securityRuleHints) && domain.SeverityRank(ev.Severity) < domain.SeverityRank(domain.SeverityHigh) {
			continue
		}
		issues = append(issues, domain.NewIssue(domain.IssueInput{
			File:          ev.File,
			Range:         ev.Range,
			Title:         issueTitle(ev),
			Description:   ev.Message,
			Suggestion:    securitySuggestion(ev),
			Severity:      ev.Severity,
			Track:         a.track,
			Relevance:     0.9,
			SeverityScore: severityScore(ev.Severity),
			Confidence:    evidenceConfidence(ev),
			EvidenceIDs:   []string{ev.ID},
		}))
	}
	return issues
}

var logicRuleHints = []string{"except", "error", "null", "nil", "bounds", "off-by"}

func (a *Analyzer) analyzeLogic(unit domain.AuditUnit, evidence []domain.Evidence) []domain.Issue {
	var issues []domain.Issue
	for _, ev := range evidence {
		if !matchesHints(ev, logicRuleHints) {
			continue
		}
		issues = append(issues, domain.NewIssue(domain.IssueInput{
			File:          ev.File,
			Range:         ev.Range,
			Title:         issueTitle(ev),
			Description:   ev.Message,
			Severity:      ev.Severity,
			Track:         a.track,
			Relevance:     0.75,
			SeverityScore: severityScore(ev.Severity),
			Confidence:    evidenceConfidence(ev),
			EvidenceIDs:   []string{ev.ID},
		}))
	}

	// Dense branching without supporting evidence still warrants a look.
	if unit.Risk.Factors["control_flow"] >= 10 && len(issues) == 0 && len(unit.Ranges) > 0 {
		widest := widestRange(unit)
		issues = append(issues, domain.NewIssue(domain.IssueInput{
			File:          widest.File,
			Range:         widest.Range,
			Title:         "Dense branching logic",
			Description:   "This change concentrates many conditional paths in one place; boundary conditions are easy to miss.",
			Suggestion:    "Consider extracting the branches into named helpers and covering each path with a test.",
			Severity:      domain.SeverityMedium,
			Track:         a.track,
			Relevance:     0.7,
			SeverityScore: severityScore(domain.SeverityMedium),
			Confidence:    0.5,
		}))
	}
	return issues
}

var memoryRuleHints = []string{"leak", "alloc", "buffer", "overflow", "resource", "close", "free"}

func (a *Analyzer) analyzeMemory(unit domain.AuditUnit, evidence []domain.Evidence) []domain.Issue {
	var issues []domain.Issue
	for _, ev := range evidence {
		if !matchesHints(ev, memoryRuleHints) {
			continue
		}
		issues = append(issues, domain.NewIssue(domain.IssueInput{
			File:          ev.File,
			Range:         ev.Range,
			Title:         issueTitle(ev),
			Description:   ev.Message,
			Severity:      ev.Severity,
			Track:         a.track,
			Relevance:     0.8,
			SeverityScore: severityScore(ev.Severity),
			Confidence:    evidenceConfidence(ev),
			EvidenceIDs:   []string{ev.ID},
		}))
	}
	return issues
}

func (a *Analyzer) analyzeStructure(unit domain.AuditUnit) []domain.Issue {
	var issues []domain.Issue

	if unit.LinesChanged >= 200 && len(unit.Ranges) > 0 {
		widest := widestRange(unit)
		issues = append(issues, domain.NewIssue(domain.IssueInput{
			File:          widest.File,
			Range:         widest.Range,
			Title:         "Large change surface",
			Description:   fmt.Sprintf("This unit touches %d lines; changes of this size are hard to review as one piece.", unit.LinesChanged),
			Suggestion:    "Consider splitting the change into smaller, independently reviewable commits.",
			Severity:      domain.SeverityLow,
			Track:         a.track,
			Relevance:     0.6,
			SeverityScore: severityScore(domain.SeverityLow),
			Confidence:    0.6,
		}))
	}

	if len(unit.Ranges) >= 6 {
		first := unit.Ranges[0]
		issues = append(issues, domain.NewIssue(domain.IssueInput{
			File:          first.File,
			Range:         first.Range,
			Title:         "Change scattered across many locations",
			Description:   fmt.Sprintf("This unit spans %d separate regions; scattered edits often signal a missing abstraction.", len(unit.Ranges)),
			Severity:      domain.SeverityLow,
			Track:         a.track,
			Relevance:     0.55,
			SeverityScore: severityScore(domain.SeverityLow),
			Confidence:    0.55,
		}))
	}
	return issues
}

func matchesHints(ev domain.Evidence, hints []string) bool {
	haystack := strings.ToLower(ev.RuleID + " " + ev.Message)
	for _, hint := range hints {
		if strings.Contains(haystack, hint) {
			return true
		}
	}
	return false
}

// issueTitle derives a short title from the evidence message, falling
// back to the rule ID.
func issueTitle(ev domain.Evidence) string {
	msg := strings.TrimSpace(ev.Message)
	if msg == "" {
		return ev.RuleID
	}
	if idx := strings.IndexAny(msg, ".;\n"); idx > 0 {
		msg = msg[:idx]
	}
	if len(msg) > 80 {
		msg = msg[:77] + "..."
	}
	return msg
}

func securitySuggestion(ev domain.Evidence) string {
	rule := strings.ToLower(ev.RuleID)
	switch {
	case strings.Contains(rule, "sql"):
		return "Use a parameterized query instead of building SQL from user input."
	case strings.Contains(rule, "secret") || strings.Contains(rule, "credential"):
		return "Load the credential from the environment or a secret manager."
	case strings.Contains(rule, "shell"):
		return "Invoke the command directly with an argument list instead of a shell."
	case strings.Contains(rule, "hash"):
		return "Use a modern hash such as SHA-256 or bcrypt for passwords."
	default:
		return ""
	}
}

// severityScore maps a severity label onto the [0,1] scale the
// consensus filter thresholds against.
func severityScore(severity string) float64 {
	switch severity {
	case domain.SeverityCritical:
		return 1.0
	case domain.SeverityHigh:
		return 0.85
	case domain.SeverityMedium:
		return 0.6
	case domain.SeverityLow:
		return 0.45
	default:
		return 0.2
	}
}

// evidenceConfidence rates how much to trust one piece of evidence.
// External scanner findings carry more weight than built-in patterns.
func evidenceConfidence(ev domain.Evidence) float64 {
	if ev.Source == "semgrep" {
		return 0.85
	}
	return 0.7
}

func widestRange(unit domain.AuditUnit) domain.UnitRange {
	widest := unit.Ranges[0]
	for _, r := range unit.Ranges[1:] {
		if r.Range.Len() > widest.Range.Len() {
			widest = r
		}
	}
	return widest
}
