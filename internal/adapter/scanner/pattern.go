package scanner

import (
	"context"
	"regexp"

	"github.com/codewatchers/reviewd/internal/domain"
)

// patternRule flags a suspicious construct on an added line.
type patternRule struct {
	id       string
	message  string
	severity string
	pattern  *regexp.Regexp
}

var defaultRules = []patternRule{
	{
		id:       "builtin.sql-string-concat",
		message:  "SQL statement built with string concatenation or formatting",
		severity: domain.SeverityHigh,
		pattern:  regexp.MustCompile(`(?i)(SELECT|INSERT|UPDATE|DELETE)\b[^"']*["'].*["']\s*(\+|%|\|\|)|execute\(\s*f["']`),
	},
	{
		id:       "builtin.eval-call",
		message:  "Dynamic code execution via eval/exec",
		severity: domain.SeverityHigh,
		pattern:  regexp.MustCompile(`\b(eval|exec)\s*\(`),
	},
	{
		id:       "builtin.shell-true",
		message:  "Subprocess invoked with shell=True",
		severity: domain.SeverityHigh,
		pattern:  regexp.MustCompile(`shell\s*=\s*True`),
	},
	{
		id:       "builtin.hardcoded-secret",
		message:  "Possible hardcoded credential",
		severity: domain.SeverityMedium,
		pattern:  regexp.MustCompile(`(?i)(password|passwd|secret|api_?key|token)\s*[:=]\s*["'][^"']{4,}["']`),
	},
	{
		id:       "builtin.weak-hash",
		message:  "Weak hash algorithm",
		severity: domain.SeverityMedium,
		pattern:  regexp.MustCompile(`(?i)\b(md5|sha1)\s*\(`),
	},
	{
		id:       "builtin.unsafe-deserialize",
		message:  "Deserialization of untrusted data",
		severity: domain.SeverityHigh,
		pattern:  regexp.MustCompile(`\b(pickle\.loads?|yaml\.load|Marshal\.load)\s*\(`),
	},
	{
		id:       "builtin.bare-except",
		message:  "Exception swallowed without handling",
		severity: domain.SeverityLow,
		pattern:  regexp.MustCompile(`except\s*:\s*$|catch\s*\(\s*\)\s*\{\s*\}`),
	},
}

// PatternScanner flags suspicious constructs on added lines using a
// fixed rule set. It works entirely off the parsed diff, so it is
// always available.
type PatternScanner struct {
	rules []patternRule
}

// NewPatternScanner creates the built-in pattern scanner.
func NewPatternScanner() *PatternScanner {
	return &PatternScanner{rules: defaultRules}
}

// Name identifies the scanner in evidence and logs.
func (s *PatternScanner) Name() string {
	return "builtin"
}

// Scan checks every added line of the diff against the rule set.
func (s *PatternScanner) Scan(_ context.Context, _ domain.ReviewTask, d domain.Diff) ([]domain.Evidence, error) {
	var evidence []domain.Evidence
	for _, file := range d.Files {
		for _, hunk := range file.Hunks {
			for _, line := range hunk.Lines {
				if line.Kind != domain.LineAdded {
					continue
				}
				for _, rule := range s.rules {
					if !rule.pattern.MatchString(line.Content) {
						continue
					}
					evidence = append(evidence, domain.Evidence{
						File:     file.Path,
						Range:    domain.LineRange{Start: line.NewLine, End: line.NewLine},
						RuleID:   rule.id,
						Message:  rule.message,
						Severity: rule.severity,
						Source:   "builtin",
					})
				}
			}
		}
	}
	return evidence, nil
}
