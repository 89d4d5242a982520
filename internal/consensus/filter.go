// Package consensus reconciles the candidate issues produced by every
// analysis track into the final publishable list.
//
// Three passes run in order: deduplication collapses overlapping reports
// of the same underlying problem, suppression removes known false-positive
// patterns, and threshold filtering drops low-signal issues. Suppression
// runs before thresholds so suppressed issues never count toward published
// totals.
package consensus

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/codewatchers/reviewd/internal/domain"
)

// Config tunes the consensus passes. Zero values fall back to defaults.
type Config struct {
	// TitleSimilarity is the minimum Jaccard word similarity for two
	// issue titles to count as the same finding during deduplication.
	TitleSimilarity float64 `mapstructure:"titleSimilarity"`
	// RelevanceMin, SeverityMin and ConfidenceMin are the per-dimension
	// acceptance thresholds. An issue must meet all three.
	RelevanceMin  float64 `mapstructure:"relevanceMin"`
	SeverityMin   float64 `mapstructure:"severityMin"`
	ConfidenceMin float64 `mapstructure:"confidenceMin"`
	// Suppressions is a disallow-list of regular expressions matched
	// against issue titles and evidence rule IDs.
	Suppressions []string `mapstructure:"suppressions"`
}

// DefaultConfig returns the consensus defaults.
func DefaultConfig() Config {
	return Config{
		TitleSimilarity: 0.5,
		RelevanceMin:    0.5,
		SeverityMin:     0.4,
		ConfidenceMin:   0.3,
	}
}

// Result reports what the filter kept and why the rest was dropped.
type Result struct {
	Kept           []domain.Issue
	Deduplicated   int
	Suppressed     int
	BelowThreshold int
}

// Filter applies the consensus passes.
type Filter struct {
	cfg         Config
	suppression []*regexp.Regexp
}

// NewFilter compiles the suppression patterns and returns a Filter.
func NewFilter(cfg Config) (*Filter, error) {
	if cfg.TitleSimilarity == 0 {
		cfg.TitleSimilarity = DefaultConfig().TitleSimilarity
	}

	patterns := make([]*regexp.Regexp, 0, len(cfg.Suppressions))
	for _, expr := range cfg.Suppressions {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compiling suppression pattern %q: %w", expr, err)
		}
		patterns = append(patterns, re)
	}
	return &Filter{cfg: cfg, suppression: patterns}, nil
}

// Apply runs deduplication, suppression, and threshold filtering over the
// concatenated issues from all tracks. evidenceByID resolves the issues'
// evidence references so suppression patterns can match rule IDs; it may
// be nil.
func (f *Filter) Apply(issues []domain.Issue, evidenceByID map[string]domain.Evidence) Result {
	result := Result{}

	deduped := f.dedupe(issues)
	result.Deduplicated = len(issues) - len(deduped)

	var unsuppressed []domain.Issue
	for _, issue := range deduped {
		if f.suppressed(issue, evidenceByID) {
			result.Suppressed++
			continue
		}
		unsuppressed = append(unsuppressed, issue)
	}

	for _, issue := range unsuppressed {
		if issue.Relevance >= f.cfg.RelevanceMin &&
			issue.SeverityScore >= f.cfg.SeverityMin &&
			issue.Confidence >= f.cfg.ConfidenceMin {
			result.Kept = append(result.Kept, issue)
		} else {
			result.BelowThreshold++
		}
	}

	// Present the highest-severity findings first; ties read in file order.
	sort.SliceStable(result.Kept, func(i, j int) bool {
		a, b := result.Kept[i], result.Kept[j]
		if ra, rb := domain.SeverityRank(a.Severity), domain.SeverityRank(b.Severity); ra != rb {
			return ra > rb
		}
		if a.File != b.File {
			return a.File < b.File
		}
		return a.Range.Start < b.Range.Start
	})
	return result
}

// dedupe collapses issues reporting the same finding: same file, line
// ranges overlapping, and titles similar above the configured threshold.
// The survivor is the duplicate with the highest confidence; evidence
// references from the losers are merged onto it.
func (f *Filter) dedupe(issues []domain.Issue) []domain.Issue {
	// Sort so grouping is independent of track completion order.
	sorted := make([]domain.Issue, len(issues))
	copy(sorted, issues)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Range.Start != b.Range.Start {
			return a.Range.Start < b.Range.Start
		}
		return a.Title < b.Title
	})

	var kept []domain.Issue
	for _, issue := range sorted {
		matched := false
		for i := range kept {
			if !sameFinding(kept[i], issue, f.cfg.TitleSimilarity) {
				continue
			}
			kept[i] = mergeDuplicate(kept[i], issue)
			matched = true
			break
		}
		if !matched {
			kept = append(kept, issue)
		}
	}
	return kept
}

func sameFinding(a, b domain.Issue, similarityMin float64) bool {
	if a.File != b.File {
		return false
	}
	if !a.Range.Overlaps(b.Range) {
		return false
	}
	return titleSimilarity(a.Title, b.Title) >= similarityMin
}

// mergeDuplicate keeps the higher-confidence issue and folds the other's
// evidence references into it.
func mergeDuplicate(a, b domain.Issue) domain.Issue {
	winner, loser := a, b
	if b.Confidence > a.Confidence {
		winner, loser = b, a
	}
	winner.EvidenceIDs = mergeRefs(winner.EvidenceIDs, loser.EvidenceIDs)
	return winner
}

func mergeRefs(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	out := make([]string, 0, len(a)+len(b))
	for _, ref := range a {
		if !seen[ref] {
			seen[ref] = true
			out = append(out, ref)
		}
	}
	for _, ref := range b {
		if !seen[ref] {
			seen[ref] = true
			out = append(out, ref)
		}
	}
	return out
}

func (f *Filter) suppressed(issue domain.Issue, evidenceByID map[string]domain.Evidence) bool {
	for _, re := range f.suppression {
		if re.MatchString(issue.Title) {
			return true
		}
		for _, ref := range issue.EvidenceIDs {
			if ev, ok := evidenceByID[ref]; ok && re.MatchString(ev.RuleID) {
				return true
			}
		}
	}
	return false
}

// titleSimilarity computes Jaccard similarity over lowercased word sets.
func titleSimilarity(a, b string) float64 {
	wordsA := strings.Fields(strings.ToLower(a))
	wordsB := strings.Fields(strings.ToLower(b))

	if len(wordsA) == 0 && len(wordsB) == 0 {
		return 1.0
	}
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0.0
	}

	setA := make(map[string]bool)
	setB := make(map[string]bool)
	for _, word := range wordsA {
		setA[word] = true
	}
	for _, word := range wordsB {
		setB[word] = true
	}

	intersection := 0
	for word := range setA {
		if setB[word] {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}
