// Package units groups parsed hunks into audit units, the reviewable slices
// of a change set that all later pipeline stages operate on.
//
// Two grouping policies exist: one unit per file (the default, always
// correct) and one unit per feature label when the submitter supplies
// label metadata. Under either policy the changed lines of a file are
// partitioned: every changed line lands in exactly one unit, and the union
// of all unit ranges per file equals the union of that file's hunk ranges.
package units

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/codewatchers/reviewd/internal/diff"
	"github.com/codewatchers/reviewd/internal/domain"
)

// Policy selects how hunks are grouped into units.
type Policy string

const (
	// PolicyPerFile produces one unit per changed file.
	PolicyPerFile Policy = "per-file"
	// PolicyLabeled produces one unit per feature label, falling back to
	// per-file units for hunks no label claims.
	PolicyLabeled Policy = "labeled"
)

// Build groups the diff's hunks into audit units under the given policy.
// Labels are only consulted under PolicyLabeled and may be nil.
func Build(d domain.Diff, policy Policy, labels []domain.LabelSpan) []domain.AuditUnit {
	if policy == PolicyLabeled && len(labels) > 0 {
		return buildLabeled(d, labels)
	}
	return buildPerFile(d)
}

func buildPerFile(d domain.Diff) []domain.AuditUnit {
	var out []domain.AuditUnit
	for _, file := range d.Files {
		ranges := diff.ChangedRanges(file)
		if len(ranges) == 0 {
			continue
		}
		unit := domain.AuditUnit{
			Label:        file.Path,
			LinesChanged: changedLines(file),
		}
		for _, r := range coalesce(ranges) {
			unit.Ranges = append(unit.Ranges, domain.UnitRange{File: file.Path, Range: r})
		}
		unit.ID = unitID(unit)
		out = append(out, unit)
	}
	return out
}

// buildLabeled assigns each hunk to the label covering the majority of its
// changed lines. A hunk no label touches stays in a per-file fallback unit
// keyed by its path. Assignment is whole-hunk, so the ranges of distinct
// units never overlap even when the supplied label spans do.
func buildLabeled(d domain.Diff, labels []domain.LabelSpan) []domain.AuditUnit {
	type group struct {
		label    string
		ranges   []domain.UnitRange
		changed  int
		firstIdx int
	}
	groups := make(map[string]*group)
	order := 0

	assign := func(label string, file string, r domain.LineRange, changed int) {
		g, ok := groups[label]
		if !ok {
			g = &group{label: label, firstIdx: order}
			groups[label] = g
			order++
		}
		g.ranges = append(g.ranges, domain.UnitRange{File: file, Range: r})
		g.changed += changed
	}

	for _, file := range d.Files {
		fileLabels := spansForFile(labels, file.Path)
		for _, hunk := range file.Hunks {
			if hunk.NewLines == 0 {
				continue
			}
			r := domain.LineRange{Start: hunk.NewStart, End: hunk.NewStart + hunk.NewLines - 1}
			label := majorityLabel(fileLabels, r)
			if label == "" {
				label = file.Path
			}
			assign(label, file.Path, r, hunkChangedLines(hunk))
		}
	}

	ordered := make([]*group, 0, len(groups))
	for _, g := range groups {
		ordered = append(ordered, g)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].firstIdx < ordered[j].firstIdx })

	out := make([]domain.AuditUnit, 0, len(ordered))
	for _, g := range ordered {
		unit := domain.AuditUnit{
			Label:        g.label,
			Ranges:       mergeAdjacent(g.ranges),
			LinesChanged: g.changed,
		}
		unit.ID = unitID(unit)
		out = append(out, unit)
	}
	return out
}

// majorityLabel picks the label whose spans cover the most lines of the
// hunk range. Ties resolve to the label whose earliest span in the file
// starts first; a residual tie resolves lexicographically. Returns ""
// when no span touches the range.
func majorityLabel(spans []domain.LabelSpan, r domain.LineRange) string {
	coverage := make(map[string]int)
	earliest := make(map[string]int)
	for _, span := range spans {
		overlap := overlapLen(span.Range, r)
		if overlap == 0 {
			continue
		}
		coverage[span.Label] += overlap
		if prev, ok := earliest[span.Label]; !ok || span.Range.Start < prev {
			earliest[span.Label] = span.Range.Start
		}
	}
	best := ""
	for label, lines := range coverage {
		if best == "" {
			best = label
			continue
		}
		switch {
		case lines > coverage[best]:
			best = label
		case lines == coverage[best]:
			if earliest[label] < earliest[best] ||
				(earliest[label] == earliest[best] && label < best) {
				best = label
			}
		}
	}
	return best
}

func overlapLen(a, b domain.LineRange) int {
	start := a.Start
	if b.Start > start {
		start = b.Start
	}
	end := a.End
	if b.End < end {
		end = b.End
	}
	if end < start {
		return 0
	}
	return end - start + 1
}

func spansForFile(labels []domain.LabelSpan, path string) []domain.LabelSpan {
	var out []domain.LabelSpan
	for _, l := range labels {
		if l.File == path {
			out = append(out, l)
		}
	}
	return out
}

// mergeAdjacent coalesces contiguous same-file ranges within one unit,
// keeping file groups in first-seen order.
func mergeAdjacent(ranges []domain.UnitRange) []domain.UnitRange {
	byFile := make(map[string][]domain.LineRange)
	var fileOrder []string
	for _, ur := range ranges {
		if _, ok := byFile[ur.File]; !ok {
			fileOrder = append(fileOrder, ur.File)
		}
		byFile[ur.File] = append(byFile[ur.File], ur.Range)
	}

	var out []domain.UnitRange
	for _, file := range fileOrder {
		for _, r := range coalesce(byFile[file]) {
			out = append(out, domain.UnitRange{File: file, Range: r})
		}
	}
	return out
}

// coalesce sorts ranges and merges any that touch or overlap.
func coalesce(ranges []domain.LineRange) []domain.LineRange {
	if len(ranges) == 0 {
		return nil
	}
	sorted := make([]domain.LineRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	out := []domain.LineRange{sorted[0]}
	for _, r := range sorted[1:] {
		last := &out[len(out)-1]
		if r.Start <= last.End+1 {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

func changedLines(file domain.FileDiff) int {
	total := 0
	for _, hunk := range file.Hunks {
		total += hunkChangedLines(hunk)
	}
	return total
}

func hunkChangedLines(hunk domain.Hunk) int {
	count := 0
	for _, line := range hunk.Lines {
		if line.Kind == domain.LineAdded || line.Kind == domain.LineRemoved {
			count++
		}
	}
	// Header-only parses (no body lines) still represent a change.
	if count == 0 {
		count = hunk.NewLines
	}
	return count
}

func unitID(unit domain.AuditUnit) string {
	parts := make([]string, 0, len(unit.Ranges)+1)
	parts = append(parts, unit.Label)
	for _, r := range unit.Ranges {
		parts = append(parts, fmt.Sprintf("%s:%d-%d", r.File, r.Range.Start, r.Range.End))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:16]
}
