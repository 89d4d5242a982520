// Package evidence associates scanner findings with audit units by file
// and line-range overlap.
//
// Matching is many-to-many: one finding can land in several units and a
// unit can accumulate many findings. Findings that overlap no unit are
// never dropped; they are carried separately so operators can see what
// the scanners flagged outside the reviewed ranges.
package evidence

import (
	"sort"

	"github.com/codewatchers/reviewd/internal/domain"
)

// Index is a per-file interval index over unit ranges. Unit ranges within
// a file are disjoint, so a sorted slice with binary search answers
// overlap queries in O(log n + matches).
type Index struct {
	byFile map[string][]indexEntry
}

type indexEntry struct {
	r      domain.LineRange
	unitID string
}

// NewIndex builds an interval index over the units' ranges.
func NewIndex(units []domain.AuditUnit) *Index {
	ix := &Index{byFile: make(map[string][]indexEntry)}
	for _, unit := range units {
		for _, ur := range unit.Ranges {
			ix.byFile[ur.File] = append(ix.byFile[ur.File], indexEntry{r: ur.Range, unitID: unit.ID})
		}
	}
	for file := range ix.byFile {
		entries := ix.byFile[file]
		sort.Slice(entries, func(i, j int) bool { return entries[i].r.Start < entries[j].r.Start })
	}
	return ix
}

// Lookup returns the IDs of every unit whose range in the finding's file
// overlaps the finding's range, in ascending range order.
func (ix *Index) Lookup(file string, r domain.LineRange) []string {
	entries := ix.byFile[file]
	if len(entries) == 0 {
		return nil
	}

	// First entry that could overlap: the one whose end reaches r.Start.
	first := sort.Search(len(entries), func(i int) bool {
		return entries[i].r.End >= r.Start
	})

	var ids []string
	for i := first; i < len(entries) && entries[i].r.Start <= r.End; i++ {
		ids = append(ids, entries[i].unitID)
	}
	return ids
}

// MatchResult holds the outcome of matching an evidence set against units.
type MatchResult struct {
	// ByUnit maps a unit ID to the evidence attached to it.
	ByUnit map[string][]domain.Evidence
	// Unmatched holds evidence that overlapped no unit.
	Unmatched []domain.Evidence
}

// Match attaches each evidence item to every unit it overlaps. The result
// depends only on the inputs, so re-matching the same sets yields the
// same attachment.
func Match(units []domain.AuditUnit, findings []domain.Evidence) MatchResult {
	ix := NewIndex(units)
	result := MatchResult{ByUnit: make(map[string][]domain.Evidence)}

	for _, ev := range findings {
		ids := ix.Lookup(ev.File, ev.Range)
		if len(ids) == 0 {
			result.Unmatched = append(result.Unmatched, ev)
			continue
		}
		for _, id := range ids {
			result.ByUnit[id] = append(result.ByUnit[id], ev)
		}
	}
	return result
}
