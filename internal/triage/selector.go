package triage

import (
	"sort"

	"github.com/codewatchers/reviewd/internal/domain"
)

// TrackPolicy bounds how much of the change set one analysis track examines.
// A unit must meet MinScore to qualify, and at most MaxUnits qualifying
// units are selected. Both limits apply together: the threshold keeps
// trivial units out even when the cap has room, and the cap bounds cost
// even when many units qualify.
type TrackPolicy struct {
	MinScore int `mapstructure:"minScore"`
	MaxUnits int `mapstructure:"maxUnits"`
}

// DefaultPolicies returns the per-track triage defaults.
func DefaultPolicies() map[domain.Track]TrackPolicy {
	return map[domain.Track]TrackPolicy{
		domain.TrackStructure: {MinScore: 25, MaxUnits: 15},
		domain.TrackMemory:    {MinScore: 30, MaxUnits: 12},
		domain.TrackLogic:     {MinScore: 60, MaxUnits: 12},
		domain.TrackSecurity:  {MinScore: 35, MaxUnits: 10},
	}
}

// Select returns the units a track should analyze, ordered by risk score
// descending. Ties order by ascending file path, then ascending start
// line, so re-running selection over the same scores yields the identical
// ordered subset.
func Select(candidates []domain.AuditUnit, policy TrackPolicy) []domain.AuditUnit {
	qualified := make([]domain.AuditUnit, 0, len(candidates))
	for _, unit := range candidates {
		if unit.Risk.Score >= policy.MinScore {
			qualified = append(qualified, unit)
		}
	}

	sort.SliceStable(qualified, func(i, j int) bool {
		a, b := qualified[i], qualified[j]
		if a.Risk.Score != b.Risk.Score {
			return a.Risk.Score > b.Risk.Score
		}
		af, al := sortKey(a)
		bf, bl := sortKey(b)
		if af != bf {
			return af < bf
		}
		return al < bl
	})

	if policy.MaxUnits > 0 && len(qualified) > policy.MaxUnits {
		qualified = qualified[:policy.MaxUnits]
	}
	return qualified
}

// sortKey returns the unit's first file path and start line for tie-breaks.
func sortKey(unit domain.AuditUnit) (string, int) {
	if len(unit.Ranges) == 0 {
		return "", 0
	}
	file := unit.Ranges[0].File
	line := unit.Ranges[0].Range.Start
	for _, ur := range unit.Ranges[1:] {
		if ur.File < file || (ur.File == file && ur.Range.Start < line) {
			file = ur.File
			line = ur.Range.Start
		}
	}
	return file, line
}
