// Package triage ranks audit units by risk and selects the bounded subset
// each analysis track will actually examine.
package triage

import (
	"strings"

	"github.com/codewatchers/reviewd/internal/domain"
)

// Weights tunes the risk score's contributing signals. All weights are
// configuration so scoring can be adjusted without a code change.
type Weights struct {
	// LinesChanged is multiplied by the unit's changed-line count.
	LinesChanged float64 `mapstructure:"linesChanged"`
	// ControlFlow is multiplied by the number of control-flow keywords
	// found on the unit's added lines.
	ControlFlow float64 `mapstructure:"controlFlow"`
	// DefectDensity is multiplied by the supplied historical defect
	// density for the unit's files (0 when no history is available).
	DefectDensity float64 `mapstructure:"defectDensity"`
	// PathWeights adds a flat contribution when a unit touches a file
	// whose path contains the key (e.g. "auth" for security-sensitive
	// code). The largest matching contribution wins per unit.
	PathWeights map[string]float64 `mapstructure:"pathWeights"`
}

// DefaultWeights returns the scoring defaults.
func DefaultWeights() Weights {
	return Weights{
		LinesChanged:  0.5,
		ControlFlow:   2.0,
		DefectDensity: 10.0,
		PathWeights: map[string]float64{
			"auth":     20,
			"security": 20,
			"crypto":   20,
			"payment":  15,
			"api":      10,
			"db":       10,
			"migrat":   10,
		},
	}
}

var controlFlowTokens = []string{
	"if ", "if(", "else", "for ", "for(", "while", "switch", "case ",
	"goto", "break", "continue", "return", "try", "except", "catch", "defer",
}

// Scorer computes weighted risk scores for audit units.
type Scorer struct {
	weights Weights
}

// NewScorer creates a Scorer with the given weights.
func NewScorer(weights Weights) *Scorer {
	return &Scorer{weights: weights}
}

// Score computes the unit's risk as a bounded weighted sum clamped to
// [0,100]. The diff supplies line content for the control-flow signal;
// density supplies optional per-file historical defect density.
func (s *Scorer) Score(d domain.Diff, unit domain.AuditUnit, density map[string]float64) domain.RiskScore {
	factors := make(map[string]float64)

	lines := s.weights.LinesChanged * float64(unit.LinesChanged)
	if lines > 0 {
		factors["lines_changed"] = lines
	}

	if cf := s.weights.ControlFlow * float64(countControlFlow(d, unit)); cf > 0 {
		factors["control_flow"] = cf
	}

	if pw := s.pathWeight(unit); pw > 0 {
		factors["file_type"] = pw
	}

	if dd := s.weights.DefectDensity * maxDensity(unit, density); dd > 0 {
		factors["defect_density"] = dd
	}

	total := 0.0
	for _, v := range factors {
		total += v
	}
	score := int(total)
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	return domain.RiskScore{Score: score, Factors: factors}
}

func (s *Scorer) pathWeight(unit domain.AuditUnit) float64 {
	best := 0.0
	for _, ur := range unit.Ranges {
		path := strings.ToLower(ur.File)
		for needle, weight := range s.weights.PathWeights {
			if strings.Contains(path, needle) && weight > best {
				best = weight
			}
		}
	}
	return best
}

func countControlFlow(d domain.Diff, unit domain.AuditUnit) int {
	count := 0
	for _, file := range d.Files {
		for _, hunk := range file.Hunks {
			for _, line := range hunk.Lines {
				if line.Kind != domain.LineAdded {
					continue
				}
				if !unit.Covers(file.Path, line.NewLine) {
					continue
				}
				content := strings.ToLower(line.Content)
				for _, token := range controlFlowTokens {
					if strings.Contains(content, token) {
						count++
						break
					}
				}
			}
		}
	}
	return count
}

func maxDensity(unit domain.AuditUnit, density map[string]float64) float64 {
	best := 0.0
	for _, ur := range unit.Ranges {
		if d, ok := density[ur.File]; ok && d > best {
			best = d
		}
	}
	return best
}
