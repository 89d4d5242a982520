package domain

// LabelSpan is an externally supplied claim that a span of new-file lines
// belongs to a named feature. Submitters may attach these to a task to
// group the review by feature instead of by file.
type LabelSpan struct {
	Label string    `json:"label"`
	File  string    `json:"file"`
	Range LineRange `json:"range"`
}

// UnitRange ties an audit unit to a span of changed lines in one file.
type UnitRange struct {
	File  string    `json:"file"`
	Range LineRange `json:"range"`
}

// AuditUnit is a reviewable slice of the change set. Units partition the
// changed lines of a pull request: every changed line belongs to exactly
// one unit.
type AuditUnit struct {
	ID           string      `json:"id"`
	Label        string      `json:"label"`
	Ranges       []UnitRange `json:"ranges"`
	LinesChanged int         `json:"linesChanged"`
	Evidence     []Evidence  `json:"evidence,omitempty"`
	Risk         RiskScore   `json:"risk"`
}

// Covers reports whether the unit includes the given file line.
func (u AuditUnit) Covers(file string, line int) bool {
	for _, r := range u.Ranges {
		if r.File == file && r.Range.Contains(line) {
			return true
		}
	}
	return false
}

// RiskScore is the weighted risk assessment of an audit unit.
type RiskScore struct {
	Score   int                `json:"score"`
	Factors map[string]float64 `json:"factors,omitempty"`
}
