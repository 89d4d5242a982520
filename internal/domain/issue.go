package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Track names one of the parallel analysis passes run against a pull request.
type Track string

const (
	TrackStructure Track = "structure"
	TrackMemory    Track = "memory"
	TrackLogic     Track = "logic"
	TrackSecurity  Track = "security"
)

// Tracks lists every analysis track in a fixed order.
func Tracks() []Track {
	return []Track{TrackStructure, TrackMemory, TrackLogic, TrackSecurity}
}

const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
	SeverityInfo     = "info"
)

var severityRank = map[string]int{
	SeverityCritical: 5,
	SeverityHigh:     4,
	SeverityMedium:   3,
	SeverityLow:      2,
	SeverityInfo:     1,
}

// SeverityRank maps a severity label onto an ordinal for comparisons.
// Unknown labels rank below info.
func SeverityRank(severity string) int {
	return severityRank[severity]
}

// Evidence is one scanner observation tied to a file location. Evidence is
// attached to audit units before analysis and to issues afterwards.
type Evidence struct {
	ID       string    `json:"id"`
	File     string    `json:"file"`
	Range    LineRange `json:"range"`
	RuleID   string    `json:"ruleId"`
	Message  string    `json:"message"`
	Severity string    `json:"severity"`
	Source   string    `json:"source"`
}

// Issue is a single reviewable problem reported by an analysis track.
type Issue struct {
	ID            string    `json:"id"`
	File          string    `json:"file"`
	Range         LineRange `json:"range"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Suggestion    string    `json:"suggestion,omitempty"`
	Severity      string    `json:"severity"`
	Track         Track     `json:"track"`
	Relevance     float64   `json:"relevance"`
	SeverityScore float64   `json:"severityScore"`
	Confidence    float64   `json:"confidence"`
	EvidenceIDs   []string  `json:"evidenceIds,omitempty"`
}

// IssueInput captures the information required to create an Issue.
type IssueInput struct {
	File          string
	Range         LineRange
	Title         string
	Description   string
	Suggestion    string
	Severity      string
	Track         Track
	Relevance     float64
	SeverityScore float64
	Confidence    float64
	EvidenceIDs   []string
}

// NewIssue constructs an Issue with a deterministic ID.
func NewIssue(input IssueInput) Issue {
	return Issue{
		ID:            hashIssue(input),
		File:          input.File,
		Range:         input.Range,
		Title:         input.Title,
		Description:   input.Description,
		Suggestion:    input.Suggestion,
		Severity:      input.Severity,
		Track:         input.Track,
		Relevance:     input.Relevance,
		SeverityScore: input.SeverityScore,
		Confidence:    input.Confidence,
		EvidenceIDs:   input.EvidenceIDs,
	}
}

func hashIssue(input IssueInput) string {
	payload := fmt.Sprintf("%s|%d|%d|%s|%s|%s",
		input.File,
		input.Range.Start,
		input.Range.End,
		input.Severity,
		input.Track,
		input.Title,
	)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
