// Package workflow drives one review task through the pipeline stages,
// from diff parsing to publishing.
//
// Each stage receives a snapshot of the task's state and returns a new
// one; committed stage results are never mutated in place. That keeps a
// task's progress inspectable stage-by-stage and makes each stage
// testable as a pure function of its inputs.
package workflow

import (
	"time"

	"github.com/codewatchers/reviewd/internal/domain"
)

// Stage names one step of the review pipeline.
type Stage string

const (
	StageParsing              Stage = "Parsing"
	StageRiskAnalysis         Stage = "RiskAnalysis"
	StageScanning             Stage = "Scanning"
	StageTriage               Stage = "Triage"
	StageParallelAnalysis     Stage = "ParallelAnalysis"
	StageCrossFileCorrelation Stage = "CrossFileCorrelation"
	StageAggregating          Stage = "Aggregating"
	StagePublishing           Stage = "Publishing"
	StageCompleted            Stage = "Completed"
	StageFailed               Stage = "Failed"
)

// Terminal reports whether the stage is a terminal state.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// StageRecord captures one stage execution for the task's history.
type StageRecord struct {
	Stage     Stage         `json:"stage"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	Err       string        `json:"error,omitempty"`
}

// CorrelationGroup links issues that report the same rule or title across
// more than one file.
type CorrelationGroup struct {
	Key      string   `json:"key"`
	Files    []string `json:"files"`
	IssueIDs []string `json:"issueIds"`
}

// State is the evolving per-task record threaded through the pipeline.
// It is exclusively owned by the single engine run processing the task.
type State struct {
	Task  domain.ReviewTask
	Stage Stage

	Diff  domain.Diff
	Units []domain.AuditUnit

	// Plan maps each analysis track to the IDs of the units selected
	// for it by triage.
	Plan map[domain.Track][]string

	Evidence          []domain.Evidence
	EvidenceByUnit    map[string][]domain.Evidence
	UnmatchedEvidence []domain.Evidence
	ScanErrors        []string

	TrackResults []domain.TrackResult
	Correlations []CorrelationGroup
	Report       *domain.ReviewReport

	History       []StageRecord
	FailureReason string
}

// Clone returns a deep copy of the state. Stages operate on clones so a
// failed stage leaves the previously committed state untouched.
func (s *State) Clone() *State {
	out := &State{
		Task:          s.Task,
		Stage:         s.Stage,
		Diff:          cloneDiff(s.Diff),
		Units:         cloneUnits(s.Units),
		Evidence:      append([]domain.Evidence(nil), s.Evidence...),
		ScanErrors:    append([]string(nil), s.ScanErrors...),
		TrackResults:  cloneTrackResults(s.TrackResults),
		Correlations:  cloneCorrelations(s.Correlations),
		History:       append([]StageRecord(nil), s.History...),
		FailureReason: s.FailureReason,
	}
	out.UnmatchedEvidence = append([]domain.Evidence(nil), s.UnmatchedEvidence...)

	if s.Plan != nil {
		out.Plan = make(map[domain.Track][]string, len(s.Plan))
		for track, ids := range s.Plan {
			out.Plan[track] = append([]string(nil), ids...)
		}
	}
	if s.EvidenceByUnit != nil {
		out.EvidenceByUnit = make(map[string][]domain.Evidence, len(s.EvidenceByUnit))
		for id, evs := range s.EvidenceByUnit {
			out.EvidenceByUnit[id] = append([]domain.Evidence(nil), evs...)
		}
	}
	if s.Report != nil {
		report := *s.Report
		report.Units = cloneUnits(s.Report.Units)
		report.Issues = append([]domain.Issue(nil), s.Report.Issues...)
		report.UnmatchedEvidence = append([]domain.Evidence(nil), s.Report.UnmatchedEvidence...)
		report.TrackResults = cloneTrackResults(s.Report.TrackResults)
		out.Report = &report
	}
	return out
}

// Issues returns the concatenated issues from every successful track.
// Failed tracks are excluded even if they produced issues before failing.
func (s *State) Issues() []domain.Issue {
	var out []domain.Issue
	for _, result := range s.TrackResults {
		if !result.Succeeded() {
			continue
		}
		out = append(out, result.Issues...)
	}
	return out
}

// EvidenceIndex returns the state's evidence keyed by ID.
func (s *State) EvidenceIndex() map[string]domain.Evidence {
	out := make(map[string]domain.Evidence, len(s.Evidence))
	for _, ev := range s.Evidence {
		out[ev.ID] = ev
	}
	return out
}

func cloneDiff(d domain.Diff) domain.Diff {
	out := d
	out.Files = make([]domain.FileDiff, len(d.Files))
	for i, file := range d.Files {
		cp := file
		cp.Hunks = make([]domain.Hunk, len(file.Hunks))
		for j, hunk := range file.Hunks {
			hcp := hunk
			hcp.Lines = append([]domain.HunkLine(nil), hunk.Lines...)
			cp.Hunks[j] = hcp
		}
		out.Files[i] = cp
	}
	return out
}

func cloneUnits(in []domain.AuditUnit) []domain.AuditUnit {
	out := make([]domain.AuditUnit, len(in))
	for i, unit := range in {
		cp := unit
		cp.Ranges = append([]domain.UnitRange(nil), unit.Ranges...)
		cp.Evidence = append([]domain.Evidence(nil), unit.Evidence...)
		if unit.Risk.Factors != nil {
			cp.Risk.Factors = make(map[string]float64, len(unit.Risk.Factors))
			for k, v := range unit.Risk.Factors {
				cp.Risk.Factors[k] = v
			}
		}
		out[i] = cp
	}
	return out
}

func cloneTrackResults(in []domain.TrackResult) []domain.TrackResult {
	out := make([]domain.TrackResult, len(in))
	for i, result := range in {
		cp := result
		cp.Issues = append([]domain.Issue(nil), result.Issues...)
		out[i] = cp
	}
	return out
}

func cloneCorrelations(in []CorrelationGroup) []CorrelationGroup {
	out := make([]CorrelationGroup, len(in))
	for i, group := range in {
		cp := group
		cp.Files = append([]string(nil), group.Files...)
		cp.IssueIDs = append([]string(nil), group.IssueIDs...)
		out[i] = cp
	}
	return out
}
