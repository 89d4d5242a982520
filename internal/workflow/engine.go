package workflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/codewatchers/reviewd/internal/consensus"
	"github.com/codewatchers/reviewd/internal/diff"
	"github.com/codewatchers/reviewd/internal/domain"
	"github.com/codewatchers/reviewd/internal/evidence"
	"github.com/codewatchers/reviewd/internal/observability"
	"github.com/codewatchers/reviewd/internal/triage"
	"github.com/codewatchers/reviewd/internal/units"
)

// Scanner is the outbound port for external code scanners. A scanner
// failure never fails the task; the pipeline proceeds with whatever
// evidence the remaining scanners produced.
type Scanner interface {
	Name() string
	Scan(ctx context.Context, task domain.ReviewTask, d domain.Diff) ([]domain.Evidence, error)
}

// Analyzer is the outbound port for one analysis track. The engine is
// agnostic to how a track decides what is wrong with the code; it only
// schedules units into tracks and collects their issues.
type Analyzer interface {
	Track() domain.Track
	Analyze(ctx context.Context, unit domain.AuditUnit, evidence []domain.Evidence) ([]domain.Issue, error)
}

// Publisher is the outbound port for delivering the final report.
type Publisher interface {
	Publish(ctx context.Context, report domain.ReviewReport) error
}

// Archiver persists completed runs. Optional; archiving failures are
// logged, never fatal.
type Archiver interface {
	SaveRun(ctx context.Context, state *State) error
}

// Timeouts bounds each pipeline stage. The Analysis timeout applies per
// track, so one slow track fails alone instead of stalling the stage.
type Timeouts struct {
	Parsing      time.Duration `mapstructure:"parsing"`
	RiskAnalysis time.Duration `mapstructure:"riskAnalysis"`
	Scanning     time.Duration `mapstructure:"scanning"`
	Triage       time.Duration `mapstructure:"triage"`
	Analysis     time.Duration `mapstructure:"analysis"`
	Correlation  time.Duration `mapstructure:"correlation"`
	Aggregation  time.Duration `mapstructure:"aggregation"`
	Publishing   time.Duration `mapstructure:"publishing"`
}

// DefaultTimeouts returns the per-stage defaults.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Parsing:      30 * time.Second,
		RiskAnalysis: 30 * time.Second,
		Scanning:     2 * time.Minute,
		Triage:       30 * time.Second,
		Analysis:     5 * time.Minute,
		Correlation:  30 * time.Second,
		Aggregation:  30 * time.Second,
		Publishing:   2 * time.Minute,
	}
}

// Deps wires the engine's collaborators and policies.
type Deps struct {
	Scanners  []Scanner
	Analyzers []Analyzer
	Publisher Publisher
	Archiver  Archiver
	Filter    *consensus.Filter
	Scorer    *triage.Scorer
	Policies  map[domain.Track]triage.TrackPolicy

	UnitPolicy    units.Policy
	DefectDensity map[string]float64
	Timeouts      Timeouts
	Retry         RetryConfig
	Logger        observability.Logger
}

// Engine runs the review pipeline for one task at a time. A single Engine
// is safe for concurrent use: all per-task state lives in the State
// threaded through the stages.
type Engine struct {
	deps Deps
}

// NewEngine creates a workflow engine. Scorer, Filter and at least one
// Analyzer are required; Scanners, Publisher and Archiver are optional.
func NewEngine(deps Deps) (*Engine, error) {
	if deps.Scorer == nil {
		return nil, fmt.Errorf("workflow engine requires a risk scorer")
	}
	if deps.Filter == nil {
		return nil, fmt.Errorf("workflow engine requires a consensus filter")
	}
	if len(deps.Analyzers) == 0 {
		return nil, fmt.Errorf("workflow engine requires at least one analyzer")
	}
	if deps.Timeouts == (Timeouts{}) {
		deps.Timeouts = DefaultTimeouts()
	}
	if deps.Retry == (RetryConfig{}) {
		deps.Retry = DefaultRetryConfig()
	}
	if deps.UnitPolicy == "" {
		deps.UnitPolicy = units.PolicyPerFile
	}
	return &Engine{deps: deps}, nil
}

type stageFunc func(ctx context.Context, state *State) (*State, error)

// Run drives the task through every stage. It returns the final state;
// the state's Stage field tells whether the run Completed or Failed. The
// returned error is the failure cause for Failed runs.
func (e *Engine) Run(ctx context.Context, task domain.ReviewTask) (*State, error) {
	state := &State{Task: task, Stage: StageParsing}

	steps := []struct {
		stage   Stage
		timeout time.Duration
		fn      stageFunc
	}{
		{StageParsing, e.deps.Timeouts.Parsing, e.parse},
		{StageRiskAnalysis, e.deps.Timeouts.RiskAnalysis, e.scoreRisk},
		{StageScanning, e.deps.Timeouts.Scanning, e.scan},
		{StageTriage, e.deps.Timeouts.Triage, e.triage},
		{StageParallelAnalysis, 0, e.analyze},
		{StageCrossFileCorrelation, e.deps.Timeouts.Correlation, e.correlate},
		{StageAggregating, e.deps.Timeouts.Aggregation, e.aggregate},
		{StagePublishing, e.deps.Timeouts.Publishing, e.publish},
	}

	var runErr error
	for _, step := range steps {
		next, err := e.runStage(ctx, state, step.stage, step.timeout, step.fn)
		state = next
		if err != nil {
			state.Stage = StageFailed
			state.FailureReason = err.Error()
			runErr = err
			break
		}
	}
	if runErr == nil {
		state.Stage = StageCompleted
	}

	if e.deps.Archiver != nil {
		if err := e.deps.Archiver.SaveRun(ctx, state); err != nil {
			e.logWarning(ctx, "archiving run failed", map[string]interface{}{
				"task": task.ID, "error": err.Error(),
			})
		}
	}
	return state, runErr
}

// runStage executes one stage against a clone of the committed state and
// commits the clone only on success.
func (e *Engine) runStage(ctx context.Context, state *State, stage Stage, timeout time.Duration, fn stageFunc) (*State, error) {
	next := state.Clone()
	next.Stage = stage

	stageCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	started := time.Now()
	result, err := fn(stageCtx, next)
	record := StageRecord{Stage: stage, StartedAt: started, Duration: time.Since(started)}

	if err == nil && stageCtx.Err() != nil {
		err = stageCtx.Err()
	}
	if err != nil {
		record.Err = err.Error()
		state.History = append(state.History, record)
		e.logWarning(ctx, "stage failed", map[string]interface{}{
			"task": state.Task.ID, "stage": string(stage), "error": err.Error(),
		})
		return state, fmt.Errorf("stage %s: %w", stage, err)
	}

	result.History = append(result.History, record)
	return result, nil
}

func (e *Engine) parse(ctx context.Context, state *State) (*State, error) {
	parsed, err := diff.Parse(state.Task.DiffText)
	if err != nil {
		return state, err
	}
	state.Diff = parsed
	policy := e.deps.UnitPolicy
	if len(state.Task.Labels) > 0 {
		policy = units.PolicyLabeled
	}
	state.Units = units.Build(parsed, policy, state.Task.Labels)
	e.logInfo(ctx, "diff parsed", map[string]interface{}{
		"task": state.Task.ID, "files": len(parsed.Files), "units": len(state.Units),
	})
	return state, nil
}

func (e *Engine) scoreRisk(ctx context.Context, state *State) (*State, error) {
	for i := range state.Units {
		state.Units[i].Risk = e.deps.Scorer.Score(state.Diff, state.Units[i], e.deps.DefectDensity)
	}
	return state, nil
}

// scan gathers evidence from every scanner and matches it onto units.
// Scanner errors are recorded and the stage proceeds with reduced
// evidence.
func (e *Engine) scan(ctx context.Context, state *State) (*State, error) {
	for _, scanner := range e.deps.Scanners {
		found, err := scanner.Scan(ctx, state.Task, state.Diff)
		if err != nil {
			scanErr := domain.NewScanUnavailableError(scanner.Name(), err)
			state.ScanErrors = append(state.ScanErrors, scanErr.Error())
			e.logWarning(ctx, "scanner unavailable", map[string]interface{}{
				"task": state.Task.ID, "scanner": scanner.Name(), "error": err.Error(),
			})
			continue
		}
		state.Evidence = append(state.Evidence, found...)
	}
	for i := range state.Evidence {
		if state.Evidence[i].ID == "" {
			state.Evidence[i].ID = evidenceID(state.Evidence[i])
		}
	}

	matched := evidence.Match(state.Units, state.Evidence)
	state.EvidenceByUnit = matched.ByUnit
	state.UnmatchedEvidence = matched.Unmatched
	for i := range state.Units {
		state.Units[i].Evidence = matched.ByUnit[state.Units[i].ID]
	}
	return state, nil
}

func (e *Engine) triage(ctx context.Context, state *State) (*State, error) {
	state.Plan = make(map[domain.Track][]string, len(e.deps.Analyzers))
	for _, analyzer := range e.deps.Analyzers {
		policy := e.deps.Policies[analyzer.Track()]
		selected := triage.Select(state.Units, policy)
		ids := make([]string, len(selected))
		for i, unit := range selected {
			ids[i] = unit.ID
		}
		state.Plan[analyzer.Track()] = ids
	}
	return state, nil
}

// analyze fans out to every analyzer track and joins after all report.
// One track's failure is recorded and never aborts its siblings; the
// stage fails only when zero tracks succeed.
func (e *Engine) analyze(ctx context.Context, state *State) (*State, error) {
	unitsByID := make(map[string]domain.AuditUnit, len(state.Units))
	for _, unit := range state.Units {
		unitsByID[unit.ID] = unit
	}

	var wg sync.WaitGroup
	results := make(chan domain.TrackResult, len(e.deps.Analyzers))

	for _, analyzer := range e.deps.Analyzers {
		wg.Add(1)
		go func(analyzer Analyzer) {
			started := time.Now()
			defer func() {
				if r := recover(); r != nil {
					results <- domain.TrackResult{
						Track:    analyzer.Track(),
						Err:      fmt.Sprintf("track panicked: %v", r),
						Duration: time.Since(started),
					}
				}
				wg.Done()
			}()

			trackCtx := ctx
			if e.deps.Timeouts.Analysis > 0 {
				var cancel context.CancelFunc
				trackCtx, cancel = context.WithTimeout(ctx, e.deps.Timeouts.Analysis)
				defer cancel()
			}

			result := domain.TrackResult{Track: analyzer.Track()}
			for _, unitID := range state.Plan[analyzer.Track()] {
				unit, ok := unitsByID[unitID]
				if !ok {
					continue
				}
				issues, err := analyzer.Analyze(trackCtx, unit, state.EvidenceByUnit[unitID])
				if err != nil {
					failure := domain.NewTrackFailureError(analyzer.Track(), err)
					result.Err = failure.Error()
					// A failed track contributes nothing: issues collected
					// before the failure must not reach the report.
					result.Issues = nil
					break
				}
				result.Issues = append(result.Issues, issues...)
			}
			result.Duration = time.Since(started)
			results <- result
		}(analyzer)
	}

	wg.Wait()
	close(results)

	succeeded := 0
	for result := range results {
		if result.Succeeded() {
			succeeded++
		} else {
			e.logWarning(ctx, "analysis track failed", map[string]interface{}{
				"task": state.Task.ID, "track": string(result.Track), "error": result.Err,
			})
		}
		state.TrackResults = append(state.TrackResults, result)
	}
	sort.Slice(state.TrackResults, func(i, j int) bool {
		return state.TrackResults[i].Track < state.TrackResults[j].Track
	})

	if succeeded == 0 {
		return state, domain.NewNoTracksSucceededError()
	}
	return state, nil
}

// correlate groups issues reporting the same rule or title across more
// than one file.
func (e *Engine) correlate(ctx context.Context, state *State) (*State, error) {
	evidenceByID := state.EvidenceIndex()

	type bucket struct {
		files    map[string]bool
		issueIDs []string
		order    []string
	}
	buckets := make(map[string]*bucket)
	var keys []string

	for _, issue := range state.Issues() {
		key := correlationKey(issue, evidenceByID)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{files: make(map[string]bool)}
			buckets[key] = b
			keys = append(keys, key)
		}
		if !b.files[issue.File] {
			b.files[issue.File] = true
			b.order = append(b.order, issue.File)
		}
		b.issueIDs = append(b.issueIDs, issue.ID)
	}

	sort.Strings(keys)
	for _, key := range keys {
		b := buckets[key]
		if len(b.files) < 2 {
			continue
		}
		state.Correlations = append(state.Correlations, CorrelationGroup{
			Key:      key,
			Files:    b.order,
			IssueIDs: b.issueIDs,
		})
	}
	return state, nil
}

// aggregate runs the consensus filter over all track issues and builds
// the final report.
func (e *Engine) aggregate(ctx context.Context, state *State) (*State, error) {
	filtered := e.deps.Filter.Apply(state.Issues(), state.EvidenceIndex())

	e.logInfo(ctx, "issues aggregated", map[string]interface{}{
		"task":            state.Task.ID,
		"kept":            len(filtered.Kept),
		"deduplicated":    filtered.Deduplicated,
		"suppressed":      filtered.Suppressed,
		"below_threshold": filtered.BelowThreshold,
	})

	state.Report = &domain.ReviewReport{
		TaskID:            state.Task.ID,
		Repository:        state.Task.Repository,
		PRNumber:          state.Task.PRNumber,
		HeadSHA:           state.Task.HeadSHA,
		Units:             cloneUnits(state.Units),
		Issues:            filtered.Kept,
		UnmatchedEvidence: append([]domain.Evidence(nil), state.UnmatchedEvidence...),
		TrackResults:      cloneTrackResults(state.TrackResults),
		StartedAt:         state.Task.SubmittedAt,
		FinishedAt:        time.Now(),
	}
	return state, nil
}

// publish delivers the report with bounded retries. Failure here fails
// the task: nothing partial is ever left published.
func (e *Engine) publish(ctx context.Context, state *State) (*State, error) {
	if e.deps.Publisher == nil {
		return state, nil
	}

	err := RetryWithBackoff(ctx, func(ctx context.Context) error {
		return e.deps.Publisher.Publish(ctx, *state.Report)
	}, e.deps.Retry)
	if err != nil {
		return state, domain.NewPublishFailureError("delivering report", err)
	}
	return state, nil
}

func correlationKey(issue domain.Issue, evidenceByID map[string]domain.Evidence) string {
	for _, ref := range issue.EvidenceIDs {
		if ev, ok := evidenceByID[ref]; ok && ev.RuleID != "" {
			return "rule:" + ev.RuleID
		}
	}
	return "title:" + normalizeTitle(issue.Title)
}

func normalizeTitle(title string) string {
	out := make([]rune, 0, len(title))
	for _, r := range title {
		switch {
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
		case r == ' ':
			out = append(out, '-')
		}
	}
	return string(out)
}

func evidenceID(ev domain.Evidence) string {
	payload := fmt.Sprintf("%s|%d|%d|%s|%s", ev.File, ev.Range.Start, ev.Range.End, ev.RuleID, ev.Source)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])[:16]
}

func (e *Engine) logInfo(ctx context.Context, message string, fields map[string]interface{}) {
	if e.deps.Logger != nil {
		e.deps.Logger.LogInfo(ctx, message, fields)
	}
}

func (e *Engine) logWarning(ctx context.Context, message string, fields map[string]interface{}) {
	if e.deps.Logger != nil {
		e.deps.Logger.LogWarning(ctx, message, fields)
	}
}
