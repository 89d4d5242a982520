package static

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewatchers/reviewd/internal/domain"
)

func testUnit() domain.AuditUnit {
	return domain.AuditUnit{
		ID:    "u1",
		Label: "src/auth.py",
		Ranges: []domain.UnitRange{
			{File: "src/auth.py", Range: domain.LineRange{Start: 10, End: 25}},
		},
		LinesChanged: 16,
	}
}

func sqlEvidence() domain.Evidence {
	return domain.Evidence{
		ID:       "ev1",
		File:     "src/auth.py",
		Range:    domain.LineRange{Start: 12, End: 12},
		RuleID:   "builtin.sql-string-concat",
		Message:  "SQL statement built with string concatenation or formatting",
		Severity: domain.SeverityHigh,
		Source:   "builtin",
	}
}

func TestNewAnalyzersCoversEveryTrack(t *testing.T) {
	analyzers := NewAnalyzers()

	require.Len(t, analyzers, 4)
	seen := map[domain.Track]bool{}
	for _, a := range analyzers {
		seen[a.Track()] = true
	}
	for _, track := range domain.Tracks() {
		assert.True(t, seen[track], "missing analyzer for track %s", track)
	}
}

func TestSecurityAnalyzerConvertsEvidence(t *testing.T) {
	a := NewAnalyzer(domain.TrackSecurity)

	issues, err := a.Analyze(context.Background(), testUnit(), []domain.Evidence{sqlEvidence()})
	require.NoError(t, err)

	require.Len(t, issues, 1)
	issue := issues[0]
	assert.Equal(t, "src/auth.py", issue.File)
	assert.Equal(t, domain.LineRange{Start: 12, End: 12}, issue.Range)
	assert.Equal(t, domain.SeverityHigh, issue.Severity)
	assert.Equal(t, domain.TrackSecurity, issue.Track)
	assert.Equal(t, []string{"ev1"}, issue.EvidenceIDs)
	assert.Contains(t, issue.Suggestion, "parameterized query")
	assert.GreaterOrEqual(t, issue.Relevance, 0.5)
	assert.GreaterOrEqual(t, issue.SeverityScore, 0.4)
	assert.GreaterOrEqual(t, issue.Confidence, 0.3)
}

func TestSecurityAnalyzerIgnoresUnrelatedEvidence(t *testing.T) {
	a := NewAnalyzer(domain.TrackSecurity)

	ev := domain.Evidence{
		ID:       "ev2",
		File:     "src/utils.py",
		Range:    domain.LineRange{Start: 3, End: 3},
		RuleID:   "style.long-line",
		Message:  "line exceeds 120 characters",
		Severity: domain.SeverityInfo,
		Source:   "builtin",
	}

	issues, err := a.Analyze(context.Background(), testUnit(), []domain.Evidence{ev})
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestSecurityAnalyzerDeterministicIDs(t *testing.T) {
	a := NewAnalyzer(domain.TrackSecurity)

	first, err := a.Analyze(context.Background(), testUnit(), []domain.Evidence{sqlEvidence()})
	require.NoError(t, err)
	second, err := a.Analyze(context.Background(), testUnit(), []domain.Evidence{sqlEvidence()})
	require.NoError(t, err)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
}

func TestLogicAnalyzerFlagsDenseBranching(t *testing.T) {
	a := NewAnalyzer(domain.TrackLogic)

	unit := testUnit()
	unit.Risk = domain.RiskScore{
		Score:   70,
		Factors: map[string]float64{"control_flow": 14},
	}

	issues, err := a.Analyze(context.Background(), unit, nil)
	require.NoError(t, err)

	require.Len(t, issues, 1)
	assert.Equal(t, "Dense branching logic", issues[0].Title)
	assert.Equal(t, domain.TrackLogic, issues[0].Track)
	assert.Equal(t, "src/auth.py", issues[0].File)
}

func TestLogicAnalyzerPrefersEvidence(t *testing.T) {
	a := NewAnalyzer(domain.TrackLogic)

	unit := testUnit()
	unit.Risk = domain.RiskScore{Factors: map[string]float64{"control_flow": 14}}
	ev := domain.Evidence{
		ID:       "ev3",
		File:     "src/auth.py",
		Range:    domain.LineRange{Start: 15, End: 15},
		RuleID:   "builtin.bare-except",
		Message:  "Exception swallowed without handling",
		Severity: domain.SeverityLow,
		Source:   "builtin",
	}

	issues, err := a.Analyze(context.Background(), unit, []domain.Evidence{ev})
	require.NoError(t, err)

	// Evidence-backed issue suppresses the unbacked branching heuristic.
	require.Len(t, issues, 1)
	assert.Equal(t, []string{"ev3"}, issues[0].EvidenceIDs)
}

func TestMemoryAnalyzerFilterByHints(t *testing.T) {
	a := NewAnalyzer(domain.TrackMemory)

	leak := domain.Evidence{
		ID:       "ev4",
		File:     "src/cache.py",
		Range:    domain.LineRange{Start: 8, End: 8},
		RuleID:   "python.resource.file-not-closed",
		Message:  "File handle opened without close",
		Severity: domain.SeverityMedium,
		Source:   "semgrep",
	}

	issues, err := a.Analyze(context.Background(), testUnit(), []domain.Evidence{leak, sqlEvidence()})
	require.NoError(t, err)

	require.Len(t, issues, 1)
	assert.Equal(t, "ev4", issues[0].EvidenceIDs[0])
	assert.Equal(t, 0.85, issues[0].Confidence)
}

func TestStructureAnalyzerLargeChange(t *testing.T) {
	a := NewAnalyzer(domain.TrackStructure)

	unit := testUnit()
	unit.LinesChanged = 340

	issues, err := a.Analyze(context.Background(), unit, nil)
	require.NoError(t, err)

	require.Len(t, issues, 1)
	assert.Equal(t, "Large change surface", issues[0].Title)
	assert.Contains(t, issues[0].Description, "340")
}

func TestStructureAnalyzerScatteredChange(t *testing.T) {
	a := NewAnalyzer(domain.TrackStructure)

	unit := domain.AuditUnit{
		ID:           "u2",
		Label:        "billing",
		LinesChanged: 40,
	}
	for i := 0; i < 6; i++ {
		unit.Ranges = append(unit.Ranges, domain.UnitRange{
			File:  "src/billing.py",
			Range: domain.LineRange{Start: i*20 + 1, End: i*20 + 3},
		})
	}

	issues, err := a.Analyze(context.Background(), unit, nil)
	require.NoError(t, err)

	require.Len(t, issues, 1)
	assert.Equal(t, "Change scattered across many locations", issues[0].Title)
}

func TestStructureAnalyzerQuietOnSmallUnits(t *testing.T) {
	a := NewAnalyzer(domain.TrackStructure)

	issues, err := a.Analyze(context.Background(), testUnit(), nil)
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestAnalyzeHonorsCancelledContext(t *testing.T) {
	a := NewAnalyzer(domain.TrackSecurity)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Analyze(ctx, testUnit(), []domain.Evidence{sqlEvidence()})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSeverityScoreOrdering(t *testing.T) {
	assert.Greater(t, severityScore(domain.SeverityCritical), severityScore(domain.SeverityHigh))
	assert.Greater(t, severityScore(domain.SeverityHigh), severityScore(domain.SeverityMedium))
	assert.Greater(t, severityScore(domain.SeverityMedium), severityScore(domain.SeverityLow))
	assert.Greater(t, severityScore(domain.SeverityLow), severityScore("unknown"))
}
