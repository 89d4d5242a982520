package evidence_test

import (
	"testing"

	"github.com/codewatchers/reviewd/internal/domain"
	"github.com/codewatchers/reviewd/internal/evidence"
)

func unit(id string, ranges ...domain.UnitRange) domain.AuditUnit {
	return domain.AuditUnit{ID: id, Ranges: ranges}
}

func ur(file string, start, end int) domain.UnitRange {
	return domain.UnitRange{File: file, Range: domain.LineRange{Start: start, End: end}}
}

func ev(id, file string, start, end int) domain.Evidence {
	return domain.Evidence{ID: id, File: file, Range: domain.LineRange{Start: start, End: end}, RuleID: "rule"}
}

func TestMatch_AttachesByFileAndOverlap(t *testing.T) {
	authUnit := unit("auth-unit", ur("auth.py", 10, 25))
	utilsUnit := unit("utils-unit", ur("utils.py", 1, 5))

	finding := domain.Evidence{
		ID:     "ev-1",
		File:   "auth.py",
		Range:  domain.LineRange{Start: 12, End: 14},
		RuleID: "sql-injection",
	}

	result := evidence.Match([]domain.AuditUnit{authUnit, utilsUnit}, []domain.Evidence{finding})

	if got := result.ByUnit["auth-unit"]; len(got) != 1 || got[0].ID != "ev-1" {
		t.Errorf("expected ev-1 attached to auth-unit, got %v", got)
	}
	if got := result.ByUnit["utils-unit"]; len(got) != 0 {
		t.Errorf("expected nothing attached to utils-unit, got %v", got)
	}
	if len(result.Unmatched) != 0 {
		t.Errorf("expected no unmatched evidence, got %v", result.Unmatched)
	}
}

func TestMatch_ManyToMany(t *testing.T) {
	first := unit("first", ur("svc.go", 10, 20))
	second := unit("second", ur("svc.go", 21, 30))

	spanning := ev("spanning", "svc.go", 18, 23)

	result := evidence.Match([]domain.AuditUnit{first, second}, []domain.Evidence{spanning})

	if len(result.ByUnit["first"]) != 1 {
		t.Errorf("expected spanning evidence on first unit")
	}
	if len(result.ByUnit["second"]) != 1 {
		t.Errorf("expected spanning evidence on second unit")
	}
}

func TestMatch_InclusiveBoundaries(t *testing.T) {
	u := unit("u", ur("svc.go", 10, 20))

	tests := []struct {
		name  string
		ev    domain.Evidence
		match bool
	}{
		{"touching range end", ev("a", "svc.go", 20, 25), true},
		{"touching range start", ev("b", "svc.go", 5, 10), true},
		{"just past end", ev("c", "svc.go", 21, 25), false},
		{"just before start", ev("d", "svc.go", 5, 9), false},
		{"single line inside", ev("e", "svc.go", 15, 15), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := evidence.Match([]domain.AuditUnit{u}, []domain.Evidence{tt.ev})
			matched := len(result.ByUnit["u"]) == 1
			if matched != tt.match {
				t.Errorf("evidence %v: matched=%v, want %v", tt.ev.Range, matched, tt.match)
			}
		})
	}
}

func TestMatch_UnmatchedEvidenceRetained(t *testing.T) {
	u := unit("u", ur("svc.go", 10, 20))

	outside := ev("outside", "svc.go", 100, 110)
	otherFile := ev("other-file", "elsewhere.go", 12, 14)

	result := evidence.Match([]domain.AuditUnit{u}, []domain.Evidence{outside, otherFile})

	if len(result.Unmatched) != 2 {
		t.Fatalf("expected 2 unmatched findings, got %d", len(result.Unmatched))
	}
	if len(result.ByUnit["u"]) != 0 {
		t.Errorf("expected no attachment, got %v", result.ByUnit["u"])
	}
}

func TestMatch_Idempotent(t *testing.T) {
	us := []domain.AuditUnit{
		unit("a", ur("x.go", 1, 10), ur("y.go", 5, 9)),
		unit("b", ur("x.go", 20, 30)),
	}
	findings := []domain.Evidence{
		ev("1", "x.go", 8, 22),
		ev("2", "y.go", 6, 6),
		ev("3", "z.go", 1, 1),
	}

	first := evidence.Match(us, findings)
	second := evidence.Match(us, findings)

	for unitID, want := range first.ByUnit {
		got := second.ByUnit[unitID]
		if len(got) != len(want) {
			t.Fatalf("unit %s: attachment count changed between runs", unitID)
		}
		for i := range want {
			if got[i].ID != want[i].ID {
				t.Errorf("unit %s: attachment order changed between runs", unitID)
			}
		}
	}
	if len(first.Unmatched) != len(second.Unmatched) {
		t.Errorf("unmatched set changed between runs")
	}
}

func TestIndexLookup_OrderedResults(t *testing.T) {
	ix := evidence.NewIndex([]domain.AuditUnit{
		unit("late", ur("f.go", 40, 50)),
		unit("early", ur("f.go", 1, 10)),
		unit("mid", ur("f.go", 20, 30)),
	})

	ids := ix.Lookup("f.go", domain.LineRange{Start: 5, End: 45})

	want := []string{"early", "mid", "late"}
	if len(ids) != len(want) {
		t.Fatalf("expected %d matches, got %d", len(want), len(ids))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("position %d: got %s, want %s", i, ids[i], want[i])
		}
	}
}
