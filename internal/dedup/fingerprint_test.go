package dedup

import (
	"testing"

	"github.com/rickgao/orderbook-relay/internal/model"
)

func sampleLevels() []model.BookLevel {
	return []model.BookLevel{
		{Type: 2, Price: 1.08520, Volume: 30, VolumeDbl: 30},
		{Type: 2, Price: 1.08510, Volume: 10, VolumeDbl: 10},
		{Type: 1, Price: 1.08490, Volume: 20, VolumeDbl: 20},
		{Type: 1, Price: 1.08480, Volume: 50, VolumeDbl: 50},
	}
}

func TestCompute_Deterministic(t *testing.T) {
	a := Compute(sampleLevels())
	b := Compute(sampleLevels())

	if !a.Valid() {
		t.Fatal("fingerprint of non-empty snapshot should be valid")
	}
	if !Equal(a, b) {
		t.Errorf("identical snapshots produced different fingerprints: %s vs %s", a, b)
	}
	if a.Levels() != 4 {
		t.Errorf("Levels() = %d, want 4", a.Levels())
	}
}

func TestCompute_ChangeSensitivity(t *testing.T) {
	base := Compute(sampleLevels())

	tests := []struct {
		name   string
		mutate func([]model.BookLevel) []model.BookLevel
	}{
		{"volume of one level", func(l []model.BookLevel) []model.BookLevel { l[2].Volume++; return l }},
		{"price of one level", func(l []model.BookLevel) []model.BookLevel { l[0].Price = 1.08530; return l }},
		{"type of one level", func(l []model.BookLevel) []model.BookLevel { l[1].Type = 1; return l }},
		{"level order", func(l []model.BookLevel) []model.BookLevel { l[0], l[1] = l[1], l[0]; return l }},
		{"level removed", func(l []model.BookLevel) []model.BookLevel { return l[:3] }},
		{"level added", func(l []model.BookLevel) []model.BookLevel {
			return append(l, model.BookLevel{Type: 1, Price: 1.0847, Volume: 5})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(tt.mutate(sampleLevels()))
			if Equal(base, got) {
				t.Errorf("fingerprint unchanged after mutation: %s", got)
			}
		})
	}
}

func TestCompute_IgnoresVolumeDbl(t *testing.T) {
	levels := sampleLevels()
	levels[0].VolumeDbl = 30.75

	if !Equal(Compute(sampleLevels()), Compute(levels)) {
		t.Error("VolumeDbl should not take part in the fingerprint")
	}
}

func TestCompute_EmptyIsSentinel(t *testing.T) {
	for _, levels := range [][]model.BookLevel{nil, {}} {
		fp := Compute(levels)
		if fp.Valid() {
			t.Errorf("Compute(%v) should be the sentinel", levels)
		}
		if fp != None {
			t.Errorf("Compute(%v) = %s, want None", levels, fp)
		}
	}
}

func TestEqual_SentinelNeverEqual(t *testing.T) {
	if Equal(None, None) {
		t.Error("sentinel compared equal to itself")
	}
	fp := Compute(sampleLevels())
	if Equal(fp, None) || Equal(None, fp) {
		t.Error("sentinel compared equal to a real fingerprint")
	}
}

func TestFingerprint_String(t *testing.T) {
	if got := None.String(); got != "none" {
		t.Errorf("None.String() = %q, want %q", got, "none")
	}
	if got := Compute(sampleLevels()).String(); len(got) < 18 {
		t.Errorf("String() = %q, too short", got)
	}
}
