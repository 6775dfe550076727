package experiment

import (
	"reflect"
	"strings"
	"testing"

	"abtrust/internal/errors"
)

// prefixResolver puts subjects starting with "b" in B, "x" nowhere, everything else in A
type prefixResolver struct{ layer string }

func (r prefixResolver) LayerName() string { return r.layer }

func (r prefixResolver) VariantFor(subjectID string) Variant {
	switch {
	case strings.HasPrefix(subjectID, "b"):
		return VariantB
	case strings.HasPrefix(subjectID, "x"):
		return "C"
	default:
		return VariantA
	}
}

func TestAggregate(t *testing.T) {
	observations := []Observation{
		{SubjectID: "a1", Layer: "L2", Outcome: true},
		{SubjectID: "a2", Layer: "L2", Outcome: false},
		{SubjectID: "b1", Layer: "L2", Outcome: true},
		{SubjectID: "b2", Layer: "L2", Outcome: true},
		{SubjectID: "b3", Layer: "L2", Outcome: false},
		{SubjectID: "a3", Layer: "L1", Outcome: true},
		{SubjectID: "x1", Layer: "L2", Outcome: true},
	}

	counts := Aggregate(observations, prefixResolver{layer: "L2"})

	if counts.A != (GroupCounts{N: 2, Successes: 1}) {
		t.Errorf("Expected A = 1/2, got %s", counts.A)
	}
	if counts.B != (GroupCounts{N: 3, Successes: 2}) {
		t.Errorf("Expected B = 2/3, got %s", counts.B)
	}
	if counts.Total() != 5 {
		t.Errorf("Expected 5 exposed subjects, got %d", counts.Total())
	}
	if err := counts.Validate(); err != nil {
		t.Errorf("Unexpected validation error: %v", err)
	}
}

func TestAggregate_Empty(t *testing.T) {
	counts := Aggregate(nil, prefixResolver{layer: "L2"})
	if counts.Total() != 0 {
		t.Errorf("Expected no subjects, got %d", counts.Total())
	}

	if _, err := counts.A.Rate(); !errors.IsInsufficientData(err) {
		t.Errorf("Expected INSUFFICIENT_DATA for an empty group, got %v", err)
	}
}

func TestGroupCounts(t *testing.T) {
	g := GroupCounts{N: 200, Successes: 30}
	rate, err := g.Rate()
	if err != nil {
		t.Fatalf("Rate failed: %v", err)
	}
	if rate != 0.15 {
		t.Errorf("Expected rate 0.15, got %v", rate)
	}
	if g.Failures() != 170 {
		t.Errorf("Expected 170 failures, got %d", g.Failures())
	}
	if g.String() != "30/200" {
		t.Errorf("Expected \"30/200\", got %q", g.String())
	}

	for _, bad := range []GroupCounts{{N: 5, Successes: 6}, {N: -1}} {
		if err := bad.Validate(); !errors.IsInvalidParameter(err) {
			t.Errorf("Expected INVALID_PARAMETER for %+v, got %v", bad, err)
		}
	}

	err = AggregateCounts{A: g, B: GroupCounts{N: 1, Successes: 2}}.Validate()
	if err == nil {
		t.Fatal("Expected an error for variant B")
	}
	if !strings.Contains(err.Error(), "variant B") || errors.GetCode(err) != errors.CodeInvalidParameter {
		t.Errorf("Expected INVALID_PARAMETER naming variant B, got %s: %v", errors.GetCode(err), err)
	}
}

func TestSplitValidate(t *testing.T) {
	if err := EvenSplit().Validate(); err != nil {
		t.Errorf("Even split should be valid: %v", err)
	}
	if got := EvenSplit().Variants(); !reflect.DeepEqual(got, []Variant{VariantA, VariantB}) {
		t.Errorf("Expected [A B], got %v", got)
	}

	tests := []struct {
		name  string
		split Split
	}{
		{"empty", Split{}},
		{"unnamed", Split{{Variant: "", Weight: 100}}},
		{"zero weight", Split{{Variant: VariantA, Weight: 0}, {Variant: VariantB, Weight: 100}}},
		{"duplicate", Split{{Variant: VariantA, Weight: 50}, {Variant: VariantA, Weight: 50}}},
		{"short", Split{{Variant: VariantA, Weight: 40}, {Variant: VariantB, Weight: 50}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.split.Validate(); !errors.IsInvalidParameter(err) {
				t.Errorf("Expected INVALID_PARAMETER, got %v", err)
			}
		})
	}
}
