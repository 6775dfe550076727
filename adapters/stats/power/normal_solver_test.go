package power

import (
	"math"
	"testing"

	"abtrust/internal/errors"
)

// effect size of a 5% relative lift on a 10% baseline
const hTenPercentBaseline = 0.016486220594214118

func TestSolveRequiredN_MatchesClosedForm(t *testing.T) {
	s := NewNormalSolver()

	n, err := s.SolveRequiredN(hTenPercentBaseline, 0.05, 0.8, 1.0)
	if err != nil {
		t.Fatalf("SolveRequiredN failed: %v", err)
	}

	// ((1.959964 + 0.841621) / h)^2; the lower rejection tail shaves off a negligible amount
	if math.Abs(n-28877.89) > 1.0 {
		t.Errorf("Expected about 28877.89 per group, got %.2f", n)
	}
}

func TestSolveRequiredN_ReachesTargetPower(t *testing.T) {
	s := NewNormalSolver()
	for _, target := range []float64{0.5, 0.8, 0.9, 0.95} {
		n, err := s.SolveRequiredN(0.1, 0.05, target, 1.0)
		if err != nil {
			t.Fatalf("SolveRequiredN(%.2f) failed: %v", target, err)
		}

		p, err := s.ComputePower(0.1, n, 0.05, 1.0)
		if err != nil {
			t.Fatalf("ComputePower failed: %v", err)
		}
		if p < target || math.Abs(p-target) > 1e-6 {
			t.Errorf("target %.2f: solved n=%.2f gives power %.8f", target, n, p)
		}
	}
}

func TestSolveRequiredN_UnequalGroupsNeedMore(t *testing.T) {
	s := NewNormalSolver()
	even, err := s.SolveRequiredN(0.1, 0.05, 0.8, 1.0)
	if err != nil {
		t.Fatalf("SolveRequiredN failed: %v", err)
	}
	skewed, err := s.SolveRequiredN(0.1, 0.05, 0.8, 0.5)
	if err != nil {
		t.Fatalf("SolveRequiredN failed: %v", err)
	}

	if math.Abs(even*1.5-skewed) > 1.0 {
		t.Errorf("Expected a 2:1 split to need 1.5x the even sample, got %.2f vs %.2f", skewed, even)
	}
}

func TestSolveRequiredN_ZeroEffectIsPlanningError(t *testing.T) {
	s := NewNormalSolver()

	for _, h := range []float64{0, math.NaN()} {
		if _, err := s.SolveRequiredN(h, 0.05, 0.8, 1.0); !errors.IsPlanningError(err) {
			t.Errorf("effect %v: expected PLANNING_ERROR, got %v", h, err)
		}
	}
}

func TestSolveRequiredN_InvalidLevels(t *testing.T) {
	s := NewNormalSolver()

	tests := []struct {
		name                string
		alpha, power, ratio float64
	}{
		{"zero alpha", 0, 0.8, 1.0},
		{"power of one", 0.05, 1.0, 1.0},
		{"power below alpha", 0.2, 0.1, 1.0},
		{"negative ratio", 0.05, 0.8, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.SolveRequiredN(0.1, tt.alpha, tt.power, tt.ratio); !errors.IsInvalidParameter(err) {
				t.Errorf("Expected INVALID_PARAMETER, got %v", err)
			}
		})
	}
}

func TestSolveRequiredN_NonConvergence(t *testing.T) {
	s := &NormalSolver{MaxIterations: 3, Tolerance: 1e-12}

	if _, err := s.SolveRequiredN(0.1, 0.05, 0.8, 1.0); !errors.IsPlanningError(err) {
		t.Errorf("Expected PLANNING_ERROR, got %v", err)
	}
}

func TestComputePower_ZeroEffectEqualsAlpha(t *testing.T) {
	s := NewNormalSolver()

	p, err := s.ComputePower(0, 1000, 0.05, 1.0)
	if err != nil {
		t.Fatalf("ComputePower failed: %v", err)
	}
	if math.Abs(p-0.05) > 1e-9 {
		t.Errorf("Expected power equal to alpha, got %v", p)
	}
}

func TestComputePower_LowPowerIsNotAnError(t *testing.T) {
	s := NewNormalSolver()

	// a week of 1,000 daily users split evenly
	p, err := s.ComputePower(hTenPercentBaseline, 3500, 0.05, 1.0)
	if err != nil {
		t.Fatalf("ComputePower failed: %v", err)
	}
	if math.Abs(p-0.1641) > 1e-3 {
		t.Errorf("Expected power near 0.1641, got %.4f", p)
	}
}

func TestComputePower_RejectsBadSampleSize(t *testing.T) {
	s := NewNormalSolver()

	if _, err := s.ComputePower(0.1, 0, 0.05, 1.0); !errors.IsPlanningError(err) {
		t.Errorf("Expected PLANNING_ERROR for n=0, got %v", err)
	}
	if _, err := s.ComputePower(math.Inf(1), 100, 0.05, 1.0); !errors.IsPlanningError(err) {
		t.Errorf("Expected PLANNING_ERROR for an infinite effect, got %v", err)
	}
}
