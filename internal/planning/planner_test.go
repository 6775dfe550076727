package planning

import (
	"math"
	"testing"

	"abtrust/adapters/stats/power"
	"abtrust/domain/stats"
	"abtrust/internal/errors"
)

func newPlanner() *Planner {
	return NewPlanner(power.NewNormalSolver())
}

// failingSolver lets tests exercise the solver failure path
type failingSolver struct{}

func (failingSolver) SolveRequiredN(effectSize, alpha, power, ratio float64) (float64, error) {
	return 0, errors.PlanningError("solver unavailable")
}

func (failingSolver) ComputePower(effectSize, nPerGroup, alpha, ratio float64) (float64, error) {
	return 0, errors.PlanningError("solver unavailable")
}

func TestPlan_TenPercentBaselineFivePercentLift(t *testing.T) {
	plan, err := newPlanner().Plan(DefaultPlanInput(0.10, 0.05, 1000))
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	if math.Abs(plan.TargetRate-0.105) > 1e-12 {
		t.Errorf("Expected target rate 0.105, got %v", plan.TargetRate)
	}
	if math.Abs(plan.EffectSize-0.0165) > 0.0002 {
		t.Errorf("Expected effect size near 0.0165, got %v", plan.EffectSize)
	}
	if plan.RequiredN != 57756 {
		t.Errorf("Expected 57756 subjects, got %d", plan.RequiredN)
	}
	if plan.RequiredDays != 58 {
		t.Errorf("Expected 58 days, got %d", plan.RequiredDays)
	}
	if plan.Alpha != DefaultAlpha || plan.PowerTarget != DefaultPowerTarget {
		t.Errorf("Expected default alpha and power, got %v and %v", plan.Alpha, plan.PowerTarget)
	}
}

func TestPlan_RequiredNDecreasesWithMDE(t *testing.T) {
	p := newPlanner()

	previous := -1
	for _, mde := range []float64{0.01, 0.02, 0.03, 0.05, 0.08, 0.10, 0.15} {
		plan, err := p.Plan(DefaultPlanInput(0.10, mde, 1000))
		if err != nil {
			t.Fatalf("Plan failed for mde %.2f: %v", mde, err)
		}

		if previous >= 0 && plan.RequiredN >= previous {
			t.Errorf("mde %.2f requires %d, not fewer than the previous %d", mde, plan.RequiredN, previous)
		}
		previous = plan.RequiredN
	}

	small, _ := p.Plan(DefaultPlanInput(0.10, 0.05, 1000))
	large, _ := p.Plan(DefaultPlanInput(0.10, 0.10, 1000))
	if small.RequiredN <= 3*large.RequiredN {
		t.Errorf("Halving the lift should more than triple the sample: %d vs %d", small.RequiredN, large.RequiredN)
	}
}

func TestPlan_RejectsOutOfDomainInputs(t *testing.T) {
	p := newPlanner()

	cases := map[string]PlanInput{
		"baseline zero":       DefaultPlanInput(0, 0.05, 1000),
		"baseline one":        DefaultPlanInput(1, 0.05, 1000),
		"negative mde":        DefaultPlanInput(0.1, -0.05, 1000),
		"target reaches one":  DefaultPlanInput(0.5, 1.0, 1000),
		"target exceeds one":  DefaultPlanInput(0.9, 0.2, 1000),
		"zero daily volume":   DefaultPlanInput(0.1, 0.05, 0),
		"alpha out of domain": {BaselineRate: 0.1, MDETarget: 0.05, Alpha: 1.5, PowerTarget: 0.8, DailyVolume: 10},
		"power out of domain": {BaselineRate: 0.1, MDETarget: 0.05, Alpha: 0.05, PowerTarget: 0, DailyVolume: 10},
	}

	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := p.Plan(in); !errors.IsInvalidParameter(err) {
				t.Errorf("Expected INVALID_PARAMETER, got %v", err)
			}
		})
	}
}

func TestPlan_NegligibleEffectIsPlanningError(t *testing.T) {
	if _, err := newPlanner().Plan(DefaultPlanInput(0.10, 1e-14, 1000)); !errors.IsPlanningError(err) {
		t.Errorf("Expected PLANNING_ERROR, got %v", err)
	}
}

func TestPlan_SolverFailurePropagates(t *testing.T) {
	if _, err := NewPlanner(failingSolver{}).Plan(DefaultPlanInput(0.10, 0.05, 1000)); !errors.IsPlanningError(err) {
		t.Errorf("Expected PLANNING_ERROR, got %v", err)
	}
}

func TestPowerAt_RequiredNReachesTarget(t *testing.T) {
	p := newPlanner()
	plan, err := p.Plan(DefaultPlanInput(0.10, 0.05, 1000))
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	atTarget, err := p.PowerAt(plan, plan.RequiredN)
	if err != nil {
		t.Fatalf("PowerAt failed: %v", err)
	}
	if atTarget < 0.8 {
		t.Errorf("Expected power of at least 0.8 at the required sample, got %.4f", atTarget)
	}

	early, err := p.PowerAt(plan, 7000)
	if err != nil {
		t.Fatalf("PowerAt failed: %v", err)
	}
	if math.Abs(early-0.164) > 0.001 {
		t.Errorf("Expected power near 0.164 after a week, got %.4f", early)
	}
}

func TestPowerAt_FailuresAreNotZeroPower(t *testing.T) {
	p := newPlanner()
	plan := stats.ExperimentPlan{EffectSize: 0.0165, Alpha: 0.05}

	if _, err := p.PowerAt(plan, 0); !errors.IsInsufficientData(err) {
		t.Errorf("Expected INSUFFICIENT_DATA, got %v", err)
	}
	if _, err := NewPlanner(failingSolver{}).PowerAt(plan, 1000); !errors.IsPlanningError(err) {
		t.Errorf("Expected PLANNING_ERROR, got %v", err)
	}
}

func TestEffectSize_Symmetric(t *testing.T) {
	if math.Abs(EffectSize(0.10, 0.105)+EffectSize(0.105, 0.10)) > 1e-15 {
		t.Error("Effect size should flip sign when the rates swap")
	}
	if EffectSize(0.2, 0.2) != 0 {
		t.Errorf("Expected zero effect for equal rates, got %v", EffectSize(0.2, 0.2))
	}
}
