// Package planning sizes fixed-horizon experiments before data collection starts.
package planning

import (
	"math"

	"abtrust/domain/stats"
	"abtrust/internal/errors"
	"abtrust/ports"
)

const (
	DefaultAlpha       = 0.05
	DefaultPowerTarget = 0.8

	// maxRequiredN caps plans that no real traffic source could satisfy
	maxRequiredN = 1e15
)

// PlanInput holds everything one planning run depends on
type PlanInput struct {
	BaselineRate float64 `json:"baseline_rate"`
	MDETarget    float64 `json:"mde_target"` // relative lift, 0.05 = +5%
	Alpha        float64 `json:"alpha"`
	PowerTarget  float64 `json:"power_target"`
	DailyVolume  int     `json:"daily_volume"`
}

// DefaultPlanInput fills in alpha = 0.05 and power = 0.8
func DefaultPlanInput(baselineRate, mdeTarget float64, dailyVolume int) PlanInput {
	return PlanInput{
		BaselineRate: baselineRate,
		MDETarget:    mdeTarget,
		Alpha:        DefaultAlpha,
		PowerTarget:  DefaultPowerTarget,
		DailyVolume:  dailyVolume,
	}
}

// Validate checks every input lies in its domain
func (in PlanInput) Validate() error {
	if !(in.BaselineRate > 0 && in.BaselineRate < 1) {
		return errors.InvalidParameter("baseline rate %v must be in (0,1)", in.BaselineRate)
	}
	if !(in.MDETarget > 0) || math.IsInf(in.MDETarget, 0) {
		return errors.InvalidParameter("minimum detectable effect %v must be positive", in.MDETarget)
	}
	if !(in.Alpha > 0 && in.Alpha < 1) {
		return errors.InvalidParameter("alpha %v must be in (0,1)", in.Alpha)
	}
	if !(in.PowerTarget > 0 && in.PowerTarget < 1) {
		return errors.InvalidParameter("power target %v must be in (0,1)", in.PowerTarget)
	}
	if in.DailyVolume <= 0 {
		return errors.InvalidParameter("daily volume %d must be positive", in.DailyVolume)
	}
	return nil
}

// EffectSize returns Cohen's h between a target rate p2 and a baseline p1
func EffectSize(p2, p1 float64) float64 {
	return 2*math.Asin(math.Sqrt(p2)) - 2*math.Asin(math.Sqrt(p1))
}

// Planner computes sample size and duration through a PowerSolver
type Planner struct {
	solver ports.PowerSolver
}

// NewPlanner creates a planner backed by the given numerics
func NewPlanner(solver ports.PowerSolver) *Planner {
	return &Planner{solver: solver}
}

// Plan computes the required total sample and run length for an even two-way split
func (p *Planner) Plan(in PlanInput) (stats.ExperimentPlan, error) {
	if err := in.Validate(); err != nil {
		return stats.ExperimentPlan{}, err
	}

	target := in.BaselineRate * (1 + in.MDETarget)
	if target <= 0 || target >= 1 {
		return stats.ExperimentPlan{}, errors.InvalidParameter(
			"target rate %.4f (baseline %.4f with lift %.4f) must be in (0,1)", target, in.BaselineRate, in.MDETarget)
	}

	h := EffectSize(target, in.BaselineRate)
	perGroup, err := p.solver.SolveRequiredN(h, in.Alpha, in.PowerTarget, 1.0)
	if err != nil {
		return stats.ExperimentPlan{}, errors.Wrapf(err, "cannot plan for baseline %.4f and lift %.4f", in.BaselineRate, in.MDETarget)
	}

	total := math.Ceil(2 * perGroup)
	if total > maxRequiredN {
		return stats.ExperimentPlan{}, errors.PlanningError("required sample size %.3g is not attainable", total)
	}
	requiredN := int(total)

	return stats.ExperimentPlan{
		BaselineRate:     in.BaselineRate,
		MDETarget:        in.MDETarget,
		Alpha:            in.Alpha,
		PowerTarget:      in.PowerTarget,
		TargetRate:       target,
		EffectSize:       h,
		RequiredPerGroup: perGroup,
		RequiredN:        requiredN,
		DailyVolume:      in.DailyVolume,
		RequiredDays:     (requiredN + in.DailyVolume - 1) / in.DailyVolume,
	}, nil
}

// PowerAt evaluates the plan's effect size at liveN total subjects (liveN/2 per group).
// Failures are returned as errors; a returned power is always a computed value.
func (p *Planner) PowerAt(plan stats.ExperimentPlan, liveN int) (float64, error) {
	if liveN <= 0 {
		return 0, errors.InsufficientData("no subjects have been exposed yet")
	}
	power, err := p.solver.ComputePower(plan.EffectSize, float64(liveN)/2, plan.Alpha, 1.0)
	if err != nil {
		return 0, errors.Wrapf(err, "cannot compute power at %d subjects", liveN)
	}
	return power, nil
}
