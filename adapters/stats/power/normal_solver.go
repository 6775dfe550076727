// Package power implements the PowerSolver port with a normal approximation.
package power

import (
	"math"

	"abtrust/internal/errors"
	"abtrust/ports"

	"gonum.org/v1/gonum/stat/distuv"
)

// minEffectSize is the smallest |h| the solver treats as a real effect
const minEffectSize = 1e-10

// NormalSolver solves the two-sample power equation for a standardized effect size
// under a normal approximation:
//
//	power = Φ(|h|·√(n/k) − z) + Φ(−|h|·√(n/k) − z),  z = z_{1−α/2},  k = (1 + 1/ratio)/2
//
// With equal groups k = 1 and the required size reduces to n = ((z_{1−α/2} + z_{power}) / h)².
type NormalSolver struct {
	MaxIterations int
	Tolerance     float64 // relative width at which bisection stops
}

var _ ports.PowerSolver = (*NormalSolver)(nil)

// NewNormalSolver creates a solver with default convergence settings
func NewNormalSolver() *NormalSolver {
	return &NormalSolver{
		MaxIterations: 200,
		Tolerance:     1e-9,
	}
}

// ComputePower returns the two-sided power reached with nPerGroup subjects in the first group.
// A zero effect size yields power equal to alpha, which is a valid result.
func (s *NormalSolver) ComputePower(effectSize, nPerGroup, alpha, ratio float64) (float64, error) {
	if err := validateLevels(alpha, ratio); err != nil {
		return 0, err
	}
	if math.IsNaN(effectSize) || math.IsInf(effectSize, 0) {
		return 0, errors.PlanningError("effect size %v is not finite", effectSize)
	}
	if math.IsNaN(nPerGroup) || math.IsInf(nPerGroup, 0) || nPerGroup <= 0 {
		return 0, errors.PlanningError("sample size %v must be a positive finite number", nPerGroup)
	}

	return s.power(effectSize, nPerGroup, alpha, ratio), nil
}

// SolveRequiredN returns the per-group sample size at which power first reaches the target.
// It starts from the closed-form estimate and refines it by bisection on ComputePower.
func (s *NormalSolver) SolveRequiredN(effectSize, alpha, power, ratio float64) (float64, error) {
	if err := validateLevels(alpha, ratio); err != nil {
		return 0, err
	}
	if power <= 0 || power >= 1 {
		return 0, errors.InvalidParameter("power target %v must be in (0,1)", power)
	}
	if power <= alpha {
		return 0, errors.InvalidParameter("power target %v must exceed alpha %v", power, alpha)
	}
	if math.IsNaN(effectSize) || math.Abs(effectSize) < minEffectSize {
		return 0, errors.PlanningError("effect size %v is indistinguishable from zero", effectSize)
	}

	zAlpha := distuv.UnitNormal.Quantile(1 - alpha/2)
	zPower := distuv.UnitNormal.Quantile(power)
	seed := varianceFactor(ratio) * math.Pow((zAlpha+zPower)/effectSize, 2)
	if math.IsNaN(seed) || math.IsInf(seed, 0) || seed <= 0 {
		return 0, errors.PlanningError("closed-form sample size %v is not usable", seed)
	}

	lo, hi := 0.0, seed
	iterations := 0
	for s.power(effectSize, hi, alpha, ratio) < power {
		lo = hi
		hi *= 2
		iterations++
		if iterations > s.MaxIterations || math.IsInf(hi, 0) {
			return 0, errors.PlanningError("could not bracket required sample size for effect size %v", effectSize)
		}
	}

	for hi-lo > s.Tolerance*hi {
		iterations++
		if iterations > s.MaxIterations {
			return 0, errors.PlanningError("sample size solve did not converge after %d iterations", s.MaxIterations)
		}
		mid := lo + (hi-lo)/2
		if s.power(effectSize, mid, alpha, ratio) >= power {
			hi = mid
		} else {
			lo = mid
		}
	}

	return hi, nil
}

func (s *NormalSolver) power(effectSize, nPerGroup, alpha, ratio float64) float64 {
	crit := distuv.UnitNormal.Quantile(1 - alpha/2)
	d := math.Abs(effectSize) * math.Sqrt(nPerGroup/varianceFactor(ratio))
	return distuv.UnitNormal.CDF(d-crit) + distuv.UnitNormal.CDF(-d-crit)
}

func varianceFactor(ratio float64) float64 {
	return (1 + 1/ratio) / 2
}

func validateLevels(alpha, ratio float64) error {
	if alpha <= 0 || alpha >= 1 {
		return errors.InvalidParameter("alpha %v must be in (0,1)", alpha)
	}
	if ratio <= 0 || math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return errors.InvalidParameter("group ratio %v must be positive", ratio)
	}
	return nil
}
