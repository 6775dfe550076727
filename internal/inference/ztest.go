// Package inference compares two binary-outcome variants, frequentist and Bayesian.
package inference

import (
	"math"

	"abtrust/domain/experiment"
	"abtrust/domain/stats"
	"abtrust/internal/errors"

	"gonum.org/v1/gonum/stat/distuv"
)

// ZTest runs a pooled two-sided z-test for the difference of two independent proportions.
// The statistic is signed so that a positive z means B converts better than A.
func ZTest(a, b experiment.GroupCounts) (stats.ZTestResult, error) {
	if err := a.Validate(); err != nil {
		return stats.ZTestResult{}, errors.Wrap(err, "variant A")
	}
	if err := b.Validate(); err != nil {
		return stats.ZTestResult{}, errors.Wrap(err, "variant B")
	}

	rateA, err := a.Rate()
	if err != nil {
		return stats.ZTestResult{}, errors.InsufficientData("variant A has zero observations")
	}
	rateB, err := b.Rate()
	if err != nil {
		return stats.ZTestResult{}, errors.InsufficientData("variant B has zero observations")
	}

	result := stats.ZTestResult{
		RateA:  rateA,
		RateB:  rateB,
		PValue: 1.0,
	}

	if rateA > 0 {
		result.ObservedLift = rateB/rateA - 1
		result.LiftDefined = true
	}

	pooled := float64(a.Successes+b.Successes) / float64(a.N+b.N)
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(a.N) + 1/float64(b.N)))
	if se == 0 {
		// every subject converted, or none did: the data carry no evidence of a difference
		return result, nil
	}

	result.ZStatistic = (rateB - rateA) / se
	result.PValue = 2 * distuv.UnitNormal.Survival(math.Abs(result.ZStatistic))
	return result, nil
}
