// Package audit scores how far an experiment readout can be trusted.
package audit

import (
	"fmt"

	"abtrust/domain/verdict"
)

// Thresholds configures the three weighted checks and the confidence bands
type Thresholds struct {
	SampleWeight       int     `json:"sample_weight"`
	PowerWeight        int     `json:"power_weight"`
	SignificanceWeight int     `json:"significance_weight"`
	MinPower           float64 `json:"min_power"`
	Alpha              float64 `json:"alpha"`
	MediumScore        int     `json:"medium_score"`
}

// DefaultThresholds returns the 40/30/30 weighting with power ≥ 0.8 and p < 0.05
func DefaultThresholds() Thresholds {
	return Thresholds{
		SampleWeight:       40,
		PowerWeight:        30,
		SignificanceWeight: 30,
		MinPower:           0.8,
		Alpha:              0.05,
		MediumScore:        70,
	}
}

// MaxScore is the score reached when every check passes
func (t Thresholds) MaxScore() int {
	return t.SampleWeight + t.PowerWeight + t.SignificanceWeight
}

// Input is the live state of an experiment at audit time
type Input struct {
	LiveN        int     `json:"live_n"`
	RequiredN    int     `json:"required_n"`
	PowerAtLiveN float64 `json:"power_at_live_n"`
	PValue       float64 `json:"p_value"`
}

// Auditor applies a fixed set of thresholds
type Auditor struct {
	thresholds Thresholds
}

// NewAuditor creates an auditor with the given thresholds
func NewAuditor(thresholds Thresholds) *Auditor {
	return &Auditor{thresholds: thresholds}
}

// Thresholds returns the auditor's configuration
func (a *Auditor) Thresholds() Thresholds {
	return a.thresholds
}

// Audit runs every check and maps the summed weight to a confidence level.
// The same input always yields the same result, explanations included.
func (a *Auditor) Audit(in Input) verdict.AuditResult {
	checks := []verdict.Check{
		a.sampleCheck(in),
		a.powerCheck(in),
		a.significanceCheck(in),
	}

	score := 0
	for _, c := range checks {
		if c.Passed {
			score += c.Weight
		}
	}

	confidence := a.confidenceFor(score)
	return verdict.AuditResult{
		Score:      score,
		Checks:     checks,
		Confidence: confidence,
		Action:     confidence.Action(),
	}
}

// Audit runs the default auditor
func Audit(in Input) verdict.AuditResult {
	return NewAuditor(DefaultThresholds()).Audit(in)
}

func (a *Auditor) confidenceFor(score int) verdict.Confidence {
	switch {
	case score >= a.thresholds.MaxScore():
		return verdict.ConfidenceHigh
	case score >= a.thresholds.MediumScore:
		return verdict.ConfidenceMedium
	default:
		return verdict.ConfidenceLow
	}
}

func (a *Auditor) sampleCheck(in Input) verdict.Check {
	check := verdict.Check{
		Name:   verdict.CheckSampleSufficiency,
		Passed: in.LiveN >= in.RequiredN,
		Weight: a.thresholds.SampleWeight,
	}
	if check.Passed {
		check.Explanation = fmt.Sprintf(
			"Sample sufficient: %d of %d planned subjects collected. The run reached its planned horizon, so the readout is not a product of peeking.",
			in.LiveN, in.RequiredN)
		return check
	}

	check.Explanation = fmt.Sprintf(
		"Sample insufficient: only %.1f%% of the planned %d subjects collected (%d). Stopping now is peeking; an early significant result may be random fluctuation and inflates the false positive rate.",
		progress(in.LiveN, in.RequiredN), in.RequiredN, in.LiveN)
	return check
}

func (a *Auditor) powerCheck(in Input) verdict.Check {
	check := verdict.Check{
		Name:   verdict.CheckPowerSufficiency,
		Passed: in.PowerAtLiveN >= a.thresholds.MinPower,
		Weight: a.thresholds.PowerWeight,
	}
	if check.Passed {
		check.Explanation = fmt.Sprintf(
			"Power sufficient: %.1f%% chance of detecting the target effect at the current sample (threshold %.0f%%). The observed lift is a stable estimate.",
			in.PowerAtLiveN*100, a.thresholds.MinPower*100)
		return check
	}

	check.Explanation = fmt.Sprintf(
		"Low power: only %.1f%% chance of detecting the target effect (threshold %.0f%%). Beware the winner's curse: a result that is significant under low power usually overstates the true lift.",
		in.PowerAtLiveN*100, a.thresholds.MinPower*100)
	return check
}

func (a *Auditor) significanceCheck(in Input) verdict.Check {
	check := verdict.Check{
		Name:   verdict.CheckSignificance,
		Passed: in.PValue < a.thresholds.Alpha,
		Weight: a.thresholds.SignificanceWeight,
	}
	if check.Passed {
		check.Explanation = fmt.Sprintf(
			"Significant: p = %.4f is below alpha = %.2f, so the null hypothesis of no difference is rejected.",
			in.PValue, a.thresholds.Alpha)
		return check
	}

	check.Explanation = fmt.Sprintf(
		"Not significant: p = %.4f is not below alpha = %.2f; the difference is within the range of random error.",
		in.PValue, a.thresholds.Alpha)
	return check
}

func progress(live, required int) float64 {
	if required <= 0 {
		return 100
	}
	return float64(live) / float64(required) * 100
}
