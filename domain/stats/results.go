package stats

// ExperimentPlan is the immutable output of one planning run
type ExperimentPlan struct {
	BaselineRate float64 `json:"baseline_rate"`
	MDETarget    float64 `json:"mde_target"`
	Alpha        float64 `json:"alpha"`
	PowerTarget  float64 `json:"power_target"`

	TargetRate float64 `json:"target_rate"` // baseline * (1 + mde)
	EffectSize float64 `json:"effect_size"` // Cohen's h

	RequiredPerGroup float64 `json:"required_per_group"` // unrounded solver output
	RequiredN        int     `json:"required_n"`         // total across both groups, rounded up
	DailyVolume      int     `json:"daily_volume"`
	RequiredDays     int     `json:"required_days"`
}

// ZTestResult is the outcome of a pooled two-proportion z-test
type ZTestResult struct {
	ZStatistic float64 `json:"z_statistic"`
	PValue     float64 `json:"p_value"`

	RateA float64 `json:"rate_a"`
	RateB float64 `json:"rate_b"`

	// ObservedLift is rateB/rateA - 1. It is only meaningful when LiftDefined is true
	// (variant A has at least one success).
	ObservedLift float64 `json:"observed_lift"`
	LiftDefined  bool    `json:"lift_defined"`
}

// Interval is a closed [Lower, Upper] range
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// DefaultDecisionThreshold is the P(B > A) a confident call needs
const DefaultDecisionThreshold = 0.95

// BayesianDecision is the posterior comparison's call on shipping B
type BayesianDecision string

const (
	// DecisionConfident means B is very likely better
	DecisionConfident BayesianDecision = "confident"
	// DecisionTooEarly means B may lead but the risk is still material
	DecisionTooEarly BayesianDecision = "too_early"
)

// Decide calls B confidently better only when probBBetter strictly exceeds threshold.
// A threshold outside (0,1) falls back to DefaultDecisionThreshold.
func Decide(probBBetter, threshold float64) BayesianDecision {
	if !(threshold > 0 && threshold < 1) {
		threshold = DefaultDecisionThreshold
	}
	if probBBetter > threshold {
		return DecisionConfident
	}
	return DecisionTooEarly
}

// Summary is a one-line reading of the decision
func (d BayesianDecision) Summary() string {
	switch d {
	case DecisionConfident:
		return "confident: B is very likely better"
	case DecisionTooEarly:
		return "too early: B may lead but the risk is still material"
	default:
		return string(d)
	}
}

// BayesianResult summarises a Monte-Carlo comparison of two Beta posteriors
type BayesianResult struct {
	ProbBBetter float64 `json:"prob_b_better"`

	Decision          BayesianDecision `json:"decision"`
	DecisionThreshold float64          `json:"decision_threshold"`

	// ExpectedLossChoosingB is E[max(a - b, 0)]: the conversion rate given up on average
	// if B is shipped but A was better.
	ExpectedLossChoosingB float64 `json:"expected_loss_choosing_b"`
	ExpectedLossChoosingA float64 `json:"expected_loss_choosing_a"`

	// LiftInterval is the central 95% credible interval of b/a - 1
	LiftInterval Interval `json:"lift_interval"`
	Samples      int      `json:"samples"`
}
