package ports

// PowerSolver is the numerics capability behind experiment planning.
// Any backend that implements both directions of the power equation can be substituted.
type PowerSolver interface {
	// SolveRequiredN returns the per-group sample size needed to reach the target power
	// for a standardized effect size. ratio is nB/nA.
	SolveRequiredN(effectSize, alpha, power, ratio float64) (float64, error)

	// ComputePower returns the power reached with nPerGroup subjects in the first group.
	ComputePower(effectSize, nPerGroup, alpha, ratio float64) (float64, error)
}
