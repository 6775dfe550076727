package inference

import (
	"context"
	"math/rand/v2"

	"abtrust/domain/experiment"
	"abtrust/domain/stats"
	"abtrust/internal/errors"
	"abtrust/ports"

	summary "github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultSamples is the number of Monte-Carlo draws per posterior
const DefaultSamples = 20000

// credibleMass is the central posterior mass reported for the lift interval
const credibleMass = 95.0

// BayesianComparer compares two Beta-Binomial posteriors under a uniform Beta(1,1) prior
type BayesianComparer struct {
	Samples int

	// Threshold is the P(B > A) above which B is called; zero means 0.95
	Threshold float64
	RNG       ports.RNGPort
}

// NewBayesianComparer creates a comparer drawing DefaultSamples from each posterior
func NewBayesianComparer(rng ports.RNGPort) *BayesianComparer {
	return &BayesianComparer{
		Samples:   DefaultSamples,
		Threshold: stats.DefaultDecisionThreshold,
		RNG:       rng,
	}
}

// Compare samples both posteriors on independent streams and summarises the paired draws
func (c *BayesianComparer) Compare(ctx context.Context, a, b experiment.GroupCounts) (stats.BayesianResult, error) {
	if err := a.Validate(); err != nil {
		return stats.BayesianResult{}, errors.Wrap(err, "variant A")
	}
	if err := b.Validate(); err != nil {
		return stats.BayesianResult{}, errors.Wrap(err, "variant B")
	}
	if c.Samples <= 0 {
		return stats.BayesianResult{}, errors.InvalidParameter("monte carlo sample count %d must be positive", c.Samples)
	}
	if c.RNG == nil {
		return stats.BayesianResult{}, errors.InvalidParameter("a random source is required")
	}
	threshold := c.Threshold
	if threshold == 0 {
		threshold = stats.DefaultDecisionThreshold
	}
	if !(threshold > 0 && threshold < 1) {
		return stats.BayesianResult{}, errors.InvalidParameter("decision threshold %v must be in (0,1)", threshold)
	}

	drawsA := make([]float64, c.Samples)
	drawsB := make([]float64, c.Samples)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return samplePosterior(ctx, a, c.RNG.Stream("posterior_a"), drawsA)
	})
	g.Go(func() error {
		return samplePosterior(ctx, b, c.RNG.Stream("posterior_b"), drawsB)
	})
	if err := g.Wait(); err != nil {
		return stats.BayesianResult{}, err
	}

	result, err := summarize(drawsA, drawsB)
	if err != nil {
		return stats.BayesianResult{}, err
	}
	result.DecisionThreshold = threshold
	result.Decision = stats.Decide(result.ProbBBetter, threshold)
	return result, nil
}

func samplePosterior(ctx context.Context, g experiment.GroupCounts, src rand.Source, out []float64) error {
	posterior := distuv.Beta{
		Alpha: float64(1 + g.Successes),
		Beta:  float64(1 + g.Failures()),
		Src:   src,
	}
	for i := range out {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		out[i] = posterior.Rand()
	}
	return nil
}

func summarize(drawsA, drawsB []float64) (stats.BayesianResult, error) {
	n := len(drawsA)
	lossB := make([]float64, n)
	lossA := make([]float64, n)
	lifts := make([]float64, 0, n)
	wins := 0

	for i := range drawsA {
		diff := drawsB[i] - drawsA[i]
		if diff > 0 {
			wins++
			lossA[i] = diff
		} else {
			lossB[i] = -diff
		}
		if drawsA[i] > 0 {
			lifts = append(lifts, drawsB[i]/drawsA[i]-1)
		}
	}

	meanLossB, err := summary.Mean(lossB)
	if err != nil {
		return stats.BayesianResult{}, errors.Wrap(err, "expected loss of choosing B")
	}
	meanLossA, err := summary.Mean(lossA)
	if err != nil {
		return stats.BayesianResult{}, errors.Wrap(err, "expected loss of choosing A")
	}

	result := stats.BayesianResult{
		ProbBBetter:           float64(wins) / float64(n),
		ExpectedLossChoosingB: meanLossB,
		ExpectedLossChoosingA: meanLossA,
		Samples:               n,
	}

	tail := (100 - credibleMass) / 2
	if lower, err := summary.Percentile(lifts, tail); err == nil {
		result.LiftInterval.Lower = lower
	}
	if upper, err := summary.Percentile(lifts, 100-tail); err == nil {
		result.LiftInterval.Upper = upper
	}

	return result, nil
}
