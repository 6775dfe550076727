package app

import (
	"context"
	"fmt"
	"log"
	"math"
	"runtime"

	"abtrust/domain/experiment"
	"abtrust/domain/stats"
	"abtrust/internal/bucketing"
	"abtrust/internal/config"
	"abtrust/internal/errors"
	"abtrust/internal/inference"
	"abtrust/internal/testkit"

	summary "github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultCalibrationTrials is the number of simulated A/A experiments per calibration
const DefaultCalibrationTrials = 1000

// Calibration work limits
const (
	MaxCalibrationTrials   = 100_000
	MaxCalibrationSubjects = config.MaxAASampleSize
	MaxCalibrationWorkers  = 256
)

// AACheckResult is the outcome of one simulated A/A experiment
type AACheckResult struct {
	Layer    string                     `json:"layer"`
	Subjects int                        `json:"subjects"`
	Counts   experiment.AggregateCounts `json:"counts"`
	Test     stats.ZTestResult          `json:"test"`
	Alpha    float64                    `json:"alpha"`
	Passed   bool                       `json:"passed"`
}

// RunAACheck simulates cfg.AASampleSize subjects with no true difference through the
// primary layer's assigner and tests them. The check passes when the test does not
// reject at cfg.Alpha.
func (s *ExperimentService) RunAACheck(ctx context.Context, cfg config.ExperimentConfig) (*AACheckResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := validateSimulationRates(cfg); err != nil {
		return nil, err
	}

	primary := cfg.Primary()
	generator, err := testkit.NewTrafficGenerator(testkit.TrafficGeneratorConfig{
		DailyVolume:   cfg.AASampleSize,
		Days:          1,
		BaselineRate:  cfg.BaselineRate,
		TrueLift:      0,
		Layers:        []experiment.Layer{primary},
		EffectLayer:   primary.Name,
		SubjectPrefix: "u_",
	}, s.rngFor(cfg.Seed))
	if err != nil {
		return nil, err
	}

	observations, err := generator.Observations(ctx)
	if err != nil {
		return nil, err
	}

	assigner, err := bucketing.NewEvenAssigner(primary)
	if err != nil {
		return nil, err
	}
	counts := experiment.Aggregate(observations, assigner)

	test, err := inference.ZTest(counts.A, counts.B)
	if err != nil {
		return nil, errors.Wrap(err, "A/A check could not be tested")
	}

	result := &AACheckResult{
		Layer:    primary.Name,
		Subjects: cfg.AASampleSize,
		Counts:   counts,
		Test:     test,
		Alpha:    cfg.Alpha,
		Passed:   test.PValue >= cfg.Alpha,
	}
	log.Printf("[ExperimentService] A/A check on %s with %d subjects: p = %.4f, passed=%v",
		primary.Name, cfg.AASampleSize, test.PValue, result.Passed)
	return result, nil
}

// CalibrationRequest configures a batch of simulated A/A experiments. Zero values fall back
// to DefaultCalibrationTrials, cfg.AASampleSize and one worker per CPU.
type CalibrationRequest struct {
	Config   config.ExperimentConfig `json:"config"`
	Trials   int                     `json:"trials"`
	Subjects int                     `json:"subjects"`
	Workers  int                     `json:"workers"`
}

// CalibrationResult summarises the false-positive behaviour of the significance test
type CalibrationResult struct {
	Trials        int     `json:"trials"`
	Subjects      int     `json:"subjects"`
	GroupA        int     `json:"group_a"`
	GroupB        int     `json:"group_b"`
	Alpha         float64 `json:"alpha"`
	Rejections    int     `json:"rejections"`
	RejectionRate float64 `json:"rejection_rate"`
	MeanPValue    float64 `json:"mean_p_value"`
	MedianPValue  float64 `json:"median_p_value"`

	// Calibrated is true when the rejection rate lies within three binomial standard
	// errors of alpha
	Calibrated bool `json:"calibrated"`
}

// Calibrate assigns the subjects once, then runs independent A/A trials in parallel, each
// drawing both groups' successes at the baseline rate from its own random stream.
func (s *ExperimentService) Calibrate(ctx context.Context, req CalibrationRequest) (*CalibrationResult, error) {
	cfg := req.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := validateSimulationRates(cfg); err != nil {
		return nil, err
	}

	trials := req.Trials
	if trials == 0 {
		trials = DefaultCalibrationTrials
	}
	subjects := req.Subjects
	if subjects == 0 {
		subjects = cfg.AASampleSize
	}
	workers := req.Workers
	if workers == 0 {
		workers = min(runtime.NumCPU(), MaxCalibrationWorkers)
	}
	if trials < 0 || subjects < 2 || workers < 0 {
		return nil, errors.InvalidParameter("calibration needs positive trials (%d), at least 2 subjects (%d) and workers (%d)",
			trials, subjects, workers)
	}
	if trials > MaxCalibrationTrials || subjects > MaxCalibrationSubjects || workers > MaxCalibrationWorkers {
		return nil, errors.InvalidParameter("calibration is limited to %d trials, %d subjects and %d workers (got %d, %d, %d)",
			MaxCalibrationTrials, MaxCalibrationSubjects, MaxCalibrationWorkers, trials, subjects, workers)
	}

	nA, nB, err := s.groupSizes(ctx, cfg.Primary(), subjects, workers)
	if err != nil {
		return nil, err
	}
	if nA == 0 || nB == 0 {
		return nil, errors.InsufficientData("all %d subjects landed in one variant", subjects)
	}

	rng := s.rngFor(cfg.Seed)
	pValues := make([]float64, trials)
	sem := semaphore.NewWeighted(int64(workers))
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < trials; i++ {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)

			src := rng.Stream(fmt.Sprintf("calibration_trial_%d", i))
			successesA := distuv.Binomial{N: float64(nA), P: cfg.BaselineRate, Src: src}.Rand()
			successesB := distuv.Binomial{N: float64(nB), P: cfg.BaselineRate, Src: src}.Rand()

			test, err := inference.ZTest(
				experiment.GroupCounts{N: nA, Successes: int(successesA)},
				experiment.GroupCounts{N: nB, Successes: int(successesB)},
			)
			if err != nil {
				return errors.Wrapf(err, "calibration trial %d", i)
			}
			pValues[i] = test.PValue
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return summarizeCalibration(pValues, cfg.Alpha, subjects, nA, nB)
}

// validateSimulationRates checks the two planning parameters a simulated A/A run uses
func validateSimulationRates(cfg config.ExperimentConfig) error {
	if !(cfg.BaselineRate > 0 && cfg.BaselineRate < 1) {
		return errors.InvalidParameter("baseline rate %v must be in (0,1)", cfg.BaselineRate)
	}
	if !(cfg.Alpha > 0 && cfg.Alpha < 1) {
		return errors.InvalidParameter("alpha %v must be in (0,1)", cfg.Alpha)
	}
	return nil
}

func (s *ExperimentService) groupSizes(ctx context.Context, layer experiment.Layer, subjects, workers int) (int, int, error) {
	assigner, err := bucketing.NewEvenAssigner(layer)
	if err != nil {
		return 0, 0, err
	}

	assignments, err := bucketing.AssignBatch(ctx, bucketing.SubjectIDs("u_", subjects), []*bucketing.Assigner{assigner}, workers)
	if err != nil {
		return 0, 0, err
	}

	nA, nB := 0, 0
	for _, a := range assignments {
		switch a.Variant {
		case experiment.VariantA:
			nA++
		case experiment.VariantB:
			nB++
		}
	}
	return nA, nB, nil
}

func summarizeCalibration(pValues []float64, alpha float64, subjects, nA, nB int) (*CalibrationResult, error) {
	result := &CalibrationResult{
		Trials:   len(pValues),
		Subjects: subjects,
		GroupA:   nA,
		GroupB:   nB,
		Alpha:    alpha,
	}
	if len(pValues) == 0 {
		return result, nil
	}

	for _, p := range pValues {
		if p < alpha {
			result.Rejections++
		}
	}
	result.RejectionRate = float64(result.Rejections) / float64(len(pValues))

	mean, err := summary.Mean(pValues)
	if err != nil {
		return nil, errors.Wrap(err, "failed to summarise p-values")
	}
	median, err := summary.Median(pValues)
	if err != nil {
		return nil, errors.Wrap(err, "failed to summarise p-values")
	}
	result.MeanPValue = mean
	result.MedianPValue = median

	se := math.Sqrt(alpha * (1 - alpha) / float64(len(pValues)))
	result.Calibrated = math.Abs(result.RejectionRate-alpha) <= 3*se

	log.Printf("[ExperimentService] Calibration over %d trials: rejection rate %.4f (alpha %.2f), mean p %.3f",
		result.Trials, result.RejectionRate, alpha, mean)
	return result, nil
}
