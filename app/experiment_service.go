package app

import (
	"context"
	"log"
	"time"

	"abtrust/domain/experiment"
	"abtrust/domain/stats"
	"abtrust/internal/audit"
	"abtrust/internal/bucketing"
	"abtrust/internal/config"
	"abtrust/internal/errors"
	"abtrust/internal/inference"
	"abtrust/internal/planning"
	"abtrust/models"
	"abtrust/ports"

	"github.com/google/uuid"
)

// Report section names, used for error accounting
const (
	SectionPlan  = "plan"
	SectionTest  = "test"
	SectionBayes = "bayes"
	SectionAudit = "audit"
)

// RNGProvider returns the random streams for an experiment seed (0 = unseeded)
type RNGProvider func(seed int64) ports.RNGPort

// ExperimentService runs the planning, inference and audit lenses over an experiment
type ExperimentService struct {
	planner *planning.Planner
	auditor *audit.Auditor
	rngFor  RNGProvider
	repo    ports.AuditRunRepository // optional
	metrics ports.MetricsRecorder
	now     func() time.Time
}

// AnalysisRequest pairs an experiment definition with a snapshot of its counts
type AnalysisRequest struct {
	Config config.ExperimentConfig    `json:"config"`
	Counts experiment.AggregateCounts `json:"counts"`
}

// NewExperimentService creates the service. repo may be nil to disable persistence and
// metrics may be nil to disable recording.
func NewExperimentService(
	planner *planning.Planner,
	auditor *audit.Auditor,
	rngFor RNGProvider,
	repo ports.AuditRunRepository,
	metrics ports.MetricsRecorder,
) *ExperimentService {
	if metrics == nil {
		metrics = ports.NoopMetrics{}
	}
	return &ExperimentService{
		planner: planner,
		auditor: auditor,
		rngFor:  rngFor,
		repo:    repo,
		metrics: metrics,
		now:     time.Now,
	}
}

// Plan sizes the experiment described by cfg. Out-of-domain parameters fail with
// INVALID_PARAMETER.
func (s *ExperimentService) Plan(cfg config.ExperimentConfig) (stats.ExperimentPlan, error) {
	return s.planner.Plan(cfg.PlanInput())
}

// AssignSubject returns the subject's variant in every configured layer. Only the layer
// definitions are checked.
func (s *ExperimentService) AssignSubject(cfg config.ExperimentConfig, subjectID string) ([]experiment.Assignment, error) {
	if err := cfg.ValidateLayers(); err != nil {
		return nil, err
	}

	assignments := make([]experiment.Assignment, 0, len(cfg.Layers))
	for _, layer := range cfg.Layers {
		a, err := bucketing.NewEvenAssigner(layer)
		if err != nil {
			return nil, err
		}
		assignment := a.Assign(subjectID)
		s.metrics.RecordAssignment(assignment)
		assignments = append(assignments, assignment)
	}
	return assignments, nil
}

// Analyze produces a report for the primary layer. Every section is computed on its own:
// a failure is captured on the report and the remaining sections still run. The audit
// needs a plan, a test result and the power at the live sample, and is blocked otherwise.
func (s *ExperimentService) Analyze(ctx context.Context, req AnalysisRequest) (*models.AnalysisReport, error) {
	cfg := req.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := req.Counts.Validate(); err != nil {
		return nil, err
	}

	report := &models.AnalysisReport{
		RunID:      uuid.New(),
		CreatedAt:  s.now().UTC(),
		Experiment: cfg.Name,
		Layer:      cfg.PrimaryLayer,
		Counts:     req.Counts,
	}
	var failed []string

	if plan, err := s.Plan(cfg); err != nil {
		report.PlanError = err.Error()
		failed = append(failed, SectionPlan)
	} else {
		report.Plan = &plan
	}

	if test, err := inference.ZTest(req.Counts.A, req.Counts.B); err != nil {
		report.TestError = err.Error()
		failed = append(failed, SectionTest)
	} else {
		report.Test = &test
	}

	comparer := &inference.BayesianComparer{
		Samples:   cfg.MonteCarloSamples,
		Threshold: cfg.DecisionThreshold,
		RNG:       s.rngFor(cfg.Seed),
	}
	if bayes, err := comparer.Compare(ctx, req.Counts.A, req.Counts.B); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		report.BayesError = err.Error()
		failed = append(failed, SectionBayes)
	} else {
		report.Bayes = &bayes
	}

	if err := s.audit(report); err != nil {
		report.AuditError = err.Error()
		failed = append(failed, SectionAudit)
	}

	s.metrics.RecordAnalysis(report.Experiment, report.Score(), string(report.Confidence()), failed)
	log.Printf("[ExperimentService] Run %s for %s/%s: score %d (%s), %d section(s) failed",
		report.RunID, report.Experiment, report.Layer, report.Score(), report.Confidence(), len(failed))

	if s.repo != nil {
		if err := s.repo.SaveRun(ctx, report); err != nil {
			log.Printf("[ExperimentService] ⚠️ Failed to persist run %s: %v", report.RunID, err)
		}
	}

	return report, nil
}

func (s *ExperimentService) audit(report *models.AnalysisReport) error {
	if report.Plan == nil {
		return errors.PlanningError("audit blocked: no experiment plan (%s)", report.PlanError)
	}
	if report.Test == nil {
		return errors.InsufficientData("audit blocked: no significance test (%s)", report.TestError)
	}

	liveN := report.Counts.Total()
	power, err := s.planner.PowerAt(*report.Plan, liveN)
	if err != nil {
		return errors.Wrap(err, "audit blocked: power at the live sample is unavailable")
	}
	report.PowerAtLiveN = &power

	result := s.auditor.Audit(audit.Input{
		LiveN:        liveN,
		RequiredN:    report.Plan.RequiredN,
		PowerAtLiveN: power,
		PValue:       report.Test.PValue,
	})
	report.Audit = &result
	return nil
}

// AnalyzeObservations aggregates a source's observations on the primary layer and analyzes them
func (s *ExperimentService) AnalyzeObservations(ctx context.Context, cfg config.ExperimentConfig, source ports.ObservationSource) (*models.AnalysisReport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	observations, err := source.Observations(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read observations")
	}

	assigner, err := bucketing.NewEvenAssigner(cfg.Primary())
	if err != nil {
		return nil, err
	}
	counts := experiment.Aggregate(observations, assigner)
	log.Printf("[ExperimentService] Aggregated %d observations on layer %s: A=%s B=%s",
		len(observations), assigner.LayerName(), counts.A, counts.B)

	return s.Analyze(ctx, AnalysisRequest{Config: cfg, Counts: counts})
}

// GetRun loads a persisted report
func (s *ExperimentService) GetRun(ctx context.Context, runID uuid.UUID) (*models.AnalysisReport, error) {
	if s.repo == nil {
		return nil, errors.NotFound("audit run (persistence disabled)")
	}
	return s.repo.GetRun(ctx, runID)
}

// ListRuns returns recent persisted reports for an experiment
func (s *ExperimentService) ListRuns(ctx context.Context, experimentName string, limit int) ([]*models.AnalysisReport, error) {
	if s.repo == nil {
		return nil, nil
	}
	return s.repo.ListRuns(ctx, experimentName, limit)
}
