package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"abtrust/domain/experiment"
	"abtrust/domain/stats"
	"abtrust/domain/verdict"

	"github.com/google/uuid"
)

// AnalysisReport is one point-in-time readout of an experiment layer.
// Each section is computed independently; a failed section carries its error message
// and leaves the result nil so the remaining sections stay usable.
type AnalysisReport struct {
	RunID      uuid.UUID `json:"run_id"`
	CreatedAt  time.Time `json:"created_at"`
	Experiment string    `json:"experiment"`
	Layer      string    `json:"layer"`

	Counts experiment.AggregateCounts `json:"counts"`

	Plan      *stats.ExperimentPlan `json:"plan,omitempty"`
	PlanError string                `json:"plan_error,omitempty"`

	Test      *stats.ZTestResult `json:"test,omitempty"`
	TestError string             `json:"test_error,omitempty"`

	Bayes      *stats.BayesianResult `json:"bayes,omitempty"`
	BayesError string                `json:"bayes_error,omitempty"`

	PowerAtLiveN *float64             `json:"power_at_live_n,omitempty"`
	Audit        *verdict.AuditResult `json:"audit,omitempty"`
	AuditError   string               `json:"audit_error,omitempty"`
}

// Confidence returns the audit confidence, or low when the audit could not run
func (r *AnalysisReport) Confidence() verdict.Confidence {
	if r.Audit == nil {
		return verdict.ConfidenceLow
	}
	return r.Audit.Confidence
}

// Score returns the audit score, or 0 when the audit could not run
func (r *AnalysisReport) Score() int {
	if r.Audit == nil {
		return 0
	}
	return r.Audit.Score
}

// ReportPayload stores a full report in a PostgreSQL JSONB column
type ReportPayload AnalysisReport

// Value implements driver.Valuer interface
func (p ReportPayload) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements sql.Scanner interface
func (p *ReportPayload) Scan(value interface{}) error {
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	case nil:
		return fmt.Errorf("report payload is NULL")
	default:
		return fmt.Errorf("unsupported report payload type %T", value)
	}
	return json.Unmarshal(bytes, p)
}
