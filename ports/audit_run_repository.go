package ports

import (
	"context"

	"abtrust/models"

	"github.com/google/uuid"
)

// AuditRunRepository persists analysis reports for later review
type AuditRunRepository interface {
	// SaveRun stores a report, replacing any previous run with the same ID
	SaveRun(ctx context.Context, report *models.AnalysisReport) error

	// GetRun retrieves a report by run ID
	GetRun(ctx context.Context, runID uuid.UUID) (*models.AnalysisReport, error)

	// ListRuns returns the most recent reports for an experiment, newest first
	ListRuns(ctx context.Context, experimentName string, limit int) ([]*models.AnalysisReport, error)
}
