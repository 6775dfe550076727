package postgres

import (
	"context"
	"database/sql"
	"time"

	"abtrust/internal/errors"
	"abtrust/models"
	"abtrust/ports"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// auditRunRow maps one row of the audit_runs table
type auditRunRow struct {
	ID         uuid.UUID            `db:"id"`
	Experiment string               `db:"experiment"`
	Layer      string               `db:"layer"`
	Score      int                  `db:"score"`
	Confidence string               `db:"confidence"`
	Payload    models.ReportPayload `db:"payload"`
	CreatedAt  time.Time            `db:"created_at"`
}

// AuditRunRepositoryImpl implements AuditRunRepository for PostgreSQL
type AuditRunRepositoryImpl struct {
	db *sqlx.DB
}

// NewAuditRunRepository creates a new PostgreSQL audit run repository
func NewAuditRunRepository(db *sqlx.DB) ports.AuditRunRepository {
	return &AuditRunRepositoryImpl{db: db}
}

// SaveRun stores a report. Score and confidence are denormalised for listing.
func (r *AuditRunRepositoryImpl) SaveRun(ctx context.Context, report *models.AnalysisReport) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_runs (id, experiment, layer, score, confidence, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			score = EXCLUDED.score,
			confidence = EXCLUDED.confidence,
			payload = EXCLUDED.payload
	`, report.RunID, report.Experiment, report.Layer, report.Score(), string(report.Confidence()),
		models.ReportPayload(*report), report.CreatedAt)
	if err != nil {
		return errors.WithCode(errors.CodeDatabaseError, err)
	}
	return nil
}

// GetRun retrieves a report by run ID
func (r *AuditRunRepositoryImpl) GetRun(ctx context.Context, runID uuid.UUID) (*models.AnalysisReport, error) {
	var row auditRunRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, experiment, layer, score, confidence, payload, created_at
		FROM audit_runs
		WHERE id = $1
	`, runID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("audit run " + runID.String())
	}
	if err != nil {
		return nil, errors.WithCode(errors.CodeDatabaseError, err)
	}

	report := models.AnalysisReport(row.Payload)
	return &report, nil
}

// ListRuns returns the most recent reports for an experiment, newest first
func (r *AuditRunRepositoryImpl) ListRuns(ctx context.Context, experimentName string, limit int) ([]*models.AnalysisReport, error) {
	query := `
		SELECT id, experiment, layer, score, confidence, payload, created_at
		FROM audit_runs
		WHERE experiment = $1
		ORDER BY created_at DESC
	`

	args := []interface{}{experimentName}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	var rows []auditRunRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.WithCode(errors.CodeDatabaseError, err)
	}

	reports := make([]*models.AnalysisReport, 0, len(rows))
	for _, row := range rows {
		report := models.AnalysisReport(row.Payload)
		reports = append(reports, &report)
	}
	return reports, nil
}
