package excel

import (
	"fmt"
	"io"
	"log"

	"abtrust/domain/experiment"
	"abtrust/models"

	"github.com/xuri/excelize/v2"
)

// ReportWriter renders an analysis report as a workbook with one sheet per section
type ReportWriter struct {
	report *models.AnalysisReport
}

// NewReportWriter creates a writer for report
func NewReportWriter(report *models.AnalysisReport) *ReportWriter {
	return &ReportWriter{report: report}
}

// SaveAs writes the workbook to path
func (w *ReportWriter) SaveAs(path string) error {
	f, err := w.build()
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	log.Printf("[ReportWriter] Wrote report %s to %s", w.report.RunID, path)
	return nil
}

// WriteTo streams the workbook to out
func (w *ReportWriter) WriteTo(out io.Writer) (int64, error) {
	f, err := w.build()
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return f.WriteTo(out)
}

func (w *ReportWriter) build() (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		f.Close()
		return nil, err
	}
	for _, sheet := range []string{SheetCounts, SheetChecks, SheetPlan} {
		if _, err := f.NewSheet(sheet); err != nil {
			f.Close()
			return nil, err
		}
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, err
	}

	steps := []func(*excelize.File, int) error{
		w.writeSummary,
		w.writeCounts,
		w.writeChecks,
		w.writePlan,
	}
	for _, step := range steps {
		if err := step(f, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to build workbook: %w", err)
		}
	}
	return f, nil
}

func (w *ReportWriter) writeSummary(f *excelize.File, header int) error {
	r := w.report
	rows := [][]interface{}{
		{"Field", "Value"},
		{"Run ID", r.RunID.String()},
		{"Created", r.CreatedAt.Format("2006-01-02 15:04:05 MST")},
		{"Experiment", r.Experiment},
		{"Layer", r.Layer},
		{"Trust score", r.Score()},
		{"Confidence", string(r.Confidence())},
		{"Action", r.Confidence().Action()},
	}
	if r.Test != nil {
		rows = append(rows,
			[]interface{}{"z statistic", r.Test.ZStatistic},
			[]interface{}{"p-value", r.Test.PValue},
		)
	}
	if r.Bayes != nil {
		rows = append(rows,
			[]interface{}{"P(B > A)", r.Bayes.ProbBBetter},
			[]interface{}{"Expected loss choosing B", r.Bayes.ExpectedLossChoosingB},
			[]interface{}{"Bayesian decision", string(r.Bayes.Decision)},
			[]interface{}{"Decision threshold", r.Bayes.DecisionThreshold},
		)
	}
	if r.PowerAtLiveN != nil {
		rows = append(rows, []interface{}{"Power at live n", *r.PowerAtLiveN})
	}
	for _, e := range []struct{ name, msg string }{
		{"Plan error", r.PlanError},
		{"Test error", r.TestError},
		{"Bayes error", r.BayesError},
		{"Audit error", r.AuditError},
	} {
		if e.msg != "" {
			rows = append(rows, []interface{}{e.name, e.msg})
		}
	}

	if err := writeRows(f, SheetSummary, rows); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetSummary, "A", "A", 26); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetSummary, "B", "B", 40); err != nil {
		return err
	}
	return f.SetCellStyle(SheetSummary, "A1", "B1", header)
}

func (w *ReportWriter) writeCounts(f *excelize.File, header int) error {
	rows := [][]interface{}{{"variant", "n", "successes", "rate"}}
	for _, g := range []struct {
		variant experiment.Variant
		counts  experiment.GroupCounts
	}{
		{experiment.VariantA, w.report.Counts.A},
		{experiment.VariantB, w.report.Counts.B},
	} {
		row := []interface{}{string(g.variant), g.counts.N, g.counts.Successes, ""}
		if rate, err := g.counts.Rate(); err == nil {
			row[3] = rate
		}
		rows = append(rows, row)
	}

	if err := writeRows(f, SheetCounts, rows); err != nil {
		return err
	}
	return f.SetCellStyle(SheetCounts, "A1", "D1", header)
}

func (w *ReportWriter) writeChecks(f *excelize.File, header int) error {
	rows := [][]interface{}{{"check", "passed", "weight", "explanation"}}
	if w.report.Audit != nil {
		for _, c := range w.report.Audit.Checks {
			rows = append(rows, []interface{}{string(c.Name), passedLabel(c.Passed), c.Weight, c.Explanation})
		}
	}

	if err := writeRows(f, SheetChecks, rows); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetChecks, "D", "D", 90); err != nil {
		return err
	}
	return f.SetCellStyle(SheetChecks, "A1", "D1", header)
}

func (w *ReportWriter) writePlan(f *excelize.File, header int) error {
	rows := [][]interface{}{{"parameter", "value"}}
	if p := w.report.Plan; p != nil {
		rows = append(rows,
			[]interface{}{"baseline_rate", p.BaselineRate},
			[]interface{}{"mde_target", p.MDETarget},
			[]interface{}{"target_rate", p.TargetRate},
			[]interface{}{"alpha", p.Alpha},
			[]interface{}{"power_target", p.PowerTarget},
			[]interface{}{"effect_size", p.EffectSize},
			[]interface{}{"required_per_group", p.RequiredPerGroup},
			[]interface{}{"required_n", p.RequiredN},
			[]interface{}{"daily_volume", p.DailyVolume},
			[]interface{}{"required_days", p.RequiredDays},
		)
	}

	if err := writeRows(f, SheetPlan, rows); err != nil {
		return err
	}
	return f.SetCellStyle(SheetPlan, "A1", "B1", header)
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("sheet %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func passedLabel(passed bool) string {
	if passed {
		return "pass"
	}
	return "fail"
}
