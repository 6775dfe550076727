package ports

import "abtrust/domain/experiment"

// MetricsRecorder receives operational signals from assignment and analysis
type MetricsRecorder interface {
	RecordAssignment(assignment experiment.Assignment)
	RecordAnalysis(experimentName string, score int, confidence string, failedSections []string)
}

// NoopMetrics discards everything
type NoopMetrics struct{}

func (NoopMetrics) RecordAssignment(experiment.Assignment) {}

func (NoopMetrics) RecordAnalysis(string, int, string, []string) {}
