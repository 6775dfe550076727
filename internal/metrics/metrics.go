// Package metrics exposes assignment and audit counters to Prometheus.
package metrics

import (
	"net/http"

	"abtrust/domain/experiment"
	"abtrust/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OtherLabel replaces label values that were not configured at startup
const OtherLabel = "other"

// Recorder implements ports.MetricsRecorder on a private registry. Experiment and layer
// labels are limited to the names known at construction.
type Recorder struct {
	registry *prometheus.Registry

	experiments map[string]bool
	layers      map[string]bool

	// assignmentsTotal counts served assignments by layer and variant
	assignmentsTotal *prometheus.CounterVec

	// auditsTotal counts analyses by resulting confidence
	auditsTotal *prometheus.CounterVec

	// sectionErrorsTotal counts report sections that could not be computed
	sectionErrorsTotal *prometheus.CounterVec

	// auditScore holds the latest audit score per experiment
	auditScore *prometheus.GaugeVec
}

var _ ports.MetricsRecorder = (*Recorder)(nil)

// NewRecorder registers all collectors, plus Go runtime and process collectors.
// experiments and layers are the label values kept as-is.
func NewRecorder(experiments, layers []string) *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry:    reg,
		experiments: toSet(experiments),
		layers:      toSet(layers),
		assignmentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "abtrust_assignments_total",
			Help: "Total variant assignments by layer and variant",
		}, []string{"layer", "variant"}),
		auditsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "abtrust_audits_total",
			Help: "Total analyses by audit confidence",
		}, []string{"confidence"}),
		sectionErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "abtrust_report_section_errors_total",
			Help: "Report sections that failed to compute, by section",
		}, []string{"section"}),
		auditScore: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "abtrust_audit_score",
			Help: "Latest trust score (0-100) per experiment",
		}, []string{"experiment"}),
	}
}

// RecordAssignment implements ports.MetricsRecorder
func (r *Recorder) RecordAssignment(a experiment.Assignment) {
	r.assignmentsTotal.WithLabelValues(bounded(r.layers, a.Layer), variantLabel(a.Variant)).Inc()
}

// RecordAnalysis implements ports.MetricsRecorder
func (r *Recorder) RecordAnalysis(experimentName string, score int, confidence string, failedSections []string) {
	r.auditsTotal.WithLabelValues(confidence).Inc()
	r.auditScore.WithLabelValues(bounded(r.experiments, experimentName)).Set(float64(score))
	for _, section := range failedSections {
		r.sectionErrorsTotal.WithLabelValues(section).Inc()
	}
}

// Registry returns the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

func bounded(known map[string]bool, value string) string {
	if known[value] {
		return value
	}
	return OtherLabel
}

func variantLabel(v experiment.Variant) string {
	switch v {
	case experiment.VariantA, experiment.VariantB:
		return string(v)
	default:
		return OtherLabel
	}
}
