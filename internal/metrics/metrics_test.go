package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"abtrust/domain/experiment"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestRecorder() *Recorder {
	return NewRecorder([]string{"checkout"}, []string{"L1", "L2"})
}

func TestRecorder_RecordAssignment(t *testing.T) {
	r := newTestRecorder()

	r.RecordAssignment(experiment.Assignment{SubjectID: "u1", Layer: "L1", Variant: experiment.VariantA})
	r.RecordAssignment(experiment.Assignment{SubjectID: "u2", Layer: "L1", Variant: experiment.VariantA})
	r.RecordAssignment(experiment.Assignment{SubjectID: "u3", Layer: "L1", Variant: experiment.VariantB})

	if got := testutil.ToFloat64(r.assignmentsTotal.WithLabelValues("L1", "A")); got != 2 {
		t.Errorf("Expected 2 assignments to L1/A, got %v", got)
	}
	if got := testutil.ToFloat64(r.assignmentsTotal.WithLabelValues("L1", "B")); got != 1 {
		t.Errorf("Expected 1 assignment to L1/B, got %v", got)
	}
}

func TestRecorder_RecordAnalysis(t *testing.T) {
	r := newTestRecorder()

	r.RecordAnalysis("checkout", 60, "low", []string{"plan"})
	r.RecordAnalysis("checkout", 100, "high", nil)

	if got := testutil.ToFloat64(r.auditScore.WithLabelValues("checkout")); got != 100 {
		t.Errorf("Expected latest score 100, got %v", got)
	}
	if got := testutil.ToFloat64(r.auditsTotal.WithLabelValues("low")); got != 1 {
		t.Errorf("Expected 1 low-confidence audit, got %v", got)
	}
	if got := testutil.ToFloat64(r.auditsTotal.WithLabelValues("high")); got != 1 {
		t.Errorf("Expected 1 high-confidence audit, got %v", got)
	}
	if got := testutil.ToFloat64(r.sectionErrorsTotal.WithLabelValues("plan")); got != 1 {
		t.Errorf("Expected 1 plan section error, got %v", got)
	}
}

func TestRecorder_UnknownLabelsCollapse(t *testing.T) {
	r := newTestRecorder()

	for i := 0; i < 50; i++ {
		name := "exp_" + strings.Repeat("x", i)
		r.RecordAnalysis(name, 30, "low", nil)
		r.RecordAssignment(experiment.Assignment{SubjectID: "u", Layer: name, Variant: "C"})
	}

	if n := testutil.CollectAndCount(r.auditScore); n != 1 {
		t.Errorf("Expected a single score series, got %d", n)
	}
	if n := testutil.CollectAndCount(r.assignmentsTotal); n != 1 {
		t.Errorf("Expected a single assignment series, got %d", n)
	}
	if got := testutil.ToFloat64(r.assignmentsTotal.WithLabelValues(OtherLabel, OtherLabel)); got != 50 {
		t.Errorf("Expected 50 assignments under %q, got %v", OtherLabel, got)
	}
}

func TestRecorder_Handler(t *testing.T) {
	r := newTestRecorder()
	r.RecordAnalysis("checkout", 70, "medium", nil)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `abtrust_audit_score{experiment="checkout"} 70`) {
		t.Error("Expected the checkout score in the exposition")
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("Expected Go runtime collectors in the exposition")
	}
}
