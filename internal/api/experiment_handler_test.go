package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"abtrust/adapters/rng"
	"abtrust/adapters/stats/power"
	"abtrust/app"
	"abtrust/domain/stats"
	"abtrust/internal/audit"
	"abtrust/internal/bucketing"
	"abtrust/internal/config"
	"abtrust/internal/errors"
	"abtrust/internal/planning"
	"abtrust/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)

	service := app.NewExperimentService(
		planning.NewPlanner(power.NewNormalSolver()),
		audit.NewAuditor(audit.DefaultThresholds()),
		rng.ForSeed,
		nil,
		nil,
	)
	defaults := config.DefaultExperimentConfig()
	defaults.Seed = 42

	router := gin.New()
	RegisterRoutes(router, NewExperimentHandler(service, defaults))
	return router
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

const highConfidenceBody = `{"counts":{"variant_a":{"n":30000,"successes":3000},"variant_b":{"n":30000,"successes":3300}}}`

func TestAssign(t *testing.T) {
	router := setupTestRouter()

	w := doJSON(router, http.MethodPost, "/v1/assign", `{"subject_id":"user_42"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		SubjectID   string `json:"subject_id"`
		Assignments []struct {
			Layer   string `json:"layer"`
			Variant string `json:"variant"`
		} `json:"assignments"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, "user_42", resp.SubjectID)
	require.Len(t, resp.Assignments, 2)
	assert.Equal(t, "L2", resp.Assignments[1].Layer)
	assert.Equal(t, "A", resp.Assignments[1].Variant)
}

func TestAssign_MissingSubject(t *testing.T) {
	router := setupTestRouter()

	w := doJSON(router, http.MethodPost, "/v1/assign", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPlan_Defaults(t *testing.T) {
	router := setupTestRouter()

	w := doJSON(router, http.MethodPost, "/v1/plan", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var plan stats.ExperimentPlan
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &plan))
	assert.Equal(t, 57756, plan.RequiredN)
	assert.Equal(t, 58, plan.RequiredDays)
}

func TestPlan_OverridesAndErrors(t *testing.T) {
	router := setupTestRouter()

	w := doJSON(router, http.MethodPost, "/v1/plan", `{"config":{"daily_volume":57756}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var plan stats.ExperimentPlan
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &plan))
	assert.Equal(t, 1, plan.RequiredDays)

	w = doJSON(router, http.MethodPost, "/v1/plan", `{"config":{"baseline_rate":1.5}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), errors.CodeInvalidParameter)

	w = doJSON(router, http.MethodPost, "/v1/plan", `{"config":{"mde_target":10}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), errors.CodeInvalidParameter)

	w = doJSON(router, http.MethodPost, "/v1/plan", `{"config":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPlan_RequestDoesNotLeakIntoDefaults(t *testing.T) {
	router := setupTestRouter()

	w := doJSON(router, http.MethodPost, "/v1/assign",
		`{"subject_id":"u","config":{"layers":[{"name":"X","salt":"Y"}],"primary_layer":"X"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(router, http.MethodPost, "/v1/assign", `{"subject_id":"user_42"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"layer":"L1"`)
	assert.NotContains(t, w.Body.String(), `"layer":"X"`)
}

func TestAnalyze(t *testing.T) {
	router := setupTestRouter()

	w := doJSON(router, http.MethodPost, "/v1/analyze", highConfidenceBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var report models.AnalysisReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	require.NotNil(t, report.Audit)
	assert.Equal(t, 100, report.Audit.Score)
	assert.Equal(t, "high", string(report.Audit.Confidence))
	assert.Equal(t, "L1", report.Layer)
	assert.NotEqual(t, uuid.Nil, report.RunID)
}

func TestAnalyze_BadBaselineStillAnalyzes(t *testing.T) {
	router := setupTestRouter()

	for _, baseline := range []string{"0", "1.2"} {
		body := `{"config":{"baseline_rate":` + baseline + `},` +
			`"counts":{"variant_a":{"n":1000,"successes":100},"variant_b":{"n":1000,"successes":150}}}`
		w := doJSON(router, http.MethodPost, "/v1/analyze", body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var report models.AnalysisReport
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
		assert.Nil(t, report.Plan, baseline)
		assert.Contains(t, report.PlanError, "baseline rate", baseline)
		assert.NotNil(t, report.Test, baseline)
		require.NotNil(t, report.Bayes, baseline)
		assert.Equal(t, stats.DecisionConfident, report.Bayes.Decision, baseline)
		assert.Nil(t, report.Audit, baseline)
	}

	w := doJSON(router, http.MethodPost, "/v1/assign", `{"subject_id":"user_42","config":{"baseline_rate":0}}`)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestWorkSizeLimits(t *testing.T) {
	router := setupTestRouter()

	cases := []struct {
		path string
		body string
	}{
		{"/v1/analyze", `{"config":{"monte_carlo_samples":2000000000}}`},
		{"/v1/aa-check", `{"config":{"aa_sample_size":2000000000}}`},
		{"/v1/calibrate", `{"trials":2000000000}`},
		{"/v1/calibrate", `{"subjects":2000000000}`},
		{"/v1/calibrate", `{"workers":100000}`},
		{"/v1/orthogonality", `{"subjects":2000000000}`},
		{"/v1/orthogonality", `{"config":{"alpha":0}}`},
	}

	for _, tc := range cases {
		w := doJSON(router, http.MethodPost, tc.path, tc.body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "%s %s: %s", tc.path, tc.body, w.Body.String())
	}
}

func TestAnalyze_InvalidCounts(t *testing.T) {
	router := setupTestRouter()

	w := doJSON(router, http.MethodPost, "/v1/analyze",
		`{"counts":{"variant_a":{"n":10,"successes":20},"variant_b":{"n":10,"successes":1}}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), errors.CodeInvalidParameter)
}

func TestReport_Formats(t *testing.T) {
	router := setupTestRouter()

	w := doJSON(router, http.MethodPost, "/v1/report?format=markdown", highConfidenceBody)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/markdown")
	assert.Contains(t, w.Body.String(), "trust score **100/100**")

	w = doJSON(router, http.MethodPost, "/v1/report?format=html", highConfidenceBody)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "<table>")

	w = doJSON(router, http.MethodPost, "/v1/report?format=xlsx", highConfidenceBody)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")), "xlsx is a zip archive")

	w = doJSON(router, http.MethodPost, "/v1/report?format=pdf", highConfidenceBody)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAACheck(t *testing.T) {
	router := setupTestRouter()

	w := doJSON(router, http.MethodPost, "/v1/aa-check", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result app.AACheckResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 5000, result.Subjects)
	assert.Equal(t, 5000, result.Counts.Total())
	assert.Equal(t, "L1", result.Layer)
}

func TestCalibrate(t *testing.T) {
	router := setupTestRouter()

	w := doJSON(router, http.MethodPost, "/v1/calibrate", `{"trials":50,"subjects":2000,"workers":2}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result app.CalibrationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 50, result.Trials)
	assert.Equal(t, 2000, result.GroupA+result.GroupB)

	w = doJSON(router, http.MethodPost, "/v1/calibrate", `{"trials":-1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOrthogonality(t *testing.T) {
	router := setupTestRouter()

	w := doJSON(router, http.MethodPost, "/v1/orthogonality", `{"subjects":20000}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var report bucketing.OrthogonalityReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, "L1", report.FirstLayer)
	assert.Equal(t, "L2", report.SecondLayer)
	assert.Equal(t, 20000, report.Subjects)

	w = doJSON(router, http.MethodPost, "/v1/orthogonality", `{"first_layer":"L1","second_layer":"L9"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRuns_WithoutPersistence(t *testing.T) {
	router := setupTestRouter()

	w := doJSON(router, http.MethodGet, fmt.Sprintf("/v1/runs/%s", uuid.New()), "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(router, http.MethodGet, "/v1/runs/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodGet, "/v1/runs?experiment=default", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":0`)

	w = doJSON(router, http.MethodGet, "/v1/runs", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodGet, "/v1/runs?experiment=default&limit=x", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{errors.InvalidParameter("x"), http.StatusBadRequest},
		{errors.InvalidInput("x"), http.StatusBadRequest},
		{errors.ConfigInvalid("x"), http.StatusBadRequest},
		{errors.PlanningError("x"), http.StatusUnprocessableEntity},
		{errors.InsufficientData("x"), http.StatusUnprocessableEntity},
		{errors.NotFound("run"), http.StatusNotFound},
		{errors.Wrap(errors.NotFound("run"), "lookup"), http.StatusNotFound},
		{errors.DatabaseError("x"), http.StatusInternalServerError},
		{fmt.Errorf("plain"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
