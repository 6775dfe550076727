package api

import (
	"bytes"
	"net/http"
	"strconv"

	"abtrust/adapters/excel"
	"abtrust/app"
	"abtrust/domain/experiment"
	"abtrust/internal/bucketing"
	"abtrust/internal/config"
	"abtrust/internal/errors"
	"abtrust/internal/report"
	"abtrust/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExperimentHandler exposes the experiment service over HTTP
type ExperimentHandler struct {
	service  *app.ExperimentService
	defaults config.ExperimentConfig
}

// NewExperimentHandler creates a handler. Requests that omit config fields fall back to defaults.
func NewExperimentHandler(service *app.ExperimentService, defaults config.ExperimentConfig) *ExperimentHandler {
	return &ExperimentHandler{
		service:  service,
		defaults: defaults,
	}
}

type assignRequest struct {
	SubjectID string                  `json:"subject_id" binding:"required"`
	Config    config.ExperimentConfig `json:"config"`
}

type configRequest struct {
	Config config.ExperimentConfig `json:"config"`
}

type orthogonalityRequest struct {
	Config      config.ExperimentConfig `json:"config"`
	FirstLayer  string                  `json:"first_layer"`
	SecondLayer string                  `json:"second_layer"`
	Subjects    int                     `json:"subjects"`
}

// Assign handles POST /v1/assign
func (h *ExperimentHandler) Assign(c *gin.Context) {
	req := assignRequest{Config: h.baseConfig()}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	assignments, err := h.service.AssignSubject(req.Config, req.SubjectID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"subject_id":  req.SubjectID,
		"assignments": assignments,
	})
}

// Plan handles POST /v1/plan. Only the planning parameters are checked, by the planner.
func (h *ExperimentHandler) Plan(c *gin.Context) {
	req := configRequest{Config: h.baseConfig()}
	if !h.bindOptional(c, &req) {
		return
	}

	plan, err := h.service.Plan(req.Config)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

// Analyze handles POST /v1/analyze
func (h *ExperimentHandler) Analyze(c *gin.Context) {
	rep, ok := h.analyze(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, rep)
}

// Report handles POST /v1/report?format=markdown|html|xlsx|json
func (h *ExperimentHandler) Report(c *gin.Context) {
	rep, ok := h.analyze(c)
	if !ok {
		return
	}
	renderReport(c, rep)
}

// AACheck handles POST /v1/aa-check
func (h *ExperimentHandler) AACheck(c *gin.Context) {
	req := configRequest{Config: h.baseConfig()}
	if !h.bindOptional(c, &req) {
		return
	}

	result, err := h.service.RunAACheck(c.Request.Context(), req.Config)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Calibrate handles POST /v1/calibrate
func (h *ExperimentHandler) Calibrate(c *gin.Context) {
	req := app.CalibrationRequest{Config: h.baseConfig()}
	if !h.bindOptional(c, &req) {
		return
	}

	result, err := h.service.Calibrate(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Orthogonality handles POST /v1/orthogonality. It checks two configured layers
// (the first two by default) over synthetic subject ids.
func (h *ExperimentHandler) Orthogonality(c *gin.Context) {
	req := orthogonalityRequest{Config: h.baseConfig(), Subjects: 10000}
	if !h.bindOptional(c, &req) {
		return
	}
	if err := req.Config.ValidateLayers(); err != nil {
		respondError(c, err)
		return
	}
	if req.FirstLayer == "" && req.SecondLayer == "" && len(req.Config.Layers) >= 2 {
		req.FirstLayer, req.SecondLayer = req.Config.Layers[0].Name, req.Config.Layers[1].Name
	}
	if err := bucketing.ValidateCheck(req.Subjects, req.Config.Alpha); err != nil {
		respondError(c, err)
		return
	}

	first, err := layerAssigner(req.Config, req.FirstLayer)
	if err != nil {
		respondError(c, err)
		return
	}
	second, err := layerAssigner(req.Config, req.SecondLayer)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, bucketing.CheckOrthogonality(bucketing.SubjectIDs("u_", req.Subjects), first, second, req.Config.Alpha))
}

// GetRun handles GET /v1/runs/:id?format=
func (h *ExperimentHandler) GetRun(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid run ID"})
		return
	}

	rep, err := h.service.GetRun(c.Request.Context(), runID)
	if err != nil {
		respondError(c, err)
		return
	}
	renderReport(c, rep)
}

// ListRuns handles GET /v1/runs?experiment=&limit=
func (h *ExperimentHandler) ListRuns(c *gin.Context) {
	name := c.Query("experiment")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "experiment query parameter is required"})
		return
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = parsed
	}

	runs, err := h.service.ListRuns(c.Request.Context(), name, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if runs == nil {
		runs = []*models.AnalysisReport{}
	}
	c.JSON(http.StatusOK, gin.H{
		"experiment": name,
		"runs":       runs,
		"count":      len(runs),
	})
}

func (h *ExperimentHandler) analyze(c *gin.Context) (*models.AnalysisReport, bool) {
	req := app.AnalysisRequest{Config: h.baseConfig()}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return nil, false
	}

	rep, err := h.service.Analyze(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return rep, true
}

// bindOptional binds a JSON body when one is present; an empty body keeps the defaults
func (h *ExperimentHandler) bindOptional(c *gin.Context, target interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(target); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return false
	}
	return true
}

// baseConfig copies the defaults so decoding a request never writes into the shared layers
func (h *ExperimentHandler) baseConfig() config.ExperimentConfig {
	cfg := h.defaults
	cfg.Layers = append([]experiment.Layer(nil), h.defaults.Layers...)
	return cfg
}

func layerAssigner(cfg config.ExperimentConfig, name string) (*bucketing.Assigner, error) {
	layer, ok := cfg.Layer(name)
	if !ok {
		return nil, errors.InvalidParameter("layer %q is not configured", name)
	}
	return bucketing.NewEvenAssigner(layer)
}

func renderReport(c *gin.Context, rep *models.AnalysisReport) {
	switch format := c.DefaultQuery("format", "json"); format {
	case "json":
		c.JSON(http.StatusOK, rep)
	case "markdown", "md":
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(report.Markdown(rep)))
	case "html":
		c.Data(http.StatusOK, "text/html; charset=utf-8", report.HTML(rep))
	case "xlsx":
		var buf bytes.Buffer
		if _, err := excel.NewReportWriter(rep).WriteTo(&buf); err != nil {
			respondError(c, err)
			return
		}
		c.Header("Content-Disposition", "attachment; filename=\""+rep.Experiment+"_"+rep.RunID.String()+".xlsx\"")
		c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported format: " + format})
	}
}
