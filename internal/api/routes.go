package api

import (
	"log"
	"net/http"

	"abtrust/internal/errors"

	"github.com/gin-gonic/gin"
)

// NewRouter wires the experiment endpoints onto a gin engine
func NewRouter(handler *ExperimentHandler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	RegisterRoutes(router, handler)
	return router
}

// RegisterRoutes adds the /v1 experiment routes to an existing engine
func RegisterRoutes(router *gin.Engine, handler *ExperimentHandler) {
	v1 := router.Group("/v1")
	{
		v1.POST("/assign", handler.Assign)
		v1.POST("/plan", handler.Plan)
		v1.POST("/analyze", handler.Analyze)
		v1.POST("/report", handler.Report)
		v1.POST("/aa-check", handler.AACheck)
		v1.POST("/calibrate", handler.Calibrate)
		v1.POST("/orthogonality", handler.Orthogonality)
		v1.GET("/runs", handler.ListRuns)
		v1.GET("/runs/:id", handler.GetRun)
	}
}

// statusFor maps an application error code to an HTTP status
func statusFor(err error) int {
	switch errors.GetCode(err) {
	case errors.CodeInvalidParameter, errors.CodeInvalidInput, errors.CodeConfigInvalid:
		return http.StatusBadRequest
	case errors.CodePlanningError, errors.CodeInsufficientData:
		return http.StatusUnprocessableEntity
	case errors.CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("[API] ❌ %s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(status, gin.H{"error": "Internal server error", "code": errors.CodeInternalError})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": errors.GetCode(err)})
}
