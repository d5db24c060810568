package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.ApiService/health"
	logger "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Logger"
	metrics "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Metrics"
	api_models "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Models/api"
	interfaces "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Repository/Interfaces"
)

// HealthController handles health, metrics and store check requests
type HealthController struct {
	checker   *health.HealthChecker
	inspector interfaces.StoreInspector
	backend   string
	database  string
	metrics   *metrics.Metrics
	logger    *logger.Logger
}

// NewHealthController creates a new health controller. inspector may be nil.
func NewHealthController(checker *health.HealthChecker, inspector interfaces.StoreInspector, backend, database string, m *metrics.Metrics, logger *logger.Logger) *HealthController {
	return &HealthController{
		checker:   checker,
		inspector: inspector,
		backend:   backend,
		database:  database,
		metrics:   m,
		logger:    logger,
	}
}

// RegisterRoutes registers the health routes with Gin
func (c *HealthController) RegisterRoutes(router *gin.Engine) {
	router.GET("/health/live", c.HealthLive)
	router.GET("/health/ready", c.HealthReady)
	router.GET("/metrics", gin.WrapH(c.metrics.Handler()))
	router.GET("/api/test-db", c.StoreCheck)
}

func (c *HealthController) HealthLive(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

func (c *HealthController) HealthReady(ctx *gin.Context) {
	status := c.checker.GetHealthStatus(ctx.Request.Context())
	code := http.StatusOK
	if status["status"] != "ok" {
		code = http.StatusServiceUnavailable
	}
	ctx.JSON(code, status)
}

// StoreCheck verifies connectivity and lists the collections of the store
func (c *HealthController) StoreCheck(ctx *gin.Context) {
	if err := c.checker.PingStore(ctx.Request.Context()); err != nil {
		c.logger.Logger.Error().Err(err).Str("backend", c.backend).Msg("Store connectivity check failed")
		ctx.JSON(http.StatusInternalServerError, api_models.ErrorResponse{
			Error:   "Failed to connect to " + c.backend,
			Message: err.Error(),
		})
		return
	}

	collections := []string{}
	if c.inspector != nil {
		names, err := c.inspector.Collections(ctx.Request.Context())
		if err != nil {
			ctx.JSON(http.StatusInternalServerError, api_models.ErrorResponse{
				Error:   "Failed to list collections",
				Message: err.Error(),
			})
			return
		}
		collections = names
	}

	ctx.JSON(http.StatusOK, api_models.StoreCheckResponse{
		Success:     true,
		Message:     c.backend + " connection successful!",
		Backend:     c.backend,
		Database:    c.database,
		Collections: collections,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	})
}
