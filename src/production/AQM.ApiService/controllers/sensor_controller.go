package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	readings "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.ApiService/implementation/readings"
	"gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.ApiService/middleware"
	"gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Core/airquality"
	"gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Core/validation"
	logger "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Logger"
	metrics "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Metrics"
	api_models "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Models/api"
)

// SensorDataPrefix is where the dashboard expects the sensor routes
const SensorDataPrefix = "/api/sensor-data"

// SensorController handles ingestion and dashboard queries
type SensorController struct {
	ingest    *readings.IngestService
	query     *readings.QueryService
	validator *validation.Validator
	metrics   *metrics.Metrics
	logger    *logger.Logger
}

// NewSensorController creates a new sensor controller
func NewSensorController(ingest *readings.IngestService, query *readings.QueryService, validator *validation.Validator, m *metrics.Metrics, logger *logger.Logger) *SensorController {
	return &SensorController{
		ingest:    ingest,
		query:     query,
		validator: validator,
		metrics:   m,
		logger:    logger,
	}
}

// RegisterRoutes mounts the sensor routes under SensorDataPrefix and at the root
func (c *SensorController) RegisterRoutes(router *gin.Engine) {
	for _, group := range []*gin.RouterGroup{router.Group(SensorDataPrefix), &router.RouterGroup} {
		group.POST("/ingest", middleware.APIKeyAuth(c.validator, c.metrics), c.Ingest)
		group.GET("/current", c.Current)
		group.GET("/historical", c.Historical)
		group.GET("/hourly", c.Hourly)
		group.GET("/status", c.Status)
	}
}

func (c *SensorController) Ingest(ctx *gin.Context) {
	var payload map[string]interface{}
	dec := json.NewDecoder(ctx.Request.Body)
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		c.logger.Logger.Warn().Err(err).Msg("Unreadable ingestion body")
		respondError(ctx, fmt.Errorf("invalid JSON body: %w", err), "Failed to store data")
		return
	}

	meta := validation.RequestMeta{
		IPAddress: clientAddress(ctx),
		UserAgent: ctx.GetHeader("User-Agent"),
	}

	res, err := c.ingest.Ingest(ctx.Request.Context(), payload, middleware.GetAPIKeyFromGinContext(ctx), meta)
	if err != nil {
		respondError(ctx, err, "Failed to store data")
		return
	}

	ctx.JSON(http.StatusOK, api_models.IngestResponse{
		Success:   true,
		Message:   "Sensor data stored successfully",
		ID:        res.ID,
		Timestamp: res.Reading.Timestamp,
	})
}

func (c *SensorController) Current(ctx *gin.Context) {
	r, err := c.query.Latest(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err, "Failed to fetch data")
		return
	}

	ctx.JSON(http.StatusOK, api_models.CurrentResponse{
		Success: true,
		Data: &api_models.CurrentReading{
			Reading:     *r,
			AQICategory: string(airquality.Categorize(r.AQI).Category),
		},
		Message: "Latest sensor data retrieved successfully",
	})
}

func (c *SensorController) Historical(ctx *gin.Context) {
	hours, limit := c.query.ParseRangeParams(ctx.Query("hours"), ctx.Query("limit"))

	rr, err := c.query.Range(ctx.Request.Context(), hours, limit)
	if err != nil {
		respondError(ctx, err, "Failed to fetch historical data")
		return
	}

	ctx.JSON(http.StatusOK, api_models.HistoricalResponse{
		Success: true,
		Data:    rr.Readings,
		Meta:    historicalMeta(rr),
		Message: fmt.Sprintf("Retrieved %d sensor readings from the last %d hours", len(rr.Readings), rr.Hours),
	})
}

func (c *SensorController) Hourly(ctx *gin.Context) {
	hours, limit := c.query.ParseRangeParams(ctx.Query("hours"), ctx.Query("limit"))

	hr, err := c.query.Hourly(ctx.Request.Context(), hours, limit)
	if err != nil {
		respondError(ctx, err, "Failed to fetch hourly data")
		return
	}

	ctx.JSON(http.StatusOK, api_models.HourlyResponse{
		Success: true,
		Data:    hr.Buckets,
		Meta: api_models.HourlyMeta{
			HistoricalMeta: historicalMeta(&hr.RangeResult),
			Buckets:        len(hr.Buckets),
			Mode:           string(hr.Mode),
		},
		Message: fmt.Sprintf("Aggregated %d sensor readings into %d hourly buckets", len(hr.Readings), len(hr.Buckets)),
	})
}

func (c *SensorController) Status(ctx *gin.Context) {
	st, err := c.query.Status(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err, "Failed to fetch sensor status")
		return
	}

	fleet := api_models.FleetStatus{
		Liveness:          st.Liveness,
		LastReadingAt:     st.LastReadingAt,
		StaleAfterSeconds: st.StaleAfter.Seconds(),
		Alerts:            []string{},
	}
	if st.Latest != nil {
		band := airquality.Categorize(st.Latest.AQI)
		normal := airquality.IsNormal(*st.Latest)
		fleet.AQICategory = string(band.Category)
		fleet.AQILabel = band.Label
		fleet.Alerts = airquality.Alerts(*st.Latest)
		fleet.Normal = &normal
	}

	ctx.JSON(http.StatusOK, api_models.StatusResponse{
		Success: true,
		Data:    fleet,
		Message: fmt.Sprintf("Sensor is %s", st.Liveness),
	})
}

func historicalMeta(rr *readings.RangeResult) api_models.HistoricalMeta {
	return api_models.HistoricalMeta{
		Count:     len(rr.Readings),
		Hours:     rr.Hours,
		Limit:     rr.Limit,
		StartTime: rr.StartTime,
		EndTime:   rr.EndTime,
	}
}

// clientAddress reads the proxy supplied client address, empty when absent
func clientAddress(ctx *gin.Context) string {
	if v := ctx.GetHeader("X-Forwarded-For"); v != "" {
		return v
	}
	if v := ctx.GetHeader("X-Real-IP"); v != "" {
		return v
	}
	return ""
}
