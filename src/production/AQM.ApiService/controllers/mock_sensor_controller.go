package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	api_models "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Models/api"
	simulator "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Simulator"
)

// MockSensorController serves synthetic readings for UI development
type MockSensorController struct {
	generator *simulator.Generator
}

func NewMockSensorController(generator *simulator.Generator) *MockSensorController {
	return &MockSensorController{generator: generator}
}

func (c *MockSensorController) RegisterRoutes(router *gin.Engine) {
	router.GET("/api/mock-sensor", c.Get)
	router.POST("/api/mock-sensor", c.Echo)
}

func (c *MockSensorController) Get(ctx *gin.Context) {
	r := c.generator.Reading(time.Now())
	ctx.JSON(http.StatusOK, api_models.MockSensorResponse{
		Success: true,
		Data: map[string]interface{}{
			"timestamp":        r.Timestamp,
			"temperature":      r.Temperature,
			"humidity":         r.Humidity,
			"aqi":              r.AQI,
			"gasConcentration": r.GasConcentration,
			"status":           r.Status,
		},
		Message: "Mock sensor data retrieved successfully",
	})
}

// Echo returns the posted body stamped with the current time. Nothing is stored.
func (c *MockSensorController) Echo(ctx *gin.Context) {
	body := map[string]interface{}{}
	if err := ctx.ShouldBindJSON(&body); err != nil {
		ctx.JSON(http.StatusInternalServerError, api_models.ErrorResponse{
			Error:   "Failed to update sensor data",
			Message: err.Error(),
		})
		return
	}

	body["timestamp"] = time.Now().UTC().Truncate(time.Millisecond)
	body["status"] = "online"

	ctx.JSON(http.StatusOK, api_models.MockSensorResponse{
		Success: true,
		Data:    body,
		Message: "Sensor data updated successfully",
	})
}
