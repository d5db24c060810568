package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Core/validation"
	metrics "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Metrics"
	api_models "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Models/api"
)

// APIKeyHeader carries the shared device secret
const APIKeyHeader = "x-api-key"

// APIKeyContextKey stores the presented key for downstream handlers
const APIKeyContextKey = "api_key"

// APIKeyAuth rejects requests whose x-api-key does not match the shared
// secret before the body is read.
func APIKeyAuth(v *validation.Validator, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(APIKeyHeader)
		if err := v.Authenticate(key); err != nil {
			m.IngestResult(metrics.ResultUnauthorized)
			c.AbortWithStatusJSON(http.StatusUnauthorized, api_models.ErrorResponse{
				Success: false,
				Error:   err.Error(),
			})
			return
		}

		c.Set(APIKeyContextKey, key)
		c.Next()
	}
}

// GetAPIKeyFromGinContext returns the key accepted by APIKeyAuth
func GetAPIKeyFromGinContext(c *gin.Context) string {
	return c.GetString(APIKeyContextKey)
}
