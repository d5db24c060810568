package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	readings "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.ApiService/implementation/readings"
	"gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Core/validation"
	api_models "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Models/api"
	interfaces "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Repository/Interfaces"
)

// respondError maps domain errors onto status codes and the JSON error
// envelope. fallback is the error text used for unexpected failures.
func respondError(ctx *gin.Context, err error, fallback string) {
	var verr *validation.ValidationError
	switch {
	case errors.Is(err, validation.ErrUnauthorized):
		ctx.JSON(http.StatusUnauthorized, api_models.ErrorResponse{Error: err.Error()})
	case errors.As(err, &verr):
		ctx.JSON(http.StatusBadRequest, api_models.ErrorResponse{
			Error:   err.Error(),
			Message: verr.Kind.Error(),
			Fields:  verr.Fields,
		})
	case errors.Is(err, interfaces.ErrNotFound):
		ctx.JSON(http.StatusNotFound, api_models.ErrorResponse{
			Error:   "No data available",
			Message: "No sensor readings found in database",
		})
	case errors.Is(err, readings.ErrStorage):
		ctx.JSON(http.StatusInternalServerError, api_models.ErrorResponse{Error: fallback, Message: err.Error()})
	default:
		_ = ctx.Error(err)
		ctx.JSON(http.StatusInternalServerError, api_models.ErrorResponse{Error: fallback, Message: err.Error()})
	}
}
