package api

import (
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lox/solixa/internal/anomaly"
	"github.com/lox/solixa/internal/assistant"
	"github.com/lox/solixa/internal/forecast"
	"github.com/lox/solixa/internal/httputil"
	"github.com/lox/solixa/internal/stormrisk"
	"github.com/lox/solixa/internal/telemetry"
)

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// statusFor maps a domain error onto an HTTP status.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errBadRequest),
		errors.Is(err, telemetry.ErrEmptyInput),
		errors.Is(err, telemetry.ErrUnreadable),
		errors.Is(err, telemetry.ErrMissingColumn),
		errors.Is(err, telemetry.ErrNoValidRows),
		errors.Is(err, anomaly.ErrInvalidContamination),
		errors.Is(err, forecast.ErrUnknownModel):
		return http.StatusBadRequest
	case errors.Is(err, forecast.ErrInsufficientData),
		errors.Is(err, anomaly.ErrNoEfficiencyData),
		stormrisk.Untrainable(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, httputil.ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, assistant.ErrNotConfigured):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("api: %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// finite returns nil for NaN and infinities so they encode as JSON null.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
