package api

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lox/solixa/internal/blackout"
	"github.com/lox/solixa/internal/models"
	"github.com/lox/solixa/internal/risk"
)

const defaultAlertThreshold = 0.6

var phonePattern = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)

var errAlertsDisabled = errors.New("alerting is not configured")

type subscribeRequest struct {
	Phone       string   `json:"phone"`
	Lat         float64  `json:"lat"`
	Lon         float64  `json:"lon"`
	State       string   `json:"state"`
	FIPS        string   `json:"fips"`
	Facility    string   `json:"facility"`
	Sensitivity *float64 `json:"sensitivity"`
	Threshold   *float64 `json:"threshold"`
}

func (s *Server) handleSubscribe(c *gin.Context) {
	if s.deps.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": errAlertsDisabled.Error()})
		return
	}

	var body subscribeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, badRequest("invalid subscription: %v", err))
		return
	}
	phone := strings.TrimSpace(body.Phone)
	if !phonePattern.MatchString(phone) {
		writeError(c, badRequest("phone must be in E.164 format, e.g. +15551234567"))
		return
	}
	sensitivity := risk.DefaultSensitivity
	if body.Sensitivity != nil {
		sensitivity = *body.Sensitivity
	}
	if err := (blackout.Request{Lat: body.Lat, Lon: body.Lon, Sensitivity: sensitivity}).Validate(); err != nil {
		writeError(c, badRequest("%v", err))
		return
	}
	fips, err := countyFIPS(body.FIPS)
	if err != nil {
		writeError(c, err)
		return
	}
	threshold := defaultAlertThreshold
	if body.Threshold != nil {
		threshold = *body.Threshold
	}
	if threshold <= 0 || threshold > 1 {
		writeError(c, badRequest("threshold must be in (0, 1], got %g", threshold))
		return
	}

	id, err := s.deps.Store.UpsertSubscription(models.Subscription{
		ID:          uuid.NewString(),
		Phone:       phone,
		FIPS:        fips,
		State:       strings.ToUpper(strings.TrimSpace(body.State)),
		Lat:         body.Lat,
		Lon:         body.Lon,
		Facility:    body.Facility,
		Sensitivity: sensitivity,
		Threshold:   threshold,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		writeError(c, fmt.Errorf("save subscription: %w", err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id, "threshold": threshold})
}

func (s *Server) handleTestAlert(c *gin.Context) {
	if s.deps.Alerts == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": errAlertsDisabled.Error()})
		return
	}

	var body struct {
		Phone string `json:"phone"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, badRequest("invalid request: %v", err))
		return
	}
	phone := strings.TrimSpace(body.Phone)
	if !phonePattern.MatchString(phone) {
		writeError(c, badRequest("phone must be in E.164 format, e.g. +15551234567"))
		return
	}

	if err := s.deps.Alerts.Test(c.Request.Context(), phone); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}
