package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lox/solixa/internal/assistant"
	"github.com/lox/solixa/internal/blackout"
	"github.com/lox/solixa/internal/risk"
	"github.com/lox/solixa/internal/stormrisk"
)

const (
	defaultCountyLimit = 50
	maxCountyLimit     = 5000
)

func (s *Server) handleWeatherSummary(c *gin.Context) {
	lat, lon, err := location(c)
	if err != nil {
		writeError(c, err)
		return
	}
	hours, err := intQuery(c, "hours", s.cfg.Weather.Hours)
	if err != nil {
		writeError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	summary, err := s.deps.Blackout.Weather(ctx, lat, lon, hours)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleOutageHistory(c *gin.Context) {
	days, err := intQuery(c, "days", s.cfg.Outage.Days)
	if err != nil {
		writeError(c, err)
		return
	}
	state := strings.TrimSpace(c.Query("state"))
	c.JSON(http.StatusOK, gin.H{
		"summary":   s.deps.Blackout.Outages(state, days),
		"incidents": s.deps.Blackout.Recent(state, days),
	})
}

// handleBlackoutRisk combines live weather, outage history and the county
// model into one score for a location.
func (s *Server) handleBlackoutRisk(c *gin.Context) {
	req, err := blackoutRequest(c)
	if err != nil {
		writeError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	res, err := s.deps.Blackout.Assess(ctx, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func blackoutRequest(c *gin.Context) (blackout.Request, error) {
	lat, lon, err := location(c)
	if err != nil {
		return blackout.Request{}, err
	}
	sensitivity, err := floatQuery(c, "sensitivity", risk.DefaultSensitivity)
	if err != nil {
		return blackout.Request{}, err
	}
	density, err := floatQuery(c, "anomaly_density", 0)
	if err != nil {
		return blackout.Request{}, err
	}
	fips, err := countyFIPS(c.Query("fips"))
	if err != nil {
		return blackout.Request{}, err
	}
	req := blackout.Request{
		Lat:            lat,
		Lon:            lon,
		State:          strings.TrimSpace(c.Query("state")),
		FIPS:           fips,
		Facility:       c.Query("facility"),
		Sensitivity:    sensitivity,
		AnomalyDensity: density,
	}
	if err := req.Validate(); err != nil {
		return blackout.Request{}, badRequest("%v", err)
	}
	return req, nil
}

func (s *Server) handleCounties(c *gin.Context) {
	limit, err := intQuery(c, "limit", defaultCountyLimit)
	if err != nil {
		writeError(c, err)
		return
	}
	if limit <= 0 || limit > maxCountyLimit {
		writeError(c, badRequest("limit must be between 1 and %d", maxCountyLimit))
		return
	}

	rows, err := s.deps.Storm.Counties(c.Request.Context(), strings.TrimSpace(c.Query("state")), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if rows == nil {
		rows = []stormrisk.CountyRisk{}
	}
	c.JSON(http.StatusOK, gin.H{"counties": rows, "count": len(rows)})
}

// handleCounty returns a county's risk row. Counties missing from the table
// score 0.
func (s *Server) handleCounty(c *gin.Context) {
	fips, err := countyFIPS(c.Param("fips"))
	if err != nil || fips == "" {
		writeError(c, badRequest("invalid county FIPS %q", c.Param("fips")))
		return
	}

	row, err := s.deps.Storm.County(c.Request.Context(), fips)
	if err != nil {
		writeError(c, err)
		return
	}
	if row == nil {
		c.JSON(http.StatusOK, gin.H{"county": stormrisk.CountyRisk{FIPS: fips}, "found": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"county": row, "found": true})
}

func (s *Server) handleModelMetrics(c *gin.Context) {
	m, err := s.deps.Storm.Metrics(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) handleModelEvaluation(c *gin.Context) {
	ev, err := s.deps.Storm.Evaluation(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

type chatRequest struct {
	FIPS     string   `json:"fips"`
	Question string   `json:"question"`
	State    string   `json:"state"`
	Facility string   `json:"facility"`
	Lat      *float64 `json:"lat"`
	Lon      *float64 `json:"lon"`
}

// handleChatCounty asks the assistant to explain a county's risk. When a
// location is given the live assessment is included in the brief.
func (s *Server) handleChatCounty(c *gin.Context) {
	if s.deps.Assistant == nil {
		writeError(c, assistant.ErrNotConfigured)
		return
	}

	var body chatRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, badRequest("invalid chat request: %v", err))
		return
	}
	fips, err := countyFIPS(body.FIPS)
	if err != nil || fips == "" {
		writeError(c, badRequest("invalid county FIPS %q", body.FIPS))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
	defer cancel()

	brief := assistant.CountyBrief{FIPS: fips, State: body.State, Question: body.Question}
	row, err := s.deps.Storm.County(ctx, fips)
	if err != nil {
		writeError(c, err)
		return
	}
	if row != nil {
		brief.County = row.County
		brief.Risk = row.Risk
		brief.MLRisk = row.MLRisk
		brief.SVI = row.SVI
		if brief.State == "" {
			brief.State = row.StateAbbr
		}
	}

	if body.Lat != nil && body.Lon != nil {
		res, err := s.deps.Blackout.Assess(ctx, blackout.Request{
			Lat:         *body.Lat,
			Lon:         *body.Lon,
			State:       brief.State,
			FIPS:        fips,
			Facility:    body.Facility,
			Sensitivity: risk.DefaultSensitivity,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		brief.Weather = &res.Weather
		brief.Outage = &res.Outage
		brief.Assessment = &res.Assessment
	}

	reply, err := s.deps.Assistant.CountySummary(ctx, brief)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fips": fips, "reply": reply})
}

func location(c *gin.Context) (float64, float64, error) {
	if c.Query("lat") == "" || c.Query("lon") == "" {
		return 0, 0, badRequest("lat and lon are required")
	}
	lat, err := floatQuery(c, "lat", 0)
	if err != nil {
		return 0, 0, err
	}
	lon, err := floatQuery(c, "lon", 0)
	if err != nil {
		return 0, 0, err
	}
	if err := (blackout.Request{Lat: lat, Lon: lon}).Validate(); err != nil {
		return 0, 0, badRequest("%v", err)
	}
	return lat, lon, nil
}

func floatQuery(c *gin.Context, key string, def float64) (float64, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, badRequest("invalid %s %q", key, raw)
	}
	return v, nil
}

func intQuery(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest("invalid %s %q", key, raw)
	}
	return v, nil
}

// countyFIPS validates a county FIPS code and pads it to five digits. An
// empty input yields an empty code.
func countyFIPS(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	if len(raw) > 5 {
		return "", badRequest("invalid county FIPS %q", raw)
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return "", badRequest("invalid county FIPS %q", raw)
		}
	}
	return strings.Repeat("0", 5-len(raw)) + raw, nil
}
