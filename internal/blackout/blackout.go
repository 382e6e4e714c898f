// Package blackout assembles a location's blackout risk from live weather,
// outage history and the county storm model.
package blackout

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lox/solixa/internal/outage"
	"github.com/lox/solixa/internal/risk"
	"github.com/lox/solixa/internal/weather"
)

// WeatherSource is satisfied by *weather.Client.
type WeatherSource interface {
	Forecast(ctx context.Context, lat, lon float64, hours int) (*weather.Forecast, error)
	Alerts(ctx context.Context, lat, lon float64) (*weather.Alerts, error)
}

// CountySource is satisfied by *stormrisk.Service.
type CountySource interface {
	CountyRisk(ctx context.Context, fips string) (float64, error)
}

type Request struct {
	Lat            float64
	Lon            float64
	State          string
	FIPS           string
	Facility       string
	Sensitivity    float64
	AnomalyDensity float64
}

func (r Request) Validate() error {
	if math.IsNaN(r.Lat) || r.Lat < -90 || r.Lat > 90 {
		return fmt.Errorf("latitude %g out of range", r.Lat)
	}
	if math.IsNaN(r.Lon) || r.Lon < -180 || r.Lon > 180 {
		return fmt.Errorf("longitude %g out of range", r.Lon)
	}
	if r.AnomalyDensity < 0 || r.AnomalyDensity > 1 {
		return fmt.Errorf("anomaly density %g outside [0, 1]", r.AnomalyDensity)
	}
	if math.IsNaN(r.Sensitivity) || r.Sensitivity < 0 || r.Sensitivity > 2 {
		return fmt.Errorf("sensitivity %g outside [0, 2]", r.Sensitivity)
	}
	return nil
}

type Result struct {
	Assessment risk.Assessment `json:"assessment"`
	Weather    weather.Summary `json:"weather"`
	Outage     outage.Summary  `json:"outages"`
	CountyRisk float64         `json:"county_risk"`
}

type Service struct {
	weather    WeatherSource
	outages    *outage.History
	counties   CountySource
	outageDays int
	now        func() time.Time
}

func NewService(w WeatherSource, outages *outage.History, counties CountySource, outageDays int) *Service {
	if outages == nil {
		outages = &outage.History{}
	}
	return &Service{weather: w, outages: outages, counties: counties, outageDays: outageDays, now: time.Now}
}

// Outages summarizes outage history for a state.
func (s *Service) Outages(state string, days int) outage.Summary {
	if days <= 0 {
		days = s.outageDays
	}
	return s.outages.Summarize(state, days, s.now().UTC())
}

// Recent lists recent incidents for a state.
func (s *Service) Recent(state string, days int) []outage.Incident {
	if days <= 0 {
		days = s.outageDays
	}
	return s.outages.Recent(state, days, s.now().UTC())
}

// Weather fetches forecast and alerts concurrently and summarizes them.
func (s *Service) Weather(ctx context.Context, lat, lon float64, hours int) (weather.Summary, error) {
	var (
		fc     *weather.Forecast
		alerts *weather.Alerts
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		fc, err = s.weather.Forecast(gctx, lat, lon, hours)
		return err
	})
	g.Go(func() error {
		var err error
		alerts, err = s.weather.Alerts(gctx, lat, lon)
		return err
	})
	if err := g.Wait(); err != nil {
		return weather.Summary{}, err
	}
	return weather.Summarize(fc, alerts), nil
}

// Assess gathers every input concurrently and combines them.
func (s *Service) Assess(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	res := &Result{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w, err := s.Weather(gctx, req.Lat, req.Lon, 0)
		res.Weather = w
		return err
	})
	g.Go(func() error {
		res.Outage = s.Outages(req.State, 0)
		return nil
	})
	if req.FIPS != "" && s.counties != nil {
		g.Go(func() error {
			r, err := s.counties.CountyRisk(gctx, req.FIPS)
			res.CountyRisk = r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res.Assessment = risk.Combine(risk.Inputs{
		Weather:        res.Weather,
		Outage:         res.Outage,
		AnomalyDensity: req.AnomalyDensity,
		MLRisk:         res.CountyRisk,
		FacilityType:   req.Facility,
		Sensitivity:    req.Sensitivity,
	})
	return res, nil
}
