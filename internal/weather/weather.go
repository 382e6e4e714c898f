// Package weather fetches hourly forecasts from Open-Meteo and active alerts
// from the US National Weather Service, and reduces them to a 0-1 risk.
package weather

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/lox/solixa/internal/config"
	"github.com/lox/solixa/internal/httputil"
)

const requestTimeout = 15 * time.Second

type Client struct {
	http        *http.Client
	forecastURL string
	alertsURL   string
	hours       int
	// MaxElapsed bounds retries per call.
	MaxElapsed time.Duration
}

func NewClient(cfg config.WeatherConfig) *Client {
	hours := cfg.Hours
	if hours <= 0 {
		hours = 72
	}
	return &Client{
		http:        httputil.NewClientWithUserAgent(requestTimeout, cfg.UserAgent),
		forecastURL: cfg.OpenMeteoURL,
		alertsURL:   cfg.NWSURL,
		hours:       hours,
		MaxElapsed:  httputil.DefaultMaxElapsed,
	}
}

// Hourly holds Open-Meteo hourly series. Missing hours decode as null.
type Hourly struct {
	Time          []string   `json:"time"`
	Temperature   []*float64 `json:"temperature_2m"`
	Precipitation []*float64 `json:"precipitation"`
	WindSpeed     []*float64 `json:"wind_speed_10m"`
	WindGusts     []*float64 `json:"wind_gusts_10m"`
}

type Forecast struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Hourly    Hourly  `json:"hourly"`
}

// Forecast fetches the next hours of forecast for a point; hours <= 0 uses
// the configured default.
func (c *Client) Forecast(ctx context.Context, lat, lon float64, hours int) (*Forecast, error) {
	if hours <= 0 {
		hours = c.hours
	}
	q := url.Values{}
	q.Set("latitude", formatCoord(lat))
	q.Set("longitude", formatCoord(lon))
	q.Set("hourly", "temperature_2m,precipitation,wind_speed_10m,wind_gusts_10m")
	q.Set("forecast_hours", strconv.Itoa(hours))
	q.Set("timezone", "UTC")

	var fc Forecast
	if err := httputil.GetJSON(ctx, c.http, "open_meteo", c.forecastURL+"?"+q.Encode(), c.MaxElapsed, &fc); err != nil {
		return nil, fmt.Errorf("weather forecast: %w", err)
	}
	return &fc, nil
}

type AlertProperties struct {
	Event    string `json:"event"`
	Severity string `json:"severity"`
	Headline string `json:"headline"`
	Expires  string `json:"expires"`
}

type AlertFeature struct {
	ID         string          `json:"id"`
	Properties AlertProperties `json:"properties"`
}

// Alerts is the NWS active-alerts GeoJSON feature collection.
type Alerts struct {
	Features []AlertFeature `json:"features"`
}

func (c *Client) Alerts(ctx context.Context, lat, lon float64) (*Alerts, error) {
	q := url.Values{}
	q.Set("point", formatCoord(lat)+","+formatCoord(lon))

	var alerts Alerts
	if err := httputil.GetJSON(ctx, c.http, "nws_alerts", c.alertsURL+"?"+q.Encode(), c.MaxElapsed, &alerts); err != nil {
		return nil, fmt.Errorf("weather alerts: %w", err)
	}
	return &alerts, nil
}

// Summary is the weather contribution to blackout risk.
type Summary struct {
	MaxWind      float64  `json:"max_wind"`
	MaxGust      float64  `json:"max_gust"`
	MaxPrecip    float64  `json:"max_precip"`
	ActiveAlerts int      `json:"active_alerts"`
	AlertEvents  []string `json:"alert_events,omitempty"`
	Risk         float64  `json:"weather_risk"`
}

// Summarize scores a forecast and alert set. Either may be nil.
func Summarize(fc *Forecast, alerts *Alerts) Summary {
	var s Summary
	if fc != nil {
		s.MaxWind = maxOf(fc.Hourly.WindSpeed)
		s.MaxGust = maxOf(fc.Hourly.WindGusts)
		s.MaxPrecip = maxOf(fc.Hourly.Precipitation)
	}
	if alerts != nil {
		s.ActiveAlerts = len(alerts.Features)
		for _, f := range alerts.Features {
			if f.Properties.Event != "" {
				s.AlertEvents = append(s.AlertEvents, f.Properties.Event)
			}
		}
	}

	wind := math.Min(math.Max(s.MaxWind/25, s.MaxGust/35), 1)
	precip := math.Min(s.MaxPrecip/10, 1)
	alert := math.Min(float64(s.ActiveAlerts)/3, 1)
	s.Risk = math.Round((0.4*wind+0.3*precip+0.3*alert)*1e4) / 1e4
	return s
}

func maxOf(vals []*float64) float64 {
	m := 0.0
	first := true
	for _, v := range vals {
		if v == nil || math.IsNaN(*v) {
			continue
		}
		if first || *v > m {
			m = *v
			first = false
		}
	}
	return m
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
