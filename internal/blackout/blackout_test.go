package blackout

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/solixa/internal/outage"
	"github.com/lox/solixa/internal/weather"
)

type fakeWeather struct {
	wind   float64
	alerts int
	err    error
}

func (f *fakeWeather) Forecast(ctx context.Context, lat, lon float64, hours int) (*weather.Forecast, error) {
	if f.err != nil {
		return nil, f.err
	}
	w := f.wind
	return &weather.Forecast{Hourly: weather.Hourly{WindSpeed: []*float64{&w}}}, nil
}

func (f *fakeWeather) Alerts(ctx context.Context, lat, lon float64) (*weather.Alerts, error) {
	return &weather.Alerts{Features: make([]weather.AlertFeature, f.alerts)}, nil
}

type fakeCounties map[string]float64

func (f fakeCounties) CountyRisk(ctx context.Context, fips string) (float64, error) {
	return f[fips], nil
}

func newTestService(t *testing.T, w WeatherSource) *Service {
	t.Helper()
	h, err := outage.Read(strings.NewReader("date,state,customers_affected\n2024-05-01,TX,100000\n"))
	require.NoError(t, err)
	s := NewService(w, h, fakeCounties{"48201": 0.6}, 365)
	s.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	return s
}

func TestAssess(t *testing.T) {
	s := newTestService(t, &fakeWeather{wind: 25, alerts: 3})

	res, err := s.Assess(context.Background(), Request{
		Lat: 29.76, Lon: -95.37, State: "TX", FIPS: "48201", AnomalyDensity: 0.5, Sensitivity: 1,
	})
	require.NoError(t, err)

	// weather 0.4*1 + 0.3*1 = 0.7, outage 0.6*0.2 + 0.4*1 = 0.52
	assert.Equal(t, 0.7, res.Weather.Risk)
	assert.Equal(t, 0.52, res.Outage.Risk)
	assert.Equal(t, 0.6, res.CountyRisk)
	// 0.35*0.7 + 0.30*0.52 + 0.20*0.5 + 0.15*0.6
	assert.Equal(t, 0.591, res.Assessment.Score)
	assert.Equal(t, "high", res.Assessment.Level)
}

func TestAssessWithoutCounty(t *testing.T) {
	s := newTestService(t, &fakeWeather{})
	res, err := s.Assess(context.Background(), Request{Lat: 40, Lon: -100, State: "KS", Sensitivity: 1})
	require.NoError(t, err)
	assert.Zero(t, res.CountyRisk)
	assert.Zero(t, res.Assessment.Score)
}

func TestAssessWeatherError(t *testing.T) {
	boom := errors.New("boom")
	s := newTestService(t, &fakeWeather{err: boom})
	_, err := s.Assess(context.Background(), Request{Lat: 29.76, Lon: -95.37})
	assert.ErrorIs(t, err, boom)
}

func TestRequestValidate(t *testing.T) {
	assert.Error(t, Request{Lat: 91}.Validate())
	assert.Error(t, Request{Lon: -181}.Validate())
	assert.Error(t, Request{AnomalyDensity: 1.5}.Validate())
	assert.Error(t, Request{Sensitivity: 2.5}.Validate())
	assert.Error(t, Request{Sensitivity: -0.1}.Validate())
	assert.NoError(t, Request{Lat: 10, Lon: 10, Sensitivity: 0}.Validate())
	assert.NoError(t, Request{Lat: 10, Lon: 10, AnomalyDensity: 0.2}.Validate())
}
