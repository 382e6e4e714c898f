package api_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/solixa/internal/alerting"
	"github.com/lox/solixa/internal/api"
	"github.com/lox/solixa/internal/assistant"
	"github.com/lox/solixa/internal/blackout"
	"github.com/lox/solixa/internal/config"
	"github.com/lox/solixa/internal/httputil"
	"github.com/lox/solixa/internal/outage"
	"github.com/lox/solixa/internal/stormrisk"
	"github.com/lox/solixa/internal/store"
	"github.com/lox/solixa/internal/weather"

	_ "modernc.org/sqlite"
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s := store.New(db)
	require.NoError(t, s.Migrate())
	return s
}

type fakeWeather struct {
	wind float64
	err  error
}

func (f fakeWeather) Forecast(_ context.Context, _, _ float64, _ int) (*weather.Forecast, error) {
	if f.err != nil {
		return nil, f.err
	}
	w := f.wind
	return &weather.Forecast{Hourly: weather.Hourly{
		Time:      []string{"2024-01-01T00:00"},
		WindSpeed: []*float64{&w},
	}}, nil
}

func (f fakeWeather) Alerts(_ context.Context, _, _ float64) (*weather.Alerts, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &weather.Alerts{}, nil
}

type fakeStorm struct {
	counties map[string]stormrisk.CountyRisk
	err      error
}

func (f fakeStorm) Metrics(context.Context) (*stormrisk.Metrics, error) {
	if f.err != nil {
		return nil, f.err
	}
	auc := 0.81
	return &stormrisk.Metrics{FeatureSet: stormrisk.FeaturesExAnte, AUC: &auc, Accuracy: 0.9}, nil
}

func (f fakeStorm) Evaluation(ctx context.Context) (*stormrisk.Evaluation, error) {
	m, err := f.Metrics(ctx)
	if err != nil {
		return nil, err
	}
	return m.Evaluation(), nil
}

func (f fakeStorm) County(_ context.Context, fips string) (*stormrisk.CountyRisk, error) {
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.counties[fips]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (f fakeStorm) CountyRisk(ctx context.Context, fips string) (float64, error) {
	c, err := f.County(ctx, fips)
	if err != nil || c == nil {
		return 0, err
	}
	return c.Risk, nil
}

func (f fakeStorm) Counties(_ context.Context, _ string, _ int) ([]stormrisk.CountyRisk, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []stormrisk.CountyRisk
	for _, c := range f.counties {
		out = append(out, c)
	}
	return out, nil
}

type fakeSummarizer struct {
	got assistant.CountyBrief
}

func (f *fakeSummarizer) CountySummary(_ context.Context, brief assistant.CountyBrief) (string, error) {
	f.got = brief
	return "Stock water and fuel.", nil
}

type recordingNotifier struct {
	phones []string
}

func (n *recordingNotifier) Send(_ context.Context, phone, _ string) error {
	n.phones = append(n.phones, phone)
	return nil
}

var harris = stormrisk.CountyRisk{FIPS: "48201", County: "Harris", StateName: "Texas", StateAbbr: "TX", SVI: 0.8, SVIScored: true, MLRisk: 0.5, Events: 12, Risk: 0.59}

type testServer struct {
	srv      *api.Server
	store    *store.Store
	notifier *recordingNotifier
}

func newTestServer(t *testing.T, w blackout.WeatherSource, storm fakeStorm, summarizer api.Summarizer) *testServer {
	t.Helper()
	st := setupTestStore(t)
	bo := blackout.NewService(w, &outage.History{}, storm, 365)
	notifier := &recordingNotifier{}
	srv := api.NewServer(config.Default(), api.Deps{
		Store:     st,
		Storm:     storm,
		Blackout:  bo,
		Assistant: summarizer,
		Alerts:    alerting.NewEvaluator(st, bo, notifier),
	})
	return &testServer{srv: srv, store: st, notifier: notifier}
}

func defaultServer(t *testing.T) *testServer {
	return newTestServer(t, fakeWeather{wind: 10}, fakeStorm{counties: map[string]stormrisk.CountyRisk{"48201": harris}}, nil)
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func hourlyCSV(n int) string {
	var b strings.Builder
	b.WriteString("timestamp,ac_power\n")
	base := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		v := 10 + float64(i%24)*0.5
		if i == 30 {
			v = 900
		}
		fmt.Fprintf(&b, "%s,%.2f\n", base.Add(time.Duration(i)*time.Hour).Format("2006-01-02 15:04:05"), v)
	}
	return b.String()
}

func hourlyJSON(n int) string {
	base := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	items := make([]map[string]any, n)
	for i := range items {
		items[i] = map[string]any{
			"timestamp": base.Add(time.Duration(i) * time.Hour).Format(time.RFC3339),
			"ac_power":  10 + float64(i%5),
		}
	}
	data, _ := json.Marshal(items)
	return string(data)
}

func multipartUpload(t *testing.T, path, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealthEndpoint(t *testing.T) {
	ts := defaultServer(t)
	w := ts.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	ts := defaultServer(t)
	w := ts.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestAnalyzeMultipartCSV(t *testing.T) {
	ts := defaultServer(t)
	req := multipartUpload(t, "/api/telemetry/analyze", "plant.csv", hourlyCSV(72), map[string]string{
		"contamination": "0.05",
		"model":         "linear_regression",
	})
	w := ts.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, "plant.csv", body["filename"])
	assert.EqualValues(t, 72, body["rows"])
	assert.EqualValues(t, 0.05, body["contamination"])
	assert.Greater(t, body["anomaly_count"].(float64), 0.0)
	assert.NotEmpty(t, body["insights"])
	assert.NotEmpty(t, body["summary"])

	fc, ok := body["forecast"].(map[string]any)
	require.True(t, ok, "forecast present")
	metrics := fc["metrics"].(map[string]any)
	assert.Equal(t, "linear_regression", metrics["model_type"])
	assert.Contains(t, metrics, "r2")
	assert.Contains(t, metrics, "mape")

	runs, err := ts.store.RecentAnalysisRuns(5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, body["id"], runs[0].ID)
	assert.Equal(t, 72, runs[0].Rows)
	assert.Equal(t, "linear_regression", runs[0].Model)
}

func TestAnalyzeJSONBelowForecastMinimum(t *testing.T) {
	ts := defaultServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/telemetry/analyze", strings.NewReader(hourlyJSON(20)))
	req.Header.Set("Content-Type", "application/json")
	w := ts.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.EqualValues(t, 20, body["rows"])
	assert.NotContains(t, body, "forecast")
	assert.Contains(t, body["forecast_error"], "50")
}

func TestAnalyzeRejectsBadInput(t *testing.T) {
	ts := defaultServer(t)

	tests := []struct {
		name string
		req  func() *http.Request
		want int
	}{
		{
			name: "empty body",
			req: func() *http.Request {
				r := httptest.NewRequest(http.MethodPost, "/api/telemetry/analyze", strings.NewReader(""))
				r.Header.Set("Content-Type", "application/json")
				return r
			},
			want: http.StatusBadRequest,
		},
		{
			name: "malformed json",
			req: func() *http.Request {
				r := httptest.NewRequest(http.MethodPost, "/api/telemetry/analyze", strings.NewReader("{not json"))
				r.Header.Set("Content-Type", "application/json")
				return r
			},
			want: http.StatusBadRequest,
		},
		{
			name: "contamination out of range",
			req: func() *http.Request {
				return multipartUpload(t, "/api/telemetry/analyze", "a.csv", hourlyCSV(12), map[string]string{"contamination": "0.9"})
			},
			want: http.StatusBadRequest,
		},
		{
			name: "unknown model",
			req: func() *http.Request {
				return multipartUpload(t, "/api/telemetry/analyze", "a.csv", hourlyCSV(12), map[string]string{"model": "prophet"})
			},
			want: http.StatusBadRequest,
		},
		{
			name: "missing file field",
			req: func() *http.Request {
				var body bytes.Buffer
				mw := multipart.NewWriter(&body)
				require.NoError(t, mw.WriteField("model", "linear_regression"))
				require.NoError(t, mw.Close())
				r := httptest.NewRequest(http.MethodPost, "/api/telemetry/analyze", &body)
				r.Header.Set("Content-Type", mw.FormDataContentType())
				return r
			},
			want: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(tt.req())
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			assert.NotEmpty(t, decode(t, w)["error"])
		})
	}
}

func TestScoreBelowRequestMinimum(t *testing.T) {
	ts := defaultServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/anomalies/score?contamination=0.1", strings.NewReader(hourlyJSON(10)))
	req.Header.Set("Content-Type", "application/json")
	w := ts.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, false, body["scored"])
	assert.EqualValues(t, 0, body["anomaly_count"])
	assert.Len(t, body["readings"], 10)
}

// inverterCSV builds an inverter export with one blank AC_POWER cell.
func inverterCSV(n int) string {
	var b strings.Builder
	b.WriteString("SOURCE_KEY,DATE_TIME,AC_POWER,DC_POWER\n")
	base := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		ac := fmt.Sprintf("%.1f", 50+float64(i%6))
		if i == 7 {
			ac = ""
		}
		fmt.Fprintf(&b, "INV-1,%s,%s,%.1f\n", base.Add(time.Duration(i)*15*time.Minute).Format("2006-01-02 15:04"), ac, 600+float64(i%6)*10)
	}
	return b.String()
}

func TestScoreNonFiniteReadings(t *testing.T) {
	ts := defaultServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/anomalies/score?contamination=0.1", strings.NewReader(inverterCSV(40)))
	req.Header.Set("Content-Type", "text/csv")
	w := ts.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, false, body["scored"])
	assert.EqualValues(t, 0, body["anomaly_count"])
	assert.Contains(t, body["detection_error"], "non-finite")
	readings := body["readings"].([]any)
	require.Len(t, readings, 40)
	assert.Nil(t, readings[7].(map[string]any)["value"])
}

func TestEfficiencyWithoutEfficiencyData(t *testing.T) {
	ts := defaultServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/anomalies/efficiency", strings.NewReader(hourlyJSON(30)))
	req.Header.Set("Content-Type", "application/json")
	w := ts.do(req)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
}

func TestBlackoutRisk(t *testing.T) {
	ts := defaultServer(t)
	w := ts.do(httptest.NewRequest(http.MethodGet, "/api/blackout/risk?lat=29.76&lon=-95.37&state=TX&fips=48201&facility=hospital", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.InDelta(t, 0.59, body["county_risk"], 1e-9)

	assessment := body["assessment"].(map[string]any)
	score := assessment["blackout_risk"].(float64)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
	components := assessment["components"].(map[string]any)
	assert.InDelta(t, 0.59, components["ml_risk"], 1e-9)
	assert.InDelta(t, 1.1, components["facility_weight"], 1e-9)
	assert.InDelta(t, 1.0, components["sensitivity"], 1e-9)
}

func TestBlackoutRiskZeroSensitivity(t *testing.T) {
	ts := newTestServer(t, fakeWeather{wind: 25}, fakeStorm{counties: map[string]stormrisk.CountyRisk{"48201": harris}}, nil)
	w := ts.do(httptest.NewRequest(http.MethodGet, "/api/blackout/risk?lat=29.76&lon=-95.37&fips=48201&sensitivity=0", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assessment := decode(t, w)["assessment"].(map[string]any)
	assert.EqualValues(t, 0, assessment["blackout_risk"])
	assert.Equal(t, "low", assessment["level"])
}

func TestBlackoutRiskValidation(t *testing.T) {
	ts := defaultServer(t)
	for _, q := range []string{
		"",
		"lat=29.7",
		"lat=91&lon=0",
		"lat=abc&lon=0",
		"lat=29.7&lon=-95.3&fips=48A01",
		"lat=29.7&lon=-95.3&anomaly_density=2",
		"lat=29.7&lon=-95.3&sensitivity=2.5",
		"lat=29.7&lon=-95.3&sensitivity=-1",
	} {
		w := ts.do(httptest.NewRequest(http.MethodGet, "/api/blackout/risk?"+q, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestBlackoutRiskUpstreamFailure(t *testing.T) {
	ts := newTestServer(t, fakeWeather{err: fmt.Errorf("%w: open_meteo returned 503", httputil.ErrUpstream)}, fakeStorm{}, nil)
	w := ts.do(httptest.NewRequest(http.MethodGet, "/api/blackout/risk?lat=29.76&lon=-95.37", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestWeatherSummary(t *testing.T) {
	ts := newTestServer(t, fakeWeather{wind: 25}, fakeStorm{}, nil)
	w := ts.do(httptest.NewRequest(http.MethodGet, "/api/weather/summary?lat=29.76&lon=-95.37", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.InDelta(t, 25.0, body["max_wind"], 1e-9)
	assert.InDelta(t, 0.4, body["weather_risk"], 1e-9)
}

func TestOutageHistory(t *testing.T) {
	ts := defaultServer(t)
	w := ts.do(httptest.NewRequest(http.MethodGet, "/api/outages/history?state=TX&days=30", nil))
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode(t, w)["summary"].(map[string]any)
	assert.EqualValues(t, 0, summary["incidents"])
	assert.EqualValues(t, 30, summary["days"])
}

func TestCounty(t *testing.T) {
	ts := defaultServer(t)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/api/counties/48201", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["found"])
	assert.Equal(t, "Harris", body["county"].(map[string]any)["county"])

	w = ts.do(httptest.NewRequest(http.MethodGet, "/api/counties/1001", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, false, body["found"])
	county := body["county"].(map[string]any)
	assert.Equal(t, "01001", county["fips"])
	assert.EqualValues(t, 0, county["risk"])

	w = ts.do(httptest.NewRequest(http.MethodGet, "/api/counties/texas", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCounties(t *testing.T) {
	ts := defaultServer(t)
	w := ts.do(httptest.NewRequest(http.MethodGet, "/api/blackout/counties?state=TX&limit=10", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["count"])

	w = ts.do(httptest.NewRequest(http.MethodGet, "/api/blackout/counties?limit=0", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestModelEndpoints(t *testing.T) {
	ts := defaultServer(t)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/api/model/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.InDelta(t, 0.81, decode(t, w)["auc"], 1e-9)

	w = ts.do(httptest.NewRequest(http.MethodGet, "/api/model/evaluation", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ex_ante", decode(t, w)["feature_set"])
}

func TestModelMetricsWithoutEvents(t *testing.T) {
	ts := newTestServer(t, fakeWeather{}, fakeStorm{err: stormrisk.ErrNoEvents}, nil)
	w := ts.do(httptest.NewRequest(http.MethodGet, "/api/model/metrics", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestChatNotConfigured(t *testing.T) {
	ts := defaultServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/chat/county", strings.NewReader(`{"fips":"48201"}`))
	req.Header.Set("Content-Type", "application/json")
	w := ts.do(req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestChatCounty(t *testing.T) {
	sum := &fakeSummarizer{}
	ts := newTestServer(t, fakeWeather{wind: 10}, fakeStorm{counties: map[string]stormrisk.CountyRisk{"48201": harris}}, sum)

	req := httptest.NewRequest(http.MethodPost, "/api/chat/county",
		strings.NewReader(`{"fips":"48201","question":"Should we stock water?","lat":29.76,"lon":-95.37}`))
	req.Header.Set("Content-Type", "application/json")
	w := ts.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Stock water and fuel.", decode(t, w)["reply"])

	assert.Equal(t, "Harris", sum.got.County)
	assert.Equal(t, "TX", sum.got.State)
	assert.InDelta(t, 0.59, sum.got.Risk, 1e-9)
	assert.Equal(t, "Should we stock water?", sum.got.Question)
	require.NotNil(t, sum.got.Assessment)
	require.NotNil(t, sum.got.Weather)
}

func TestSubscribe(t *testing.T) {
	ts := defaultServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/alerts/subscribe",
		strings.NewReader(`{"phone":"+15551234567","lat":29.76,"lon":-95.37,"state":"tx","fips":"48201"}`))
	req.Header.Set("Content-Type", "application/json")
	w := ts.do(req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.NotEmpty(t, body["id"])
	assert.InDelta(t, 0.6, body["threshold"], 1e-9)

	subs, err := ts.store.ActiveSubscriptions()
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "TX", subs[0].State)
	assert.Equal(t, body["id"], subs[0].ID)
	assert.Equal(t, 1.0, subs[0].Sensitivity)

	for _, payload := range []string{
		`{"phone":"555-1234","lat":29.76,"lon":-95.37}`,
		`{"phone":"+15551234567","lat":129.76,"lon":-95.37}`,
		`{"phone":"+15551234567","lat":29.76,"lon":-95.37,"threshold":1.5}`,
		`{"phone":"+15551234567","lat":29.76,"lon":-95.37,"sensitivity":3}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/alerts/subscribe", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		assert.Equal(t, http.StatusBadRequest, ts.do(req).Code, payload)
	}
}

func TestAlertTest(t *testing.T) {
	ts := defaultServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/alerts/test", strings.NewReader(`{"phone":"+15551234567"}`))
	req.Header.Set("Content-Type", "application/json")
	w := ts.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{"+15551234567"}, ts.notifier.phones)
}
