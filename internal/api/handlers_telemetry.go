package api

import (
	"bytes"
	"database/sql"
	"errors"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lox/solixa/internal/anomaly"
	"github.com/lox/solixa/internal/forecast"
	"github.com/lox/solixa/internal/insight"
	"github.com/lox/solixa/internal/models"
	"github.com/lox/solixa/internal/telemetry"
)

type readingResponse struct {
	Timestamp     time.Time `json:"timestamp"`
	SourceID      string    `json:"source_id"`
	Value         *float64  `json:"value"`
	ACPowerFixed  *float64  `json:"ac_power_fixed"`
	DCPowerInput  *float64  `json:"dc_power_input"`
	EfficiencyPct *float64  `json:"efficiency_pct"`
	TimeIndex     int       `json:"time_index"`
	Anomaly       bool      `json:"anomaly"`
	AnomalyScore  float64   `json:"anomaly_score"`
}

func newReadingResponse(r telemetry.Reading) readingResponse {
	return readingResponse{
		Timestamp:     r.Timestamp,
		SourceID:      r.SourceID,
		Value:         finite(r.Value),
		ACPowerFixed:  finite(r.ACPowerFixed),
		DCPowerInput:  finite(r.DCPowerInput),
		EfficiencyPct: finite(r.EfficiencyPct),
		TimeIndex:     r.TimeIndex,
		Anomaly:       r.Anomaly,
		AnomalyScore:  r.AnomalyScore,
	}
}

func anomalyReadings(f *telemetry.Frame) []readingResponse {
	out := []readingResponse{}
	for _, r := range f.Readings {
		if r.Anomaly {
			out = append(out, newReadingResponse(r))
		}
	}
	return out
}

type forecastMetricsResponse struct {
	ModelType     string   `json:"model_type"`
	R2            *float64 `json:"r2"`
	TrainR2       *float64 `json:"train_r2"`
	RMSE          *float64 `json:"rmse"`
	MAE           *float64 `json:"mae"`
	MSE           *float64 `json:"mse"`
	MAPE          *float64 `json:"mape"`
	CVMean        *float64 `json:"cv_mean"`
	CVStd         *float64 `json:"cv_std"`
	MeanActual    *float64 `json:"mean_actual"`
	MeanPredicted *float64 `json:"mean_predicted"`
	TrainPoints   int      `json:"train_points"`
	TestPoints    int      `json:"test_points"`
	CVFolds       int      `json:"cv_folds"`
}

type forecastResponse struct {
	Metrics forecastMetricsResponse `json:"metrics"`
	Rows    []forecast.Row          `json:"rows"`
}

func newForecastResponse(res *forecast.Result) *forecastResponse {
	m := res.Metrics
	return &forecastResponse{
		Metrics: forecastMetricsResponse{
			ModelType:     m.ModelType,
			R2:            finite(m.R2),
			TrainR2:       finite(m.TrainR2),
			RMSE:          finite(m.RMSE),
			MAE:           finite(m.MAE),
			MSE:           finite(m.MSE),
			MAPE:          finite(m.MAPE),
			CVMean:        finite(m.CVMean),
			CVStd:         finite(m.CVStd),
			MeanActual:    finite(m.MeanActual),
			MeanPredicted: finite(m.MeanPredicted),
			TrainPoints:   m.TrainPoints,
			TestPoints:    m.TestPoints,
			CVFolds:       m.CVFolds,
		},
		Rows: res.Rows,
	}
}

type analysisResponse struct {
	ID              string             `json:"id"`
	Filename        string             `json:"filename,omitempty"`
	Rows            int                `json:"rows"`
	Sources         []string           `json:"sources"`
	Inverter        bool               `json:"inverter"`
	Columns         []string           `json:"columns"`
	Mapping         telemetry.Mapping  `json:"mapping"`
	Quality         map[string]int     `json:"quality"`
	Contamination   float64            `json:"contamination"`
	AnomalyCount    int                `json:"anomaly_count"`
	AnomalyDensity  float64            `json:"anomaly_density"`
	DetectionError  string             `json:"detection_error,omitempty"`
	Anomalies       []readingResponse  `json:"anomalies"`
	Forecast        *forecastResponse  `json:"forecast,omitempty"`
	ForecastError   string             `json:"forecast_error,omitempty"`
	Insights        []insight.Insight  `json:"insights"`
	Summary         string             `json:"summary"`
	Recommendations string             `json:"recommendations"`
	Quartiles       *insight.Quartiles `json:"quartiles,omitempty"`
}

// handleAnalyze runs the full pipeline over an uploaded dataset: normalize,
// flag anomalies, forecast and generate insights. The upload is discarded
// once the response is built; only run metadata is recorded.
func (s *Server) handleAnalyze(c *gin.Context) {
	table, filename, err := s.readTable(c)
	if err != nil {
		writeError(c, err)
		return
	}
	contamination, err := s.contamination(c)
	if err != nil {
		writeError(c, err)
		return
	}
	model := formValue(c, "model")
	if model == "" {
		model = s.cfg.Forecast.DefaultModel
	}
	if !slices.Contains(forecast.Models(), model) {
		writeError(c, badRequest("unknown model %q, expected one of %s", model, strings.Join(forecast.Models(), ", ")))
		return
	}

	frame, err := s.deps.Normalizer.Normalize(table)
	if err != nil {
		writeError(c, err)
		return
	}

	detected, detectErr := anomaly.NewDatasetDetector().Detect(frame, contamination)
	if detectErr != nil {
		log.Printf("api: anomaly detection degraded: %v", detectErr)
	}

	resp := analysisResponse{
		ID:             uuid.NewString(),
		Filename:       filename,
		Rows:           detected.Len(),
		Sources:        detected.Sources(),
		Inverter:       detected.Inverter,
		Columns:        detected.Columns,
		Mapping:        detected.Mapping,
		Quality:        detected.Quality,
		Contamination:  contamination,
		AnomalyCount:   detected.AnomalyCount(),
		AnomalyDensity: anomaly.Density(detected),
		Anomalies:      anomalyReadings(detected),
		Insights:       insight.Generate(detected),
		Quartiles:      insight.InverterQuartiles(detected),
	}
	if detectErr != nil {
		resp.DetectionError = detectErr.Error()
	}

	run := models.AnalysisRun{
		ID:            resp.ID,
		Filename:      filename,
		Rows:          resp.Rows,
		Sources:       len(resp.Sources),
		Anomalies:     resp.AnomalyCount,
		Contamination: contamination,
		Model:         model,
		QualityJSON:   telemetry.QualityJSON(detected.Quality),
		CreatedAt:     time.Now().UTC(),
	}

	fc, err := forecast.Run(detected, model)
	switch {
	case err == nil:
		resp.Forecast = newForecastResponse(fc)
		resp.Summary = insight.Summary(detected, &fc.Metrics)
		if v := resp.Forecast.Metrics.R2; v != nil {
			run.R2 = sql.NullFloat64{Float64: *v, Valid: true}
		}
		if v := resp.Forecast.Metrics.MAPE; v != nil {
			run.MAPE = sql.NullFloat64{Float64: *v, Valid: true}
		}
	case errors.Is(err, forecast.ErrInsufficientData):
		resp.ForecastError = err.Error()
		resp.Summary = insight.Summary(detected, nil)
	default:
		log.Printf("api: forecast %s failed: %v", model, err)
		resp.ForecastError = err.Error()
		resp.Summary = insight.Summary(detected, nil)
	}
	resp.Recommendations = insight.Recommendations(detected)

	if s.deps.Store != nil {
		if err := s.deps.Store.InsertAnalysisRun(run); err != nil {
			log.Printf("api: record analysis run: %v", err)
		}
	}

	c.JSON(http.StatusOK, resp)
}

// handleScore flags anomalies in a small batch of readings using the
// stricter per-request detector. Batches under 25 rows come back unflagged,
// as do batches the detector cannot score.
func (s *Server) handleScore(c *gin.Context) {
	table, _, err := s.readTable(c)
	if err != nil {
		writeError(c, err)
		return
	}
	contamination, err := s.contamination(c)
	if err != nil {
		writeError(c, err)
		return
	}
	frame, err := s.deps.Normalizer.Normalize(table)
	if err != nil {
		writeError(c, err)
		return
	}
	detected, detectErr := anomaly.NewRequestDetector().Detect(frame, contamination)
	if detectErr != nil {
		log.Printf("api: anomaly scoring degraded: %v", detectErr)
	}

	readings := make([]readingResponse, len(detected.Readings))
	for i, r := range detected.Readings {
		readings[i] = newReadingResponse(r)
	}
	resp := gin.H{
		"rows":          detected.Len(),
		"anomaly_count": detected.AnomalyCount(),
		"density":       anomaly.Density(detected),
		"scored":        detectErr == nil && detected.Len() >= anomaly.RequestMinRows,
		"readings":      readings,
	}
	if detectErr != nil {
		resp["detection_error"] = detectErr.Error()
	}
	c.JSON(http.StatusOK, resp)
}

type efficiencyPointResponse struct {
	Timestamp  time.Time `json:"timestamp"`
	SourceID   string    `json:"source_id"`
	Efficiency *float64  `json:"efficiency_pct"`
	Anomaly    bool      `json:"anomaly"`
}

// handleEfficiency flags unusual conversion efficiency per inverter on a
// shared 15-minute grid.
func (s *Server) handleEfficiency(c *gin.Context) {
	table, _, err := s.readTable(c)
	if err != nil {
		writeError(c, err)
		return
	}
	contamination, err := s.contamination(c)
	if err != nil {
		writeError(c, err)
		return
	}
	frame, err := s.deps.Normalizer.Normalize(table)
	if err != nil {
		writeError(c, err)
		return
	}
	points, err := anomaly.NewDatasetDetector().DetectEfficiency(frame, contamination)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]efficiencyPointResponse, len(points))
	flagged := 0
	for i, p := range points {
		out[i] = efficiencyPointResponse{Timestamp: p.Timestamp, SourceID: p.SourceID, Efficiency: finite(p.Efficiency), Anomaly: p.Anomaly}
		if p.Anomaly {
			flagged++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"points":        out,
		"anomaly_count": flagged,
	})
}

// readTable reads the request body as a table. Multipart uploads take the
// "file" field and are parsed by extension; raw bodies are JSON arrays
// unless sent as text/csv.
func (s *Server) readTable(c *gin.Context) (*telemetry.Table, string, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.Server.MaxUploadMB<<20)

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, "", err
			}
			return nil, "", badRequest("multipart upload needs a file field")
		}
		f, err := fh.Open()
		if err != nil {
			return nil, "", badRequest("open upload: %v", err)
		}
		defer f.Close()

		if strings.EqualFold(filepath.Ext(fh.Filename), ".json") {
			data, err := io.ReadAll(f)
			if err != nil {
				return nil, "", err
			}
			t, err := telemetry.ReadJSON(data)
			return t, fh.Filename, err
		}
		t, err := telemetry.ReadCSV(f)
		return t, fh.Filename, err
	}

	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, "", err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, "", telemetry.ErrEmptyInput
	}
	if c.ContentType() == "text/csv" {
		t, err := telemetry.ReadCSV(bytes.NewReader(data))
		return t, "", err
	}
	t, err := telemetry.ReadJSON(data)
	return t, "", err
}

// formValue reads a parameter from the multipart form, falling back to the
// query string.
func formValue(c *gin.Context, key string) string {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if v := c.PostForm(key); v != "" {
			return v
		}
	}
	return c.Query(key)
}

func (s *Server) contamination(c *gin.Context) (float64, error) {
	raw := formValue(c, "contamination")
	if raw == "" {
		return s.cfg.Telemetry.Contamination, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, badRequest("invalid contamination %q", raw)
	}
	if !anomaly.ValidContamination(v) {
		return 0, badRequest("contamination must be in (0, 0.5], got %g", v)
	}
	return v, nil
}
