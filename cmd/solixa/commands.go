package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/lox/solixa/internal/anomaly"
	"github.com/lox/solixa/internal/forecast"
	"github.com/lox/solixa/internal/htmlutil"
	"github.com/lox/solixa/internal/insight"
	"github.com/lox/solixa/internal/outage"
	"github.com/lox/solixa/internal/risk"
	"github.com/lox/solixa/internal/stormrisk"
	"github.com/lox/solixa/internal/telemetry"
	"github.com/lox/solixa/internal/weather"
)

type TrainCmd struct{}

func (c *TrainCmd) Run(a *app) error {
	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	storm, err := a.stormService(st)
	if err != nil {
		return err
	}
	res, err := storm.Train(a.ctx)
	if err != nil {
		return fmt.Errorf("train storm model: %w", err)
	}

	m := res.Metrics
	auc := "n/a"
	if m.AUC != nil {
		auc = fmt.Sprintf("%.4f", *m.AUC)
	}
	log.Printf("trained %s model: auc=%s accuracy=%.4f brier=%.4f train=%d test=%d positives=%d",
		m.FeatureSet, auc, m.Accuracy, m.Brier, m.TrainRows, m.TestRows, m.Positives)
	log.Printf("county table rebuilt with %d counties", len(res.Counties))
	return nil
}

type FetchStormsCmd struct {
	Years []int  `help:"Years to download (defaults to the configured years)." sep:","`
	Dest  string `help:"Directory to download into (defaults to the events glob directory)." type:"path"`
	Train bool   `help:"Retrain the model after downloading."`
}

func (c *FetchStormsCmd) Run(a *app) error {
	years := c.Years
	if len(years) == 0 {
		years = a.cfg.Storm.Years
	}
	if len(years) == 0 {
		return errors.New("no years given: pass --years or set storm.years")
	}
	dest := c.Dest
	if dest == "" {
		dest = filepath.Dir(a.cfg.Storm.EventsGlob)
	}

	paths, err := stormrisk.NewFetcher(a.cfg.Storm.FTPHost, a.cfg.Storm.FTPDir).Fetch(a.ctx, dest, years)
	if err != nil {
		return err
	}
	log.Printf("fetched %d storm event files into %s", len(paths), dest)

	if !c.Train {
		return nil
	}
	return (&TrainCmd{}).Run(a)
}

type AnalyzeCmd struct {
	File          string  `arg:"" help:"CSV or JSON telemetry file." type:"existingfile"`
	Contamination float64 `help:"Expected anomaly fraction (defaults to config)."`
	Model         string  `help:"Forecast model: linear_regression, gradient_boosting or random_forest."`
	JSON          bool    `help:"Print the analysis as JSON." name:"json"`
}

type analysisReport struct {
	Rows            int               `json:"rows"`
	Sources         []string          `json:"sources"`
	Inverter        bool              `json:"inverter"`
	Quality         map[string]int    `json:"quality"`
	Anomalies       int               `json:"anomalies"`
	AnomalyDensity  float64           `json:"anomaly_density"`
	Forecast        *forecast.Metrics `json:"forecast,omitempty"`
	ForecastError   string            `json:"forecast_error,omitempty"`
	Insights        []string          `json:"insights"`
	Summary         string            `json:"summary"`
	Recommendations string            `json:"recommendations"`
}

func (c *AnalyzeCmd) Run(a *app) error {
	table, err := readTable(c.File)
	if err != nil {
		return err
	}
	norm, err := a.normalizer()
	if err != nil {
		return err
	}
	frame, err := norm.Normalize(table)
	if err != nil {
		return err
	}

	contamination := c.Contamination
	if contamination == 0 {
		contamination = a.cfg.Telemetry.Contamination
	}
	detected, err := anomaly.NewDatasetDetector().Detect(frame, contamination)
	if err != nil {
		return err
	}

	model := c.Model
	if model == "" {
		model = a.cfg.Forecast.DefaultModel
	}
	report := analysisReport{
		Rows:           detected.Len(),
		Sources:        detected.Sources(),
		Inverter:       detected.Inverter,
		Quality:        detected.Quality,
		Anomalies:      detected.AnomalyCount(),
		AnomalyDensity: anomaly.Density(detected),
	}
	fc, err := forecast.Run(detected, model)
	switch {
	case err == nil:
		report.Forecast = &fc.Metrics
	case errors.Is(err, forecast.ErrInsufficientData), errors.Is(err, forecast.ErrUnknownModel):
		report.ForecastError = err.Error()
	default:
		return err
	}
	for _, in := range insight.Generate(detected) {
		report.Insights = append(report.Insights, in.Title+": "+in.Text())
	}
	report.Summary = insight.Summary(detected, report.Forecast)
	report.Recommendations = htmlutil.ToText(insight.Recommendations(detected))

	if c.JSON {
		return printJSON(report)
	}
	printReport(report)
	return nil
}

func readTable(path string) (*telemetry.Table, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return telemetry.ReadJSON(data)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return telemetry.ReadCSV(f)
}

func printReport(r analysisReport) {
	fmt.Printf("Rows: %d  Sources: %d  Inverter layout: %t\n", r.Rows, len(r.Sources), r.Inverter)
	fmt.Printf("Anomalies: %d (%.2f%%)\n", r.Anomalies, r.AnomalyDensity*100)
	if len(r.Quality) > 0 {
		fmt.Printf("Data quality: %s\n", telemetry.QualityJSON(r.Quality))
	}
	if r.Forecast != nil {
		m := r.Forecast
		fmt.Printf("Forecast (%s): r2=%.4f rmse=%.4f mae=%.4f mape=%.2f%% cv=%.4f±%.4f\n",
			m.ModelType, m.R2, m.RMSE, m.MAE, m.MAPE, m.CVMean, m.CVStd)
	} else {
		fmt.Printf("Forecast: %s\n", r.ForecastError)
	}
	fmt.Println()
	for _, in := range r.Insights {
		fmt.Printf("- %s\n", in)
	}
	fmt.Println()
	fmt.Println(r.Summary)
	fmt.Println()
	fmt.Println(r.Recommendations)
}

type CountyCmd struct {
	FIPS string `arg:"" help:"Five-digit county FIPS code."`
}

func (c *CountyCmd) Run(a *app) error {
	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	storm, err := a.stormService(st)
	if err != nil {
		return err
	}
	row, err := storm.County(a.ctx, c.FIPS)
	if err != nil {
		return err
	}
	if row == nil {
		log.Printf("county %s not in the risk table, risk 0", c.FIPS)
		return nil
	}
	return printJSON(row)
}

type CombineCmd struct {
	Weather     float64 `help:"Weather risk in [0, 1]."`
	Outage      float64 `help:"Outage history risk in [0, 1]."`
	Anomaly     float64 `help:"Telemetry anomaly density in [0, 1]."`
	ML          float64 `help:"County model risk in [0, 1]." name:"ml"`
	Facility    string  `help:"Facility type, e.g. hospital or school."`
	Sensitivity float64 `help:"Sensitivity multiplier in [0, 2]." default:"1"`
}

func (c *CombineCmd) Run(_ *app) error {
	a := risk.Combine(risk.Inputs{
		Weather:        weather.Summary{Risk: c.Weather},
		Outage:         outage.Summary{Risk: c.Outage},
		AnomalyDensity: c.Anomaly,
		MLRisk:         c.ML,
		FacilityType:   c.Facility,
		Sensitivity:    c.Sensitivity,
	})
	return printJSON(a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
