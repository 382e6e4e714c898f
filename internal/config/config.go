package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration. Values come from an optional
// YAML file, then environment variables (optionally loaded from .env).
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Storm     StormConfig     `yaml:"storm"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Forecast  ForecastConfig  `yaml:"forecast"`
	Weather   WeatherConfig   `yaml:"weather"`
	Outage    OutageConfig    `yaml:"outage"`
	Assistant AssistantConfig `yaml:"assistant"`
	Alerting  AlertingConfig  `yaml:"alerting"`
	Jobs      JobsConfig      `yaml:"jobs"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MaxUploadMB int64  `yaml:"max_upload_mb"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ArtifactsConfig selects where trained model artifacts live.
type ArtifactsConfig struct {
	Backend string        `yaml:"backend"` // "file" or "minio"
	Dir     string        `yaml:"dir"`
	MaxAge  time.Duration `yaml:"max_age"`
	MinIO   MinIOConfig   `yaml:"minio"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type StormConfig struct {
	EventsGlob string `yaml:"events_glob"`
	SVIPath    string `yaml:"svi_path"`
	// FeatureSet is one of "ex_ante", "full" or "leakage_free".
	FeatureSet string `yaml:"feature_set"`
	FTPHost    string `yaml:"ftp_host"`
	FTPDir     string `yaml:"ftp_dir"`
	Years      []int  `yaml:"years"`
}

type TelemetryConfig struct {
	AliasFile     string  `yaml:"alias_file"`
	Contamination float64 `yaml:"contamination"`
}

type ForecastConfig struct {
	DefaultModel string `yaml:"default_model"`
}

type WeatherConfig struct {
	OpenMeteoURL string `yaml:"open_meteo_url"`
	NWSURL       string `yaml:"nws_url"`
	UserAgent    string `yaml:"user_agent"`
	Hours        int    `yaml:"hours"`
}

type OutageConfig struct {
	Path string `yaml:"path"`
	Days int    `yaml:"days"`
}

type AssistantConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

type AlertingConfig struct {
	Region   string `yaml:"region"`
	SenderID string `yaml:"sender_id"`
	Enabled  bool   `yaml:"enabled"`
}

type JobsConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
}

// Default returns a configuration with every field at its default value.
func Default() *Config {
	return &Config{
		Server:    ServerConfig{Addr: ":8080", MaxUploadMB: 100},
		Database:  DatabaseConfig{Path: "data/solixa.db"},
		Artifacts: ArtifactsConfig{Backend: "file", Dir: "data/artifacts", MaxAge: 30 * 24 * time.Hour},
		Storm: StormConfig{
			EventsGlob: "data/storm/StormEvents_details-*.csv*",
			SVIPath:    "data/svi_interactive_map.csv",
			FeatureSet: "ex_ante",
			FTPHost:    "ftp.ncei.noaa.gov:21",
			FTPDir:     "/pub/data/swdi/stormevents/csvfiles",
		},
		Telemetry: TelemetryConfig{Contamination: 0.02},
		Forecast:  ForecastConfig{DefaultModel: "gradient_boosting"},
		Weather: WeatherConfig{
			OpenMeteoURL: "https://api.open-meteo.com/v1/forecast",
			NWSURL:       "https://api.weather.gov/alerts/active",
			UserAgent:    "Solixa/1.0",
			Hours:        72,
		},
		Outage:    OutageConfig{Path: "data/oe417_sample.csv", Days: 365},
		Assistant: AssistantConfig{Model: "gpt-4o-mini"},
		Alerting:  AlertingConfig{Region: "us-east-1"},
		Jobs:      JobsConfig{RefreshInterval: time.Hour, SweepInterval: 30 * time.Minute},
	}
}

// Load reads configuration from path (skipped when empty or missing), then
// applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // ignore missing file

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Server.Addr, "SOLIXA_ADDR")
	setString(&c.Database.Path, "SOLIXA_DB")
	setString(&c.Artifacts.Backend, "SOLIXA_ARTIFACT_BACKEND")
	setString(&c.Artifacts.Dir, "SOLIXA_ARTIFACT_DIR")
	setString(&c.Artifacts.MinIO.Endpoint, "MINIO_ENDPOINT")
	setString(&c.Artifacts.MinIO.AccessKey, "MINIO_ACCESS_KEY")
	setString(&c.Artifacts.MinIO.SecretKey, "MINIO_SECRET_KEY")
	setString(&c.Artifacts.MinIO.Bucket, "MINIO_BUCKET")
	setString(&c.Storm.EventsGlob, "SOLIXA_STORM_GLOB")
	setString(&c.Storm.SVIPath, "SOLIXA_SVI_PATH")
	setString(&c.Storm.FeatureSet, "SOLIXA_FEATURE_SET")
	setString(&c.Outage.Path, "SOLIXA_OUTAGE_PATH")
	setString(&c.Weather.UserAgent, "NWS_USER_AGENT")
	setString(&c.Assistant.APIKey, "OPENAI_API_KEY")
	setString(&c.Assistant.BaseURL, "OPENAI_BASE_URL")
	setString(&c.Assistant.Model, "OPENAI_MODEL")
	setString(&c.Alerting.Region, "AWS_REGION")
	setString(&c.Alerting.SenderID, "SOLIXA_SMS_SENDER_ID")

	if v := os.Getenv("SOLIXA_ALERTS_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SOLIXA_ALERTS_ENABLED: %s", v)
		}
		c.Alerting.Enabled = enabled
	}
	if v := os.Getenv("SOLIXA_CONTAMINATION"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid SOLIXA_CONTAMINATION: %s", v)
		}
		c.Telemetry.Contamination = f
	}
	if v := os.Getenv("SOLIXA_ARTIFACT_MAX_AGE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SOLIXA_ARTIFACT_MAX_AGE: %s", v)
		}
		c.Artifacts.MaxAge = d
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	switch c.Artifacts.Backend {
	case "file":
		if c.Artifacts.Dir == "" {
			return errors.New("artifact dir is required for file backend")
		}
	case "minio":
		if c.Artifacts.MinIO.Endpoint == "" || c.Artifacts.MinIO.Bucket == "" {
			return errors.New("minio endpoint and bucket are required for minio backend")
		}
	default:
		return fmt.Errorf("unsupported artifact backend: %s", c.Artifacts.Backend)
	}
	switch c.Storm.FeatureSet {
	case "ex_ante", "full", "leakage_free":
	default:
		return fmt.Errorf("unsupported storm feature set: %s", c.Storm.FeatureSet)
	}
	if c.Telemetry.Contamination <= 0 || c.Telemetry.Contamination > 0.5 {
		return fmt.Errorf("contamination must be in (0, 0.5], got %g", c.Telemetry.Contamination)
	}
	if c.Server.MaxUploadMB <= 0 {
		return errors.New("max upload size must be positive")
	}
	return nil
}
