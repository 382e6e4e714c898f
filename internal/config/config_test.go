package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "file", cfg.Artifacts.Backend)
	assert.Equal(t, "ex_ante", cfg.Storm.FeatureSet)
	assert.InDelta(t, 0.02, cfg.Telemetry.Contamination, 1e-12)
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "solixa.yaml")
	yml := `
server:
  addr: ":9090"
artifacts:
  backend: file
  dir: /tmp/artifacts
  max_age: 2h
storm:
  feature_set: full
telemetry:
  contamination: 0.05
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))
	t.Setenv("SOLIXA_DB", "/tmp/test.db")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "/tmp/test.db", cfg.Database.Path)
	assert.Equal(t, 2*time.Hour, cfg.Artifacts.MaxAge)
	assert.Equal(t, "full", cfg.Storm.FeatureSet)
	assert.InDelta(t, 0.05, cfg.Telemetry.Contamination, 1e-12)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"bad backend", func(c *Config) { c.Artifacts.Backend = "s3" }, false},
		{"minio without bucket", func(c *Config) {
			c.Artifacts.Backend = "minio"
			c.Artifacts.MinIO.Endpoint = "localhost:9000"
		}, false},
		{"bad feature set", func(c *Config) { c.Storm.FeatureSet = "everything" }, false},
		{"zero contamination", func(c *Config) { c.Telemetry.Contamination = 0 }, false},
		{"contamination too high", func(c *Config) { c.Telemetry.Contamination = 0.6 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestInvalidEnvValue(t *testing.T) {
	t.Setenv("SOLIXA_CONTAMINATION", "lots")
	_, err := Load("")
	assert.Error(t, err)
}
