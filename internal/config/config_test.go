package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/cardinality-observer/internal/models"
	"github.com/miradorstack/cardinality-observer/internal/utils"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "observer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 30*time.Second, cfg.PollInterval())
	assert.Equal(t, models.DefaultThresholds(), cfg.Thresholds)

	pipelines := cfg.ResolvedPipelines()
	require.Len(t, pipelines, 1)
	assert.Equal(t, "observer", pipelines[0].Name)
	assert.Equal(t, "phoenix_", pipelines[0].Namespace)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
observer:
  scrapeURL: http://collector:8888/metrics
  outputPath: /var/run/observer/opt_mode.yaml
  pollIntervalSeconds: 15
  scrapeTimeout: 3s
thresholds:
  moderate: 100
  adaptive: 200
  ultra: 300
logging:
  level: debug
`)
	t.Setenv("CARDINALITY_OBSERVER_ULTRA_THRESHOLD", "350")
	t.Setenv("CARDINALITY_OBSERVER_LOG_FORMAT", "json")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://collector:8888/metrics", cfg.Observer.ScrapeURL)
	assert.Equal(t, 15*time.Second, cfg.PollInterval())
	assert.Equal(t, 3*time.Second, cfg.Observer.ScrapeTimeout)
	assert.Equal(t, models.ThresholdSet{Moderate: 100, Adaptive: 200, Ultra: 350}, cfg.Thresholds)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.JSON)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidateThresholdOrderingIsConfigError(t *testing.T) {
	cfg := Default()
	cfg.Thresholds = models.ThresholdSet{Moderate: 400, Adaptive: 375, Ultra: 450}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, utils.KindConfig, utils.KindOf(err))
	assert.True(t, errors.Is(err, models.ErrThresholdOrder))
}

func TestValidateRejectsBadObserverSettings(t *testing.T) {
	cases := map[string]func(*Config){
		"zero interval":    func(c *Config) { c.Observer.PollIntervalSeconds = 0 },
		"missing url":      func(c *Config) { c.Observer.ScrapeURL = "" },
		"bad scheme":       func(c *Config) { c.Observer.ScrapeURL = "ftp://collector/metrics" },
		"missing output":   func(c *Config) { c.Observer.OutputPath = " " },
		"mirror sans addr": func(c *Config) { c.Mirror.Enabled = true },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, utils.KindConfig, utils.KindOf(err))
		})
	}
}

func TestResolvedPipelinesInheritDefaults(t *testing.T) {
	path := writeConfig(t, `
observer:
  scrapeURL: http://shared:8888/metrics
thresholds:
  moderate: 300
  adaptive: 375
  ultra: 450
pipelines:
  - name: main
    outputPath: /tmp/main.yaml
  - name: edge
    scrapeURL: http://edge:8888/metrics
    outputPath: /tmp/edge.yaml
    namespace: edge_
    thresholds:
      moderate: 10
      adaptive: 20
      ultra: 30
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	pipelines := cfg.ResolvedPipelines()
	require.Len(t, pipelines, 2)

	assert.Equal(t, "http://shared:8888/metrics", pipelines[0].ScrapeURL)
	assert.Equal(t, "phoenix_", pipelines[0].Namespace)
	assert.Equal(t, models.DefaultThresholds(), *pipelines[0].Thresholds)

	assert.Equal(t, "http://edge:8888/metrics", pipelines[1].ScrapeURL)
	assert.Equal(t, "edge_", pipelines[1].Namespace)
	assert.Equal(t, models.ThresholdSet{Moderate: 10, Adaptive: 20, Ultra: 30}, *pipelines[1].Thresholds)
}

func TestValidateRejectsSharedOutputPath(t *testing.T) {
	cfg := Default()
	cfg.Pipelines = []PipelineConfig{
		{Name: "a", OutputPath: "/tmp/same.yaml"},
		{Name: "b", OutputPath: "/tmp/same.yaml"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, utils.KindConfig, utils.KindOf(err))

	cfg.Pipelines[1] = PipelineConfig{Name: "a", OutputPath: "/tmp/other.yaml"}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsPipelineThresholdOverride(t *testing.T) {
	cfg := Default()
	cfg.Pipelines = []PipelineConfig{{
		Name:       "a",
		OutputPath: "/tmp/a.yaml",
		Thresholds: &models.ThresholdSet{Moderate: 5, Adaptive: 5, Ultra: 6},
	}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrThresholdOrder))
}
