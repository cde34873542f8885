package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/cardinality-observer/internal/estimator"
	"github.com/miradorstack/cardinality-observer/internal/models"
	"github.com/miradorstack/cardinality-observer/internal/signal"
	"github.com/miradorstack/cardinality-observer/internal/utils"
)

// Config captures the settings required to run the cardinality observer.
type Config struct {
	Observer   ObserverConfig      `yaml:"observer"`
	Thresholds models.ThresholdSet `yaml:"thresholds"`
	Pipelines  []PipelineConfig    `yaml:"pipelines"`
	Server     ServerConfig        `yaml:"server"`
	Logging    LoggingConfig       `yaml:"logging"`
	Mirror     MirrorConfig        `yaml:"mirror"`
	Tracing    TracingConfig       `yaml:"tracing"`
}

// ObserverConfig describes the default monitored pipeline and loop cadence.
type ObserverConfig struct {
	ScrapeURL           string        `yaml:"scrapeURL"`
	OutputPath          string        `yaml:"outputPath"`
	PollIntervalSeconds int           `yaml:"pollIntervalSeconds"`
	ScrapeTimeout       time.Duration `yaml:"scrapeTimeout"`
	Namespace           string        `yaml:"namespace"`
	Source              string        `yaml:"source"`
}

// PipelineConfig describes one independently monitored pipeline. Empty
// fields inherit from ObserverConfig and the global thresholds.
type PipelineConfig struct {
	Name       string               `yaml:"name"`
	ScrapeURL  string               `yaml:"scrapeURL"`
	OutputPath string               `yaml:"outputPath"`
	Namespace  string               `yaml:"namespace"`
	Thresholds *models.ThresholdSet `yaml:"thresholds"`
}

// ServerConfig controls the gRPC health listener and metrics endpoint.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// MirrorConfig controls publishing signals to Valkey.
type MirrorConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Addr        string        `yaml:"addr"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	KeyPrefix   string        `yaml:"keyPrefix"`
	TTL         time.Duration `yaml:"ttl"`
	TLS         bool          `yaml:"tls"`
	DialTimeout time.Duration `yaml:"dialTimeout"`
}

// TracingConfig controls OTLP span export; an empty endpoint disables it.
type TracingConfig struct {
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CARDINALITY_OBSERVER_CONFIG")
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Observer: ObserverConfig{
			ScrapeURL:           "http://localhost:8888/metrics",
			OutputPath:          "configs/control_signals/opt_mode.yaml",
			PollIntervalSeconds: 30,
			ScrapeTimeout:       10 * time.Second,
			Namespace:           estimator.DefaultNamespace,
			Source:              signal.DefaultSource,
		},
		Thresholds: models.DefaultThresholds(),
		Server: ServerConfig{
			Address:         ":50051",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Mirror: MirrorConfig{
			KeyPrefix:   "cardinality-observer:signal",
			DialTimeout: 2 * time.Second,
		},
	}
}

// PollInterval returns the fixed delay between cycles.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Observer.PollIntervalSeconds) * time.Second
}

// ResolvedPipelines returns the monitored pipelines with inherited defaults
// filled in. Without explicit pipelines the observer section is the only one.
func (c *Config) ResolvedPipelines() []PipelineConfig {
	if len(c.Pipelines) == 0 {
		thresholds := c.Thresholds
		return []PipelineConfig{{
			Name:       firstNonEmpty(c.Observer.Source, signal.DefaultSource),
			ScrapeURL:  c.Observer.ScrapeURL,
			OutputPath: c.Observer.OutputPath,
			Namespace:  firstNonEmpty(c.Observer.Namespace, estimator.DefaultNamespace),
			Thresholds: &thresholds,
		}}
	}

	resolved := make([]PipelineConfig, 0, len(c.Pipelines))
	for _, p := range c.Pipelines {
		thresholds := c.Thresholds
		if p.Thresholds != nil {
			thresholds = *p.Thresholds
		}
		resolved = append(resolved, PipelineConfig{
			Name:       p.Name,
			ScrapeURL:  firstNonEmpty(p.ScrapeURL, c.Observer.ScrapeURL),
			OutputPath: p.OutputPath,
			Namespace:  firstNonEmpty(p.Namespace, c.Observer.Namespace, estimator.DefaultNamespace),
			Thresholds: &thresholds,
		})
	}
	return resolved
}

// Validate checks everything that must hold before any loop starts. All
// failures are config errors.
func (c *Config) Validate() error {
	if c.Observer.PollIntervalSeconds <= 0 {
		return configError("observer.pollIntervalSeconds must be positive, got %d", c.Observer.PollIntervalSeconds)
	}
	if err := c.Thresholds.Validate(); err != nil {
		return utils.NewAppError(utils.KindConfig, "config", "invalid thresholds", err)
	}
	if c.Mirror.Enabled && c.Mirror.Addr == "" {
		return configError("mirror.addr is required when the mirror is enabled")
	}

	names := make(map[string]struct{})
	outputs := make(map[string]string)
	for i, p := range c.ResolvedPipelines() {
		if p.Name == "" {
			return configError("pipelines[%d].name is required", i)
		}
		if _, dup := names[p.Name]; dup {
			return configError("duplicate pipeline name %q", p.Name)
		}
		names[p.Name] = struct{}{}

		if err := validateScrapeURL(p.ScrapeURL); err != nil {
			return utils.NewAppError(utils.KindConfig, "config", fmt.Sprintf("pipeline %s scrape URL", p.Name), err)
		}
		if strings.TrimSpace(p.OutputPath) == "" {
			return configError("pipeline %s output path is required", p.Name)
		}
		if other, dup := outputs[p.OutputPath]; dup {
			return configError("pipelines %s and %s share output path %s", other, p.Name, p.OutputPath)
		}
		outputs[p.OutputPath] = p.Name

		if err := p.Thresholds.Validate(); err != nil {
			return utils.NewAppError(utils.KindConfig, "config", fmt.Sprintf("pipeline %s thresholds", p.Name), err)
		}
	}
	return nil
}

func validateScrapeURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("scrape URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("scrape URL has no host")
	}
	return nil
}

func configError(format string, args ...any) error {
	return utils.NewAppError(utils.KindConfig, "config", fmt.Sprintf(format, args...), nil)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CARDINALITY_OBSERVER_SCRAPE_URL"); v != "" {
		cfg.Observer.ScrapeURL = v
	}
	if v := os.Getenv("CARDINALITY_OBSERVER_OUTPUT_PATH"); v != "" {
		cfg.Observer.OutputPath = v
	}
	if v := os.Getenv("CARDINALITY_OBSERVER_INTERVAL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.Observer.PollIntervalSeconds = secs
		}
	}
	if v := os.Getenv("CARDINALITY_OBSERVER_SCRAPE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Observer.ScrapeTimeout = d
		}
	}
	if v := os.Getenv("CARDINALITY_OBSERVER_NAMESPACE"); v != "" {
		cfg.Observer.Namespace = v
	}
	if v := os.Getenv("CARDINALITY_OBSERVER_MODERATE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Thresholds.Moderate = f
		}
	}
	if v := os.Getenv("CARDINALITY_OBSERVER_ADAPTIVE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Thresholds.Adaptive = f
		}
	}
	if v := os.Getenv("CARDINALITY_OBSERVER_ULTRA_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Thresholds.Ultra = f
		}
	}
	if v := os.Getenv("CARDINALITY_OBSERVER_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("CARDINALITY_OBSERVER_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("CARDINALITY_OBSERVER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CARDINALITY_OBSERVER_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("CARDINALITY_OBSERVER_MIRROR_ENABLED"); v != "" {
		cfg.Mirror.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("CARDINALITY_OBSERVER_MIRROR_ADDR"); v != "" {
		cfg.Mirror.Addr = v
	}
	if v := os.Getenv("CARDINALITY_OBSERVER_MIRROR_PASSWORD"); v != "" {
		cfg.Mirror.Password = v
	}
	if v := os.Getenv("CARDINALITY_OBSERVER_MIRROR_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Mirror.TTL = d
		}
	}
	if v := os.Getenv("CARDINALITY_OBSERVER_OTLP_ENDPOINT"); v != "" {
		cfg.Tracing.Endpoint = v
	}
	if v := os.Getenv("CARDINALITY_OBSERVER_OTLP_INSECURE"); strings.EqualFold(v, "true") || v == "1" {
		cfg.Tracing.Insecure = true
	}
}
