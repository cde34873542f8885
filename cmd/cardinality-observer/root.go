package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/miradorstack/cardinality-observer/internal/api"
	"github.com/miradorstack/cardinality-observer/internal/cache"
	"github.com/miradorstack/cardinality-observer/internal/config"
	"github.com/miradorstack/cardinality-observer/internal/engine"
	"github.com/miradorstack/cardinality-observer/internal/metrics"
	"github.com/miradorstack/cardinality-observer/internal/repo"
	"github.com/miradorstack/cardinality-observer/internal/services"
	"github.com/miradorstack/cardinality-observer/internal/store"
	"github.com/miradorstack/cardinality-observer/internal/tracing"
	"github.com/miradorstack/cardinality-observer/internal/utils"
)

type flagValues struct {
	configPath  string
	scrapeURL   string
	outputPath  string
	interval    int
	namespace   string
	moderate    float64
	adaptive    float64
	ultra       float64
	logLevel    string
	metricsAddr string
	grpcAddr    string
}

func newRootCommand() *cobra.Command {
	var flags flagValues

	cmd := &cobra.Command{
		Use:   "cardinality-observer",
		Short: "Adaptive cardinality control loop",
		Long: `Polls a collector's metrics endpoint, classifies the number of distinct
series into moderate/adaptive/ultra optimization modes and writes a versioned
control signal file for the pipeline reconciler.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags(), flags)
			if err != nil {
				slog.Error("invalid configuration", slog.Any("error", err))
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	bindFlags(cmd.Flags(), &flags)
	return cmd
}

func bindFlags(f *pflag.FlagSet, flags *flagValues) {
	defaults := config.Default()
	f.StringVar(&flags.configPath, "config", "", "Path to YAML configuration file")
	f.StringVar(&flags.scrapeURL, "collector-url", defaults.Observer.ScrapeURL, "Collector metrics URL to scrape")
	f.StringVar(&flags.outputPath, "control-file", defaults.Observer.OutputPath, "Path to the control signal file")
	f.IntVar(&flags.interval, "interval", defaults.Observer.PollIntervalSeconds, "Poll interval in seconds")
	f.StringVar(&flags.namespace, "namespace", defaults.Observer.Namespace, "Metric name prefix to count")
	f.Float64Var(&flags.moderate, "moderate-threshold", defaults.Thresholds.Moderate, "Upper bound of the moderate tier")
	f.Float64Var(&flags.adaptive, "adaptive-threshold", defaults.Thresholds.Adaptive, "Upper bound of the adaptive tier")
	f.Float64Var(&flags.ultra, "ultra-threshold", defaults.Thresholds.Ultra, "Count at which ultra saturates at level 100")
	f.StringVar(&flags.logLevel, "log-level", defaults.Logging.Level, "Log level (debug, info, warn, error)")
	f.StringVar(&flags.metricsAddr, "metrics-address", defaults.Server.MetricsAddress, "Prometheus listen address; empty disables")
	f.StringVar(&flags.grpcAddr, "grpc-address", defaults.Server.Address, "gRPC health listen address; empty disables")
}

// loadConfig layers file, environment and explicitly set flags, then validates.
func loadConfig(fs *pflag.FlagSet, flags flagValues) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, utils.NewAppError(utils.KindConfig, "config", "load", err)
	}

	if fs.Changed("collector-url") {
		cfg.Observer.ScrapeURL = flags.scrapeURL
	}
	if fs.Changed("control-file") {
		cfg.Observer.OutputPath = flags.outputPath
	}
	if fs.Changed("interval") {
		cfg.Observer.PollIntervalSeconds = flags.interval
	}
	if fs.Changed("namespace") {
		cfg.Observer.Namespace = flags.namespace
	}
	if fs.Changed("moderate-threshold") {
		cfg.Thresholds.Moderate = flags.moderate
	}
	if fs.Changed("adaptive-threshold") {
		cfg.Thresholds.Adaptive = flags.adaptive
	}
	if fs.Changed("ultra-threshold") {
		cfg.Thresholds.Ultra = flags.ultra
	}
	if fs.Changed("log-level") {
		cfg.Logging.Level = flags.logLevel
	}
	if fs.Changed("metrics-address") {
		cfg.Server.MetricsAddress = flags.metricsAddr
	}
	if fs.Changed("grpc-address") {
		cfg.Server.Address = flags.grpcAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting cardinality observer",
		slog.Int("pipelines", len(cfg.ResolvedPipelines())),
		slog.Duration("interval", cfg.PollInterval()))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, utils.ServiceName, cfg.Tracing.Endpoint, cfg.Tracing.Insecure)
	if err != nil {
		logger.Warn("tracing disabled", slog.Any("error", err))
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	var provider cache.Provider
	if cfg.Mirror.Enabled {
		valkey, err := cache.NewValkeyProvider(ctx, cache.ValkeyConfig{
			Addr:        cfg.Mirror.Addr,
			Username:    cfg.Mirror.Username,
			Password:    cfg.Mirror.Password,
			DB:          cfg.Mirror.DB,
			DialTimeout: cfg.Mirror.DialTimeout,
			TLS:         cfg.Mirror.TLS,
		})
		if err != nil {
			logger.Warn("valkey mirror unavailable", slog.Any("error", err))
		} else {
			provider = valkey
			defer valkey.Close()
		}
	}

	var server *api.Server
	var health services.HealthReporter
	if cfg.Server.Address != "" {
		server, err = api.NewServer(cfg.Server)
		if err != nil {
			return fmt.Errorf("create gRPC server: %w", err)
		}
		health = server
		go func() {
			logger.Info("gRPC health server listening", slog.String("address", server.Address()))
			if serveErr := server.Start(); serveErr != nil {
				logger.Error("gRPC server exited", slog.Any("error", serveErr))
				stop()
			}
		}()
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	supervisor := services.NewSupervisor(logger, health)
	for _, p := range cfg.ResolvedPipelines() {
		var st store.Store = store.NewFileStore(p.OutputPath, logger)
		if provider != nil {
			st = store.NewFanout(logger, st, store.NewMirrorStore(provider, cfg.Mirror.KeyPrefix, p.Name, cfg.Mirror.TTL))
		}
		loop := engine.NewLoop(logger, engine.LoopConfig{
			Pipeline:   p.Name,
			Namespace:  p.Namespace,
			Interval:   cfg.PollInterval(),
			Thresholds: *p.Thresholds,
		}, repo.NewScrapeClient(p.ScrapeURL, cfg.Observer.ScrapeTimeout), st, engine.WithCycleHook(supervisor.Observe))
		logger.Info("monitoring pipeline",
			slog.String("pipeline", p.Name),
			slog.String("scrape_url", p.ScrapeURL),
			slog.String("control_file", p.OutputPath))
		supervisor.Add(loop)
	}

	runErr := supervisor.Run(ctx)
	logger.Info("shutdown signal received")

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
		server.Shutdown(shutdownCtx)
		cancel()
	}
	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	logger.Info("cardinality observer stopped")
	return runErr
}
