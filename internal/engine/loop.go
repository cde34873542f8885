package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/miradorstack/cardinality-observer/internal/classifier"
	"github.com/miradorstack/cardinality-observer/internal/estimator"
	"github.com/miradorstack/cardinality-observer/internal/metrics"
	"github.com/miradorstack/cardinality-observer/internal/models"
	"github.com/miradorstack/cardinality-observer/internal/signal"
	"github.com/miradorstack/cardinality-observer/internal/store"
	"github.com/miradorstack/cardinality-observer/internal/tracing"
	"github.com/miradorstack/cardinality-observer/internal/utils"
)

// Scraper fetches raw exposition text from a metrics source.
type Scraper interface {
	Scrape(ctx context.Context) (string, error)
}

// LoopConfig is the fixed, pre-validated configuration of one loop.
type LoopConfig struct {
	Pipeline   string
	Namespace  string
	Interval   time.Duration
	Thresholds models.ThresholdSet
}

// CycleResult reports what a single cycle did.
type CycleResult struct {
	Pipeline       string
	Outcome        string
	Sample         models.CardinalitySample
	Classification models.Classification
	Decision       signal.Decision
	State          models.LoopState
	Duration       time.Duration
	Err            error
}

// Loop runs poll → estimate → classify → decide → persist for one pipeline.
// It owns the pipeline's LoopState; cycles never overlap.
type Loop struct {
	cfg       LoopConfig
	scraper   Scraper
	store     store.Store
	estimator *estimator.Estimator
	generator *signal.Generator
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
	onCycle   func(CycleResult)

	// mu guards state for State() readers; only the loop goroutine writes it.
	mu    sync.RWMutex
	state models.LoopState
}

// Option customises a Loop.
type Option func(*Loop)

// WithClock overrides the wall clock for samples and signals.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) {
		if now != nil {
			l.now = now
		}
	}
}

// WithTracer overrides the tracer used for cycle spans.
func WithTracer(t trace.Tracer) Option {
	return func(l *Loop) {
		if t != nil {
			l.tracer = t
		}
	}
}

// WithCycleHook registers a callback invoked after every cycle.
func WithCycleHook(fn func(CycleResult)) Option {
	return func(l *Loop) { l.onCycle = fn }
}

// NewLoop constructs a loop starting from the default state.
func NewLoop(logger *slog.Logger, cfg LoopConfig, scraper Scraper, st store.Store, opts ...Option) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loop{
		cfg:       cfg,
		scraper:   scraper,
		store:     st,
		estimator: estimator.New(cfg.Namespace),
		logger:    logger.With(slog.String("pipeline", cfg.Pipeline)),
		tracer:    tracing.Tracer(),
		now:       time.Now,
		state:     models.DefaultLoopState(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.generator = signal.NewGenerator(cfg.Thresholds, signal.WithClock(l.now), signal.WithSource(cfg.Pipeline))
	return l
}

// Pipeline returns the monitored pipeline name.
func (l *Loop) Pipeline() string { return l.cfg.Pipeline }

// State returns a snapshot of the committed loop state.
func (l *Loop) State() models.LoopState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Run executes cycles until ctx is cancelled. The first cycle starts
// immediately; later ones follow a fixed delay. Cancellation is only observed
// between cycles, so an in-flight cycle always completes.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("control loop starting",
		slog.String("namespace", l.estimator.Namespace()),
		slog.Duration("interval", l.cfg.Interval),
		slog.Float64("moderate", l.cfg.Thresholds.Moderate),
		slog.Float64("adaptive", l.cfg.Thresholds.Adaptive),
		slog.Float64("ultra", l.cfg.Thresholds.Ultra))
	metrics.SetMode(l.cfg.Pipeline, l.State().CurrentMode)

	cycleCtx := context.WithoutCancel(ctx)
	for iteration := 1; ; iteration++ {
		if ctx.Err() != nil {
			break
		}
		res := l.RunCycle(cycleCtx)
		l.logger.Debug("cycle finished", slog.Int("iteration", iteration), slog.String("outcome", res.Outcome))

		timer := time.NewTimer(l.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}

	l.logger.Info("control loop stopped", slog.Int("mode_changes", l.State().ModeChanges))
	return nil
}

// RunCycle performs one full cycle against the committed state. Every
// failure is absorbed and reported in the result.
func (l *Loop) RunCycle(ctx context.Context) CycleResult {
	start := l.now()
	ctx, span := l.tracer.Start(ctx, "observer.cycle", trace.WithAttributes(attribute.String("pipeline", l.cfg.Pipeline)))
	defer span.End()

	res := l.cycle(ctx)
	res.Pipeline = l.cfg.Pipeline
	res.State = l.State()
	res.Duration = l.now().Sub(start)

	span.SetAttributes(
		attribute.String("outcome", res.Outcome),
		attribute.Int("series", res.Sample.Count),
		attribute.String("mode", res.Classification.Mode.String()),
		attribute.Int("optimization_level", res.Classification.Level),
		attribute.Bool("emitted", res.Outcome == metrics.OutcomeEmitted),
	)
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	}

	metrics.ObserveCycle(l.cfg.Pipeline, res.Duration, res.Outcome)
	if l.onCycle != nil {
		l.onCycle(res)
	}
	return res
}

func (l *Loop) cycle(ctx context.Context) CycleResult {
	body, err := l.scraper.Scrape(ctx)
	if err != nil {
		l.logger.Warn("scrape failed, skipping cycle", slog.Any("error", err))
		return CycleResult{Outcome: metrics.OutcomeFetchError, Err: err}
	}

	sample := l.estimator.Estimate(body, l.now().UTC())
	if sample.Malformed > 0 {
		l.logger.Warn("malformed scrape lines skipped",
			slog.String("kind", string(utils.KindParse)),
			slog.Int("malformed", sample.Malformed),
			slog.Int("series", sample.Count))
	}
	class := classifier.Classify(sample.Count, l.cfg.Thresholds)
	metrics.ObserveSample(l.cfg.Pipeline, sample.Count, class.Level, sample.Malformed)

	state := l.State()
	decision := l.generator.Decide(sample, class, state)
	res := CycleResult{Sample: sample, Classification: class, Decision: decision}

	l.logger.Info("cardinality observed",
		slog.Int("series", sample.Count),
		slog.Int("total_lines", sample.TotalSeries),
		slog.String("mode", class.Mode.String()),
		slog.Int("optimization_level", class.Level))

	if !decision.Emit {
		l.logger.Debug("no signal needed", slog.String("current_mode", state.CurrentMode.String()))
		res.Outcome = metrics.OutcomeNoop
		return res
	}

	if err := l.store.Write(ctx, decision.Signal); err != nil {
		// State stays uncommitted so the next cycle re-derives and retries the signal.
		l.logger.Error("control signal write failed",
			slog.String("correlation_id", decision.Signal.CorrelationID),
			slog.Any("error", err))
		res.Outcome = metrics.OutcomePersistError
		res.Err = err
		return res
	}

	l.commit(decision.Next)
	metrics.ObserveEmission(l.cfg.Pipeline, string(decision.Trigger), decision.Trigger == signal.TriggerModeChange)
	metrics.SetMode(l.cfg.Pipeline, decision.Next.CurrentMode)
	l.logger.Info("control signal written",
		slog.String("mode", decision.Signal.Mode.String()),
		slog.String("previous_mode", decision.Signal.PreviousMode.String()),
		slog.Int("optimization_level", decision.Signal.OptimizationLevel),
		slog.String("reason", decision.Signal.Reason),
		slog.Int64("config_version", decision.Signal.ConfigVersion))
	res.Outcome = metrics.OutcomeEmitted
	return res
}

func (l *Loop) commit(next models.LoopState) {
	l.mu.Lock()
	l.state = next
	l.mu.Unlock()
}
