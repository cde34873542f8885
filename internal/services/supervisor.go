package services

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/miradorstack/cardinality-observer/internal/engine"
	"github.com/miradorstack/cardinality-observer/internal/metrics"
	"github.com/miradorstack/cardinality-observer/internal/utils"
)

// HealthReporter receives per-pipeline health transitions.
type HealthReporter interface {
	SetPipelineHealth(pipeline string, serving bool)
}

// Supervisor runs one independent control loop per monitored pipeline. Loops
// share no mutable state; the supervisor only aggregates their results.
type Supervisor struct {
	logger    *slog.Logger
	health    HealthReporter
	latencies *utils.LatencyTracker

	mu      sync.Mutex
	loops   []*engine.Loop
	serving map[string]bool
	cycles  int
}

// NewSupervisor constructs a supervisor; health may be nil.
func NewSupervisor(logger *slog.Logger, health HealthReporter) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		logger:    logger,
		health:    health,
		latencies: utils.NewLatencyTracker(1024),
		serving:   make(map[string]bool),
	}
}

// Add registers a loop. Loops should be built with WithCycleHook(s.Observe).
func (s *Supervisor) Add(loop *engine.Loop) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loops = append(s.loops, loop)
	if s.health != nil {
		s.health.SetPipelineHealth(loop.Pipeline(), false)
	}
}

// Loops returns the registered loops.
func (s *Supervisor) Loops() []*engine.Loop {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*engine.Loop(nil), s.loops...)
}

// Run starts every loop and blocks until all have stopped.
func (s *Supervisor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, loop := range s.Loops() {
		loop := loop
		g.Go(func() error {
			return loop.Run(gctx)
		})
	}
	return g.Wait()
}

// Observe is the cycle hook shared by all loops.
func (s *Supervisor) Observe(res engine.CycleResult) {
	serving := res.Outcome != metrics.OutcomeFetchError

	s.mu.Lock()
	previous, known := s.serving[res.Pipeline]
	s.serving[res.Pipeline] = serving
	s.cycles++
	cycles := s.cycles
	s.mu.Unlock()

	if (!known || previous != serving) && s.health != nil {
		s.health.SetPipelineHealth(res.Pipeline, serving)
	}
	if known && previous != serving {
		s.logger.Info("pipeline health changed", slog.String("pipeline", res.Pipeline), slog.Bool("serving", serving))
	}

	s.latencies.Observe(res.Duration)
	if cycles%20 == 0 {
		s.logger.Info("cycle latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", s.latencies.Count()))
	}
}

// Serving reports the last known health of a pipeline.
func (s *Supervisor) Serving(pipeline string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serving[pipeline]
}
