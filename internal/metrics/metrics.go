package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/miradorstack/cardinality-observer/internal/models"
)

const namespace = "cardinality_observer"

const (
	// OutcomeEmitted labels cycles that persisted a new signal.
	OutcomeEmitted = "emitted"
	// OutcomeNoop labels cycles that decided no signal was needed.
	OutcomeNoop = "noop"
	// OutcomeFetchError labels cycles skipped because the scrape failed.
	OutcomeFetchError = "fetch_error"
	// OutcomePersistError labels cycles whose signal could not be written.
	OutcomePersistError = "persist_error"
)

var (
	cyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Control loop cycles, partitioned by pipeline and outcome.",
		},
		[]string{"pipeline", "outcome"},
	)

	cycleDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_seconds",
			Help:      "Duration of a poll-classify-decide-persist cycle in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"pipeline"},
	)

	series = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "series",
			Help:      "Distinct series observed in the last successful scrape.",
		},
		[]string{"pipeline"},
	)

	optimizationLevel = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "optimization_level",
			Help:      "Optimization level (0-100) computed in the last successful scrape.",
		},
		[]string{"pipeline"},
	)

	mode = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mode",
			Help:      "Committed optimization mode, one-hot by mode label.",
		},
		[]string{"pipeline", "mode"},
	)

	signalsEmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_emitted_total",
			Help:      "Control signals persisted, partitioned by trigger.",
		},
		[]string{"pipeline", "trigger"},
	)

	modeChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mode_changes_total",
			Help:      "Committed mode transitions.",
		},
		[]string{"pipeline"},
	)

	malformedLinesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_lines_total",
			Help:      "Scrape lines skipped because they could not be parsed.",
		},
		[]string{"pipeline"},
	)
)

// Register attaches observer collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		cyclesTotal,
		cycleDurationSeconds,
		series,
		optimizationLevel,
		mode,
		signalsEmittedTotal,
		modeChangesTotal,
		malformedLinesTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveCycle records a cycle duration and outcome label.
func ObserveCycle(pipeline string, duration time.Duration, outcome string) {
	cyclesTotal.WithLabelValues(pipeline, outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	cycleDurationSeconds.WithLabelValues(pipeline).Observe(duration.Seconds())
}

// ObserveSample records the latest count and computed level.
func ObserveSample(pipeline string, count, level, malformed int) {
	series.WithLabelValues(pipeline).Set(float64(count))
	optimizationLevel.WithLabelValues(pipeline).Set(float64(level))
	if malformed > 0 {
		malformedLinesTotal.WithLabelValues(pipeline).Add(float64(malformed))
	}
}

// ObserveEmission records a persisted signal.
func ObserveEmission(pipeline, trigger string, modeChanged bool) {
	signalsEmittedTotal.WithLabelValues(pipeline, trigger).Inc()
	if modeChanged {
		modeChangesTotal.WithLabelValues(pipeline).Inc()
	}
}

// SetMode marks current as the committed mode for pipeline.
func SetMode(pipeline string, current models.Mode) {
	for _, m := range models.Modes() {
		value := 0.0
		if m == current {
			value = 1
		}
		mode.WithLabelValues(pipeline, m.String()).Set(value)
	}
}
