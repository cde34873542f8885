package signal

import (
	"fmt"
	"strconv"
	"time"

	"github.com/miradorstack/cardinality-observer/internal/models"
)

// HysteresisBand is the count delta that re-emits a signal without a mode change.
const HysteresisBand = 50

// DefaultSource prefixes correlation IDs when no pipeline name is configured.
const DefaultSource = "observer"

// Trigger explains why a signal was emitted.
type Trigger string

const (
	TriggerNone       Trigger = ""
	TriggerModeChange Trigger = "mode_change"
	TriggerMagnitude  Trigger = "magnitude"
)

// Decision is the generator output for one cycle. Next is the loop state to
// commit once the signal is durably written; it equals the input state when
// Emit is false.
type Decision struct {
	Emit    bool
	Trigger Trigger
	Signal  models.ControlSignal
	Next    models.LoopState
}

// Generator builds control signals. It performs no I/O; the only external
// input is its clock, which feeds timestamps and the config version.
type Generator struct {
	source     string
	thresholds models.ThresholdSet
	now        func() time.Time
}

// Option customises a Generator.
type Option func(*Generator)

// WithClock overrides the wall clock used for timestamps and versions.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// WithSource sets the correlation ID prefix.
func WithSource(source string) Option {
	return func(g *Generator) {
		if source != "" {
			g.source = source
		}
	}
}

// NewGenerator returns a generator stamping signals with the given thresholds.
func NewGenerator(thresholds models.ThresholdSet, opts ...Option) *Generator {
	g := &Generator{source: DefaultSource, thresholds: thresholds, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Decide reports whether the observation warrants a new signal and builds it.
func (g *Generator) Decide(sample models.CardinalitySample, class models.Classification, state models.LoopState) Decision {
	modeChanged := class.Mode != state.CurrentMode
	delta := sample.Count - state.LastCount
	if !modeChanged && abs(delta) <= HysteresisBand {
		return Decision{Next: state}
	}

	now := g.now().UTC()
	next := models.LoopState{
		CurrentMode: class.Mode,
		LastCount:   sample.Count,
		ModeChanges: state.ModeChanges,
	}

	trigger := TriggerMagnitude
	reason := fmt.Sprintf("cardinality update: %d series (change: %+d)", sample.Count, delta)
	if modeChanged {
		trigger = TriggerModeChange
		next.ModeChanges++
		reason = fmt.Sprintf("mode change: %s → %s (cardinality: %d)", state.CurrentMode, class.Mode, sample.Count)
	}

	return Decision{
		Emit:    true,
		Trigger: trigger,
		Next:    next,
		Signal: models.ControlSignal{
			Mode:                   class.Mode,
			OptimizationLevel:      class.Level,
			Reason:                 reason,
			TSCount:                sample.Count,
			ConfigVersion:          now.Unix(),
			CorrelationID:          fmt.Sprintf("%s-%d", g.source, now.Unix()),
			Thresholds:             g.thresholds,
			PreviousMode:           state.CurrentMode,
			LastUpdated:            now,
			TransitionTimestamp:    now,
			StabilityPeriodSeconds: models.StabilityPeriodSeconds,
			ModeChangesTotal:       next.ModeChanges,
			Analysis:               g.analysis(sample),
		},
	}
}

func (g *Generator) analysis(sample models.CardinalitySample) models.CardinalityAnalysis {
	potential := float64(sample.Count) - g.thresholds.Moderate
	if potential < 0 {
		potential = 0
	}
	return models.CardinalityAnalysis{
		TotalMetrics:       sample.TotalSeries,
		UniqueSeries:       sample.Count,
		ReductionPotential: strconv.FormatFloat(potential, 'f', -1, 64) + " series",
		SampleMetrics:      append([]string(nil), sample.SampleKeys...),
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
