package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// StabilityPeriodSeconds is advertised to the reconciler on every signal.
const StabilityPeriodSeconds = 300

// ErrThresholdOrder reports thresholds that are not strictly increasing.
var ErrThresholdOrder = errors.New("thresholds must satisfy moderate < adaptive < ultra")

// ThresholdSet bounds the three optimization tiers.
type ThresholdSet struct {
	Moderate float64 `yaml:"moderate"`
	Adaptive float64 `yaml:"adaptive"`
	Ultra    float64 `yaml:"ultra"`
}

// DefaultThresholds mirrors the observer's shipped tuning.
func DefaultThresholds() ThresholdSet {
	return ThresholdSet{Moderate: 300, Adaptive: 375, Ultra: 450}
}

// Validate enforces moderate < adaptive < ultra over finite, non-negative values.
func (t ThresholdSet) Validate() error {
	values := []struct {
		name  string
		value float64
	}{{"moderate", t.Moderate}, {"adaptive", t.Adaptive}, {"ultra", t.Ultra}}
	for _, v := range values {
		if math.IsNaN(v.value) || math.IsInf(v.value, 0) {
			return fmt.Errorf("threshold %s must be finite", v.name)
		}
		if v.value < 0 {
			return fmt.Errorf("threshold %s must be non-negative, got %g", v.name, v.value)
		}
	}
	if !(t.Moderate < t.Adaptive && t.Adaptive < t.Ultra) {
		return fmt.Errorf("%w: got %g/%g/%g", ErrThresholdOrder, t.Moderate, t.Adaptive, t.Ultra)
	}
	return nil
}

// CardinalitySample is the estimator output for a single scrape.
type CardinalitySample struct {
	Count       int
	TotalSeries int
	ObservedAt  time.Time
	// SampleKeys holds up to five distinct series keys in scrape order.
	SampleKeys []string
	// Malformed counts qualifying lines that could not be parsed.
	Malformed int
}

// Classification is the tier and actuation value derived from a count.
type Classification struct {
	Mode  Mode
	Level int
}

// LoopState is the control loop's memory between cycles.
type LoopState struct {
	CurrentMode Mode
	LastCount   int
	ModeChanges int
}

// DefaultLoopState is the state of a freshly started loop.
func DefaultLoopState() LoopState {
	return LoopState{CurrentMode: ModeModerate}
}

// CardinalityAnalysis is diagnostic context attached to a signal.
type CardinalityAnalysis struct {
	TotalMetrics       int
	UniqueSeries       int
	ReductionPotential string
	SampleMetrics      []string
}

// ControlSignal is the decision record consumed by the pipeline reconciler.
type ControlSignal struct {
	Mode                   Mode
	OptimizationLevel      int
	Reason                 string
	TSCount                int
	ConfigVersion          int64
	CorrelationID          string
	Thresholds             ThresholdSet
	PreviousMode           Mode
	LastUpdated            time.Time
	TransitionTimestamp    time.Time
	StabilityPeriodSeconds int
	ModeChangesTotal       int
	Analysis               CardinalityAnalysis
}
