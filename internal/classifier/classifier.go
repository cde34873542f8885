// Package classifier maps a series count onto an optimization tier and level.
//
// Tiers use wide intermediate bands (adaptive 26-75, ultra 76-100) so the
// downstream actuator gets graduated authority instead of an on/off switch.
// Levels are rounded half away from zero; every operand is non-negative, so
// this is plain half-up rounding.
package classifier

import (
	"math"

	"github.com/miradorstack/cardinality-observer/internal/models"
)

const (
	adaptiveFloor = 26
	adaptiveCeil  = 75
	ultraFloor    = 76
	ultraCeil     = 100
)

// Classify returns the tier and 0-100 level for count. Thresholds must
// already be validated.
func Classify(count int, t models.ThresholdSet) models.Classification {
	c := float64(count)
	switch {
	case c <= t.Moderate:
		return models.Classification{Mode: models.ModeModerate, Level: 0}
	case c <= t.Adaptive:
		position := (c - t.Moderate) / (t.Adaptive - t.Moderate)
		level := round(adaptiveFloor + position*(adaptiveCeil-adaptiveFloor))
		return models.Classification{Mode: models.ModeAdaptive, Level: clamp(level, adaptiveFloor, adaptiveCeil)}
	}

	excess := c - t.Adaptive
	maxExcess := t.Ultra - t.Adaptive
	if excess >= maxExcess {
		return models.Classification{Mode: models.ModeUltra, Level: ultraCeil}
	}
	level := round(ultraFloor + (excess/maxExcess)*(ultraCeil-ultraFloor))
	return models.Classification{Mode: models.ModeUltra, Level: clamp(level, ultraFloor, ultraCeil)}
}

func round(v float64) int {
	return int(math.Round(v))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
