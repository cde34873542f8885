package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/miradorstack/cardinality-observer/internal/models"
)

var defaults = models.ThresholdSet{Moderate: 300, Adaptive: 375, Ultra: 450}

func TestClassifyBoundaries(t *testing.T) {
	cases := []struct {
		count int
		mode  models.Mode
		level int
	}{
		{0, models.ModeModerate, 0},
		{300, models.ModeModerate, 0},
		{301, models.ModeAdaptive, 27},
		{337, models.ModeAdaptive, 50},
		{375, models.ModeAdaptive, 75},
		{376, models.ModeUltra, 76},
		{449, models.ModeUltra, 100},
		{450, models.ModeUltra, 100},
		{600, models.ModeUltra, 100},
	}
	for _, tc := range cases {
		got := Classify(tc.count, defaults)
		assert.Equal(t, tc.mode, got.Mode, "count=%d", tc.count)
		assert.Equal(t, tc.level, got.Level, "count=%d", tc.count)
	}
}

func TestClassifyMonotone(t *testing.T) {
	prev := Classify(0, defaults)
	for count := 1; count <= 1000; count++ {
		cur := Classify(count, defaults)
		if cur.Level < prev.Level {
			t.Fatalf("level decreased from %d to %d at count %d", prev.Level, cur.Level, count)
		}
		if cur.Mode.Severity() < prev.Mode.Severity() {
			t.Fatalf("mode decreased from %s to %s at count %d", prev.Mode, cur.Mode, count)
		}
		prev = cur
	}
}

func TestClassifyLevelsStayInBand(t *testing.T) {
	narrow := models.ThresholdSet{Moderate: 10, Adaptive: 11, Ultra: 12}
	for count := 0; count <= 20; count++ {
		got := Classify(count, narrow)
		switch got.Mode {
		case models.ModeModerate:
			assert.Zero(t, got.Level)
		case models.ModeAdaptive:
			assert.GreaterOrEqual(t, got.Level, 26)
			assert.LessOrEqual(t, got.Level, 75)
		case models.ModeUltra:
			assert.GreaterOrEqual(t, got.Level, 76)
			assert.LessOrEqual(t, got.Level, 100)
		}
	}
}

func TestClassifyFractionalThresholds(t *testing.T) {
	th := models.ThresholdSet{Moderate: 99.5, Adaptive: 150.25, Ultra: 200}
	assert.Equal(t, models.ModeModerate, Classify(99, th).Mode)
	assert.Equal(t, models.ModeAdaptive, Classify(100, th).Mode)
	assert.Equal(t, models.ModeAdaptive, Classify(150, th).Mode)
	assert.Equal(t, models.ModeUltra, Classify(151, th).Mode)
}
