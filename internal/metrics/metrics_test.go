package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/cardinality-observer/internal/models"
)

func TestRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg))
}

func TestObserveHelpers(t *testing.T) {
	const pipeline = "metrics-test"

	ObserveCycle(pipeline, 20*time.Millisecond, OutcomeEmitted)
	ObserveCycle(pipeline, -time.Second, OutcomeNoop)
	assert.Equal(t, 1.0, testutil.ToFloat64(cyclesTotal.WithLabelValues(pipeline, OutcomeEmitted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(cyclesTotal.WithLabelValues(pipeline, OutcomeNoop)))

	ObserveSample(pipeline, 337, 50, 2)
	assert.Equal(t, 337.0, testutil.ToFloat64(series.WithLabelValues(pipeline)))
	assert.Equal(t, 50.0, testutil.ToFloat64(optimizationLevel.WithLabelValues(pipeline)))
	assert.Equal(t, 2.0, testutil.ToFloat64(malformedLinesTotal.WithLabelValues(pipeline)))

	ObserveEmission(pipeline, "mode_change", true)
	ObserveEmission(pipeline, "magnitude", false)
	assert.Equal(t, 1.0, testutil.ToFloat64(modeChangesTotal.WithLabelValues(pipeline)))

	SetMode(pipeline, models.ModeAdaptive)
	assert.Equal(t, 0.0, testutil.ToFloat64(mode.WithLabelValues(pipeline, "moderate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(mode.WithLabelValues(pipeline, "adaptive")))
	assert.Equal(t, 0.0, testutil.ToFloat64(mode.WithLabelValues(pipeline, "ultra")))
}
