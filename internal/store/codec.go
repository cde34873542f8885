package store

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/cardinality-observer/internal/models"
	"github.com/miradorstack/cardinality-observer/internal/utils"
)

// document is the on-disk layout read by the pipeline reconciler. Field order
// is the key order in the emitted YAML.
type document struct {
	Mode              string              `yaml:"mode"`
	LastUpdated       string              `yaml:"last_updated"`
	Reason            string              `yaml:"reason"`
	TSCount           int                 `yaml:"ts_count"`
	ConfigVersion     int64               `yaml:"config_version"`
	CorrelationID     string              `yaml:"correlation_id"`
	OptimizationLevel int                 `yaml:"optimization_level"`
	Thresholds        models.ThresholdSet `yaml:"thresholds"`
	State             stateDocument       `yaml:"state"`
	ObserverMetadata  metadataDocument    `yaml:"observer_metadata"`
}

type stateDocument struct {
	PreviousMode              string `yaml:"previous_mode"`
	TransitionTimestamp       string `yaml:"transition_timestamp"`
	TransitionDurationSeconds int    `yaml:"transition_duration_seconds"`
	StabilityPeriodSeconds    int    `yaml:"stability_period_seconds"`
	ModeChangesTotal          int    `yaml:"mode_changes_total"`
}

type metadataDocument struct {
	CardinalityAnalysis analysisDocument `yaml:"cardinality_analysis"`
}

type analysisDocument struct {
	TotalMetrics       int      `yaml:"total_phoenix_metrics"`
	UniqueTimeSeries   int      `yaml:"unique_time_series"`
	ReductionPotential string   `yaml:"reduction_potential"`
	SampleMetrics      []string `yaml:"sample_metrics"`
}

// Encode renders a signal as the control file YAML document.
func Encode(s models.ControlSignal) ([]byte, error) {
	sampleMetrics := s.Analysis.SampleMetrics
	if sampleMetrics == nil {
		sampleMetrics = []string{}
	}
	doc := document{
		Mode:              s.Mode.String(),
		LastUpdated:       utils.FormatRFC3339(s.LastUpdated),
		Reason:            s.Reason,
		TSCount:           s.TSCount,
		ConfigVersion:     s.ConfigVersion,
		CorrelationID:     s.CorrelationID,
		OptimizationLevel: s.OptimizationLevel,
		Thresholds:        s.Thresholds,
		State: stateDocument{
			PreviousMode:              s.PreviousMode.String(),
			TransitionTimestamp:       utils.FormatRFC3339(s.TransitionTimestamp),
			TransitionDurationSeconds: 0,
			StabilityPeriodSeconds:    s.StabilityPeriodSeconds,
			ModeChangesTotal:          s.ModeChangesTotal,
		},
		ObserverMetadata: metadataDocument{
			CardinalityAnalysis: analysisDocument{
				TotalMetrics:       s.Analysis.TotalMetrics,
				UniqueTimeSeries:   s.Analysis.UniqueSeries,
				ReductionPotential: s.Analysis.ReductionPotential,
				SampleMetrics:      sampleMetrics,
			},
		},
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode control signal: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode control signal: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses a control file document back into a signal.
func Decode(data []byte) (models.ControlSignal, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return models.ControlSignal{}, fmt.Errorf("parse control signal: %w", err)
	}

	mode, err := models.ParseMode(doc.Mode)
	if err != nil {
		return models.ControlSignal{}, fmt.Errorf("control signal mode: %w", err)
	}
	previous, err := models.ParseMode(doc.State.PreviousMode)
	if err != nil {
		return models.ControlSignal{}, fmt.Errorf("control signal previous_mode: %w", err)
	}
	lastUpdated, err := utils.ParseRFC3339(doc.LastUpdated)
	if err != nil {
		return models.ControlSignal{}, fmt.Errorf("control signal last_updated: %w", err)
	}
	transition, err := utils.ParseRFC3339(doc.State.TransitionTimestamp)
	if err != nil {
		return models.ControlSignal{}, fmt.Errorf("control signal transition_timestamp: %w", err)
	}

	analysis := doc.ObserverMetadata.CardinalityAnalysis
	return models.ControlSignal{
		Mode:                   mode,
		OptimizationLevel:      doc.OptimizationLevel,
		Reason:                 doc.Reason,
		TSCount:                doc.TSCount,
		ConfigVersion:          doc.ConfigVersion,
		CorrelationID:          doc.CorrelationID,
		Thresholds:             doc.Thresholds,
		PreviousMode:           previous,
		LastUpdated:            lastUpdated,
		TransitionTimestamp:    transition,
		StabilityPeriodSeconds: doc.State.StabilityPeriodSeconds,
		ModeChangesTotal:       doc.State.ModeChangesTotal,
		Analysis: models.CardinalityAnalysis{
			TotalMetrics:       analysis.TotalMetrics,
			UniqueSeries:       analysis.UniqueTimeSeries,
			ReductionPotential: analysis.ReductionPotential,
			SampleMetrics:      analysis.SampleMetrics,
		},
	}, nil
}
