package models

import (
	"fmt"
	"strings"
)

// Mode is the discrete optimization tier requested from the pipeline.
type Mode string

const (
	ModeModerate Mode = "moderate"
	ModeAdaptive Mode = "adaptive"
	ModeUltra    Mode = "ultra"
)

// Modes returns every tier ordered by severity.
func Modes() []Mode {
	return []Mode{ModeModerate, ModeAdaptive, ModeUltra}
}

// Valid reports whether m is a known tier.
func (m Mode) Valid() bool {
	return m.Severity() >= 0
}

// Severity orders tiers: moderate < adaptive < ultra. Unknown tiers return -1.
func (m Mode) Severity() int {
	switch m {
	case ModeModerate:
		return 0
	case ModeAdaptive:
		return 1
	case ModeUltra:
		return 2
	}
	return -1
}

// ParseMode converts a persisted mode name back into a Mode.
func ParseMode(value string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(value)))
	if !m.Valid() {
		return "", fmt.Errorf("unknown mode %q", value)
	}
	return m, nil
}

func (m Mode) String() string { return string(m) }
