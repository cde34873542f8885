package estimator

import (
	"strings"
	"time"

	"github.com/miradorstack/cardinality-observer/internal/models"
)

// DefaultNamespace is the metric prefix monitored when none is configured.
const DefaultNamespace = "phoenix_"

// maxSampleKeys bounds the series keys carried into signal metadata.
const maxSampleKeys = 5

// Estimator counts distinct series of one metric namespace in exposition text.
type Estimator struct {
	namespace string
}

// New creates an estimator for the given metric-name prefix.
func New(namespace string) *Estimator {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Estimator{namespace: namespace}
}

// Namespace returns the monitored prefix.
func (e *Estimator) Namespace() string { return e.namespace }

// Estimate parses a scrape body. Label blocks are compared verbatim, so the
// same labels written in a different order count as separate series.
// Each line is judged on its own; malformed lines are skipped and counted,
// never fatal, whatever their length.
func (e *Estimator) Estimate(text string, observedAt time.Time) models.CardinalitySample {
	sample := models.CardinalitySample{ObservedAt: observedAt}
	seen := make(map[string]struct{})

	for rest := text; rest != ""; {
		var line string
		line, rest, _ = strings.Cut(rest, "\n")
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || !strings.HasPrefix(line, e.namespace) {
			continue
		}
		key, ok := SeriesKey(line)
		if !ok {
			sample.Malformed++
			continue
		}
		sample.TotalSeries++
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if len(sample.SampleKeys) < maxSampleKeys {
			sample.SampleKeys = append(sample.SampleKeys, key)
		}
	}

	sample.Count = len(seen)
	return sample
}

// SeriesKey returns "name#labels" for a labelled sample line or the bare
// metric name otherwise. The label block is kept byte-for-byte.
func SeriesKey(line string) (string, bool) {
	open := strings.IndexAny(line, "{ \t")
	if open == -1 {
		return line, true
	}
	if line[open] != '{' {
		name := line[:open]
		return name, name != ""
	}

	name := line[:open]
	if name == "" {
		return "", false
	}
	end := closingBrace(line, open+1)
	if end == -1 {
		return "", false
	}
	return name + "#" + line[open+1:end], true
}

// closingBrace finds the '}' ending a label block, skipping braces and
// escaped quotes inside quoted label values.
func closingBrace(line string, from int) int {
	inQuotes := false
	for i := from; i < len(line); i++ {
		switch c := line[i]; {
		case inQuotes && c == '\\':
			i++
		case c == '"':
			inQuotes = !inQuotes
		case !inQuotes && c == '}':
			return i
		}
	}
	return -1
}
