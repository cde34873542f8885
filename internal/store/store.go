// Package store persists control signals for the pipeline reconciler.
package store

import (
	"context"
	"log/slog"

	"github.com/miradorstack/cardinality-observer/internal/models"
)

// Store persists the latest control signal. Readers must only ever observe a
// complete document, either the previous one or the new one.
type Store interface {
	Write(ctx context.Context, signal models.ControlSignal) error
}

// Fanout writes to a primary store and then to best-effort mirrors. Only a
// primary failure is reported to the caller.
type Fanout struct {
	primary Store
	mirrors []Store
	logger  *slog.Logger
}

// NewFanout combines a primary store with optional mirrors.
func NewFanout(logger *slog.Logger, primary Store, mirrors ...Store) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{primary: primary, mirrors: mirrors, logger: logger}
}

// Write persists to the primary store, then mirrors on success.
func (f *Fanout) Write(ctx context.Context, signal models.ControlSignal) error {
	if err := f.primary.Write(ctx, signal); err != nil {
		return err
	}
	for _, mirror := range f.mirrors {
		if err := mirror.Write(ctx, signal); err != nil {
			f.logger.Warn("control signal mirror failed",
				slog.String("correlation_id", signal.CorrelationID),
				slog.Any("error", err))
		}
	}
	return nil
}
