package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/change-service/internal/service"
)

// Sweeper runs one escalation pass.
type Sweeper interface {
	Sweep(ctx context.Context) (service.SweepResult, error)
}

// EscalationWorker runs the escalation sweep on a fixed interval.
type EscalationWorker struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *zap.Logger
}

// NewEscalationWorker constructs the worker.
func NewEscalationWorker(sweeper Sweeper, interval time.Duration, logger *zap.Logger) *EscalationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &EscalationWorker{sweeper: sweeper, interval: interval, logger: logger}
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
// A failed sweep is logged and retried on the next tick.
func (w *EscalationWorker) Run(ctx context.Context) error {
	w.logger.Info("escalation worker started", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.sweeper.Sweep(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("escalation sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			w.logger.Info("escalation worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}
