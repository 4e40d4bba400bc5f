package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/service"
)

// BreachSweeper is the part of the SLA service the worker drives.
type BreachSweeper interface {
	CheckAllBreaches(ctx context.Context) (service.SweepResult, error)
}

// SLAWorker periodically re-evaluates breach flags on every open tracked ticket.
type SLAWorker struct {
	sweeper  BreachSweeper
	interval time.Duration
	logger   *zap.Logger
}

// NewSLAWorker builds a worker. A non-positive interval disables it.
func NewSLAWorker(sweeper BreachSweeper, interval time.Duration, logger *zap.Logger) *SLAWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SLAWorker{sweeper: sweeper, interval: interval, logger: logger}
}

// Enabled reports whether Run will do anything.
func (w *SLAWorker) Enabled() bool {
	return w != nil && w.sweeper != nil && w.interval > 0
}

// Run sweeps on every tick until ctx is cancelled. It blocks.
func (w *SLAWorker) Run(ctx context.Context) {
	if !w.Enabled() {
		w.logger.Info("sla sweep worker disabled")
		return
	}
	w.logger.Info("sla sweep worker started", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("sla sweep worker stopped")
			return
		case <-ticker.C:
			w.sweepOnce(ctx)
		}
	}
}

func (w *SLAWorker) sweepOnce(ctx context.Context) {
	result, err := w.sweeper.CheckAllBreaches(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.logger.Error("sla sweep failed", zap.Error(err))
		return
	}
	if result.Failed > 0 {
		w.logger.Warn("sla sweep finished with failures",
			zap.Int("checked", result.Checked),
			zap.Int("failed", result.Failed),
		)
	}
}
