package usecase

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"EcoPulse/internal/logging"
	"EcoPulse/internal/ports"
)

// Scheduler wires the cron-like driver with the pipeline use case.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	logger   *slog.Logger
	running  atomic.Bool
}

// NewScheduler returns a helper to start/stop recurring jobs.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, log *slog.Logger) *Scheduler {
	if log == nil {
		log = logging.Discard()
	}
	return &Scheduler{driver: driver, pipeline: pipeline, logger: log}
}

// Start registers the pipeline with the provided scheduler. A trigger that
// fires while a run is still in progress is skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	return s.driver.Start(ctx, func(trigger time.Time) {
		s.runOnce(ctx, trigger)
	})
}

func (s *Scheduler) runOnce(ctx context.Context, trigger time.Time) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("previous run still in progress, trigger skipped", "trigger", trigger)
		return
	}
	defer s.running.Store(false)

	summary, err := s.pipeline.Run(ctx)
	if err != nil {
		s.logger.Error("scheduled run failed", "trigger", trigger, "run_id", summary.RunID, "error", err)
		return
	}
	s.logger.Info("scheduled run complete", "trigger", trigger, "run_id", summary.RunID, "topics", summary.TopicsProcessed)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
