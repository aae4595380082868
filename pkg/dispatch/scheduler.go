package dispatch

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// SchedulerConfig controls the scheduled-notification sweep.
type SchedulerConfig struct {
	// Spec is a cron expression for the sweep cadence.
	Spec string `env:"DISPATCH_SWEEP_SPEC" envDefault:"@every 30s"`
}

// Scheduler periodically sweeps the status table and dispatches Scheduled
// notifications whose time has arrived. One sweep may dispatch many
// notifications; per-item fan-out uses the service's batch gate.
type Scheduler struct {
	service *Service
	cron    *cron.Cron
	log     *slog.Logger
}

// NewScheduler creates a sweep scheduler for the service. Start must be
// called to begin sweeping.
func NewScheduler(service *Service, cfg SchedulerConfig, log *slog.Logger) (*Scheduler, error) {
	if log == nil {
		log = slog.Default()
	}

	s := &Scheduler{
		service: service,
		cron:    cron.New(),
		log:     log,
	}

	spec := cfg.Spec
	if spec == "" {
		spec = "@every 30s"
	}
	if _, err := s.cron.AddFunc(spec, s.sweep); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins the sweep loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the sweep loop, waiting for a running sweep to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) sweep() {
	ctx := context.Background()
	batch := s.service.DispatchDue(ctx)
	if len(batch.Results) == 0 {
		return
	}
	s.log.InfoContext(ctx, "scheduled sweep dispatched notifications",
		slog.Int("dispatched", len(batch.Results)),
		slog.Int("failed", batch.FailureCount),
	)
	if batch.FailureCount > 0 {
		for _, result := range batch.Results {
			if result.Success {
				continue
			}
			s.log.WarnContext(ctx, "scheduled dispatch failed",
				logger.NotificationID(result.NotificationID),
				slog.String("message", result.Message),
			)
		}
	}
}
