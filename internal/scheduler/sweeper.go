package scheduler

import (
	"context"
	"errors"
	"time"

	"netimob_lead_router/internal/routing/service"
	"netimob_lead_router/platform/config"
	"netimob_lead_router/platform/logger"

	"github.com/google/uuid"
)

// Sweeper runs the SLA sweep on a fixed cadence.
type Sweeper struct {
	svc      *service.Service
	interval time.Duration
	log      *logger.Logger
}

// NewSweeper creates the periodic sweep loop.
func NewSweeper(cfg config.WorkerConfig, svc *service.Service, log *logger.Logger) *Sweeper {
	interval := cfg.GetSweepInterval()
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{
		svc:      svc,
		interval: interval,
		log:      log,
	}
}

// Run ticks until the context is cancelled. The first sweep happens
// immediately so a restart does not add a full interval of SLA drift.
func (s *Sweeper) Run(ctx context.Context) {
	if s == nil || s.svc == nil {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	sweepCtx := context.WithValue(ctx, logger.SweepIDKey, uuid.NewString())

	if _, err := s.svc.Sweep(sweepCtx); err != nil {
		if errors.Is(err, service.ErrSweepInProgress) {
			return
		}
		s.log.WithContext(sweepCtx).Error("sweep tick failed", "error", err.Error())
	}
}
