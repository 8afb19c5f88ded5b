// Package scheduler runs the unattended publish flow on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"autoposter/internal/coordinator"
	"autoposter/internal/models"
)

var ErrLocked = errors.New("another scheduler holds the lock")

// Runner is the part of the coordinator the scheduler needs.
type Runner interface {
	PublishScheduled(ctx context.Context, platform models.Platform, trigger models.Trigger) (coordinator.Result, error)
}

type Scheduler struct {
	runner    Runner
	platforms []models.Platform
	interval  time.Duration
	lock      *flock.Flock
	logger    zerolog.Logger
}

// New builds a scheduler. An empty lockPath disables the host lock.
func New(runner Runner, platforms []models.Platform, interval time.Duration, lockPath string, logger zerolog.Logger) *Scheduler {
	s := &Scheduler{
		runner:    runner,
		platforms: platforms,
		interval:  interval,
		logger:    logger.With().Str("component", "scheduler").Logger(),
	}
	if lockPath != "" {
		s.lock = flock.New(lockPath)
	}
	return s
}

// Run fires once per interval until ctx is cancelled. The first run happens
// one full interval after start.
func (s *Scheduler) Run(ctx context.Context) error {
	const op = "scheduler.Run"

	if s.lock != nil {
		ok, err := s.lock.TryLock()
		if err != nil {
			return fmt.Errorf("%s: acquire lock: %v", op, err)
		}
		if !ok {
			return fmt.Errorf("%s: %w: %s", op, ErrLocked, s.lock.Path())
		}
		defer func() {
			if err := s.lock.Unlock(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to release scheduler lock")
			}
		}()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Int("platforms", len(s.platforms)).Msg("scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopped")
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs the scheduled flow once for every configured platform. Outcomes
// are logged by the coordinator; nothing is retried here.
func (s *Scheduler) Tick(ctx context.Context) {
	for _, p := range s.platforms {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.runner.PublishScheduled(ctx, p, models.TriggerScheduled); err != nil {
			s.logger.Error().Err(err).Str("platform", string(p)).Msg("scheduled publish not started")
		}
	}
}
