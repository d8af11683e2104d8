// Package schedule fires recurring dump jobs from stored cron
// schedules.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/s7dump/internal/profile"
	"github.com/me/s7dump/internal/scheduler"
	"github.com/me/s7dump/internal/store"
	"github.com/me/s7dump/pkg/model"
)

// Config holds schedule service configuration.
type Config struct {
	PollInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{PollInterval: 30 * time.Second}
}

// Service polls the schedule table and enqueues a job for every due
// schedule. Firing is at-least-interval granular: a schedule due at
// 02:00:00 fires on the first tick at or after that time.
type Service struct {
	store    store.Store
	profiles *profile.Manager
	sched    *scheduler.Scheduler
	config   Config
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewService creates a schedule service.
func NewService(st store.Store, profiles *profile.Manager, sched *scheduler.Scheduler, cfg Config, logger *slog.Logger) *Service {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	return &Service{
		store:    st,
		profiles: profiles,
		sched:    sched,
		config:   cfg,
		logger:   logger.With("component", "schedule"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the polling loop. Blocks until ctx is cancelled or Stop is called.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("schedule service started", "poll_interval", s.config.PollInterval)
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("schedule service stopping (context cancelled)")
			close(s.doneCh)
			return ctx.Err()
		case <-s.stopCh:
			s.logger.Info("schedule service stopping (stop called)")
			close(s.doneCh)
			return nil
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.logger.Error("tick error", "error", err)
			}
		}
	}
}

// Stop gracefully shuts down the service and waits for the current tick to finish.
func (s *Service) Stop() error {
	close(s.stopCh)
	<-s.doneCh
	return nil
}

// Tick fires every due schedule once and advances its next_due. A
// schedule whose profile cannot be materialized is skipped with its
// next_due still advanced, so one broken profile cannot wedge the
// whole table.
func (s *Service) Tick(ctx context.Context) error {
	now := time.Now().UTC()
	due, err := s.store.ListDueSchedules(ctx, now)
	if err != nil {
		return fmt.Errorf("list due schedules: %w", err)
	}

	for _, sc := range due {
		if err := s.fire(ctx, sc, now); err != nil {
			s.logger.Error("fire schedule", "schedule_id", sc.ID, "error", err)
		}
	}
	return nil
}

// CreateSchedule validates and stores a new schedule with its first
// next_due computed from the cron expression.
func (s *Service) CreateSchedule(ctx context.Context, sc *model.Schedule) error {
	if err := ValidateCronExpr(sc.CronExpr); err != nil {
		return model.NewValidationError(err.Error())
	}
	p, err := s.store.GetJobProfile(ctx, sc.JobProfileID)
	if err != nil {
		return err
	}
	if p == nil {
		return model.NewNotFoundError("job profile", sc.JobProfileID)
	}

	now := time.Now().UTC()
	next, err := NextAfter(sc.CronExpr, now)
	if err != nil {
		return model.NewValidationError(err.Error())
	}
	sc.NextDue = next
	sc.CreatedAt = now
	sc.UpdatedAt = now
	return s.store.CreateSchedule(ctx, sc)
}

func (s *Service) fire(ctx context.Context, sc *model.Schedule, now time.Time) error {
	// Advance first: even a failed firing must not retry every tick.
	next, err := NextAfter(sc.CronExpr, now)
	if err != nil {
		return err
	}
	sc.NextDue = next
	sc.LastRun = &now
	sc.UpdatedAt = now
	if err := s.store.UpdateSchedule(ctx, sc); err != nil {
		return fmt.Errorf("advance schedule: %w", err)
	}

	p, err := s.store.GetJobProfile(ctx, sc.JobProfileID)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("job profile %s not found", sc.JobProfileID)
	}

	job, err := s.profiles.Materialize(ctx, p)
	if err != nil {
		return fmt.Errorf("materialize profile %s: %w", p.ID, err)
	}
	job.Name = fmt.Sprintf("%s (scheduled)", sc.Name)

	id, err := s.sched.Enqueue(job)
	if err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	s.logger.Info("schedule fired", "schedule_id", sc.ID, "job_id", id, "next_due", next.Format(time.RFC3339))
	return nil
}
