package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/gigaclaw/gigaclaw/internal/observability"
)

// Invoker runs one scheduled turn. The router implements it.
type Invoker interface {
	RunScheduledTurn(ctx context.Context, task *ScheduledTask) error
}

// SchedulerConfig configures task polling.
type SchedulerConfig struct {
	// PollInterval is how often due tasks are checked. Defaults to 30s.
	PollInterval time.Duration

	// MaxConcurrency bounds concurrent task turns. Defaults to 3. Turns for
	// the same group are additionally serialized by the router.
	MaxConcurrency int
}

// Scheduler polls the store for due tasks and hands them to the invoker.
// Single-host: no distributed locking, overlapping runs of the same task are
// prevented by rescheduling before the turn starts.
type Scheduler struct {
	store   Store
	invoker Invoker
	cfg     SchedulerConfig
	logger  *observability.Logger

	wg   sync.WaitGroup
	sem  chan struct{}
	stop context.CancelFunc
}

// NewScheduler creates a scheduler.
func NewScheduler(store Store, invoker Invoker, cfg SchedulerConfig, logger *observability.Logger) *Scheduler {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.MaxConcurrency == 0 {
		cfg.MaxConcurrency = 3
	}
	return &Scheduler{
		store:   store,
		invoker: invoker,
		cfg:     cfg,
		logger:  logger,
		sem:     make(chan struct{}, cfg.MaxConcurrency),
	}
}

// Start runs the polling loop until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.stop = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.dispatchDue(ctx)
			}
		}
	}()
}

// Stop cancels polling and waits for in-flight task turns.
func (s *Scheduler) Stop() {
	if s.stop != nil {
		s.stop()
	}
	s.wg.Wait()
}

func (s *Scheduler) dispatchDue(ctx context.Context) {
	now := time.Now()
	due, err := s.store.ListDue(ctx, now)
	if err != nil {
		s.logger.Error(ctx, "failed to list due tasks", "error", err)
		return
	}

	for _, task := range due {
		// Advance the task before running so a slow turn cannot fire twice.
		next, err := NextRun(task.Schedule, now)
		if err != nil {
			s.logger.Error(ctx, "task has unparseable schedule, pausing", "task_id", task.ID, "error", err)
			task.Status = TaskStatusPaused
			if uerr := s.store.Update(ctx, task); uerr != nil {
				s.logger.Error(ctx, "failed to pause task", "task_id", task.ID, "error", uerr)
			}
			continue
		}
		ranAt := now
		task.NextRunAt = next
		task.LastRunAt = &ranAt
		if err := s.store.Update(ctx, task); err != nil {
			s.logger.Error(ctx, "failed to reschedule task", "task_id", task.ID, "error", err)
			continue
		}

		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		s.wg.Add(1)
		go func(task *ScheduledTask) {
			defer s.wg.Done()
			defer func() { <-s.sem }()

			s.logger.Info(ctx, "running scheduled task", "task_id", task.ID, "group", task.GroupFolder)
			if err := s.invoker.RunScheduledTurn(ctx, task); err != nil {
				s.logger.Error(ctx, "scheduled task turn failed", "task_id", task.ID, "error", err)
			}
		}(task)
	}
}
