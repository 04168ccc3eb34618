package task

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Task represents a background maintenance task
type Task interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler runs maintenance tasks at startup and on an interval
type Scheduler struct {
	mu      sync.Mutex
	tasks   []Task
	logger  zerolog.Logger
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewScheduler(logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		tasks:  make([]Task, 0),
		logger: logger.With().Str("component", "task_scheduler").Logger(),
	}
}

func (s *Scheduler) RegisterTask(task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
	s.logger.Info().Str("task", task.Name()).Msg("task registered")
}

// RunOnce runs all registered tasks once; failures are logged, not returned.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.mu.Lock()
	tasks := append([]Task(nil), s.tasks...)
	s.mu.Unlock()

	for _, task := range tasks {
		s.logger.Info().Str("task", task.Name()).Msg("running task")
		start := time.Now()

		if err := task.Run(ctx); err != nil {
			s.logger.Error().Err(err).
				Str("task", task.Name()).
				Dur("duration", time.Since(start)).
				Msg("task failed")
		} else {
			s.logger.Info().
				Str("task", task.Name()).
				Dur("duration", time.Since(start)).
				Msg("task completed")
		}
	}
}

func (s *Scheduler) StartPeriodic(interval time.Duration) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()

	s.logger.Info().Dur("interval", interval).Msg("scheduler started")
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info().Msg("scheduler stopped")
}
