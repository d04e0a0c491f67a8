package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrTaskRegistered rejects a duplicate task id. Registration happens
// once during application startup sequencing, never as a load-time
// side effect.
var ErrTaskRegistered = errors.New("task already registered")

// TaskRunner is the zero-argument periodic callback contract: it runs
// one silent pass and reports whether the wake-up was productive.
type TaskRunner func(ctx context.Context) BackgroundOutcome

// Scheduler invokes registered tasks on their minimum interval until
// the parent context is cancelled.
type Scheduler struct {
	parent context.Context

	mu    sync.Mutex
	tasks map[string]context.CancelFunc
	wg    sync.WaitGroup
}

// NewScheduler creates a Scheduler bound to ctx; cancelling ctx stops
// every registered task.
func NewScheduler(ctx context.Context) *Scheduler {
	return &Scheduler{
		parent: ctx,
		tasks:  make(map[string]context.CancelFunc),
	}
}

// Register starts periodic invocation of runner under taskID.
func (s *Scheduler) Register(taskID string, minInterval time.Duration, runner TaskRunner) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[taskID]; ok {
		return ErrTaskRegistered
	}

	ctx, cancel := context.WithCancel(s.parent)
	s.tasks[taskID] = cancel

	s.wg.Add(1)
	go s.loop(ctx, taskID, minInterval, runner)

	slog.Info("background task registered",
		"component", "scheduler",
		"action", "task_registered",
		"task_id", taskID,
		"interval", minInterval.String(),
	)
	return nil
}

// Unregister stops a task. Unknown ids are ignored.
func (s *Scheduler) Unregister(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cancel, ok := s.tasks[taskID]; ok {
		cancel()
		delete(s.tasks, taskID)
	}
}

// Wait blocks until every task loop has stopped.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, taskID string, interval time.Duration, runner TaskRunner) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("background task stopped",
				"component", "scheduler",
				"action", "task_stopped",
				"task_id", taskID,
			)
			return
		case <-ticker.C:
			outcome := runner(ctx)
			slog.Info("background task ran",
				"component", "scheduler",
				"action", "task_ran",
				"task_id", taskID,
				"outcome", outcome.String(),
			)
		}
	}
}
