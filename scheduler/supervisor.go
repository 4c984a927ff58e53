package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/zen2281488/gayOfDay/telemetry"
)

// Dispatcher runs named tasks. Supervisor is the production implementation;
// tests may run tasks inline.
type Dispatcher interface {
	Go(ctx context.Context, name string, fn func(ctx context.Context) error)
}

// Supervisor runs each task in its own goroutine under a shared lifetime
// context, bounding concurrency and recovering panics at the task boundary.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
}

// NewSupervisor returns a supervisor whose tasks live until parent is done or
// Shutdown is called. At most limit tasks run at once.
func NewSupervisor(parent context.Context, limit int64) *Supervisor {
	if limit <= 0 {
		limit = 8
	}
	ctx, cancel := context.WithCancel(parent)
	return &Supervisor{ctx: ctx, cancel: cancel, sem: semaphore.NewWeighted(limit)}
}

// Go starts fn. The task context carries the caller's correlation id (or a
// fresh one) but not its cancellation. name is "kind:detail"; kind labels
// the failure metric.
func (s *Supervisor) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	corr := telemetry.GetCorrelation(ctx)
	if corr == "" {
		corr = uuid.NewString()
	}
	kind, _, _ := strings.Cut(name, ":")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		taskCtx := telemetry.WithCorrelation(s.ctx, corr)
		logger := telemetry.LoggerWithCorr(taskCtx).With(slog.String("task", name))

		if err := s.sem.Acquire(taskCtx, 1); err != nil {
			logger.Debug("task dropped at shutdown")
			return
		}
		defer s.sem.Release(1)
		if s.ctx.Err() != nil {
			logger.Debug("task dropped at shutdown")
			return
		}

		telemetry.TaskStarted()
		defer telemetry.TaskDone()
		start := time.Now()

		err := run(taskCtx, fn)
		if err != nil {
			telemetry.ObserveTaskFailure(kind)
			logger.Error("task failed", slog.Any("err", err), slog.Duration("took", time.Since(start)))
			return
		}
		logger.Debug("task done", slog.Duration("took", time.Since(start)))
	}()
}

func run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

// Wait blocks until every started task has returned.
func (s *Supervisor) Wait() { s.wg.Wait() }

// Shutdown cancels running tasks and waits up to timeout for them to return.
// Tasks that have not started running by then are dropped without running.
func (s *Supervisor) Shutdown(timeout time.Duration) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		slog.Warn("timeout waiting for tasks to stop", slog.Duration("timeout", timeout))
		return context.DeadlineExceeded
	}
}
