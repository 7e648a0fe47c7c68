package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is one detached unit of work.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Runner executes submitted tasks on a single background goroutine.
// Failures are logged and never reported back to the submitter.
type Runner struct {
	queue  chan Task
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
}

// NewRunner creates a runner with room for size queued tasks.
func NewRunner(size int, logger *zap.Logger) *Runner {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		queue:  make(chan Task, size),
		logger: logger,
	}
}

// Start begins draining the queue. Calling Start on a running runner is a no-op.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.loop(ctx, r.done)
}

// Stop stops the loop and waits for the task in flight to return.
// Tasks still queued are discarded.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	if n := len(r.queue); n > 0 {
		r.logger.Debug("discarding queued tasks", zap.Int("count", n))
	}
}

// Submit queues t. It reports false when the queue is full and the task was dropped.
func (r *Runner) Submit(t Task) bool {
	select {
	case r.queue <- t:
		return true
	default:
		r.logger.Warn("job queue full, dropping task", zap.String("task", t.Name))
		return false
	}
}

func (r *Runner) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case t := <-r.queue:
			r.run(ctx, t)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runner) run(ctx context.Context, t Task) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("task panicked", zap.String("task", t.Name), zap.Any("panic", p))
		}
	}()
	if err := t.Run(ctx); err != nil {
		r.logger.Warn("task failed", zap.String("task", t.Name), zap.Error(err))
		return
	}
	r.logger.Debug("task done", zap.String("task", t.Name), zap.Duration("took", time.Since(start)))
}
