package automation

import (
	"context"
	"sync"
	"time"

	"sdrops/internal/logger"
	pkgerrors "sdrops/pkg/errors"
	"sdrops/pkg/logging"
	"sdrops/pkg/metrics"
	"sdrops/pkg/retry"
)

type queuedTask struct {
	ctx  context.Context
	task DispatchTask
}

// InlineRuntime is a bounded in-process worker pool.
type InlineRuntime struct {
	handler StepHandler
	policy  retry.Policy
	logger  logger.Logger

	queue  chan queuedTask
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

func NewInlineRuntime(handler StepHandler, workers, queueSize int, policy retry.Policy, log logger.Logger) *InlineRuntime {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	r := &InlineRuntime{
		handler: handler,
		policy:  policy,
		logger:  log,
		queue:   make(chan queuedTask, queueSize),
	}

	r.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go r.worker()
	}

	return r
}

func (r *InlineRuntime) Submit(ctx context.Context, task DispatchTask) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return pkgerrors.ErrServiceUnavailable.WithMessage("dispatch runtime is shutting down")
	}

	select {
	case r.queue <- queuedTask{ctx: logging.Detach(ctx), task: task}:
		metrics.SetDispatchQueueSize(len(r.queue))
		return nil
	default:
		return pkgerrors.ErrServiceUnavailable.WithMessage("dispatch queue is full")
	}
}

func (r *InlineRuntime) worker() {
	defer r.wg.Done()

	for qt := range r.queue {
		metrics.SetDispatchQueueSize(len(r.queue))
		r.run(qt)
	}
}

func (r *InlineRuntime) run(qt queuedTask) {
	ctx := qt.ctx
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.ErrorwCtx(ctx, "Dispatch step panicked",
				"task_id", qt.task.ID,
				"error", pkgerrors.RecoverPanic(rec, qt.task.ID),
			)
		}
	}()

	err := retry.RetryWithCallback(ctx, r.policy, func() error {
		return r.handler(ctx, qt.task)
	}, func(attempt int, err error, nextDelay time.Duration) {
		r.logger.WarnwCtx(ctx, "Dispatch step failed, retrying",
			"task_id", qt.task.ID,
			"attempt", attempt,
			"next_delay", nextDelay,
			"error", err,
		)
	})
	if err != nil {
		r.logger.ErrorwCtx(ctx, "Dispatch step failed permanently",
			"task_id", qt.task.ID,
			"rule_id", qt.task.Rule.ID,
			"error", err,
		)
	}
}

// Close stops accepting tasks and waits for queued ones to finish.
func (r *InlineRuntime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
	metrics.SetDispatchQueueSize(0)
	return nil
}
