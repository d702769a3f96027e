// Package job provides the asynchronous execution contract for
// long-running registration work: a submitted job hands back a
// cancellation handle, a progress stream and an awaitable result.
package job

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Progress is one asynchronous progress notification. Iteration
// indices are monotonically increasing within one job.
type Progress struct {
	Iteration int
	RMS       float64
}

// Fn is the unit of work. It must honor ctx cancellation and may call
// report after every completed iteration.
type Fn[T any] func(ctx context.Context, report func(Progress)) (T, error)

// Handle tracks one submitted job.
type Handle[T any] struct {
	progress chan Progress
	cancel   context.CancelFunc
	done     chan struct{}

	mu     sync.Mutex
	result T
	err    error
}

// Progress returns the job's progress stream. The channel is closed
// when the job finishes. Notifications are delivered best-effort: a
// slow consumer drops intermediate updates instead of stalling the
// solver.
func (h *Handle[T]) Progress() <-chan Progress {
	return h.progress
}

// Cancel requests cooperative cancellation. The job still completes
// with whatever partial result it produced.
func (h *Handle[T]) Cancel() {
	h.cancel()
}

// Wait blocks until the job finishes and returns its result.
func (h *Handle[T]) Wait() (T, error) {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.err
}

// Done is closed when the job has finished.
func (h *Handle[T]) Done() <-chan struct{} {
	return h.done
}

// Submit starts fn on its own goroutine. Two submitted jobs share no
// mutable state; concurrent jobs over independent inputs are safe.
func Submit[T any](ctx context.Context, logger *zap.Logger, name string, fn Fn[T]) *Handle[T] {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle[T]{
		progress: make(chan Progress, 16),
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	report := func(p Progress) {
		select {
		case h.progress <- p:
		default:
		}
	}

	logger.Info("job submitted", zap.String("job", name))
	go func() {
		defer cancel()
		result, err := fn(ctx, report)

		h.mu.Lock()
		h.result, h.err = result, err
		h.mu.Unlock()

		if err != nil {
			logger.Warn("job failed", zap.String("job", name), zap.Error(err))
		} else {
			logger.Info("job finished", zap.String("job", name))
		}
		close(h.progress)
		close(h.done)
	}()
	return h
}
