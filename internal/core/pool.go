package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"checkplotcore/pkg/domain"
)

// DefaultPoolSize is the number of concurrent tool executions when no
// explicit size is configured.
const DefaultPoolSize = 2

// Future resolves to the outcome of one pooled task. Wait blocks until the
// task resolves or the context is cancelled.
type Future struct {
	done   chan struct{}
	result any
	err    error
}

// Wait blocks until the task resolves or ctx is cancelled. Cancellation
// abandons the wait, not the task: the task keeps its pool slot until it
// returns.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Future) resolve(result any, err error) {
	f.result = result
	f.err = err
	close(f.done)
}

// WorkerPool bounds concurrent tool executions to a fixed number of slots.
// Submission never blocks the caller; each submitted task waits for a free
// slot on its own goroutine.
type WorkerPool struct {
	slots   chan struct{}
	timeout time.Duration

	mu        sync.Mutex
	closed    bool
	wg        sync.WaitGroup
	submitted atomic.Int64
}

// NewWorkerPool constructs a pool with the given number of execution slots.
// Sizes below one fall back to DefaultPoolSize. A positive timeout bounds how
// long a task may run before its future resolves with ErrTimeout; zero means
// no deadline.
func NewWorkerPool(size int, timeout time.Duration) *WorkerPool {
	if size < 1 {
		size = DefaultPoolSize
	}
	return &WorkerPool{
		slots:   make(chan struct{}, size),
		timeout: timeout,
	}
}

// Submitted returns the number of tasks accepted by the pool over its
// lifetime.
func (p *WorkerPool) Submitted() int64 {
	return p.submitted.Load()
}

// Submit schedules task for execution and returns its future. The task
// receives a context that is cancelled when the pool timeout elapses. A panic
// inside the task resolves the future with an error instead of crashing the
// process.
func (p *WorkerPool) Submit(ctx context.Context, task func(ctx context.Context) (any, error)) (*Future, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("worker pool closed")
	}
	p.wg.Add(1)
	p.mu.Unlock()
	p.submitted.Add(1)

	fut := &Future{done: make(chan struct{})}
	go func() {
		defer p.wg.Done()
		p.slots <- struct{}{}
		defer func() { <-p.slots }()
		p.run(ctx, task, fut)
	}()
	return fut, nil
}

// run executes task with the pool deadline applied. The slot is held until
// the task function returns even if the future already resolved with
// ErrTimeout.
func (p *WorkerPool) run(ctx context.Context, task func(ctx context.Context) (any, error), fut *Future) {
	taskCtx := ctx
	var cancel context.CancelFunc
	if p.timeout > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	type outcome struct {
		result any
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("%w: tool task panicked: %v", domain.ErrBackendFailure, r)}
			}
		}()
		result, err := task(taskCtx)
		ch <- outcome{result: result, err: err}
	}()

	if p.timeout > 0 {
		select {
		case out := <-ch:
			fut.resolve(out.result, out.err)
		case <-taskCtx.Done():
			fut.resolve(nil, fmt.Errorf("%w: tool run exceeded %s", domain.ErrTimeout, p.timeout))
			// Hold the slot until the task observes cancellation and returns.
			<-ch
		}
		return
	}
	out := <-ch
	fut.resolve(out.result, out.err)
}

// Close waits for all in-flight tasks to finish and rejects further
// submissions.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}
