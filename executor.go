package spanz

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrExecutorClosed is returned when submitting to a shut down Executor.
var ErrExecutorClosed = errors.New("spanz: executor is shut down")

type task struct {
	base context.Context
	run  func(context.Context)
	name string
	prop Propagated
}

// Executor runs offloaded work on a fixed set of worker goroutines while
// carrying the submitter's current span across the hop.
//
// Each worker owns one Scope for its whole life. A task's span is pushed on
// that Scope before the task runs and popped after it returns, so nothing
// leaks into the next task the worker picks up.
//
//nolint:govet // Field order optimized for functionality over memory
type Executor struct {
	tracer  *Tracer
	tasks   chan task
	scopes  []*Scope
	wg      sync.WaitGroup
	mu      sync.RWMutex // Guards closed against sends on a closed channel.
	closed  bool
	dropped atomic.Uint64
}

// NewExecutor starts workers goroutines fed by a queue of queueSize tasks.
func NewExecutor(t *Tracer, workers, queueSize int) (*Executor, error) {
	if t == nil {
		return nil, errors.New("tracer must not be nil")
	}
	if workers <= 0 {
		return nil, errors.New("workers must be > 0")
	}
	if queueSize <= 0 {
		return nil, errors.New("queueSize must be > 0")
	}

	e := &Executor{
		tracer: t,
		tasks:  make(chan task, queueSize),
		scopes: make([]*Scope, workers),
	}
	e.wg.Add(workers)
	for i := 0; i < workers; i++ {
		e.scopes[i] = NewScope()
		go e.work(e.scopes[i])
	}
	return e, nil
}

// Submit queues fn to run with the current span of ctx continued on a
// worker. Returns false and counts a drop when the queue is full or the
// executor is shut down.
func (e *Executor) Submit(ctx context.Context, fn func(context.Context)) bool {
	return e.SubmitNamed(ctx, "", fn)
}

// SubmitNamed is Submit that also starts a child span called name around
// fn, naming the asynchronous unit of work. An empty name continues the
// submitter's span instead.
func (e *Executor) SubmitNamed(ctx context.Context, name string, fn func(context.Context)) bool {
	ok := e.submitTask(e.newTask(ctx, name, fn))
	if !ok {
		e.tracer.metrics.inc(metricTaskDropped)
	}
	return ok
}

// SubmitWait is SubmitNamed that waits for queue space until ctx is done.
func (e *Executor) SubmitWait(ctx context.Context, name string, fn func(context.Context)) error {
	if ctx == nil {
		ctx = context.Background()
	}
	tk := e.newTask(ctx, name, fn)

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrExecutorClosed
	}
	select {
	case e.tasks <- tk:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) newTask(ctx context.Context, name string, fn func(context.Context)) task {
	if ctx == nil {
		ctx = context.Background()
	}
	return task{
		prop: e.tracer.Snapshot(ctx),
		base: context.WithoutCancel(ctx),
		name: name,
		run:  fn,
	}
}

func (e *Executor) submitTask(tk task) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		e.dropped.Add(1)
		return false
	}
	select {
	case e.tasks <- tk:
		return true
	default:
		e.dropped.Add(1)
		return false
	}
}

// Dropped returns the number of tasks rejected because the queue was full.
func (e *Executor) Dropped() uint64 {
	return e.dropped.Load()
}

func (e *Executor) work(scope *Scope) {
	defer e.wg.Done()
	for tk := range e.tasks {
		e.execute(scope, tk)
	}
}

// execute runs one task bracketed by resume and teardown on scope.
func (e *Executor) execute(scope *Scope, tk task) {
	base := tk.base
	if base == nil {
		base = context.Background()
	}
	ctx, teardown := tk.prop.enter(WithScope(base, scope), e.tracer)
	defer teardown()

	var span *ActiveSpan
	if tk.name != "" {
		ctx, span = e.tracer.StartSpan(ctx, tk.name)
	}

	defer func() {
		if r := recover(); r != nil {
			if span != nil {
				span.SetTag(TagError, panicError(r).Error())
			}
			e.tracer.logger.Error("offloaded task panicked",
				zap.String("task", tk.name), zap.Any("panic", r))
		}
		if span != nil {
			span.Finish()
		}
	}()
	tk.run(ctx)
}

// Shutdown stops accepting tasks, runs everything already queued and waits
// for the workers to exit.
func (e *Executor) Shutdown() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.tasks)
	e.mu.Unlock()

	e.wg.Wait()
}
