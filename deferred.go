package spanz

import (
	"context"
	"sync"
)

// Deferred is a value that becomes available later, possibly on another
// goroutine. Continuations registered with Then run with the span that was
// current when they were registered, on whichever goroutine completes the
// Deferred (or on the registering goroutine if it already completed).
//
//nolint:govet // Field order optimized for functionality over memory
type Deferred[T any] struct {
	tracer *Tracer
	value  T
	err    error
	conts  []func(T, error)
	done   chan struct{}
	mu     sync.Mutex
	closed bool
}

// NewDeferred returns an incomplete Deferred.
func NewDeferred[T any](t *Tracer) *Deferred[T] {
	return &Deferred[T]{tracer: t, done: make(chan struct{})}
}

// Defer runs fn on a new goroutine with the current span of ctx continued
// there, completing the returned Deferred with its result.
func Defer[T any](ctx context.Context, t *Tracer, fn func(context.Context) (T, error)) *Deferred[T] {
	d := NewDeferred[T](t)
	t.Go(ctx, func(ctx context.Context) {
		v, err := fn(ctx)
		d.complete(v, err)
	})
	return d
}

// Then registers fn to run once the Deferred completes. The current span of
// ctx is captured now and restored around fn.
func (d *Deferred[T]) Then(ctx context.Context, fn func(context.Context, T, error)) {
	prop := d.tracer.Snapshot(ctx)
	base := hopContext(ctx)
	cont := func(v T, err error) {
		_ = prop.Run(base, func(ctx context.Context) error {
			fn(ctx, v, err)
			return nil
		})
	}

	d.mu.Lock()
	if !d.closed {
		d.conts = append(d.conts, cont)
		d.mu.Unlock()
		return
	}
	v, err := d.value, d.err
	d.mu.Unlock()
	cont(v, err)
}

// Resolve completes the Deferred with v. Returns false if already complete.
func (d *Deferred[T]) Resolve(v T) bool {
	return d.complete(v, nil)
}

// Reject completes the Deferred with err. Returns false if already complete.
func (d *Deferred[T]) Reject(err error) bool {
	var zero T
	return d.complete(zero, err)
}

func (d *Deferred[T]) complete(v T, err error) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	d.closed = true
	d.value, d.err = v, err
	conts := d.conts
	d.conts = nil
	close(d.done)
	d.mu.Unlock()

	for _, cont := range conts {
		cont(v, err)
	}
	return true
}

// Done is closed when the Deferred completes.
func (d *Deferred[T]) Done() <-chan struct{} {
	return d.done
}

// Await blocks until the Deferred completes or ctx is done.
func (d *Deferred[T]) Await(ctx context.Context) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-d.done:
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.value, d.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
