package spanz

import "context"

// Propagated is the current span captured before an execution-context hop.
// It is a plain value: copy it into closures freely. It holds no reference
// to the stack it was captured from.
type Propagated struct {
	tracer *Tracer
	span   *ActiveSpan
}

// Snapshot captures the current span of ctx, which may be none.
func (t *Tracer) Snapshot(ctx context.Context) Propagated {
	return Propagated{tracer: t, span: t.CurrentSpan(ctx)}
}

// Span returns the captured span, or nil.
func (p Propagated) Span() *ActiveSpan {
	return p.span
}

// Resume pushes the captured span onto ctx's stack with continue semantics:
// the resumed code shares the captured span rather than starting a new one.
// A new stack is attached when ctx has none. Release the handle when the
// resumed code finishes.
func (p Propagated) Resume(ctx context.Context) (context.Context, *Handle) {
	if p.tracer == nil {
		ctx, _ = ensureScope(ctx)
		return ctx, &Handle{}
	}
	return p.tracer.ContinueSpan(ctx, p.span)
}

// Run resumes on ctx, calls fn and tears down, even when fn panics.
// Teardown restores ctx's stack to the depth it had before the resume;
// entries fn left behind are removed and reported as scope errors.
func (p Propagated) Run(ctx context.Context, fn func(context.Context) error) error {
	ctx, teardown := p.enter(ctx, p.tracer)
	defer teardown()
	return fn(ctx)
}

// enter resumes p on ctx's stack and returns the teardown for it. Stale
// entries are reported through t, which may be nil.
func (p Propagated) enter(ctx context.Context, t *Tracer) (context.Context, func()) {
	ctx, scope := ensureScope(ctx)
	depth := scope.Depth()
	ctx, handle := p.Resume(ctx)

	return ctx, func() {
		var stale []scopeEntry
		if handle.scope != nil {
			if at := scope.depthOf(handle.id); at > 0 {
				stale = scope.truncate(at)
			}
		}
		_ = handle.Release()
		stale = append(stale, scope.truncate(depth)...)
		if t == nil {
			return
		}
		for _, e := range stale {
			t.scopeError(&ScopeError{Op: "teardown", SpanID: e.span.SpanID(), Reason: "entry left on stack after hop"})
		}
	}
}

// hopContext returns a context for code running on another goroutine: it
// keeps ctx's values, drops its cancellation and hides its stack so the
// hopped code gets one of its own.
func hopContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return context.WithValue(context.WithoutCancel(ctx), scopeKey{}, (*Scope)(nil))
}

// Go runs fn on a new goroutine with the current span of ctx continued
// there. The span is captured before Go returns. The goroutine does not
// inherit ctx's cancellation; whoever owns the span finishes it.
func (t *Tracer) Go(ctx context.Context, fn func(context.Context)) {
	prop := t.Snapshot(ctx)
	base := hopContext(ctx)
	go func() {
		_ = prop.Run(base, func(ctx context.Context) error {
			fn(ctx)
			return nil
		})
	}()
}

// Wrap returns a callback that, whenever and wherever it is invoked, runs fn
// with the span that was current in ctx at the time Wrap was called. Each
// invocation gets a fresh stack that is discarded afterwards.
func (t *Tracer) Wrap(ctx context.Context, fn func(context.Context)) func() {
	prop := t.Snapshot(ctx)
	base := hopContext(ctx)
	return func() {
		_ = prop.Run(base, func(ctx context.Context) error {
			fn(ctx)
			return nil
		})
	}
}

// WrapValue is Wrap for callbacks that receive a value.
func WrapValue[T any](ctx context.Context, t *Tracer, fn func(context.Context, T)) func(T) {
	prop := t.Snapshot(ctx)
	base := hopContext(ctx)
	return func(v T) {
		_ = prop.Run(base, func(ctx context.Context) error {
			fn(ctx, v)
			return nil
		})
	}
}
