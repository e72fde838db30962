// Package spanz provides the span lifecycle and context-propagation core of
// a distributed tracer.
//
// spanz creates spans, keeps track of the current span per execution
// context, carries that context across goroutine hops and deferred
// continuations, and rewrites finished spans before handing them to
// export sinks. Transport of spans to a backend is left to the sinks.
//
// Core Components:
//   - Carrier: immutable trace id, span id, parent id and baggage.
//   - ActiveSpan: an open span owned by the tracer.
//   - Span: the finished, adjusted record handed to sinks.
//   - Scope: the current-span stack of one execution context.
//   - ResolverRegistry: turns arbitrary values into tag strings.
//   - AdjusterPipeline: ordered rewrites applied when a span closes.
//   - Propagated, Executor, Deferred: the propagation bridge.
//
// Basic Usage:
//
//	tracer := spanz.New(spanz.WithLogger(logger))
//	defer tracer.Close()
//
//	ctx, span := tracer.StartSpan(ctx, "operation-name")
//	defer span.Finish()
//
//	tracer.AddTag(ctx, "user.id", "123")
//
//	// Hop onto another goroutine, keeping the current span.
//	tracer.Go(ctx, func(ctx context.Context) {
//		tracer.LogEvent(ctx, "offloaded")
//	})
//
// Execution Contexts:
//
// The current-span stack lives in a Scope carried by context.Context.
// StartSpan attaches a new Scope when the context has none, so each
// inbound request that starts from a fresh context gets its own stack.
// Never share one Scope between goroutines that start and finish spans
// independently; hop through the bridge instead, which gives the target
// goroutine its own Scope.
//
// Failure Policy:
//
// Tracing never fails business logic. Stack discipline violations,
// resolver failures and adjuster panics are recovered, logged through the
// tracer's zap logger and counted in Metrics.
//
// Configuration:
//
// Resolvers and adjusters are configure-before-use: register them before
// the tracer starts serving spans.
package spanz

// Key represents a span operation name.
type Key = string

// Tag represents a span tag key.
type Tag = string
