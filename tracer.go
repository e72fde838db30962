package spanz

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// SpanHandler is called with each finished, adjusted span.
type SpanHandler func(span Span)

type handlerEntry struct {
	handler SpanHandler
	id      uint64
	async   bool
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithClock sets the clock used for span timestamps.
// Enables clock injection for deterministic testing.
func WithClock(clock clockz.Clock) Option {
	return func(t *Tracer) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// WithLogger sets the logger used to report recovered tracing failures.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithMetrics records tracer activity in m.
func WithMetrics(m *Metrics) Option {
	return func(t *Tracer) { t.metrics = m }
}

// WithResolvers sets the registry used by TagValue and Param tags.
func WithResolvers(r *ResolverRegistry) Option {
	return func(t *Tracer) {
		if r != nil {
			t.resolvers = r
		}
	}
}

// WithAdjusters sets the pipeline run on every finished span.
func WithAdjusters(p *AdjusterPipeline) Option {
	return func(t *Tracer) {
		if p != nil {
			t.adjusters = p
		}
	}
}

// WithErrorLogRate throttles logs about recovered tracing failures.
func WithErrorLogRate(limit rate.Limit, burst int) Option {
	return func(t *Tracer) {
		t.errLimit = limit
		t.errBurst = burst
	}
}

// Tracer manages span lifecycle, the current-span stacks and export.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Tracer struct {
	handlers     []handlerEntry
	collectors   map[string]*Collector
	panicHook    func(handlerID uint64, r interface{})
	workers      *Executor
	ids          *pooledIDs
	clock        clockz.Clock
	logger       *zap.Logger
	errors       *errorReporter
	metrics      *Metrics
	resolvers    *ResolverRegistry
	adjusters    *AdjusterPipeline
	errLimit     rate.Limit
	errBurst     int
	handlersLock sync.RWMutex
	nextID       atomic.Uint64
	droppedSpans atomic.Uint64
}

// New creates a new tracer.
// Uses the real clock and a no-op logger unless configured otherwise.
func New(opts ...Option) *Tracer {
	t := &Tracer{
		handlers:   make([]handlerEntry, 0),
		collectors: make(map[string]*Collector),
		ids:        &pooledIDs{},
		clock:      clockz.RealClock,
		logger:     zap.NewNop(),
		resolvers:  NewResolverRegistry(),
		adjusters:  NewAdjusterPipeline(),
		errLimit:   DefaultErrorLogRate,
		errBurst:   DefaultErrorLogBurst,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.errors = newErrorReporter(t.logger, t.errLimit, t.errBurst)
	return t
}

// Resolvers returns the tracer's tag resolver registry.
func (t *Tracer) Resolvers() *ResolverRegistry { return t.resolvers }

// Adjusters returns the tracer's adjuster pipeline.
func (t *Tracer) Adjusters() *AdjusterPipeline { return t.adjusters }

// Logger returns the tracer's logger.
func (t *Tracer) Logger() *zap.Logger { return t.logger }

// CurrentSpan returns the span on top of ctx's stack, or nil.
func (t *Tracer) CurrentSpan(ctx context.Context) *ActiveSpan {
	s := ScopeFrom(ctx)
	if s == nil {
		return nil
	}
	return s.Current()
}

// StartSpan creates a new span and pushes it on ctx's stack.
// If the stack has a current span, the new span will be its child.
// The returned context carries the stack; it is ctx itself when ctx already
// had one.
func (t *Tracer) StartSpan(ctx context.Context, operation Key) (context.Context, *ActiveSpan) {
	return t.StartSpanFrom(ctx, operation, Carrier{})
}

// StartSpanFrom is StartSpan for inbound calls: when ctx has no current
// span and inbound is valid, the new span continues the remote trace as a
// child of inbound.
func (t *Tracer) StartSpanFrom(ctx context.Context, operation Key, inbound Carrier) (context.Context, *ActiveSpan) {
	ctx, scope := ensureScope(ctx)

	var carrier Carrier
	switch parent := scope.Current(); {
	case parent != nil:
		carrier = parent.Carrier().child(t.ids)
	case inbound.IsValid():
		carrier = inbound.child(t.ids)
	default:
		carrier = newRootCarrier(t.ids)
	}

	span := &ActiveSpan{
		tracer:  t,
		scope:   scope,
		carrier: carrier,
		name:    operation,
		start:   t.clock.Now(),
	}
	scope.push(span, false)
	t.metrics.inc(metricStarted)

	return ctx, span
}

// ContinueSpan makes an existing span current on ctx's stack without
// creating a new one, so tag and event writes on the current span target
// it. Release the handle when the continued work ends.
// A nil span yields a handle that does nothing.
func (t *Tracer) ContinueSpan(ctx context.Context, span *ActiveSpan) (context.Context, *Handle) {
	ctx, scope := ensureScope(ctx)
	if span == nil {
		return ctx, &Handle{}
	}
	id := scope.push(span, true)
	return ctx, &Handle{tracer: t, scope: scope, id: id, spanID: span.SpanID()}
}

// FinishSpan closes span, runs the adjusters and hands the result to every
// sink exactly once. Finishing a closed span is a no-op.
//
// The span is removed from the stack it was started on. If it was not the
// current span there, it is still removed and exported, the entries above
// it stay in place, and a *ScopeError is logged and returned.
func (t *Tracer) FinishSpan(span *ActiveSpan) error {
	if span == nil {
		return nil
	}
	record, ok := span.close(t.clock.Now())
	if !ok {
		return nil
	}

	var scopeErr error
	if span.scope != nil {
		switch found, top := span.scope.removeStarted(span); {
		case !found:
			scopeErr = &ScopeError{Op: "finish", SpanID: record.SpanID, Reason: "span missing from its stack"}
		case !top:
			scopeErr = &ScopeError{Op: "finish", SpanID: record.SpanID, Reason: "span was not on top of stack"}
		}
	}
	t.metrics.inc(metricFinished)

	adjusted := t.adjusters.apply(record, func(err *AdjusterError) {
		t.metrics.inc(metricAdjusterError)
		t.errors.report("span adjuster failed", err,
			zap.String("span_id", record.SpanID), zap.Int("adjuster", err.Index))
	})
	t.collectSpan(&adjusted)

	if scopeErr != nil {
		t.scopeError(scopeErr)
	}
	return scopeErr
}

// AddTag sets a tag on the current span. No-op without a current span.
func (t *Tracer) AddTag(ctx context.Context, key Tag, value string) {
	if span := t.CurrentSpan(ctx); span != nil {
		span.SetTag(key, value)
	}
}

// LogEvent logs an event on the current span. No-op without a current span.
func (t *Tracer) LogEvent(ctx context.Context, label string) {
	if span := t.CurrentSpan(ctx); span != nil {
		span.LogEvent(label)
	}
}

// SetBaggage sets a baggage item on the current span's carrier.
// Children started afterwards inherit it. No-op without a current span.
func (t *Tracer) SetBaggage(ctx context.Context, key, value string) {
	if span := t.CurrentSpan(ctx); span != nil {
		span.SetBaggageItem(key, value)
	}
}

// TagValue resolves value with the named resolver and sets it as a tag on
// the current span. An empty resolver name uses the default string form.
func (t *Tracer) TagValue(ctx context.Context, key Tag, value any, resolver string) {
	span := t.CurrentSpan(ctx)
	if span == nil {
		return
	}
	span.SetTag(key, t.resolve(value, resolver))
}

func (t *Tracer) resolve(value any, resolver string) string {
	out, err := t.resolvers.resolve(value, resolver)
	if err != nil {
		t.metrics.inc(metricResolverError)
		t.errors.report("tag resolver failed", err, zap.String("resolver", resolver))
	}
	return out
}

func (t *Tracer) scopeError(err error) {
	t.metrics.inc(metricScopeError)
	var se *ScopeError
	if errors.As(err, &se) {
		t.errors.report("span scope violated", err, zap.String("op", se.Op), zap.String("span_id", se.SpanID))
		return
	}
	t.errors.report("span scope violated", err)
}

// OnSpanComplete registers a synchronous handler called when spans complete.
func (t *Tracer) OnSpanComplete(handler SpanHandler) uint64 {
	return t.registerHandler(handler, false)
}

// OnSpanCompleteAsync registers an asynchronous handler called when spans complete.
func (t *Tracer) OnSpanCompleteAsync(handler SpanHandler) uint64 {
	return t.registerHandler(handler, true)
}

func (t *Tracer) registerHandler(handler SpanHandler, async bool) uint64 {
	if handler == nil {
		return 0
	}

	id := t.nextID.Add(1)

	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	t.handlers = append(t.handlers, handlerEntry{
		id:      id,
		handler: handler,
		async:   async,
	})

	return id
}

// RemoveHandler removes a handler by ID.
func (t *Tracer) RemoveHandler(id uint64) {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	// Preserve order
	for i, h := range t.handlers {
		if h.id == id {
			copy(t.handlers[i:], t.handlers[i+1:])
			t.handlers = t.handlers[:len(t.handlers)-1]
			return
		}
	}
}

// HasHandlers reports whether any handler or collector is registered.
func (t *Tracer) HasHandlers() bool {
	t.handlersLock.RLock()
	defer t.handlersLock.RUnlock()
	return len(t.handlers) > 0 || len(t.collectors) > 0
}

// AddCollector registers a collector under name. Finished spans are copied
// into every collector.
func (t *Tracer) AddCollector(name string, collector *Collector) {
	if collector == nil {
		return
	}
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()
	t.collectors[name] = collector
}

// SetPanicHook sets a function to be called when a handler panics.
func (t *Tracer) SetPanicHook(hook func(handlerID uint64, r interface{})) {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()
	t.panicHook = hook
}

// collectSpan hands a finished span to collectors and handlers.
func (t *Tracer) collectSpan(span *Span) {
	t.handlersLock.RLock()
	collectors := make([]*Collector, 0, len(t.collectors))
	for _, c := range t.collectors {
		collectors = append(collectors, c)
	}
	t.handlersLock.RUnlock()

	for _, c := range collectors {
		c.Collect(span)
	}
	t.executeHandlers(*span)
	t.metrics.inc(metricExported)
}

// executeHandlers calls all registered handlers with the completed span.
func (t *Tracer) executeHandlers(span Span) {
	t.handlersLock.RLock()
	if len(t.handlers) == 0 {
		t.handlersLock.RUnlock()
		return
	}

	handlers := make([]handlerEntry, len(t.handlers))
	copy(handlers, t.handlers)
	workers := t.workers
	t.handlersLock.RUnlock()

	for i, h := range handlers {
		// Each handler gets its own copy so one cannot change what another sees.
		own := span
		if i < len(handlers)-1 {
			own = span.Clone()
		}
		if h.async {
			entry := h
			if workers != nil {
				if !workers.submitTask(task{run: func(context.Context) { t.safeCall(entry, own) }}) {
					t.droppedSpans.Add(1)
					t.metrics.inc(metricSpanDropped)
				}
			} else {
				go t.safeCall(entry, own)
			}
		} else {
			t.safeCall(h, own)
		}
	}
}

func (t *Tracer) safeCall(entry handlerEntry, span Span) {
	defer func() {
		if r := recover(); r != nil {
			t.handlersLock.RLock()
			hook := t.panicHook
			t.handlersLock.RUnlock()
			if hook != nil {
				hook(entry.id, r)
				return
			}
			t.errors.report("span handler panicked", panicError(r), zap.Uint64("handler", entry.id))
		}
	}()
	entry.handler(span)
}

// EnableWorkerPool creates a bounded worker pool for async handlers.
func (t *Tracer) EnableWorkerPool(workers, queueSize int) error {
	t.handlersLock.Lock()
	defer t.handlersLock.Unlock()

	if t.workers != nil {
		return errors.New("worker pool already enabled")
	}
	pool, err := NewExecutor(t, workers, queueSize)
	if err != nil {
		return err
	}
	t.workers = pool
	return nil
}

// DroppedSpans returns the number of spans dropped due to full worker queue.
func (t *Tracer) DroppedSpans() uint64 {
	return t.droppedSpans.Load()
}

// Reset clears all collectors' buffered spans.
func (t *Tracer) Reset() {
	t.handlersLock.RLock()
	defer t.handlersLock.RUnlock()
	for _, c := range t.collectors {
		c.Reset()
	}
}

// Close shuts down the tracer gracefully and cleans up resources.
// Spans finished after Close are still adjusted but reach no sink.
func (t *Tracer) Close() {
	// Stop new handler executions
	t.handlersLock.Lock()
	t.handlers = nil
	workers := t.workers
	t.workers = nil
	collectors := t.collectors
	t.collectors = make(map[string]*Collector)
	t.handlersLock.Unlock()

	// Wait for in-flight async tasks
	if workers != nil {
		workers.Shutdown()
	}
	for _, c := range collectors {
		c.Close()
	}
	t.ids.close()
}
