package spanz

import "context"

// Param tags a span with an argument of the traced call, optionally through
// a named resolver.
type Param struct {
	Value    any
	Key      Tag
	Resolver string
}

// TagParam tags key with value's default string form.
func TagParam(key Tag, value any) Param {
	return Param{Key: key, Value: value}
}

// TagParamWith tags key with value resolved by the named resolver.
func TagParamWith(key Tag, resolver string, value any) Param {
	return Param{Key: key, Value: value, Resolver: resolver}
}

func (t *Tracer) applyParams(span *ActiveSpan, params []Param) {
	for _, p := range params {
		span.SetTag(p.Key, t.resolve(p.Value, p.Resolver))
	}
}

// InNewSpan runs fn inside a new span called name, tagged with params.
// It behaves exactly like StartSpan, tag, fn, FinishSpan. fn's error is
// tagged on the span and returned unchanged; a panic finishes the span and
// is re-raised.
func (t *Tracer) InNewSpan(ctx context.Context, name string, fn func(context.Context) error, params ...Param) (err error) {
	ctx, span := t.StartSpan(ctx, name)
	t.applyParams(span, params)

	defer func() {
		if r := recover(); r != nil {
			span.SetTag(TagError, panicError(r).Error())
			span.Finish()
			panic(r)
		}
		if err != nil {
			span.SetTag(TagError, err.Error())
		}
		span.Finish()
	}()

	return fn(ctx)
}

// InContinuedSpan runs fn with the current span of ctx continued: params are
// tagged on it and, when logName is set, the events logName.before,
// logName.after and, on failure, logName.afterFailure are logged. Without a
// current span fn simply runs.
func (t *Tracer) InContinuedSpan(ctx context.Context, logName string, fn func(context.Context) error, params ...Param) (err error) {
	current := t.CurrentSpan(ctx)
	if current == nil {
		return fn(ctx)
	}

	ctx, handle := t.ContinueSpan(ctx, current)
	t.applyParams(current, params)
	logEvent(current, logName, ".before")

	defer func() {
		r := recover()
		if r != nil {
			err = panicError(r)
		}
		if err != nil {
			current.SetTag(TagError, err.Error())
			logEvent(current, logName, ".afterFailure")
		}
		logEvent(current, logName, ".after")
		_ = handle.Release()
		if r != nil {
			panic(r)
		}
	}()

	return fn(ctx)
}

func logEvent(span *ActiveSpan, name, suffix string) {
	if name == "" {
		return
	}
	span.LogEvent(name + suffix)
}
