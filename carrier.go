package spanz

// Carrier holds the identity of one span within a trace plus the baggage
// that travels with it. Carriers are immutable: every modifier returns a
// new Carrier and never touches the receiver's baggage.
type Carrier struct {
	baggage      map[string]string
	traceID      string
	spanID       string
	parentSpanID string
}

// NewRootCarrier returns a carrier starting a new trace.
func NewRootCarrier() Carrier {
	return newRootCarrier(randomIDs{})
}

// NewCarrier rebuilds a carrier received from a remote peer.
// The baggage map is copied.
func NewCarrier(traceID, spanID string, baggage map[string]string) Carrier {
	return Carrier{
		traceID: traceID,
		spanID:  spanID,
		baggage: copyBaggage(baggage, 0),
	}
}

func newRootCarrier(ids idSource) Carrier {
	return Carrier{
		traceID: ids.traceID(),
		spanID:  ids.spanID(),
	}
}

// Child returns a carrier for a span parented to c.
func (c Carrier) Child() Carrier {
	return c.child(randomIDs{})
}

func (c Carrier) child(ids idSource) Carrier {
	traceID := c.traceID
	if traceID == "" {
		traceID = ids.traceID()
	}
	return Carrier{
		traceID:      traceID,
		spanID:       ids.spanID(),
		parentSpanID: c.spanID,
		baggage:      copyBaggage(c.baggage, 0),
	}
}

// WithBaggage returns a copy of c with key set to value.
func (c Carrier) WithBaggage(key, value string) Carrier {
	next := c
	next.baggage = copyBaggage(c.baggage, 1)
	next.baggage[key] = value
	return next
}

// TraceID returns the trace identifier shared by every span of the trace.
func (c Carrier) TraceID() string { return c.traceID }

// SpanID returns the identifier of the span this carrier belongs to.
func (c Carrier) SpanID() string { return c.spanID }

// ParentSpanID returns the parent span identifier, empty for roots.
func (c Carrier) ParentSpanID() string { return c.parentSpanID }

// IsRoot reports whether c has no parent.
func (c Carrier) IsRoot() bool { return c.parentSpanID == "" }

// IsValid reports whether c carries both identifiers.
func (c Carrier) IsValid() bool { return c.traceID != "" && c.spanID != "" }

// Baggage returns the baggage value stored under key.
func (c Carrier) Baggage(key string) (string, bool) {
	v, ok := c.baggage[key]
	return v, ok
}

// BaggageItems returns a copy of all baggage, nil when empty.
func (c Carrier) BaggageItems() map[string]string {
	if len(c.baggage) == 0 {
		return nil
	}
	return copyBaggage(c.baggage, 0)
}

// ForeachBaggageItem calls handler for each baggage item until it returns false.
func (c Carrier) ForeachBaggageItem(handler func(k, v string) bool) {
	for k, v := range c.baggage {
		if !handler(k, v) {
			return
		}
	}
}

// copyBaggage returns an independent copy of src. A nil src yields nil
// unless extra room is requested.
func copyBaggage(src map[string]string, extra int) map[string]string {
	if len(src) == 0 && extra == 0 {
		return nil
	}
	dst := make(map[string]string, len(src)+extra)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
