package spanz

import (
	"net/http"
	"strings"
)

// Header names used to carry a Carrier between processes.
const (
	HeaderTraceID       = "X-Trace-Id"
	HeaderSpanID        = "X-Span-Id"
	HeaderBaggagePrefix = "Baggage-"
)

// TextMapWriter is implemented by header-like stores that can be written.
type TextMapWriter interface {
	Set(key, val string)
}

// TextMapReader is implemented by header-like stores that can be iterated.
type TextMapReader interface {
	ForeachKey(handler func(key, val string) error) error
}

// TextMapCarrier adapts a plain map.
type TextMapCarrier map[string]string

// Set implements TextMapWriter.
func (c TextMapCarrier) Set(key, val string) {
	c[key] = val
}

// ForeachKey implements TextMapReader.
func (c TextMapCarrier) ForeachKey(handler func(key, val string) error) error {
	for k, v := range c {
		if err := handler(k, v); err != nil {
			return err
		}
	}
	return nil
}

// HTTPHeadersCarrier adapts http.Header.
type HTTPHeadersCarrier http.Header

// Set implements TextMapWriter.
func (c HTTPHeadersCarrier) Set(key, val string) {
	http.Header(c).Set(key, val)
}

// ForeachKey implements TextMapReader.
func (c HTTPHeadersCarrier) ForeachKey(handler func(key, val string) error) error {
	for k, vals := range c {
		for _, v := range vals {
			if err := handler(k, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// Inject writes c into w. Invalid carriers write nothing.
func Inject(c Carrier, w TextMapWriter) {
	if !c.IsValid() || w == nil {
		return
	}
	w.Set(HeaderTraceID, c.TraceID())
	w.Set(HeaderSpanID, c.SpanID())
	c.ForeachBaggageItem(func(k, v string) bool {
		w.Set(HeaderBaggagePrefix+k, v)
		return true
	})
}

// Extract reads a carrier written by Inject. Header names are matched
// case-insensitively and baggage keys come back lower-cased, since HTTP
// and gRPC both rewrite header case. Returns false when no valid carrier
// is present.
func Extract(r TextMapReader) (Carrier, bool) {
	if r == nil {
		return Carrier{}, false
	}
	var traceID, spanID string
	var baggage map[string]string
	prefix := strings.ToLower(HeaderBaggagePrefix)

	_ = r.ForeachKey(func(key, val string) error {
		lower := strings.ToLower(key)
		switch {
		case lower == strings.ToLower(HeaderTraceID):
			traceID = val
		case lower == strings.ToLower(HeaderSpanID):
			spanID = val
		case strings.HasPrefix(lower, prefix) && len(lower) > len(prefix):
			if baggage == nil {
				baggage = make(map[string]string)
			}
			baggage[lower[len(prefix):]] = val
		}
		return nil
	})

	c := NewCarrier(traceID, spanID, baggage)
	return c, c.IsValid()
}
