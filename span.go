package spanz

import (
	"sync"
	"time"
)

// Event is a timestamped marker logged on a span, such as client send.
type Event struct {
	Time  time.Time `json:"time"`
	Label string    `json:"label"`
}

// Span is the finished record of one traced operation, as seen by
// adjusters and export sinks. Values are independent copies: changing one
// never affects the tracer or other sinks.
//
//nolint:govet // Field alignment optimized for JSON serialization order
type Span struct {
	Tags      map[Tag]string    `json:"tags,omitempty"`
	Baggage   map[string]string `json:"baggage,omitempty"`
	Events    []Event           `json:"events,omitempty"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time,omitempty"`
	Duration  time.Duration     `json:"duration"`
	TraceID   string            `json:"trace_id"`
	SpanID    string            `json:"span_id"`
	ParentID  string            `json:"parent_id,omitempty"`
	Name      string            `json:"name"`
}

// Clone returns a deep copy of s.
func (s Span) Clone() Span {
	out := s
	if s.Tags != nil {
		out.Tags = make(map[Tag]string, len(s.Tags))
		for k, v := range s.Tags {
			out.Tags[k] = v
		}
	}
	out.Baggage = copyBaggage(s.Baggage, 0)
	if s.Events != nil {
		out.Events = make([]Event, len(s.Events))
		copy(out.Events, s.Events)
	}
	return out
}

// Tag returns the value of a tag.
func (s Span) Tag(key Tag) (string, bool) {
	v, ok := s.Tags[key]
	return v, ok
}

// WithName returns a copy of s renamed to name.
func (s Span) WithName(name string) Span {
	out := s.Clone()
	out.Name = name
	return out
}

// WithTag returns a copy of s with key set to value.
func (s Span) WithTag(key Tag, value string) Span {
	out := s.Clone()
	if out.Tags == nil {
		out.Tags = make(map[Tag]string, 1)
	}
	out.Tags[key] = value
	return out
}

// State is the lifecycle state of an ActiveSpan.
type State int

// Span states.
const (
	StateOpen State = iota
	StateClosed
)

func (s State) String() string {
	if s == StateClosed {
		return "closed"
	}
	return "open"
}

// ActiveSpan is an open span owned by the tracer.
// Safe for concurrent use by multiple goroutines.
// Writes after the span is closed are ignored.
//
//nolint:govet // Field order optimized for functionality over memory
type ActiveSpan struct {
	tags    map[Tag]string
	events  []Event
	tracer  *Tracer
	scope   *Scope // Scope the span was started on.
	carrier Carrier
	name    string
	start   time.Time
	end     time.Time
	state   State
	mu      sync.Mutex
}

// SetTag adds a key-value pair to the span. Last write wins.
// No-op if span is already finished.
func (a *ActiveSpan) SetTag(key Tag, value string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateClosed {
		return
	}
	if a.tags == nil {
		a.tags = make(map[Tag]string)
	}
	a.tags[key] = value
}

// GetTag retrieves a tag value by key.
func (a *ActiveSpan) GetTag(key Tag) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	value, ok := a.tags[key]
	return value, ok
}

// LogEvent appends a timestamped event.
func (a *ActiveSpan) LogEvent(label string) {
	now := a.tracer.clock.Now()

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateClosed {
		return
	}
	a.events = append(a.events, Event{Time: now, Label: label})
}

// SetName renames the span.
func (a *ActiveSpan) SetName(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateClosed {
		return
	}
	a.name = name
}

// SetBaggageItem replaces the span's carrier with one carrying key=value.
// Spans started afterwards as children inherit the item.
func (a *ActiveSpan) SetBaggageItem(key, value string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateClosed {
		return
	}
	a.carrier = a.carrier.WithBaggage(key, value)
}

// BaggageItem returns a baggage value visible to this span.
func (a *ActiveSpan) BaggageItem(key string) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	v, _ := a.carrier.Baggage(key)
	return v
}

// Carrier returns the span's current carrier.
func (a *ActiveSpan) Carrier() Carrier {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.carrier
}

// TraceID returns the trace ID of this span.
func (a *ActiveSpan) TraceID() string {
	return a.Carrier().TraceID()
}

// SpanID returns the span ID of this span.
func (a *ActiveSpan) SpanID() string {
	return a.Carrier().SpanID()
}

// ParentID returns the parent span ID, empty for roots.
func (a *ActiveSpan) ParentID() string {
	return a.Carrier().ParentSpanID()
}

// Name returns the span's current name.
func (a *ActiveSpan) Name() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.name
}

// State reports whether the span is open or closed.
func (a *ActiveSpan) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Finish closes the span and hands it to the tracer's sinks.
// Safe to call multiple times - subsequent calls are no-ops.
// Stack discipline errors are logged, see Tracer.FinishSpan.
func (a *ActiveSpan) Finish() {
	_ = a.tracer.FinishSpan(a)
}

// close transitions the span to closed and returns its record.
// Returns false if the span was already closed.
func (a *ActiveSpan) close(now time.Time) (Span, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateClosed {
		return Span{}, false
	}
	a.state = StateClosed
	a.end = now
	return a.recordLocked(), true
}

// recordLocked builds an independent Span record. Caller holds a.mu.
func (a *ActiveSpan) recordLocked() Span {
	s := Span{
		Name:      a.name,
		TraceID:   a.carrier.TraceID(),
		SpanID:    a.carrier.SpanID(),
		ParentID:  a.carrier.ParentSpanID(),
		Baggage:   a.carrier.BaggageItems(),
		StartTime: a.start,
		EndTime:   a.end,
	}
	if !a.end.IsZero() {
		s.Duration = a.end.Sub(a.start)
	}
	if len(a.tags) > 0 {
		s.Tags = make(map[Tag]string, len(a.tags))
		for k, v := range a.tags {
			s.Tags[k] = v
		}
	}
	if len(a.events) > 0 {
		s.Events = make([]Event, len(a.events))
		copy(s.Events, a.events)
	}
	return s
}

// Snapshot returns the span's current state as a record.
func (a *ActiveSpan) Snapshot() Span {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recordLocked()
}
