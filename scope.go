package spanz

import (
	"context"
	"sync"
)

// scopeKey is a private type for context keys to avoid collisions.
type scopeKey struct{}

type scopeEntry struct {
	span      *ActiveSpan
	id        uint64
	continued bool
}

// Scope is the current-span stack of one execution context. The top entry
// is the current span. Entries are pushed by StartSpan and ContinueSpan and
// removed by FinishSpan and Handle.Release.
//
// Scope is locked internally so a span finished from another goroutine can
// still clean up the stack it was started on.
type Scope struct {
	entries []scopeEntry
	nextID  uint64
	mu      sync.Mutex
}

// NewScope returns an empty stack.
func NewScope() *Scope {
	return &Scope{}
}

// WithScope returns a context whose current-span stack is s.
func WithScope(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// ScopeFrom returns the stack carried by ctx, or nil.
func ScopeFrom(ctx context.Context) *Scope {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(scopeKey{}).(*Scope)
	return s
}

// ensureScope returns ctx and its scope, attaching a new one if needed.
func ensureScope(ctx context.Context) (context.Context, *Scope) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s := ScopeFrom(ctx); s != nil {
		return ctx, s
	}
	s := NewScope()
	return WithScope(ctx, s), s
}

// Current returns the span on top of the stack, or nil.
func (s *Scope) Current() *ActiveSpan {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) == 0 {
		return nil
	}
	return s.entries[len(s.entries)-1].span
}

// Depth returns the number of entries on the stack.
func (s *Scope) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Scope) push(span *ActiveSpan, continued bool) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	s.entries = append(s.entries, scopeEntry{span: span, id: s.nextID, continued: continued})
	return s.nextID
}

// removeStarted removes the topmost entry pushed when span was started.
func (s *Scope) removeStarted(span *ActiveSpan) (found, top bool) {
	return s.removeWhere(func(e scopeEntry) bool {
		return e.span == span && !e.continued
	})
}

// removeEntry removes the entry with the given id.
func (s *Scope) removeEntry(id uint64) (found, top bool) {
	return s.removeWhere(func(e scopeEntry) bool {
		return e.id == id
	})
}

// removeWhere deletes the topmost matching entry and reports whether one
// was found and whether it was on top. Entries above it are kept so the
// true current span can still be finished normally.
func (s *Scope) removeWhere(match func(scopeEntry) bool) (found, top bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.entries) - 1; i >= 0; i-- {
		if !match(s.entries[i]) {
			continue
		}
		top = i == len(s.entries)-1
		copy(s.entries[i:], s.entries[i+1:])
		s.entries[len(s.entries)-1] = scopeEntry{}
		s.entries = s.entries[:len(s.entries)-1]
		return true, top
	}
	return false, false
}

// depthOf returns the depth at which the entry with id sits, counting the
// bottom entry as 1, or 0 when it is not on the stack.
func (s *Scope) depthOf(id uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].id == id {
			return i + 1
		}
	}
	return 0
}

// truncate drops every entry above depth and returns them, top first.
func (s *Scope) truncate(depth int) []scopeEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if depth < 0 {
		depth = 0
	}
	if depth >= len(s.entries) {
		return nil
	}
	stale := make([]scopeEntry, 0, len(s.entries)-depth)
	for i := len(s.entries) - 1; i >= depth; i-- {
		stale = append(stale, s.entries[i])
		s.entries[i] = scopeEntry{}
	}
	s.entries = s.entries[:depth]
	return stale
}

// Handle is returned by ContinueSpan and Propagated.Resume. Release pops
// exactly the entry that was pushed.
type Handle struct {
	tracer *Tracer
	scope  *Scope
	spanID string
	id     uint64
	once   sync.Once
}

// Release removes the handle's entry from its stack. Only the first call
// has an effect. A *ScopeError is returned, after being logged, when the
// entry was not on top or was already gone; the stack is corrected either way.
func (h *Handle) Release() error {
	if h == nil || h.scope == nil {
		return nil
	}
	var err error
	h.once.Do(func() {
		found, top := h.scope.removeEntry(h.id)
		switch {
		case !found:
			err = &ScopeError{Op: "release", SpanID: h.spanID, Reason: "entry already removed from stack"}
		case !top:
			err = &ScopeError{Op: "release", SpanID: h.spanID, Reason: "entry was not on top of stack"}
		}
		if err != nil {
			h.tracer.scopeError(err)
		}
	})
	return err
}
