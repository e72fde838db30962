package spanz

import (
	"errors"
	"fmt"
)

// Sentinel errors for matching with errors.Is.
var (
	ErrScope    = errors.New("spanz: scope discipline violated")
	ErrResolver = errors.New("spanz: tag resolver failed")
	ErrAdjuster = errors.New("spanz: span adjuster failed")
)

// ScopeError reports a current-span stack that was not used in LIFO order:
// finishing a span that is not on top, releasing an entry that is gone, or
// leaving entries behind on a stack a hop is torn down from.
// The stack has already been corrected when a ScopeError is returned.
type ScopeError struct {
	Op     string
	SpanID string
	Reason string
}

func (e *ScopeError) Error() string {
	return fmt.Sprintf("spanz: %s span %s: %s", e.Op, e.SpanID, e.Reason)
}

// Unwrap lets errors.Is match ErrScope.
func (*ScopeError) Unwrap() error { return ErrScope }

// ResolverError reports a tag resolver that returned an error or panicked.
type ResolverError struct {
	Err      error
	Resolver string
}

func (e *ResolverError) Error() string {
	name := e.Resolver
	if name == "" {
		name = "default"
	}
	return fmt.Sprintf("spanz: resolver %q: %v", name, e.Err)
}

// Unwrap returns both the sentinel and the underlying failure.
func (e *ResolverError) Unwrap() []error { return []error{ErrResolver, e.Err} }

// AdjusterError reports an adjuster that panicked. Its effect was discarded.
type AdjusterError struct {
	Recovered any
	Index     int
}

func (e *AdjusterError) Error() string {
	return fmt.Sprintf("spanz: adjuster #%d panicked: %v", e.Index, e.Recovered)
}

// Unwrap lets errors.Is match ErrAdjuster.
func (*AdjusterError) Unwrap() error { return ErrAdjuster }

// panicError converts a recovered value to an error.
func panicError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", r)
}
