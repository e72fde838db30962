package spanz

import (
	"errors"
	"fmt"
	"sync"
)

// UnresolvableTag is the tag value used when a resolver fails.
const UnresolvableTag = "<unresolvable>"

// TagValueResolver turns a value into a tag string. Resolvers must be pure.
type TagValueResolver func(value any) (string, error)

// ResolverRegistry maps resolver names to resolvers.
// Register resolvers before use; lookups are safe for concurrent use.
type ResolverRegistry struct {
	resolvers map[string]TagValueResolver
	mu        sync.RWMutex
}

// NewResolverRegistry returns an empty registry.
func NewResolverRegistry() *ResolverRegistry {
	return &ResolverRegistry{resolvers: make(map[string]TagValueResolver)}
}

// Register associates name with resolver, replacing any previous one.
func (r *ResolverRegistry) Register(name string, resolver TagValueResolver) {
	if resolver == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolvers[name] = resolver
}

// Has reports whether a resolver is registered under name.
func (r *ResolverRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.resolvers[name]
	return ok
}

// Resolve returns the tag value for value. A non-empty name selects a
// registered resolver; otherwise the default string form is used.
// Failures yield UnresolvableTag.
func (r *ResolverRegistry) Resolve(value any, name string) string {
	out, _ := r.resolve(value, name)
	return out
}

// resolve is Resolve that also reports what went wrong. The returned string
// is always usable as a tag value.
func (r *ResolverRegistry) resolve(value any, name string) (string, error) {
	if name == "" {
		return DefaultTagValue(value), nil
	}

	r.mu.RLock()
	resolver, ok := r.resolvers[name]
	r.mu.RUnlock()

	if !ok {
		return DefaultTagValue(value), &ResolverError{
			Resolver: name,
			Err:      errors.New("no resolver registered, used default string form"),
		}
	}

	out, err := safeResolve(resolver, value)
	if err != nil {
		return UnresolvableTag, &ResolverError{Resolver: name, Err: err}
	}
	return out, nil
}

func safeResolve(resolver TagValueResolver, value any) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	return resolver(value)
}

// DefaultTagValue is the default string form of a value.
// Strings pass through, nil becomes empty, and fmt.Stringer is honored.
func DefaultTagValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// TypeResolver builds a resolver for values of type T. Other values fall
// back to DefaultTagValue.
func TypeResolver[T any](fn func(T) string) TagValueResolver {
	return func(value any) (string, error) {
		if v, ok := value.(T); ok {
			return fn(v), nil
		}
		return DefaultTagValue(value), nil
	}
}
