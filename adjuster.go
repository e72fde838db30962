package spanz

import "sync"

// Adjuster rewrites a finished span before export. It receives its own copy
// of the span and returns the replacement.
type Adjuster func(Span) Span

// AdjusterPipeline applies adjusters in registration order.
// Register adjusters before use; Apply is safe for concurrent use.
type AdjusterPipeline struct {
	adjusters []Adjuster
	mu        sync.RWMutex
}

// NewAdjusterPipeline returns a pipeline with the given adjusters.
func NewAdjusterPipeline(adjusters ...Adjuster) *AdjusterPipeline {
	p := &AdjusterPipeline{}
	for _, a := range adjusters {
		p.Register(a)
	}
	return p
}

// Register appends an adjuster. Nothing is validated: a nil adjuster
// takes a slot and leaves spans unchanged when applied.
func (p *AdjusterPipeline) Register(adjuster Adjuster) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.adjusters = append(p.adjusters, adjuster)
}

// Len returns the number of registered adjusters.
func (p *AdjusterPipeline) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.adjusters)
}

// Apply folds span through every adjuster. An adjuster that panics is
// skipped and the span it was given continues down the pipeline.
func (p *AdjusterPipeline) Apply(span Span) Span {
	return p.apply(span, nil)
}

func (p *AdjusterPipeline) apply(span Span, onError func(*AdjusterError)) Span {
	if p == nil {
		return span
	}
	p.mu.RLock()
	adjusters := p.adjusters
	p.mu.RUnlock()

	for i, adjust := range adjusters {
		if adjust == nil {
			continue
		}
		next, err := safeAdjust(i, adjust, span.Clone())
		if err != nil {
			if onError != nil {
				onError(err)
			}
			continue
		}
		span = next
	}
	return span
}

func safeAdjust(i int, adjust Adjuster, span Span) (out Span, err *AdjusterError) {
	defer func() {
		if r := recover(); r != nil {
			err = &AdjusterError{Index: i, Recovered: r}
		}
	}()
	return adjust(span), nil
}

// RenameOnTag renames spans whose tag key equals value.
func RenameOnTag(key Tag, value, name string) Adjuster {
	return func(s Span) Span {
		if v, ok := s.Tags[key]; ok && v == value {
			s.Name = name
		}
		return s
	}
}
