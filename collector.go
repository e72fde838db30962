package spanz

import (
	"sync"
	"sync/atomic"
	"time"
)

// Buffer sizing for a Collector between exports.
const (
	minCollectorCap = 16
	maxCollectorCap = 4096
)

// Collector is an in-memory sink that keeps finished spans until Export.
// Spans arrive through a bounded channel drained by one goroutine, or are
// appended directly in sync mode. Safe for concurrent use.
//
//nolint:govet // Field order groups the channel plumbing together
type Collector struct {
	name    string
	inbox   chan Span
	stop    chan struct{}
	stopped chan struct{}

	mu    sync.Mutex
	spans []Span

	dropped atomic.Int64
	closed  atomic.Bool
	direct  atomic.Bool
}

// NewCollector starts a collector whose inbox holds bufferSize spans.
func NewCollector(name string, bufferSize int) *Collector {
	c := &Collector{
		name:    name,
		inbox:   make(chan Span, bufferSize),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
		spans:   make([]Span, 0, minCollectorCap),
	}
	go c.run()
	return c
}

// Name returns the name the collector was created with.
func (c *Collector) Name() string {
	return c.name
}

func (c *Collector) run() {
	defer close(c.stopped)
	for {
		select {
		case span := <-c.inbox:
			c.add(span)
		case <-c.stop:
			c.drain()
			return
		}
	}
}

func (c *Collector) drain() {
	for {
		select {
		case span := <-c.inbox:
			c.add(span)
		default:
			return
		}
	}
}

// Close stops the inbox goroutine after draining what is queued. Spans
// already buffered stay available to Export; later spans count as dropped.
// Safe to call more than once.
func (c *Collector) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	close(c.stop)
	select {
	case <-c.stopped:
	case <-time.After(100 * time.Millisecond):
	}
}

// Collect stores a private copy of span. A nil span, a closed collector or
// a full inbox count as a drop; Collect never blocks.
func (c *Collector) Collect(span *Span) {
	if span == nil || c.closed.Load() {
		c.dropped.Add(1)
		return
	}
	own := span.Clone()
	if c.direct.Load() {
		c.add(own)
		return
	}
	select {
	case c.inbox <- own:
	default:
		c.dropped.Add(1)
	}
}

func (c *Collector) add(span Span) {
	c.mu.Lock()
	c.spans = append(c.spans, span)
	c.mu.Unlock()
}

// Export hands over every buffered span and starts an empty buffer sized
// after the batch just exported. The caller owns the returned slice.
func (c *Collector) Export() []Span {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.spans) == 0 {
		return nil
	}
	out := c.spans
	c.spans = make([]Span, 0, nextCollectorCap(len(out)))
	return out
}

// nextCollectorCap expects the next batch to look like the last one.
func nextCollectorCap(last int) int {
	switch {
	case last < minCollectorCap:
		return minCollectorCap
	case last > maxCollectorCap:
		return maxCollectorCap
	default:
		return last
	}
}

// Count returns the number of buffered spans.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.spans)
}

// DroppedCount returns how many spans were rejected since the last Reset.
func (c *Collector) DroppedCount() int64 {
	return c.dropped.Load()
}

// SetSyncMode makes Collect append directly instead of going through the
// inbox, so tests see spans as soon as they finish.
func (c *Collector) SetSyncMode(sync bool) {
	c.direct.Store(sync)
}

// Reset discards buffered spans and zeroes the drop counter.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spans = c.spans[:0]
	c.dropped.Store(0)
}
