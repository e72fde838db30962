package spanz

import (
	"crypto/rand"
	"encoding/hex"
	"runtime"
	"sync"
	"time"
)

const (
	traceIDBytes = 16
	spanIDBytes  = 8
)

// idSource hands out trace and span identifiers.
type idSource interface {
	traceID() string
	spanID() string
}

// randomIDs generates identifiers directly from crypto/rand.
type randomIDs struct{}

func (randomIDs) traceID() string { return randomHex(traceIDBytes) }

func (randomIDs) spanID() string { return randomHex(spanIDBytes) }

// randomHex returns n random bytes hex encoded.
// Falls back to a time-derived value if crypto/rand fails.
func randomHex(n int) string {
	bytes := make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		stamp := uint64(time.Now().UnixNano()) //nolint:gosec // monotonic enough for a fallback
		for i := range bytes {
			bytes[i] = byte(stamp >> (8 * (i % 8)))
		}
	}
	return hex.EncodeToString(bytes)
}

// IDPool manages a pool of pre-generated IDs to amortize crypto/rand overhead.
type IDPool struct {
	factory func() string
	ids     chan string
	stopCh  chan struct{}
	mu      sync.Mutex
	closed  bool
}

// NewIDPool creates a new ID pool with the specified capacity.
func NewIDPool(capacity int, factory func() string) *IDPool {
	pool := &IDPool{
		ids:     make(chan string, capacity),
		factory: factory,
		stopCh:  make(chan struct{}),
	}
	go pool.refill()
	return pool
}

// Get retrieves an ID from the pool or generates one if pool is empty.
func (p *IDPool) Get() string {
	select {
	case id := <-p.ids:
		return id
	default:
		// Pool empty, generate directly (fallback for burst load).
		return p.factory()
	}
}

// refill maintains the pool by generating IDs in background.
func (p *IDPool) refill() {
	for {
		select {
		case <-p.stopCh:
			return
		case p.ids <- p.factory():
		}
	}
}

// Close shuts down the ID pool gracefully.
// Get keeps working after Close by generating IDs directly.
func (p *IDPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		close(p.stopCh)
		p.closed = true
	}
}

// pooledIDs is the idSource used by a Tracer. Pools start lazily on first use.
type pooledIDs struct {
	traces *IDPool
	spans  *IDPool
	once   sync.Once
}

func (p *pooledIDs) ensure() {
	p.once.Do(func() {
		// Pool size based on number of CPUs for optimal contention balance.
		size := runtime.NumCPU() * 100
		p.traces = NewIDPool(size, func() string { return randomHex(traceIDBytes) })
		p.spans = NewIDPool(size, func() string { return randomHex(spanIDBytes) })
	})
}

func (p *pooledIDs) traceID() string {
	p.ensure()
	return p.traces.Get()
}

func (p *pooledIDs) spanID() string {
	p.ensure()
	return p.spans.Get()
}

func (p *pooledIDs) close() {
	// Force initialization so Close never races a late ensure.
	p.ensure()
	p.traces.Close()
	p.spans.Close()
}
