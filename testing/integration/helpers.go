package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/spanz"
)

// MockCollector wraps a real collector with test utilities.
// Provides synchronous collection and verification helpers.
//
//nolint:govet // Field alignment optimized for test helper readability
type MockCollector struct {
	exported []spanz.Span
	*spanz.Collector
	t  *testing.T
	mu sync.Mutex
}

// NewMockCollector creates a sync collector and registers it with tracer.
func NewMockCollector(t *testing.T, tracer *spanz.Tracer) *MockCollector {
	collector := spanz.NewCollector(t.Name(), 10000)
	collector.SetSyncMode(true)
	tracer.AddCollector(t.Name(), collector)
	return &MockCollector{Collector: collector, t: t}
}

// All returns every span collected so far without losing earlier exports.
func (m *MockCollector) All() []spanz.Span {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.exported = append(m.exported, m.Collector.Export()...)
	all := make([]spanz.Span, len(m.exported))
	copy(all, m.exported)
	return all
}

// WaitForSpans waits until at least expected spans were collected.
func (m *MockCollector) WaitForSpans(expected int, timeout time.Duration) []spanz.Span {
	m.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		spans := m.All()
		if len(spans) >= expected {
			return spans
		}
		if time.Now().After(deadline) {
			m.t.Fatalf("Timed out waiting for %d spans, got %d", expected, len(spans))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// SpanNamed returns the only span called name.
func (m *MockCollector) SpanNamed(name string) spanz.Span {
	m.t.Helper()
	var found []spanz.Span
	for _, s := range m.All() {
		if s.Name == name {
			found = append(found, s)
		}
	}
	if len(found) != 1 {
		m.t.Fatalf("Expected one span named %q, got %d", name, len(found))
	}
	return found[0]
}

// SpanTree is a span with its children.
type SpanTree struct {
	Span     spanz.Span
	Children []*SpanTree
}

// BuildSpanTree links spans into trees. Spans whose parent was not collected
// become roots.
func BuildSpanTree(spans []spanz.Span) []*SpanTree {
	nodes := make(map[string]*SpanTree, len(spans))
	for _, s := range spans {
		nodes[s.SpanID] = &SpanTree{Span: s}
	}
	var roots []*SpanTree
	for _, s := range spans {
		node := nodes[s.SpanID]
		if parent, ok := nodes[s.ParentID]; ok && s.ParentID != "" {
			parent.Children = append(parent.Children, node)
			continue
		}
		roots = append(roots, node)
	}
	return roots
}

// PrintSpanTree renders trees for test logs.
func PrintSpanTree(trees []*SpanTree) string {
	var sb strings.Builder
	for _, tree := range trees {
		printTreeNode(&sb, tree, 0)
	}
	return sb.String()
}

func printTreeNode(sb *strings.Builder, node *SpanTree, depth int) {
	fmt.Fprintf(sb, "%s%s (%s)\n", strings.Repeat("  ", depth), node.Span.Name, node.Span.SpanID)
	for _, child := range node.Children {
		printTreeNode(sb, child, depth+1)
	}
}

// TraceAnalyzer answers structural questions about collected spans.
type TraceAnalyzer struct {
	byName map[string][]spanz.Span
	trees  []*SpanTree
}

// NewTraceAnalyzer indexes spans.
func NewTraceAnalyzer(spans []spanz.Span) *TraceAnalyzer {
	a := &TraceAnalyzer{
		byName: make(map[string][]spanz.Span),
		trees:  BuildSpanTree(spans),
	}
	for _, s := range spans {
		a.byName[s.Name] = append(a.byName[s.Name], s)
	}
	return a
}

// SpansByName returns every span called name.
func (a *TraceAnalyzer) SpansByName(name string) []spanz.Span {
	return a.byName[name]
}

// CountTrees returns the number of root spans.
func (a *TraceAnalyzer) CountTrees() int {
	return len(a.trees)
}

// VerifyChain checks that names form a parent to child chain.
func (a *TraceAnalyzer) VerifyChain(names ...string) error {
	for i := 1; i < len(names); i++ {
		parents := a.byName[names[i-1]]
		children := a.byName[names[i]]
		if len(parents) == 0 || len(children) == 0 {
			return fmt.Errorf("missing span in chain %s -> %s", names[i-1], names[i])
		}
		linked := false
		for _, c := range children {
			for _, p := range parents {
				if c.ParentID == p.SpanID && c.TraceID == p.TraceID {
					linked = true
				}
			}
		}
		if !linked {
			return fmt.Errorf("%s is not a child of %s", names[i], names[i-1])
		}
	}
	return nil
}

// ErrServiceUnavailable is returned by a failing MockService.
var ErrServiceUnavailable = errors.New("service unavailable")

// MockService simulates a downstream dependency called through PeerCall.
type MockService struct {
	tracer  *spanz.Tracer
	peer    spanz.Peer
	latency time.Duration
	fail    bool
	mu      sync.Mutex
}

// NewMockService creates a simulated dependency.
func NewMockService(tracer *spanz.Tracer, peer spanz.Peer) *MockService {
	return &MockService{tracer: tracer, peer: peer}
}

// SetLatency sets how long each call takes.
func (m *MockService) SetLatency(d time.Duration) {
	m.mu.Lock()
	m.latency = d
	m.mu.Unlock()
}

// SetFailing makes every call fail.
func (m *MockService) SetFailing(fail bool) {
	m.mu.Lock()
	m.fail = fail
	m.mu.Unlock()
}

// Call makes one traced call to the service.
func (m *MockService) Call(ctx context.Context, operation string) error {
	m.mu.Lock()
	latency, fail := m.latency, m.fail
	m.mu.Unlock()

	return m.tracer.PeerCall(ctx, operation, m.peer, func(ctx context.Context) error {
		if latency > 0 {
			select {
			case <-time.After(latency):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if fail {
			return ErrServiceUnavailable
		}
		return nil
	})
}
