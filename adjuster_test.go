package spanz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestAdjusterPipelineOrder(t *testing.T) {
	p := NewAdjusterPipeline(
		func(s Span) Span { return s.WithName(s.Name + "-a") },
		func(s Span) Span { return s.WithName(s.Name + "-b") },
	)

	assert.Equal(t, 2, p.Len())
	assert.Equal(t, "op-a-b", p.Apply(Span{Name: "op"}).Name)
}

func TestAdjusterPipelineNilAdjusterPassesThrough(t *testing.T) {
	var failures []*AdjusterError
	p := NewAdjusterPipeline(nil, func(s Span) Span { return s.WithTag("after", "yes") })
	p.Register(nil)

	assert.Equal(t, 3, p.Len(), "nil adjusters are registered like any other")
	out := p.apply(Span{Name: "op"}, func(err *AdjusterError) { failures = append(failures, err) })
	assert.Equal(t, "op", out.Name)
	assert.Equal(t, "yes", out.Tags["after"])
	assert.Empty(t, failures)
}

func TestAdjusterPipelinePanicIsSkipped(t *testing.T) {
	var failures []*AdjusterError
	p := NewAdjusterPipeline(
		func(s Span) Span { return s.WithTag("first", "yes") },
		func(s Span) Span {
			s.Name = "half-done"
			panic("adjuster bug")
		},
		func(s Span) Span { return s.WithTag("third", "yes") },
	)

	out := p.apply(Span{Name: "op"}, func(err *AdjusterError) { failures = append(failures, err) })

	assert.Equal(t, "op", out.Name, "the panicking adjuster's changes are discarded")
	assert.Equal(t, "yes", out.Tags["first"])
	assert.Equal(t, "yes", out.Tags["third"])
	require.Len(t, failures, 1)
	assert.Equal(t, 1, failures[0].Index)
	assert.ErrorIs(t, failures[0], ErrAdjuster)
}

func TestAdjusterCannotMutateInput(t *testing.T) {
	p := NewAdjusterPipeline(func(s Span) Span {
		s.Tags["k"] = "changed"
		return s
	})
	in := Span{Tags: map[Tag]string{"k": "v"}}

	out := p.Apply(in)

	assert.Equal(t, "v", in.Tags["k"])
	assert.Equal(t, "changed", out.Tags["k"])
}

func TestNilPipelinePassesThrough(t *testing.T) {
	var p *AdjusterPipeline
	assert.Equal(t, "op", p.apply(Span{Name: "op"}, nil).Name)
}

func TestRenameOnTag(t *testing.T) {
	adjust := RenameOnTag(TagHTTPPath, "/s1p", "hacked!")

	assert.Equal(t, "hacked!", adjust(Span{Name: "http:/s1p", Tags: map[Tag]string{TagHTTPPath: "/s1p"}}).Name)
	assert.Equal(t, "http:/other", adjust(Span{Name: "http:/other", Tags: map[Tag]string{TagHTTPPath: "/other"}}).Name)
	assert.Equal(t, "untagged", adjust(Span{Name: "untagged"}).Name)
}

func TestTracerAdjusterPanicFailsOpen(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	metrics := NewMetrics(nil)
	adjusters := NewAdjusterPipeline(func(Span) Span { panic("bad adjuster") })
	tracer, collector := newTestTracer(t,
		WithLogger(zap.New(core)),
		WithAdjusters(adjusters),
		WithMetrics(metrics),
	)

	_, span := tracer.StartSpan(context.Background(), "op")
	span.Finish()

	spans := collector.Export()
	require.Len(t, spans, 1)
	assert.Equal(t, "op", spans[0].Name)
	assert.Equal(t, 1, logs.FilterMessage("span adjuster failed").Len())
	assert.Equal(t, float64(1), counterValue(t, metrics.AdjusterErrors))
}
