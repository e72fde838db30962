package spanz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeerApply(t *testing.T) {
	tests := []struct {
		name string
		peer Peer
		want map[Tag]string
	}{
		{
			name: "ipv4",
			peer: Peer{Service: "pivotal", Host: "10.0.0.1", Port: 80},
			want: map[Tag]string{TagPeerService: "pivotal", TagPeerIPv4: "10.0.0.1", TagPeerPort: "80"},
		},
		{
			name: "ipv6",
			peer: Peer{Host: "::1", Port: 443},
			want: map[Tag]string{TagPeerIPv6: "::1", TagPeerPort: "443"},
		},
		{
			name: "hostname",
			peer: Peer{Service: "billing", Host: "billing.internal"},
			want: map[Tag]string{TagPeerService: "billing", TagPeerHostname: "billing.internal"},
		},
		{
			name: "empty",
			peer: Peer{},
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracer, _ := newTestTracer(t)
			_, span := tracer.StartSpan(context.Background(), "call")

			tt.peer.Apply(span)

			assert.Equal(t, tt.want, span.Snapshot().Tags)
		})
	}
}

func TestPeerApplyNilSpan(t *testing.T) {
	Peer{Service: "x"}.Apply(nil)
}

func TestPeerCall(t *testing.T) {
	tracer, collector := newTestTracer(t)

	ctx, root := tracer.StartSpan(context.Background(), "request")
	peer := Peer{Service: "pivotal", Host: "192.0.2.10", Port: 80, Component: "pivotal"}
	err := tracer.PeerCall(ctx, "calling_pivotal", peer, func(ctx context.Context) error {
		current := tracer.CurrentSpan(ctx)
		assert.Equal(t, "calling_pivotal", current.Name())
		lc, _ := current.GetTag(TagLocalComponent)
		assert.Equal(t, "pivotal", lc, "local component is tagged before the call")
		return nil
	})
	require.NoError(t, err)
	root.Finish()

	s := spansByName(collector.Export())["calling_pivotal"]
	assert.Equal(t, root.SpanID(), s.ParentID)
	assert.Equal(t, SpanKindClient, s.Tags[TagSpanKind])
	assert.Equal(t, "pivotal", s.Tags[TagPeerService])
	assert.Equal(t, "192.0.2.10", s.Tags[TagPeerIPv4])
	assert.Equal(t, "80", s.Tags[TagPeerPort])
	require.Len(t, s.Events, 2)
	assert.Equal(t, EventClientSend, s.Events[0].Label)
	assert.Equal(t, EventClientRecv, s.Events[1].Label)
}

func TestPeerCallError(t *testing.T) {
	tracer, collector := newTestTracer(t)
	want := errors.New("connection refused")

	err := tracer.PeerCall(context.Background(), "call", Peer{Host: "db"}, func(context.Context) error { return want })

	assert.Same(t, want, err)
	s := collector.Export()[0]
	assert.Equal(t, "connection refused", s.Tags[TagError])
	assert.Equal(t, "db", s.Tags[TagPeerHostname])
}
