package spanz

import (
	"context"
	"net"
	"strconv"
)

// Well-known tag keys.
const (
	TagError          Tag = "error"
	TagLocalComponent Tag = "lc"
	TagPeerService    Tag = "peer.service"
	TagPeerHostname   Tag = "peer.hostname"
	TagPeerIPv4       Tag = "peer.ipv4"
	TagPeerIPv6       Tag = "peer.ipv6"
	TagPeerPort       Tag = "peer.port"
	TagHTTPMethod     Tag = "http.method"
	TagHTTPPath       Tag = "http.path"
	TagHTTPURL        Tag = "http.url"
	TagHTTPHost       Tag = "http.host"
	TagHTTPStatusCode Tag = "http.status_code"
	TagRPCSystem      Tag = "rpc.system"
	TagRPCMethod      Tag = "rpc.method"
	TagSpanKind       Tag = "span.kind"
)

// Well-known event labels.
const (
	EventClientSend = "cs"
	EventClientRecv = "cr"
	EventServerRecv = "sr"
	EventServerSend = "ss"
)

// Span kinds for TagSpanKind.
const (
	SpanKindClient = "client"
	SpanKindServer = "server"
)

// Peer describes the remote side of an outbound call.
type Peer struct {
	Service   string
	Host      string // Hostname or IP literal.
	Port      int
	Component string // Local component making the call, tagged as lc.
}

// Apply tags span with the peer's metadata. IP literals are tagged as
// peer.ipv4 or peer.ipv6; other hosts as peer.hostname. No DNS lookups are
// made.
func (p Peer) Apply(span *ActiveSpan) {
	if span == nil {
		return
	}
	if p.Service != "" {
		span.SetTag(TagPeerService, p.Service)
	}
	if p.Host != "" {
		switch ip := net.ParseIP(p.Host); {
		case ip == nil:
			span.SetTag(TagPeerHostname, p.Host)
		case ip.To4() != nil:
			span.SetTag(TagPeerIPv4, ip.String())
		default:
			span.SetTag(TagPeerIPv6, ip.String())
		}
	}
	if p.Port > 0 {
		span.SetTag(TagPeerPort, strconv.Itoa(p.Port))
	}
}

// PeerCall runs fn inside a new client span named name. The span is tagged
// with the local component before fn runs, brackets fn with client send and
// client receive events, and gets the peer tags once fn returns.
// fn's error is tagged and returned unchanged.
func (t *Tracer) PeerCall(ctx context.Context, name string, peer Peer, fn func(context.Context) error) (err error) {
	ctx, span := t.StartSpan(ctx, name)
	span.SetTag(TagSpanKind, SpanKindClient)
	if peer.Component != "" {
		span.SetTag(TagLocalComponent, peer.Component)
	}
	span.LogEvent(EventClientSend)

	defer func() {
		peer.Apply(span)
		span.LogEvent(EventClientRecv)
		if r := recover(); r != nil {
			span.SetTag(TagError, panicError(r).Error())
			span.Finish()
			panic(r)
		}
		if err != nil {
			span.SetTag(TagError, err.Error())
		}
		span.Finish()
	}()

	return fn(ctx)
}
