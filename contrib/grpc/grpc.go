// Package grpc traces gRPC calls made and served with google.golang.org/grpc.
package grpc

import (
	"context"
	"net"
	"strconv"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/zoobzio/spanz"
)

// MDCarrier adapts gRPC metadata to spanz's text map interfaces.
type MDCarrier metadata.MD

// Set implements spanz.TextMapWriter. gRPC requires lower-case keys.
func (c MDCarrier) Set(key, val string) {
	metadata.MD(c).Set(strings.ToLower(key), val)
}

// ForeachKey implements spanz.TextMapReader.
func (c MDCarrier) ForeachKey(handler func(key, val string) error) error {
	for k, vals := range c {
		for _, v := range vals {
			if err := handler(k, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func tagResult(span *spanz.ActiveSpan, err error) {
	code := status.Code(err)
	span.SetTag("rpc.grpc.status_code", code.String())
	if err != nil {
		span.SetTag(spanz.TagError, err.Error())
	}
}

// UnaryServerInterceptor opens a server span per call, continuing the
// caller's trace when the incoming metadata carries one.
func UnaryServerInterceptor(tracer *spanz.Tracer) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		var inbound spanz.Carrier
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			inbound, _ = spanz.Extract(MDCarrier(md))
		}

		ctx, span := tracer.StartSpanFrom(ctx, "grpc:"+info.FullMethod, inbound)
		defer span.Finish()
		span.SetTag(spanz.TagSpanKind, spanz.SpanKindServer)
		span.SetTag(spanz.TagRPCSystem, "grpc")
		span.SetTag(spanz.TagRPCMethod, info.FullMethod)
		span.LogEvent(spanz.EventServerRecv)

		resp, err := handler(ctx, req)

		tagResult(span, err)
		span.LogEvent(spanz.EventServerSend)
		return resp, err
	}
}

// UnaryClientInterceptor opens a client span per call, tags the peer and
// injects the span's carrier into the outgoing metadata.
func UnaryClientInterceptor(tracer *spanz.Tracer, peerService string) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		ctx, span := tracer.StartSpan(ctx, "grpc:"+method)
		defer span.Finish()
		span.SetTag(spanz.TagSpanKind, spanz.SpanKindClient)
		span.SetTag(spanz.TagRPCSystem, "grpc")
		span.SetTag(spanz.TagRPCMethod, method)
		target := ""
		if cc != nil {
			target = cc.Target()
		}
		peerOf(target, peerService).Apply(span)

		md, ok := metadata.FromOutgoingContext(ctx)
		if ok {
			md = md.Copy()
		} else {
			md = metadata.MD{}
		}
		spanz.Inject(span.Carrier(), MDCarrier(md))
		ctx = metadata.NewOutgoingContext(ctx, md)

		span.LogEvent(spanz.EventClientSend)
		err := invoker(ctx, method, req, reply, cc, opts...)
		span.LogEvent(spanz.EventClientRecv)

		tagResult(span, err)
		return err
	}
}

// peerOf splits a dial target such as "dns:///svc:50051" into a Peer.
func peerOf(target, service string) spanz.Peer {
	if i := strings.LastIndex(target, "/"); i >= 0 {
		target = target[i+1:]
	}
	peer := spanz.Peer{Service: service, Host: target}
	if host, port, err := net.SplitHostPort(target); err == nil {
		peer.Host = host
		peer.Port, _ = strconv.Atoi(port)
	}
	return peer
}
