// Package http traces outbound calls made through net/http clients.
package http

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/zoobzio/spanz"
)

type roundTripperConfig struct {
	spanNamer   func(req *http.Request) string
	before      func(req *http.Request, span *spanz.ActiveSpan)
	after       func(res *http.Response, span *spanz.ActiveSpan)
	peerService string
	component   string
	propagation bool
}

// RoundTripperOption configures a traced RoundTripper.
type RoundTripperOption func(*roundTripperConfig)

// WithPeerService tags client spans with the remote service name.
func WithPeerService(name string) RoundTripperOption {
	return func(cfg *roundTripperConfig) { cfg.peerService = name }
}

// WithComponent tags client spans with the local component name.
func WithComponent(name string) RoundTripperOption {
	return func(cfg *roundTripperConfig) { cfg.component = name }
}

// WithSpanNamer sets how client spans are named. Defaults to "http:" plus
// the request path.
func WithSpanNamer(namer func(req *http.Request) string) RoundTripperOption {
	return func(cfg *roundTripperConfig) {
		if namer != nil {
			cfg.spanNamer = namer
		}
	}
}

// WithBefore adds a hook called before the request is sent.
func WithBefore(f func(req *http.Request, span *spanz.ActiveSpan)) RoundTripperOption {
	return func(cfg *roundTripperConfig) { cfg.before = f }
}

// WithAfter adds a hook called after the response, or error, is received.
func WithAfter(f func(res *http.Response, span *spanz.ActiveSpan)) RoundTripperOption {
	return func(cfg *roundTripperConfig) { cfg.after = f }
}

// WithPropagation toggles injecting spanz headers into outgoing requests.
// Enabled by default.
func WithPropagation(enabled bool) RoundTripperOption {
	return func(cfg *roundTripperConfig) { cfg.propagation = enabled }
}

type roundTripper struct {
	base   http.RoundTripper
	tracer *spanz.Tracer
	cfg    *roundTripperConfig
}

func (rt *roundTripper) RoundTrip(req *http.Request) (res *http.Response, err error) {
	ctx, span := rt.tracer.StartSpan(req.Context(), rt.cfg.spanNamer(req))

	// Make a copy of the URL so we don't modify the outgoing request
	url := *req.URL
	url.User = nil
	span.SetTag(spanz.TagSpanKind, spanz.SpanKindClient)
	span.SetTag(spanz.TagHTTPMethod, req.Method)
	span.SetTag(spanz.TagHTTPURL, url.String())
	span.SetTag(spanz.TagHTTPPath, url.Path)
	if rt.cfg.component != "" {
		span.SetTag(spanz.TagLocalComponent, rt.cfg.component)
	}

	port, _ := strconv.Atoi(url.Port())
	if port == 0 {
		port = defaultPort(url.Scheme)
	}
	peer := spanz.Peer{Service: rt.cfg.peerService, Host: url.Hostname(), Port: port}

	defer func() {
		peer.Apply(span)
		if rt.cfg.after != nil {
			rt.cfg.after(res, span)
		}
		span.LogEvent(spanz.EventClientRecv)
		span.Finish()
	}()

	if rt.cfg.before != nil {
		rt.cfg.before(req, span)
	}
	r2 := req.Clone(ctx)
	if rt.cfg.propagation {
		spanz.Inject(span.Carrier(), spanz.HTTPHeadersCarrier(r2.Header))
	}

	span.LogEvent(spanz.EventClientSend)
	res, err = rt.base.RoundTrip(r2)
	if err != nil {
		span.SetTag(spanz.TagError, err.Error())
		return res, err
	}
	span.SetTag(spanz.TagHTTPStatusCode, strconv.Itoa(res.StatusCode))
	// treat 5XX as errors
	if res.StatusCode/100 == 5 {
		span.SetTag(spanz.TagError, fmt.Sprintf("%d: %s", res.StatusCode, http.StatusText(res.StatusCode)))
	}
	return res, err
}

// Unwrap returns the original http.RoundTripper.
func (rt *roundTripper) Unwrap() http.RoundTripper {
	return rt.base
}

func defaultPort(scheme string) int {
	switch scheme {
	case "https":
		return 443
	case "http":
		return 80
	}
	return 0
}

// WrapRoundTripper returns a RoundTripper that opens a client span, tagged
// with peer metadata, around every request sent over rt.
func WrapRoundTripper(tracer *spanz.Tracer, rt http.RoundTripper, opts ...RoundTripperOption) http.RoundTripper {
	if rt == nil {
		rt = http.DefaultTransport
	}
	cfg := &roundTripperConfig{
		spanNamer:   func(req *http.Request) string { return "http:" + req.URL.Path },
		propagation: true,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if wrapped, ok := rt.(*roundTripper); ok {
		rt = wrapped.base
	}
	return &roundTripper{base: rt, tracer: tracer, cfg: cfg}
}

// WrapClient modifies the given client's transport to augment it with tracing and returns it.
func WrapClient(tracer *spanz.Tracer, c *http.Client, opts ...RoundTripperOption) *http.Client {
	if c.Transport == nil {
		c.Transport = http.DefaultTransport
	}
	c.Transport = WrapRoundTripper(tracer, c.Transport, opts...)
	return c
}
