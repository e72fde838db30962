package main

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zoobzio/spanz"
)

const fooResolver = "foo"

// Foo is tagged through the foo resolver, which uses its UUID.
type Foo struct {
	UUID uuid.UUID
}

// NewFoo returns a Foo with a random UUID.
func NewFoo() Foo {
	return Foo{UUID: uuid.New()}
}

func (f Foo) String() string {
	return "Foo{" + f.UUID.String() + "}"
}

func fooTagResolver() spanz.TagValueResolver {
	return spanz.TypeResolver(func(f Foo) string { return f.UUID.String() })
}

type service struct {
	tracer   *spanz.Tracer
	executor *spanz.Executor
	pivotal  *resty.Client
	service1 *resty.Client
	logger   *zap.Logger
}

// NewSpan does its work in a new span tagged with its argument.
func (s *service) NewSpan(ctx context.Context, tag string) error {
	return s.tracer.InNewSpan(ctx, "surprise", func(ctx context.Context) error {
		s.logger.Info("should start a new span", zap.String("new_span_tag", tag), traceField(ctx, s.tracer))
		return sleep(ctx, 100*time.Millisecond)
	}, spanz.TagParam("new_span_tag", tag))
}

// ContinueSpan does its work in the caller's span, tagging foo through the
// foo resolver and logging before/after events.
func (s *service) ContinueSpan(ctx context.Context, foo Foo) error {
	return s.tracer.InContinuedSpan(ctx, "very_important_method", func(ctx context.Context) error {
		s.logger.Info("should continue span", zap.String("continued_span", foo.UUID.String()), traceField(ctx, s.tracer))
		return sleep(ctx, 200*time.Millisecond)
	}, spanz.TagParamWith("continued_span", fooResolver, foo))
}

// Async runs on the executor in a span named i_am_async.
func (s *service) Async(ctx context.Context) bool {
	return s.executor.SubmitNamed(ctx, "i_am_async", func(ctx context.Context) {
		s.logger.Info("I'm async", traceField(ctx, s.tracer))
		_ = sleep(ctx, 300*time.Millisecond)
	})
}

// CallPivotal calls the peer inside a calling_pivotal span carrying peer tags.
func (s *service) CallPivotal(ctx context.Context) error {
	peer := peerFor(ctx, s.pivotal.BaseURL, "pivotal")
	return s.tracer.PeerCall(ctx, "calling_pivotal", peer, func(ctx context.Context) error {
		_, err := s.pivotal.R().SetContext(ctx).Get("/")
		return err
	})
}

// CallService1 calls the second service without blocking the caller.
func (s *service) CallService1(ctx context.Context) *spanz.Deferred[string] {
	return spanz.Defer(ctx, s.tracer, func(ctx context.Context) (string, error) {
		res, err := s.service1.R().SetContext(ctx).Get("/start")
		if err != nil {
			return "", err
		}
		return res.String(), nil
	})
}

// peerFor describes the host behind baseURL, resolving it to an address
// the way the peer.ipv4 tag expects.
func peerFor(ctx context.Context, baseURL, service string) spanz.Peer {
	peer := spanz.Peer{Service: service, Component: service}
	u, err := url.Parse(baseURL)
	if err != nil {
		return peer
	}
	peer.Host = u.Hostname()
	peer.Port, _ = strconv.Atoi(u.Port())
	if peer.Port == 0 {
		peer.Port = 80
		if u.Scheme == "https" {
			peer.Port = 443
		}
	}
	lookupCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if addrs, err := net.DefaultResolver.LookupIPAddr(lookupCtx, peer.Host); err == nil && len(addrs) > 0 {
		peer.Host = addrs[0].IP.String()
	}
	return peer
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func traceField(ctx context.Context, t *spanz.Tracer) zap.Field {
	span := t.CurrentSpan(ctx)
	if span == nil {
		return zap.Skip()
	}
	return zap.String("trace", span.TraceID()+"/"+span.SpanID())
}

type controller struct {
	tracer *spanz.Tracer
	svc    *service
	logger *zap.Logger
}

func (h *controller) s1p(c *gin.Context) {
	ctx := c.Request.Context()

	h.tracer.SetBaggage(ctx, "baggage", "s1p")

	if err := h.svc.NewSpan(ctx, "hello"); err != nil {
		h.logger.Warn("new span failed", zap.Error(err))
	}
	if err := h.svc.ContinueSpan(ctx, NewFoo()); err != nil {
		h.logger.Warn("continue span failed", zap.Error(err))
	}
	if !h.svc.Async(ctx) {
		h.logger.Warn("async work dropped")
	}
	if err := h.svc.CallPivotal(ctx); err != nil {
		h.logger.Warn("pivotal call failed", zap.Error(err))
	}

	reply := h.svc.CallService1(ctx)
	reply.Then(ctx, func(ctx context.Context, _ string, err error) {
		h.logger.Info("service1 replied", zap.Error(err), traceField(ctx, h.tracer))
	})
	body, err := reply.Await(ctx)
	if err != nil {
		_ = c.Error(err)
		c.String(http.StatusBadGateway, err.Error())
		return
	}
	c.String(http.StatusOK, body)
}

func (h *controller) start(c *gin.Context) {
	h.tracer.AddTag(c.Request.Context(), "service1", "started")
	c.String(http.StatusOK, "started")
}

func (h *controller) peer(c *gin.Context) {
	c.String(http.StatusOK, "pivotal")
}
