// Package gin traces inbound requests served by gin-gonic/gin
// (https://github.com/gin-gonic/gin).
package gin

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/zoobzio/spanz"
)

type config struct {
	spanNamer func(c *gin.Context) string
	ignore    func(c *gin.Context) bool
	service   string
}

// Option configures the middleware.
type Option func(*config)

// WithSpanNamer sets how server spans are named. Defaults to "http:" plus
// the request path.
func WithSpanNamer(namer func(c *gin.Context) string) Option {
	return func(cfg *config) {
		if namer != nil {
			cfg.spanNamer = namer
		}
	}
}

// WithIgnoreRequest skips tracing for requests where ignore returns true.
func WithIgnoreRequest(ignore func(c *gin.Context) bool) Option {
	return func(cfg *config) { cfg.ignore = ignore }
}

// WithServiceName tags server spans with the local service name.
func WithServiceName(name string) Option {
	return func(cfg *config) { cfg.service = name }
}

// Middleware returns middleware that opens a server span per request. The
// span continues the caller's trace when the request carries spanz
// headers, and becomes the current span of the request context.
func Middleware(tracer *spanz.Tracer, opts ...Option) gin.HandlerFunc {
	cfg := &config{
		spanNamer: func(c *gin.Context) string { return "http:" + c.Request.URL.Path },
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(c *gin.Context) {
		if cfg.ignore != nil && cfg.ignore(c) {
			c.Next()
			return
		}

		inbound, _ := spanz.Extract(spanz.HTTPHeadersCarrier(c.Request.Header))
		ctx, span := tracer.StartSpanFrom(c.Request.Context(), cfg.spanNamer(c), inbound)
		defer span.Finish()

		span.SetTag(spanz.TagSpanKind, spanz.SpanKindServer)
		span.SetTag(spanz.TagHTTPMethod, c.Request.Method)
		span.SetTag(spanz.TagHTTPPath, c.Request.URL.Path)
		span.SetTag(spanz.TagHTTPURL, c.Request.URL.String())
		span.SetTag(spanz.TagHTTPHost, c.Request.Host)
		if cfg.service != "" {
			span.SetTag(spanz.TagLocalComponent, cfg.service)
		}
		span.LogEvent(spanz.EventServerRecv)

		// pass the span through the request context
		c.Request = c.Request.WithContext(ctx)
		spanz.Inject(span.Carrier(), spanz.HTTPHeadersCarrier(c.Writer.Header()))

		c.Next()

		span.SetTag(spanz.TagHTTPStatusCode, strconv.Itoa(c.Writer.Status()))
		if len(c.Errors) > 0 {
			span.SetTag(spanz.TagError, c.Errors.String())
		}
		span.LogEvent(spanz.EventServerSend)
	}
}
