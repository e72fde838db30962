package integration

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-resty/resty/v2"

	"github.com/zoobzio/spanz"
	spanzgin "github.com/zoobzio/spanz/contrib/gin"
	spanzhttp "github.com/zoobzio/spanz/contrib/http"
)

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// TestMultiServiceRequestFlow runs a frontend that calls a backend over
// HTTP, offloads work and waits on a deferred reply. All spans must land in
// one trace with the expected parent chain.
func TestMultiServiceRequestFlow(t *testing.T) {
	tracer := spanz.New()
	collector := NewMockCollector(t, tracer)
	defer tracer.Close()

	executor, err := spanz.NewExecutor(tracer, 2, 32)
	if err != nil {
		t.Fatal(err)
	}
	defer executor.Shutdown()

	backendRouter := gin.New()
	backendRouter.Use(spanzgin.Middleware(tracer, spanzgin.WithServiceName("backend")))
	backendRouter.GET("/inventory", func(c *gin.Context) {
		ctx := c.Request.Context()
		tenant := tracer.CurrentSpan(ctx).BaggageItem("tenant")
		_ = tracer.InNewSpan(ctx, "load_inventory", func(context.Context) error { return nil })
		c.String(http.StatusOK, tenant)
	})
	backend := httptest.NewServer(backendRouter)
	defer backend.Close()

	client := resty.New().
		SetBaseURL(backend.URL).
		SetTransport(spanzhttp.WrapRoundTripper(tracer, http.DefaultTransport, spanzhttp.WithPeerService("backend")))

	db := NewMockService(tracer, spanz.Peer{Service: "db", Host: "10.0.0.9", Port: 5432})

	frontendRouter := gin.New()
	frontendRouter.Use(spanzgin.Middleware(tracer, spanzgin.WithServiceName("frontend")))
	frontendRouter.GET("/order", func(c *gin.Context) {
		ctx := c.Request.Context()
		tracer.SetBaggage(ctx, "tenant", "acme")

		done := make(chan struct{})
		executor.SubmitNamed(ctx, "audit", func(ctx context.Context) {
			defer close(done)
			_ = db.Call(ctx, "insert_audit")
		})

		reply := spanz.Defer(ctx, tracer, func(ctx context.Context) (string, error) {
			res, err := client.R().SetContext(ctx).Get("/inventory")
			if err != nil {
				return "", err
			}
			return res.String(), nil
		})
		body, err := reply.Await(ctx)
		<-done
		if err != nil {
			c.Status(http.StatusBadGateway)
			return
		}
		c.String(http.StatusOK, body)
	})

	w := httptest.NewRecorder()
	frontendRouter.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/order", nil))
	executor.Shutdown()

	if w.Code != http.StatusOK || w.Body.String() != "acme" {
		t.Fatalf("Unexpected response %d %q", w.Code, w.Body.String())
	}

	spans := collector.WaitForSpans(6, time.Second)
	analyzer := NewTraceAnalyzer(spans)
	if analyzer.CountTrees() != 1 {
		t.Fatalf("Expected one trace, got %d:\n%s", analyzer.CountTrees(), PrintSpanTree(BuildSpanTree(spans)))
	}

	var frontendSpan spanz.Span
	for _, s := range analyzer.SpansByName("http:/order") {
		frontendSpan = s
	}
	for _, s := range spans {
		if s.TraceID != frontendSpan.TraceID {
			t.Errorf("Span %s escaped the trace", s.Name)
		}
	}
	if err := analyzer.VerifyChain("http:/order", "http:/inventory", "http:/inventory", "load_inventory"); err != nil {
		t.Error(err)
	}
	if err := analyzer.VerifyChain("http:/order", "audit", "insert_audit"); err != nil {
		t.Error(err)
	}
}

// TestDownstreamFailureMarksSpans checks that an error from a dependency is
// tagged on the peer span and reaches the caller unchanged.
func TestDownstreamFailureMarksSpans(t *testing.T) {
	tracer := spanz.New()
	collector := NewMockCollector(t, tracer)
	defer tracer.Close()

	db := NewMockService(tracer, spanz.Peer{Service: "db", Host: "db.internal"})
	db.SetFailing(true)

	ctx, req := tracer.StartSpan(context.Background(), "request")
	err := tracer.InNewSpan(ctx, "handler", func(ctx context.Context) error {
		return db.Call(ctx, "query")
	})
	req.Finish()

	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("Expected ErrServiceUnavailable, got %v", err)
	}
	query := collector.SpanNamed("query")
	if query.Tags[spanz.TagError] != ErrServiceUnavailable.Error() {
		t.Errorf("Expected error tag on query, got %q", query.Tags[spanz.TagError])
	}
	if query.Tags[spanz.TagPeerService] != "db" {
		t.Errorf("Expected peer service tag, got %q", query.Tags[spanz.TagPeerService])
	}
	handler := collector.SpanNamed("handler")
	if handler.Tags[spanz.TagError] == "" {
		t.Error("Expected handler to carry the error")
	}
	if req.State() != spanz.StateClosed {
		t.Errorf("Expected request closed, got %s", req.State())
	}
}

// TestSlowDependencyHonorsDeadline runs a call past its caller's deadline.
func TestSlowDependencyHonorsDeadline(t *testing.T) {
	tracer := spanz.New()
	collector := NewMockCollector(t, tracer)
	defer tracer.Close()

	db := NewMockService(tracer, spanz.Peer{Service: "db"})
	db.SetLatency(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ctx, req := tracer.StartSpan(ctx, "request")
	err := db.Call(ctx, "slow_query")
	req.Finish()

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}
	slow := collector.SpanNamed("slow_query")
	if slow.ParentID != req.SpanID() {
		t.Errorf("Expected slow_query under request")
	}
	if slow.Duration >= time.Second {
		t.Errorf("Expected the call to stop at the deadline, took %v", slow.Duration)
	}
}
