package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/zoobzio/spanz"
	"github.com/zoobzio/spanz/config"
	spanzgin "github.com/zoobzio/spanz/contrib/gin"
	spanzhttp "github.com/zoobzio/spanz/contrib/http"
)

// app wires the tracer, its sinks and the demo routes.
type app struct {
	router    *gin.Engine
	tracer    *spanz.Tracer
	executor  *spanz.Executor
	collector *spanz.Collector
	logger    *zap.Logger
}

func newApp(cfg *config.Config) (*app, error) {
	logger, err := spanz.NewLogger(cfg.LoggerConfig())
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	metrics := spanz.NewMetrics(registry)

	resolvers := spanz.NewResolverRegistry()
	resolvers.Register(fooResolver, fooTagResolver())

	// Span adjusters can rewrite anything about a span before export.
	adjusters := spanz.NewAdjusterPipeline(
		spanz.RenameOnTag(spanz.TagHTTPPath, "/s1p", "hacked!"),
	)

	opts := append(cfg.TracerOptions(),
		spanz.WithLogger(logger.Named("spanz")),
		spanz.WithMetrics(metrics),
		spanz.WithResolvers(resolvers),
		spanz.WithAdjusters(adjusters),
	)
	tracer := spanz.New(opts...)
	tracer.OnSpanComplete(spanz.LogExporter(logger.Named("spans")))

	var collector *spanz.Collector
	if cfg.Collector.Enabled {
		collector = spanz.NewCollector(cfg.Service, cfg.Collector.BufferSize)
		collector.SetSyncMode(true)
		tracer.AddCollector(cfg.Service, collector)
	}

	executor, err := spanz.NewExecutor(tracer, cfg.Executor.Workers, cfg.Executor.QueueSize)
	if err != nil {
		tracer.Close()
		return nil, err
	}

	transport := spanzhttp.WrapRoundTripper(tracer, http.DefaultTransport,
		spanzhttp.WithComponent(cfg.Service))
	pivotal := resty.New().
		SetBaseURL(cfg.Demo.PeerBaseURL).
		SetTransport(transport).
		SetTimeout(5 * time.Second)
	service1 := resty.New().
		SetBaseURL(cfg.Demo.Service1URL).
		SetTransport(transport).
		SetTimeout(5 * time.Second)

	svc := &service{
		tracer:   tracer,
		executor: executor,
		pivotal:  pivotal,
		service1: service1,
		logger:   logger.Named("service"),
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	traced := router.Group("/", spanzgin.Middleware(tracer, spanzgin.WithServiceName(cfg.Service)))
	ctrl := &controller{tracer: tracer, svc: svc, logger: logger.Named("controller")}
	traced.GET("/s1p", ctrl.s1p)
	traced.GET("/start", ctrl.start)
	traced.GET("/", ctrl.peer)

	return &app{
		router:    router,
		tracer:    tracer,
		executor:  executor,
		collector: collector,
		logger:    logger,
	}, nil
}

// Close drains offloaded work before closing the tracer so async spans
// still reach the sinks.
func (a *app) Close() {
	a.executor.Shutdown()
	a.tracer.Close()
	_ = a.logger.Sync()
}
