package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zoobzio/spanz"
	"github.com/zoobzio/spanz/config"
)

var envFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "spanz-demo",
	Short: "Demo service instrumented with spanz.",
	Long: `spanz-demo serves an /s1p endpoint that exercises every part of ` +
		`spanz: baggage, new and continued spans, named async work, peer ` +
		`calls, deferred calls and span adjusters.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the demo endpoints until interrupted.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(envFile)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Demo.Addr = addr
		}
		return serve(cmd.Context(), cfg)
	},
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run concurrent /s1p requests against an in-process server and print the spans.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(envFile)
		if err != nil {
			return err
		}
		requests, _ := cmd.Flags().GetInt("requests")
		return simulate(cmd.Context(), cfg, requests)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional file of SPANZ_* variables")
	serveCmd.Flags().String("addr", "", "listen address, overrides SPANZ_DEMO_ADDR")
	simulateCmd.Flags().Int("requests", 3, "number of concurrent requests")
	rootCmd.AddCommand(serveCmd, simulateCmd)
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              cfg.Demo.Addr,
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", zap.String("addr", cfg.Demo.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func simulate(ctx context.Context, cfg *config.Config, requests int) error {
	// Both peers are served by the demo itself so the run needs no network.
	srv := httptest.NewUnstartedServer(nil)
	base := "http://" + srv.Listener.Addr().String()
	cfg.Demo.PeerBaseURL = base
	cfg.Demo.Service1URL = base
	cfg.Collector.Enabled = true

	a, err := newApp(cfg)
	if err != nil {
		srv.Close()
		return err
	}
	srv.Config.Handler = a.router
	srv.Start()
	defer srv.Close()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < requests; i++ {
		g.Go(func() error {
			req, err := http.NewRequestWithContext(gctx, http.MethodGet, srv.URL+"/s1p", http.NoBody)
			if err != nil {
				return err
			}
			res, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer res.Body.Close()
			if res.StatusCode != http.StatusOK {
				return fmt.Errorf("/s1p returned %s", res.Status)
			}
			return nil
		})
	}
	err = g.Wait()

	// Close drains the executor so the async spans are collected too.
	a.Close()
	printSpans(a.collector.Export())
	return err
}

func printSpans(spans []spanz.Span) {
	for _, s := range spans {
		fmt.Printf("trace=%s span=%s parent=%-16s %-22s tags=%v\n",
			s.TraceID, s.SpanID, s.ParentID, s.Name, s.Tags)
	}
}
