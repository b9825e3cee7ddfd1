// Command server is a demo application wiring the full middleware stack:
// request IDs, timing, security headers, CORS, structured request logging,
// centralized error handling, compression, metrics, rate limiting, and
// tracing.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/probstlabs/essentials/cfg"
	"github.com/probstlabs/essentials/health"
	"github.com/probstlabs/essentials/httpmw"
	"github.com/probstlabs/essentials/httpserver"
	"github.com/probstlabs/essentials/log"
	"github.com/probstlabs/essentials/metrics"
	"github.com/probstlabs/essentials/otelx"
	"github.com/probstlabs/essentials/prof"
	"github.com/probstlabs/essentials/ratelimit"
	"github.com/probstlabs/essentials/version"
)

const appName = "essentials-demo"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := version.Get()

	var conf cfg.App
	var showVersion bool
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("%s %s (commit=%s, go=%s, dirty=%v)\n",
			appName, vi.Version, vi.Commit, vi.GoVersion, vi.Modified)
		os.Exit(0)
	}

	cfg.FillFromEnv(flag.CommandLine, "ESSENTIALS_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})
	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	lvl, _ := log.ParseLevel(conf.LogLevel)
	stackLvl, _ := log.ParseLevel(conf.StacktraceLevel)
	lg, err := log.New(log.Options{
		Name:            conf.LoggerName,
		Level:           lvl,
		StacktraceLevel: stackLvl,
		JSONFormat:      conf.LogJSON,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"go_version", vi.GoVersion,
		"http_port", conf.HTTPPort,
		"enable_tracing", conf.EnableTracing,
		"enable_pyroscope", conf.EnablePyroscope,
		"trace_sample", conf.TraceSample,
	)

	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       appName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":     appName,
			"version": vi.Version,
			"commit":  vi.Commit,
		},
	})
	if err != nil {
		L.Error(ctx, err, "profiling start failed", "pyro_server", conf.PyroServer)
	}
	defer stopProf()

	// Insecure because the expected collector is a localhost sidecar
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:  conf.EnableTracing,
		Endpoint: conf.OTLPEndpoint,
		Insecure: true,
		Sample:   conf.TraceSample,
		Service:  appName,
		Version:  vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	m := metrics.New()
	m.SetBuildInfo(appName, vi)

	var rateLimitMW func(http.Handler) http.Handler
	if conf.RateLimitPerSec > 0 {
		limiter := ratelimit.New(ctx,
			ratelimit.WithRate(conf.RateLimitPerSec, conf.RateLimitBurst),
			ratelimit.WithOnFirstDenied(func(ip string) {
				L.Warn(ctx, "rate limiting client", "client", ip)
			}),
			ratelimit.WithOnDenied(func(string) { m.IncRateLimitDenied() }),
		)
		rateLimitMW = limiter.Middleware
	}

	var gate health.ShutdownGate

	opts := &httpserver.Options{
		Logger: L,
		Port:   conf.HTTPPort,
		Middleware: httpmw.EssentialsOptions{
			LoggerName:       conf.LoggerName,
			CORSOrigins:      cfg.SplitList(conf.CORSOrigins),
			IncludeTraceback: conf.IncludeTraceback,
			SkipPaths:        cfg.SplitList(conf.SkipLogPaths),
			ErrorRoutes: []httpmw.ErrorRoute{
				{
					// teapot demo: a category handled away from the
					// default JSON error shape
					Match: func(err error) bool {
						var e *httpmw.Error
						return errors.As(err, &e) && e.Kind == "Teapot"
					},
					Handle: func(w http.ResponseWriter, r *http.Request, err error) {
						w.Header().Set("Content-Type", "text/plain; charset=utf-8")
						w.WriteHeader(http.StatusTeapot)
						fmt.Fprintln(w, "short and stout")
					},
				},
			},
		},
		ClientIP:    httpmw.ClientIPOptions{TrustedHops: conf.TrustedHops},
		Metrics:     m,
		RateLimitMW: rateLimitMW,
		Live:        health.Fixed(true, ""),
		Ready:       health.All(gate.Probe()),
		Routes:      registerRoutes,
	}

	stopHTTP, err := httpserver.Start(ctx, opts)
	if err != nil {
		L.Error(ctx, err, "http server start failed")
		os.Exit(1)
	}

	<-ctx.Done()
	stop()
	L.Info(context.Background(), "shutdown signal received")

	// fail readiness so load balancers drain before we close
	gate.Set("draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := stopHTTP(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}
	L.Info(context.Background(), "shutdown complete")
}

// registerRoutes exercises each middleware behavior.
func registerRoutes(r chi.Router) {
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		fmt.Fprintf(w, `{"message":"hello","request_id":%q}`,
			httpmw.RequestIDFromContext(r.Context()))
	})

	// slow response to make the timing header visible
	r.Get("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(250 * time.Millisecond):
		case <-r.Context().Done():
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "that took a while")
	})

	// tagged application failure: JSON error body with kind and status
	r.Get("/reject", func(w http.ResponseWriter, r *http.Request) {
		panic(httpmw.NewError("ValueError", "the flag shall not be set", http.StatusUnprocessableEntity))
	})

	// untagged failure: becomes InternalError / 500
	r.Get("/crash", func(w http.ResponseWriter, r *http.Request) {
		var m map[string]int
		m["boom"] = 1 // nil map write
	})

	// handled by the Teapot error route configured in main
	r.Get("/teapot", func(w http.ResponseWriter, r *http.Request) {
		panic(httpmw.NewError("Teapot", "I'm a teapot", http.StatusTeapot))
	})
}
