// Command netinspector runs a demo server with the network inspector installed.
//
// The /demo/http and /demo/xhr endpoints issue an outgoing request to the
// given url through the observed surfaces; the dashboard shows the recorded history.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/networkteam/netinspector"
	"github.com/networkteam/netinspector/collector"
	"github.com/networkteam/netinspector/dashboard"
	"github.com/networkteam/netinspector/internal/config"
	"github.com/networkteam/netinspector/xhr"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (yaml, json or toml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, closeLog := setupLogger(cfg.Log)
	defer closeLog()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server failed", slog.Group("error", slog.String("message", err.Error())))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	interceptorOptions := collector.DefaultInterceptorOptions()
	interceptorOptions.MaxBodySize = cfg.Inspector.MaxBodySize
	interceptorOptions.CaptureRequestBody = cfg.Inspector.CaptureRequestBody
	interceptorOptions.CaptureResponseBody = cfg.Inspector.CaptureResponseBody

	inspector := netinspector.NewWithOptions(netinspector.Options{
		Capacity:           cfg.Inspector.Capacity,
		InterceptorOptions: &interceptorOptions,
		Logger:             logger.With("component", "netinspector"),
		MetricsRegisterer:  registry,
	})
	defer inspector.Close()

	inspector.Install()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/demo/http", demoHTTP)
	mux.HandleFunc("/demo/xhr", demoXHR)

	prefix := cfg.Dashboard.PathPrefix
	mux.Handle(prefix+"/", http.StripPrefix(prefix, inspector.DashboardHandler(
		prefix,
		dashboard.WithStyle(cfg.Dashboard.Style),
		dashboard.WithTruncateAfter(cfg.Dashboard.TruncateAfter),
	)))

	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	server := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "address", cfg.Server.Address, "dashboard", prefix+"/")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// demoHTTP fetches url through http.DefaultTransport
func demoHTTP(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("component", "http", "handler", "/demo/http")

	target := r.URL.Query().Get("url")
	if target == "" {
		http.Error(w, "missing url parameter", http.StatusBadRequest)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	logger.Debug("Requesting", "url", target)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		logger.Error("Request failed", slog.Any("err", err.Error()))
		http.Error(w, "request failed", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "%s: %s\n", target, resp.Status)
	_, _ = io.Copy(io.Discard, resp.Body)
}

// demoXHR fetches url through an xhr.Request bound to the default prototype
func demoXHR(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("component", "http", "handler", "/demo/xhr")

	target := r.URL.Query().Get("url")
	if target == "" {
		http.Error(w, "missing url parameter", http.StatusBadRequest)
		return
	}

	req := xhr.New()
	if err := req.Open(http.MethodGet, target, xhr.WithContext(r.Context()), xhr.WithTimeout(10*time.Second)); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	logger.Debug("Requesting", "url", target)

	if err := req.Send(nil); err != nil {
		logger.Error("Send failed", slog.Any("err", err.Error()))
		http.Error(w, "send failed", http.StatusBadGateway)
		return
	}
	<-req.Done()

	if err := req.Err(); err != nil {
		logger.Error("Request failed", slog.Any("err", err.Error()))
		http.Error(w, "request failed", http.StatusBadGateway)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "%s: %d %s\n", target, req.Status(), req.StatusText())
}

// setupLogger logs text to stderr and, if a file is configured, JSON to a rotating file
func setupLogger(cfg config.LogConfig) (*slog.Logger, func()) {
	// Level was checked by config.Load
	level, _ := config.ParseLevel(cfg.Level)

	handlers := []slog.Handler{
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	}
	closeLog := func() {}

	if cfg.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		handlers = append(handlers, slog.NewJSONHandler(rotating, &slog.HandlerOptions{Level: slog.LevelDebug}))
		closeLog = func() { _ = rotating.Close() }
	}

	return slog.New(slogmulti.Fanout(handlers...)), closeLog
}
