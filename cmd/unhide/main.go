package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/unhide/api"
	"github.com/use-agent/unhide/cache"
	"github.com/use-agent/unhide/config"
	"github.com/use-agent/unhide/fetcher"
	"github.com/use-agent/unhide/resolver"
	"github.com/use-agent/unhide/webhook"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("unhide starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"maxSteps", cfg.Resolver.MaxSteps,
		"cookieJar", cfg.Resolver.CookieJarPath,
	)

	// ── 3. Fetcher + resolver ───────────────────────────────────────
	f, err := fetcher.NewHTTPFetcher(fetcherOptions(cfg.Resolver))
	if err != nil {
		slog.Error("failed to initialise fetcher", "error", err)
		os.Exit(1)
	}
	defer f.Close()

	rv := resolver.New(f, resolver.Options{MaxSteps: cfg.Resolver.MaxSteps})

	// ── 4. Cache + webhooks ─────────────────────────────────────────
	cc := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)
	defer cc.Close()

	// ── 5. Setup router ─────────────────────────────────────────────
	router := api.NewRouter(rv, cfg, cc, webhook.NewSender(), time.Now())

	// ── 6. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// f.Close() runs via defer and flushes the cookie jar.
	slog.Info("unhide stopped")
}

func fetcherOptions(cfg config.ResolverConfig) fetcher.Options {
	return fetcher.Options{
		Timeout:       cfg.RequestTimeout,
		UserAgent:     cfg.UserAgent,
		CookieJarPath: cfg.CookieJarPath,
		ProxyURL:      cfg.Proxy,
		MaxBodyBytes:  cfg.MaxBodyBytes,
		ChromeTLS:     cfg.ChromeTLS,
	}
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
