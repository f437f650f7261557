// Command unhide-cli resolves links from the command line and prints each
// resolution as JSON. It exits 1 unless every link was found.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/use-agent/unhide/config"
	"github.com/use-agent/unhide/fetcher"
	"github.com/use-agent/unhide/models"
	"github.com/use-agent/unhide/preview"
	"github.com/use-agent/unhide/resolver"
)

var (
	maxSteps    = flag.Int("max-steps", 0, "request ceiling per link (default from config, 5)")
	withPreview = flag.Bool("preview", false, "extract title/description of the destination page")
	withBody    = flag.Bool("body", false, "include response bodies in the history")
	cookieJar   = flag.String("cookies", "", "cookie jar file (default from config)")
	verbose     = flag.Bool("v", false, "log every step to stderr")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] url [url...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if *cookieJar != "" {
		cfg.Resolver.CookieJarPath = *cookieJar
	}
	if *maxSteps > 0 {
		cfg.Resolver.MaxSteps = *maxSteps
	}

	f, err := fetcher.NewHTTPFetcher(fetcher.Options{
		Timeout:       cfg.Resolver.RequestTimeout,
		UserAgent:     cfg.Resolver.UserAgent,
		CookieJarPath: cfg.Resolver.CookieJarPath,
		ProxyURL:      cfg.Resolver.Proxy,
		MaxBodyBytes:  cfg.Resolver.MaxBodyBytes,
		ChromeTLS:     cfg.Resolver.ChromeTLS,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "fetcher: %v\n", err)
		os.Exit(2)
	}
	defer f.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rv := resolver.New(f, resolver.Options{MaxSteps: cfg.Resolver.MaxSteps})
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	allFound := true
	for _, rawURL := range flag.Args() {
		start := time.Now()
		res := rv.Resolve(ctx, rawURL)
		resp := models.NewResolveResponse(rawURL, res, *withBody)
		if *withPreview && res.Status == resolver.StatusFound {
			resp.Preview = preview.Build(res.Last().Fetch.Body, res.EndURL)
		}
		resp.Timing.TotalMs = time.Since(start).Milliseconds()

		if err := enc.Encode(resp); err != nil {
			fmt.Fprintf(os.Stderr, "encode: %v\n", err)
			os.Exit(2)
		}
		if res.Status != resolver.StatusFound {
			allFound = false
		}
	}

	if !allFound {
		f.Close()
		os.Exit(1)
	}
}
