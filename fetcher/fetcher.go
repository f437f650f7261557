package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	cookiejar "github.com/juju/persistent-cookiejar"
	"golang.org/x/net/publicsuffix"
)

// DefaultUserAgent is sent when Options.UserAgent is empty.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

const (
	defaultTimeout      = 15 * time.Second
	defaultMaxBodyBytes = 10 << 20
)

// Fetcher issues exactly one GET per call and never follows redirects itself.
// Failures are reported inside the Result, never as a Go error.
type Fetcher interface {
	Fetch(ctx context.Context, targetURL, referer string) *Result
}

// Result is everything observed about a single request.
type Result struct {
	RequestedURL   string          `json:"requested_url"`
	EffectiveURL   string          `json:"effective_url"`
	RedirectURL    string          `json:"redirect_url,omitempty"`
	Referer        string          `json:"referer,omitempty"`
	StatusCode     int             `json:"status_code,omitempty"`
	ContentType    string          `json:"content_type,omitempty"`
	Headers        Headers         `json:"headers,omitempty"`
	Body           string          `json:"body,omitempty"`
	TransportError *TransportError `json:"transport_error,omitempty"`
	Duration       time.Duration   `json:"duration"`
}

// Failed reports whether the request hit a transport-level error.
func (r *Result) Failed() bool {
	return r.TransportError != nil
}

// Options controls HTTPFetcher behaviour. Zero values pick the defaults.
type Options struct {
	Timeout       time.Duration
	UserAgent     string
	CookieJarPath string
	ProxyURL      string
	MaxBodyBytes  int64

	// ChromeTLS dials https with a Chrome ClientHello (utls) instead of crypto/tls.
	ChromeTLS bool
}

// HTTPFetcher implements Fetcher over net/http.
type HTTPFetcher struct {
	client       *http.Client
	userAgent    string
	maxBodyBytes int64

	jarMu sync.Mutex
	jar   *cookiejar.Jar
}

// NewHTTPFetcher builds a fetcher. When CookieJarPath is set, cookies are
// loaded from that file now and written back after every fetch.
func NewHTTPFetcher(opts Options) (*HTTPFetcher, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	transport := &http.Transport{
		DialContext:         (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
	}
	if opts.ChromeTLS {
		transport.DialTLSContext = dialChromeTLS
		transport.ForceAttemptHTTP2 = false
	}
	if opts.ProxyURL != "" {
		proxyURL, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("fetcher: parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	f := &HTTPFetcher{
		userAgent:    opts.UserAgent,
		maxBodyBytes: opts.MaxBodyBytes,
	}

	client := &http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
		// Every hop is chased by the resolver, one request at a time.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	if opts.CookieJarPath != "" {
		jar, err := cookiejar.New(&cookiejar.Options{
			Filename:         opts.CookieJarPath,
			PublicSuffixList: publicsuffix.List,
		})
		if err != nil {
			return nil, fmt.Errorf("fetcher: open cookie jar %s: %w", opts.CookieJarPath, err)
		}
		f.jar = jar
		client.Jar = jar
	}

	f.client = client
	return f, nil
}

// Fetch performs one GET against targetURL.
func (f *HTTPFetcher) Fetch(ctx context.Context, targetURL, referer string) *Result {
	start := time.Now()
	result := &Result{
		RequestedURL: targetURL,
		EffectiveURL: targetURL,
		Referer:      referer,
		Headers:      Headers{},
	}
	defer func() { result.Duration = time.Since(start) }()

	parsed, err := url.Parse(targetURL)
	if err != nil {
		result.TransportError = newTransportError(ErrCodeInvalidURL, err)
		return result
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		result.TransportError = newTransportError(ErrCodeUnsupportedScheme,
			fmt.Errorf("scheme %q is not followed", parsed.Scheme))
		return result
	}
	if parsed.Host == "" {
		result.TransportError = newTransportError(ErrCodeInvalidURL, errors.New("missing host"))
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		result.TransportError = newTransportError(ErrCodeInvalidURL, err)
		return result
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		result.TransportError = classifyError(err)
		slog.Debug("fetch failed", "url", targetURL, "code", result.TransportError.Code, "error", err)
		return result
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	result.ContentType = resp.Header.Get("Content-Type")
	result.Headers = headersFromResponse(resp.Header)
	base := parsed
	if resp.Request != nil && resp.Request.URL != nil {
		base = resp.Request.URL
	}
	result.EffectiveURL = base.String()
	if loc := resp.Header.Get("Location"); loc != "" {
		result.RedirectURL = loc
		if abs, err := base.Parse(loc); err == nil {
			result.RedirectURL = abs.String()
		}
	}

	body, err := readBody(resp, f.maxBodyBytes)
	result.Body = body
	if err != nil {
		result.TransportError = newTransportError(ErrCodeReadBody, err)
	}

	f.saveCookies()
	return result
}

// Close persists the cookie jar and drops idle connections.
func (f *HTTPFetcher) Close() error {
	f.client.CloseIdleConnections()
	return f.saveCookiesErr()
}

func (f *HTTPFetcher) saveCookies() {
	if err := f.saveCookiesErr(); err != nil {
		slog.Warn("cookie jar save failed", "error", err)
	}
}

func (f *HTTPFetcher) saveCookiesErr() error {
	if f.jar == nil {
		return nil
	}
	f.jarMu.Lock()
	defer f.jarMu.Unlock()
	if err := f.jar.Save(); err != nil {
		return fmt.Errorf("fetcher: save cookie jar: %w", err)
	}
	return nil
}
