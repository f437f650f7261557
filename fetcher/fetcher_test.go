package fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
)

func newTestFetcher(t *testing.T, opts Options) *HTTPFetcher {
	t.Helper()
	f, err := NewHTTPFetcher(opts)
	if err != nil {
		t.Fatalf("NewHTTPFetcher: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestFetch_DoesNotFollowRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/next" {
			t.Error("fetcher followed the redirect on its own")
		}
		http.Redirect(w, r, "/next?a=1", http.StatusFound)
	}))
	defer srv.Close()

	f := newTestFetcher(t, Options{})
	res := f.Fetch(context.Background(), srv.URL+"/start", "")

	if res.Failed() {
		t.Fatalf("unexpected transport error: %v", res.TransportError)
	}
	if res.StatusCode != http.StatusFound {
		t.Errorf("StatusCode = %d, want %d", res.StatusCode, http.StatusFound)
	}
	if want := srv.URL + "/next?a=1"; res.RedirectURL != want {
		t.Errorf("RedirectURL = %q, want %q", res.RedirectURL, want)
	}
	if want := srv.URL + "/start"; res.EffectiveURL != want {
		t.Errorf("EffectiveURL = %q, want %q", res.EffectiveURL, want)
	}
}

func TestFetch_SendsRefererAndUserAgent(t *testing.T) {
	var gotReferer, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReferer = r.Header.Get("Referer")
		gotUA = r.Header.Get("User-Agent")
		w.Header().Add("Refresh", "0; url=/a")
		w.Header().Add("Refresh", "1; url=/b")
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	f := newTestFetcher(t, Options{UserAgent: "unhide-test/1.0"})
	res := f.Fetch(context.Background(), srv.URL, "http://origin.example/page")

	if gotReferer != "http://origin.example/page" {
		t.Errorf("Referer = %q", gotReferer)
	}
	if gotUA != "unhide-test/1.0" {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if res.Referer != "http://origin.example/page" {
		t.Errorf("Result.Referer = %q", res.Referer)
	}
	if got := res.Headers.Values("refresh"); len(got) != 2 {
		t.Errorf("refresh headers = %v, want 2 values", got)
	}
	if res.Body != "<html>ok</html>" {
		t.Errorf("Body = %q", res.Body)
	}
}

func TestFetch_DefaultUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	f := newTestFetcher(t, Options{})
	f.Fetch(context.Background(), srv.URL, "")

	if gotUA != DefaultUserAgent {
		t.Errorf("User-Agent = %q, want default", gotUA)
	}
}

func TestFetch_DecodesCompressedBodies(t *testing.T) {
	const page = `<script>window.location = "http://dest.example"</script>`

	var gz, br bytes.Buffer
	gzw := gzip.NewWriter(&gz)
	_, _ = gzw.Write([]byte(page))
	_ = gzw.Close()
	brw := brotli.NewWriter(&br)
	_, _ = brw.Write([]byte(page))
	_ = brw.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		switch r.URL.Path {
		case "/gzip":
			w.Header().Set("Content-Encoding", "gzip")
			_, _ = w.Write(gz.Bytes())
		case "/br":
			w.Header().Set("Content-Encoding", "br")
			_, _ = w.Write(br.Bytes())
		}
	}))
	defer srv.Close()

	f := newTestFetcher(t, Options{})
	for _, path := range []string{"/gzip", "/br"} {
		t.Run(path, func(t *testing.T) {
			res := f.Fetch(context.Background(), srv.URL+path, "")
			if res.Failed() {
				t.Fatalf("transport error: %v", res.TransportError)
			}
			if res.Body != page {
				t.Errorf("Body = %q, want %q", res.Body, page)
			}
		})
	}
}

func TestFetch_EmptyEncodedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("Content-Encoding", strings.TrimPrefix(r.URL.Path, "/"))
		if r.URL.Query().Get("status") == "204" {
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"gzip", "/gzip", http.StatusOK},
		{"gzip no content", "/gzip?status=204", http.StatusNoContent},
		{"deflate", "/deflate", http.StatusOK},
		{"br", "/br", http.StatusOK},
	}

	f := newTestFetcher(t, Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.Fetch(context.Background(), srv.URL+tt.path, "")
			if res.Failed() {
				t.Fatalf("transport error on empty body: %v", res.TransportError)
			}
			if res.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", res.StatusCode, tt.wantStatus)
			}
			if res.Body != "" {
				t.Errorf("Body = %q, want empty", res.Body)
			}
		})
	}
}

func TestFetch_ChromeTLS(t *testing.T) {
	tlsSrv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("secret"))
	}))
	defer tlsSrv.Close()

	plain := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("plain"))
	}))
	defer plain.Close()

	f := newTestFetcher(t, Options{ChromeTLS: true})

	t.Run("untrusted certificate", func(t *testing.T) {
		res := f.Fetch(context.Background(), tlsSrv.URL, "")
		if !res.Failed() {
			t.Fatalf("expected a handshake failure against a self-signed server, got status %d", res.StatusCode)
		}
		if res.TransportError.Code != ErrCodeTLS {
			t.Errorf("Code = %q, want %q (message: %s)", res.TransportError.Code, ErrCodeTLS, res.TransportError.Message)
		}
	})

	t.Run("plain http unaffected", func(t *testing.T) {
		res := f.Fetch(context.Background(), plain.URL, "")
		if res.Failed() {
			t.Fatalf("transport error: %v", res.TransportError)
		}
		if res.Body != "plain" {
			t.Errorf("Body = %q, want %q", res.Body, "plain")
		}
	})
}

func TestFetch_TranscodesCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=windows-1251")
		// "Привет" in windows-1251
		_, _ = w.Write([]byte{0xcf, 0xf0, 0xe8, 0xe2, 0xe5, 0xf2})
	}))
	defer srv.Close()

	f := newTestFetcher(t, Options{})
	res := f.Fetch(context.Background(), srv.URL, "")
	if res.Body != "Привет" {
		t.Errorf("Body = %q, want %q", res.Body, "Привет")
	}
}

func TestFetch_TruncatesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer srv.Close()

	f := newTestFetcher(t, Options{MaxBodyBytes: 10})
	res := f.Fetch(context.Background(), srv.URL, "")
	if len(res.Body) != 10 {
		t.Errorf("len(Body) = %d, want 10", len(res.Body))
	}
}

func TestFetch_TransportErrors(t *testing.T) {
	closed := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	closedURL := closed.URL
	closed.Close()

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	tests := []struct {
		name     string
		url      string
		opts     Options
		wantCode string
	}{
		{"connection refused", closedURL, Options{}, ErrCodeConnRefused},
		{"unsupported scheme", "ftp://files.example/x", Options{}, ErrCodeUnsupportedScheme},
		{"invalid url", "http://[::1", Options{}, ErrCodeInvalidURL},
		{"empty url", "", Options{}, ErrCodeUnsupportedScheme},
		{"missing host", "http:///path", Options{}, ErrCodeInvalidURL},
		{"timeout", slow.URL, Options{Timeout: 100 * time.Millisecond}, ErrCodeTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestFetcher(t, tt.opts)
			res := f.Fetch(context.Background(), tt.url, "")
			if !res.Failed() {
				t.Fatalf("expected transport error, got status %d", res.StatusCode)
			}
			if res.TransportError.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q (message: %s)", res.TransportError.Code, tt.wantCode, res.TransportError.Message)
			}
			if res.StatusCode != 0 {
				t.Errorf("StatusCode = %d, want 0 on transport failure", res.StatusCode)
			}
			if res.EffectiveURL != tt.url {
				t.Errorf("EffectiveURL = %q, want requested URL %q", res.EffectiveURL, tt.url)
			}
		})
	}
}

func TestFetch_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := newTestFetcher(t, Options{})
	res := f.Fetch(ctx, srv.URL, "")
	if !res.Failed() || res.TransportError.Code != ErrCodeCanceled {
		t.Errorf("TransportError = %v, want code %q", res.TransportError, ErrCodeCanceled)
	}
}

func TestFetch_CookieJarPersists(t *testing.T) {
	var sawCookie bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session"); err == nil && c.Value == "abc" {
			sawCookie = true
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/", MaxAge: 3600})
	}))
	defer srv.Close()

	jarPath := filepath.Join(t.TempDir(), "cookies.json")

	first, err := NewHTTPFetcher(Options{CookieJarPath: jarPath})
	if err != nil {
		t.Fatalf("NewHTTPFetcher: %v", err)
	}
	first.Fetch(context.Background(), srv.URL, "")
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second := newTestFetcher(t, Options{CookieJarPath: jarPath})
	second.Fetch(context.Background(), srv.URL, "")

	if !sawCookie {
		t.Error("cookie set on the first fetcher was not replayed from the jar file")
	}
}
