package resolver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/use-agent/unhide/fetcher"
)

// fakeFetcher serves canned results keyed by URL and records every call.
type fakeFetcher struct {
	pages map[string]*fetcher.Result
	calls []fakeCall
}

type fakeCall struct {
	url     string
	referer string
}

func (f *fakeFetcher) Fetch(_ context.Context, targetURL, referer string) *fetcher.Result {
	f.calls = append(f.calls, fakeCall{url: targetURL, referer: referer})
	if page, ok := f.pages[targetURL]; ok {
		cp := *page
		cp.RequestedURL = targetURL
		if cp.EffectiveURL == "" {
			cp.EffectiveURL = targetURL
		}
		if cp.Headers == nil {
			cp.Headers = fetcher.Headers{}
		}
		cp.Referer = referer
		return &cp
	}
	return &fetcher.Result{
		RequestedURL:   targetURL,
		EffectiveURL:   targetURL,
		Referer:        referer,
		Headers:        fetcher.Headers{},
		TransportError: &fetcher.TransportError{Code: fetcher.ErrCodeDNS, Message: "no such host"},
	}
}

func redirectTo(status int, location string) *fetcher.Result {
	return &fetcher.Result{StatusCode: status, RedirectURL: location}
}

func page(body string) *fetcher.Result {
	return &fetcher.Result{StatusCode: http.StatusOK, Body: body}
}

func checkInvariants(t *testing.T, res *Resolution, maxSteps int) {
	t.Helper()
	if res.StepCount != len(res.History) {
		t.Errorf("StepCount = %d, len(History) = %d", res.StepCount, len(res.History))
	}
	if len(res.History) > maxSteps {
		t.Errorf("history length %d exceeds maxSteps %d", len(res.History), maxSteps)
	}
	switch res.Status {
	case StatusFound:
		last := res.Last()
		if last == nil || last.Type != StepContent {
			t.Fatalf("status found but last step is %+v", last)
		}
		if res.EndURL != last.Fetch.EffectiveURL {
			t.Errorf("EndURL = %q, last effective URL = %q", res.EndURL, last.Fetch.EffectiveURL)
		}
	case StatusError:
		last := res.Last()
		if last == nil || last.Type != StepError {
			t.Fatalf("status error but last step is %+v", last)
		}
	case StatusTooManyRedirects:
		if res.EndURL != "" {
			t.Errorf("EndURL = %q, want empty on too_many_redirects", res.EndURL)
		}
		for i, s := range res.History {
			if s.Type != StepRedirect {
				t.Errorf("step %d has type %q, want only redirects", i, s.Type)
			}
		}
	}
}

func TestResolve_Scenarios(t *testing.T) {
	tests := []struct {
		name       string
		pages      map[string]*fetcher.Result
		start      string
		maxSteps   int
		wantStatus Status
		wantEnd    string
		wantKinds  []Kind
	}{
		{
			name: "vk.cc to content",
			pages: map[string]*fetcher.Result{
				"http://vk.cc/abc":    redirectTo(302, "http://vk.com/away.php?to=http%3A%2F%2Fexample.com"),
				"http://example.com": page("<html>landing</html>"),
			},
			start:      "http://vk.cc/abc",
			wantStatus: StatusFound,
			wantEnd:    "http://example.com",
			wantKinds:  []Kind{KindVKCC, KindNone},
		},
		{
			name: "relative structural redirect is completed",
			pages: map[string]*fetcher.Result{
				"https://a.example/start": redirectTo(301, "/path"),
				"https://a.example/path":  page("done"),
			},
			start:      "https://a.example/start",
			wantStatus: StatusFound,
			wantEnd:    "https://a.example/path",
			wantKinds:  []Kind{KindHTTPRedirect, KindNone},
		},
		{
			name: "js location in body",
			pages: map[string]*fetcher.Result{
				"http://short.example/x": page(`<script>window.location = "http://dest.example"</script>`),
				"http://dest.example":    page("dest"),
			},
			start:      "http://short.example/x",
			wantStatus: StatusFound,
			wantEnd:    "http://dest.example",
			wantKinds:  []Kind{KindJSLocation, KindNone},
		},
		{
			name: "ok.ru away link",
			pages: map[string]*fetcher.Result{
				"https://ok.ru/dk?st.cmd=outLink&st_link=https%3A%2F%2Fdest.example%2F": page("interstitial"),
				"https://dest.example/": page("dest"),
			},
			start:      "https://ok.ru/dk?st.cmd=outLink&st_link=https%3A%2F%2Fdest.example%2F",
			wantStatus: StatusFound,
			wantEnd:    "https://dest.example/",
			wantKinds:  []Kind{KindOKDK, KindNone},
		},
		{
			name: "transport error on first fetch",
			pages: map[string]*fetcher.Result{
				"http://down.example/": {
					TransportError: &fetcher.TransportError{Code: fetcher.ErrCodeConnRefused, Message: "connection refused"},
				},
			},
			start:      "http://down.example/",
			wantStatus: StatusError,
			wantEnd:    "http://down.example/",
			wantKinds:  []Kind{KindNone},
		},
		{
			name: "redirect into an unreachable host",
			pages: map[string]*fetcher.Result{
				"http://s.example/1": redirectTo(307, "http://gone.example/"),
			},
			start:      "http://s.example/1",
			wantStatus: StatusError,
			wantEnd:    "http://gone.example/",
			wantKinds:  []Kind{KindHTTPRedirect, KindNone},
		},
		{
			name: "304 without location is content",
			pages: map[string]*fetcher.Result{
				"http://s.example/nm": {StatusCode: 304},
			},
			start:      "http://s.example/nm",
			wantStatus: StatusFound,
			wantEnd:    "http://s.example/nm",
			wantKinds:  []Kind{KindNone},
		},
		{
			name: "non-2xx page body is not scanned",
			pages: map[string]*fetcher.Result{
				"http://s.example/404": {StatusCode: 404, Body: `<script>window.location = "http://dest.example"</script>`},
			},
			start:      "http://s.example/404",
			wantStatus: StatusFound,
			wantEnd:    "http://s.example/404",
			wantKinds:  []Kind{KindNone},
		},
		{
			name: "malformed refresh header falls back to the body",
			pages: map[string]*fetcher.Result{
				"http://s.example/r": {
					StatusCode: 200,
					Headers:    fetcher.Headers{"refresh": {"5"}},
					Body:       `<meta http-equiv="refresh" content="0;URL=http://meta.example">`,
				},
				"http://meta.example": page("meta landing"),
			},
			start:      "http://s.example/r",
			wantStatus: StatusFound,
			wantEnd:    "http://meta.example",
			wantKinds:  []Kind{KindMetaRefresh, KindNone},
		},
		{
			name: "self loop hits the ceiling",
			pages: map[string]*fetcher.Result{
				"http://loop.example/": redirectTo(302, "http://loop.example/"),
			},
			start:      "http://loop.example/",
			maxSteps:   3,
			wantStatus: StatusTooManyRedirects,
			wantKinds:  []Kind{KindHTTPRedirect, KindHTTPRedirect, KindHTTPRedirect},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ff := &fakeFetcher{pages: tt.pages}
			r := New(ff, Options{MaxSteps: tt.maxSteps})
			res := r.Resolve(context.Background(), tt.start)

			checkInvariants(t, res, r.MaxSteps())
			if res.Status != tt.wantStatus {
				t.Fatalf("Status = %q, want %q", res.Status, tt.wantStatus)
			}
			if res.EndURL != tt.wantEnd {
				t.Errorf("EndURL = %q, want %q", res.EndURL, tt.wantEnd)
			}
			if len(res.History) != len(tt.wantKinds) {
				t.Fatalf("history length = %d, want %d", len(res.History), len(tt.wantKinds))
			}
			for i, want := range tt.wantKinds {
				if got := kindOf(res.History[i]); got != want {
					t.Errorf("history[%d] kind = %q, want %q", i, got, want)
				}
			}
		})
	}
}

func TestResolve_TooManyRedirects(t *testing.T) {
	pages := map[string]*fetcher.Result{}
	for i := 0; i < 6; i++ {
		pages[fmt.Sprintf("http://hop.example/%d", i)] = redirectTo(302, fmt.Sprintf("http://hop.example/%d", i+1))
	}
	pages["http://hop.example/6"] = page("finally")

	ff := &fakeFetcher{pages: pages}
	res := New(ff, Options{MaxSteps: 5}).Resolve(context.Background(), "http://hop.example/0")

	if res.Status != StatusTooManyRedirects {
		t.Fatalf("Status = %q, want %q", res.Status, StatusTooManyRedirects)
	}
	if len(res.History) != 5 || res.StepCount != 5 {
		t.Errorf("history length = %d, StepCount = %d, want 5", len(res.History), res.StepCount)
	}
	if len(ff.calls) != 5 {
		t.Errorf("fetcher called %d times, want 5", len(ff.calls))
	}
	if res.EndURL != "" {
		t.Errorf("EndURL = %q, want empty", res.EndURL)
	}
}

func TestResolve_ExactlyMaxStepsSucceeds(t *testing.T) {
	pages := map[string]*fetcher.Result{
		"http://hop.example/0": redirectTo(301, "http://hop.example/1"),
		"http://hop.example/1": redirectTo(301, "http://hop.example/2"),
		"http://hop.example/2": page("end"),
	}
	res := New(&fakeFetcher{pages: pages}, Options{MaxSteps: 3}).Resolve(context.Background(), "http://hop.example/0")

	if res.Status != StatusFound || res.StepCount != 3 {
		t.Errorf("got status %q with %d steps, want found with 3", res.Status, res.StepCount)
	}
}

func TestResolve_RefererHandling(t *testing.T) {
	pages := map[string]*fetcher.Result{
		"http://a.example/start": {
			StatusCode: 200,
			Headers:    fetcher.Headers{"refresh": {"0; URL=/second", "10; url=/ignored"}},
		},
		"http://a.example/second": redirectTo(302, "http://b.example/third"),
		"http://b.example/third":  page("end"),
	}
	ff := &fakeFetcher{pages: pages}
	res := New(ff, Options{}).Resolve(context.Background(), "http://a.example/start")

	if res.Status != StatusFound {
		t.Fatalf("Status = %q, want found", res.Status)
	}
	want := []fakeCall{
		{url: "http://a.example/start"},
		{url: "http://a.example/second", referer: "http://a.example/start"},
		{url: "http://b.example/third"},
	}
	if len(ff.calls) != len(want) {
		t.Fatalf("calls = %+v, want %+v", ff.calls, want)
	}
	for i := range want {
		if ff.calls[i] != want[i] {
			t.Errorf("call[%d] = %+v, want %+v", i, ff.calls[i], want[i])
		}
	}
	if k := kindOf(res.History[0]); k != KindRefreshHeader {
		t.Errorf("first step kind = %q, want %q", k, KindRefreshHeader)
	}
}

func TestResolve_PrefetchRuleBeatsStructuralRedirect(t *testing.T) {
	pages := map[string]*fetcher.Result{
		"https://vk.com/away.php?to=http%3A%2F%2Fdest.example": redirectTo(302, "https://vk.com/blocked"),
		"http://dest.example": page("dest"),
	}
	ff := &fakeFetcher{pages: pages}
	res := New(ff, Options{}).Resolve(context.Background(), "https://vk.com/away.php?to=http%3A%2F%2Fdest.example")

	if res.EndURL != "http://dest.example" {
		t.Errorf("EndURL = %q, want the away target", res.EndURL)
	}
	if k := kindOf(res.History[0]); k != KindVKAway {
		t.Errorf("first step kind = %q, want %q", k, KindVKAway)
	}
}

func TestResolve_DefaultMaxSteps(t *testing.T) {
	r := New(&fakeFetcher{}, Options{})
	if r.MaxSteps() != DefaultMaxSteps {
		t.Errorf("MaxSteps = %d, want %d", r.MaxSteps(), DefaultMaxSteps)
	}
	if r.WithMaxSteps(9).MaxSteps() != 9 {
		t.Error("WithMaxSteps did not override the ceiling")
	}
	if r.WithMaxSteps(0) != r {
		t.Error("WithMaxSteps(0) should return the receiver")
	}
}

// TestResolve_EndToEnd drives the real HTTP fetcher through a chain that
// exercises every redirect family against a local server.
func TestResolve_EndToEnd(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/s":
			http.Redirect(w, r, "/refresh", http.StatusMovedPermanently)
		case "/refresh":
			w.Header().Set("Refresh", "0; url=/js")
		case "/js":
			if r.Referer() != srv.URL+"/refresh" {
				t.Errorf("referer on /js = %q", r.Referer())
			}
			fmt.Fprintf(w, `<script>window.location = "%s/meta"</script>`, srv.URL)
		case "/meta":
			fmt.Fprintf(w, `<meta http-equiv="refresh" content="0;URL=%s/final">`, srv.URL)
		case "/final":
			fmt.Fprint(w, "<html><title>Final</title></html>")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f, err := fetcher.NewHTTPFetcher(fetcher.Options{})
	if err != nil {
		t.Fatalf("NewHTTPFetcher: %v", err)
	}
	defer f.Close()

	res := New(f, Options{MaxSteps: 10}).Resolve(context.Background(), srv.URL+"/s")

	checkInvariants(t, res, 10)
	if res.Status != StatusFound {
		t.Fatalf("Status = %q, want found", res.Status)
	}
	if res.EndURL != srv.URL+"/final" {
		t.Errorf("EndURL = %q, want %q", res.EndURL, srv.URL+"/final")
	}
	wantKinds := []Kind{KindHTTPRedirect, KindRefreshHeader, KindJSLocation, KindMetaRefresh, KindNone}
	if len(res.History) != len(wantKinds) {
		t.Fatalf("history length = %d, want %d", len(res.History), len(wantKinds))
	}
	for i, want := range wantKinds {
		if got := kindOf(res.History[i]); got != want {
			t.Errorf("history[%d] kind = %q, want %q", i, got, want)
		}
	}
}

func TestResolve_EndToEndConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	target := srv.URL + "/x"
	srv.Close()

	f, err := fetcher.NewHTTPFetcher(fetcher.Options{})
	if err != nil {
		t.Fatalf("NewHTTPFetcher: %v", err)
	}
	defer f.Close()

	res := New(f, Options{}).Resolve(context.Background(), target)

	if res.Status != StatusError {
		t.Fatalf("Status = %q, want error", res.Status)
	}
	if len(res.History) != 1 {
		t.Fatalf("history length = %d, want 1", len(res.History))
	}
	if res.EndURL != target {
		t.Errorf("EndURL = %q, want %q", res.EndURL, target)
	}
	if code := res.History[0].Fetch.TransportError.Code; code != fetcher.ErrCodeConnRefused {
		t.Errorf("transport error code = %q, want %q", code, fetcher.ErrCodeConnRefused)
	}
}
