package resolver

import (
	"context"
	"log/slog"
	"regexp"

	"github.com/use-agent/unhide/fetcher"
)

// DefaultMaxSteps bounds how many requests one resolution may issue.
const DefaultMaxSteps = 5

// redirectStatuses are the codes whose Location header is followed.
var redirectStatuses = map[int]bool{
	300: true, 301: true, 302: true, 303: true, 304: true, 307: true, 308: true,
}

var refreshURLRE = regexp.MustCompile(`(?im)url=(.*)`)

// Options configures a Resolver.
type Options struct {
	// MaxSteps is the request ceiling per resolution. Default: 5.
	MaxSteps int
}

// Resolver chases a URL hop by hop until it lands on a content page.
// It keeps no per-call state and is safe for concurrent use.
type Resolver struct {
	fetcher  fetcher.Fetcher
	maxSteps int
}

// New creates a Resolver that issues every request through f.
func New(f fetcher.Fetcher, opts Options) *Resolver {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	return &Resolver{fetcher: f, maxSteps: opts.MaxSteps}
}

// MaxSteps returns the configured request ceiling.
func (r *Resolver) MaxSteps() int { return r.maxSteps }

// WithMaxSteps returns a copy of r with a different ceiling. Values <= 0
// keep the current one.
func (r *Resolver) WithMaxSteps(n int) *Resolver {
	if n <= 0 || n == r.maxSteps {
		return r
	}
	return &Resolver{fetcher: r.fetcher, maxSteps: n}
}

// hop is where the chase goes next.
type hop struct {
	url     string
	referer string
}

// Resolve follows rawURL to its destination. It never fails: transport
// problems and runaway chains are reported through Resolution.Status, and
// the history up to that point is always returned.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) *Resolution {
	var history []Step
	next := hop{url: rawURL}

	for step := 1; ; step++ {
		if step > r.maxSteps {
			slog.Info("resolution cut off", "url", rawURL, "maxSteps", r.maxSteps)
			return &Resolution{
				Status:    StatusTooManyRedirects,
				History:   history,
				StepCount: len(history),
			}
		}

		res := r.fetcher.Fetch(ctx, next.url, next.referer)
		entry, following, done := r.advance(res)
		history = append(history, entry)

		slog.Debug("resolution step",
			"step", step,
			"url", res.RequestedURL,
			"status", res.StatusCode,
			"type", entry.Type,
			"kind", kindOf(entry),
		)

		if done {
			return finish(rawURL, history)
		}
		next = following
	}
}

// advance classifies one fetch and decides where to go next. done is true
// when entry is terminal (content or error).
func (r *Resolver) advance(res *fetcher.Result) (entry Step, next hop, done bool) {
	if c := ItemParse(res); c.Redirect {
		return redirectStep(res, c), hop{url: CompleteURL(c.TargetURL, res.EffectiveURL)}, false
	}

	if res.RedirectURL != "" && redirectStatuses[res.StatusCode] {
		c := Classification{Redirect: true, Kind: KindHTTPRedirect, TargetURL: res.RedirectURL}
		return redirectStep(res, c), hop{url: CompleteURL(res.RedirectURL, res.EffectiveURL)}, false
	}

	if res.Failed() {
		return Step{Fetch: res, Type: StepError}, hop{}, true
	}

	if refresh := res.Headers.Values("refresh"); len(refresh) > 0 {
		if m := refreshURLRE.FindStringSubmatch(refresh[0]); m != nil {
			c := Classification{Redirect: true, Kind: KindRefreshHeader, TargetURL: m[1]}
			return redirectStep(res, c), hop{
				url:     CompleteURL(m[1], res.EffectiveURL),
				referer: res.EffectiveURL,
			}, false
		}
	}

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		if c := ContentParse(res); c.Redirect {
			return redirectStep(res, c), hop{url: CompleteURL(c.TargetURL, res.EffectiveURL)}, false
		}
	}

	return Step{Fetch: res, Type: StepContent}, hop{}, true
}

func redirectStep(res *fetcher.Result, c Classification) Step {
	return Step{Fetch: res, Type: StepRedirect, Classification: &c}
}

func finish(rawURL string, history []Step) *Resolution {
	last := history[len(history)-1]
	status := StatusFound
	if last.Type == StepError {
		status = StatusError
	}

	slog.Info("resolution finished",
		"url", rawURL,
		"status", status,
		"endURL", last.Fetch.EffectiveURL,
		"steps", len(history),
	)

	return &Resolution{
		EndURL:    last.Fetch.EffectiveURL,
		Status:    status,
		History:   history,
		StepCount: len(history),
	}
}

func kindOf(s Step) Kind {
	if s.Classification == nil {
		return KindNone
	}
	return s.Classification.Kind
}
