package resolver

import (
	"net/url"
	"strings"

	"github.com/use-agent/unhide/fetcher"
)

// Rule recognises one redirect convention. Extract returns the destination
// and true on a match; any malformed input is simply a non-match.
type Rule struct {
	Kind    Kind
	Extract func(*fetcher.Result) (string, bool)
}

// itemRules are checked against the fetched URL before looking at the body.
// Order is significant: the first matching rule wins.
var itemRules = []Rule{
	{Kind: KindVKCC, Extract: vkShortLink},
	{Kind: KindVKAway, Extract: urlContainingParam("vk.com/away.php", "to")},
	{Kind: KindOKDK, Extract: urlContainingParam("ok.ru/dk?", "st_link")},
}

// ItemParse looks for service-specific redirect parameters in the fetched
// URL (and, for vk.cc, in the redirect target the server answered with).
func ItemParse(res *fetcher.Result) Classification {
	return classify(itemRules, res)
}

func classify(rules []Rule, res *fetcher.Result) Classification {
	for _, rule := range rules {
		if target, ok := rule.Extract(res); ok {
			return Classification{Redirect: true, Kind: rule.Kind, TargetURL: target}
		}
	}
	return noRedirect
}

// vkShortLink handles vk.cc, which answers with a redirect to
// vk.com/away.php?to=<destination>; the destination is read off that target.
func vkShortLink(res *fetcher.Result) (string, bool) {
	u, err := url.Parse(res.EffectiveURL)
	if err != nil || u.Hostname() != "vk.cc" {
		return "", false
	}
	return queryParam(res.RedirectURL, "to")
}

func urlContainingParam(marker, param string) func(*fetcher.Result) (string, bool) {
	return func(res *fetcher.Result) (string, bool) {
		if !strings.Contains(res.EffectiveURL, marker) {
			return "", false
		}
		return queryParam(res.EffectiveURL, param)
	}
}

// queryParam returns the last value of key in rawURL's query, reporting
// false when it is absent or empty. Pairs are split on '&' only, so a ';'
// inside a destination stays part of it. Pairs that fail to decode are skipped.
func queryParam(rawURL, key string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.RawQuery == "" {
		return "", false
	}

	var (
		value string
		found bool
	)
	for _, pair := range strings.Split(u.RawQuery, "&") {
		rawKey, rawValue, _ := strings.Cut(pair, "=")
		k, err := url.QueryUnescape(rawKey)
		if err != nil || k != key {
			continue
		}
		v, err := url.QueryUnescape(rawValue)
		if err != nil {
			continue
		}
		value, found = v, true
	}
	return value, found && value != ""
}
