package resolver

import (
	"regexp"

	"github.com/use-agent/unhide/fetcher"
)

// contentRules scan the response body. The expressions are deliberately
// loose and greedy: (.*) runs to the last quote on the line.
var contentRules = []Rule{
	// window.location = "…", document.location = '…', top.location="…"
	bodyPattern(KindJSLocation, `(?im)\.location\s*=\s*['"]+(.*)['"]+`),
	// <meta http-equiv="refresh" content="0;URL=…">
	bodyPattern(KindMetaRefresh, `(?im)content\s*=\s*['"]+[0-9]+\s*;\s*URL\s*=\s*['"]?(.*)['"]?['"]+`),
	// link.pub interstitial: tw('…')
	bodyPattern(KindLinkPub, `(?im)tw\(['"]+(.*)['"]+\)`),
	// qoo.by double hop: $("#nexturl").attr("href", "…");
	bodyPattern(KindDoubleQooBy, `(?im)\$\("#nexturl"\)\.attr\("href", "(.*)"\);`),
}

// ContentParse looks for a redirect embedded in the page body.
func ContentParse(res *fetcher.Result) Classification {
	return classify(contentRules, res)
}

// bodyPattern accepts only the first match of pattern, and only when the
// captured text is an absolute URL.
func bodyPattern(kind Kind, pattern string) Rule {
	re := regexp.MustCompile(pattern)
	return Rule{
		Kind: kind,
		Extract: func(res *fetcher.Result) (string, bool) {
			m := re.FindStringSubmatch(res.Body)
			if m == nil || !ValidURL(m[1]) {
				return "", false
			}
			return m[1], true
		},
	}
}
