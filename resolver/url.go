package resolver

import (
	"net"
	"net/url"
	"regexp"
	"strings"
)

var (
	schemeRE   = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.\-]*$`)
	hostnameRE = regexp.MustCompile(`^([A-Za-z0-9]([A-Za-z0-9\-]*[A-Za-z0-9])?\.)*[A-Za-z0-9]([A-Za-z0-9\-]*[A-Za-z0-9])?\.?$`)
)

// ValidURL reports whether s is an absolute URL fit to be fetched or
// recorded: printable ASCII only, a well-formed scheme, and for anything
// but mailto/news/file a syntactically valid host.
func ValidURL(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] <= ' ' || s[i] >= 0x7f {
			return false
		}
	}

	u, err := url.Parse(s)
	if err != nil || !schemeRE.MatchString(u.Scheme) {
		return false
	}

	switch strings.ToLower(u.Scheme) {
	case "mailto", "news", "file":
		return true
	}

	host := u.Hostname()
	if host == "" {
		return false
	}
	if net.ParseIP(host) != nil {
		return true
	}
	return hostnameRE.MatchString(host)
}

// CompleteURL turns a path-absolute target ("/x?y") found on origin into a
// full URL. Anything else is returned untouched, including protocol-relative
// "//host/path" targets, which get the origin host prefixed like any path.
func CompleteURL(target, origin string) string {
	if !strings.HasPrefix(target, "/") {
		return target
	}

	scheme, host := "http", ""
	if u, err := url.Parse(origin); err == nil {
		if u.Scheme != "" {
			scheme = u.Scheme
		}
		host = u.Host
	}
	return scheme + "://" + host + target
}
