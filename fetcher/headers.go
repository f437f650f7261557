package fetcher

import (
	"bytes"
	"net/http"
	"strings"
)

// Headers maps lower-cased response header names to their values in the
// order the server sent them. Repeated headers (refresh, set-cookie, link)
// accumulate instead of overwriting each other.
type Headers map[string][]string

// ParseHeaderLine splits a raw "Name: value" header line on its first colon.
// Lines without a colon (status lines, blank separators, garbage) report
// ok=false. A line with nothing before the colon is kept under the name "".
func ParseHeaderLine(line string) (name, value string, ok bool) {
	rawName, rawValue, found := strings.Cut(line, ":")
	if !found {
		return "", "", false
	}
	return strings.ToLower(strings.TrimSpace(rawName)), strings.TrimSpace(rawValue), true
}

// AddLine parses one raw header line and appends it. It returns false when
// the line was ignored.
func (h Headers) AddLine(line string) bool {
	name, value, ok := ParseHeaderLine(line)
	if !ok {
		return false
	}
	h[name] = append(h[name], value)
	return true
}

// Values returns every value recorded for name (case-insensitive).
func (h Headers) Values(name string) []string {
	return h[strings.ToLower(name)]
}

// Get returns the first value recorded for name, or "".
func (h Headers) Get(name string) string {
	if vals := h.Values(name); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// headersFromResponse replays the response headers through the raw-line
// parser so that every fetch obeys the same folding and trimming rules.
func headersFromResponse(header http.Header) Headers {
	h := make(Headers, len(header))
	var buf bytes.Buffer
	if err := header.Write(&buf); err != nil {
		return h
	}
	for _, line := range strings.Split(buf.String(), "\r\n") {
		h.AddLine(line)
	}
	return h
}
