package fetcher

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"
)

// readBody decompresses and transcodes the response body to UTF-8, reading at
// most maxBytes of decoded content. Oversized bodies are truncated, not
// rejected: the redirect markers live near the top of the document.
func readBody(resp *http.Response, maxBytes int64) (string, error) {
	raw := bufio.NewReader(resp.Body)
	// An empty body is empty whatever Content-Encoding claims.
	if _, err := raw.Peek(1); err == io.EOF {
		return "", nil
	}
	reader := io.Reader(raw)

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(raw)
		if err != nil {
			return "", fmt.Errorf("gzip decode: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(raw)
	case "deflate":
		fl := flate.NewReader(raw)
		defer fl.Close()
		reader = fl
	}

	contentType := resp.Header.Get("Content-Type")
	if isTextual(contentType) {
		utf8Reader, err := charset.NewReader(reader, contentType)
		if err == nil {
			reader = utf8Reader
		}
	}

	body, err := io.ReadAll(io.LimitReader(reader, maxBytes))
	if err != nil {
		return string(body), fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}

// isTextual reports whether a content type is worth transcoding. An absent
// content type is treated as HTML, which is what shorteners usually omit it on.
func isTextual(contentType string) bool {
	ct := strings.ToLower(contentType)
	return ct == "" ||
		strings.HasPrefix(ct, "text/") ||
		strings.Contains(ct, "html") ||
		strings.Contains(ct, "xml") ||
		strings.Contains(ct, "javascript") ||
		strings.Contains(ct, "json")
}
