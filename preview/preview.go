package preview

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dyatlov/go-opengraph/opengraph"
	readability "github.com/go-shiori/go-readability"
)

// maxDescription caps description and excerpt length in runes.
const maxDescription = 300

// Preview summarises the page a resolution landed on.
type Preview struct {
	Title        string `json:"title,omitempty"`
	Description  string `json:"description,omitempty"`
	CanonicalURL string `json:"canonical_url,omitempty"`
	SiteName     string `json:"site_name,omitempty"`
	Type         string `json:"type,omitempty"`
	ImageURL     string `json:"image_url,omitempty"`
	Excerpt      string `json:"excerpt,omitempty"`
	Language     string `json:"language,omitempty"`

	// TextHash and StructureHash are SimHash fingerprints for spotting
	// duplicate destinations behind different short links.
	TextHash      uint64 `json:"text_hash,string"`
	StructureHash uint64 `json:"structure_hash,string"`
}

// Build extracts a Preview from a terminal page body. It never fails:
// whatever cannot be extracted is left empty.
//
// Sources, in order of preference:
//   - OpenGraph tags (og:title, og:description, og:url, og:site_name, og:image)
//   - plain HTML (<title>, meta description, link rel=canonical)
//   - readability (excerpt, site name, language, article text for TextHash)
func Build(body, pageURL string) *Preview {
	p := &Preview{StructureHash: StructureFingerprint(body)}

	og := opengraph.NewOpenGraph()
	if err := og.ProcessHTML(strings.NewReader(body)); err != nil {
		slog.Debug("preview: opengraph parse failed", "url", pageURL, "error", err)
	} else {
		p.Title = og.Title
		p.Description = og.Description
		p.CanonicalURL = og.URL
		p.SiteName = og.SiteName
		p.Type = og.Type
		if len(og.Images) > 0 && og.Images[0] != nil {
			p.ImageURL = absolute(og.Images[0].URL, pageURL)
		}
	}

	var text string
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(body)); err == nil {
		if p.Title == "" {
			p.Title = strings.TrimSpace(doc.Find("title").First().Text())
		}
		if p.Description == "" {
			p.Description = strings.TrimSpace(doc.Find(`meta[name="description"]`).AttrOr("content", ""))
		}
		if p.CanonicalURL == "" {
			p.CanonicalURL = absolute(doc.Find(`link[rel="canonical"]`).AttrOr("href", ""), pageURL)
		}
		if p.Language == "" {
			p.Language = doc.Find("html").AttrOr("lang", "")
		}
		doc.Find("script, style, noscript").Remove()
		text = doc.Find("body").Text()
	}

	if parsed, err := url.Parse(pageURL); err == nil {
		article, err := readability.FromReader(strings.NewReader(body), parsed)
		if err == nil {
			p.Excerpt = article.Excerpt
			if p.SiteName == "" {
				p.SiteName = article.SiteName
			}
			if p.Language == "" {
				p.Language = article.Language
			}
			if strings.TrimSpace(article.TextContent) != "" {
				text = article.TextContent
			}
		}
	}

	if p.CanonicalURL == "" {
		p.CanonicalURL = pageURL
	}
	p.Description = truncate(p.Description, maxDescription)
	p.Excerpt = truncate(p.Excerpt, maxDescription)
	p.TextHash = TextFingerprint(text)
	return p
}

// absolute resolves ref against base; unresolvable refs come back as-is.
func absolute(ref, base string) string {
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := b.Parse(ref)
	if err != nil {
		return ref
	}
	return r.String()
}

func truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max])) + "…"
}
