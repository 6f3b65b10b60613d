// Package rewrite turns the links inside a fetched HTML document into proxied
// equivalents so that navigation keeps flowing through the proxy.
package rewrite

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html/charset"

	"pageproxy/internal/config"
	"pageproxy/internal/model"
)

// skipPrefixes are attribute values that are never safe or meaningful to
// proxy and pass through untouched.
var skipPrefixes = []string{"data:", "javascript:", "mailto:", "tel:"}

// ResolveAndProxy resolves value against base and returns the proxied form:
// mountPath with the absolute URL percent-encoded as the url query parameter.
//
// Empty values, skip-scheme values, and bare fragments come back unchanged.
// So does anything that fails URL parsing — one malformed link must not take
// down the whole document.
func ResolveAndProxy(base *url.URL, mountPath, value string) string {
	if value == "" {
		return value
	}
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "#") {
		return value
	}
	lower := strings.ToLower(trimmed)
	for _, p := range skipPrefixes {
		if strings.HasPrefix(lower, p) {
			return value
		}
	}

	ref, err := url.Parse(trimmed)
	if err != nil {
		return value
	}
	abs := base.ResolveReference(ref)

	q := url.Values{}
	q.Set("url", abs.String())
	return mountPath + "?" + q.Encode()
}

// NewUTF8Reader wraps body so that it reads as UTF-8, honoring the charset
// parameter of contentType with sniffing as fallback.
func NewUTF8Reader(body io.Reader, contentType string) (io.Reader, error) {
	return charset.NewReader(body, contentType)
}

// Rewriter rewrites parsed HTML documents in place.
type Rewriter struct {
	policy *bluemonday.Policy // nil unless sanitize mode is on
	logger *slog.Logger
}

// New creates a Rewriter. When cfg.Proxy.Sanitize is set, active content is
// stripped from every document before links are rewritten.
func New(cfg *config.Config, logger *slog.Logger) *Rewriter {
	r := &Rewriter{
		logger: logger.With("component", "rewriter"),
	}
	if cfg.Proxy.Sanitize {
		r.policy = sanitizePolicy()
	}
	return r
}

// sanitizePolicy permits document structure and presentation but drops
// scripts, embeds, objects, and event-handler attributes.
func sanitizePolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements(
		"html", "head", "body", "title", "style", "link", "meta",
		"form", "input", "select", "option", "textarea", "button", "label",
		"nav", "header", "footer", "main", "aside", "figure", "figcaption",
	)
	p.AllowAttrs("rel", "href", "type", "media").OnElements("link")
	p.AllowAttrs("name", "content", "charset", "property").OnElements("meta")
	p.AllowAttrs("action", "method", "name").OnElements("form")
	p.AllowAttrs("type", "name", "value", "placeholder", "checked").OnElements("input")
	p.AllowAttrs("class", "id").Globally()
	return p
}

// Rewrite parses body, rewrites every navigable and loadable URL through the
// proxy, and serializes the document back to UTF-8 markup. It returns the
// markup and the number of attributes rewritten.
//
// Anchors get rel="noreferrer noopener" so that clicking a rewritten link
// leaks no referrer to the target. Content-Security-Policy meta tags are
// removed: the origin's policy would block every proxy-rewritten resource,
// whose origin no longer matches what the policy expects. That weakening is
// deliberate and logged, not hidden.
func (r *Rewriter) Rewrite(rc *model.RewriteContext, body io.Reader) (string, int, error) {
	if r.policy != nil {
		body = r.policy.SanitizeReader(body)
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return "", 0, fmt.Errorf("parse html: %w", err)
	}

	rewritten := 0

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if out := ResolveAndProxy(rc.Base, rc.MountPath, href); out != href {
			s.SetAttr("href", out)
			rewritten++
		}
		s.SetAttr("rel", "noreferrer noopener")
	})

	doc.Find("[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if out := ResolveAndProxy(rc.Base, rc.MountPath, src); out != src {
			s.SetAttr("src", out)
			rewritten++
		}
	})

	doc.Find("[srcset]").Each(func(_ int, s *goquery.Selection) {
		val, _ := s.Attr("srcset")
		if out, n := rewriteSrcset(rc.Base, rc.MountPath, val); n > 0 {
			s.SetAttr("srcset", out)
			rewritten += n
		}
	})

	doc.Find("link[href]").Each(func(_ int, s *goquery.Selection) {
		if !loadableLink(s) {
			return
		}
		href, _ := s.Attr("href")
		if out := ResolveAndProxy(rc.Base, rc.MountPath, href); out != href {
			s.SetAttr("href", out)
			rewritten++
		}
	})

	doc.Find("meta[http-equiv]").Each(func(_ int, s *goquery.Selection) {
		v, _ := s.Attr("http-equiv")
		if strings.EqualFold(v, "Content-Security-Policy") {
			s.Remove()
			r.logger.Info("removed Content-Security-Policy meta tag", "page", rc.Base.String())
		}
	})

	out, err := doc.Html()
	if err != nil {
		return "", 0, fmt.Errorf("serialize html: %w", err)
	}
	return out, rewritten, nil
}

// rewriteSrcset proxies every candidate URL in a srcset attribute, keeping
// the width/density descriptors intact. Proxied URLs are percent-encoded, so
// the rewritten value introduces no new commas.
func rewriteSrcset(base *url.URL, mountPath, value string) (string, int) {
	// data: URLs embed commas; splitting would mangle them. Leave the whole
	// attribute alone, same fail-soft rule as a malformed single URL.
	if strings.Contains(strings.ToLower(value), "data:") {
		return value, 0
	}

	parts := strings.Split(value, ",")
	changed := 0
	for i, part := range parts {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		if out := ResolveAndProxy(base, mountPath, fields[0]); out != fields[0] {
			fields[0] = out
			changed++
		}
		parts[i] = strings.Join(fields, " ")
	}
	if changed == 0 {
		return value, 0
	}
	return strings.Join(parts, ", "), changed
}

// loadableLink reports whether a <link> element points at a resource the
// browser will fetch (stylesheets, icons).
func loadableLink(s *goquery.Selection) bool {
	rel, _ := s.Attr("rel")
	for _, part := range strings.Fields(strings.ToLower(rel)) {
		switch part {
		case "stylesheet", "icon", "shortcut", "apple-touch-icon", "preload", "manifest":
			return true
		}
	}
	return false
}
