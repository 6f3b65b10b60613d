// Package service implements the proxy orchestrator: it validates the target,
// consults the SSRF guard, performs the fetch, and dispatches the response to
// the HTML rewriter or the passthrough path.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"pageproxy/internal/client"
	"pageproxy/internal/config"
	"pageproxy/internal/guard"
	"pageproxy/internal/metrics"
	"pageproxy/internal/model"
	"pageproxy/internal/rewrite"
)

// Service carries one request through the chain
// Validated → Authorized → Fetched → Classified → {Rewritten | PassedThrough}.
// It holds no per-request state; every call is independent.
type Service struct {
	cfg      *config.Config
	fetcher  *client.Fetcher
	guard    *guard.Guard
	rewriter *rewrite.Rewriter
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// New creates a Service. The metrics parameter is optional.
func New(cfg *config.Config, f *client.Fetcher, g *guard.Guard, r *rewrite.Rewriter, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		cfg:      cfg,
		fetcher:  f,
		guard:    g,
		rewriter: r,
		logger:   logger.With("component", "proxy_service"),
		metrics:  m,
	}
}

// Handle fetches rawURL on behalf of the caller. HTML responses come back
// rewritten and fully buffered; everything else comes back as a stream the
// caller must close. Errors are one of *ValidationError, *GuardError,
// *UpstreamError, or *InternalError.
func (s *Service) Handle(ctx context.Context, rawURL, userAgent string) (*model.UpstreamResponse, error) {
	target, err := s.validate(rawURL)
	if err != nil {
		return nil, err
	}

	// Authorized once per request, before the fetch, on a fresh resolution.
	if d := s.guard.Authorize(ctx, target.Hostname); !d.Allowed {
		if s.metrics != nil {
			s.metrics.GuardDenials.WithLabelValues(metrics.DenialReason(d.Reason)).Inc()
		}
		return nil, &GuardError{Reason: d.Reason}
	}

	resp, err := s.fetcher.Fetch(ctx, target, userAgent)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}

	contentType := resp.Header.Get("Content-Type")
	if isHTML(contentType) {
		return s.rewriteHTML(target, resp.StatusCode, resp.Header, resp.Body, contentType)
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &model.UpstreamResponse{
		StatusCode:  resp.StatusCode,
		Header:      sanitizeHeaders(resp.Header),
		ContentType: contentType,
		Body:        resp.Body,
	}, nil
}

// validate parses rawURL and enforces the scheme restriction.
func (s *Service) validate(rawURL string) (*model.ResolvedTarget, error) {
	if rawURL == "" {
		return nil, &ValidationError{Msg: "missing url parameter; usage: " + s.cfg.Proxy.MountPath + "?url=<absolute http(s) URL>"}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &ValidationError{Msg: fmt.Sprintf("target is not a valid URL: %v", err)}
	}
	switch u.Scheme {
	case "http", "https":
		// allowed
	default:
		return nil, &ValidationError{Msg: fmt.Sprintf("unsupported scheme %q; only http and https are proxied", u.Scheme)}
	}
	if u.Hostname() == "" {
		return nil, &ValidationError{Msg: "target URL has no hostname"}
	}

	return model.NewResolvedTarget(u), nil
}

// rewriteHTML buffers and rewrites an HTML body. Unlike the passthrough path
// the document must be held in full, bounded by proxy.html_max_bytes, because
// tree parsing needs all of it.
func (s *Service) rewriteHTML(target *model.ResolvedTarget, status int, header http.Header, body io.ReadCloser, contentType string) (*model.UpstreamResponse, error) {
	// Drain whatever the limit left unread so the connection can be reused.
	defer client.DrainAndClose(body)

	var reader io.Reader = io.LimitReader(body, s.cfg.Proxy.HTMLMaxBytes)

	// Normalize to UTF-8 before parsing; on a bogus charset declaration fall
	// back to the raw bytes rather than failing the request.
	if decoded, err := rewrite.NewUTF8Reader(reader, contentType); err == nil {
		reader = decoded
	} else {
		s.logger.Warn("charset detection failed; parsing raw bytes",
			"page", target.URL.String(),
			"err", err,
		)
	}

	rc := &model.RewriteContext{
		Base:      target.URL,
		MountPath: s.cfg.Proxy.MountPath,
	}
	markup, links, err := s.rewriter.Rewrite(rc, reader)
	if err != nil {
		return nil, &InternalError{Err: err}
	}

	if s.metrics != nil {
		s.metrics.PagesRewritten.Inc()
		s.metrics.LinksRewritten.Add(float64(links))
	}
	s.logger.Debug("rewrote page",
		"page", target.URL.String(),
		"status", status,
		"links", links,
	)

	out := sanitizeHeaders(header)
	// The body was re-encoded and re-serialized; the upstream framing and
	// length no longer apply.
	out.Del("Content-Length")
	out.Del("Content-Encoding")
	out.Set("Content-Type", "text/html; charset=utf-8")

	return &model.UpstreamResponse{
		StatusCode:  status,
		Header:      out,
		ContentType: "text/html; charset=utf-8",
		HTML:        markup,
	}, nil
}

// isHTML matches the Content-Type classification rule: a case-insensitive
// substring test for text/html.
func isHTML(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "text/html")
}
