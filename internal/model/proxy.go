// Package model defines the request-scoped types shared by the proxy core.
package model

import (
	"io"
	"net/http"
	"net/url"
)

// ResolvedTarget is the parsed and validated target URL of one proxy request.
// Constructed once per request and never mutated afterwards.
type ResolvedTarget struct {
	URL      *url.URL
	Scheme   string
	Hostname string
}

// NewResolvedTarget wraps a parsed URL in a ResolvedTarget.
func NewResolvedTarget(u *url.URL) *ResolvedTarget {
	return &ResolvedTarget{
		URL:      u,
		Scheme:   u.Scheme,
		Hostname: u.Hostname(),
	}
}

// HostDecision is the SSRF guard's verdict for a hostname. It is computed once
// per request, after URL parsing and before any upstream fetch.
type HostDecision struct {
	Allowed bool
	Reason  string
}

// Allow returns an allowing decision.
func Allow() HostDecision {
	return HostDecision{Allowed: true}
}

// Deny returns a denying decision with a reason.
func Deny(reason string) HostDecision {
	return HostDecision{Allowed: false, Reason: reason}
}

// UpstreamResponse is the upstream server's answer as handed back to the
// transport. For rewritten HTML, HTML holds the markup and Body is nil; for
// everything else Body is the raw upstream stream and the caller must close it.
type UpstreamResponse struct {
	StatusCode  int
	Header      http.Header
	ContentType string
	HTML        string
	Body        io.ReadCloser
}

// Rewritten reports whether the response carries rewritten HTML rather than a
// passthrough byte stream.
func (r *UpstreamResponse) Rewritten() bool {
	return r.Body == nil
}

// RewriteContext carries everything the link rewriter needs for one document:
// the target URL as the base for relative resolution, and the proxy mount path
// used to build proxied links. Immutable, one per request.
type RewriteContext struct {
	Base      *url.URL
	MountPath string
}
