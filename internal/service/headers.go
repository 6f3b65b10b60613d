package service

import "net/http"

// deniedResponseHeaders are upstream response headers never relayed to the
// caller. The policy headers would stop the page rendering through a different
// origin; the cookie and HSTS headers would leak or forge session state across
// origins.
var deniedResponseHeaders = map[string]bool{
	"Content-Security-Policy":             true,
	"Content-Security-Policy-Report-Only": true,
	"X-Frame-Options":                     true,
	"Set-Cookie":                          true,
	"Set-Cookie2":                         true,
	"Strict-Transport-Security":           true,
}

// hopByHopHeaders must not traverse a proxy (RFC 9110 §7.6.1).
var hopByHopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// sanitizeHeaders copies src minus the denied and hop-by-hop sets.
func sanitizeHeaders(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for key, vals := range src {
		canon := http.CanonicalHeaderKey(key)
		if deniedResponseHeaders[canon] || hopByHopHeaders[canon] {
			continue
		}
		dst[canon] = vals
	}
	return dst
}
