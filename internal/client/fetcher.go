// Package client performs the upstream HTTP fetch for authorized targets.
package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"pageproxy/internal/config"
	"pageproxy/internal/metrics"
	"pageproxy/internal/model"
)

// Fetcher issues requests to arbitrary authorized upstream origins.
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// New creates a Fetcher with connection pooling and a hard overall timeout.
// Redirects are never followed: 3xx responses pass through to the caller
// untouched. The metrics parameter is optional; pass nil to disable upstream
// metrics recording.
func New(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *Fetcher {
	transport := &http.Transport{
		MaxIdleConns:        cfg.Proxy.IdleConnections,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &Fetcher{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Proxy.TimeoutSeconds) * time.Second,
			CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		userAgent: cfg.Proxy.UserAgent,
		logger:    logger.With("component", "fetcher"),
		metrics:   m,
	}
}

// Fetch retrieves target with a minimal request header set. Client cookies and
// identifying headers are never forwarded: the proxy is anonymous with respect
// to upstream state. The caller owns the response body and must close it.
//
// The context bounds the fetch: when the inbound request is cancelled, the
// upstream request is torn down with it.
func (f *Fetcher) Fetch(ctx context.Context, target *model.ResolvedTarget, userAgent string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}

	if userAgent == "" {
		userAgent = f.userAgent
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	f.logger.Debug("upstream fetch",
		"host", target.Hostname,
		"scheme", target.Scheme,
	)

	start := time.Now()
	resp, err := f.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to the caller
	duration := time.Since(start).Seconds()

	if err != nil {
		if f.metrics != nil {
			f.metrics.UpstreamDuration.WithLabelValues(target.Scheme).Observe(duration)
		}
		return nil, fmt.Errorf("upstream fetch: %w", err)
	}

	if f.metrics != nil {
		f.metrics.UpstreamDuration.WithLabelValues(target.Scheme).Observe(duration)
		f.metrics.UpstreamResponses.WithLabelValues(target.Scheme, strconv.Itoa(resp.StatusCode)).Inc()
	}

	return resp, nil
}

// DrainAndClose discards any unread remainder of body and closes it, so the
// underlying connection can be reused by the pool.
func DrainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 1<<18))
	_ = body.Close()
}
