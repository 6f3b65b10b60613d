package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"pageproxy/internal/metrics"
)

// counterValue finds a counter by family name and label value, returning -1
// when absent.
func counterValue(t *testing.T, m *metrics.Metrics, family, labelName, labelValue string) float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() != family {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == labelName && lp.GetValue() == labelValue {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return -1
}

func serveWithMetrics(t *testing.T, m *metrics.Metrics, mountPath string, h echo.HandlerFunc, method, uri string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.Use(MetricsMiddleware(m, metrics.NewPathNormalizer(mountPath)))
	e.Add(method, mountPath, h)

	req := httptest.NewRequest(method, uri, http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestMetricsMiddleware_IncrementsCounter(t *testing.T) {
	m := metrics.New()

	ok := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	rec := serveWithMetrics(t, m, "/proxy", ok, http.MethodGet, "/proxy?url=http://example.com/")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	got := counterValue(t, m, "pageproxy_http_requests_total", "path_prefix", "/proxy")
	if got != 1 {
		t.Errorf("requests_total{path_prefix=/proxy} = %v, want 1", got)
	}
}

func TestMetricsMiddleware_CustomMountPath(t *testing.T) {
	// A non-default mount path must label under itself, not "other".
	m := metrics.New()

	ok := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	rec := serveWithMetrics(t, m, "/fetch", ok, http.MethodGet, "/fetch?url=http://example.com/")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	if got := counterValue(t, m, "pageproxy_http_requests_total", "path_prefix", "/fetch"); got != 1 {
		t.Errorf("requests_total{path_prefix=/fetch} = %v, want 1", got)
	}
	if got := counterValue(t, m, "pageproxy_http_requests_total", "path_prefix", "other"); got != -1 {
		t.Errorf("requests_total{path_prefix=other} = %v, want absent", got)
	}
}

func TestMetricsMiddleware_HTTPErrorStatus(t *testing.T) {
	m := metrics.New()

	denied := func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusForbidden, "denied")
	}
	rec := serveWithMetrics(t, m, "/proxy", denied, http.MethodGet, "/proxy")

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}

	got := counterValue(t, m, "pageproxy_http_requests_total", "status_code", "403")
	if got != 1 {
		t.Errorf("requests_total{status_code=403} = %v, want 1", got)
	}
}

func TestMetricsMiddleware_UnknownMethodNormalized(t *testing.T) {
	m := metrics.New()

	ok := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	serveWithMetrics(t, m, "/proxy", ok, "PROPFIND", "/proxy")

	got := counterValue(t, m, "pageproxy_http_requests_total", "method", "other")
	if got != 1 {
		t.Errorf("requests_total{method=other} = %v, want 1", got)
	}
}
