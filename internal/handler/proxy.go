package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"pageproxy/internal/service"
)

// ProxyHandler serves the proxy entry point.
type ProxyHandler struct {
	service *service.Service
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.Service, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle fetches the url query parameter's target and writes the result back:
// rewritten markup for HTML, a streamed copy for everything else.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	resp, err := h.service.Handle(
		req.Context(),
		c.QueryParam("url"),
		req.Header.Get("User-Agent"),
	)
	if err != nil {
		return h.mapError(c, err)
	}

	out := c.Response()
	for key, vals := range resp.Header {
		for _, v := range vals {
			out.Header().Add(key, v)
		}
	}
	out.Header().Set("Content-Type", resp.ContentType)

	if resp.Rewritten() {
		return c.HTMLBlob(resp.StatusCode, []byte(resp.HTML))
	}

	defer func() { _ = resp.Body.Close() }()
	out.WriteHeader(resp.StatusCode)

	// Stream the upstream body to the client as bytes arrive. If the copy
	// fails mid-stream the status has already been sent and the client sees a
	// truncated response with the original status; we log it and move on.
	if _, err := io.Copy(out, resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", err,
			"url", c.QueryParam("url"),
		)
	}

	return nil
}

// mapError translates the service error taxonomy to HTTP statuses:
// validation 400, guard denial 403, upstream failure 502, anything else 500.
func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	var (
		ve *service.ValidationError
		ge *service.GuardError
		ue *service.UpstreamError
	)

	switch {
	case errors.As(err, &ve):
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": ve.Msg,
		})
	case errors.As(err, &ge):
		h.logger.Info("guard denied request",
			"reason", ge.Reason,
			"remote_ip", c.RealIP(),
		)
		return c.JSON(http.StatusForbidden, map[string]string{
			"error": "target host not allowed: " + ge.Reason,
		})
	case errors.As(err, &ue):
		h.logger.Error("upstream failure",
			"err", err,
			"url", c.QueryParam("url"),
		)
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "upstream fetch failed",
		})
	default:
		h.logger.Error("internal error",
			"err", err,
			"url", c.QueryParam("url"),
		)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "internal error: " + err.Error(),
		})
	}
}
