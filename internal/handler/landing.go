package handler

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"pageproxy/internal/config"
)

// landingPage is the cosmetic front door: a form that submits a target URL to
// the proxy entry point.
const landingPage = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>pageproxy</title>
  <style>
    body { font-family: sans-serif; max-width: 40em; margin: 4em auto; color: #333; }
    input[type=url] { width: 70%%; padding: 0.4em; }
    input[type=submit] { padding: 0.4em 1em; }
  </style>
</head>
<body>
  <h1>pageproxy</h1>
  <p>Fetches a page on your behalf and rewrites its links so navigation stays proxied.</p>
  <form action="%s" method="get">
    <input type="url" name="url" placeholder="https://example.com/" required autofocus>
    <input type="submit" value="Go">
  </form>
</body>
</html>
`

// LandingHandler serves the index page.
type LandingHandler struct {
	mountPath string
}

// NewLandingHandler creates a LandingHandler.
func NewLandingHandler(cfg *config.Config) *LandingHandler {
	return &LandingHandler{mountPath: cfg.Proxy.MountPath}
}

// Index renders the URL submission form.
func (h *LandingHandler) Index(c echo.Context) error {
	return c.HTML(http.StatusOK, fmt.Sprintf(landingPage, h.mountPath))
}
