// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/pageproxy/config.toml",
	"configs/config.toml",
}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config   string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host     string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port     int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	LogLevel string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Proxy   ProxyConfig   `toml:"proxy"`
	Log     LogConfig     `toml:"log"`
	Metrics MetricsConfig `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (8000); TOML cannot distinguish 0 from unset
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
	BasicAuth    BasicAuthConfig `toml:"basic_auth"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// BasicAuthConfig gates the proxy behind HTTP basic auth when enabled.
type BasicAuthConfig struct {
	Enabled  bool   `toml:"enabled"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// ProxyConfig holds the fetching and rewriting settings.
type ProxyConfig struct {
	// MountPath is the route the proxy entry point is served on, and the
	// prefix rewritten links point back at.
	MountPath string `toml:"mount_path"`
	// Allowlist, when non-empty, restricts target hostnames to exact matches.
	Allowlist []string `toml:"allowlist"`
	// PrivateCheck enables the private-address SSRF check. Defaults to true;
	// the pointer distinguishes "unset" from an explicit false.
	PrivateCheck *bool `toml:"private_check"`
	// Sanitize strips active content (scripts, embeds, event handlers) from
	// rewritten pages.
	Sanitize bool `toml:"sanitize"`
	// TimeoutSeconds bounds the whole upstream fetch.
	TimeoutSeconds int `toml:"timeout_seconds"`
	// HTMLMaxBytes caps how much HTML is buffered for rewriting.
	HTMLMaxBytes int64 `toml:"html_max_bytes"`
	// UserAgent is sent upstream when the caller supplies none.
	UserAgent string `toml:"user_agent"`
	// IdleConnections sizes the upstream connection pool.
	IdleConnections int `toml:"idle_connections"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// PrivateCheckEnabled reports whether the private-address check is on.
// Unset means enabled; disabling it requires an explicit false in the config.
func (p *ProxyConfig) PrivateCheckEnabled() bool {
	return p.PrivateCheck == nil || *p.PrivateCheck
}

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/pageproxy/config.toml then configs/config.toml. A missing config file
// is not an error: the proxy has workable defaults for every setting.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Proxy.TimeoutSeconds < 0 {
		return fmt.Errorf("proxy.timeout_seconds must be non-negative; got %d", c.Proxy.TimeoutSeconds)
	}
	if c.Proxy.HTMLMaxBytes < 0 {
		return fmt.Errorf("proxy.html_max_bytes must be non-negative; got %d", c.Proxy.HTMLMaxBytes)
	}
	if c.Proxy.IdleConnections < 0 {
		return fmt.Errorf("proxy.idle_connections must be non-negative; got %d", c.Proxy.IdleConnections)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	// Basic auth needs both halves of the credential.
	if c.Server.BasicAuth.Enabled {
		if c.Server.BasicAuth.Username == "" || c.Server.BasicAuth.Password == "" {
			return fmt.Errorf("server.basic_auth requires both username and password when enabled")
		}
	}

	// Mount path must be an absolute route.
	if p := c.Proxy.MountPath; p != "" && p[0] != '/' {
		return fmt.Errorf("proxy.mount_path must start with '/'; got %q", p)
	}

	// Allowlist entries are bare hostnames or IP literals, not URLs. IPv6
	// literals are written unbracketed ("::1"), matching how URL hostnames
	// are compared by the guard.
	for _, h := range c.Proxy.Allowlist {
		if h == "" {
			return fmt.Errorf("proxy.allowlist must not contain empty entries")
		}
		if net.ParseIP(h) != nil {
			continue
		}
		if strings.Contains(h, "/") || strings.Contains(h, ":") {
			return fmt.Errorf("proxy.allowlist entries must be bare hostnames or IP literals; got %q", h)
		}
	}

	// Log fields.
	level := strings.ToLower(c.Log.Level)
	switch level {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	format := strings.ToLower(c.Log.Format)
	switch format {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range []string{c.Proxy.MountPath, "/healthz", "/proxy/status"} {
			if reserved == "" {
				continue
			}
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, TimeoutSeconds, etc.), zero means "unset" because
// TOML cannot distinguish between an explicit 0 and an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 1024 * 1024 // 1 MB; inbound requests carry no payload
	}
	if c.Proxy.MountPath == "" {
		c.Proxy.MountPath = "/proxy"
	}
	if c.Proxy.TimeoutSeconds == 0 {
		c.Proxy.TimeoutSeconds = 20
	}
	if c.Proxy.HTMLMaxBytes == 0 {
		c.Proxy.HTMLMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	if c.Proxy.UserAgent == "" {
		c.Proxy.UserAgent = "pageproxy/1.0"
	}
	if c.Proxy.IdleConnections == 0 {
		c.Proxy.IdleConnections = 100
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WarnPermissions logs a warning if the config file is readable by group or
// others. The config may carry basic-auth credentials.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
