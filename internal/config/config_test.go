package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// cliWithPath returns a CLI struct pointing at the given config file.
func cliWithPath(path string) *CLI {
	return &CLI{Config: path}
}

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "127.0.0.1"
port = 9000

[proxy]
mount_path = "/fetch"
allowlist = ["example.com", "example.org"]
private_check = true
sanitize = true
timeout_seconds = 30
user_agent = "custom-agent/2.0"

[log]
level = "debug"
format = "text"
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9000)
	}
	if cfg.Proxy.MountPath != "/fetch" {
		t.Errorf("Proxy.MountPath = %q, want /fetch", cfg.Proxy.MountPath)
	}
	if len(cfg.Proxy.Allowlist) != 2 {
		t.Errorf("Proxy.Allowlist = %v, want 2 entries", cfg.Proxy.Allowlist)
	}
	if !cfg.Proxy.Sanitize {
		t.Error("Proxy.Sanitize = false, want true")
	}
	if cfg.Proxy.TimeoutSeconds != 30 {
		t.Errorf("Proxy.TimeoutSeconds = %d, want 30", cfg.Proxy.TimeoutSeconds)
	}
	if cfg.Proxy.UserAgent != "custom-agent/2.0" {
		t.Errorf("Proxy.UserAgent = %q", cfg.Proxy.UserAgent)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "")

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8000 {
		t.Errorf("default port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Proxy.MountPath != "/proxy" {
		t.Errorf("default mount_path = %q, want /proxy", cfg.Proxy.MountPath)
	}
	if cfg.Proxy.TimeoutSeconds != 20 {
		t.Errorf("default timeout_seconds = %d, want 20", cfg.Proxy.TimeoutSeconds)
	}
	if cfg.Proxy.HTMLMaxBytes != 10*1024*1024 {
		t.Errorf("default html_max_bytes = %d, want 10 MiB", cfg.Proxy.HTMLMaxBytes)
	}
	if !cfg.Proxy.PrivateCheckEnabled() {
		t.Error("private check must default to enabled")
	}
	if cfg.Proxy.Sanitize {
		t.Error("sanitize must default to disabled")
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("log defaults = %q/%q, want info/json", cfg.Log.Level, cfg.Log.Format)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("default metrics path = %q, want /metrics", cfg.Metrics.Path)
	}
}

func TestLoad_AllowlistIPLiterals(t *testing.T) {
	path := writeConfig(t, `
[proxy]
allowlist = ["example.com", "203.0.113.7", "2001:db8::1"]
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Proxy.Allowlist) != 3 {
		t.Errorf("Proxy.Allowlist = %v, want all three entries accepted", cfg.Proxy.Allowlist)
	}
}

func TestLoad_PrivateCheckExplicitFalse(t *testing.T) {
	path := writeConfig(t, `
[proxy]
private_check = false
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Proxy.PrivateCheckEnabled() {
		t.Error("explicit private_check = false not honored")
	}
}

func TestLoad_CLIOverrides(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "0.0.0.0"
port = 8000

[log]
level = "info"
`)

	cfg, err := Load(&CLI{
		Config:   path,
		Host:     "127.0.0.1",
		Port:     9999,
		LogLevel: "debug",
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want CLI override", cfg.Server.Host)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want CLI override", cfg.Server.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want CLI override", cfg.Log.Level)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantSub string
	}{
		{
			name:    "bad port",
			data:    "[server]\nport = 70000\n",
			wantSub: "server.port",
		},
		{
			name:    "negative timeout",
			data:    "[proxy]\ntimeout_seconds = -1\n",
			wantSub: "proxy.timeout_seconds",
		},
		{
			name:    "relative mount path",
			data:    "[proxy]\nmount_path = \"fetch\"\n",
			wantSub: "proxy.mount_path",
		},
		{
			name:    "allowlist with URL",
			data:    "[proxy]\nallowlist = [\"https://example.com\"]\n",
			wantSub: "proxy.allowlist",
		},
		{
			name:    "allowlist with empty entry",
			data:    "[proxy]\nallowlist = [\"\"]\n",
			wantSub: "proxy.allowlist",
		},
		{
			name:    "rate limit without rps",
			data:    "[server.rate_limit]\nenabled = true\n",
			wantSub: "requests_per_second",
		},
		{
			name:    "basic auth without password",
			data:    "[server.basic_auth]\nenabled = true\nusername = \"admin\"\n",
			wantSub: "basic_auth",
		},
		{
			name:    "bad log level",
			data:    "[log]\nlevel = \"verbose\"\n",
			wantSub: "log.level",
		},
		{
			name:    "bad log format",
			data:    "[log]\nformat = \"xml\"\n",
			wantSub: "log.format",
		},
		{
			name:    "metrics path conflicts with healthz",
			data:    "[metrics]\nenabled = true\npath = \"/healthz\"\n",
			wantSub: "conflicts",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.data)
			_, err := Load(cliWithPath(path))
			if err == nil {
				t.Fatal("Load() succeeded, want validation error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(cliWithPath(filepath.Join(t.TempDir(), "absent.toml")))
	if err == nil {
		t.Fatal("Load() with missing explicit config succeeded, want error")
	}
}

func TestLoad_NoConfigFileUsesDefaults(t *testing.T) {
	// No --config and no file on the search paths: defaults apply.
	cfg, err := Load(&CLI{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Proxy.MountPath != "/proxy" {
		t.Errorf("mount_path = %q, want default", cfg.Proxy.MountPath)
	}
}

func TestFindConfigInPaths(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "present.toml")
	if err := os.WriteFile(existing, []byte(""), 0o600); err != nil {
		t.Fatal(err)
	}

	got := findConfigInPaths([]string{
		filepath.Join(dir, "absent.toml"),
		existing,
	})
	if got != existing {
		t.Errorf("findConfigInPaths() = %q, want %q", got, existing)
	}

	if got := findConfigInPaths([]string{filepath.Join(dir, "nope.toml")}); got != "" {
		t.Errorf("findConfigInPaths() = %q, want empty", got)
	}
}

func TestAddr(t *testing.T) {
	sc := &ServerConfig{Host: "127.0.0.1", Port: 8000}
	if got := sc.Addr(); got != "127.0.0.1:8000" {
		t.Errorf("Addr() = %q", got)
	}
}
