// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/igrelay/config.toml",
	"configs/config.toml",
}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config    string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host      string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port      int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	SessionID string `kong:"help='Instagram sessionid cookie for the resolver (overrides config).',env='IG_SESSIONID'"`
	LogLevel  string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Relay    RelayConfig    `toml:"relay"`
	Resolver ResolverConfig `toml:"resolver"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (8000); TOML cannot distinguish 0 from unset
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// RelayConfig holds settings for the CDN streaming relay.
type RelayConfig struct {
	// AllowedCDNDomains are the only hostnames (or hostname suffixes,
	// matched on dot boundaries) the relay will fetch from.
	AllowedCDNDomains []string `toml:"allowed_cdn_domains"`
	ChunkBytes        int      `toml:"chunk_bytes"`
	FetchTimeoutSecs  int      `toml:"fetch_timeout_seconds"`
	IdleConnections   int      `toml:"idle_connections"`
	MaxRedirects      int      `toml:"max_redirects"`
}

// ResolverConfig holds settings for the Instagram media resolver.
type ResolverConfig struct {
	BaseURL        string `toml:"base_url"`
	SessionID      string `toml:"session_id"`
	UserAgent      string `toml:"user_agent"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
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

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/igrelay/config.toml then configs/config.toml. A missing config file
// is not an error: the built-in defaults already describe a working relay.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}

	var cfg Config
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
	if cli.SessionID != "" {
		c.Resolver.SessionID = cli.SessionID
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	// Allowlist entries must be bare domains, not URLs or wildcards.
	for _, d := range c.Relay.AllowedCDNDomains {
		trimmed := strings.TrimSpace(d)
		if trimmed == "" {
			return fmt.Errorf("relay.allowed_cdn_domains contains an empty entry")
		}
		if strings.ContainsAny(trimmed, "/:*") {
			return fmt.Errorf("relay.allowed_cdn_domains entry %q must be a bare domain", d)
		}
	}

	// Resolver base URL: when set it must be HTTPS.
	if c.Resolver.BaseURL != "" {
		u, err := url.Parse(c.Resolver.BaseURL)
		if err != nil {
			return fmt.Errorf("resolver.base_url is not a valid URL: %w", err)
		}
		if u.Scheme != "https" {
			return fmt.Errorf("resolver.base_url must use HTTPS; got %q", c.Resolver.BaseURL)
		}
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Relay.ChunkBytes < 0 {
		return fmt.Errorf("relay.chunk_bytes must be non-negative; got %d", c.Relay.ChunkBytes)
	}
	if c.Relay.FetchTimeoutSecs < 0 {
		return fmt.Errorf("relay.fetch_timeout_seconds must be non-negative; got %d", c.Relay.FetchTimeoutSecs)
	}
	if c.Relay.IdleConnections < 0 {
		return fmt.Errorf("relay.idle_connections must be non-negative; got %d", c.Relay.IdleConnections)
	}
	if c.Relay.MaxRedirects < 0 {
		return fmt.Errorf("relay.max_redirects must be non-negative; got %d", c.Relay.MaxRedirects)
	}
	if c.Resolver.TimeoutSeconds < 0 {
		return fmt.Errorf("resolver.timeout_seconds must be non-negative; got %d", c.Resolver.TimeoutSeconds)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
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
		for _, reserved := range []string{"/proxy", "/api/resolve", "/healthz", "/relay/status"} {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// defaultCDNDomains covers the Instagram/Facebook regional media CDN family.
var defaultCDNDomains = []string{
	"cdninstagram.com",
	"fbcdn.net",
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, ChunkBytes, etc.), zero means "unset" because TOML
// cannot distinguish between an explicit 0 and an omitted key. Setting port=0 in
// the config file therefore results in the default port (8000).
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 1024 * 1024 // 1 MB; the relay only accepts small requests
	}
	if len(c.Relay.AllowedCDNDomains) == 0 {
		c.Relay.AllowedCDNDomains = append([]string(nil), defaultCDNDomains...)
	}
	if c.Relay.ChunkBytes == 0 {
		c.Relay.ChunkBytes = 8 * 1024
	}
	if c.Relay.FetchTimeoutSecs == 0 {
		c.Relay.FetchTimeoutSecs = 20
	}
	if c.Relay.IdleConnections == 0 {
		c.Relay.IdleConnections = 100
	}
	if c.Relay.MaxRedirects == 0 {
		c.Relay.MaxRedirects = 5
	}
	if c.Resolver.BaseURL == "" {
		c.Resolver.BaseURL = "https://www.instagram.com"
	}
	if c.Resolver.UserAgent == "" {
		c.Resolver.UserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"
	}
	if c.Resolver.TimeoutSeconds == 0 {
		c.Resolver.TimeoutSeconds = 30
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
// others. The config may carry an Instagram session cookie.
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
