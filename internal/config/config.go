// Package config handles TOML configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/commproto/config.toml",
	"configs/config.toml",
}

// Non-POST request policies for the listener.
const (
	NonPostHang   = "hang"
	NonPostReject = "reject"
)

// CLI holds the global command-line flags parsed by Kong.
type CLI struct {
	Config      string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host        string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port        int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	ProbeTarget string `kong:"help='Startup probe target URL (overrides config).',env='PROBE_TARGET'"`
	LogLevel    string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Listener ListenerConfig `toml:"listener"`
	Probe    ProbeConfig    `toml:"probe"`
	Dispatch DispatchConfig `toml:"dispatch"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ListenerConfig holds HTTP listener settings.
type ListenerConfig struct {
	Host           string          `toml:"host"`
	Port           int             `toml:"port"` // 0 means "use default" (8080)
	BodyMaxBytes   int64           `toml:"body_max_bytes"`
	ReadChunkBytes int             `toml:"read_chunk_bytes"`
	NonPost        string          `toml:"non_post"`
	RateLimit      RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// ProbeConfig holds the startup probe settings.
type ProbeConfig struct {
	Disabled        bool   `toml:"disabled"`
	TargetURL       string `toml:"target_url"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	IdleConnections int    `toml:"idle_connections"`
}

// DispatchConfig holds the datagram dispatcher settings.
type DispatchConfig struct {
	Addr string `toml:"addr"`
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
// /etc/commproto/config.toml then configs/config.toml, and falls back to
// built-in defaults when neither exists.
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
		c.Listener.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Listener.Port = cli.Port
	}
	if cli.ProbeTarget != "" {
		c.Probe.TargetURL = cli.ProbeTarget
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	// Probe target: optional, but must be an absolute http(s) URL when set.
	if c.Probe.TargetURL != "" {
		u, err := url.Parse(c.Probe.TargetURL)
		if err != nil {
			return fmt.Errorf("probe.target_url is not a valid URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("probe.target_url must use http or https; got %q", c.Probe.TargetURL)
		}
		if u.Host == "" {
			return fmt.Errorf("probe.target_url must include a host; got %q", c.Probe.TargetURL)
		}
	}

	// Numeric bounds.
	if c.Listener.Port < 0 || c.Listener.Port > 65535 {
		return fmt.Errorf("listener.port must be 0–65535; got %d", c.Listener.Port)
	}
	if c.Listener.BodyMaxBytes < 0 {
		return fmt.Errorf("listener.body_max_bytes must be non-negative; got %d", c.Listener.BodyMaxBytes)
	}
	if c.Listener.ReadChunkBytes < 0 {
		return fmt.Errorf("listener.read_chunk_bytes must be non-negative; got %d", c.Listener.ReadChunkBytes)
	}
	if c.Probe.TimeoutSeconds < 0 {
		return fmt.Errorf("probe.timeout_seconds must be non-negative; got %d", c.Probe.TimeoutSeconds)
	}
	if c.Probe.IdleConnections < 0 {
		return fmt.Errorf("probe.idle_connections must be non-negative; got %d", c.Probe.IdleConnections)
	}
	if c.Listener.RateLimit.Enabled && c.Listener.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("listener.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Listener.RateLimit.RequestsPerSecond)
	}

	switch strings.ToLower(c.Listener.NonPost) {
	case NonPostHang, NonPostReject, "":
		// valid
	default:
		return fmt.Errorf("listener.non_post must be one of: hang, reject; got %q", c.Listener.NonPost)
	}

	if c.Dispatch.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Dispatch.Addr); err != nil {
			return fmt.Errorf("dispatch.addr must be host:port: %w", err)
		}
	}

	// Log fields.
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
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
		for _, reserved := range []string{"/healthz", "/status"} {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields, zero means "unset" because TOML cannot distinguish
// between an explicit 0 and an omitted key.
func (c *Config) setDefaults() {
	if c.Listener.Host == "" {
		c.Listener.Host = "localhost"
	}
	if c.Listener.Port == 0 {
		c.Listener.Port = 8080
	}
	if c.Listener.BodyMaxBytes == 0 {
		c.Listener.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	if c.Listener.ReadChunkBytes == 0 {
		c.Listener.ReadChunkBytes = 32 * 1024
	}
	c.Listener.NonPost = strings.ToLower(c.Listener.NonPost)
	if c.Listener.NonPost == "" {
		c.Listener.NonPost = NonPostHang
	}
	// The default probe target does not match the default listener port.
	// See ProbeTargetsListener.
	if c.Probe.TargetURL == "" {
		c.Probe.TargetURL = "http://localhost:3000"
	}
	if c.Probe.TimeoutSeconds == 0 {
		c.Probe.TimeoutSeconds = 30
	}
	if c.Probe.IdleConnections == 0 {
		c.Probe.IdleConnections = 2
	}
	if c.Dispatch.Addr == "" {
		c.Dispatch.Addr = "localhost:8080"
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

// Addr returns the listener address as host:port.
func (c *ListenerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ProbeTargetsListener reports whether the probe target URL points at the
// listener's own host:port. With the shipped defaults it does not.
func (c *Config) ProbeTargetsListener() bool {
	u, err := url.Parse(c.Probe.TargetURL)
	if err != nil {
		return false
	}
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "https":
			port = "443"
		default:
			port = "80"
		}
	}
	return strings.EqualFold(u.Hostname(), c.Listener.Host) && port == strconv.Itoa(c.Listener.Port)
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Debug("config stat failed", "path", c.filePath, "err", err)
		}
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
