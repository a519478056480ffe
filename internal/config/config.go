// ABOUTME: Configuration loading and parsing for document-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MinJWTSecretLength is the shortest accepted auth.jwt_secret, in bytes.
const MinJWTSecretLength = 32

// Config represents the complete document-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Pool      PoolConfig      `yaml:"pool"`
	Renderer  RendererConfig  `yaml:"renderer"`
	Office    OfficeConfig    `yaml:"office"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds the listener and filesystem configuration
type ServerConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	TmpDir        string `yaml:"tmp_dir"`
	StaticDir     string `yaml:"static_dir"`
	MaxUploadSize int64  `yaml:"max_upload_size"`
}

// Addr returns the host:port the HTTP server listens on.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// WorkDir is where per-request workspaces are created.
func (s ServerConfig) WorkDir() string {
	return filepath.Join(s.TmpDir, "work")
}

// CacheDir is where derived bundled documents are kept.
func (s ServerConfig) CacheDir() string {
	return filepath.Join(s.TmpDir, "cache")
}

// PoolConfig sizes the request worker pool
type PoolConfig struct {
	Min         int           `yaml:"min"`
	Max         int           `yaml:"max"`
	IdleTimeout time.Duration `yaml:"-"`

	IdleTimeoutRaw string `yaml:"idle_timeout"`
}

// RendererConfig points at the template render service
type RendererConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"-"`

	TimeoutRaw string `yaml:"timeout"`
}

// OfficeConfig configures the headless office converter
type OfficeConfig struct {
	Binary        string        `yaml:"binary"`
	ExtensionsDir string        `yaml:"extensions_dir"`
	Timeout       time.Duration `yaml:"-"`

	TimeoutRaw string `yaml:"timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          2115,
			TmpDir:        filepath.Join(os.TempDir(), "document-gateway"),
			MaxUploadSize: 100 << 20,
		},
		Pool: PoolConfig{
			Min:            8,
			Max:            32,
			IdleTimeout:    30 * time.Second,
			IdleTimeoutRaw: "30s",
		},
		Renderer: RendererConfig{
			URL:        "http://127.0.0.1:2116",
			Timeout:    2 * time.Minute,
			TimeoutRaw: "2m",
		},
		Office: OfficeConfig{
			Binary:        "soffice",
			ExtensionsDir: "/usr/share/document-gateway/extensions",
			Timeout:       2 * time.Minute,
			TimeoutRaw:    "2m",
		},
		Tailscale: TailscaleConfig{
			Hostname: "document-gateway",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration over the defaults and validates it.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

var (
	validLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validFormats = map[string]bool{"text": true, "json": true}

	reservedPaths = map[string]bool{
		"/": true, "/api": true, "/api/stats": true, "/how-it-works": true, "/example": true,
		"/compile": true, "/extension": true, "/vars": true, "/health": true, "/health/ready": true,
	}
)

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// A port is required unless Tailscale provides the listener
	if !c.Tailscale.Enabled && (c.Server.Port < 1 || c.Server.Port > 65535) {
		return fmt.Errorf("server.port must be between 1 and 65535 (or enable tailscale)")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}
	if c.Server.TmpDir == "" {
		return fmt.Errorf("server.tmp_dir is required")
	}
	if c.Server.MaxUploadSize <= 0 {
		return fmt.Errorf("server.max_upload_size must be positive")
	}

	if c.Pool.Min < 0 {
		return fmt.Errorf("pool.min must not be negative")
	}
	if c.Pool.Max < 1 {
		return fmt.Errorf("pool.max must be at least 1")
	}
	if c.Pool.Min > c.Pool.Max {
		return fmt.Errorf("pool.min (%d) must not exceed pool.max (%d)", c.Pool.Min, c.Pool.Max)
	}
	if c.Pool.IdleTimeout <= 0 {
		return fmt.Errorf("pool.idle_timeout must be positive")
	}

	if c.Renderer.URL == "" {
		return fmt.Errorf("renderer.url is required")
	}
	if c.Office.Binary == "" {
		return fmt.Errorf("office.binary is required")
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", MinJWTSecretLength)
	}

	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}
	if c.Metrics.Enabled && reservedPaths[c.Metrics.Path] {
		return fmt.Errorf("metrics.path %q is already served by the gateway", c.Metrics.Path)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"pool.idle_timeout", cfg.Pool.IdleTimeoutRaw, &cfg.Pool.IdleTimeout},
		{"renderer.timeout", cfg.Renderer.TimeoutRaw, &cfg.Renderer.Timeout},
		{"office.timeout", cfg.Office.TimeoutRaw, &cfg.Office.Timeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
