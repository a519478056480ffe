// ABOUTME: Entry point for the document-gateway compilation server
// ABOUTME: Subcommands to serve, probe health, print the version and mint bearer tokens

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/document-gateway/internal/auth"
	"github.com/2389/document-gateway/internal/config"
	"github.com/2389/document-gateway/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
     _                                       _
  __| | ___   ___ _   _ _ __ ___   ___ _ __ | |_
 / _' |/ _ \ / __| | | | '_ ' _ \ / _ \ '_ \| __|
| (_| | (_) | (__| |_| | | | | | |  __/ | | | |_
 \__,_|\___/ \___|\__,_|_| |_| |_|\___|_| |_|\__|  gateway
`

// getConfigPath returns the path to the gateway config file.
// Priority: DOCGW_CONFIG env var > XDG_CONFIG_HOME/document-gateway/gateway.yaml > ~/.config/document-gateway/gateway.yaml
func getConfigPath() (path string, explicit bool) {
	if envPath := os.Getenv("DOCGW_CONFIG"); envPath != "" {
		return envPath, true
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml", false // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "document-gateway", "gateway.yaml"), false
}

// loadConfig loads the config file. A missing file at the default location
// means built-in defaults; a missing file named by DOCGW_CONFIG is an error.
func loadConfig() (*config.Config, string, error) {
	path, explicit := getConfigPath()
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, path, nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return config.Default(), "(defaults)", nil
	}
	return nil, path, fmt.Errorf("loading config: %w", err)
}

func usage() {
	fmt.Println("Usage: document-gateway <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                               Start the gateway server")
	fmt.Println("  health                              Check gateway health")
	fmt.Println("  version                             Print the version")
	fmt.Println("  token --subject NAME [--ttl 24h]    Mint a bearer token for compile and vars")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "health":
		err = runHealth(ctx)
	case "version":
		fmt.Println(version)
	case "token":
		err = runToken(os.Args[2:])
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.Addr())
	green.Print("    ▶ ")
	fmt.Printf("Renderer:  %s\n", cfg.Renderer.URL)
	green.Print("    ▶ ")
	fmt.Printf("Temp:      %s\n", cfg.Server.TmpDir)
	green.Print("    ▶ ")
	fmt.Printf("Workers:   %d-%d\n", cfg.Pool.Min, cfg.Pool.Max)

	if cfg.Auth.JWTSecret != "" {
		green.Print("    ▶ ")
		fmt.Print("Auth:      ")
		yellow.Println("bearer tokens required for compile and vars")
	}

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}

	fmt.Println()

	logger.Info("starting document-gateway",
		"config", configPath,
		"http_addr", cfg.Server.Addr(),
		"renderer", cfg.Renderer.URL,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			mu:    &sync.Mutex{},
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
// Handlers derived with WithAttrs share the parent's mutex.
type colorHandler struct {
	mu     *sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}

	// Handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + prefix + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		mu:     h.mu,
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		mu:     h.mu,
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

// healthURL returns the local health endpoint for the configured listener.
func healthURL(cfg *config.Config) string {
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s/health", net.JoinHostPort(host, strconv.Itoa(cfg.Server.Port)))
}

func runHealth(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL(cfg), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

type tokenArgs struct {
	subject string
	ttl     time.Duration
}

// parseTokenArgs supports both "--flag value" and "--flag=value" formats.
func parseTokenArgs(args []string) (tokenArgs, error) {
	out := tokenArgs{ttl: 24 * time.Hour}
	var ttlRaw string

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--subject" || arg == "-s":
			if i+1 >= len(args) {
				return out, fmt.Errorf("--subject requires a value")
			}
			out.subject = args[i+1]
			i++
		case strings.HasPrefix(arg, "--subject="):
			out.subject = strings.TrimPrefix(arg, "--subject=")
		case arg == "--ttl":
			if i+1 >= len(args) {
				return out, fmt.Errorf("--ttl requires a value")
			}
			ttlRaw = args[i+1]
			i++
		case strings.HasPrefix(arg, "--ttl="):
			ttlRaw = strings.TrimPrefix(arg, "--ttl=")
		case strings.HasPrefix(arg, "-"):
			return out, fmt.Errorf("unknown flag: %s", arg)
		default:
			return out, fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	out.subject = strings.TrimSpace(out.subject)
	if out.subject == "" {
		return out, fmt.Errorf("--subject flag is required")
	}
	if ttlRaw != "" {
		ttl, err := time.ParseDuration(ttlRaw)
		if err != nil {
			return out, fmt.Errorf("invalid --ttl: %w", err)
		}
		if ttl <= 0 {
			return out, fmt.Errorf("--ttl must be positive")
		}
		out.ttl = ttl
	}
	return out, nil
}

func runToken(args []string) error {
	parsed, err := parseTokenArgs(args)
	if err != nil {
		return err
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is not set; bearer auth is disabled")
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return fmt.Errorf("creating token signer: %w", err)
	}
	token, err := verifier.Generate(parsed.subject, parsed.ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	fmt.Println(token)
	return nil
}
