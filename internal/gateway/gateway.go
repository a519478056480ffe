// ABOUTME: Gateway orchestrator that builds the compilation pipeline and HTTP server
// ABOUTME: Manages listeners (TCP or Tailscale), startup cache warming and graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"tailscale.com/tsnet"

	"github.com/2389/document-gateway/internal/artifact"
	"github.com/2389/document-gateway/internal/auth"
	"github.com/2389/document-gateway/internal/cache"
	"github.com/2389/document-gateway/internal/compile"
	"github.com/2389/document-gateway/internal/config"
	"github.com/2389/document-gateway/internal/metrics"
	"github.com/2389/document-gateway/internal/office"
	"github.com/2389/document-gateway/internal/pool"
	"github.com/2389/document-gateway/internal/renderer"
	"github.com/2389/document-gateway/internal/store"
)

// staleWorkspaceAge is how old a leftover request workspace must be before
// startup removes it.
const staleWorkspaceAge = time.Hour

// Renderer is the template render backend plus its health probe.
type Renderer interface {
	compile.Renderer
	Ping(ctx context.Context) error
}

// Office converts documents and serves extension installers.
type Office interface {
	compile.Converter
	Extension(osName string) (*office.Extension, error)
}

// Deps are the collaborators a Gateway is built from. Store and Verifier are optional.
type Deps struct {
	Renderer Renderer
	Office   Office
	Store    store.CompilationStore
	Verifier auth.TokenVerifier
}

// Gateway serves the document compilation HTTP API.
type Gateway struct {
	config       *config.Config
	renderer     Renderer
	office       Office
	store        store.CompilationStore
	verifier     auth.TokenVerifier
	dispatcher   *compile.Dispatcher
	materializer *cache.Materializer
	pool         *pool.Pool
	metrics      *metrics.Metrics
	allowed      map[string][]string
	httpServer   *http.Server
	tsnetServer  *tsnet.Server
	logger       *slog.Logger
}

// New creates a Gateway with the real render client, office converter and,
// when configured, the audit store and bearer auth.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	rc, err := renderer.New(renderer.Config{
		URL:    cfg.Renderer.URL,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("initialising renderer: %w", err)
	}

	oc, err := office.New(office.Config{
		Binary:        cfg.Office.Binary,
		ExtensionsDir: cfg.Office.ExtensionsDir,
		Timeout:       cfg.Office.Timeout,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("initialising office: %w", err)
	}

	deps := Deps{Renderer: rc, Office: oc}

	if cfg.Auth.JWTSecret != "" {
		verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		if err != nil {
			return nil, fmt.Errorf("initialising auth: %w", err)
		}
		deps.Verifier = verifier
		logger.Info("bearer auth enabled for compile and vars")
	}

	if cfg.Database.Path != "" {
		s, err := store.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("initialising store: %w", err)
		}
		deps.Store = s
	}

	gw, err := NewWithDeps(cfg, deps, logger)
	if err != nil && deps.Store != nil {
		_ = deps.Store.Close()
	}
	return gw, err
}

// NewWithDeps creates a Gateway from explicit collaborators.
// The cache directory is cleared and stale workspaces are removed before it returns.
func NewWithDeps(cfg *config.Config, deps Deps, logger *slog.Logger) (*Gateway, error) {
	if deps.Renderer == nil || deps.Office == nil {
		return nil, errors.New("gateway: renderer and office are required")
	}
	logger = logger.With("component", "gateway")

	cache.Warm(cfg.Server.CacheDir(), logger)
	artifact.Sweep(cfg.Server.WorkDir(), staleWorkspaceAge, logger)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	dispatcher, err := compile.New(compile.Config{
		WorkDir:        cfg.Server.WorkDir(),
		MaxUploadSize:  cfg.Server.MaxUploadSize,
		BackendTimeout: cfg.Renderer.Timeout,
		Renderer:       deps.Renderer,
		Converter:      deps.Office,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	materializer, err := cache.New(cache.Config{
		Dir:       cfg.Server.CacheDir(),
		Converter: deps.Office,
		Compiler:  dispatcher,
		Metrics:   m,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	gw := &Gateway{
		config:       cfg,
		renderer:     deps.Renderer,
		office:       deps.Office,
		store:        deps.Store,
		verifier:     deps.Verifier,
		dispatcher:   dispatcher,
		materializer: materializer,
		pool:         pool.New(cfg.Pool.Min, cfg.Pool.Max, cfg.Pool.IdleTimeout),
		metrics:      m,
		logger:       logger,
	}
	m.RegisterPool(gw.pool)

	mux := http.NewServeMux()
	gw.registerRoutes(mux)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           gw.observe(mux),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       cfg.Pool.IdleTimeout,
	}

	return gw, nil
}

// Handler returns the gateway's root HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// setupTCPListener creates the standard TCP listener.
func (g *Gateway) setupTCPListener() (net.Listener, error) {
	g.logger.Info("starting gateway", "http_addr", g.httpServer.Addr)

	ln, err := net.Listen("tcp", g.httpServer.Addr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// setupListener creates the listener based on configuration (Tailscale or TCP).
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		return g.setupTailscaleListener(ctx)
	}
	return g.setupTCPListener()
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "document-gateway", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListener starts a tsnet node and listens on port 80 of the tailnet.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}

	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", tsCfg.Hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)

	ln, err := g.tsnetServer.Listen("tcp", ":80")
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale port: %w", err)
	}
	return ln, nil
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown gracefully stops the HTTP server and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	g.pool.Close()

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	if g.store != nil {
		errs = appendCloseError(errs, "store close", g.store.Close())
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the render service answers its health probe.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := g.renderer.Ping(ctx); err != nil {
		g.logger.Debug("readiness probe failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("renderer unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
