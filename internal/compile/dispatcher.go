// ABOUTME: Compilation dispatcher that hands template packages to the renderer
// ABOUTME: and the office converter, returning a releasable artifact

package compile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/2389/document-gateway/internal/artifact"
)

// DefaultMaxUploadSize bounds a submission when no limit is configured.
const DefaultMaxUploadSize int64 = 100 << 20

// Renderer is the template-compilation backend.
type Renderer interface {
	// Render compiles the template package at pkg into an ODT document written to dst.
	// With embedErrors the backend reports template errors inside the document.
	Render(ctx context.Context, pkg string, dst io.Writer, embedErrors bool) error
	// Vars lists the variable names referenced by the template package at pkg.
	Vars(ctx context.Context, pkg string) ([]string, error)
}

// Converter is the office-format conversion backend.
type Converter interface {
	// Convert converts the document at src into format, writing it to dst.
	Convert(ctx context.Context, src, dst, format string) error
}

// Request is a single compilation request. Body is consumed exactly once.
type Request struct {
	Body        io.Reader
	ContentType string
	Format      string
	EmbedErrors bool
}

// Config configures a Dispatcher.
type Config struct {
	WorkDir        string
	MaxUploadSize  int64
	BackendTimeout time.Duration
	Renderer       Renderer
	Converter      Converter
	Logger         *slog.Logger
}

// Dispatcher runs compilation requests against the backends.
type Dispatcher struct {
	workDir   string
	maxUpload int64
	timeout   time.Duration
	renderer  Renderer
	converter Converter
	logger    *slog.Logger
}

// New creates a Dispatcher.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Renderer == nil {
		return nil, errors.New("compile: renderer is required")
	}
	if cfg.Converter == nil {
		return nil, errors.New("compile: converter is required")
	}
	if cfg.WorkDir == "" {
		return nil, errors.New("compile: work directory is required")
	}
	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating work directory: %w", err)
	}

	maxUpload := cfg.MaxUploadSize
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		workDir:   cfg.WorkDir,
		maxUpload: maxUpload,
		timeout:   cfg.BackendTimeout,
		renderer:  cfg.Renderer,
		converter: cfg.Converter,
		logger:    logger,
	}, nil
}

// Compile renders req into the requested format. The caller owns the
// returned result and must Release it once the bytes are transferred.
func (d *Dispatcher) Compile(ctx context.Context, req Request) (res *artifact.Result, err error) {
	format, err := LookupFormat(req.Format)
	if err != nil {
		return nil, err
	}

	ws, err := artifact.NewWorkspace(d.workDir)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			d.removeWorkspace(ws)
		}
	}()

	pkg, err := d.spool(ws, req)
	if err != nil {
		return nil, err
	}

	bctx, cancel := d.backendContext(ctx)
	defer cancel()

	odt := ws.Path("document.odt")
	if err := d.render(bctx, pkg, odt, req.EmbedErrors); err != nil {
		return nil, err
	}

	target := odt
	if format.Ext != "odt" {
		target = ws.Path("document." + format.Ext)
		if err := d.converter.Convert(bctx, odt, target, format.Ext); err != nil {
			return nil, err
		}
	}

	res, err = artifact.NewResult(target, format.ContentType, ws.Remove)
	if err != nil {
		return nil, err
	}

	d.logger.Debug("compiled template", "format", format.Ext, "bytes", res.Size, "workspace", ws.Dir())
	return res, nil
}

// Vars lists the variables referenced by the submitted template package
// whose names start with prefix. An empty prefix keeps every name.
func (d *Dispatcher) Vars(ctx context.Context, req Request, prefix string) ([]string, error) {
	ws, err := artifact.NewWorkspace(d.workDir)
	if err != nil {
		return nil, err
	}
	defer d.removeWorkspace(ws)

	pkg, err := d.spool(ws, req)
	if err != nil {
		return nil, err
	}

	bctx, cancel := d.backendContext(ctx)
	defer cancel()

	names, err := d.renderer.Vars(bctx, pkg)
	if err != nil {
		return nil, err
	}

	filtered := make([]string, 0, len(names))
	for _, name := range names {
		if strings.HasPrefix(name, prefix) {
			filtered = append(filtered, name)
		}
	}
	return filtered, nil
}

func (d *Dispatcher) render(ctx context.Context, pkg, dst string, embedErrors bool) error {
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating render output: %w", err)
	}
	err = d.renderer.Render(ctx, pkg, f, embedErrors)
	if cerr := f.Close(); err == nil && cerr != nil {
		return fmt.Errorf("writing render output: %w", cerr)
	}
	return err
}

// backendContext detaches backend calls from request cancellation and
// bounds them with the backend timeout.
func (d *Dispatcher) backendContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if d.timeout <= 0 {
		return context.WithCancel(detached)
	}
	return context.WithTimeout(detached, d.timeout)
}

func (d *Dispatcher) removeWorkspace(ws *artifact.Workspace) {
	if err := ws.Remove(); err != nil {
		d.logger.Warn("couldn't remove workspace", "dir", ws.Dir(), "error", err)
	}
}
