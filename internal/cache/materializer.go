// ABOUTME: Lazily derives bundled documents into the cache directory
// ABOUTME: Collapses concurrent derivations and installs files by rename

package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"golang.org/x/sync/singleflight"

	"github.com/2389/document-gateway/internal/artifact"
	"github.com/2389/document-gateway/internal/compile"
	"github.com/2389/document-gateway/internal/metrics"
	"github.com/2389/document-gateway/internal/resources"
	"github.com/2389/document-gateway/internal/transfer"
)

// Resource names.
const (
	HowItWorks = "how-it-works"
	Example    = "example"
)

// ErrNoResource means the name is unknown or the bundle has nothing to derive it from.
var ErrNoResource = errors.New("no such resource")

const (
	howItWorksFile = "how.it.works.pdf"
	exampleFile    = "example.pdf"
	tempPattern    = ".tmp-*"
)

// Compiler compiles a template package. *compile.Dispatcher satisfies it.
type Compiler interface {
	Compile(ctx context.Context, req compile.Request) (*artifact.Result, error)
}

// Config configures a Materializer.
type Config struct {
	Dir       string
	Source    fs.FS
	Converter compile.Converter
	Compiler  Compiler
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Materializer serves bundled documents from the cache directory, deriving them on first use.
type Materializer struct {
	dir       string
	src       fs.FS
	converter compile.Converter
	compiler  Compiler
	group     singleflight.Group
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates a Materializer. Source defaults to the embedded bundle.
func New(cfg Config) (*Materializer, error) {
	if cfg.Dir == "" {
		return nil, errors.New("cache: directory is required")
	}
	if cfg.Converter == nil || cfg.Compiler == nil {
		return nil, errors.New("cache: converter and compiler are required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	src := cfg.Source
	if src == nil {
		src = resources.FS()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Materializer{
		dir:       cfg.Dir,
		src:       src,
		converter: cfg.Converter,
		compiler:  cfg.Compiler,
		metrics:   cfg.Metrics,
		logger:    logger.With("component", "cache"),
	}, nil
}

// Materialize opens the cached document called name, deriving it first if needed.
// The caller closes the returned file.
func (m *Materializer) Materialize(ctx context.Context, name string) (fs.File, error) {
	file, derive, ok := m.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoResource, name)
	}
	slot := filepath.Join(m.dir, file)

	if f, err := os.Open(slot); err == nil {
		m.metrics.ObserveMaterialize(name, metrics.ResultHit)
		return f, nil
	}

	// Derivation is shared by every waiting caller, so it must not die with
	// the first caller's request.
	dctx := context.WithoutCancel(ctx)
	_, err, shared := m.group.Do(name, func() (any, error) {
		if _, err := os.Stat(slot); err == nil {
			return nil, nil
		}
		return nil, derive(dctx, slot)
	})
	if err != nil {
		m.metrics.ObserveMaterialize(name, metrics.ResultError)
		return nil, err
	}
	m.metrics.ObserveMaterialize(name, metrics.ResultDerived)
	m.logger.Debug("materialized resource", "name", name, "shared", shared)

	f, err := os.Open(slot)
	if err != nil {
		return nil, fmt.Errorf("opening cached %s: %w", name, err)
	}
	return f, nil
}

// Raw opens the bundled source document called name without caching it.
func (m *Materializer) Raw(name string) (fs.File, error) {
	if name != Example {
		return nil, fmt.Errorf("%w: no raw form of %q", ErrNoResource, name)
	}
	f, err := m.src.Open(resources.ExampleTemplate)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoResource, resources.ExampleTemplate)
	}
	return f, err
}

func (m *Materializer) lookup(name string) (string, func(context.Context, string) error, bool) {
	switch name {
	case HowItWorks:
		return howItWorksFile, m.deriveHowItWorks, true
	case Example:
		return exampleFile, m.deriveExample, true
	default:
		return "", nil, false
	}
}

// deriveHowItWorks converts the bundled walkthrough to PDF.
func (m *Materializer) deriveHowItWorks(ctx context.Context, slot string) error {
	src, err := m.src.Open(resources.HowItWorks)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNoResource, resources.HowItWorks)
	}
	if err != nil {
		return fmt.Errorf("opening %s: %w", resources.HowItWorks, err)
	}

	tmp, err := os.CreateTemp(m.dir, tempPattern+".odt")
	if err != nil {
		src.Close()
		return fmt.Errorf("creating temp file: %w", err)
	}
	odt := tmp.Name()
	defer os.Remove(odt)

	if _, err := transfer.Transfer(tmp, src); err != nil {
		return fmt.Errorf("copying %s: %w", resources.HowItWorks, err)
	}

	pdf := strings.TrimSuffix(odt, ".odt") + ".pdf"
	defer os.Remove(pdf)
	if err := m.converter.Convert(ctx, odt, pdf, "pdf"); err != nil {
		return err
	}
	return install(pdf, slot)
}

// deriveExample compiles the bundled example package to PDF.
func (m *Materializer) deriveExample(ctx context.Context, slot string) error {
	pkg, err := m.zipDir(resources.ExampleDir)
	if err != nil {
		return err
	}

	res, err := m.compiler.Compile(ctx, compile.Request{Body: bytes.NewReader(pkg), Format: "pdf"})
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Release(); err != nil {
			m.logger.Warn("couldn't release example artifact", "error", err)
		}
	}()

	if err := os.Rename(res.Path, slot); err == nil {
		return nil
	}
	return m.copyInto(res, slot)
}

// copyInto installs res at slot when a rename across directories is not possible.
func (m *Materializer) copyInto(res *artifact.Result, slot string) error {
	src, err := res.Open()
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(m.dir, tempPattern)
	if err != nil {
		src.Close()
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := transfer.Transfer(tmp, src); err != nil {
		return fmt.Errorf("copying artifact: %w", err)
	}
	return install(tmp.Name(), slot)
}

// zipDir packages every file under dir in the bundle into a zip archive.
func (m *Materializer) zipDir(dir string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := 0

	err := fs.WalkDir(m.src, dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel := strings.TrimPrefix(p, dir+"/")
		w, err := zw.Create(path.Clean(rel))
		if err != nil {
			return err
		}
		f, err := m.src.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.Copy(w, f); err != nil {
			return err
		}
		files++
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoResource, dir)
	}
	if err != nil {
		return nil, fmt.Errorf("packaging %s: %w", dir, err)
	}
	if files == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrNoResource, dir)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("packaging %s: %w", dir, err)
	}
	return buf.Bytes(), nil
}

func install(tmp, slot string) error {
	if err := os.Rename(tmp, slot); err != nil {
		return fmt.Errorf("installing %s: %w", filepath.Base(slot), err)
	}
	return nil
}
