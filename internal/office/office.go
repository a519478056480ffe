// ABOUTME: Headless office converter that shells out to the office binary
// ABOUTME: Each conversion gets its own profile and output directory

package office

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/2389/document-gateway/internal/fault"
)

// DefaultBinary is the office executable looked up on PATH.
const DefaultBinary = "soffice"

// Config configures an Office.
type Config struct {
	Binary        string
	ExtensionsDir string
	Timeout       time.Duration
	Logger        *slog.Logger
}

// Office runs conversions through the office binary.
type Office struct {
	binary  string
	extDir  string
	timeout time.Duration
	logger  *slog.Logger
}

// New resolves the office binary. It fails when the binary cannot be found.
func New(cfg Config) (*Office, error) {
	binary := cfg.Binary
	if binary == "" {
		binary = DefaultBinary
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("office binary %q not found: %w", binary, err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Office{
		binary:  path,
		extDir:  cfg.ExtensionsDir,
		timeout: cfg.Timeout,
		logger:  logger.With("component", "office"),
	}, nil
}

// Convert converts the document at src into format and installs it at dst.
// Scratch files live next to dst and are removed before returning.
func (o *Office) Convert(ctx context.Context, src, dst, format string) error {
	scratch, err := os.MkdirTemp(filepath.Dir(dst), ".convert-*")
	if err != nil {
		return fmt.Errorf("creating conversion dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	outDir := filepath.Join(scratch, "out")
	profile := filepath.Join(scratch, "profile")
	for _, dir := range []string{outDir, profile} {
		if err := os.Mkdir(dir, 0o700); err != nil {
			return fmt.Errorf("creating conversion dir: %w", err)
		}
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	args := []string{
		"--headless",
		"--norestore",
		"--nologo",
		"-env:UserInstallation=" + (&url.URL{Scheme: "file", Path: profile}).String(),
		"--convert-to", format,
		"--outdir", outDir,
		src,
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, o.binary, args...)
	cmd.WaitDelay = time.Second
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return fault.Wrap(fault.BackendUnavailable, ctx.Err(), "office conversion timed out")
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fault.Newf(fault.Generic, "office conversion failed with exit code %d: %s",
				exitErr.ExitCode(), strings.TrimSpace(string(output)))
		}
		return fault.Wrap(fault.BackendUnavailable, err, "office unavailable")
	}

	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	produced := filepath.Join(outDir, base+"."+format)
	if _, err := os.Stat(produced); err != nil {
		return fault.Newf(fault.Generic, "office produced no %s output: %s", format, bytes.TrimSpace(output))
	}
	if err := os.Rename(produced, dst); err != nil {
		return fmt.Errorf("installing converted document: %w", err)
	}

	o.logger.Debug("converted document", "format", format, "took_ms", time.Since(start).Milliseconds())
	return nil
}
