// ABOUTME: Transient, file-backed compilation artifacts with a single release step
// ABOUTME: Private per-request workspaces under the gateway's temp directory

// Package artifact owns the temporary files a request produces.
//
// A Workspace is a private directory for one request. A Result is the
// finished artifact inside a workspace; releasing the result removes the
// workspace. Release is idempotent so the owning handler can defer it
// unconditionally.
package artifact

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/document-gateway/internal/fault"
)

// Workspace is a private temp directory owned by a single request.
type Workspace struct {
	dir  string
	once sync.Once
	err  error
}

// NewWorkspace creates a fresh directory under root.
func NewWorkspace(root string) (*Workspace, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating work root: %w", err)
	}
	dir := filepath.Join(root, uuid.NewString())
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

// Dir returns the workspace directory.
func (w *Workspace) Dir() string {
	return w.dir
}

// Path returns the path of name inside the workspace.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// Remove deletes the workspace and everything in it. Only the first call has an effect.
func (w *Workspace) Remove() error {
	w.once.Do(func() {
		w.err = os.RemoveAll(w.dir)
	})
	return w.err
}

// Result is a finished artifact. Exactly one Release takes effect.
type Result struct {
	Path        string
	ContentType string
	Size        int64

	release func() error
	once    sync.Once
	err     error
}

// NewResult wraps the file at path. release runs once, on the first Release call.
// An empty or missing file is an error; release is not run in that case and
// stays the caller's responsibility.
func NewResult(path, contentType string, release func() error) (*Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("inspecting artifact: %w", err)
	}
	if info.Size() == 0 {
		return nil, fault.New(fault.Generic, "backend produced an empty document")
	}
	return &Result{
		Path:        path,
		ContentType: contentType,
		Size:        info.Size(),
		release:     release,
	}, nil
}

// Open opens the artifact for reading.
func (r *Result) Open() (*os.File, error) {
	return os.Open(r.Path)
}

// Release frees the artifact. Calls after the first return the first result.
func (r *Result) Release() error {
	r.once.Do(func() {
		if r.release != nil {
			r.err = r.release()
		}
	})
	return r.err
}

// Sweep removes workspaces under root that are older than maxAge.
// Leftovers only exist after a crash; failures are logged and ignored.
func Sweep(root string, maxAge time.Duration, logger *slog.Logger) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Debug("couldn't list work directory", "dir", root, "error", err)
		}
		return
	}

	cutoff := time.Now().Add(-maxAge)
	for _, e := range entries {
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(root, e.Name())
		if err := os.RemoveAll(path); err != nil {
			logger.Debug("couldn't remove stale workspace", "path", path, "error", err)
			continue
		}
		logger.Debug("removed stale workspace", "path", path)
	}
}
