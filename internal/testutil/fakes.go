// Package testutil provides fake backends and fixtures for gateway tests.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/2389/document-gateway/internal/fault"
	"github.com/2389/document-gateway/internal/office"
)

// FailEntry makes FakeRenderer reject a package that contains it.
const FailEntry = "FAIL"

// ZipPackage builds a zip archive from name -> content pairs.
func ZipPackage(t testing.TB, files map[string]string) []byte {
	t.Helper()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("creating zip entry %s: %v", name, err)
		}
		if _, err := io.WriteString(w, files[name]); err != nil {
			t.Fatalf("writing zip entry %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}
	return buf.Bytes()
}

// FakeRenderer renders a package into a deterministic document listing its entries.
type FakeRenderer struct {
	Names   []string
	Err     error
	PingErr error
	Delay   time.Duration

	renders atomic.Int64
	vars    atomic.Int64
}

// Render writes "ODT[entry,entry,...]" to dst.
func (r *FakeRenderer) Render(ctx context.Context, pkg string, dst io.Writer, embedErrors bool) error {
	r.renders.Add(1)
	if r.Delay > 0 {
		time.Sleep(r.Delay)
	}
	if r.Err != nil {
		return r.Err
	}

	entries, err := zipEntries(pkg)
	if err != nil {
		return fault.Wrap(fault.BadInput, err, "unreadable template archive")
	}
	for _, e := range entries {
		if e == FailEntry && !embedErrors {
			return fault.New(fault.CompilationFailed, "template error: unknown variable")
		}
	}
	_, err = fmt.Fprintf(dst, "ODT[%s]", strings.Join(entries, ","))
	return err
}

// Vars returns the configured names.
func (r *FakeRenderer) Vars(ctx context.Context, pkg string) ([]string, error) {
	r.vars.Add(1)
	if r.Err != nil {
		return nil, r.Err
	}
	return append([]string(nil), r.Names...), nil
}

// Ping returns PingErr.
func (r *FakeRenderer) Ping(ctx context.Context) error {
	return r.PingErr
}

// Renders returns how many times Render ran.
func (r *FakeRenderer) Renders() int {
	return int(r.renders.Load())
}

func zipEntries(path string) ([]string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names, nil
}

// FakeOffice converts by prefixing the source bytes with the target format,
// and serves extensions from an in-memory table.
type FakeOffice struct {
	Err        error
	Delay      time.Duration
	Extensions map[string]string

	mu       sync.Mutex
	converts int
}

// Convert writes "<FORMAT>:" followed by the bytes of src into dst.
func (o *FakeOffice) Convert(ctx context.Context, src, dst, format string) error {
	o.mu.Lock()
	o.converts++
	o.mu.Unlock()

	if o.Delay > 0 {
		time.Sleep(o.Delay)
	}
	if o.Err != nil {
		return o.Err
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	out := append([]byte(strings.ToUpper(format)+":"), data...)
	return os.WriteFile(dst, out, 0o600)
}

// Extension returns the installer registered for osName.
func (o *FakeOffice) Extension(osName string) (*office.Extension, error) {
	body, ok := o.Extensions[osName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", office.ErrUnknownOS, osName)
	}
	return &office.Extension{
		FileName:    "gateway-" + osName + ".oxt",
		ContentType: "application/vnd.openofficeorg.extension",
		OS:          osName,
		Body:        io.NopCloser(strings.NewReader(body)),
	}, nil
}

// Converts returns how many times Convert ran.
func (o *FakeOffice) Converts() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.converts
}
