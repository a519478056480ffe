// ABOUTME: Serves the editor extension installer for a client operating system
// ABOUTME: Installers live in per-OS directories under the extensions dir

package office

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ExtensionContentType is the MIME type of an office extension package.
const ExtensionContentType = "application/vnd.openofficeorg.extension"

var (
	// ErrUnknownOS means the requested operating system is not recognised.
	ErrUnknownOS = errors.New("unknown operating system")
	// ErrNoExtension means no installer is available for a known operating system.
	ErrNoExtension = errors.New("no extension installer available")
)

// Extension is an installer package. The caller closes Body.
type Extension struct {
	FileName    string
	ContentType string
	OS          string
	Body        io.ReadCloser
}

var osAliases = map[string]string{
	"linux":   "linux",
	"windows": "windows",
	"win":     "windows",
	"darwin":  "mac",
	"mac":     "mac",
	"macos":   "mac",
	"osx":     "mac",
}

// NormalizeOS maps an operating system name to its installer directory name.
func NormalizeOS(name string) (string, bool) {
	key, ok := osAliases[strings.ToLower(strings.TrimSpace(name))]
	return key, ok
}

// Extension opens the installer for osName.
func (o *Office) Extension(osName string) (*Extension, error) {
	key, ok := NormalizeOS(osName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOS, osName)
	}
	if o.extDir == "" {
		return nil, ErrNoExtension
	}

	dir := filepath.Join(o.extDir, key)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoExtension, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, ErrNoExtension
	}
	sort.Strings(names)

	f, err := os.Open(filepath.Join(dir, names[0]))
	if err != nil {
		return nil, fmt.Errorf("opening extension: %w", err)
	}
	return &Extension{
		FileName:    names[0],
		ContentType: ExtensionContentType,
		OS:          key,
		Body:        f,
	}, nil
}
