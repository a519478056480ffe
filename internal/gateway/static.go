// ABOUTME: Serves the optional web UI files from the configured static directory
// ABOUTME: Hashed file names are cached forever, everything else is revalidated

package gateway

import (
	"mime"
	"net/http"
	"path"
	"regexp"
	"strings"
)

// hashPattern detects bundler content hashes in file names (e.g. ".CU4W1PlC.").
var hashPattern = regexp.MustCompile(`\.[a-zA-Z0-9_-]{8,}\.`)

func containsHash(p string) bool {
	return hashPattern.MatchString(p)
}

// mimeFromExt returns the MIME type for a file extension.
func mimeFromExt(ext string) string {
	switch ext {
	case ".js", ".mjs":
		return "application/javascript"
	case ".css":
		return "text/css; charset=utf-8"
	case ".woff2":
		return "font/woff2"
	case ".svg":
		return "image/svg+xml"
	case ".map":
		return "application/json"
	default:
		if ct := mime.TypeByExtension(ext); ct != "" {
			return ct
		}
		return "application/octet-stream"
	}
}

// staticServer serves files below dir. Directory listings are refused.
// The handler expects paths relative to dir (strip /static/ before calling).
func staticServer(dir string) http.Handler {
	fileServer := http.FileServer(http.Dir(dir))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}

		if ext := strings.ToLower(path.Ext(r.URL.Path)); ext != "" {
			w.Header().Set("Content-Type", mimeFromExt(ext))
		}
		if containsHash(r.URL.Path) {
			w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		} else {
			w.Header().Set("Cache-Control", "no-cache")
		}

		fileServer.ServeHTTP(w, r)
	})
}
