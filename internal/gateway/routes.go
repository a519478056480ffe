// ABOUTME: HTTP route table and handlers for the seven document operations
// ABOUTME: Demo routes collapse failures to 404; compile and vars classify them

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"

	"github.com/2389/document-gateway/internal/auth"
	"github.com/2389/document-gateway/internal/cache"
	"github.com/2389/document-gateway/internal/compile"
	"github.com/2389/document-gateway/internal/fault"
	"github.com/2389/document-gateway/internal/resources"
	"github.com/2389/document-gateway/internal/store"
	"github.com/2389/document-gateway/internal/transfer"
)

// Downloadable file names of the bundled documents.
const (
	howItWorksName = "how.it.works.pdf"
	examplePDFName = "example.pdf"
	exampleODTName = "example.odt"

	pdfContentType = "application/pdf"
	odtContentType = "application/vnd.oasis.opendocument.text"
	htmlType       = "text/html; charset=UTF-8"
	jsonType       = "application/json; charset=UTF-8"
)

// statusClientClosed is recorded in the audit log when the caller hung up.
const statusClientClosed = 499

func (g *Gateway) registerRoutes(mux *http.ServeMux) {
	authed := auth.HTTPAuthMiddleware(g.verifier, g.logger)

	route := func(pattern string, h http.Handler) {
		mux.Handle(pattern, g.pooled(h))
	}

	route("GET /api", gzhttp.GzipHandler(http.HandlerFunc(g.handleInfo)))
	route("GET /{$}", gzhttp.GzipHandler(http.HandlerFunc(g.handleInfo)))
	route("GET /how-it-works", http.HandlerFunc(g.handleHowItWorks))
	route("GET /example", http.HandlerFunc(g.handleExample))
	route("POST /compile", authed(http.HandlerFunc(g.handleCompile)))
	route("GET /extension", http.HandlerFunc(g.handleExtension))
	route("POST /vars", authed(gzhttp.GzipHandler(http.HandlerFunc(g.handleVars))))

	route("GET /health", http.HandlerFunc(g.handleHealth))
	route("GET /health/ready", http.HandlerFunc(g.handleReady))
	route("GET /api/stats", gzhttp.GzipHandler(http.HandlerFunc(g.handleStats)))

	if g.metrics != nil {
		route("GET "+g.config.Metrics.Path, g.metrics.Handler())
	}
	if dir := g.config.Server.StaticDir; dir != "" {
		route("GET /static/", http.StripPrefix("/static/", staticServer(dir)))
	}
}

func (g *Gateway) handleInfo(w http.ResponseWriter, r *http.Request) {
	page, err := resources.CapabilityPage()
	if err != nil {
		g.notFound(w, r, err)
		return
	}
	w.Header().Set("Content-Type", htmlType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(page); err != nil {
		g.logTransferError(r, err)
	}
}

func (g *Gateway) handleHowItWorks(w http.ResponseWriter, r *http.Request) {
	f, err := g.materializer.Materialize(r.Context(), cache.HowItWorks)
	if err != nil {
		g.notFound(w, r, err)
		return
	}
	g.serveDocument(w, r, f, pdfContentType, howItWorksName, r.URL.Query().Has("inline"))
}

func (g *Gateway) handleExample(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Has("raw") {
		f, err := g.materializer.Raw(cache.Example)
		if err != nil {
			g.notFound(w, r, err)
			return
		}
		g.serveDocument(w, r, f, odtContentType, exampleODTName, q.Has("inline"))
		return
	}

	f, err := g.materializer.Materialize(r.Context(), cache.Example)
	if err != nil {
		g.notFound(w, r, err)
		return
	}
	g.serveDocument(w, r, f, pdfContentType, examplePDFName, q.Has("inline"))
}

func (g *Gateway) handleExtension(w http.ResponseWriter, r *http.Request) {
	ext, err := g.office.Extension(r.URL.Query().Get("os"))
	if err != nil {
		g.notFound(w, r, err)
		return
	}

	h := w.Header()
	h.Set("Content-Type", ext.ContentType)
	h.Set("Content-Disposition", contentDisposition(false, ext.FileName))
	if st, ok := ext.Body.(interface{ Stat() (fs.FileInfo, error) }); ok {
		if info, err := st.Stat(); err == nil {
			h.Set("Content-Length", strconv.FormatInt(info.Size(), 10))
		}
	}
	w.WriteHeader(http.StatusOK)
	if _, err := transfer.Transfer(w, ext.Body); err != nil {
		g.logTransferError(r, err)
	}
}

func (g *Gateway) handleCompile(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := r.URL.Query()
	req := compile.Request{
		Body:        r.Body,
		ContentType: r.Header.Get("Content-Type"),
		Format:      q.Get("format"),
		EmbedErrors: q.Has("error"),
	}
	format := formatName(req.Format)

	res, err := g.dispatcher.Compile(r.Context(), req)
	if err != nil {
		g.failOperation(w, r, "compile", format, start, err)
		return
	}
	defer func() {
		if err := res.Release(); err != nil {
			g.logger.Warn("couldn't release artifact", "path", res.Path, "error", err)
		}
	}()

	f, err := res.Open()
	if err != nil {
		g.failOperation(w, r, "compile", format, start, err)
		return
	}

	h := w.Header()
	h.Set("Content-Type", res.ContentType)
	h.Set("Content-Length", strconv.FormatInt(res.Size, 10))
	w.WriteHeader(http.StatusOK)

	status := http.StatusOK
	n, err := transfer.Transfer(w, f)
	if err != nil {
		status = statusClientClosed
		if !fault.IsDisconnected(err) {
			status = http.StatusInternalServerError
		}
		g.logTransferError(r, err)
	}

	took := time.Since(start)
	g.metrics.ObserveArtifact(format, n)
	g.logger.Info("compiled document", "format", format, "bytes", n, "took_ms", took.Milliseconds())
	g.audit(r, "compile", format, status, n, start)
}

func (g *Gateway) handleVars(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req := compile.Request{
		Body:        r.Body,
		ContentType: r.Header.Get("Content-Type"),
	}

	names, err := g.dispatcher.Vars(r.Context(), req, r.URL.Query().Get("prefix"))
	if err != nil {
		g.failOperation(w, r, "vars", "", start, err)
		return
	}

	body, err := json.Marshal(names)
	if err != nil {
		g.failOperation(w, r, "vars", "", start, err)
		return
	}

	w.Header().Set("Content-Type", jsonType)
	w.WriteHeader(http.StatusOK)
	n, err := w.Write(body)
	if err != nil {
		g.logTransferError(r, err)
	}
	g.audit(r, "vars", "", http.StatusOK, int64(n), start)
}

func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	if g.store == nil {
		sendJSONError(w, http.StatusNotFound, "compilation log is disabled")
		return
	}

	var filter store.CompilationFilter
	q := r.URL.Query()
	if route := q.Get("route"); route != "" {
		filter.Route = &route
	}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			sendJSONError(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = &since
	}

	stats, err := g.store.GetCompilationStats(r.Context(), filter)
	if err != nil {
		g.logger.Error("failed to aggregate compilations", "error", err)
		sendJSONError(w, http.StatusInternalServerError, "failed to aggregate compilations")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// serveDocument streams a bundled document with download headers.
func (g *Gateway) serveDocument(w http.ResponseWriter, r *http.Request, f fs.File, contentType, fileName string, inline bool) {
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		g.notFound(w, r, err)
		return
	}

	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Disposition", contentDisposition(inline, fileName))
	h.Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.WriteHeader(http.StatusOK)

	if _, err := transfer.Transfer(w, f); err != nil {
		g.logTransferError(r, err)
	}
}

func contentDisposition(inline bool, fileName string) string {
	kind := "attachment"
	if inline {
		kind = "inline"
	}
	return fmt.Sprintf("%s; filename=%q", kind, fileName)
}

// notFound answers a demo route failure with an empty 404.
func (g *Gateway) notFound(w http.ResponseWriter, r *http.Request, err error) {
	g.logger.Debug("resource unavailable", "path", r.URL.Path, "error", err)
	w.WriteHeader(http.StatusNotFound)
}

// failOperation answers a compile or vars failure. A caller that hung up
// gets its connection dropped instead of a response.
func (g *Gateway) failOperation(w http.ResponseWriter, r *http.Request, route, format string, start time.Time, err error) {
	if fault.IsDisconnected(err) {
		g.logger.Debug("client disconnected", "path", r.URL.Path, "error", err)
		g.audit(r, route, format, statusClientClosed, 0, start)
		panic(http.ErrAbortHandler)
	}

	status, _ := fault.Classify(err)
	fault.Write(w, err, g.logger)
	g.audit(r, route, format, status, 0, start)
}

func (g *Gateway) logTransferError(r *http.Request, err error) {
	if fault.IsDisconnected(err) || transfer.PeerGone(err) {
		g.logger.Debug("client disconnected during transfer", "path", r.URL.Path, "error", err)
		return
	}
	g.logger.Warn("transfer failed", "path", r.URL.Path, "error", err)
}

// audit writes one compilation record when the audit log is enabled.
func (g *Gateway) audit(r *http.Request, route, format string, status int, n int64, start time.Time) {
	if g.store == nil {
		return
	}
	c := &store.Compilation{
		ID:         uuid.NewString(),
		Route:      route,
		Format:     format,
		Status:     status,
		Bytes:      n,
		DurationMS: time.Since(start).Milliseconds(),
		Subject:    auth.SubjectFromContext(r.Context()),
		CreatedAt:  time.Now().UTC(),
	}
	if err := g.store.SaveCompilation(context.WithoutCancel(r.Context()), c); err != nil {
		g.logger.Warn("failed to record compilation", "route", route, "error", err)
	}
}

// formatName resolves a format hint to its canonical name for logs and metrics.
func formatName(hint string) string {
	f, err := compile.LookupFormat(hint)
	if err != nil {
		return "unknown"
	}
	return f.Ext
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", jsonType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func sendJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
