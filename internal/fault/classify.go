// ABOUTME: Maps tagged failures to HTTP status codes and plain-text bodies
// ABOUTME: Writes error envelopes and swallows failures of the error write itself

package fault

import (
	"log/slog"
	"net/http"
	"strconv"
)

// TextContentType is the content type of every error body.
const TextContentType = "text/plain; charset=UTF-8"

// StatusOf maps a kind to its HTTP status code.
func StatusOf(kind Kind) int {
	switch kind {
	case BadInput:
		return http.StatusBadRequest // 400
	case CompilationFailed:
		return http.StatusUnprocessableEntity // 422
	case UnsupportedFormat:
		return http.StatusNotImplemented // 501
	case BackendUnavailable:
		return http.StatusServiceUnavailable // 503
	default:
		return http.StatusInternalServerError // 500
	}
}

// Classify returns the status code and message body for err.
// The message is "null" when err is nil or has an empty text.
func Classify(err error) (int, string) {
	msg := "null"
	if err != nil {
		if text := err.Error(); text != "" {
			msg = text
		}
	}
	return StatusOf(KindOf(err)), msg
}

// Write classifies err and writes it as a plain-text response.
// A failure while writing the envelope is logged and otherwise ignored.
func Write(w http.ResponseWriter, err error, logger *slog.Logger) {
	status, msg := Classify(err)

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "kind", KindOf(err).String(), "error", msg)
	} else {
		logger.Warn("request rejected", "status", status, "kind", KindOf(err).String(), "error", msg)
	}

	h := w.Header()
	h.Del("Content-Disposition")
	h.Set("Content-Type", TextContentType)
	h.Set("Content-Length", strconv.Itoa(len(msg)))
	w.WriteHeader(status)
	if _, werr := w.Write([]byte(msg)); werr != nil {
		logger.Debug("couldn't send the error response", "status", status, "error", werr)
	}
}
