// ABOUTME: Tests for the failure taxonomy and the status-code classifier.
// ABOUTME: Covers kind recovery through wrap chains, the status table and envelope writes.

package fault

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClassify_StatusTable(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"bad input", New(BadInput, "unreadable archive"), http.StatusBadRequest, "unreadable archive"},
		{"compilation failed", New(CompilationFailed, "unknown variable x"), http.StatusUnprocessableEntity, "unknown variable x"},
		{"unsupported format", New(UnsupportedFormat, "format \"xyz\" is not supported"), http.StatusNotImplemented, "format \"xyz\" is not supported"},
		{"backend unavailable", New(BackendUnavailable, "renderer down"), http.StatusServiceUnavailable, "renderer down"},
		{"generic tagged", New(Generic, "boom"), http.StatusInternalServerError, "boom"},
		{"plain error", errors.New("disk full"), http.StatusInternalServerError, "disk full"},
		{"nil error", nil, http.StatusInternalServerError, "null"},
		{"empty message", &Error{Kind: BadInput}, http.StatusBadRequest, "null"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := Classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.msg, msg)
			assert.NotEmpty(t, msg)
		})
	}
}

func TestKindOf_ThroughWrapChain(t *testing.T) {
	base := New(CompilationFailed, "bad loop")
	wrapped := fmt.Errorf("rendering: %w", base)

	assert.Equal(t, CompilationFailed, KindOf(wrapped))
	assert.True(t, Is(wrapped, CompilationFailed))
	assert.False(t, Is(wrapped, BadInput))
	assert.Equal(t, Generic, KindOf(errors.New("plain")))
	assert.False(t, Is(nil, Generic))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(BadInput, nil, "ignored"))

	cause := io.ErrUnexpectedEOF
	err := Wrap(Disconnected, cause, "client disconnected")
	assert.True(t, IsDisconnected(err))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, "client disconnected: unexpected EOF", err.Error())
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "bad_input", BadInput.String())
	assert.Equal(t, "backend_unavailable", BackendUnavailable.String())
	assert.Equal(t, "kind(42)", Kind(42).String())
}

func TestWrite_PlainTextEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	rec.Header().Set("Content-Disposition", "attachment")

	Write(rec, New(UnsupportedFormat, "format \"abc\" is not supported"), discardLogger())

	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Equal(t, TextContentType, rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, `format "abc" is not supported`, rec.Body.String())
}

type brokenWriter struct {
	header http.Header
	status int
}

func (b *brokenWriter) Header() http.Header       { return b.header }
func (b *brokenWriter) WriteHeader(status int)    { b.status = status }
func (b *brokenWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestWrite_SwallowsSecondaryFailure(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	w := &brokenWriter{header: http.Header{}}

	require.NotPanics(t, func() {
		Write(w, New(BadInput, "nope"), logger)
	})
	assert.Equal(t, http.StatusBadRequest, w.status)
	assert.Contains(t, logs.String(), "couldn't send the error response")
}
