// ABOUTME: Tests for stream transfer ordering, closing and disconnect detection.
// ABOUTME: Uses fake readers and writers that record close calls and inject failures.

package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/document-gateway/internal/fault"
)

type event struct{ log *[]string }

func (e event) add(s string) { *e.log = append(*e.log, s) }

type recordingReader struct {
	event
	r *strings.Reader
}

func (r *recordingReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if err != nil {
		r.add("read-done")
	}
	return n, err
}

func (r *recordingReader) Close() error {
	r.add("close-read")
	return nil
}

type recordingWriter struct {
	event
	buf      bytes.Buffer
	failWith error
	limit    int
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	if w.failWith != nil && w.buf.Len()+len(p) > w.limit {
		n := w.limit - w.buf.Len()
		w.buf.Write(p[:n])
		return n, w.failWith
	}
	return w.buf.Write(p)
}

func (w *recordingWriter) Flush() error {
	w.add("flush-write")
	return nil
}

func (w *recordingWriter) Close() error {
	w.add("close-write")
	return nil
}

func TestTransfer_CopiesAndClosesInOrder(t *testing.T) {
	var log []string
	src := &recordingReader{event: event{&log}, r: strings.NewReader("hello world")}
	dst := &recordingWriter{event: event{&log}}

	n, err := Transfer(dst, src)

	require.NoError(t, err)
	assert.Equal(t, int64(11), n)
	assert.Equal(t, "hello world", dst.buf.String())
	assert.Equal(t, []string{"read-done", "flush-write", "close-write", "close-read"}, log)
}

func TestTransfer_PeerDisconnectIsBenign(t *testing.T) {
	for _, cause := range []error{syscall.EPIPE, syscall.ECONNRESET, context.Canceled} {
		t.Run(cause.Error(), func(t *testing.T) {
			var log []string
			src := &recordingReader{event: event{&log}, r: strings.NewReader(strings.Repeat("x", 100))}
			dst := &recordingWriter{event: event{&log}, failWith: fmt.Errorf("write tcp: %w", cause), limit: 10}

			n, err := Transfer(dst, src)

			require.Error(t, err)
			assert.True(t, fault.IsDisconnected(err))
			assert.Equal(t, int64(10), n)
			assert.Contains(t, log, "close-write")
			assert.Contains(t, log, "close-read")
		})
	}
}

func TestTransfer_OtherFailureIsNotDisconnect(t *testing.T) {
	var log []string
	src := &recordingReader{event: event{&log}, r: strings.NewReader(strings.Repeat("x", 100))}
	dst := &recordingWriter{event: event{&log}, failWith: errors.New("no space left on device"), limit: 5}

	_, err := Transfer(dst, src)

	require.Error(t, err)
	assert.False(t, fault.IsDisconnected(err))
	assert.Contains(t, log, "close-write")
	assert.Contains(t, log, "close-read")
}

func TestTransfer_ResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()

	n, err := Transfer(rec, strings.NewReader("%PDF-1.7"))

	require.NoError(t, err)
	assert.Equal(t, int64(8), n)
	assert.Equal(t, "%PDF-1.7", rec.Body.String())
	assert.True(t, rec.Flushed)
}

func TestPeerGone(t *testing.T) {
	assert.False(t, PeerGone(nil))
	assert.False(t, PeerGone(errors.New("permission denied")))
	assert.True(t, PeerGone(fmt.Errorf("wrapped: %w", syscall.EPIPE)))
	assert.True(t, PeerGone(errors.New("http2: stream closed")))
	assert.True(t, PeerGone(errors.New("read tcp 127.0.0.1:2115: connection reset by peer")))
}
