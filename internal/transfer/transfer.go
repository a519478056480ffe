// ABOUTME: Copies a source stream to a destination and closes both on every path
// ABOUTME: Separates a peer hanging up mid-copy from genuine I/O failures

// Package transfer streams bytes from a source to a destination.
//
// Transfer copies everything, then finishes in a fixed order: finish read,
// flush write, close write, close read. Both ends are closed whatever happens.
// When the copy fails because the remote peer went away, the returned error
// carries fault.Disconnected so handlers can drop it instead of classifying it.
package transfer

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/2389/document-gateway/internal/fault"
)

// Transfer copies src into dst and closes both ends.
// It returns the number of bytes written to dst.
func Transfer(dst io.Writer, src io.Reader) (int64, error) {
	n, err := io.Copy(dst, src)

	if ferr := flush(dst); err == nil {
		err = ferr
	}
	if c, ok := dst.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	if c, ok := src.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}

	if err != nil && PeerGone(err) {
		return n, fault.Wrap(fault.Disconnected, err, "client disconnected")
	}
	return n, err
}

// flush pushes buffered bytes of dst towards their destination.
// Response writers that cannot flush are not an error.
func flush(dst io.Writer) error {
	switch w := dst.(type) {
	case http.ResponseWriter:
		err := http.NewResponseController(w).Flush()
		if errors.Is(err, http.ErrNotSupported) {
			return nil
		}
		return err
	case interface{ Flush() error }:
		return w.Flush()
	case interface{ Sync() error }:
		return w.Sync()
	default:
		return nil
	}
}

// PeerGone reports whether err means the remote end of a connection went away:
// a reset or broken pipe while writing, an aborted request body, or a
// canceled request context.
func PeerGone(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, http.ErrAbortHandler) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	// http2 reports these without an exported sentinel.
	msg := err.Error()
	return strings.Contains(msg, "client disconnected") ||
		strings.Contains(msg, "stream closed") ||
		strings.Contains(msg, "connection reset by peer")
}
