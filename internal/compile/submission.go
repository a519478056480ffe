// ABOUTME: Spools a template submission into a workspace and validates it
// ABOUTME: Accepts raw zip bodies and multipart/form-data uploads

package compile

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"os"

	"github.com/klauspost/compress/zip"

	"github.com/2389/document-gateway/internal/artifact"
	"github.com/2389/document-gateway/internal/fault"
	"github.com/2389/document-gateway/internal/transfer"
)

const packageName = "template.zip"

// spool copies the submission into ws and returns the path of the template package.
func (d *Dispatcher) spool(ws *artifact.Workspace, req Request) (string, error) {
	if req.Body == nil {
		return "", fault.New(fault.BadInput, "empty submission")
	}

	body, err := submission(req.Body, req.ContentType)
	if err != nil {
		return "", err
	}

	path := ws.Path(packageName)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating package file: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(body, d.maxUpload+1))
	if cerr := f.Close(); err == nil && cerr != nil {
		return "", fmt.Errorf("writing package file: %w", cerr)
	}
	if err != nil {
		return "", readError(err)
	}
	if n == 0 {
		return "", fault.New(fault.BadInput, "empty submission")
	}
	if n > d.maxUpload {
		return "", fault.Newf(fault.BadInput, "submission exceeds %d bytes", d.maxUpload)
	}

	if err := validatePackage(path); err != nil {
		return "", err
	}
	return path, nil
}

// submission returns the reader carrying the template package.
// For multipart bodies it is the first part that carries a file name or is
// named "file" or "template"; other parts are skipped.
func submission(body io.Reader, contentType string) (io.Reader, error) {
	if contentType == "" {
		return body, nil
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "multipart/form-data" {
		return body, nil
	}
	boundary := params["boundary"]
	if boundary == "" {
		return nil, fault.New(fault.BadInput, "multipart submission without boundary")
	}

	mr := multipart.NewReader(body, boundary)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, fault.New(fault.BadInput, "multipart submission has no template part")
		}
		if err != nil {
			return nil, readError(err)
		}
		if part.FileName() != "" || part.FormName() == "file" || part.FormName() == "template" {
			return part, nil
		}
	}
}

// readError tags a failure reading the request body.
func readError(err error) error {
	if transfer.PeerGone(err) {
		return fault.Wrap(fault.Disconnected, err, "client disconnected")
	}
	return fault.Wrap(fault.BadInput, err, "reading submission")
}

// validatePackage checks that path is a readable, non-empty zip archive.
func validatePackage(path string) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return fault.Wrap(fault.BadInput, err, "unreadable template archive")
	}
	defer r.Close()

	if len(r.File) == 0 {
		return fault.New(fault.BadInput, "template archive is empty")
	}
	return nil
}
