// ABOUTME: Target formats the gateway can produce, with their MIME types
// ABOUTME: Resolves the caller's format hint into a known format

package compile

import (
	"strings"

	"github.com/2389/document-gateway/internal/fault"
)

// Format is a target document format.
type Format struct {
	Ext         string
	ContentType string
}

// DefaultFormat is used when the caller sends no format hint.
const DefaultFormat = "pdf"

var formats = map[string]Format{
	"pdf":  {Ext: "pdf", ContentType: "application/pdf"},
	"odt":  {Ext: "odt", ContentType: "application/vnd.oasis.opendocument.text"},
	"ods":  {Ext: "ods", ContentType: "application/vnd.oasis.opendocument.spreadsheet"},
	"docx": {Ext: "docx", ContentType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
	"doc":  {Ext: "doc", ContentType: "application/msword"},
	"xlsx": {Ext: "xlsx", ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
	"rtf":  {Ext: "rtf", ContentType: "application/rtf"},
	"txt":  {Ext: "txt", ContentType: "text/plain; charset=UTF-8"},
	"html": {Ext: "html", ContentType: "text/html; charset=UTF-8"},
	"png":  {Ext: "png", ContentType: "image/png"},
}

// LookupFormat resolves a format hint such as "pdf", "PDF" or ".pdf".
// An empty hint selects DefaultFormat.
func LookupFormat(hint string) (Format, error) {
	key := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(hint), "."))
	if key == "" {
		key = DefaultFormat
	}
	f, ok := formats[key]
	if !ok {
		return Format{}, fault.Newf(fault.UnsupportedFormat, "format %q is not supported", hint)
	}
	return f, nil
}
