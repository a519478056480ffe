// ABOUTME: Bundled documents shipped inside the binary via go:embed
// ABOUTME: Includes the capability page source, the walkthrough and the example template

// Package resources holds the documents the gateway serves without any
// caller input: the capability page, the how-it-works walkthrough and the
// example template package.
package resources

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Paths inside the bundle.
const (
	HowItWorks      = "how.it.works.odt"
	ExampleDir      = "example"
	ExampleTemplate = "example/tmpl.odt"

	capabilityDoc = "api.md"
)

//go:embed bundle
var bundleFS embed.FS

var bundle = mustSub(bundleFS, "bundle")

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic("resources: failed to create sub filesystem: " + err.Error())
	}
	return sub
}

// FS returns the bundle rooted at its top directory.
func FS() fs.FS {
	return bundle
}

var pageTemplate = template.Must(template.New("api").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Document gateway</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 52rem; margin: 2rem auto; padding: 0 1rem; line-height: 1.5; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: .25rem .5rem; text-align: left; }
pre { background: #f4f4f4; padding: .75rem; overflow-x: auto; }
</style>
</head>
<body>
{{.}}
</body>
</html>
`))

var renderPage = sync.OnceValues(func() ([]byte, error) {
	return RenderPage(bundle, capabilityDoc)
})

// CapabilityPage returns the rendered HTML capability page.
func CapabilityPage() ([]byte, error) {
	return renderPage()
}

// RenderPage converts the Markdown document at name in fsys to a full HTML page.
func RenderPage(fsys fs.FS, name string) ([]byte, error) {
	md, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}

	var body bytes.Buffer
	converter := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := converter.Convert(md, &body); err != nil {
		return nil, fmt.Errorf("converting %s: %w", name, err)
	}

	var page bytes.Buffer
	if err := pageTemplate.Execute(&page, template.HTML(body.String())); err != nil {
		return nil, fmt.Errorf("rendering %s: %w", name, err)
	}
	return page.Bytes(), nil
}
