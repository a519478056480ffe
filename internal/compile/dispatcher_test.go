// ABOUTME: Tests for the compilation dispatcher using fake backends.
// ABOUTME: Covers spooling, validation, format resolution, conversion and cleanup.

package compile

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/document-gateway/internal/fault"
	"github.com/2389/document-gateway/internal/testutil"
)

func newTestDispatcher(t *testing.T, r *testutil.FakeRenderer, o *testutil.FakeOffice) (*Dispatcher, string) {
	t.Helper()
	workDir := t.TempDir()
	d, err := New(Config{
		WorkDir:        workDir,
		MaxUploadSize:  1 << 20,
		BackendTimeout: time.Minute,
		Renderer:       r,
		Converter:      o,
	})
	require.NoError(t, err)
	return d, workDir
}

func assertNoWorkspaces(t *testing.T, workDir string) {
	t.Helper()
	entries, err := os.ReadDir(workDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "workspaces should be cleaned up")
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{WorkDir: t.TempDir(), Converter: &testutil.FakeOffice{}})
	assert.Error(t, err)

	_, err = New(Config{WorkDir: t.TempDir(), Renderer: &testutil.FakeRenderer{}})
	assert.Error(t, err)
}

func TestCompile_PDF(t *testing.T) {
	office := &testutil.FakeOffice{}
	d, workDir := newTestDispatcher(t, &testutil.FakeRenderer{}, office)
	pkg := testutil.ZipPackage(t, map[string]string{"tmpl.odt": "x", "data.json": "{}"})

	res, err := d.Compile(context.Background(), Request{Body: bytes.NewReader(pkg), Format: "pdf"})
	require.NoError(t, err)

	f, err := res.Open()
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	assert.Equal(t, "PDF:ODT[data.json,tmpl.odt]", string(data))
	assert.Equal(t, "application/pdf", res.ContentType)
	assert.Equal(t, int64(len(data)), res.Size)
	assert.Equal(t, 1, office.Converts())

	require.NoError(t, res.Release())
	assertNoWorkspaces(t, workDir)
}

func TestCompile_ODTSkipsConversion(t *testing.T) {
	office := &testutil.FakeOffice{}
	d, _ := newTestDispatcher(t, &testutil.FakeRenderer{}, office)
	pkg := testutil.ZipPackage(t, map[string]string{"tmpl.odt": "x"})

	res, err := d.Compile(context.Background(), Request{Body: bytes.NewReader(pkg), Format: ".ODT"})
	require.NoError(t, err)
	defer res.Release()

	assert.Equal(t, "application/vnd.oasis.opendocument.text", res.ContentType)
	assert.Equal(t, 0, office.Converts())
}

func TestCompile_DefaultFormatIsPDF(t *testing.T) {
	d, _ := newTestDispatcher(t, &testutil.FakeRenderer{}, &testutil.FakeOffice{})
	pkg := testutil.ZipPackage(t, map[string]string{"tmpl.odt": "x"})

	res, err := d.Compile(context.Background(), Request{Body: bytes.NewReader(pkg)})
	require.NoError(t, err)
	defer res.Release()

	assert.Equal(t, "application/pdf", res.ContentType)
}

func TestCompile_Multipart(t *testing.T) {
	d, _ := newTestDispatcher(t, &testutil.FakeRenderer{}, &testutil.FakeOffice{})
	pkg := testutil.ZipPackage(t, map[string]string{"tmpl.odt": "x"})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("note", "ignored"))
	fw, err := mw.CreateFormFile("upload", "template.zip")
	require.NoError(t, err)
	_, err = fw.Write(pkg)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	res, err := d.Compile(context.Background(), Request{Body: &body, ContentType: mw.FormDataContentType(), Format: "odt"})
	require.NoError(t, err)
	defer res.Release()

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "ODT[tmpl.odt]", string(data))
}

func TestCompile_Failures(t *testing.T) {
	validPkg := func(t *testing.T) []byte {
		return testutil.ZipPackage(t, map[string]string{"tmpl.odt": "x"})
	}

	tests := []struct {
		name     string
		renderer *testutil.FakeRenderer
		office   *testutil.FakeOffice
		body     func(t *testing.T) []byte
		format   string
		kind     fault.Kind
	}{
		{
			name:     "not a zip",
			renderer: &testutil.FakeRenderer{},
			office:   &testutil.FakeOffice{},
			body:     func(*testing.T) []byte { return []byte("definitely not a zip archive") },
			kind:     fault.BadInput,
		},
		{
			name:     "empty body",
			renderer: &testutil.FakeRenderer{},
			office:   &testutil.FakeOffice{},
			body:     func(*testing.T) []byte { return nil },
			kind:     fault.BadInput,
		},
		{
			name:     "unknown format",
			renderer: &testutil.FakeRenderer{},
			office:   &testutil.FakeOffice{},
			body:     validPkg,
			format:   "xyz",
			kind:     fault.UnsupportedFormat,
		},
		{
			name:     "template error",
			renderer: &testutil.FakeRenderer{},
			office:   &testutil.FakeOffice{},
			body: func(t *testing.T) []byte {
				return testutil.ZipPackage(t, map[string]string{"tmpl.odt": "x", testutil.FailEntry: ""})
			},
			kind: fault.CompilationFailed,
		},
		{
			name:     "renderer down",
			renderer: &testutil.FakeRenderer{Err: fault.New(fault.BackendUnavailable, "renderer unavailable")},
			office:   &testutil.FakeOffice{},
			body:     validPkg,
			kind:     fault.BackendUnavailable,
		},
		{
			name:     "converter down",
			renderer: &testutil.FakeRenderer{},
			office:   &testutil.FakeOffice{Err: fault.New(fault.BackendUnavailable, "office unavailable")},
			body:     validPkg,
			kind:     fault.BackendUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, workDir := newTestDispatcher(t, tt.renderer, tt.office)

			res, err := d.Compile(context.Background(), Request{Body: bytes.NewReader(tt.body(t)), Format: tt.format})

			require.Error(t, err)
			assert.Nil(t, res)
			assert.Equal(t, tt.kind, fault.KindOf(err), "error: %v", err)
			assertNoWorkspaces(t, workDir)
		})
	}
}

func TestCompile_EmbedErrorsIsForwarded(t *testing.T) {
	d, _ := newTestDispatcher(t, &testutil.FakeRenderer{}, &testutil.FakeOffice{})
	pkg := testutil.ZipPackage(t, map[string]string{"tmpl.odt": "x", testutil.FailEntry: ""})

	res, err := d.Compile(context.Background(), Request{Body: bytes.NewReader(pkg), Format: "odt", EmbedErrors: true})
	require.NoError(t, err)
	defer res.Release()
}

func TestCompile_UploadLimit(t *testing.T) {
	d, err := New(Config{
		WorkDir:       t.TempDir(),
		MaxUploadSize: 16,
		Renderer:      &testutil.FakeRenderer{},
		Converter:     &testutil.FakeOffice{},
	})
	require.NoError(t, err)

	_, err = d.Compile(context.Background(), Request{Body: strings.NewReader(strings.Repeat("x", 64))})
	require.Error(t, err)
	assert.Equal(t, fault.BadInput, fault.KindOf(err))
	assert.Contains(t, err.Error(), "exceeds 16 bytes")
}

func TestCompile_BackendIgnoresRequestCancellation(t *testing.T) {
	d, _ := newTestDispatcher(t, &testutil.FakeRenderer{Delay: 20 * time.Millisecond}, &testutil.FakeOffice{})
	pkg := testutil.ZipPackage(t, map[string]string{"tmpl.odt": "x"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := d.Compile(ctx, Request{Body: bytes.NewReader(pkg), Format: "pdf"})
	require.NoError(t, err)
	require.NoError(t, res.Release())
}

func TestVars_FiltersByPrefix(t *testing.T) {
	renderer := &testutil.FakeRenderer{Names: []string{"a", "b", "c"}}
	d, workDir := newTestDispatcher(t, renderer, &testutil.FakeOffice{})
	pkg := testutil.ZipPackage(t, map[string]string{"tmpl.odt": "x"})

	all, err := d.Vars(context.Background(), Request{Body: bytes.NewReader(pkg)}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, all)

	some, err := d.Vars(context.Background(), Request{Body: bytes.NewReader(pkg)}, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, some)

	none, err := d.Vars(context.Background(), Request{Body: bytes.NewReader(pkg)}, "zzz")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	assertNoWorkspaces(t, workDir)
}

func TestVars_BadInput(t *testing.T) {
	d, _ := newTestDispatcher(t, &testutil.FakeRenderer{}, &testutil.FakeOffice{})

	_, err := d.Vars(context.Background(), Request{Body: strings.NewReader("nope")}, "")
	require.Error(t, err)
	assert.Equal(t, fault.BadInput, fault.KindOf(err))
}

func TestLookupFormat(t *testing.T) {
	for _, hint := range []string{"pdf", "PDF", ".pdf", " pdf ", ""} {
		f, err := LookupFormat(hint)
		require.NoError(t, err, hint)
		assert.Equal(t, "pdf", f.Ext)
	}

	_, err := LookupFormat("exe")
	require.Error(t, err)
	assert.Equal(t, fault.UnsupportedFormat, fault.KindOf(err))
}
