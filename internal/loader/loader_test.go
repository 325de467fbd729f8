package loader_test

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ragbase/internal/loader"
	"github.com/xxxsen/ragbase/internal/model"
	appErr "github.com/xxxsen/ragbase/internal/pkg/errors"
)

func TestDetectFormat(t *testing.T) {
	cases := map[string]model.SourceFormat{
		"notes.txt":      model.SourceFormatText,
		"README.md":      model.SourceFormatMarkdown,
		"Paper.PDF":      model.SourceFormatPDF,
		"report.docx":    model.SourceFormatDocx,
		"a/b/c.markdown": model.SourceFormatMarkdown,
	}
	for filename, want := range cases {
		format, err := loader.DetectFormat(filename)
		require.NoError(t, err, filename)
		require.Equal(t, want, format, filename)
	}
	for _, filename := range []string{"image.png", "archive.tar.gz", "noext", "script.go"} {
		_, err := loader.DetectFormat(filename)
		require.ErrorIs(t, err, appErr.ErrUnsupportedFormat, filename)
	}
}

func TestLoadUnknownFormat(t *testing.T) {
	_, err := loader.Load([]byte("data"), model.SourceFormat("rtf"))
	require.ErrorIs(t, err, appErr.ErrUnsupportedFormat)
}

func TestTextLoader(t *testing.T) {
	out, err := loader.Load([]byte("\xef\xbb\xbfhello\r\nworld\r\n"), model.SourceFormatText)
	require.NoError(t, err)
	require.Equal(t, "hello\nworld", out)

	_, err = loader.Load([]byte{0xff, 0xfe, 0x00, 0x41}, model.SourceFormatText)
	require.ErrorIs(t, err, appErr.ErrCorruptInput)
}

func TestMarkdownLoader(t *testing.T) {
	src := "# Title\n\nFirst paragraph with *emphasis* and `code`.\n\n- item one\n- item two\n\n```\nfenced body\n```\n"
	out, err := loader.Load([]byte(src), model.SourceFormatMarkdown)
	require.NoError(t, err)
	require.Contains(t, out, "Title")
	require.Contains(t, out, "First paragraph with emphasis and code.")
	require.Contains(t, out, "item one")
	require.Contains(t, out, "fenced body")
	require.NotContains(t, out, "#")
	require.NotContains(t, out, "*")
	require.NotContains(t, out, "```")
}

func TestPDFLoaderCorruptInput(t *testing.T) {
	_, err := loader.Load([]byte("definitely not a pdf"), model.SourceFormatPDF)
	require.ErrorIs(t, err, appErr.ErrCorruptInput)
}

func TestDocxLoader(t *testing.T) {
	data := buildDocx(t, `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second</w:t></w:r><w:r><w:t xml:space="preserve"> paragraph.</w:t></w:r></w:p>
  </w:body>
</w:document>`)

	out, err := loader.Load(data, model.SourceFormatDocx)
	require.NoError(t, err)
	require.Equal(t, "First paragraph.\n\nSecond paragraph.", out)
}

func TestDocxLoaderCorruptInput(t *testing.T) {
	_, err := loader.Load([]byte("not a zip container"), model.SourceFormatDocx)
	require.ErrorIs(t, err, appErr.ErrCorruptInput)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/other.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte("<x/>"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = loader.Load(buf.Bytes(), model.SourceFormatDocx)
	require.ErrorIs(t, err, appErr.ErrCorruptInput)
}

func buildDocx(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}
