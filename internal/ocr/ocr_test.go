package ocr

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/recon-cli/internal/config"
)

type stubPDF struct {
	text string
	err  error
	seen []string
}

func (s *stubPDF) ExtractText(_ context.Context, path string) (string, error) {
	s.seen = append(s.seen, path)
	return s.text, s.err
}

func TestNewExtractor_Local(t *testing.T) {
	ext, err := NewExtractor(config.OCRConfig{Provider: "local", PdfToTextPath: "/usr/bin/pdftotext"})
	require.NoError(t, err)
	require.IsType(t, &Document{}, ext)
	assert.Equal(t, "/usr/bin/pdftotext", ext.(*Document).pdf.(*PdfToText).binPath)
}

func TestNewExtractor_LocalDefault(t *testing.T) {
	ext, err := NewExtractor(config.OCRConfig{})
	require.NoError(t, err)
	assert.IsType(t, &PdfToText{}, ext.(*Document).pdf)
}

func TestNewExtractor_TextOnly(t *testing.T) {
	ext, err := NewExtractor(config.OCRConfig{Provider: "text"})
	require.NoError(t, err)

	_, err = ext.ExtractText(context.Background(), "contract.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no pdf extractor")
}

func TestNewExtractor_UnknownProvider(t *testing.T) {
	_, err := NewExtractor(config.OCRConfig{Provider: "mistral"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown provider "mistral"`)
}

func TestPdfToText_BinPath(t *testing.T) {
	p := NewPdfToText("")
	assert.Equal(t, "pdftotext", p.binPath)

	p = NewPdfToText("/custom/pdftotext")
	assert.Equal(t, "/custom/pdftotext", p.binPath)
}

func TestPdfToText_MissingBinary(t *testing.T) {
	p := NewPdfToText(filepath.Join(t.TempDir(), "no-such-pdftotext"))
	_, err := p.ExtractText(context.Background(), "x.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdftotext failed")
}

func TestDocument_Routing(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "terms.TXT")
	require.NoError(t, os.WriteFile(txt, []byte("€80 per hour"), 0o644))

	pdf := &stubPDF{text: "annual fee of $120,000"}
	doc := NewDocument(pdf)

	got, err := doc.ExtractText(context.Background(), txt)
	require.NoError(t, err)
	assert.Equal(t, "€80 per hour", got)
	assert.Empty(t, pdf.seen)

	got, err = doc.ExtractText(context.Background(), filepath.Join(dir, "msa.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "annual fee of $120,000", got)
	assert.Len(t, pdf.seen, 1)

	_, err = doc.ExtractText(context.Background(), filepath.Join(dir, "notes.docx"))
	assert.Error(t, err)

	_, err = doc.ExtractText(context.Background(), filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("a/b/MSA.PDF"))
	assert.True(t, Supported("terms.txt"))
	assert.False(t, Supported("notes.docx"))
	assert.False(t, Supported(".DS_Store"))
}
