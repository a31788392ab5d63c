// Package ocr extracts text from contract documents.
package ocr

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/recon-cli/internal/config"
)

// Extractor extracts text content from a document file.
type Extractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(cfg config.OCRConfig) (Extractor, error) {
	switch cfg.Provider {
	case "local", "pdftotext", "":
		return NewDocument(NewPdfToText(cfg.PdfToTextPath)), nil
	case "text":
		return NewDocument(nil), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}

// Extensions lists the document types Document can read.
var Extensions = []string{".pdf", ".txt"}

// Supported reports whether path has a readable document extension.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Document routes by extension: plain text is read verbatim and PDFs go to
// the PDF extractor.
type Document struct {
	pdf Extractor
}

// NewDocument creates a Document. A nil pdf extractor rejects PDFs.
func NewDocument(pdf Extractor) *Document {
	return &Document{pdf: pdf}
}

// ExtractText returns the document's full text.
func (d *Document) ExtractText(ctx context.Context, path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		b, err := os.ReadFile(path)
		if err != nil {
			return "", eris.Wrapf(err, "ocr: read %s", path)
		}
		return string(b), nil
	case ".pdf":
		if d.pdf == nil {
			return "", eris.Errorf("ocr: no pdf extractor configured for %s", path)
		}
		return d.pdf.ExtractText(ctx, path)
	default:
		return "", eris.Errorf("ocr: unsupported document %s", path)
	}
}
