// Package parser turns source documents into an ordered stream of structural
// elements: headings, text, tables and pictures.
package parser

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/Ledgerlens/internal/internalerr"
)

// Parser streams the elements of one document. Parse returns an error only
// when the document cannot be opened; the stream is fed by a goroutine in g
// and closed when the document is exhausted or ctx is cancelled.
type Parser interface {
	Parse(ctx context.Context, g *errgroup.Group, data []byte, filename string) (<-chan Element, error)
}

const streamBuffer = 32

// SupportedExtensions lists file extensions this package can handle.
var SupportedExtensions = map[string]bool{
	".pdf":      true,
	".html":     true,
	".htm":      true,
	".md":       true,
	".markdown": true,
	".docx":     true,
	".txt":      true,
	".doc":      true,
	".rtf":      true,
	".odt":      true,
	".pages":    true,
	".xml":      true,
}

// ForFile returns the parser for a file name, chosen by extension.
func ForFile(filename string) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return &PDFParser{Fallback: &FallbackParser{}}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".docx":
		return &DOCXParser{}, nil
	case ".txt":
		return &TextParser{}, nil
	}
	if SupportedExtensions[ext] {
		return &FallbackParser{}, nil
	}
	return nil, fmt.Errorf("%w: %q", internalerr.ErrUnsupportedFormat, ext)
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// MimeType maps a file name to the content type docconv and the asset store
// expect.
func MimeType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".html", ".htm":
		return "text/html"
	case ".md", ".markdown":
		return "text/markdown"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".doc":
		return "application/msword"
	case ".rtf":
		return "application/rtf"
	case ".odt":
		return "application/vnd.oasis.opendocument.text"
	case ".pages":
		return "application/vnd.apple.pages"
	case ".xml":
		return "text/xml"
	case ".png":
		return "image/png"
	}
	return "text/plain"
}

// Collect drains a parse into a slice. Intended for tests and small inputs.
func Collect(ctx context.Context, p Parser, data []byte, filename string) ([]Element, error) {
	g, gctx := errgroup.WithContext(ctx)
	ch, err := p.Parse(gctx, g, data, filename)
	if err != nil {
		return nil, err
	}
	var out []Element
	for el := range ch {
		out = append(out, el)
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}
