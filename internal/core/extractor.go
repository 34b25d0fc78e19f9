package core

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/Ledgerlens/internal/core/parser"
)

// DocumentParser streams a source document as structural elements. Errors
// returned directly mean the document could not be opened at all; element
// level problems travel inside the stream as parser.Element.Err.
type DocumentParser interface {
	Parse(ctx context.Context, g *errgroup.Group, data []byte, filename string) (<-chan parser.Element, error)
}

// ParserFactory picks a DocumentParser for a file name.
type ParserFactory func(filename string) (DocumentParser, error)
