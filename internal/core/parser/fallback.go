package parser

import (
	"bytes"
	"context"
	"fmt"

	"code.sajari.com/docconv"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/Ledgerlens/internal/core/chunker"
)

// FallbackParser converts any docconv-supported document to plain text and
// emits it as paragraphs. Markdown heading lines in the converted text become
// headings. No tables are recovered.
type FallbackParser struct {
	UseReadability bool
}

func (p *FallbackParser) Parse(ctx context.Context, g *errgroup.Group, data []byte, filename string) (<-chan Element, error) {
	res, err := docconv.Convert(bytes.NewReader(data), MimeType(filename), p.UseReadability)
	if err != nil {
		return nil, fmt.Errorf("docconv %s: %w", filename, err)
	}
	return streamParagraphs(ctx, g, res.Body), nil
}

// TextParser handles plain text: blank lines separate paragraphs and "#"
// to "###" lines outside code fences are headings.
type TextParser struct{}

func (p *TextParser) Parse(ctx context.Context, g *errgroup.Group, data []byte, filename string) (<-chan Element, error) {
	return streamParagraphs(ctx, g, string(data)), nil
}

func streamParagraphs(ctx context.Context, g *errgroup.Group, text string) <-chan Element {
	out := make(chan Element, streamBuffer)
	g.Go(func() error {
		defer close(out)
		e := &emitter{ctx: ctx, out: out}
		for _, b := range chunker.MarkdownBlocks(text) {
			var ok bool
			if b.Level > 0 {
				ok = e.heading(b.Level, b.Text, 0)
			} else {
				ok = e.text(b.Text, 0)
			}
			if !ok {
				return nil
			}
		}
		return nil
	})
	return out
}
