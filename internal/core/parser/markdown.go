package parser

import (
	"bytes"
	"context"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/sync/errgroup"
)

// MarkdownParser handles Markdown files using goldmark with GFM tables.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(ctx context.Context, g *errgroup.Group, data []byte, filename string) (<-chan Element, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	doc := md.Parser().Parse(text.NewReader(data))

	out := make(chan Element, streamBuffer)
	g.Go(func() error {
		defer close(out)
		e := &emitter{ctx: ctx, out: out}

		for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
			if !emitMarkdownBlock(e, md, n, data) {
				return nil
			}
		}
		return nil
	})
	return out, nil
}

func emitMarkdownBlock(e *emitter, md goldmark.Markdown, n ast.Node, src []byte) bool {
	switch node := n.(type) {
	case *ast.Heading:
		if t := extractText(node, src); t != "" {
			return e.heading(node.Level, t, 0)
		}
		return true
	case *east.Table:
		var buf bytes.Buffer
		if err := md.Renderer().Render(&buf, src, node); err != nil {
			return e.failed(KindTable, 0, err)
		}
		return e.emit(Element{Kind: KindTable, HTML: strings.TrimSpace(buf.String()), Text: markdownTableText(node, src)})
	case *ast.ThematicBreak, *ast.HTMLBlock:
		return true
	}

	if t := extractText(n, src); t != "" {
		if !e.text(t, 0) {
			return false
		}
	}
	ok := true
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if img, isImg := c.(*ast.Image); isImg {
			dest := string(img.Destination)
			if strings.HasPrefix(dest, "data:") {
				if ok = e.emit(Element{Kind: KindPicture, Text: extractText(img, src), Image: dataURIImage(dest)}); !ok {
					return ast.WalkStop, nil
				}
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return ok
}

func markdownTableText(t *east.Table, src []byte) string {
	var rows [][]string
	for r := t.FirstChild(); r != nil; r = r.NextSibling() {
		var row []string
		for c := r.FirstChild(); c != nil; c = c.NextSibling() {
			row = append(row, extractText(c, src))
		}
		rows = append(rows, row)
	}
	return TableText(rows)
}

// extractText gets the text content of a goldmark AST node. Images
// contribute nothing; their alt text is carried on the picture element.
func extractText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if n.Type() == ast.TypeBlock && !n.HasChildren() {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			buf.Write(line.Value(src))
		}
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.String:
			buf.Write(t.Value)
		case *ast.CodeSpan:
			buf.WriteString(extractText(t, src))
		case *ast.Image:
		default:
			s := extractText(c, src)
			if s != "" && c.Type() == ast.TypeBlock && buf.Len() > 0 {
				buf.WriteByte('\n')
			}
			buf.WriteString(s)
		}
	}
	return strings.TrimSpace(buf.String())
}
