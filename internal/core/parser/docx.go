package parser

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fumiama/go-docx"
	"golang.org/x/sync/errgroup"
)

// DOCXParser handles .docx files.
type DOCXParser struct{}

func (p *DOCXParser) Parse(ctx context.Context, g *errgroup.Group, data []byte, filename string) (<-chan Element, error) {
	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parse docx %s: %w", filename, err)
	}

	out := make(chan Element, streamBuffer)
	g.Go(func() error {
		defer close(out)
		e := &emitter{ctx: ctx, out: out}

		for _, item := range doc.Document.Body.Items {
			ok := true
			switch it := item.(type) {
			case *docx.Paragraph:
				t := docxParagraphText(it)
				if t == "" {
					continue
				}
				if level := docxHeadingLevel(it); level > 0 {
					ok = e.heading(level, t, 0)
				} else {
					ok = e.text(t, 0)
				}
			case *docx.Table:
				ok = e.table(docxTableRows(it), 0)
			}
			if !ok {
				return nil
			}
		}
		return nil
	})
	return out, nil
}

// docxHeadingLevel reads "Heading N" and "Title" paragraph styles.
func docxHeadingLevel(para *docx.Paragraph) int {
	if para.Properties == nil || para.Properties.Style == nil {
		return 0
	}
	style := strings.ToLower(strings.ReplaceAll(para.Properties.Style.Val, " ", ""))
	if style == "title" {
		return 1
	}
	if rest, ok := strings.CutPrefix(style, "heading"); ok {
		if n, err := strconv.Atoi(rest); err == nil && n >= 1 && n <= 9 {
			return n
		}
	}
	return 0
}

func docxParagraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		switch c := child.(type) {
		case *docx.Run:
			docxRunText(&buf, c)
		case *docx.Hyperlink:
			docxRunText(&buf, &c.Run)
		}
	}
	return strings.TrimSpace(buf.String())
}

func docxRunText(buf *strings.Builder, run *docx.Run) {
	for _, rc := range run.Children {
		switch t := rc.(type) {
		case *docx.Text:
			buf.WriteString(t.Text)
		case *docx.Tab:
			buf.WriteByte('\t')
		case *docx.BarterRabbet:
			buf.WriteByte('\n')
		}
	}
}

func docxTableRows(t *docx.Table) [][]string {
	rows := make([][]string, 0, len(t.TableRows))
	for _, r := range t.TableRows {
		row := make([]string, 0, len(r.TableCells))
		for _, c := range r.TableCells {
			parts := make([]string, 0, len(c.Paragraphs))
			for _, p := range c.Paragraphs {
				if s := docxParagraphText(p); s != "" {
					parts = append(parts, s)
				}
			}
			row = append(row, strings.Join(parts, " "))
		}
		rows = append(rows, row)
	}
	return rows
}
