package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"
)

// PDFParser recovers document structure from PDF text layout: font sizes
// for headings, column gaps for tables and vertical gaps for paragraphs.
// Image XObjects become picture elements. When the file cannot be opened
// structurally and Fallback is set, Fallback handles it instead.
type PDFParser struct {
	Fallback Parser

	// HeadingRatio is the minimum size of a heading relative to body text.
	// Zero means 1.2.
	HeadingRatio float64
	// MinImageSide drops images narrower or shorter than this many pixels,
	// typically logos and bullets. Zero means 64.
	MinImageSide int
}

func (p *PDFParser) Parse(ctx context.Context, g *errgroup.Group, data []byte, filename string) (<-chan Element, error) {
	var r *pdflib.Reader
	err := safely(func() error {
		var err error
		r, err = pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
		return err
	})
	if err != nil {
		if p.Fallback != nil {
			ch, ferr := p.Fallback.Parse(ctx, g, data, filename)
			if ferr == nil {
				return ch, nil
			}
			return nil, fmt.Errorf("open pdf %s: %w (fallback: %v)", filename, err, ferr)
		}
		return nil, fmt.Errorf("open pdf %s: %w", filename, err)
	}

	ratio := p.HeadingRatio
	if ratio <= 0 {
		ratio = 1.2
	}
	minSide := p.MinImageSide
	if minSide <= 0 {
		minSide = 64
	}

	out := make(chan Element, streamBuffer)
	g.Go(func() error {
		defer close(out)
		e := &emitter{ctx: ctx, out: out}

		outline := outlineLevels(r)
		pages := make([][]line, r.NumPage())
		pageErrs := make([]error, len(pages))
		var all []line
		for i := range pages {
			pages[i], pageErrs[i] = pageLines(r, i+1)
			all = append(all, pages[i]...)
		}
		body := bodySize(all)
		levels := headingLevels(all, body, ratio)

		for i, lines := range pages {
			num := i + 1
			if pageErrs[i] != nil {
				if !e.failed(KindText, num, fmt.Errorf("page %d: %w", num, pageErrs[i])) {
					return nil
				}
				continue
			}
			for _, b := range layoutLines(lines, body, ratio, levels, outline) {
				var ok bool
				switch b.kind {
				case KindHeading:
					ok = e.heading(b.level, b.text, num)
				case KindTable:
					ok = e.table(b.rows, num)
				default:
					ok = e.text(b.text, num)
				}
				if !ok {
					return nil
				}
			}
			for _, img := range pageImages(r, num, minSide) {
				if !e.emit(img) {
					return nil
				}
			}
		}
		return nil
	})
	return out, nil
}

// safely runs fn, converting a panic from the PDF reader into an error.
func safely(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("malformed pdf: %v", rec)
		}
	}()
	return fn()
}

func pageLines(r *pdflib.Reader, num int) ([]line, error) {
	var lines []line
	err := safely(func() error {
		page := r.Page(num)
		if page.V.IsNull() {
			return nil
		}
		lines = buildLines(page.Content().Text)
		return nil
	})
	return lines, err
}

// outlineLevels flattens the bookmark tree into normalised title -> depth.
func outlineLevels(r *pdflib.Reader) map[string]int {
	levels := map[string]int{}
	var walk func(o pdflib.Outline, depth int)
	walk = func(o pdflib.Outline, depth int) {
		if depth > 0 && o.Title != "" {
			key := normalizeTitle(o.Title)
			if _, seen := levels[key]; !seen {
				levels[key] = depth
			}
		}
		for _, c := range o.Child {
			walk(c, depth+1)
		}
	}
	_ = safely(func() error {
		walk(r.Outline(), 0)
		return nil
	})
	return levels
}

func normalizeTitle(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
