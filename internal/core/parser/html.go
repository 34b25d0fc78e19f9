package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
)

// HTMLParser handles HTML files.
type HTMLParser struct{}

func (p *HTMLParser) Parse(ctx context.Context, g *errgroup.Group, data []byte, filename string) (<-chan Element, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse html %s: %w", filename, err)
	}

	out := make(chan Element, streamBuffer)
	g.Go(func() error {
		defer close(out)
		e := &emitter{ctx: ctx, out: out}

		root := findBody(doc)
		if root == nil {
			root = doc
		}
		walkHTML(e, root)
		return nil
	})
	return out, nil
}

// walkHTML emits elements for n's subtree. It returns false once the
// consumer has gone away.
func walkHTML(e *emitter, n *html.Node) bool {
	if n.Type == html.ElementNode {
		if level := headingLevel(n.Data); level > 0 {
			if t := textContent(n); t != "" {
				return e.heading(level, t, 0)
			}
			return true
		}
		switch n.Data {
		case "script", "style", "nav", "footer", "header", "noscript":
			return true
		case "table":
			h, err := renderNode(n)
			if err != nil {
				return e.failed(KindTable, 0, err)
			}
			return e.emit(Element{Kind: KindTable, HTML: h, Text: TableText(tableRows(n))})
		case "img":
			return emitHTMLImage(e, n)
		case "p", "li", "blockquote", "pre", "figcaption", "dd", "dt":
			if t := textContent(n); t != "" {
				if !e.text(t, 0) {
					return false
				}
			}
			for _, img := range findAll(n, "img") {
				if !emitHTMLImage(e, img) {
					return false
				}
			}
			return true
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walkHTML(e, c) {
			return false
		}
	}
	return true
}

func emitHTMLImage(e *emitter, n *html.Node) bool {
	src := attr(n, "src")
	if !strings.HasPrefix(src, "data:") {
		// Remote images are not fetched.
		return true
	}
	return e.emit(Element{Kind: KindPicture, Text: attr(n, "alt"), Image: dataURIImage(src)})
}

func headingLevel(tag string) int {
	if len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6' {
		return int(tag[1] - '0')
	}
	return 0
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		if n.Type == html.ElementNode && n.Data == "br" {
			buf.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return collapseSpace(buf.String())
}

// collapseSpace squeezes runs of blanks while keeping explicit line breaks.
func collapseSpace(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func findAll(n *html.Node, tag string) []*html.Node {
	var found []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == tag {
			found = append(found, c)
		}
		found = append(found, findAll(c, tag)...)
	}
	return found
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}
