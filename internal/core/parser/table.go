package parser

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// RenderTable renders rows as an HTML table. The first row becomes the
// header.
func RenderTable(rows [][]string) (string, error) {
	table := &html.Node{Type: html.ElementNode, Data: "table", DataAtom: atom.Table}
	for i, row := range rows {
		section, cellTag, cellAtom := "tbody", "td", atom.Td
		if i == 0 {
			section, cellTag, cellAtom = "thead", "th", atom.Th
		}
		parent := lastChildNamed(table, section)
		if parent == nil {
			parent = &html.Node{Type: html.ElementNode, Data: section, DataAtom: atom.Lookup([]byte(section))}
			table.AppendChild(parent)
		}
		tr := &html.Node{Type: html.ElementNode, Data: "tr", DataAtom: atom.Tr}
		for _, cell := range row {
			td := &html.Node{Type: html.ElementNode, Data: cellTag, DataAtom: cellAtom}
			td.AppendChild(&html.Node{Type: html.TextNode, Data: cell})
			tr.AppendChild(td)
		}
		parent.AppendChild(tr)
	}
	return renderNode(table)
}

func lastChildNamed(n *html.Node, name string) *html.Node {
	if c := n.LastChild; c != nil && c.Type == html.ElementNode && c.Data == name {
		return c
	}
	return nil
}

func renderNode(n *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// TableText flattens rows into pipe-separated lines.
func TableText(rows [][]string) string {
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, strings.Join(row, " | "))
	}
	return strings.Join(lines, "\n")
}

// tableRows reads the cell text of an HTML table node, row by row.
func tableRows(table *html.Node) [][]string {
	var rows [][]string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			var row []string
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
					row = append(row, textContent(c))
				}
			}
			if len(row) > 0 {
				rows = append(rows, row)
			}
			return
		}
		if n != table && n.Type == html.ElementNode && n.Data == "table" {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(table)
	return rows
}
