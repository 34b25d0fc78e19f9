package parser

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/markdave123-py/Ledgerlens/internal/internalerr"
)

func TestForFile(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Q1-2025/alphabet-release.PDF", "*parser.PDFParser"},
		{"report.htm", "*parser.HTMLParser"},
		{"notes.md", "*parser.MarkdownParser"},
		{"deck.docx", "*parser.DOCXParser"},
		{"plain.txt", "*parser.TextParser"},
		{"legacy.rtf", "*parser.FallbackParser"},
	}
	for _, tt := range tests {
		p, err := ForFile(tt.name)
		if err != nil {
			t.Fatalf("ForFile(%q): %v", tt.name, err)
		}
		if got := typeName(p); got != tt.want {
			t.Errorf("ForFile(%q) = %s, want %s", tt.name, got, tt.want)
		}
	}

	if _, err := ForFile("image.png"); !errors.Is(err, internalerr.ErrUnsupportedFormat) {
		t.Errorf("ForFile(png) err = %v, want ErrUnsupportedFormat", err)
	}
}

func typeName(p Parser) string {
	switch p.(type) {
	case *PDFParser:
		return "*parser.PDFParser"
	case *HTMLParser:
		return "*parser.HTMLParser"
	case *MarkdownParser:
		return "*parser.MarkdownParser"
	case *DOCXParser:
		return "*parser.DOCXParser"
	case *TextParser:
		return "*parser.TextParser"
	case *FallbackParser:
		return "*parser.FallbackParser"
	}
	return "unknown"
}

func TestTextParser(t *testing.T) {
	src := "First paragraph\nstill first.\r\n\r\n\n  Second paragraph.  \n\n"
	els, err := Collect(context.Background(), &TextParser{}, []byte(src), "a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if len(els) != 2 {
		t.Fatalf("got %d elements, want 2", len(els))
	}
	if els[0].Text != "First paragraph\nstill first." || els[1].Text != "Second paragraph." {
		t.Errorf("unexpected text: %q / %q", els[0].Text, els[1].Text)
	}
	for i, el := range els {
		if el.Order != i || el.Kind != KindText {
			t.Errorf("element %d: order %d kind %s", i, el.Order, el.Kind)
		}
	}
}

func TestTextParser_MarkdownHeadings(t *testing.T) {
	src := "# Results\nRevenue grew.\n\n```\n# fenced\n```\n\n## Cloud\nUp 28%."
	els, err := Collect(context.Background(), &TextParser{}, []byte(src), "notes.txt")
	if err != nil {
		t.Fatal(err)
	}
	want := []Element{
		{Kind: KindHeading, Level: 1, Text: "Results", Order: 0},
		{Kind: KindText, Text: "Revenue grew.", Order: 1},
		{Kind: KindText, Text: "```\n# fenced\n```", Order: 2},
		{Kind: KindHeading, Level: 2, Text: "Cloud", Order: 3},
		{Kind: KindText, Text: "Up 28%.", Order: 4},
	}
	if len(els) != len(want) {
		t.Fatalf("got %d elements %+v, want %d", len(els), els, len(want))
	}
	for i, w := range want {
		if els[i].Kind != w.Kind || els[i].Level != w.Level || els[i].Text != w.Text || els[i].Order != w.Order {
			t.Errorf("element %d = %+v, want %+v", i, els[i], w)
		}
	}
}

func TestParseStopsOnCancel(t *testing.T) {
	src := strings.Repeat("para\n\n", streamBuffer*4)
	ctx, cancel := context.WithCancel(context.Background())
	els, err := Collect(ctx, &TextParser{}, []byte(src), "a.txt")
	cancel()
	if err != nil {
		t.Fatal(err)
	}
	if len(els) != streamBuffer*4 {
		t.Fatalf("uncancelled parse returned %d elements", len(els))
	}

	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	els, _ = Collect(ctx, &TextParser{}, []byte(src), "a.txt")
	if len(els) >= streamBuffer*4 {
		t.Errorf("cancelled parse still returned all %d elements", len(els))
	}
}

func TestRenderTable(t *testing.T) {
	got, err := RenderTable([][]string{{"Metric", "Q1"}, {"Revenue", "$90.2 <bn>"}})
	if err != nil {
		t.Fatal(err)
	}
	want := "<table><thead><tr><th>Metric</th><th>Q1</th></tr></thead>" +
		"<tbody><tr><td>Revenue</td><td>$90.2 &lt;bn&gt;</td></tr></tbody></table>"
	if got != want {
		t.Errorf("RenderTable:\n got %s\nwant %s", got, want)
	}
	if txt := TableText([][]string{{"a", "b"}, {"c", "d"}}); txt != "a | b\nc | d" {
		t.Errorf("TableText = %q", txt)
	}
}

func TestDecodeDataURI(t *testing.T) {
	b, err := decodeDataURI("data:text/plain;base64,aGVsbG8=")
	if err != nil || string(b) != "hello" {
		t.Errorf("base64 = %q, %v", b, err)
	}
	b, err = decodeDataURI("data:,a%20b")
	if err != nil || string(b) != "a b" {
		t.Errorf("plain = %q, %v", b, err)
	}
	if _, err := decodeDataURI("https://example.com/x.png"); !errors.Is(err, errNotDataURI) {
		t.Errorf("remote = %v", err)
	}
}
