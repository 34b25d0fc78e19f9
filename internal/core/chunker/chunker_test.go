package chunker

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplit_EmptyInput(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\n\n"} {
		if got := Split(in, DefaultConfig()); len(got) != 0 {
			t.Errorf("Split(%q) = %v, want no chunks", in, got)
		}
	}
	if got := Chunks(nil, DefaultConfig()); len(got) != 0 {
		t.Errorf("Chunks(nil) = %v", got)
	}
}

func TestSplit_SmallTextIsOneChunk(t *testing.T) {
	got := Split("Revenue grew 12% to $90.2 billion.", DefaultConfig())
	if len(got) != 1 || got[0] != "Revenue grew 12% to $90.2 billion." {
		t.Fatalf("got %q", got)
	}
}

func TestSplit_LengthBound(t *testing.T) {
	tests := []struct {
		name string
		text string
		cfg  Config
	}{
		{"sentences", strings.Repeat("The quick brown fox jumps over the lazy dog. ", 300), Config{ChunkSize: 500, ChunkOverlap: 50}},
		{"paragraphs", strings.Repeat("Operating income rose sharply in the quarter.\n\n", 120), DefaultConfig()},
		{"no separators", strings.Repeat("x", 4000), Config{ChunkSize: 300, ChunkOverlap: 40}},
		{"multibyte", strings.Repeat("收入增长。 ", 900), Config{ChunkSize: 200, ChunkOverlap: 20}},
		{"one long word among short", "short " + strings.Repeat("y", 1200) + " tail", Config{ChunkSize: 100, ChunkOverlap: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := Split(tt.text, tt.cfg)
			if len(chunks) < 2 {
				t.Fatalf("expected the text to be split, got %d chunk(s)", len(chunks))
			}
			for i, c := range chunks {
				if n := utf8.RuneCountInString(c); n > tt.cfg.ChunkSize+tt.cfg.ChunkOverlap {
					t.Errorf("chunk %d has %d runes, bound is %d", i, n, tt.cfg.ChunkSize+tt.cfg.ChunkOverlap)
				}
			}
		})
	}
}

func TestSplit_Overlap(t *testing.T) {
	var words []string
	for i := 0; i < 200; i++ {
		words = append(words, fmt.Sprintf("w%03d", i))
	}
	chunks := Split(strings.Join(words, " "), Config{ChunkSize: 100, ChunkOverlap: 30})
	if len(chunks) < 3 {
		t.Fatalf("got %d chunks", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		first := strings.Fields(chunks[i])[0]
		if !strings.Contains(chunks[i-1], first) {
			t.Errorf("chunk %d starts with %q, which is not carried from chunk %d", i, first, i-1)
		}
	}
}

func TestSplit_PreservesAllText(t *testing.T) {
	text := "Alpha paragraph one.\n\nBeta paragraph two is a little longer.\n\nGamma three."
	chunks := Split(text, Config{ChunkSize: 40, ChunkOverlap: 0})
	joined := strings.Join(chunks, " ")
	for _, w := range strings.Fields(text) {
		if !strings.Contains(joined, w) {
			t.Errorf("word %q lost", w)
		}
	}
}

func TestTrail(t *testing.T) {
	var tr Trail
	if tr.Path() != "" || tr.Current() != "" {
		t.Fatal("zero trail should be empty")
	}
	steps := []struct {
		level int
		title string
		want  string
	}{
		{1, "Results", "Results"},
		{2, "Revenue", "Results > Revenue"},
		{3, "Cloud", "Results > Revenue > Cloud"},
		{4, "Workspace", "Results > Revenue > Workspace"},
		{2, "Costs", "Results > Costs"},
		{1, "Outlook", "Outlook"},
		{3, "Capex", "Outlook > Capex"},
	}
	for _, s := range steps {
		before := tr.Path()
		next := tr.Push(s.level, s.title)
		if tr.Path() != before {
			t.Fatalf("Push mutated receiver: %q -> %q", before, tr.Path())
		}
		tr = next
		if tr.Path() != s.want {
			t.Errorf("after h%d %q: path %q, want %q", s.level, s.title, tr.Path(), s.want)
		}
		if tr.Current() != s.title {
			t.Errorf("Current = %q, want %q", tr.Current(), s.title)
		}
	}
}

func TestSections(t *testing.T) {
	blocks := []Block{
		{Text: "Cover note."},
		{Level: 1, Text: "Q1 Results"},
		{Text: "Revenue was $90.2 billion."},
		{Text: "Up 12%."},
		{Level: 2, Text: "Empty section"},
		{Level: 2, Text: "Segments"},
		{Text: "Cloud grew 28%."},
	}
	got := Sections(blocks)
	want := []Section{
		{HeaderPath: "Document Start", Text: "Cover note."},
		{HeaderPath: "Q1 Results", Text: "Revenue was $90.2 billion.\n\nUp 12%."},
		{HeaderPath: "Q1 Results > Segments", Text: "Cloud grew 28%."},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d sections %+v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("section %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestChunks_IndexesAndPaths(t *testing.T) {
	sections := []Section{
		{HeaderPath: "A", Text: strings.Repeat("alpha beta gamma. ", 30)},
		{HeaderPath: "A > B", Text: "short"},
	}
	chunks := Chunks(sections, Config{ChunkSize: 200, ChunkOverlap: 20})
	if len(chunks) < 3 {
		t.Fatalf("got %d chunks", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
	}
	last := chunks[len(chunks)-1]
	if last.HeaderPath != "A > B" || last.Text != "short" {
		t.Errorf("last chunk = %+v", last)
	}
}

func TestHeadingTitleNormalisesTrail(t *testing.T) {
	tr := Trail{}.Push(1, "  Revenue\nGrowth ").Push(2, "Cloud\t\tSegment")
	if got, want := tr.Path(), "Revenue Growth > Cloud Segment"; got != want {
		t.Errorf("Path = %q, want %q", got, want)
	}
	got := Sections([]Block{{Level: 2, Text: "Revenue\r\nGrowth"}, {Text: "Up 12%."}, {Level: 1, Text: " \n "}, {Text: "More."}})
	if len(got) != 1 || got[0].HeaderPath != "Revenue Growth" || got[0].Text != "Up 12%.\n\nMore." {
		t.Errorf("Sections = %+v", got)
	}
}

func TestMarkdownSections(t *testing.T) {
	src := "Cover note.\r\n\r\n" +
		"# Q1 Results\n" +
		"Revenue was $90.2 billion.\n\n" +
		"## Segments ##\n" +
		"Cloud grew 28%.\n" +
		"```\n" +
		"# not a heading\n" +
		"\n" +
		"## nor this\n" +
		"```\n\n" +
		"#### Deep note\n\n" +
		"#hashtag line\n" +
		"### Outlook\n" +
		"Capex rises.\n"
	got := MarkdownSections(src)
	want := []Section{
		{HeaderPath: "Document Start", Text: "Cover note."},
		{HeaderPath: "Q1 Results", Text: "Revenue was $90.2 billion."},
		{HeaderPath: "Q1 Results > Segments", Text: "Cloud grew 28%.\n```\n# not a heading\n\n## nor this\n```\n\n#### Deep note\n\n#hashtag line"},
		{HeaderPath: "Q1 Results > Segments > Outlook", Text: "Capex rises."},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d sections %+v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("section %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestMarkdownBlocks_Headings(t *testing.T) {
	tests := []struct {
		line  string
		level int
		title string
	}{
		{"# Results", 1, "Results"},
		{"   ## Indented", 2, "Indented"},
		{"### Closed ###", 3, "Closed"},
		{"## C#", 2, "C#"},
		{"#\tTabbed", 1, "Tabbed"},
	}
	for _, tt := range tests {
		got := MarkdownBlocks(tt.line)
		if len(got) != 1 || got[0].Level != tt.level || got[0].Text != tt.title {
			t.Errorf("MarkdownBlocks(%q) = %+v, want h%d %q", tt.line, got, tt.level, tt.title)
		}
	}
	for _, line := range []string{"    # code indent", "#NoSpace", "#### too deep", "~~~\n# fenced\n~~~"} {
		for _, b := range MarkdownBlocks(line) {
			if b.Level != 0 {
				t.Errorf("MarkdownBlocks(%q) produced heading %+v", line, b)
			}
		}
	}
}
