package chunker

import "strings"

// MaxTrailDepth is the number of heading levels kept in a header path.
const MaxTrailDepth = 3

const trailSeparator = " > "

// Trail is the stack of headings in effect at a point in a document. Headings
// deeper than MaxTrailDepth replace the last slot. The zero value is empty.
type Trail struct {
	titles []string
}

// HeadingTitle collapses runs of whitespace, line breaks included, into single
// spaces.
func HeadingTitle(title string) string {
	return strings.Join(strings.Fields(title), " ")
}

// Push returns the trail after a heading at level. The title is normalised
// with HeadingTitle. The receiver is left unchanged.
func (t Trail) Push(level int, title string) Trail {
	title = HeadingTitle(title)
	if level < 1 {
		level = 1
	}
	slot := min(level, MaxTrailDepth) - 1
	slot = min(slot, len(t.titles))
	titles := make([]string, slot, slot+1)
	copy(titles, t.titles[:slot])
	return Trail{titles: append(titles, title)}
}

// Path joins the trail with " > ". An empty trail yields "".
func (t Trail) Path() string {
	return strings.Join(t.titles, trailSeparator)
}

// Current is the innermost heading, or "".
func (t Trail) Current() string {
	if len(t.titles) == 0 {
		return ""
	}
	return t.titles[len(t.titles)-1]
}

// Block is a heading (Level > 0) or a run of narrative text (Level 0).
type Block struct {
	Level int
	Text  string
}

// Section is narrative text under one header path.
type Section struct {
	HeaderPath string
	Text       string
}

// Sections groups blocks under the heading trail in effect. Text before the
// first heading is tagged "Document Start".
func Sections(blocks []Block) []Section {
	var (
		out   []Section
		trail Trail
		buf   []string
	)
	flush := func() {
		if text := strings.TrimSpace(strings.Join(buf, "\n\n")); text != "" {
			out = append(out, Section{HeaderPath: headerPathOrStart(trail.Path()), Text: text})
		}
		buf = buf[:0]
	}
	for _, b := range blocks {
		if b.Level > 0 {
			if HeadingTitle(b.Text) == "" {
				continue
			}
			flush()
			trail = trail.Push(b.Level, b.Text)
			continue
		}
		if t := strings.TrimSpace(b.Text); t != "" {
			buf = append(buf, t)
		}
	}
	flush()
	return out
}

// MarkdownSections splits raw Markdown on heading markers. See MarkdownBlocks.
func MarkdownSections(text string) []Section {
	return Sections(MarkdownBlocks(text))
}

// MarkdownBlocks scans raw Markdown for "#", "##" and "###" heading lines.
// Blank lines separate text blocks. Lines inside ``` or ~~~ fences are never
// headings and the fence keeps its blank lines.
func MarkdownBlocks(text string) []Block {
	var (
		out   []Block
		buf   []string
		fence string
	)
	flush := func() {
		if t := strings.TrimSpace(strings.Join(buf, "\n")); t != "" {
			out = append(out, Block{Text: t})
		}
		buf = buf[:0]
	}
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case fence != "":
			buf = append(buf, line)
			if closesFence(trimmed, fence) {
				fence = ""
			}
		case fenceMarker(trimmed) != "":
			fence = fenceMarker(trimmed)
			buf = append(buf, line)
		case trimmed == "":
			flush()
		default:
			if level, title, ok := atxHeading(line); ok {
				flush()
				if title != "" {
					out = append(out, Block{Level: level, Text: title})
				}
				continue
			}
			buf = append(buf, line)
		}
	}
	flush()
	return out
}

// fenceMarker returns the opening run of a code fence line, or "".
func fenceMarker(line string) string {
	for _, c := range []byte{'`', '~'} {
		n := 0
		for n < len(line) && line[n] == c {
			n++
		}
		if n >= 3 {
			return line[:n]
		}
	}
	return ""
}

func closesFence(line, fence string) bool {
	return len(line) >= len(fence) && strings.Trim(line, fence[:1]) == ""
}

// atxHeading parses "## Title ##". Up to three spaces of indent are allowed
// and the marker must be followed by a space, a tab or the end of the line.
func atxHeading(line string) (int, string, bool) {
	rest := strings.TrimLeft(line, " ")
	if len(line)-len(rest) > 3 {
		return 0, "", false
	}
	level := 0
	for level < len(rest) && rest[level] == '#' {
		level++
	}
	if level == 0 || level > MaxTrailDepth {
		return 0, "", false
	}
	rest = rest[level:]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return 0, "", false
	}
	title := strings.TrimSpace(rest)
	if stripped := strings.TrimRight(title, "#"); stripped != title && (stripped == "" || strings.HasSuffix(stripped, " ") || strings.HasSuffix(stripped, "\t")) {
		title = strings.TrimSpace(stripped)
	}
	return level, HeadingTitle(title), true
}
