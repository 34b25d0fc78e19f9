package parser

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	pdflib "github.com/ledongthuc/pdf"
)

const (
	maxHeadingRunes = 120
	cellGapFactor   = 1.5 // horizontal gap, in font sizes, that starts a new cell
	wordGapFactor   = 0.15
	paraGapFactor   = 1.6 // vertical gap, in line heights, that ends a paragraph
	minTableRows    = 2
)

type cell struct {
	x    float64
	text string
}

// line is a run of glyphs sharing a baseline.
type line struct {
	y     float64
	size  float64
	cells []cell
}

func (l line) text() string {
	parts := make([]string, len(l.cells))
	for i, c := range l.cells {
		parts[i] = c.text
	}
	return strings.Join(parts, " ")
}

// buildLines groups positioned glyphs into lines, top of page first, and
// splits each line into cells on wide horizontal gaps.
func buildLines(glyphs []pdflib.Text) []line {
	gs := make([]pdflib.Text, 0, len(glyphs))
	for _, g := range glyphs {
		if g.S != "" {
			gs = append(gs, g)
		}
	}
	sort.SliceStable(gs, func(i, j int) bool { return gs[i].Y > gs[j].Y })

	var lines []line
	var cur []pdflib.Text
	flush := func() {
		if l, ok := assembleLine(cur); ok {
			lines = append(lines, l)
		}
		cur = cur[:0]
	}
	for _, g := range gs {
		if len(cur) > 0 && math.Abs(cur[0].Y-g.Y) > yTolerance(cur[0].FontSize, g.FontSize) {
			flush()
		}
		cur = append(cur, g)
	}
	flush()
	return lines
}

func yTolerance(a, b float64) float64 {
	return math.Max(2, 0.3*math.Max(a, b))
}

func assembleLine(gs []pdflib.Text) (line, bool) {
	if len(gs) == 0 {
		return line{}, false
	}
	sorted := append([]pdflib.Text(nil), gs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].X < sorted[j].X })

	l := line{y: sorted[0].Y}
	var b strings.Builder
	cellX := sorted[0].X
	end := sorted[0].X
	flushCell := func() {
		if t := strings.Join(strings.Fields(b.String()), " "); t != "" {
			l.cells = append(l.cells, cell{x: cellX, text: t})
		}
		b.Reset()
	}
	for i, g := range sorted {
		l.size = math.Max(l.size, g.FontSize)
		if i > 0 {
			gap := g.X - end
			switch {
			case gap > cellGapFactor*g.FontSize:
				flushCell()
				cellX = g.X
			case gap > wordGapFactor*g.FontSize:
				b.WriteByte(' ')
			}
		}
		b.WriteString(g.S)
		end = math.Max(end, g.X+g.W)
	}
	flushCell()
	return l, len(l.cells) > 0
}

func roundSize(s float64) float64 {
	return math.Round(s*2) / 2
}

// bodySize is the most common font size, weighted by characters.
func bodySize(lines []line) float64 {
	counts := map[float64]int{}
	for _, l := range lines {
		counts[roundSize(l.size)] += utf8.RuneCountInString(l.text())
	}
	best, bestN := 0.0, -1
	for size, n := range counts {
		if n > bestN || (n == bestN && size < best) {
			best, bestN = size, n
		}
	}
	return best
}

// headingLevels ranks the distinct heading-sized fonts, largest first.
func headingLevels(lines []line, body, ratio float64) map[float64]int {
	seen := map[float64]bool{}
	for _, l := range lines {
		if isHeadingSize(l, body, ratio) {
			seen[roundSize(l.size)] = true
		}
	}
	sizes := make([]float64, 0, len(seen))
	for s := range seen {
		sizes = append(sizes, s)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(sizes)))
	levels := make(map[float64]int, len(sizes))
	for i, s := range sizes {
		levels[s] = min(i+1, 6)
	}
	return levels
}

func isHeadingSize(l line, body, ratio float64) bool {
	if body <= 0 || l.size < body*ratio {
		return false
	}
	t := l.text()
	return utf8.RuneCountInString(t) <= maxHeadingRunes && strings.IndexFunc(t, unicode.IsLetter) >= 0
}

type block struct {
	kind  Kind
	level int
	text  string
	rows  [][]string
}

// layoutLines turns a page's lines into headings, tables and paragraphs.
func layoutLines(lines []line, body, ratio float64, levels map[float64]int, outline map[string]int) []block {
	var blocks []block
	var para []string
	var prev *line
	flushPara := func() {
		if len(para) > 0 {
			blocks = append(blocks, block{kind: KindText, text: strings.Join(para, " ")})
			para = nil
		}
	}

	for i := 0; i < len(lines); i++ {
		l := lines[i]

		if level := lineHeadingLevel(l, body, ratio, levels, outline); level > 0 {
			flushPara()
			last := len(blocks) - 1
			if last >= 0 && blocks[last].kind == KindHeading && blocks[last].level == level && prev != nil && !paragraphBreak(*prev, l) {
				blocks[last].text += " " + l.text()
			} else {
				blocks = append(blocks, block{kind: KindHeading, level: level, text: l.text()})
			}
			prev = &lines[i]
			continue
		}

		if j := tableRun(lines, i, body, ratio, levels, outline); j-i >= minTableRows {
			flushPara()
			rows := make([][]string, 0, j-i)
			for _, tl := range lines[i:j] {
				row := make([]string, len(tl.cells))
				for k, c := range tl.cells {
					row[k] = c.text
				}
				rows = append(rows, row)
			}
			blocks = append(blocks, block{kind: KindTable, rows: rows})
			prev = &lines[j-1]
			i = j - 1
			continue
		}

		if prev != nil && paragraphBreak(*prev, l) {
			flushPara()
		}
		para = append(para, l.text())
		prev = &lines[i]
	}
	flushPara()
	return blocks
}

func lineHeadingLevel(l line, body, ratio float64, levels map[float64]int, outline map[string]int) int {
	if isHeadingSize(l, body, ratio) {
		if lv, ok := levels[roundSize(l.size)]; ok {
			return lv
		}
	}
	if len(l.cells) == 1 {
		if lv, ok := outline[normalizeTitle(l.text())]; ok {
			return lv
		}
	}
	return 0
}

// tableRun returns the end of the run of multi-cell body lines starting at i.
func tableRun(lines []line, i int, body, ratio float64, levels map[float64]int, outline map[string]int) int {
	j := i
	for j < len(lines) && len(lines[j].cells) >= 2 && lineHeadingLevel(lines[j], body, ratio, levels, outline) == 0 {
		if j > i && lines[j-1].y-lines[j].y > 3*math.Max(lines[j].size, lines[j-1].size) {
			break
		}
		j++
	}
	return j
}

func paragraphBreak(prev, cur line) bool {
	h := math.Max(prev.size, cur.size)
	if h <= 0 {
		return false
	}
	return prev.y-cur.y > paraGapFactor*h
}
