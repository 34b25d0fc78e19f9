// Package chunker splits narrative text into header-tagged, size-bounded
// chunks.
package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/markdave123-py/Ledgerlens/internal/models"
)

// Config controls chunking behavior. Sizes are in runes.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
}

// DefaultConfig returns the 1500/200 window used for earnings documents.
func DefaultConfig() Config {
	return Config{ChunkSize: 1500, ChunkOverlap: 200}
}

func (c Config) normalized() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultConfig().ChunkSize
	}
	if c.ChunkOverlap < 0 {
		c.ChunkOverlap = 0
	}
	if c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = c.ChunkSize - 1
	}
	return c
}

// Chunk is one piece of narrative text with the heading trail it sits under.
type Chunk struct {
	Index      int
	Text       string
	HeaderPath string
}

// Chunks splits every section into size-bounded windows. Indexes run across
// all sections in order.
func Chunks(sections []Section, cfg Config) []Chunk {
	var out []Chunk
	for _, s := range sections {
		for _, piece := range Split(s.Text, cfg) {
			out = append(out, Chunk{Index: len(out), Text: piece, HeaderPath: s.HeaderPath})
		}
	}
	return out
}

var separators = []string{"\n\n", "\n", ". ", " ", ""}

// Split breaks text recursively on paragraph, line, sentence, word and
// finally character boundaries, then merges the pieces into windows of at
// most ChunkSize runes. Consecutive windows share up to ChunkOverlap runes.
func Split(text string, cfg Config) []string {
	cfg = cfg.normalized()
	var out []string
	for _, piece := range splitRecursive(text, separators, cfg) {
		if piece = strings.TrimSpace(piece); piece != "" {
			out = append(out, piece)
		}
	}
	return out
}

func splitRecursive(text string, seps []string, cfg Config) []string {
	sep, rest := seps[len(seps)-1], []string(nil)
	for i, s := range seps {
		if s == "" || strings.Contains(text, s) {
			sep, rest = s, seps[i+1:]
			break
		}
	}

	var pieces []string
	if sep == "" {
		pieces = strings.Split(text, "")
	} else {
		pieces = strings.SplitAfter(text, sep)
	}

	var out, fitting []string
	for _, p := range pieces {
		if p == "" {
			continue
		}
		if runeLen(p) <= cfg.ChunkSize {
			fitting = append(fitting, p)
			continue
		}
		if len(fitting) > 0 {
			out = append(out, merge(fitting, cfg)...)
			fitting = nil
		}
		out = append(out, splitRecursive(p, rest, cfg)...)
	}
	if len(fitting) > 0 {
		out = append(out, merge(fitting, cfg)...)
	}
	return out
}

// merge packs pieces into windows, carrying a tail of at most ChunkOverlap
// runes into the next window.
func merge(pieces []string, cfg Config) []string {
	var docs, cur []string
	total := 0
	for _, p := range pieces {
		n := runeLen(p)
		if total+n > cfg.ChunkSize && len(cur) > 0 {
			docs = append(docs, strings.Join(cur, ""))
			for len(cur) > 0 && (total > cfg.ChunkOverlap || total+n > cfg.ChunkSize) {
				total -= runeLen(cur[0])
				cur = cur[1:]
			}
		}
		cur = append(cur, p)
		total += n
	}
	if len(cur) > 0 {
		docs = append(docs, strings.Join(cur, ""))
	}
	return docs
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// headerPathOrStart substitutes DocumentStart for an empty trail.
func headerPathOrStart(p string) string {
	if p == "" {
		return models.DocumentStart
	}
	return p
}
