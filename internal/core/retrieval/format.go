package retrieval

import (
	"fmt"
	"strings"

	"github.com/markdave123-py/Ledgerlens/internal/models"
)

// Sentinel texts returned when nothing matches.
const (
	NoNarrative     = "No relevant narrative text found."
	NoTablesCharts  = "No relevant financial tables or charts found."
	NoFinancialData = "No relevant financial data found."
)

func sentinel(mode Mode) string {
	switch mode {
	case ModeNarrative:
		return NoNarrative
	case ModeTables:
		return NoTablesCharts
	}
	return NoFinancialData
}

// Format renders hits as blocks separated by a blank line. An empty hit
// list yields the mode's sentinel.
func Format(mode Mode, hits []models.ScoredUnit) *Response {
	resp := &Response{Mode: mode, Results: hits}
	if len(hits) == 0 {
		resp.Results = []models.ScoredUnit{}
		resp.Text = sentinel(mode)
		resp.Empty = true
		return resp
	}
	blocks := make([]string, len(hits))
	for i, h := range hits {
		blocks[i] = formatBlock(mode, i+1, h.Unit)
	}
	resp.Text = strings.Join(blocks, "\n\n")
	return resp
}

func formatBlock(mode Mode, n int, u models.RetrievableUnit) string {
	path := u.Metadata[models.MetaHeaderPath]
	if path == "" {
		path = "Unknown"
	}

	var b strings.Builder
	switch mode {
	case ModeNarrative:
		fmt.Fprintf(&b, "--- TEXT FROM SECTION: %s ---\n", path)
	case ModeTables:
		fmt.Fprintf(&b, "--- DATA FROM SECTION: %s ---\n", path)
	default:
		fmt.Fprintf(&b, "--- Result %d ---\n", n)
	}
	b.WriteString(Provenance(u))
	b.WriteByte('\n')
	if mode != ModeNarrative && mode != ModeTables {
		fmt.Fprintf(&b, "Section: %s\n", path)
	}
	if ref, ok := u.ImageRef(); ok {
		fmt.Fprintf(&b, "[Source Image: %s]\n", ref)
	}
	b.WriteString(strings.TrimSpace(u.Text))
	return b.String()
}

// Provenance is the "Source: ..." line of a unit.
func Provenance(u models.RetrievableUnit) string {
	md := u.Metadata
	company := md[models.MetaCompany]
	if company == "" {
		company = "Unknown"
	}
	parts := []string{company}
	for _, k := range []string{models.MetaQuarter, models.MetaDocumentType} {
		if v := md[k]; v != "" {
			parts = append(parts, v)
		}
	}
	line := "Source: " + strings.Join(parts, " ")
	if ct := md[models.MetaContentType]; ct != "" {
		line += " (" + ct + ")"
	}
	return line
}
