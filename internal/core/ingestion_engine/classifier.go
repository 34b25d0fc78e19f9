package ingestion_engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/markdave123-py/Ledgerlens/internal/core/chunker"
	"github.com/markdave123-py/Ledgerlens/internal/core/parser"
	"github.com/markdave123-py/Ledgerlens/internal/models"
)

// pendingChart is a picture waiting for the description step, with the
// heading captured when it was encountered.
type pendingChart struct {
	order      int
	page       int
	headerPath string
	image      func() ([]byte, error)
}

// classified is the outcome of the sequential pass over one document.
type classified struct {
	blocks   []chunker.Block
	tables   []models.RetrievableUnit
	charts   []pendingChart
	elements int
}

// classify drains the element stream in document order. It is the only
// reader of the stream and the only owner of the document's ParseContext.
func classify(in <-chan parser.Element, attrs DocumentAttributes, rep *Report) *classified {
	pc := NewParseContext()
	out := &classified{}
	for el := range in {
		out.elements++
		pc = out.route(pc, el, attrs, rep)
	}
	return out
}

func (c *classified) route(pc ParseContext, el parser.Element, attrs DocumentAttributes, rep *Report) ParseContext {
	if el.Err != nil {
		rep.fail(StageElement, elementTarget(el), el.Err)
		return pc
	}

	switch el.Kind {
	case parser.KindHeading:
		if strings.TrimSpace(el.Text) == "" {
			return pc
		}
		c.blocks = append(c.blocks, chunker.Block{Level: max(el.Level, 1), Text: el.Text})
		return pc.WithHeading(el.Level, el.Text)

	case parser.KindText:
		c.blocks = append(c.blocks, chunker.Block{Text: el.Text})

	case parser.KindTable:
		content := el.HTML
		if strings.TrimSpace(content) == "" {
			content = el.Text
		}
		if strings.TrimSpace(content) == "" {
			return pc
		}
		c.tables = append(c.tables, models.RetrievableUnit{
			ID:         ContentID(attrs.FileName, models.ContentTable, el.Order, []byte(content)),
			DocumentID: attrs.DocumentID,
			Text:       content,
			Metadata:   BuildMetadata(attrs, models.ContentTable, pc.CurrentHeading, UnitExtras{Page: el.Page}),
		})

	case parser.KindPicture:
		if el.Image == nil {
			rep.fail(StageElement, elementTarget(el), errors.New("picture carries no image data"))
			return pc
		}
		c.charts = append(c.charts, pendingChart{
			order:      el.Order,
			page:       el.Page,
			headerPath: pc.CurrentHeading,
			image:      el.Image,
		})

	default:
		rep.fail(StageElement, elementTarget(el), fmt.Errorf("unknown element kind %s", el.Kind))
	}
	return pc
}

// textUnits chunks the narrative blocks under their heading trails.
func textUnits(blocks []chunker.Block, attrs DocumentAttributes, cfg chunker.Config) []models.RetrievableUnit {
	chunks := chunker.Chunks(chunker.Sections(blocks), cfg)
	units := make([]models.RetrievableUnit, 0, len(chunks))
	for _, ch := range chunks {
		units = append(units, models.RetrievableUnit{
			ID:         TextChunkID(attrs.FileName, ch.Index),
			DocumentID: attrs.DocumentID,
			Text:       ch.Text,
			Metadata:   BuildMetadata(attrs, models.ContentText, ch.HeaderPath, UnitExtras{}),
		})
	}
	return units
}

func elementTarget(el parser.Element) string {
	if el.Page > 0 {
		return fmt.Sprintf("%s #%d (page %d)", el.Kind, el.Order, el.Page)
	}
	return fmt.Sprintf("%s #%d", el.Kind, el.Order)
}
