package ingestion_engine

import (
	"github.com/markdave123-py/Ledgerlens/internal/core/chunker"
	"github.com/markdave123-py/Ledgerlens/internal/models"
)

// ParseContext is the heading state of one document during the sequential
// classification pass. It is a value: WithHeading returns an updated copy.
type ParseContext struct {
	// CurrentHeading is the breadcrumb of headings in effect, or
	// "Document Start" before the first heading.
	CurrentHeading string
	trail          chunker.Trail
}

func NewParseContext() ParseContext {
	return ParseContext{CurrentHeading: models.DocumentStart}
}

// WithHeading applies a heading element. Blank titles leave the context
// unchanged.
func (pc ParseContext) WithHeading(level int, title string) ParseContext {
	if chunker.HeadingTitle(title) == "" {
		return pc
	}
	trail := pc.trail.Push(level, title)
	return ParseContext{CurrentHeading: trail.Path(), trail: trail}
}
