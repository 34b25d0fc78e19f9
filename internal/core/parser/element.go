package parser

import (
	"context"
	"fmt"
)

// Kind tags a structural element.
type Kind int

const (
	KindHeading Kind = iota + 1
	KindText
	KindTable
	KindPicture
)

func (k Kind) String() string {
	switch k {
	case KindHeading:
		return "heading"
	case KindText:
		return "text"
	case KindTable:
		return "table"
	case KindPicture:
		return "picture"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Element is one structural piece of a document, emitted in document order.
// Err is set when the element was recognised but its content could not be
// extracted; consumers skip such elements.
type Element struct {
	Kind  Kind
	Level int    // heading level, 1 is outermost
	Text  string // paragraph text, heading title, or plain rendering of a table
	HTML  string // tables only
	Image func() ([]byte, error)
	Order int
	Page  int
	Err   error
}

// emitter assigns Order and sends elements, stopping when ctx is done.
type emitter struct {
	ctx   context.Context
	out   chan<- Element
	order int
}

func (e *emitter) emit(el Element) bool {
	el.Order = e.order
	e.order++
	select {
	case e.out <- el:
		return true
	case <-e.ctx.Done():
		return false
	}
}

func (e *emitter) heading(level int, title string, page int) bool {
	return e.emit(Element{Kind: KindHeading, Level: level, Text: title, Page: page})
}

func (e *emitter) text(s string, page int) bool {
	return e.emit(Element{Kind: KindText, Text: s, Page: page})
}

func (e *emitter) table(rows [][]string, page int) bool {
	h, err := RenderTable(rows)
	if err != nil {
		return e.emit(Element{Kind: KindTable, Page: page, Err: err})
	}
	return e.emit(Element{Kind: KindTable, HTML: h, Text: TableText(rows), Page: page})
}

func (e *emitter) failed(k Kind, page int, err error) bool {
	return e.emit(Element{Kind: k, Page: page, Err: err})
}
