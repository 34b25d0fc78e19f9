package models

import (
	"time"
)

// ContentType classifies a retrievable unit.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentTable ContentType = "table"
	ContentChart ContentType = "chart"
)

// Valid reports whether c is one of the known content types.
func (c ContentType) Valid() bool {
	switch c {
	case ContentText, ContentTable, ContentChart:
		return true
	}
	return false
}

// DocumentType is the kind of earnings document a unit came from.
type DocumentType string

const (
	DocEarningsRelease DocumentType = "earnings-release"
	DocEarningsSlides  DocumentType = "earnings-slides"
)

// Metadata keys stored on every unit. Filters address units by these names.
const (
	MetaQuarter      = "Quarter"
	MetaCompany      = "Company"
	MetaDocumentType = "Document_Type"
	MetaContentType  = "Content_Type"
	MetaHeaderPath   = "Header_Path"
	MetaImagePath    = "Image_Path"
	MetaChartType    = "Chart_Type"
	MetaSourceFile   = "Source_File"
	MetaPage         = "Page"
)

// MetadataKeys lists every key a unit may carry, in a stable order.
var MetadataKeys = []string{
	MetaQuarter, MetaCompany, MetaDocumentType, MetaContentType, MetaHeaderPath,
	MetaImagePath, MetaChartType, MetaSourceFile, MetaPage,
}

// DocumentStart is the header path of text that precedes any heading.
const DocumentStart = "Document Start"

// ChartTypeFinancialVisual tags every chart description unit.
const ChartTypeFinancialVisual = "Financial Visual"

// RetrievableUnit is the atomic object written to and read from a collection.
type RetrievableUnit struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"document_id"`
	Text       string            `json:"text"`
	Embedding  []float32         `json:"-"`
	Metadata   map[string]string `json:"metadata"`
}

// ContentType returns the unit's Content_Type metadata value.
func (u RetrievableUnit) ContentType() ContentType {
	return ContentType(u.Metadata[MetaContentType])
}

// ImageRef returns the unit's image reference, if any.
func (u RetrievableUnit) ImageRef() (string, bool) {
	ref, ok := u.Metadata[MetaImagePath]
	return ref, ok && ref != ""
}

// ScoredUnit is a query match. Score is cosine similarity, higher is closer.
type ScoredUnit struct {
	Unit  RetrievableUnit `json:"unit"`
	Score float64         `json:"score"`
}

// Document status values recorded in the registry.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusPartial    = "partial"
	StatusFailed     = "failed"
)

// Document is one ingested source file.
type Document struct {
	ID           string    `db:"id" json:"id"`
	FileName     string    `db:"file_name" json:"file_name"`
	Quarter      string    `db:"quarter" json:"quarter"`
	Company      string    `db:"company" json:"company"`
	DocumentType string    `db:"document_type" json:"document_type"`
	StorageURL   string    `db:"storage_url" json:"storage_url,omitempty"` // asset ref of the uploaded original, if any
	SourceType   string    `db:"source_type" json:"source_type"`           // "upload" or "batch"
	ContentHash  string    `db:"content_hash" json:"content_hash"`
	Status       string    `db:"status" json:"status"` // queued | processing | ready | partial | failed
	UnitCount    int       `db:"unit_count" json:"unit_count"`
	FailureCount int       `db:"failure_count" json:"failure_count"`
	LastError    string    `db:"last_error" json:"last_error,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
