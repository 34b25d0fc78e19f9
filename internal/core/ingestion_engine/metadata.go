package ingestion_engine

import (
	"strconv"

	"github.com/markdave123-py/Ledgerlens/internal/models"
)

// DocumentAttributes are the per-document metadata values shared by every
// unit of the document.
type DocumentAttributes struct {
	DocumentID   string
	FileName     string
	Quarter      string
	Company      string
	DocumentType models.DocumentType
}

// UnitExtras are the optional per-unit metadata values.
type UnitExtras struct {
	ImagePath string
	ChartType string
	Page      int
}

// BuildMetadata assembles the metadata map of one unit. Required keys are
// always present; optional keys are omitted rather than left empty.
func BuildMetadata(attrs DocumentAttributes, ct models.ContentType, headerPath string, extra UnitExtras) map[string]string {
	if headerPath == "" {
		headerPath = models.DocumentStart
	}
	md := map[string]string{
		models.MetaQuarter:      attrs.Quarter,
		models.MetaCompany:      attrs.Company,
		models.MetaDocumentType: string(attrs.DocumentType),
		models.MetaContentType:  string(ct),
		models.MetaHeaderPath:   headerPath,
		models.MetaSourceFile:   attrs.FileName,
	}
	if extra.ImagePath != "" {
		md[models.MetaImagePath] = extra.ImagePath
	}
	if extra.ChartType != "" {
		md[models.MetaChartType] = extra.ChartType
	}
	if extra.Page > 0 {
		md[models.MetaPage] = strconv.Itoa(extra.Page)
	}
	return md
}
