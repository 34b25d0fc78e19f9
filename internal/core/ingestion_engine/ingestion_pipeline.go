package ingestion_engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/Ledgerlens/internal/internalerr"
	"github.com/markdave123-py/Ledgerlens/internal/models"
)

// Source types recorded in the document registry.
const (
	SourceBatch  = "batch"
	SourceUpload = "upload"
)

// Source is one document to ingest. Data wins over Path when both are set.
type Source struct {
	DocumentID string
	FileName   string
	Quarter    string
	Path       string
	Data       []byte
	StorageURL string
	SourceType string
}

// Attributes resolves the document-level metadata of src.
func (i *DocumentIngestor) Attributes(src Source) DocumentAttributes {
	quarter := src.Quarter
	if quarter == "" && src.Path != "" {
		quarter = QuarterFromPath(src.Path)
	}
	id := src.DocumentID
	if id == "" {
		id = DocumentID(quarter, src.FileName)
	}
	return DocumentAttributes{
		DocumentID:   id,
		FileName:     src.FileName,
		Quarter:      quarter,
		Company:      i.catalog.Company(src.FileName),
		DocumentType: models.DocumentType(i.catalog.DocumentType(src.FileName)),
	}
}

// IngestDocument runs the whole pipeline for one document. The error covers
// document-level failures only; element, chart and unit failures are soft
// and listed in the report.
func (i *DocumentIngestor) IngestDocument(ctx context.Context, src Source) (*Report, error) {
	attrs := i.Attributes(src)
	rep := newReport(attrs)
	log := i.log.With("document", attrs.FileName, "quarter", attrs.Quarter)

	err := i.run(ctx, src, attrs, rep, log)
	i.finish(context.WithoutCancel(ctx), attrs, rep, err, log)
	if err != nil {
		return rep, fmt.Errorf("ingest %s (%s): %w", attrs.FileName, attrs.DocumentID, err)
	}
	log.Info("document ingested", "summary", rep.Summary())
	return rep, nil
}

func (i *DocumentIngestor) run(ctx context.Context, src Source, attrs DocumentAttributes, rep *Report, log *slog.Logger) error {
	data := src.Data
	if data == nil {
		if src.Path == "" {
			return fmt.Errorf("%w: source has neither data nor path", internalerr.ErrInvalidInput)
		}
		b, err := os.ReadFile(src.Path)
		if err != nil {
			return fmt.Errorf("read source: %w", err)
		}
		data = b
	}
	i.register(ctx, src, attrs, data, log)

	p, err := i.parsers(attrs.FileName)
	if err != nil {
		return err
	}

	// parser goroutine -> single classifier goroutine
	g, gctx := errgroup.WithContext(ctx)
	elements, err := p.Parse(gctx, g, data, attrs.FileName)
	if err != nil {
		_ = g.Wait()
		return err
	}
	var cl *classified
	g.Go(func() error {
		cl = classify(elements, attrs, rep)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	rep.Elements = cl.elements
	log.Debug("classified", "elements", cl.elements, "tables", len(cl.tables), "pictures", len(cl.charts), "blocks", len(cl.blocks))

	units := textUnits(cl.blocks, attrs, i.cfg.Chunking)
	units = append(units, cl.tables...)
	units = append(units, i.describeCharts(ctx, attrs, cl.charts, rep)...)
	if len(units) == 0 {
		if len(rep.Failures) > 0 {
			return fmt.Errorf("%w: every element failed", internalerr.ErrNoContent)
		}
		return internalerr.ErrNoContent
	}

	i.embedAndPersist(ctx, units, rep)
	if err := ctx.Err(); err != nil {
		return err
	}
	if rep.UnitCount() == 0 {
		return fmt.Errorf("none of %d units were stored", len(units))
	}
	return nil
}

// register records the document as processing. Registry problems are
// logged and never fail the ingestion.
func (i *DocumentIngestor) register(ctx context.Context, src Source, attrs DocumentAttributes, data []byte, log *slog.Logger) {
	if i.docs == nil {
		return
	}
	sum := sha256.Sum256(data)
	doc := &models.Document{
		ID:           attrs.DocumentID,
		FileName:     attrs.FileName,
		Quarter:      attrs.Quarter,
		Company:      attrs.Company,
		DocumentType: string(attrs.DocumentType),
		StorageURL:   src.StorageURL,
		SourceType:   src.SourceType,
		ContentHash:  hex.EncodeToString(sum[:]),
		Status:       models.StatusProcessing,
	}
	if doc.SourceType == "" {
		doc.SourceType = SourceBatch
	}
	if prev, err := i.docs.GetDocumentByID(ctx, doc.ID); err == nil && doc.StorageURL == "" {
		doc.StorageURL = prev.StorageURL
	}
	if err := i.docs.UpsertDocument(ctx, doc); err != nil {
		log.Warn("document registry write failed", "error", err)
	}
}

func (i *DocumentIngestor) finish(ctx context.Context, attrs DocumentAttributes, rep *Report, runErr error, log *slog.Logger) {
	if i.docs == nil {
		return
	}
	status, lastErr := rep.Status(), ""
	if runErr != nil {
		status, lastErr = models.StatusFailed, runErr.Error()
	} else if n := len(rep.Failures); n > 0 {
		lastErr = rep.Failures[n-1].String()
	}
	err := i.docs.UpdateDocumentStatus(ctx, attrs.DocumentID, status, rep.UnitCount(), len(rep.Failures), lastErr)
	if err != nil && !errors.Is(err, internalerr.ErrNotFound) {
		log.Warn("document status update failed", "error", err)
	}
}

// Reset clears the collection and the document registry. It is never
// called implicitly.
func (i *DocumentIngestor) Reset(ctx context.Context) error {
	if err := i.collection.Clear(ctx); err != nil {
		return fmt.Errorf("clear collection %s: %w", i.collection.Name(), err)
	}
	if i.docs != nil {
		if err := i.docs.ClearDocuments(ctx); err != nil {
			return fmt.Errorf("clear documents: %w", err)
		}
	}
	i.log.Info("collection reset", "collection", i.collection.Name())
	return nil
}
