package services

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/markdave123-py/Ledgerlens/internal/core"
	"github.com/markdave123-py/Ledgerlens/internal/core/ingestion_engine"
	"github.com/markdave123-py/Ledgerlens/internal/core/parser"
	"github.com/markdave123-py/Ledgerlens/internal/internalerr"
	"github.com/markdave123-py/Ledgerlens/internal/models"
)

// OriginalsNamespace holds uploaded source files in the asset store.
const OriginalsNamespace = "originals"

type DocumentService struct {
	collection core.VectorCollection
	docs       core.DocumentStore
	assets     core.AssetStore
	ingestor   ingestion_engine.Ingestor
	jobs       *JobService
	log        *slog.Logger
}

func NewDocumentService(collection core.VectorCollection, docs core.DocumentStore, assets core.AssetStore, ing ingestion_engine.Ingestor, jobs *JobService, log *slog.Logger) *DocumentService {
	if log == nil {
		log = slog.Default()
	}
	return &DocumentService{collection: collection, docs: docs, assets: assets, ingestor: ing, jobs: jobs, log: log}
}

// Upload stores the original, registers the document as queued and hands
// it to the worker pool.
func (s *DocumentService) Upload(ctx context.Context, filename, quarter string, data []byte) (*models.Document, JobSnapshot, error) {
	name := filepath.Base(strings.TrimSpace(filename))
	quarter = strings.TrimSpace(quarter)
	switch {
	case name == "." || name == string(filepath.Separator):
		return nil, JobSnapshot{}, fmt.Errorf("%w: missing file name", internalerr.ErrInvalidInput)
	case !parser.IsSupportedExtension(name):
		return nil, JobSnapshot{}, fmt.Errorf("%w: %s", internalerr.ErrUnsupportedFormat, name)
	case len(data) == 0:
		return nil, JobSnapshot{}, fmt.Errorf("%w: %s is empty", internalerr.ErrInvalidInput, name)
	case strings.ContainsAny(quarter, `/\`) || quarter == "." || quarter == "..":
		return nil, JobSnapshot{}, fmt.Errorf("%w: bad quarter %q", internalerr.ErrInvalidInput, quarter)
	}

	docID := ingestion_engine.DocumentID(quarter, name)
	ref, err := s.assets.SaveAsset(ctx, OriginalsNamespace, originalName(docID, name), data, parser.MimeType(name))
	if err != nil {
		return nil, JobSnapshot{}, fmt.Errorf("store original %s: %w", name, err)
	}

	doc := &models.Document{
		ID:         docID,
		FileName:   name,
		Quarter:    quarter,
		StorageURL: ref,
		SourceType: ingestion_engine.SourceUpload,
		Status:     models.StatusQueued,
	}
	if err := s.docs.UpsertDocument(ctx, doc); err != nil {
		return nil, JobSnapshot{}, fmt.Errorf("register %s: %w", name, err)
	}

	job := s.jobs.New(doc)
	if err := s.ingestor.Enqueue(ctx, ingestion_engine.Job{ID: job.ID, DocumentID: doc.ID}); err != nil {
		s.jobs.Complete(ingestion_engine.JobResult{Job: ingestion_engine.Job{ID: job.ID}, Err: err})
		return nil, JobSnapshot{}, fmt.Errorf("enqueue %s: %w", name, err)
	}
	s.log.Info("document queued", "document", doc.ID, "file", name, "quarter", quarter, "job", job.ID)
	return doc, job.Snapshot(), nil
}

func (s *DocumentService) Get(ctx context.Context, id string) (*models.Document, error) {
	return s.docs.GetDocumentByID(ctx, id)
}

// List returns registered documents, optionally for one quarter.
func (s *DocumentService) List(ctx context.Context, quarter string) ([]models.Document, error) {
	return s.docs.ListDocuments(ctx, strings.TrimSpace(quarter))
}

func (s *DocumentService) Job(id string) (JobSnapshot, error) {
	j, ok := s.jobs.Get(id)
	if !ok {
		return JobSnapshot{}, fmt.Errorf("job %s: %w", id, internalerr.ErrNotFound)
	}
	return j.Snapshot(), nil
}

// Stats describes the collection and the registry.
type Stats struct {
	Collection string         `json:"collection"`
	Units      int            `json:"units"`
	Documents  int            `json:"documents"`
	ByStatus   map[string]int `json:"by_status"`
}

func (s *DocumentService) Stats(ctx context.Context) (*Stats, error) {
	n, err := s.collection.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count %s: %w", s.collection.Name(), err)
	}
	docs, err := s.docs.ListDocuments(ctx, "")
	if err != nil {
		return nil, err
	}
	st := &Stats{Collection: s.collection.Name(), Units: n, Documents: len(docs), ByStatus: map[string]int{}}
	for _, d := range docs {
		st.ByStatus[d.Status]++
	}
	return st, nil
}

// Reset clears the collection and the registry. Uploaded originals stay in
// the asset store.
func (s *DocumentService) Reset(ctx context.Context) error {
	return s.ingestor.Reset(ctx)
}

// originalName keeps re-uploads of the same document on one key.
func originalName(docID, filename string) string {
	return docID + strings.ToLower(filepath.Ext(filename))
}
