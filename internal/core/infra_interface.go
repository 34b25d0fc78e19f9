package core

import (
	"context"
	"io"

	"github.com/markdave123-py/Ledgerlens/internal/core/filter"
	"github.com/markdave123-py/Ledgerlens/internal/models"
)

// VectorCollection is a named, persistent index of retrievable units.
// Implementations must tolerate concurrent Upsert and Query calls.
type VectorCollection interface {
	Name() string

	// Upsert writes units keyed by ID. Rewriting an ID owned by the same
	// document is idempotent; an ID owned by another document fails with
	// internalerr.ErrDuplicateID and leaves the stored unit untouched.
	Upsert(ctx context.Context, units []models.RetrievableUnit) error

	// Query returns up to k units matching where, closest first, ties in
	// insertion order.
	Query(ctx context.Context, embedding []float32, k int, where filter.Expr) ([]models.ScoredUnit, error)

	// Clear removes every unit. It is destructive and never called implicitly.
	Clear(ctx context.Context) error

	Count(ctx context.Context) (int, error)
	Close() error
}

// DocumentStore records ingested source documents and their status.
type DocumentStore interface {
	UpsertDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, quarter string) ([]models.Document, error)
	UpdateDocumentStatus(ctx context.Context, id, status string, unitCount, failureCount int, lastError string) error
	ClearDocuments(ctx context.Context) error
}

// AssetStore persists binary assets (chart images, uploaded originals) under
// a quarter namespace and returns a reference that can be opened later.
type AssetStore interface {
	SaveAsset(ctx context.Context, namespace, name string, data []byte, contentType string) (ref string, err error)
	OpenAsset(ctx context.Context, ref string) (io.ReadCloser, string, error)
	DeleteAsset(ctx context.Context, ref string) error
}
