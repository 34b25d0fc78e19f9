// Package memstore is an in-memory collection and document registry for
// tests and single-process runs.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/markdave123-py/Ledgerlens/internal/core/filter"
	"github.com/markdave123-py/Ledgerlens/internal/core/vectormath"
	"github.com/markdave123-py/Ledgerlens/internal/internalerr"
	"github.com/markdave123-py/Ledgerlens/internal/models"
)

type entry struct {
	unit models.RetrievableUnit
	seq  int64
}

// Store holds one named collection and the document registry.
type Store struct {
	mu      sync.RWMutex
	name    string
	dim     int
	nextSeq int64
	units   map[string]entry
	docs    map[string]models.Document
	now     func() time.Time
}

// New creates an empty store for the named collection.
func New(name string) *Store {
	return &Store{
		name:  name,
		units: make(map[string]entry),
		docs:  make(map[string]models.Document),
		now:   time.Now,
	}
}

func (s *Store) Name() string { return s.name }

// Close implements core.VectorCollection.
func (s *Store) Close() error { return nil }

// Upsert writes the batch atomically: either every unit is stored or none.
func (s *Store) Upsert(ctx context.Context, units []models.RetrievableUnit) error {
	if len(units) == 0 {
		return nil
	}
	dim, err := models.ValidateUnits(units)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dim != 0 && s.dim != dim {
		return fmt.Errorf("%w: collection %s has %d dimensions, units have %d", internalerr.ErrDimensionMismatch, s.name, s.dim, dim)
	}
	for _, u := range units {
		if prev, ok := s.units[u.ID]; ok && prev.unit.DocumentID != u.DocumentID {
			return fmt.Errorf("%w: %s", internalerr.ErrDuplicateID, u.ID)
		}
	}

	s.dim = dim
	for _, u := range units {
		seq := s.nextSeq
		if prev, ok := s.units[u.ID]; ok {
			seq = prev.seq
		} else {
			s.nextSeq++
		}
		s.units[u.ID] = entry{unit: copyUnit(u), seq: seq}
	}
	return nil
}

func (s *Store) Query(ctx context.Context, embedding []float32, k int, where filter.Expr) ([]models.ScoredUnit, error) {
	if err := where.Validate(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dim == 0 {
		return nil, nil
	}
	if len(embedding) != s.dim {
		return nil, fmt.Errorf("%w: collection %s has %d dimensions, query has %d", internalerr.ErrDimensionMismatch, s.name, s.dim, len(embedding))
	}

	candidates := make([]vectormath.Candidate, 0, len(s.units))
	for _, e := range s.units {
		if where.Match(e.unit.Metadata) {
			candidates = append(candidates, vectormath.Candidate{Unit: copyUnit(e.unit), Seq: e.seq})
		}
	}
	// Map iteration order is random; Rank breaks ties by Seq.
	return vectormath.Rank(embedding, candidates, k), nil
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units = make(map[string]entry)
	s.dim = 0
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.units), nil
}

// Units returns every stored unit in insertion order.
func (s *Store) Units() []models.RetrievableUnit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]entry, 0, len(s.units))
	for _, e := range s.units {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]models.RetrievableUnit, len(entries))
	for i, e := range entries {
		out[i] = copyUnit(e.unit)
	}
	return out
}

// Documents

func (s *Store) UpsertDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return fmt.Errorf("%w: nil document", internalerr.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d := *doc
	now := s.now()
	if prev, ok := s.docs[d.ID]; ok {
		d.CreatedAt = prev.CreatedAt
	} else {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	s.docs[d.ID] = d
	return nil
}

func (s *Store) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, internalerr.ErrNotFound)
	}
	return &d, nil
}

// ListDocuments returns documents newest first. An empty quarter lists all.
func (s *Store) ListDocuments(ctx context.Context, quarter string) ([]models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Document, 0, len(s.docs))
	for _, d := range s.docs {
		if quarter == "" || d.Quarter == quarter {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) UpdateDocumentStatus(ctx context.Context, id, status string, unitCount, failureCount int, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("document %s: %w", id, internalerr.ErrNotFound)
	}
	d.Status, d.UnitCount, d.FailureCount, d.LastError = status, unitCount, failureCount, lastError
	d.UpdatedAt = s.now()
	s.docs[id] = d
	return nil
}

func (s *Store) ClearDocuments(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = make(map[string]models.Document)
	return nil
}

func copyUnit(u models.RetrievableUnit) models.RetrievableUnit {
	u.Embedding = append([]float32(nil), u.Embedding...)
	u.Metadata = maps.Clone(u.Metadata)
	return u
}
