package sqlitestore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/markdave123-py/Ledgerlens/internal/core/filter"
	"github.com/markdave123-py/Ledgerlens/internal/internalerr"
	"github.com/markdave123-py/Ledgerlens/internal/models"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledgerlens.db")
	s, err := Open(context.Background(), path, "financial_reports")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func unit(id, doc string, ct models.ContentType, quarter string, emb ...float32) models.RetrievableUnit {
	md := map[string]string{models.MetaContentType: string(ct), models.MetaQuarter: quarter, models.MetaHeaderPath: "Revenue"}
	if ct == models.ContentChart {
		md[models.MetaImagePath] = quarter + "/" + id + ".png"
	}
	return models.RetrievableUnit{ID: id, DocumentID: doc, Text: "text of " + id, Embedding: emb, Metadata: md}
}

func TestStore_QueryFiltersAndRanks(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)

	if err := s.Upsert(ctx, []models.RetrievableUnit{
		unit("t1", "d1", models.ContentText, "Q1-2025", 1, 0),
		unit("tb1", "d1", models.ContentTable, "Q1-2025", 0.6, 0.8),
		unit("ch1", "d1", models.ContentChart, "Q1-2025", 1, 0),
		unit("tb2", "d2", models.ContentTable, "Q2-2025", 1, 0),
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := s.Query(ctx, []float32{1, 0}, 5, filter.And(
		filter.Eq(models.MetaQuarter, "Q1-2025"),
		filter.Or(filter.Eq(models.MetaContentType, "table"), filter.Eq(models.MetaContentType, "chart")),
	))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Unit.ID != "ch1" || got[1].Unit.ID != "tb1" {
		t.Fatalf("Query = %+v", got)
	}
	if ref, ok := got[0].Unit.ImageRef(); !ok || ref != "Q1-2025/ch1.png" {
		t.Errorf("image ref = %q", ref)
	}
	if got[0].Unit.Metadata[models.MetaHeaderPath] != "Revenue" || got[0].Unit.Text != "text of ch1" {
		t.Errorf("unit did not round-trip: %+v", got[0].Unit)
	}

	got, _ = s.Query(ctx, []float32{1, 0}, 2, filter.Expr{})
	if len(got) != 2 || got[0].Unit.ID != "t1" || got[1].Unit.ID != "ch1" {
		t.Errorf("tie order = %+v", got)
	}
}

func TestStore_UpsertSemantics(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)

	a := unit("a", "d1", models.ContentText, "Q1", 1, 0)
	if err := s.Upsert(ctx, []models.RetrievableUnit{a}); err != nil {
		t.Fatal(err)
	}
	a.Text = "rewritten"
	if err := s.Upsert(ctx, []models.RetrievableUnit{a}); err != nil {
		t.Fatalf("idempotent rewrite: %v", err)
	}
	err := s.Upsert(ctx, []models.RetrievableUnit{
		unit("b", "d2", models.ContentText, "Q1", 0, 1),
		unit("a", "d2", models.ContentText, "Q1", 1, 0),
	})
	if !errors.Is(err, internalerr.ErrDuplicateID) {
		t.Fatalf("cross-document err = %v", err)
	}
	if n, _ := s.Count(ctx); n != 1 {
		t.Errorf("Count = %d, failed batch must roll back", n)
	}
	got, _ := s.Query(ctx, []float32{1, 0}, 1, filter.Expr{})
	if got[0].Unit.Text != "rewritten" || got[0].Unit.DocumentID != "d1" {
		t.Errorf("stored unit = %+v", got[0].Unit)
	}

	if err := s.Upsert(ctx, []models.RetrievableUnit{unit("c", "d1", models.ContentText, "Q1", 1, 0, 0)}); !errors.Is(err, internalerr.ErrDimensionMismatch) {
		t.Errorf("dimension err = %v", err)
	}
	if _, err := s.Query(ctx, []float32{1, 0, 0}, 1, filter.Expr{}); !errors.Is(err, internalerr.ErrDimensionMismatch) {
		t.Errorf("query dimension err = %v", err)
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	s, path := openTemp(t)
	if err := s.Upsert(ctx, []models.RetrievableUnit{unit("a", "d1", models.ContentText, "Q1", 1, 0)}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s2, err := Open(ctx, path, "financial_reports")
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	if n, _ := s2.Count(ctx); n != 1 {
		t.Fatalf("Count after reopen = %d", n)
	}
	if err := s2.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if got, err := s2.Query(ctx, []float32{1, 0, 0}, 3, filter.Expr{}); err != nil || len(got) != 0 {
		t.Errorf("after Clear: %v, %v", got, err)
	}
}

func TestStore_Documents(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)
	doc := &models.Document{ID: "doc-1", FileName: "alphabet-release.pdf", Quarter: "Q1-2025", Status: models.StatusProcessing}
	if err := s.UpsertDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateDocumentStatus(ctx, "doc-1", models.StatusPartial, 40, 2, "2 charts failed"); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetDocumentByID(ctx, "doc-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusPartial || got.UnitCount != 40 || got.LastError != "2 charts failed" || got.CreatedAt.IsZero() {
		t.Errorf("document = %+v", got)
	}
	if _, err := s.GetDocumentByID(ctx, "nope"); !errors.Is(err, internalerr.ErrNotFound) {
		t.Errorf("missing err = %v", err)
	}
	list, _ := s.ListDocuments(ctx, "Q2-2025")
	if len(list) != 0 {
		t.Errorf("Q2 list = %v", list)
	}
	list, _ = s.ListDocuments(ctx, "")
	if len(list) != 1 {
		t.Errorf("all list = %v", list)
	}
}
