package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/markdave123-py/Ledgerlens/internal/core/filter"
	"github.com/markdave123-py/Ledgerlens/internal/internalerr"
	"github.com/markdave123-py/Ledgerlens/internal/models"
)

func unit(id, doc string, ct models.ContentType, quarter string, emb ...float32) models.RetrievableUnit {
	md := map[string]string{models.MetaContentType: string(ct), models.MetaQuarter: quarter}
	if ct == models.ContentChart {
		md[models.MetaImagePath] = quarter + "/" + id + ".png"
	}
	return models.RetrievableUnit{ID: id, DocumentID: doc, Text: "text of " + id, Embedding: emb, Metadata: md}
}

func TestStore_UpsertAndQuery(t *testing.T) {
	ctx := context.Background()
	s := New("financial_reports")

	err := s.Upsert(ctx, []models.RetrievableUnit{
		unit("t1", "d1", models.ContentText, "Q1-2025", 1, 0),
		unit("tb1", "d1", models.ContentTable, "Q1-2025", 0.6, 0.8),
		unit("ch1", "d1", models.ContentChart, "Q1-2025", 1, 0),
		unit("tb2", "d2", models.ContentTable, "Q2-2025", 1, 0),
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := s.Query(ctx, []float32{1, 0}, 5, filter.And(
		filter.Eq(models.MetaQuarter, "Q1-2025"),
		filter.In(models.MetaContentType, "table", "chart"),
	))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Unit.ID != "ch1" || got[1].Unit.ID != "tb1" {
		t.Fatalf("Query = %+v", got)
	}
	if got[0].Score < got[1].Score {
		t.Error("results not ordered by score")
	}

	// Equal scores keep insertion order.
	got, _ = s.Query(ctx, []float32{1, 0}, 3, filter.Expr{})
	if got[0].Unit.ID != "t1" || got[1].Unit.ID != "ch1" || got[2].Unit.ID != "tb2" {
		t.Errorf("tie order = %s %s %s", got[0].Unit.ID, got[1].Unit.ID, got[2].Unit.ID)
	}
}

func TestStore_UpsertSemantics(t *testing.T) {
	ctx := context.Background()
	s := New("c")
	u := unit("a", "d1", models.ContentText, "Q1", 1, 0)
	if err := s.Upsert(ctx, []models.RetrievableUnit{u, unit("b", "d1", models.ContentText, "Q1", 0, 1)}); err != nil {
		t.Fatal(err)
	}

	u.Text = "rewritten"
	if err := s.Upsert(ctx, []models.RetrievableUnit{u}); err != nil {
		t.Fatalf("same-document rewrite: %v", err)
	}
	if n, _ := s.Count(ctx); n != 2 {
		t.Fatalf("Count = %d after idempotent rewrite", n)
	}
	if units := s.Units(); units[0].ID != "a" || units[0].Text != "rewritten" {
		t.Errorf("rewrite lost insertion slot or text: %+v", units[0])
	}

	clash := unit("a", "d2", models.ContentText, "Q1", 1, 0)
	fresh := unit("c", "d2", models.ContentText, "Q1", 1, 0)
	if err := s.Upsert(ctx, []models.RetrievableUnit{fresh, clash}); !errors.Is(err, internalerr.ErrDuplicateID) {
		t.Fatalf("cross-document rewrite err = %v", err)
	}
	if n, _ := s.Count(ctx); n != 2 {
		t.Errorf("failed batch was partially applied: count %d", n)
	}

	if err := s.Upsert(ctx, []models.RetrievableUnit{unit("z", "d1", models.ContentText, "Q1", 1, 2, 3)}); !errors.Is(err, internalerr.ErrDimensionMismatch) {
		t.Errorf("dimension err = %v", err)
	}
	if _, err := s.Query(ctx, []float32{1}, 3, filter.Expr{}); !errors.Is(err, internalerr.ErrDimensionMismatch) {
		t.Errorf("query dimension err = %v", err)
	}
	if _, err := s.Query(ctx, []float32{1, 0}, 3, filter.Expr{Op: "$nope"}); !errors.Is(err, internalerr.ErrInvalidFilter) {
		t.Errorf("bad filter err = %v", err)
	}
}

func TestStore_ClearResetsDimension(t *testing.T) {
	ctx := context.Background()
	s := New("c")
	_ = s.Upsert(ctx, []models.RetrievableUnit{unit("a", "d", models.ContentText, "Q1", 1, 0)})
	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if got, err := s.Query(ctx, []float32{1, 0, 0}, 3, filter.Expr{}); err != nil || len(got) != 0 {
		t.Fatalf("query on cleared store = %v, %v", got, err)
	}
	if err := s.Upsert(ctx, []models.RetrievableUnit{unit("a", "d", models.ContentText, "Q1", 1, 0, 0)}); err != nil {
		t.Fatalf("rebuild with new dimension: %v", err)
	}
}

func TestStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	s := New("c")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			_ = s.Upsert(ctx, []models.RetrievableUnit{unit(id, "d", models.ContentText, "Q1", float32(i), 1)})
			_, _ = s.Query(ctx, []float32{1, 1}, 3, filter.Eq(models.MetaQuarter, "Q1"))
		}(i)
	}
	wg.Wait()
	if n, _ := s.Count(ctx); n != 8 {
		t.Errorf("Count = %d, want 8", n)
	}
}

func TestStore_Documents(t *testing.T) {
	ctx := context.Background()
	s := New("c")
	for _, d := range []models.Document{
		{ID: "1", FileName: "a.pdf", Quarter: "Q1-2025", Status: models.StatusQueued},
		{ID: "2", FileName: "b.pdf", Quarter: "Q2-2025", Status: models.StatusQueued},
	} {
		d := d
		if err := s.UpsertDocument(ctx, &d); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.UpdateDocumentStatus(ctx, "1", models.StatusReady, 12, 1, "chart failed"); err != nil {
		t.Fatal(err)
	}
	d, err := s.GetDocumentByID(ctx, "1")
	if err != nil || d.Status != models.StatusReady || d.UnitCount != 12 || d.FailureCount != 1 {
		t.Fatalf("GetDocumentByID = %+v, %v", d, err)
	}
	if _, err := s.GetDocumentByID(ctx, "404"); !errors.Is(err, internalerr.ErrNotFound) {
		t.Errorf("missing doc err = %v", err)
	}
	if err := s.UpdateDocumentStatus(ctx, "404", models.StatusFailed, 0, 0, ""); !errors.Is(err, internalerr.ErrNotFound) {
		t.Errorf("update missing err = %v", err)
	}
	q1, _ := s.ListDocuments(ctx, "Q1-2025")
	all, _ := s.ListDocuments(ctx, "")
	if len(q1) != 1 || len(all) != 2 {
		t.Errorf("ListDocuments: q1=%d all=%d", len(q1), len(all))
	}
	_ = s.ClearDocuments(ctx)
	if all, _ := s.ListDocuments(ctx, ""); len(all) != 0 {
		t.Errorf("ClearDocuments left %d", len(all))
	}
}
