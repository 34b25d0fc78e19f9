package redisstore

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/markdave123-py/Ledgerlens/internal/core/filter"
	"github.com/markdave123-py/Ledgerlens/internal/internalerr"
	"github.com/markdave123-py/Ledgerlens/internal/models"
)

func TestCompileFilter(t *testing.T) {
	tests := []struct {
		name string
		expr filter.Expr
		want string
	}{
		{"match all", filter.Expr{}, "*"},
		{"eq", filter.Eq("Quarter", "Q1-2025"), `@Quarter:{Q1\-2025}`},
		{"in", filter.In("Content_Type", "table", "chart"), `@Content_Type:{table | chart}`},
		{
			"and",
			filter.And(filter.Eq("Quarter", "Q1-2025"), filter.Eq("Content_Type", "text")),
			`(@Quarter:{Q1\-2025} @Content_Type:{text})`,
		},
		{
			"or",
			filter.Or(filter.Eq("Content_Type", "table"), filter.Eq("Content_Type", "chart")),
			`((@Content_Type:{table}) | (@Content_Type:{chart}))`,
		},
		{"spaces", filter.Eq("Chart_Type", "Financial Visual"), `@Chart_Type:{Financial\ Visual}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CompileFilter(tt.expr)
			if err != nil {
				t.Fatalf("CompileFilter: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCompileFilter_Rejects(t *testing.T) {
	for _, e := range []filter.Expr{
		filter.Eq("Owner", "x"),
		{Op: filter.OpAnd},
		filter.Eq("Quarter", ""),
		filter.In("Content_Type", "table", " "),
		filter.And(filter.Eq("Quarter", "Q1-2025"), filter.Or(filter.Eq("Chart_Type", ""), filter.Eq("Content_Type", "chart"))),
	} {
		if _, err := CompileFilter(e); !errors.Is(err, internalerr.ErrInvalidFilter) {
			t.Errorf("CompileFilter(%s) = %v, want ErrInvalidFilter", e, err)
		}
	}
}

func TestEscapeTag(t *testing.T) {
	if got := escapeTag("Q&A > Revenue (GAAP)"); got != `Q\&A\ \>\ Revenue\ \(GAAP\)` {
		t.Errorf("escapeTag = %s", got)
	}
	if got := escapeTag("plain"); got != "plain" {
		t.Errorf("escapeTag = %s", got)
	}
}

func TestParseSearchReply(t *testing.T) {
	reply := []any{
		int64(3),
		"fin:unit:b", []any{"text", "second", "document_id", "d", "seq", "2", "dist", "0.25", "metadata", `{"Quarter":"Q1-2025"}`},
		"fin:unit:a", []any{"text", "first", "document_id", "d", "seq", "1", "dist", "0.25", "metadata", `{}`},
		"fin:unit:c", []any{"text", "best", "document_id", "d", "seq", "3", "dist", "0.1", "metadata", `{}`},
	}
	got, err := parseSearchReply(reply, "fin:unit:")
	if err != nil {
		t.Fatalf("parseSearchReply: %v", err)
	}
	ids := []string{got[0].Unit.ID, got[1].Unit.ID, got[2].Unit.ID}
	if ids[0] != "c" || ids[1] != "a" || ids[2] != "b" {
		t.Errorf("order = %v, want [c a b]", ids)
	}
	if got[2].Unit.Metadata["Quarter"] != "Q1-2025" {
		t.Errorf("metadata = %v", got[2].Unit.Metadata)
	}
	if got[1].Score != 0.75 {
		t.Errorf("score = %v, want 0.75", got[1].Score)
	}

	if _, err := parseSearchReply("nope", ""); err == nil {
		t.Error("expected error for malformed reply")
	}
}

func TestCreateIndexArgs(t *testing.T) {
	args := createIndexArgs("fin:idx", "fin:unit:", 768)
	var tags int
	for _, a := range args {
		if a == "TAG" {
			tags++
		}
	}
	if tags != len(models.MetadataKeys) {
		t.Errorf("TAG fields = %d, want %d", tags, len(models.MetadataKeys))
	}
}

// Requires a Redis Stack instance; set LEDGERLENS_TEST_REDIS_ADDR to run.
func TestStore_Live(t *testing.T) {
	addr := os.Getenv("LEDGERLENS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LEDGERLENS_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	s, err := New(ctx, Config{Addr: addr, Collection: "ledgerlens_test"})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}

	units := []models.RetrievableUnit{
		{ID: "u1", DocumentID: "d1", Text: "revenue", Embedding: []float32{1, 0},
			Metadata: map[string]string{"Quarter": "Q1-2025", "Content_Type": "text"}},
		{ID: "u2", DocumentID: "d1", Text: "table", Embedding: []float32{0, 1},
			Metadata: map[string]string{"Quarter": "Q1-2025", "Content_Type": "table"}},
	}
	if err := s.Upsert(ctx, units); err != nil {
		t.Fatal(err)
	}
	got, err := s.Query(ctx, []float32{1, 0}, 5, filter.Eq("Content_Type", "text"))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Unit.ID != "u1" {
		t.Errorf("Query = %+v", got)
	}

	stolen := units[0]
	stolen.DocumentID = "d2"
	if err := s.Upsert(ctx, []models.RetrievableUnit{stolen}); !errors.Is(err, internalerr.ErrDuplicateID) {
		t.Errorf("cross-document upsert = %v, want ErrDuplicateID", err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}
}
