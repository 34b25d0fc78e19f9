package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/markdave123-py/Ledgerlens/internal/internalerr"
	"github.com/markdave123-py/Ledgerlens/internal/models"
)

func TestBuildMetadata(t *testing.T) {
	attrs := DocumentAttributes{FileName: "deck.pdf", Quarter: "Q1-2025", Company: "alphabet", DocumentType: models.DocEarningsSlides}
	tests := []struct {
		name   string
		ct     models.ContentType
		path   string
		extra  UnitExtras
		want   map[string]string
		absent []string
	}{
		{
			name: "text with empty path",
			ct:   models.ContentText,
			want: map[string]string{"Header_Path": "Document Start", "Content_Type": "text", "Source_File": "deck.pdf"},
			absent: []string{"Image_Path", "Chart_Type", "Page"},
		},
		{
			name:  "chart",
			ct:    models.ContentChart,
			path:  "Revenue",
			extra: UnitExtras{ImagePath: "cache/Q1-2025/x.png", ChartType: models.ChartTypeFinancialVisual, Page: 4},
			want: map[string]string{"Image_Path": "cache/Q1-2025/x.png", "Chart_Type": "Financial Visual",
				"Page": "4", "Document_Type": "earnings-slides", "Company": "alphabet", "Quarter": "Q1-2025"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := BuildMetadata(attrs, tt.ct, tt.path, tt.extra)
			for k, v := range tt.want {
				if md[k] != v {
					t.Errorf("%s = %q, want %q", k, md[k], v)
				}
			}
			for _, k := range tt.absent {
				if _, ok := md[k]; ok {
					t.Errorf("%s should be absent", k)
				}
			}
		})
	}
}

func TestContentID(t *testing.T) {
	a := ContentID("f.pdf", models.ContentTable, 3, []byte("<table/>"))
	if a != ContentID("f.pdf", models.ContentTable, 3, []byte("<table/>")) {
		t.Error("ContentID is not deterministic")
	}
	if a == ContentID("f.pdf", models.ContentTable, 4, []byte("<table/>")) {
		t.Error("ContentID ignores order")
	}
	if len(a) != len("f.pdf_table_")+12 {
		t.Errorf("ContentID = %s", a)
	}
}

func TestParseContext(t *testing.T) {
	pc := NewParseContext()
	if pc.CurrentHeading != models.DocumentStart {
		t.Fatalf("initial = %q", pc.CurrentHeading)
	}
	next := pc.WithHeading(1, "  Revenue  ")
	if next.CurrentHeading != "Revenue" || pc.CurrentHeading != models.DocumentStart {
		t.Errorf("WithHeading mutated or failed: %q / %q", next.CurrentHeading, pc.CurrentHeading)
	}
	next = next.WithHeading(2, "Cloud").WithHeading(4, "Detail")
	if next.CurrentHeading != "Revenue > Cloud > Detail" {
		t.Errorf("deep = %q", next.CurrentHeading)
	}
	if same := next.WithHeading(1, " "); same.CurrentHeading != next.CurrentHeading {
		t.Error("blank heading changed the context")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("503"), true},
		{fmt.Errorf("upsert: %w", internalerr.ErrDuplicateID), false},
		{internalerr.ErrDimensionMismatch, false},
		{context.Canceled, false},
	}
	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	for attempt := 0; attempt < 5; attempt++ {
		lo := base << attempt
		d := Backoff(attempt, base)
		if d < lo || d >= lo+lo/2 {
			t.Errorf("Backoff(%d) = %v, want in [%v, %v)", attempt, d, lo, lo+lo/2)
		}
	}
	if d := Backoff(40, time.Second); d < maxBackoff || d > maxBackoff*3/2 {
		t.Errorf("capped backoff = %v", d)
	}
	if Backoff(2, 0) != 0 {
		t.Error("zero base should not sleep")
	}
}

func TestDiscoverSources(t *testing.T) {
	root := t.TempDir()
	for _, p := range []string{
		"Q1-2025/alphabet-release.pdf",
		"Q1-2025/notes.txt",
		"Q2-2025/alphabet-slides.pdf",
		"image_cache/Q1-2025/chart.png",
	} {
		full := filepath.Join(root, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := DiscoverSources(root, "**/*.pdf")
	if err != nil {
		t.Fatalf("DiscoverSources: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("sources = %+v", got)
	}
	if got[0].FileName != "alphabet-release.pdf" || got[0].Quarter != "Q1-2025" {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Quarter != "Q2-2025" || got[1].DocumentID != DocumentID("Q2-2025", "alphabet-slides.pdf") {
		t.Errorf("second = %+v", got[1])
	}
	if DocumentID("Q1-2025", "a.pdf") == DocumentID("Q2-2025", "a.pdf") {
		t.Error("document ids must differ across quarters")
	}

	if _, err := DiscoverSources(root, "[bad"); err == nil {
		t.Error("expected pattern error")
	}
}
