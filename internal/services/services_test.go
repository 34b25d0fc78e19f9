package services

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/markdave123-py/Ledgerlens/internal/core/database/memstore"
	"github.com/markdave123-py/Ledgerlens/internal/core/ingestion_engine"
	objectclient "github.com/markdave123-py/Ledgerlens/internal/core/object-client"
	"github.com/markdave123-py/Ledgerlens/internal/internalerr"
	"github.com/markdave123-py/Ledgerlens/internal/models"
)

type queueIngestor struct {
	queued  []ingestion_engine.Job
	resets  int
	failing error
}

func (q *queueIngestor) Start(ctx context.Context) {}

func (q *queueIngestor) Enqueue(ctx context.Context, job ingestion_engine.Job) error {
	if q.failing != nil {
		return q.failing
	}
	q.queued = append(q.queued, job)
	return nil
}

func (q *queueIngestor) IngestDocument(ctx context.Context, src ingestion_engine.Source) (*ingestion_engine.Report, error) {
	return nil, nil
}

func (q *queueIngestor) IngestBatch(ctx context.Context, sources []ingestion_engine.Source) []ingestion_engine.BatchResult {
	return nil
}

func (q *queueIngestor) Reset(ctx context.Context) error {
	q.resets++
	return nil
}

func newService(t *testing.T) (*DocumentService, *queueIngestor, *memstore.Store, *objectclient.LocalStore) {
	t.Helper()
	store := memstore.New("financial_reports")
	assets, err := objectclient.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ing := &queueIngestor{}
	return NewDocumentService(store, store, assets, ing, NewJobService(time.Hour), nil), ing, store, assets
}

func TestUpload(t *testing.T) {
	svc, ing, _, assets := newService(t)
	ctx := context.Background()

	doc, job, err := svc.Upload(ctx, "../../alphabet-release.pdf", "Q1-2025", []byte("%PDF-1.7"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if doc.FileName != "alphabet-release.pdf" || doc.Quarter != "Q1-2025" || doc.Status != models.StatusQueued {
		t.Errorf("doc = %+v", doc)
	}
	if doc.ID != ingestion_engine.DocumentID("Q1-2025", "alphabet-release.pdf") {
		t.Errorf("doc id %s is not the name-based id", doc.ID)
	}
	if len(ing.queued) != 1 || ing.queued[0].ID != job.ID || ing.queued[0].DocumentID != doc.ID {
		t.Errorf("queued = %+v, job = %+v", ing.queued, job)
	}
	if job.Status != models.StatusQueued {
		t.Errorf("job status = %s", job.Status)
	}

	rc, ct, err := assets.OpenAsset(ctx, doc.StorageURL)
	if err != nil {
		t.Fatalf("original not stored: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "%PDF-1.7" || ct != "application/pdf" {
		t.Errorf("original = %q (%s)", body, ct)
	}

	got, err := svc.Get(ctx, doc.ID)
	if err != nil || got.StorageURL != doc.StorageURL {
		t.Errorf("Get = %+v, %v", got, err)
	}
	list, _ := svc.List(ctx, "Q2-2025")
	if len(list) != 0 {
		t.Errorf("List(Q2-2025) = %d documents", len(list))
	}
}

func TestUpload_Rejects(t *testing.T) {
	svc, ing, _, _ := newService(t)
	tests := []struct {
		name     string
		filename string
		quarter  string
		data     []byte
		want     error
	}{
		{"unsupported", "notes.xlsx", "Q1-2025", []byte("x"), internalerr.ErrUnsupportedFormat},
		{"empty body", "deck.pdf", "Q1-2025", nil, internalerr.ErrInvalidInput},
		{"no name", "", "Q1-2025", []byte("x"), internalerr.ErrInvalidInput},
		{"quarter escapes", "deck.pdf", "../Q1", []byte("x"), internalerr.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := svc.Upload(context.Background(), tt.filename, tt.quarter, tt.data); !errors.Is(err, tt.want) {
				t.Errorf("Upload = %v, want %v", err, tt.want)
			}
		})
	}
	if len(ing.queued) != 0 {
		t.Errorf("rejected uploads were queued: %+v", ing.queued)
	}
}

func TestUpload_EnqueueFailureMarksJobFailed(t *testing.T) {
	svc, ing, _, _ := newService(t)
	ing.failing = context.Canceled
	if _, _, err := svc.Upload(context.Background(), "deck.pdf", "Q1-2025", []byte("x")); !errors.Is(err, context.Canceled) {
		t.Fatalf("Upload = %v", err)
	}
	for _, j := range svc.jobs.jobs {
		if s := j.Snapshot(); s.Status != models.StatusFailed || s.Error == "" {
			t.Errorf("job = %+v", s)
		}
	}
}

func TestJobLifecycle(t *testing.T) {
	svc, ing, _, _ := newService(t)
	_, job, err := svc.Upload(context.Background(), "deck.pdf", "Q1-2025", []byte("x"))
	if err != nil {
		t.Fatal(err)
	}

	svc.jobs.MarkProcessing(job.ID)
	if s, _ := svc.Job(job.ID); s.Status != models.StatusProcessing {
		t.Errorf("status = %s, want processing", s.Status)
	}

	svc.jobs.Complete(ingestion_engine.JobResult{Job: ing.queued[0], Err: errors.New("parse failed")})
	s, err := svc.Job(job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if s.Status != models.StatusFailed || s.Error != "parse failed" {
		t.Errorf("snapshot = %+v", s)
	}

	if _, err := svc.Job("missing"); !errors.Is(err, internalerr.ErrNotFound) {
		t.Errorf("Job(missing) = %v", err)
	}
}

func TestJobIDsAreOrdered(t *testing.T) {
	js := NewJobService(time.Hour)
	prev := ""
	for i := 0; i < 50; i++ {
		j := js.New(&models.Document{ID: "d"})
		if j.ID <= prev {
			t.Fatalf("job id %s not after %s", j.ID, prev)
		}
		prev = j.ID
	}
}

func TestJobCleanup(t *testing.T) {
	js := NewJobService(time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	js.now = func() time.Time { return now }

	running := js.New(&models.Document{ID: "a"})
	done := js.New(&models.Document{ID: "b"})
	js.Complete(ingestion_engine.JobResult{Job: ingestion_engine.Job{ID: done.ID}})

	now = now.Add(time.Hour)
	js.Cleanup()
	if _, ok := js.Get(done.ID); ok {
		t.Error("finished job survived cleanup")
	}
	if _, ok := js.Get(running.ID); !ok {
		t.Error("queued job was evicted")
	}
}

func TestStatsAndReset(t *testing.T) {
	svc, ing, store, _ := newService(t)
	ctx := context.Background()
	if _, _, err := svc.Upload(ctx, "deck.pdf", "Q1-2025", []byte("x")); err != nil {
		t.Fatal(err)
	}
	err := store.Upsert(ctx, []models.RetrievableUnit{{
		ID: "u1", DocumentID: "d", Text: "x", Embedding: []float32{1, 0},
		Metadata: map[string]string{models.MetaContentType: "text"},
	}})
	if err != nil {
		t.Fatal(err)
	}

	st, err := svc.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Collection != "financial_reports" || st.Units != 1 || st.Documents != 1 || st.ByStatus[models.StatusQueued] != 1 {
		t.Errorf("stats = %+v", st)
	}
	if err := svc.Reset(ctx); err != nil || ing.resets != 1 {
		t.Errorf("Reset = %v, resets = %d", err, ing.resets)
	}
}
