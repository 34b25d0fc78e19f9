package ingestion_engine

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"
)

type Ingestor interface {
	Start(ctx context.Context)
	Enqueue(ctx context.Context, job Job) error
	IngestDocument(ctx context.Context, src Source) (*Report, error)
	IngestBatch(ctx context.Context, sources []Source) []BatchResult
	Reset(ctx context.Context) error
}

var _ Ingestor = (*DocumentIngestor)(nil)

// Job asks the worker pool to ingest a registered document whose original
// is held in the asset store.
type Job struct {
	ID         string
	DocumentID string
}

// JobResult is delivered to the result handler when a job finishes.
type JobResult struct {
	Job    Job
	Report *Report
	Err    error
}

// BatchResult is the outcome of one source in IngestBatch.
type BatchResult struct {
	Source Source
	Report *Report
	Err    error
}

// OnStart sets the callback invoked when a worker picks up a job. Call
// before Start.
func (i *DocumentIngestor) OnStart(fn func(Job)) {
	i.onStart = fn
}

// OnResult sets the callback invoked after each queued job. Call before
// Start.
func (i *DocumentIngestor) OnResult(fn func(JobResult)) {
	i.onResult = fn
}

// Start runs cfg.Workers goroutines reading from the job queue until ctx is
// done.
func (i *DocumentIngestor) Start(ctx context.Context) {
	for w := 1; w <= i.cfg.Workers; w++ {
		go func(w int) {
			for {
				select {
				case <-ctx.Done():
					i.log.Info("ingest worker shutting down", "worker", w)
					return
				case job := <-i.jobs:
					i.log.Info("processing job", "job", job.ID, "document", job.DocumentID, "worker", w)
					if i.onStart != nil {
						i.onStart(job)
					}
					rep, err := i.processJob(ctx, job)
					if err != nil {
						i.log.Error("job failed", "job", job.ID, "error", err)
					}
					if i.onResult != nil {
						i.onResult(JobResult{Job: job, Report: rep, Err: err})
					}
				}
			}
		}(w)
	}
}

// Enqueue schedules a job, blocking while the queue is full.
func (i *DocumentIngestor) Enqueue(ctx context.Context, job Job) error {
	select {
	case i.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (i *DocumentIngestor) processJob(ctx context.Context, job Job) (*Report, error) {
	if i.docs == nil {
		return nil, fmt.Errorf("job %s: no document registry configured", job.ID)
	}
	doc, err := i.docs.GetDocumentByID(ctx, job.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", job.ID, err)
	}
	rc, _, err := i.assets.OpenAsset(ctx, doc.StorageURL)
	if err != nil {
		return nil, fmt.Errorf("job %s: open original: %w", job.ID, err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, fmt.Errorf("job %s: read original: %w", job.ID, err)
	}
	return i.IngestDocument(ctx, Source{
		DocumentID: doc.ID,
		FileName:   doc.FileName,
		Quarter:    doc.Quarter,
		Data:       data,
		StorageURL: doc.StorageURL,
		SourceType: doc.SourceType,
	})
}

// IngestBatch ingests sources with cfg.Workers documents in flight. One
// document failing never stops the others; results keep the input order.
func (i *DocumentIngestor) IngestBatch(ctx context.Context, sources []Source) []BatchResult {
	results := make([]BatchResult, len(sources))
	var g errgroup.Group
	g.SetLimit(i.cfg.Workers)
	for idx, src := range sources {
		g.Go(func() error {
			rep, err := i.IngestDocument(ctx, src)
			if err != nil {
				i.log.Error("document failed", "file", src.FileName, "error", err)
			}
			results[idx] = BatchResult{Source: src, Report: rep, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
