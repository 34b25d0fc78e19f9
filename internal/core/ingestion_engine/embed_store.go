package ingestion_engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/Ledgerlens/internal/models"
)

// embedAndPersist embeds units in batches and upserts them. Batches run
// concurrently and fail independently. A batch that keeps failing is retried
// one unit at a time; units that still fail are dropped and reported.
func (i *DocumentIngestor) embedAndPersist(ctx context.Context, units []models.RetrievableUnit, rep *Report) {
	var g errgroup.Group
	g.SetLimit(i.cfg.MaxConcurrentEmbeds)
	for lo := 0; lo < len(units); lo += i.cfg.EmbedBatchSize {
		batch := units[lo:min(lo+i.cfg.EmbedBatchSize, len(units))]
		g.Go(func() error {
			i.writeBatch(ctx, batch, rep)
			return nil
		})
	}
	_ = g.Wait()
}

func (i *DocumentIngestor) writeBatch(ctx context.Context, batch []models.RetrievableUnit, rep *Report) {
	stage := StageEmbed
	err := i.embedBatch(ctx, batch)
	if err == nil {
		stage = StageUpsert
		err = i.withRetry(ctx, "upsert", func() error {
			return i.collection.Upsert(ctx, batch)
		})
	}
	if err == nil {
		rep.stored(batch)
		return
	}

	if len(batch) == 1 || ctx.Err() != nil {
		for _, u := range batch {
			i.log.Error("unit dropped", "unit", u.ID, "stage", stage, "error", err)
			rep.fail(stage, u.ID, err)
		}
		return
	}
	i.log.Warn("batch failed, retrying units one by one", "stage", stage, "units", len(batch), "error", err)
	for k := range batch {
		i.writeBatch(ctx, batch[k:k+1], rep)
	}
}

// embedBatch fills in missing embeddings in place.
func (i *DocumentIngestor) embedBatch(ctx context.Context, batch []models.RetrievableUnit) error {
	var idx []int
	var texts []string
	for k, u := range batch {
		if len(u.Embedding) == 0 {
			idx = append(idx, k)
			texts = append(texts, u.Text)
		}
	}
	if len(texts) == 0 {
		return nil
	}

	var vecs [][]float32
	err := i.withRetry(ctx, "embed", func() error {
		var err error
		vecs, err = i.embedder.EmbedTexts(ctx, texts)
		if err == nil && len(vecs) != len(texts) {
			err = fmt.Errorf("embed size mismatch: got %d want %d", len(vecs), len(texts))
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	for n, k := range idx {
		batch[k].Embedding = vecs[n]
	}
	return nil
}
