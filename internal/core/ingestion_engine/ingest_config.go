package ingestion_engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/markdave123-py/Ledgerlens/internal/config"
	"github.com/markdave123-py/Ledgerlens/internal/core"
	"github.com/markdave123-py/Ledgerlens/internal/core/chunker"
	"github.com/markdave123-py/Ledgerlens/internal/core/parser"
)

// IngestConfig tunes the pipeline.
//
// EmbedBatchSize:        units per embedding request.
// MaxConcurrentEmbeds:   embedding batches in flight per document.
// MaxConcurrentDescribe: vision calls in flight per document.
// Workers:               documents processed in parallel by IngestBatch and the job queue.
// MaxRetries:            retries after the first attempt of a retryable call.
type IngestConfig struct {
	Chunking              chunker.Config
	EmbedBatchSize        int
	MaxConcurrentEmbeds   int
	MaxConcurrentDescribe int
	Workers               int
	MaxRetries            int
	RetryBaseDelay        time.Duration
	QueueSize             int
}

// DefaultIngestConfig mirrors the configuration defaults.
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		Chunking:              chunker.DefaultConfig(),
		EmbedBatchSize:        16,
		MaxConcurrentEmbeds:   4,
		MaxConcurrentDescribe: 2,
		Workers:               2,
		MaxRetries:            3,
		RetryBaseDelay:        time.Second,
		QueueSize:             64,
	}
}

// ConfigFrom maps process configuration onto the pipeline knobs.
func ConfigFrom(c *config.Config) IngestConfig {
	cfg := DefaultIngestConfig()
	cfg.Chunking = chunker.Config{ChunkSize: c.ChunkSize, ChunkOverlap: c.ChunkOverlap}
	cfg.EmbedBatchSize = c.EmbedBatchSize
	cfg.MaxConcurrentEmbeds = c.MaxConcurrentEmbeds
	cfg.MaxConcurrentDescribe = c.MaxConcurrentDescribe
	cfg.Workers = c.IngestWorkers
	cfg.MaxRetries = c.MaxRetries
	cfg.RetryBaseDelay = c.RetryBaseDelay
	return cfg
}

func (c IngestConfig) normalized() IngestConfig {
	d := DefaultIngestConfig()
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = d.EmbedBatchSize
	}
	if c.MaxConcurrentEmbeds <= 0 {
		c.MaxConcurrentEmbeds = d.MaxConcurrentEmbeds
	}
	if c.MaxConcurrentDescribe <= 0 {
		c.MaxConcurrentDescribe = d.MaxConcurrentDescribe
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBaseDelay < 0 {
		c.RetryBaseDelay = 0
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	return c
}

// Deps are the collaborators of a DocumentIngestor. Documents and Describer
// may be nil: without a registry nothing is recorded, without a describer
// every chart is reported as a soft failure.
type Deps struct {
	Collection core.VectorCollection
	Documents  core.DocumentStore
	Assets     core.AssetStore
	Embedder   core.EmbeddingProvider
	Describer  core.VisionDescriber
	Parsers    core.ParserFactory
	Catalog    *config.Catalog
	Logger     *slog.Logger
}

// DocumentIngestor orchestrates parsing, classification, enrichment,
// chunking, embedding and persistence of source documents, either directly
// (IngestDocument, IngestBatch) or through a background job queue.
type DocumentIngestor struct {
	collection core.VectorCollection
	docs       core.DocumentStore
	assets     core.AssetStore
	embedder   core.EmbeddingProvider
	describer  core.VisionDescriber
	parsers    core.ParserFactory
	catalog    *config.Catalog
	cfg        IngestConfig
	log        *slog.Logger

	jobs     chan Job
	onStart  func(Job)
	onResult func(JobResult)
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewDocumentIngestor(d Deps, cfg IngestConfig) (*DocumentIngestor, error) {
	if d.Collection == nil || d.Embedder == nil || d.Assets == nil {
		return nil, fmt.Errorf("ingestor needs a collection, an embedder and an asset store")
	}
	if d.Parsers == nil {
		d.Parsers = DefaultParsers
	}
	if d.Catalog == nil {
		d.Catalog = config.DefaultCatalog()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	cfg = cfg.normalized()
	return &DocumentIngestor{
		collection: d.Collection,
		docs:       d.Documents,
		assets:     d.Assets,
		embedder:   d.Embedder,
		describer:  d.Describer,
		parsers:    d.Parsers,
		catalog:    d.Catalog,
		cfg:        cfg,
		log:        d.Logger,
		jobs:       make(chan Job, cfg.QueueSize),
		sleep:      sleepCtx,
	}, nil
}

// DefaultParsers selects a parser by file extension.
func DefaultParsers(filename string) (core.DocumentParser, error) {
	p, err := parser.ForFile(filename)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Collection exposes the target collection, for resets.
func (i *DocumentIngestor) Collection() core.VectorCollection { return i.collection }
