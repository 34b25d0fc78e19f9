package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/markdave123-py/Ledgerlens/internal/api/handlers"
	"github.com/markdave123-py/Ledgerlens/internal/config"
	"github.com/markdave123-py/Ledgerlens/internal/core"
	db "github.com/markdave123-py/Ledgerlens/internal/core/database"
	"github.com/markdave123-py/Ledgerlens/internal/core/database/memstore"
	"github.com/markdave123-py/Ledgerlens/internal/core/database/redisstore"
	"github.com/markdave123-py/Ledgerlens/internal/core/database/sqlitestore"
	"github.com/markdave123-py/Ledgerlens/internal/core/ingestion_engine"
	"github.com/markdave123-py/Ledgerlens/internal/core/llm"
	objectclient "github.com/markdave123-py/Ledgerlens/internal/core/object-client"
	"github.com/markdave123-py/Ledgerlens/internal/core/retrieval"
	"github.com/markdave123-py/Ledgerlens/internal/services"
)

const jobTTL = 24 * time.Hour

type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Collection core.VectorCollection
	Documents  core.DocumentStore
	Assets     core.AssetStore
	Ingestor   *ingestion_engine.DocumentIngestor
	Retrieval  *retrieval.Engine
	Jobs       *services.JobService
	DocService *services.DocumentService
	Server     *Server

	closers []io.Closer
}

// NewApp connects every backend selected by cfg and wires the pipeline,
// the retrieval engine and the HTTP server.
func NewApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = cfg.NewLogger()
	}
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	a := &App{Config: cfg, Logger: log}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	if err := a.openStores(appCtx); err != nil {
		return nil, err
	}
	log.Info("vector collection ready", "backend", cfg.VectorBackend, "collection", a.Collection.Name())

	assets, err := openAssets(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	a.Assets = assets
	log.Info("asset store ready", "backend", cfg.AssetBackend)

	embedder, err := a.openEmbedder(appCtx)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder: %w", err)
	}

	var describer core.VisionDescriber
	if cfg.AIAPIKey != "" {
		vision, err := llm.NewGeminiVision(appCtx, cfg.AIAPIKey, cfg.VisionModel)
		if err != nil {
			return nil, fmt.Errorf("couldn't initialize the vision model: %w", err)
		}
		a.closers = append(a.closers, vision)
		describer = vision
	} else {
		log.Warn("no GEMINI_API_KEY; charts will be skipped")
	}

	catalog := config.DefaultCatalog()
	if cfg.CatalogPath != "" {
		if catalog, err = config.LoadCatalog(cfg.CatalogPath); err != nil {
			return nil, err
		}
	}

	ing, err := ingestion_engine.NewDocumentIngestor(ingestion_engine.Deps{
		Collection: a.Collection,
		Documents:  a.Documents,
		Assets:     a.Assets,
		Embedder:   embedder,
		Describer:  describer,
		Catalog:    catalog,
		Logger:     log,
	}, ingestion_engine.ConfigFrom(cfg))
	if err != nil {
		return nil, err
	}
	a.Ingestor = ing

	a.Retrieval = retrieval.NewEngine(a.Collection, embedder, retrieval.Config{
		NarrativeTopK: cfg.NarrativeTopK,
		TabularTopK:   cfg.TabularTopK,
		CombinedTopK:  cfg.CombinedTopK,
	}, log)

	a.Jobs = services.NewJobService(jobTTL)
	ing.OnStart(func(j ingestion_engine.Job) { a.Jobs.MarkProcessing(j.ID) })
	ing.OnResult(a.Jobs.Complete)
	a.DocService = services.NewDocumentService(a.Collection, a.Documents, a.Assets, ing, a.Jobs, log)

	a.Server = NewServer(cfg, log,
		handlers.NewDocumentHandler(a.DocService, a.Assets, cfg.MaxUploadBytes),
		handlers.NewRetrievalHandler(a.Retrieval))

	ok = true
	return a, nil
}

func (a *App) openStores(ctx context.Context) error {
	cfg := a.Config
	switch cfg.VectorBackend {
	case config.BackendPgvector:
		client, err := db.NewDatabaseClient(ctx, cfg)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, client)
		a.Collection, a.Documents = client, client
	case config.BackendSQLite:
		store, err := sqlitestore.Open(ctx, cfg.SQLitePath, cfg.CollectionName)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, store)
		a.Collection, a.Documents = store, store
	case config.BackendRedis:
		store, err := redisstore.New(ctx, redisstore.Config{
			Addr:       cfg.RedisAddr,
			Password:   cfg.RedisPassword,
			DB:         cfg.RedisDB,
			Collection: cfg.CollectionName,
		})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, store)
		a.Collection = store
		a.Documents = memstore.New(cfg.CollectionName)
	case config.BackendMemory:
		store := memstore.New(cfg.CollectionName)
		a.Collection, a.Documents = store, store
	default:
		return fmt.Errorf("unknown VECTOR_BACKEND %q", cfg.VectorBackend)
	}
	return nil
}

func openAssets(ctx context.Context, cfg *config.Config) (core.AssetStore, error) {
	if cfg.AssetBackend == config.AssetsS3 {
		s3, err := objectclient.NewS3Store(ctx, cfg, cfg.ImageCacheDir)
		if err != nil {
			return nil, err
		}
		return s3, nil
	}
	local, err := objectclient.NewLocalStore(cfg.ImageCacheDir)
	if err != nil {
		return nil, err
	}
	return local, nil
}

func (a *App) openEmbedder(ctx context.Context) (core.EmbeddingProvider, error) {
	cfg := a.Config
	if cfg.EmbedProvider == config.EmbedOpenAI {
		emb, err := llm.NewOpenAIEmbedder(ctx, llm.OpenAIConfig{
			APIKey:    cfg.OpenAIAPIKey,
			BaseURL:   cfg.OpenAIBaseURL,
			Model:     cfg.EmbedModel,
			Dimension: cfg.EmbedDim,
			BatchSize: cfg.EmbedBatchSize,
		})
		if err != nil {
			return nil, err
		}
		return emb, nil
	}
	emb, err := llm.NewGeminiEmbedder(ctx, cfg.AIAPIKey, cfg.EmbedModel, cfg.EmbedDim)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, emb)
	return emb, nil
}

// Start launches the ingestion workers and the job sweeper. Both stop when
// ctx is done.
func (a *App) Start(ctx context.Context) {
	a.Ingestor.Start(ctx)
	go func() {
		t := time.NewTicker(time.Hour)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				a.Jobs.Cleanup()
			}
		}
	}()
}

// Close releases backends in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.Logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
