// Package retrieval answers metadata-filtered nearest-neighbour queries over
// a collection and formats the hits for a downstream agent.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/markdave123-py/Ledgerlens/internal/core"
	"github.com/markdave123-py/Ledgerlens/internal/core/filter"
	"github.com/markdave123-py/Ledgerlens/internal/internalerr"
	"github.com/markdave123-py/Ledgerlens/internal/models"
)

// Mode selects a canned retrieval: content-type restriction, K and
// formatting.
type Mode string

const (
	ModeNarrative Mode = "narrative"
	ModeTables    Mode = "tables"
	ModeAll       Mode = "all"
)

// ParseMode accepts the mode names used by the HTTP API and the CLI.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "narrative", "text":
		return ModeNarrative, nil
	case "tables", "charts", "tables-or-charts":
		return ModeTables, nil
	case "all", "financial-data", "combined":
		return ModeAll, nil
	}
	return "", fmt.Errorf("%w: unknown retrieval mode %q", internalerr.ErrInvalidInput, s)
}

// Request is a generic retrieval. Empty ContentTypes and Quarter do not
// restrict; K <= 0 falls back to the combined top-k.
type Request struct {
	Query        string
	ContentTypes []models.ContentType
	Quarter      string
	K            int
	Where        filter.Expr
}

// Response is a formatted retrieval. Empty responses carry the mode's
// sentinel text.
type Response struct {
	Mode    Mode                `json:"mode"`
	Results []models.ScoredUnit `json:"results"`
	Text    string              `json:"text"`
	Empty   bool                `json:"empty"`
}

type Config struct {
	NarrativeTopK int
	TabularTopK   int
	CombinedTopK  int
}

func DefaultConfig() Config {
	return Config{NarrativeTopK: 10, TabularTopK: 5, CombinedTopK: 15}
}

type Engine struct {
	collection core.VectorCollection
	embedder   core.EmbeddingProvider
	cfg        Config
	log        *slog.Logger
}

// NewEngine builds an engine. embedder must be the provider the collection
// was ingested with.
func NewEngine(collection core.VectorCollection, embedder core.EmbeddingProvider, cfg Config, log *slog.Logger) *Engine {
	d := DefaultConfig()
	if cfg.NarrativeTopK <= 0 {
		cfg.NarrativeTopK = d.NarrativeTopK
	}
	if cfg.TabularTopK <= 0 {
		cfg.TabularTopK = d.TabularTopK
	}
	if cfg.CombinedTopK <= 0 {
		cfg.CombinedTopK = d.CombinedTopK
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{collection: collection, embedder: embedder, cfg: cfg, log: log}
}

// BuildFilter is the conjunction of the content-type disjunction, the
// quarter equality and where.
func BuildFilter(types []models.ContentType, quarter string, where filter.Expr) (filter.Expr, error) {
	var ct filter.Expr
	if len(types) > 0 {
		vals := make([]string, len(types))
		for i, t := range types {
			if !t.Valid() {
				return filter.Expr{}, fmt.Errorf("%w: unknown content type %q", internalerr.ErrInvalidFilter, t)
			}
			vals[i] = string(t)
		}
		ct = filter.In(models.MetaContentType, vals...)
	}
	var q filter.Expr
	if quarter = strings.TrimSpace(quarter); quarter != "" {
		q = filter.Eq(models.MetaQuarter, quarter)
	}
	if err := where.Validate(); err != nil {
		return filter.Expr{}, err
	}
	return filter.And(ct, q, where), nil
}

// Retrieve embeds the query and returns the top K matches, closest first.
func (e *Engine) Retrieve(ctx context.Context, req Request) ([]models.ScoredUnit, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, internalerr.ErrEmptyQuery
	}
	where, err := BuildFilter(req.ContentTypes, req.Quarter, req.Where)
	if err != nil {
		return nil, err
	}
	k := req.K
	if k <= 0 {
		k = e.cfg.CombinedTopK
	}

	vecs, err := e.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("embed query: provider returned %d vectors", len(vecs))
	}

	hits, err := e.collection.Query(ctx, vecs[0], k, where)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", e.collection.Name(), err)
	}
	e.log.Debug("retrieved", "filter", where.String(), "k", k, "hits", len(hits))
	return hits, nil
}

// RetrieveMode runs one of the canned retrievals with an optional extra
// filter and formats the result.
func (e *Engine) RetrieveMode(ctx context.Context, mode Mode, query, quarter string, where filter.Expr) (*Response, error) {
	req := Request{Query: query, Quarter: quarter, Where: where}
	switch mode {
	case ModeNarrative:
		req.ContentTypes = []models.ContentType{models.ContentText}
		req.K = e.cfg.NarrativeTopK
	case ModeTables:
		req.ContentTypes = []models.ContentType{models.ContentTable, models.ContentChart}
		req.K = e.cfg.TabularTopK
	case ModeAll:
		req.K = e.cfg.CombinedTopK
	default:
		return nil, fmt.Errorf("%w: unknown retrieval mode %q", internalerr.ErrInvalidInput, mode)
	}
	hits, err := e.Retrieve(ctx, req)
	if err != nil {
		return nil, err
	}
	return Format(mode, hits), nil
}

// RetrieveNarrative searches text units only.
func (e *Engine) RetrieveNarrative(ctx context.Context, query, quarter string) (*Response, error) {
	return e.RetrieveMode(ctx, ModeNarrative, query, quarter, filter.Expr{})
}

// RetrieveTablesOrCharts searches table and chart units only.
func (e *Engine) RetrieveTablesOrCharts(ctx context.Context, query, quarter string) (*Response, error) {
	return e.RetrieveMode(ctx, ModeTables, query, quarter, filter.Expr{})
}

// RetrieveFinancialData searches every content type.
func (e *Engine) RetrieveFinancialData(ctx context.Context, query, quarter string) (*Response, error) {
	return e.RetrieveMode(ctx, ModeAll, query, quarter, filter.Expr{})
}
