package llm

import (
	"context"
	"fmt"

	openaiEmbed "github.com/cloudwego/eino-ext/components/embedding/openai"
	einoEmbedding "github.com/cloudwego/eino/components/embedding"

	"github.com/markdave123-py/Ledgerlens/internal/core"
)

// OpenAIConfig configures an OpenAI-compatible embedding endpoint.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
	BatchSize int
}

// OpenAIEmbedder adapts an eino embedder to core.EmbeddingProvider.
type OpenAIEmbedder struct {
	embedder  einoEmbedding.Embedder
	dim       int
	batchSize int
}

func NewOpenAIEmbedder(ctx context.Context, cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required in config")
	}
	model := cfg.Model
	if model == "" {
		model = "text-embedding-3-small"
	}
	ec := &openaiEmbed.EmbeddingConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   model,
	}
	if cfg.Dimension > 0 {
		d := cfg.Dimension
		ec.Dimensions = &d
	}
	e, err := openaiEmbed.NewEmbedder(ctx, ec)
	if err != nil {
		return nil, fmt.Errorf("create openai embedder: %w", err)
	}
	return newOpenAIEmbedder(e, cfg.Dimension, cfg.BatchSize), nil
}

func newOpenAIEmbedder(e einoEmbedding.Embedder, dim, batchSize int) *OpenAIEmbedder {
	if batchSize <= 0 {
		batchSize = 64
	}
	return &OpenAIEmbedder{embedder: e, dim: dim, batchSize: batchSize}
}

func (o *OpenAIEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	err := inBatches(len(texts), o.batchSize, func(lo, hi int) error {
		vectors, err := o.embedder.EmbedStrings(ctx, texts[lo:hi])
		if err != nil {
			return fmt.Errorf("openai embed: %w", err)
		}
		for _, v := range vectors {
			out = append(out, toFloat32(v))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := checkVectors(out, len(texts), o.dim); err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	return out, nil
}

var _ core.EmbeddingProvider = (*OpenAIEmbedder)(nil)
