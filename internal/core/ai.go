package core

import "context"

// EmbeddingProvider maps texts to fixed-length vectors. The same provider and
// model must serve ingestion and queries of one collection.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// VisionDescriber turns an image into a textual description following
// instruction.
type VisionDescriber interface {
	DescribeImage(ctx context.Context, image []byte, mimeType, instruction string) (string, error)
}
