// Package embedding normalizes heterogeneous file content into text and
// turns it into fixed-dimension vectors through an injected embedder.
package embedding

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/kailas-cloud/filedex/internal/config"
	"github.com/kailas-cloud/filedex/internal/domain"
)

// Pipeline owns text preprocessing and per-content-type extraction. The
// embedding model itself is a black box behind domain.Embedder.
type Pipeline struct {
	embedder domain.Embedder
	cfg      config.VectorConfig
	logger   *zap.Logger
}

// New creates an embedding pipeline.
func New(embedder domain.Embedder, cfg config.VectorConfig, logger *zap.Logger) *Pipeline {
	return &Pipeline{embedder: embedder, cfg: cfg, logger: logger}
}

// EmbedText preprocesses and embeds a text string.
func (p *Pipeline) EmbedText(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	processed := Preprocess(text, p.cfg.MaxTextLength, p.cfg.TruncationStrategy)

	result, err := p.embedder.Embed(ctx, processed)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}
	return result, nil
}

// EmbedFile extracts text from a file according to its content type and
// embeds it. The content variant is resolved once; see content.go for the
// per-type extraction and fallback rules.
func (p *Pipeline) EmbedFile(ctx context.Context, path, contentType string) (domain.EmbeddingResult, error) {
	text, err := resolveContent(path, contentType, p.cfg).extract()
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("extract %s: %w", path, err)
	}

	p.logger.Debug("extracted file content",
		zap.String("path", path),
		zap.String("content_type", contentType),
		zap.Int("chars", len(text)),
	)

	return p.EmbedText(ctx, text)
}

// EmbedBatch preprocesses and embeds multiple texts, using the provider's
// native batch endpoint when available.
func (p *Pipeline) EmbedBatch(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	processed := make([]string, len(texts))
	for i, t := range texts {
		processed[i] = Preprocess(t, p.cfg.MaxTextLength, p.cfg.TruncationStrategy)
	}

	if be, ok := p.embedder.(domain.BatchEmbedder); ok {
		res, err := be.BatchEmbed(ctx, processed)
		if err != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
		}
		return res, nil
	}

	res, err := domain.BatchFallback(ctx, p.embedder, processed)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed fallback: %w", err)
	}
	return res, nil
}

// Dimension returns the configured vector dimension.
func (p *Pipeline) Dimension() int { return p.cfg.Dimension }

// Cosine computes the cosine similarity of two vectors. It is symmetric,
// 1.0 for identical non-zero vectors, and 0.0 when either vector has zero
// magnitude (never divides by zero). Result may be negative for vectors
// pointing in opposite directions.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	for i := n; i < len(a); i++ {
		normA += float64(a[i]) * float64(a[i])
	}
	for i := n; i < len(b); i++ {
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
