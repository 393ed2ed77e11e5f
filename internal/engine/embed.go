package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"
)

// Embedder turns text into vectors through an OpenAI-compatible /embeddings endpoint
// (OpenAI, Ollama, HuggingFace TEI all speak it).
type Embedder struct {
	client    openai.Client
	model     string
	batchSize int
	limiter   *rate.Limiter
}

// NewEmbedder creates an embedder from the engine config fields.
// rps <= 0 disables pacing of outbound requests.
func NewEmbedder(c Config) *Embedder {
	opts := []option.RequestOption{
		option.WithBaseURL(c.EmbedAPIBase),
		option.WithAPIKey(c.EmbedAPIKey),
		option.WithMaxRetries(DefaultRetryConfig.MaxRetries),
	}
	if c.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(c.HTTPClient))
	}
	limit := rate.Inf
	if c.EmbedRPS > 0 {
		limit = rate.Limit(c.EmbedRPS)
	}
	batch := c.EmbedBatchSize
	if batch <= 0 {
		batch = 32
	}
	return &Embedder{
		client:    openai.NewClient(opts...),
		model:     c.EmbedModel,
		batchSize: batch,
		limiter:   rate.NewLimiter(limit, 1),
	}
}

// Embed returns the embedding of a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in batches, preserving input order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		vecs, err := e.embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *Embedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	metrics.EmbedRequests.Add(1)
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		metrics.EmbedErrors.Add(1)
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		metrics.EmbedErrors.Add(1)
		return nil, fmt.Errorf("embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	vecs := make([][]float32, len(texts))
	for i, d := range resp.Data {
		idx := int(d.Index)
		if idx < 0 || idx >= len(vecs) || vecs[idx] != nil {
			metrics.EmbedErrors.Add(1)
			return nil, fmt.Errorf("embeddings: bad index %d at position %d", d.Index, i)
		}
		if len(d.Embedding) == 0 {
			metrics.EmbedErrors.Add(1)
			return nil, fmt.Errorf("embeddings: empty vector for input %d", idx)
		}
		vecs[idx] = toFloat32(d.Embedding)
	}
	return vecs, nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		if math.IsNaN(x) {
			x = 0
		}
		out[i] = float32(x)
	}
	return out
}
