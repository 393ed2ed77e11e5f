package rag

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
)

// Embedder maps text to dense vectors. Batch results keep input order.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Chunk is one retrieved piece of transcript.
type Chunk struct {
	Seq        int
	Text       string
	Similarity float32
}

// Index is an in-memory similarity index over the chunks of one video.
type Index struct {
	videoID string
	coll    *chromem.Collection
}

// NewIndex embeds chunks and stores them. Queries are embedded with the same embedder.
func NewIndex(ctx context.Context, videoID string, chunks []string, emb Embedder) (*Index, error) {
	if len(chunks) == 0 {
		return nil, errors.New("no chunks to index")
	}
	coll, err := chromem.NewDB().CreateCollection(videoID, map[string]string{"video_id": videoID}, emb.Embed)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	vecs, err := emb.EmbedBatch(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vecs) != len(chunks) {
		return nil, fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vecs), len(chunks))
	}

	docs := make([]chromem.Document, len(chunks))
	for i, text := range chunks {
		docs[i] = chromem.Document{
			ID:        uuid.NewString(),
			Content:   text,
			Embedding: vecs[i],
			Metadata:  map[string]string{"video_id": videoID, "chunk": strconv.Itoa(i)},
		}
	}
	if err := coll.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("index chunks: %w", err)
	}
	return &Index{videoID: videoID, coll: coll}, nil
}

// Len reports the number of indexed chunks.
func (ix *Index) Len() int { return ix.coll.Count() }

// Search returns up to k chunks most similar to query, best first.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]Chunk, error) {
	if n := ix.coll.Count(); k > n {
		k = n
	}
	if k <= 0 {
		return nil, nil
	}
	res, err := ix.coll.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].Similarity > res[j].Similarity })

	out := make([]Chunk, len(res))
	for i, r := range res {
		seq, _ := strconv.Atoi(r.Metadata["chunk"])
		out[i] = Chunk{Seq: seq, Text: r.Content, Similarity: r.Similarity}
	}
	return out, nil
}
