package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// embeddingsServer answers /v1/embeddings with [len(input), position] vectors,
// listed in reverse order to exercise index handling.
func embeddingsServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			http.NotFound(w, r)
			return
		}
		calls.Add(1)
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		type item struct {
			Object    string    `json:"object"`
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		}
		data := make([]item, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, item{Object: "embedding", Index: i, Embedding: []float64{float64(len(req.Input[i])), float64(i)}})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  req.Model,
			"data":   data,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
}

func TestEmbedderBatchPreservesOrder(t *testing.T) {
	var calls atomic.Int32
	srv := embeddingsServer(t, &calls)
	defer srv.Close()

	e := NewEmbedder(Config{
		EmbedAPIBase:   srv.URL + "/v1",
		EmbedAPIKey:    "test",
		EmbedModel:     "all-minilm",
		EmbedBatchSize: 2,
		HTTPClient:     srv.Client(),
	})

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vecs, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))
	for i, v := range vecs {
		assert.Equal(t, float32(len(texts[i])), v[0], "vector %d out of order", i)
	}
	assert.EqualValues(t, 3, calls.Load(), "5 texts in batches of 2")
}

func TestEmbedderSingle(t *testing.T) {
	var calls atomic.Int32
	srv := embeddingsServer(t, &calls)
	defer srv.Close()

	e := NewEmbedder(Config{EmbedAPIBase: srv.URL + "/v1", EmbedAPIKey: "test", EmbedModel: "all-minilm", HTTPClient: srv.Client()})
	v, err := e.Embed(context.Background(), "what is deepmind")
	require.NoError(t, err)
	assert.Equal(t, []float32{16, 0}, v)
}

func TestEmbedderServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"model not found"}}`, http.StatusNotFound)
	}))
	defer srv.Close()

	e := NewEmbedder(Config{EmbedAPIBase: srv.URL + "/v1", EmbedAPIKey: "test", EmbedModel: "missing", HTTPClient: srv.Client()})
	_, err := e.EmbedBatch(context.Background(), []string{"x"})
	require.Error(t, err)
}
