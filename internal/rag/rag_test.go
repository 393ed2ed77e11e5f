package rag

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
)

// captureLogs routes the default logger into a buffer at debug level for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

// keywordEmbedder maps text onto a tiny vocabulary, one dimension per keyword
// plus a constant bias so no vector is zero.
type keywordEmbedder struct {
	calls atomic.Int32
}

var vocab = []string{"deepmind", "google", "music", "guitar", "cooking", "pasta", "weather", "rain"}

func (e *keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	return keywordVector(text), nil
}

func (e *keywordEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = keywordVector(t)
	}
	return out, nil
}

func keywordVector(text string) []float32 {
	v := make([]float32, len(vocab)+1)
	v[len(vocab)] = 0.1
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,?!")
		for i, k := range vocab {
			if w == k {
				v[i]++
			}
		}
	}
	return v
}

const sampleTranscript = "DeepMind is an AI lab owned by Google since 2014. " +
	"Later we talk about music and how to tune a guitar properly. " +
	"Then a short segment on cooking pasta with fresh tomatoes. " +
	"Finally the weather report says rain all week."
