package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters across the engine.
var metrics struct {
	TranscriptRequests atomic.Int64
	TranscriptErrors   atomic.Int64
	EmbedRequests      atomic.Int64
	EmbedErrors        atomic.Int64
	LLMCalls           atomic.Int64
	LLMErrors          atomic.Int64
	SessionsBuilt      atomic.Int64
	SessionsReused     atomic.Int64
	BuildErrors        atomic.Int64
	ChatRequests       atomic.Int64
}

var metricKeys = []string{
	"transcript_requests", "transcript_errors",
	"embed_requests", "embed_errors",
	"llm_calls", "llm_errors",
	"sessions_built", "sessions_reused", "build_errors",
	"chat_requests",
	"cache_hits", "cache_misses",
}

// GetMetrics returns a snapshot of all metrics including cache stats.
func GetMetrics() map[string]int64 {
	hits, misses := CacheStats()
	return map[string]int64{
		"transcript_requests": metrics.TranscriptRequests.Load(),
		"transcript_errors":   metrics.TranscriptErrors.Load(),
		"embed_requests":      metrics.EmbedRequests.Load(),
		"embed_errors":        metrics.EmbedErrors.Load(),
		"llm_calls":           metrics.LLMCalls.Load(),
		"llm_errors":          metrics.LLMErrors.Load(),
		"sessions_built":      metrics.SessionsBuilt.Load(),
		"sessions_reused":     metrics.SessionsReused.Load(),
		"build_errors":        metrics.BuildErrors.Load(),
		"chat_requests":       metrics.ChatRequests.Load(),
		"cache_hits":          hits,
		"cache_misses":        misses,
	}
}

// FormatMetrics returns metrics as a simple text format for HTTP endpoint.
func FormatMetrics() string {
	m := GetMetrics()
	var sb strings.Builder
	for _, k := range metricKeys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}

// Incrementors for sources/, rag/ and chatserver/.
func IncrTranscriptRequests() { metrics.TranscriptRequests.Add(1) }
func IncrTranscriptErrors()   { metrics.TranscriptErrors.Add(1) }
func IncrSessionsBuilt()      { metrics.SessionsBuilt.Add(1) }
func IncrSessionsReused()     { metrics.SessionsReused.Add(1) }
func IncrBuildErrors()        { metrics.BuildErrors.Add(1) }
func IncrChatRequests()       { metrics.ChatRequests.Add(1) }

// TrackOperation logs a warning if an operation takes longer than threshold.
func TrackOperation(ctx context.Context, name string, threshold time.Duration, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	if elapsed > threshold {
		slog.Warn("slow operation", slog.String("op", name), slog.Duration("elapsed", elapsed))
	}
	return err
}
