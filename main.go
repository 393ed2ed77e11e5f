// go_ytchat: chat with a YouTube video's transcript.
//
// Serves a JSON API (POST /api/initialize, POST /api/chat, GET /api/health)
// for the browser extension, and the same operations as MCP tools:
// video_initialize, video_chat.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/anatolykoptev/go-kit/llm"
	"github.com/anatolykoptev/go-mcpserver"
	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_ytchat/internal/chatserver"
	"github.com/anatolykoptev/go_ytchat/internal/engine"
	"github.com/anatolykoptev/go_ytchat/internal/engine/sources"
	"github.com/anatolykoptev/go_ytchat/internal/rag"
)

var version = "dev"

func main() {
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env")
	}

	initEngine()

	apiPort := env.Str("API_PORT", "5000")
	mcpPort := env.Str("MCP_PORT", "8892")

	svc := chatserver.NewService(rag.NewSessions(newBuilder(), engine.Cfg.BuildTimeout))

	api := &http.Server{
		Addr:              ":" + apiPort,
		Handler:           chatserver.Handler(svc),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      engine.Cfg.BuildTimeout + time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
	apiErr, err := startAPI(api)
	if err != nil {
		slog.Error("api listen failed", slog.String("addr", api.Addr), slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("api listening", slog.String("port", apiPort))
	go func() {
		if err := <-apiErr; err != nil {
			slog.Error("api server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "go_ytchat",
		Version: version,
	}, nil)
	chatserver.RegisterTools(server, svc)
	slog.Info("starting go_ytchat", slog.String("mcp_port", mcpPort), slog.String("api_port", apiPort))

	if err := mcpserver.Run(server, mcpserver.Config{
		Name:         "go_ytchat",
		Version:      version,
		Port:         mcpPort,
		WriteTimeout: engine.Cfg.BuildTimeout + time.Minute,
		Metrics:      engine.FormatMetrics,
	}); err != nil {
		slog.Error("server failed", slog.Any("error", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := api.Shutdown(ctx); err != nil {
		slog.Warn("api shutdown", slog.Any("error", err))
	}
}

// startAPI binds srv.Addr before returning, so a taken port fails startup.
// Serve errors other than a clean shutdown arrive on the channel, which is
// closed when the server stops.
func startAPI(srv *http.Server) (<-chan error, error) {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return nil, err
	}
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
	return errc, nil
}

func initEngine() {
	c := engine.Config{
		LLMAPIKey:            env.Str("LLM_API_KEY", env.Str("GROQ_API_KEY", "")),
		LLMAPIBase:           env.Str("LLM_API_BASE", "https://api.groq.com/openai/v1"),
		LLMModel:             env.Str("LLM_MODEL", "llama-3.1-8b-instant"),
		LLMTemperature:       env.Float("LLM_TEMPERATURE", 0.2),
		LLMMaxTokens:         env.Int("LLM_MAX_TOKENS", 1024),
		EmbedAPIBase:         env.Str("EMBED_API_BASE", "http://127.0.0.1:11434/v1"),
		EmbedAPIKey:          env.Str("EMBED_API_KEY", "ollama"),
		EmbedModel:           env.Str("EMBED_MODEL", "all-minilm"),
		EmbedBatchSize:       env.Int("EMBED_BATCH_SIZE", 32),
		EmbedRPS:             env.Float("EMBED_RPS", 5),
		ChunkSize:            env.Int("CHUNK_SIZE", 1000),
		ChunkOverlap:         env.Int("CHUNK_OVERLAP", 200),
		RetrieveK:            env.Int("RETRIEVE_K", 4),
		TranscriptLangs:      env.List("TRANSCRIPT_LANGS", "en"),
		FetchTimeout:         env.Duration("FETCH_TIMEOUT", 30*time.Second),
		BuildTimeout:         env.Duration("BUILD_TIMEOUT", 2*time.Minute),
		CacheMaxEntries:      env.Int("CACHE_MAX_ENTRIES", 500),
		CacheCleanupInterval: env.Duration("CACHE_CLEANUP_INTERVAL", 5*time.Minute),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     60 * time.Second,
			},
		},
	}

	if env.Str("BROWSER_TLS", "on") != "off" {
		bc, err := engine.NewBrowserClient(15)
		if err != nil {
			slog.Warn("browser client init failed, using plain HTTP for watch pages", slog.Any("error", err))
		} else {
			c.BrowserClient = bc
			slog.Info("browser TLS client initialized")
		}
	}

	if c.LLMAPIKey != "" {
		c.LLMClient = llm.NewClient(c.LLMAPIBase, c.LLMAPIKey, c.LLMModel,
			llm.WithFallbackKeys(env.List("LLM_API_KEY_FALLBACKS", "")),
			llm.WithMaxTokens(c.LLMMaxTokens),
			llm.WithTemperature(c.LLMTemperature),
			llm.WithHTTPClient(&http.Client{Timeout: 60 * time.Second}),
		)
	} else {
		slog.Warn("GROQ_API_KEY not set, chat answers disabled")
	}

	engine.Init(c)

	cacheTTL := env.Duration("CACHE_TTL", 24*time.Hour)
	engine.InitCache(env.Str("REDIS_URL", ""), cacheTTL, c.CacheMaxEntries, c.CacheCleanupInterval)
}

func newBuilder() *rag.Builder {
	cfg := engine.Cfg
	return &rag.Builder{
		Fetch: func(ctx context.Context, videoID string) (string, error) {
			ctx, cancel := context.WithTimeout(ctx, cfg.FetchTimeout)
			defer cancel()
			return sources.GetTranscript(ctx, videoID, cfg.TranscriptLangs)
		},
		Splitter: rag.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		Embedder: engine.NewEmbedder(*cfg),
		Complete: engine.CallLLM,
		TopK:     cfg.RetrieveK,
	}
}
