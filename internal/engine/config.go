package engine

import (
	"net/http"
	"time"

	"github.com/anatolykoptev/go-kit/llm"
)

// Config holds all engine configuration, injected from main.
type Config struct {
	LLMAPIKey      string
	LLMAPIBase     string
	LLMModel       string
	LLMTemperature float64
	LLMMaxTokens   int

	EmbedAPIBase   string
	EmbedAPIKey    string
	EmbedModel     string
	EmbedBatchSize int
	EmbedRPS       float64

	ChunkSize    int
	ChunkOverlap int
	RetrieveK    int

	TranscriptLangs []string
	FetchTimeout    time.Duration
	BuildTimeout    time.Duration

	CacheMaxEntries      int
	CacheCleanupInterval time.Duration

	HTTPClient    *http.Client
	BrowserClient *BrowserClient // nil = watch page fetched with HTTPClient
	LLMClient     *llm.Client    // nil = answering disabled
}

var cfg Config

// Cfg exposes the engine configuration for sub-packages (sources).
// Always points to the current cfg value.
var Cfg = &cfg

// Init initializes the engine with the given configuration.
// Zero values fall back to the defaults the service ships with.
func Init(c Config) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if len(c.TranscriptLangs) == 0 {
		c.TranscriptLangs = []string{"en"}
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 1000
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = c.ChunkSize / 5
	}
	if c.RetrieveK <= 0 {
		c.RetrieveK = 4
	}
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = 32
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 30 * time.Second
	}
	if c.BuildTimeout <= 0 {
		c.BuildTimeout = 2 * time.Minute
	}
	cfg = c
	Cfg = &cfg
}
