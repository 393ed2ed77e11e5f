package sources

// YouTube implementation is split across three files by responsibility:
//   youtube_innertube.go : Innertube API types, endpoints, and low-level HTTP primitives
//   youtube_transcript.go: transcript fetching (watch page, engagement panel, ANDROID player)
//   youtube.go           : video id handling and the cached entry point

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"github.com/anatolykoptev/go_ytchat/internal/engine"
)

// ErrTranscriptsDisabled means the video is reachable but publishes no caption tracks.
var ErrTranscriptsDisabled = errors.New("transcripts are disabled for this video")

var (
	videoIDRE     = regexp.MustCompile(`(?:youtube\.com/(?:watch\?(?:.*&)?v=|embed/|shorts/|live/)|youtu\.be/)([a-zA-Z0-9_-]{11})`)
	bareVideoIDRE = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)
)

// NormalizeVideoID accepts a bare 11-char id or any YouTube URL form and returns the id.
// Unrecognised input is returned trimmed so the fetch reports the failure.
func NormalizeVideoID(input string) string {
	input = strings.TrimSpace(input)
	if bareVideoIDRE.MatchString(input) {
		return input
	}
	if m := videoIDRE.FindStringSubmatch(input); len(m) >= 2 {
		return m[1]
	}
	return input
}

type cachedTranscript struct {
	VideoID string `json:"video_id"`
	Text    string `json:"text"`
}

// GetTranscript returns the transcript for videoID, consulting the engine cache first.
// Only successful fetches are cached.
func GetTranscript(ctx context.Context, videoID string, langs []string) (string, error) {
	key := engine.CacheKey(append([]string{"transcript", videoID}, langs...)...)
	if cached, ok := engine.CacheLoadJSON[cachedTranscript](ctx, key); ok && cached.Text != "" {
		slog.Debug("youtube: transcript cache hit", slog.String("id", videoID))
		return cached.Text, nil
	}

	text, err := FetchYouTubeTranscript(ctx, videoID, langs)
	if err != nil {
		return "", err
	}
	engine.CacheStoreJSON(ctx, key, cachedTranscript{VideoID: videoID, Text: text})
	return text, nil
}
