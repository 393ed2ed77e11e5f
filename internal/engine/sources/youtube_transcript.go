package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/anatolykoptev/go_ytchat/internal/engine"
)

// Transcript strategies, tried in order:
//   page:   watch page ytInitialPlayerResponse → caption XML
//   panel:  /next engagement panel → /get_transcript
//   player: ANDROID /player → captionTracks → caption XML

type transcriptStrategy struct {
	name  string
	fetch func(ctx context.Context, videoID string, langs []string) (string, error)
}

var transcriptStrategies = []transcriptStrategy{
	{"page", fetchTranscriptViaPageScrape},
	{"panel", fetchTranscriptViaEngagementPanel},
	{"player", fetchTranscriptViaPlayer},
}

// FetchYouTubeTranscript fetches the captions of a video as one space-joined string.
// ErrTranscriptsDisabled from any strategy ends the attempt early.
func FetchYouTubeTranscript(ctx context.Context, videoID string, langs []string) (string, error) {
	engine.IncrTranscriptRequests()
	if videoID == "" {
		engine.IncrTranscriptErrors()
		return "", errors.New("empty video id")
	}

	var errs []error
	for _, s := range transcriptStrategies {
		text, err := s.fetch(ctx, videoID, langs)
		if err == nil && strings.TrimSpace(text) != "" {
			slog.Debug("youtube: transcript fetched",
				slog.String("id", videoID), slog.String("via", s.name), slog.Int("chars", len(text)))
			return text, nil
		}
		if err == nil {
			err = errors.New("empty transcript")
		}
		if errors.Is(err, ErrTranscriptsDisabled) || ctx.Err() != nil {
			engine.IncrTranscriptErrors()
			return "", err
		}
		slog.Warn("youtube: transcript strategy failed",
			slog.String("id", videoID), slog.String("via", s.name), slog.Any("err", err))
		errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
	}
	engine.IncrTranscriptErrors()
	return "", errors.Join(errs...)
}

// --- page scrape ---

const ytInitialPlayerResponseMarker = "ytInitialPlayerResponse = "

func fetchTranscriptViaPageScrape(ctx context.Context, videoID string, langs []string) (string, error) {
	body, err := fetchWatchPage(ctx, videoID)
	if err != nil {
		return "", err
	}

	idx := bytes.Index(body, []byte(ytInitialPlayerResponseMarker))
	if idx < 0 {
		return "", errors.New("ytInitialPlayerResponse not found in watch page")
	}
	raw := extractJSON(body[idx+len(ytInitialPlayerResponseMarker):])
	if raw == nil {
		return "", errors.New("unterminated ytInitialPlayerResponse")
	}

	var pr playerResp
	if err := json.Unmarshal(raw, &pr); err != nil {
		return "", fmt.Errorf("decode ytInitialPlayerResponse: %w", err)
	}
	return transcriptFromPlayer(ctx, pr, langs)
}

const watchPageLimit = 6 * 1024 * 1024

// fetchWatchPage downloads the watch page HTML, through the Chrome-fingerprinted
// client when one is configured.
func fetchWatchPage(ctx context.Context, videoID string) ([]byte, error) {
	pageURL := ytWatchURL + url.QueryEscape(videoID)

	if bc := engine.Cfg.BrowserClient; bc != nil {
		return engine.RetryDo(ctx, engine.DefaultRetryConfig, func() ([]byte, error) {
			body, status, err := bc.Get(ctx, pageURL, engine.ChromeHeaders(), watchPageLimit)
			if err != nil {
				return nil, fmt.Errorf("watch page: %w", err)
			}
			if status != http.StatusOK {
				return nil, engine.StatusError(status)
			}
			return body, nil
		})
	}

	resp, err := engine.RetryHTTP(ctx, engine.DefaultRetryConfig, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return nil, err
		}
		for k, v := range engine.ChromeHeaders() {
			req.Header.Set(k, v)
		}
		return engine.Cfg.HTTPClient.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("watch page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("watch page: HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, watchPageLimit))
	if err != nil {
		return nil, fmt.Errorf("read watch page: %w", err)
	}
	return body, nil
}

// extractJSON returns the balanced JSON object at the start of data, or nil.
// Braces inside string literals are ignored.
func extractJSON(data []byte) []byte {
	if len(data) == 0 || data[0] != '{' {
		return nil
	}
	depth := 0
	inString, escaped := false, false
	for i, c := range data {
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return data[:i+1]
			}
		}
	}
	return nil
}

// --- engagement panel ---

// getTranscriptRE extracts the continuation token from a raw /next JSON response.
var getTranscriptRE = regexp.MustCompile(`"getTranscriptEndpoint":\{"params":"([^"]+)"`)

func extractTranscriptToken(data []byte) (string, error) {
	m := getTranscriptRE.FindSubmatch(data)
	if len(m) < 2 {
		return "", errors.New("getTranscriptEndpoint not found in engagement panels")
	}
	// /next returns the params URL-encoded; /get_transcript wants raw base64.
	if decoded, err := url.QueryUnescape(string(m[1])); err == nil {
		return decoded, nil
	}
	return string(m[1]), nil
}

// parseTranscriptSegments joins the snippet runs of a /get_transcript response.
func parseTranscriptSegments(resp ytGetTranscriptResp) string {
	var parts []string
	for _, action := range resp.Actions {
		if action.UpdateEngagementPanelAction == nil {
			continue
		}
		segs := action.UpdateEngagementPanelAction.Content.
			TranscriptRenderer.Content.
			TranscriptSearchPanelRenderer.Body.
			TranscriptSegmentListRenderer.InitialSegments
		for _, seg := range segs {
			if seg.TranscriptSegmentRenderer == nil {
				continue
			}
			for _, run := range seg.TranscriptSegmentRenderer.Snippet.Runs {
				if t := strings.TrimSpace(run.Text); t != "" {
					parts = append(parts, t)
				}
			}
		}
	}
	return strings.Join(parts, " ")
}

// The panel only serves the default track, so langs is unused here.
func fetchTranscriptViaEngagementPanel(ctx context.Context, videoID string, _ []string) (string, error) {
	visitorData := generateVisitorData()
	client := map[string]any{"client": ytWebClient(visitorData)}

	nextData, err := postInnerTubeWEB(ctx, ytNextURL, map[string]any{
		"videoId": videoID,
		"context": client,
	}, visitorData)
	if err != nil {
		return "", fmt.Errorf("/next: %w", err)
	}

	token, err := extractTranscriptToken(nextData)
	if err != nil {
		return "", err
	}

	data, err := postInnerTubeWEB(ctx, ytGetTranscriptURL, map[string]any{
		"params":  token,
		"context": client,
	}, visitorData)
	if err != nil {
		return "", fmt.Errorf("/get_transcript: %w", err)
	}

	var tr ytGetTranscriptResp
	if err := json.Unmarshal(data, &tr); err != nil {
		return "", fmt.Errorf("decode transcript: %w", err)
	}
	return parseTranscriptSegments(tr), nil
}

// --- ANDROID player ---

func fetchTranscriptViaPlayer(ctx context.Context, videoID string, langs []string) (string, error) {
	reqBody, err := json.Marshal(innertubeReq{
		VideoID: videoID,
		Context: innertubeCtx{Client: innertubeClient{
			ClientName:        "ANDROID",
			ClientVersion:     ytAndroidVersion,
			AndroidSdkVersion: 30,
			Hl:                "en",
			Gl:                "US",
		}},
		RacyCheckOk:    true,
		ContentCheckOk: true,
	})
	if err != nil {
		return "", err
	}

	resp, err := engine.RetryHTTP(ctx, engine.DefaultRetryConfig, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, ytPlayerURL+"?prettyPrint=false", bytes.NewReader(reqBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", ytAndroidUA)
		req.Header.Set("X-Youtube-Client-Name", "3")
		req.Header.Set("X-Youtube-Client-Version", ytAndroidVersion)
		return engine.Cfg.HTTPClient.Do(req)
	})
	if err != nil {
		return "", fmt.Errorf("android player: %w", err)
	}
	defer resp.Body.Close()

	var pr playerResp
	if err := json.NewDecoder(io.LimitReader(resp.Body, 3*1024*1024)).Decode(&pr); err != nil {
		return "", fmt.Errorf("decode player: %w", err)
	}
	return transcriptFromPlayer(ctx, pr, langs)
}

// --- caption tracks ---

func transcriptFromPlayer(ctx context.Context, pr playerResp, langs []string) (string, error) {
	tracks, err := pr.tracks()
	if err != nil {
		return "", err
	}
	track, ok := pickBestTrack(tracks, langs)
	if !ok {
		return "", errors.New("all caption tracks require PoToken")
	}
	return fetchTimedText(ctx, track.BaseURL)
}

// needsPoToken reports whether a caption track URL can only be fetched by a browser.
func needsPoToken(baseURL string) bool {
	return strings.Contains(baseURL, "&exp=xpe")
}

// pickBestTrack prefers, in order: a manual track in a requested language,
// an auto-generated one in a requested language, any English track, then the
// first usable track.
func pickBestTrack(tracks []captionTrack, langs []string) (captionTrack, bool) {
	usable := make([]captionTrack, 0, len(tracks))
	for _, t := range tracks {
		if !needsPoToken(t.BaseURL) {
			usable = append(usable, t)
		}
	}
	if len(usable) == 0 {
		return captionTrack{}, false
	}
	for _, wantManual := range []bool{true, false} {
		for _, lang := range langs {
			for _, t := range usable {
				if t.LanguageCode == lang && (!wantManual || t.Kind != "asr") {
					return t, true
				}
			}
		}
	}
	for _, t := range usable {
		if strings.HasPrefix(t.LanguageCode, "en") {
			return t, true
		}
	}
	return usable[0], true
}

// fetchTimedText downloads a timedtext caption track and joins its cues with spaces.
func fetchTimedText(ctx context.Context, baseURL string) (string, error) {
	resp, err := engine.RetryHTTP(ctx, engine.DefaultRetryConfig, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", engine.UserAgentBot)
		return engine.Cfg.HTTPClient.Do(req)
	})
	if err != nil {
		return "", fmt.Errorf("fetch timedtext: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("timedtext: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2*1024*1024))
	if err != nil {
		return "", err
	}
	return parseTimedText(body)
}

func parseTimedText(body []byte) (string, error) {
	var tt ytTimedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return "", fmt.Errorf("parse timedtext XML: %w", err)
	}
	lines := tt.Lines
	if len(lines) == 0 {
		lines = tt.Paragraphs
	}
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		if text := engine.CleanHTML(line.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
