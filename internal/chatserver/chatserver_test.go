package chatserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anatolykoptev/go_ytchat/internal/engine/sources"
	"github.com/anatolykoptev/go_ytchat/internal/rag"
)

const transcript = "DeepMind is an AI lab owned by Google. " +
	"The second half of the video covers protein folding with AlphaFold."

// letterEmbedder counts a few letters; enough to give distinct non-zero vectors.
type letterEmbedder struct{}

func (letterEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	t := strings.ToLower(text)
	return []float32{
		float32(strings.Count(t, "a")) + 1,
		float32(strings.Count(t, "e")) + 1,
		float32(strings.Count(t, "o")) + 1,
	}, nil
}

func (e letterEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

type fixture struct {
	svc     *Service
	h       http.Handler
	fetches atomic.Int32
}

func newFixture(t *testing.T, fetch rag.FetchFunc, complete rag.CompleteFunc) *fixture {
	t.Helper()
	f := &fixture{}
	if complete == nil {
		complete = func(_ context.Context, _, prompt string) (string, error) {
			return "answer to: " + prompt[strings.LastIndex(prompt, "Question: ")+len("Question: "):], nil
		}
	}
	b := &rag.Builder{
		Fetch: func(ctx context.Context, id string) (string, error) {
			f.fetches.Add(1)
			return fetch(ctx, id)
		},
		Splitter: rag.NewSplitter(60, 10),
		Embedder: letterEmbedder{},
		Complete: complete,
		TopK:     4,
	}
	f.svc = NewService(rag.NewSessions(b, time.Minute))
	f.h = Handler(f.svc)
	return f
}

func okFetch(context.Context, string) (string, error) { return transcript, nil }

func (f *fixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHealthAlwaysOK(t *testing.T) {
	f := newFixture(t, okFetch, nil)
	rec, out := f.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"status": "ok"}, out)
}

func TestCORS(t *testing.T) {
	f := newFixture(t, okFetch, nil)
	rec, _ := f.do(t, http.MethodOptions, "/api/chat", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Content-Type")

	rec, _ = f.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMissingFieldsReturn400(t *testing.T) {
	f := newFixture(t, okFetch, nil)
	tests := []struct {
		name, path, body, want string
	}{
		{"initialize empty", "/api/initialize", `{}`, "video_id is required"},
		{"initialize blank", "/api/initialize", `{"video_id":"  "}`, "video_id is required"},
		{"chat no question", "/api/chat", `{"video_id":"abc"}`, "video_id and question are required"},
		{"chat no id", "/api/chat", `{"question":"why?"}`, "video_id and question are required"},
		{"invalid json", "/api/initialize", `{"video_id":`, "invalid JSON body"},
		{"trailing data", "/api/chat", `{"video_id":"a","question":"b"} {}`, "invalid JSON body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, out := f.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, out["error"])
		})
	}
	assert.EqualValues(t, 0, f.fetches.Load())
}

func TestWrongMethod(t *testing.T) {
	f := newFixture(t, okFetch, nil)
	rec, _ := f.do(t, http.MethodGet, "/api/chat", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCaptionsDisabled(t *testing.T) {
	f := newFixture(t, func(context.Context, string) (string, error) {
		return "", fmt.Errorf("page: %w", sources.ErrTranscriptsDisabled)
	}, nil)

	rec, out := f.do(t, http.MethodPost, "/api/initialize", `{"video_id":"nocaptions1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No captions available for this video", out["error"])
	assert.False(t, f.svc.sessions.Has("nocaptions1"))

	rec, out = f.do(t, http.MethodPost, "/api/chat", `{"video_id":"nocaptions1","question":"what?"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No captions available for this video", out["error"])
	assert.Equal(t, 0, f.svc.sessions.Len())
}

func TestBuildErrorMessage(t *testing.T) {
	f := newFixture(t, func(context.Context, string) (string, error) {
		return "", fmt.Errorf("watch page: HTTP 404")
	}, nil)

	rec, out := f.do(t, http.MethodPost, "/api/initialize", `{"video_id":"gone"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Error fetching transcript: watch page: HTTP 404", out["error"])

	rec, out = f.do(t, http.MethodPost, "/api/chat", `{"video_id":"gone","question":"what?"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Error fetching transcript: watch page: HTTP 404", out["error"])
}

func TestClientMessage(t *testing.T) {
	tests := []struct{ in, want string }{
		{"error fetching transcript: x", "Error fetching transcript: x"},
		{"transcript is empty", "Transcript is empty"},
		{"Already upper", "Already upper"},
		{"élan", "Élan"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, clientMessage(errors.New(tt.in)))
	}
}

func TestReusedSessionLogsAge(t *testing.T) {
	f := newFixture(t, okFetch, nil)
	rec, _ := f.do(t, http.MethodPost, "/api/initialize", `{"video_id":"abcdefghijk"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	rec, _ = f.do(t, http.MethodPost, "/api/initialize", `{"video_id":"abcdefghijk"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, buf.String(), `msg="session reused" video_id=abcdefghijk age=0s`)
}

func TestInitializeThenChatReusesPipeline(t *testing.T) {
	f := newFixture(t, okFetch, nil)

	rec, out := f.do(t, http.MethodPost, "/api/initialize", `{"video_id":"https://youtu.be/abcdefghijk"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "Video initialized successfully", out["message"])
	assert.Equal(t, "abcdefghijk", out["video_id"])

	rec, _ = f.do(t, http.MethodPost, "/api/initialize", `{"video_id":"abcdefghijk"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, out = f.do(t, http.MethodPost, "/api/chat", `{"video_id":"abcdefghijk","question":"Who owns DeepMind?"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "answer to: Who owns DeepMind?", out["response"])

	assert.EqualValues(t, 1, f.fetches.Load())
	assert.Equal(t, 1, f.svc.sessions.Len())
}

func TestChatBuildsOnFirstUse(t *testing.T) {
	f := newFixture(t, okFetch, nil)
	rec, out := f.do(t, http.MethodPost, "/api/chat", `{"video_id":"abcdefghijk","question":"What is AlphaFold?"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "answer to: What is AlphaFold?", out["response"])
	assert.True(t, f.svc.sessions.Has("abcdefghijk"))
}

func TestChatAnswerFailureReturns500(t *testing.T) {
	f := newFixture(t, okFetch, func(context.Context, string, string) (string, error) {
		return "", fmt.Errorf("rate limited")
	})
	rec, out := f.do(t, http.MethodPost, "/api/chat", `{"video_id":"abcdefghijk","question":"hi?"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Error processing question: answer: rate limited", out["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, okFetch, nil)
	rec, _ := f.do(t, http.MethodGet, "/api/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chat_requests")
}

func TestStatusOf(t *testing.T) {
	status, msg := statusOf(badRequest("nope"))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "nope", msg)

	status, msg = statusOf(fmt.Errorf("boom"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "boom", msg)
}

