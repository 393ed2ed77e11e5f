package chatserver

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/anatolykoptev/go_ytchat/internal/engine"
	"github.com/anatolykoptev/go_ytchat/internal/toolutil"
)

// Handler returns the JSON API:
//
//	POST /api/initialize  {video_id}
//	POST /api/chat        {video_id, question}
//	GET  /api/health
//	GET  /api/metrics
func Handler(s *Service) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/initialize", s.handleInitialize)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("GET /api/metrics", handleMetrics)
	return withCORS(withLogging(mux))
}

func (s *Service) handleInitialize(w http.ResponseWriter, r *http.Request) {
	in, err := toolutil.DecodeJSON[engine.InitializeInput](w, r)
	if err != nil {
		toolutil.WriteError(w, http.StatusBadRequest, toolutil.ErrInvalidJSON.Error())
		return
	}
	out, err := s.Initialize(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	toolutil.WriteJSON(w, http.StatusOK, out)
}

func (s *Service) handleChat(w http.ResponseWriter, r *http.Request) {
	in, err := toolutil.DecodeJSON[engine.ChatInput](w, r)
	if err != nil {
		toolutil.WriteError(w, http.StatusBadRequest, toolutil.ErrInvalidJSON.Error())
		return
	}
	out, err := s.Chat(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	toolutil.WriteJSON(w, http.StatusOK, out)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	toolutil.WriteJSON(w, http.StatusOK, engine.HealthOutput{Status: "ok"})
}

func handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, engine.FormatMetrics())
}

func writeServiceError(w http.ResponseWriter, err error) {
	status, msg := statusOf(err)
	toolutil.WriteError(w, status, msg)
}

// withCORS allows any origin; the API is called from a browser extension.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		level := slog.LevelDebug
		if rec.status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		slog.Log(r.Context(), level, "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("elapsed", time.Since(start)))
	})
}

