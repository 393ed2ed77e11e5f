// Package chatserver exposes video transcript Q&A over a JSON HTTP API and MCP tools.
package chatserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/anatolykoptev/go_ytchat/internal/engine"
	"github.com/anatolykoptev/go_ytchat/internal/engine/sources"
	"github.com/anatolykoptev/go_ytchat/internal/rag"
)

const (
	msgInitialized     = "Video initialized successfully"
	msgVideoIDRequired = "video_id is required"
	msgChatRequired    = "video_id and question are required"
	msgNoCaptions      = "No captions available for this video"
	msgAnswerFailed    = "Error processing question: "
)

// requestError carries the HTTP status a failure maps to.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string) error { return &requestError{status: http.StatusBadRequest, msg: msg} }

// statusOf returns the HTTP status and client message for err.
func statusOf(err error) (int, string) {
	var re *requestError
	if errors.As(err, &re) {
		return re.status, re.msg
	}
	return http.StatusInternalServerError, err.Error()
}

// Service implements initialize and chat on top of the session store.
type Service struct {
	sessions *rag.Sessions
}

// NewService returns a Service backed by sessions.
func NewService(sessions *rag.Sessions) *Service {
	return &Service{sessions: sessions}
}

// Initialize builds the pipeline for a video, or reuses the existing one.
func (s *Service) Initialize(ctx context.Context, in engine.InitializeInput) (engine.InitializeOutput, error) {
	id := sources.NormalizeVideoID(in.VideoID)
	if id == "" {
		return engine.InitializeOutput{}, badRequest(msgVideoIDRequired)
	}
	if _, err := s.pipeline(ctx, id); err != nil {
		return engine.InitializeOutput{}, err
	}
	return engine.InitializeOutput{Success: true, Message: msgInitialized, VideoID: id}, nil
}

// Chat answers a question about a video, building its pipeline on first use.
func (s *Service) Chat(ctx context.Context, in engine.ChatInput) (engine.ChatOutput, error) {
	engine.IncrChatRequests()
	id := sources.NormalizeVideoID(in.VideoID)
	question := strings.TrimSpace(in.Question)
	if id == "" || question == "" {
		return engine.ChatOutput{}, badRequest(msgChatRequired)
	}

	p, err := s.pipeline(ctx, id)
	if err != nil {
		return engine.ChatOutput{}, err
	}

	slog.Info("chat: question", slog.String("video_id", id), slog.String("q", engine.TruncateRunes(question, 120, "...")))
	answer, err := p.Ask(ctx, question)
	if err != nil {
		slog.Warn("chat: answer failed", slog.String("video_id", id), slog.Any("error", err))
		return engine.ChatOutput{}, &requestError{status: http.StatusInternalServerError, msg: msgAnswerFailed + err.Error()}
	}
	return engine.ChatOutput{Success: true, Response: answer}, nil
}

func (s *Service) pipeline(ctx context.Context, id string) (*rag.Pipeline, error) {
	p, reused, err := s.sessions.Get(ctx, id)
	switch {
	case errors.Is(err, sources.ErrTranscriptsDisabled):
		return nil, badRequest(msgNoCaptions)
	case errors.Is(err, context.Canceled):
		return nil, err
	case err != nil:
		return nil, badRequest(clientMessage(err))
	}
	if reused {
		slog.Debug("session reused", slog.String("video_id", id), slog.Duration("age", time.Since(p.Built).Round(time.Second)))
	} else {
		slog.Info("session ready", slog.String("video_id", id), slog.Int("sessions", s.sessions.Len()))
	}
	return p, nil
}

// clientMessage is err's text with its first letter upper-cased, the way the
// extension has always shown build failures.
func clientMessage(err error) string {
	msg := err.Error()
	r, size := utf8.DecodeRuneInString(msg)
	if r == utf8.RuneError {
		return msg
	}
	return string(unicode.ToUpper(r)) + msg[size:]
}
