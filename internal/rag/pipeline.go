package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anatolykoptev/go_ytchat/internal/engine"
)

// ErrEmptyTranscript is returned when a video's transcript has no usable text.
var ErrEmptyTranscript = errors.New("transcript is empty")

// FetchFunc returns the full transcript text of a video.
type FetchFunc func(ctx context.Context, videoID string) (string, error)

// CompleteFunc sends a system and user prompt to a chat model and returns its reply.
type CompleteFunc func(ctx context.Context, system, prompt string) (string, error)

// Builder assembles a Pipeline for a video.
type Builder struct {
	Fetch    FetchFunc
	Splitter *Splitter
	Embedder Embedder
	Complete CompleteFunc
	TopK     int
}

// Pipeline answers questions about one video from its indexed transcript.
type Pipeline struct {
	VideoID  string
	Built    time.Time
	index    *Index
	complete CompleteFunc
	topK     int
}

// Build fetches, splits, embeds and indexes the transcript of videoID.
// Fetch failures are wrapped so callers can still match the cause with errors.Is.
func (b *Builder) Build(ctx context.Context, videoID string) (*Pipeline, error) {
	var p *Pipeline
	err := engine.TrackOperation(ctx, "build:"+videoID, 30*time.Second, func(ctx context.Context) error {
		text, err := b.Fetch(ctx, videoID)
		if err != nil {
			return fmt.Errorf("error fetching transcript: %w", err)
		}
		chunks, err := b.Splitter.Split(text)
		if err != nil {
			return err
		}
		if len(chunks) == 0 {
			return ErrEmptyTranscript
		}
		ix, err := NewIndex(ctx, videoID, chunks, b.Embedder)
		if err != nil {
			return err
		}
		slog.Info("rag: pipeline built",
			slog.String("video_id", videoID), slog.Int("chars", len(text)), slog.Int("chunks", ix.Len()))
		p = &Pipeline{VideoID: videoID, Built: time.Now(), index: ix, complete: b.Complete, topK: b.TopK}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Retrieve returns the chunks most relevant to question.
func (p *Pipeline) Retrieve(ctx context.Context, question string) ([]Chunk, error) {
	return p.index.Search(ctx, question, p.topK)
}

// Ask answers question using only the retrieved transcript context.
func (p *Pipeline) Ask(ctx context.Context, question string) (string, error) {
	chunks, err := p.Retrieve(ctx, question)
	if err != nil {
		return "", err
	}
	seqs := make([]int, len(chunks))
	for i, c := range chunks {
		seqs[i] = c.Seq
	}
	slog.Debug("rag: retrieved", slog.String("video_id", p.VideoID), slog.Any("chunks", seqs))

	prompt := fmt.Sprintf(engine.AnswerPrompt, FormatDocs(chunks), question)
	answer, err := p.complete(ctx, engine.AnswerSystemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("answer: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

// FormatDocs joins chunk texts with blank lines, in retrieval order.
func FormatDocs(chunks []Chunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Text
	}
	return strings.Join(parts, "\n\n")
}
