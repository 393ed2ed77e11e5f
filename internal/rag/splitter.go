// Package rag turns a video transcript into a question-answering pipeline:
// split into overlapping chunks, embed, index, retrieve, answer.
package rag

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// Splitter cuts transcripts into overlapping chunks, preferring paragraph,
// line, then word boundaries.
type Splitter struct {
	rc textsplitter.RecursiveCharacter
}

// NewSplitter returns a splitter producing chunks of at most size characters
// with overlap characters carried between neighbours.
func NewSplitter(size, overlap int) *Splitter {
	return &Splitter{rc: textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
	)}
}

// Split returns the chunks of text in order. Blank input yields no chunks.
func (s *Splitter) Split(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	chunks, err := s.rc.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split transcript: %w", err)
	}
	out := chunks[:0]
	for _, c := range chunks {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out, nil
}
