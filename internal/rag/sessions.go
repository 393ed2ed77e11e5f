package rag

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/anatolykoptev/go_ytchat/internal/engine"
)

// Sessions holds one Pipeline per video for the life of the process.
// Concurrent first requests for the same video share a single build;
// failed builds leave nothing behind.
type Sessions struct {
	build   func(ctx context.Context, videoID string) (*Pipeline, error)
	timeout time.Duration

	mu    sync.RWMutex
	m     map[string]*Pipeline
	group singleflight.Group
}

// NewSessions returns an empty session registry. timeout bounds each build.
func NewSessions(b *Builder, timeout time.Duration) *Sessions {
	return &Sessions{build: b.Build, timeout: timeout, m: make(map[string]*Pipeline)}
}

// Get returns the pipeline for videoID, building it on first use.
// reused reports whether an existing pipeline was returned.
func (s *Sessions) Get(ctx context.Context, videoID string) (p *Pipeline, reused bool, err error) {
	if p, ok := s.lookup(videoID); ok {
		engine.IncrSessionsReused()
		return p, true, nil
	}

	ch := s.group.DoChan(videoID, func() (any, error) {
		if p, ok := s.lookup(videoID); ok {
			return p, nil
		}
		// A cancelled caller must not abort a build other callers are waiting on.
		bctx := context.WithoutCancel(ctx)
		if s.timeout > 0 {
			var cancel context.CancelFunc
			bctx, cancel = context.WithTimeout(bctx, s.timeout)
			defer cancel()
		}
		p, err := s.build(bctx, videoID)
		if err != nil {
			engine.IncrBuildErrors()
			slog.Warn("rag: build failed", slog.String("video_id", videoID), slog.Any("err", err))
			return nil, err
		}
		s.mu.Lock()
		s.m[videoID] = p
		s.mu.Unlock()
		engine.IncrSessionsBuilt()
		return p, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.(*Pipeline), false, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Has reports whether videoID has a ready pipeline.
func (s *Sessions) Has(videoID string) bool {
	_, ok := s.lookup(videoID)
	return ok
}

// Len returns the number of ready pipelines.
func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

func (s *Sessions) lookup(videoID string) (*Pipeline, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.m[videoID]
	return p, ok
}
