// Package toolutil provides shared JSON helpers for the HTTP handlers.
package toolutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/anatolykoptev/go_ytchat/internal/engine"
)

// MaxBodyBytes caps request bodies; payloads are a video id and a question.
const MaxBodyBytes = 64 << 10

// ErrInvalidJSON is returned by DecodeJSON for bodies that are not a single JSON object.
var ErrInvalidJSON = errors.New("invalid JSON body")

// DecodeJSON reads a JSON object of type T from the request body.
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request) (T, error) {
	var out T
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err := dec.Decode(&out); err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		var zero T
		return zero, fmt.Errorf("%w: trailing data", ErrInvalidJSON)
	}
	return out, nil
}

// WriteJSON writes v with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response failed", slog.Any("error", err))
	}
}

// WriteError writes {"error": msg} with the given status code.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, engine.ErrorOutput{Error: msg})
}
