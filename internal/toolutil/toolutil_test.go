package toolutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	VideoID string `json:"video_id"`
}

func decode(body string) (payload, error) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	return DecodeJSON[payload](httptest.NewRecorder(), req)
}

func TestDecodeJSON(t *testing.T) {
	got, err := decode(`{"video_id":"abc","extra":1}`)
	require.NoError(t, err)
	assert.Equal(t, "abc", got.VideoID)

	for _, bad := range []string{"", "{", "[]", `{"video_id":"a"} x`, strings.Repeat(" ", MaxBodyBytes+1) + "{}"} {
		_, err := decode(bad)
		assert.ErrorIs(t, err, ErrInvalidJSON, "body %.20q", bad)
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusBadRequest, "video_id is required")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"video_id is required"}`, rec.Body.String())
}
