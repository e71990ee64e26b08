package shared

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ping15/ShortPlayGenerator/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestRespondWithJSON(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()

	RespondWithJSON(w, req, http.StatusOK, map[string]any{"message": "success"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"message":"success"}`, w.Body.String())
}

func TestRespondWithMessage(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/ai/video/create", nil)
	req = req.WithContext(SetTraceID(req.Context()))
	w := httptest.NewRecorder()

	RespondWithMessage(w, req, http.StatusOK, "submitted", nil)

	env := decodeEnvelope(t, w)
	assert.Equal(t, 200, env.Code)
	assert.Equal(t, "submitted", env.Msg)
	assert.Equal(t, GetTraceID(req.Context()), env.TraceID)
	assert.Nil(t, env.Data)
}

func TestRespondWithErrorAndLog(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		opts      []ResponseOption
		wantLevel string
	}{
		{"server error", http.StatusInternalServerError, nil, "ERROR"},
		{"service unavailable", http.StatusServiceUnavailable, nil, "ERROR"},
		{"too many requests", http.StatusTooManyRequests, nil, "WARN"},
		{"bad request", http.StatusBadRequest, nil, "DEBUG"},
		{"elevated bad request", http.StatusBadRequest, []ResponseOption{WithElevatedLogLevel()}, "WARN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			l, buf := logger.NewTestLogger(t)
			req := httptest.NewRequest(http.MethodPost, "/ai/video/merge", nil)
			req = req.WithContext(logger.WithLogger(req.Context(), l))
			w := httptest.NewRecorder()

			err := errors.New("dial redis://:hunter2@cache:6379 failed")
			RespondWithErrorAndLog(w, req, tt.status, "Failed to submit", err, tt.opts...)

			assert.Equal(t, tt.status, w.Code)
			env := decodeEnvelope(t, w)
			assert.Equal(t, tt.status, env.Code)
			assert.Equal(t, "Failed to submit", env.Msg)
			assert.NotContains(t, w.Body.String(), "hunter2", "raw error must not reach the client")

			logger.AssertLogField(t, buf, "level", tt.wantLevel)
			assert.NotContains(t, buf.String(), "hunter2", "logged error must be redacted")
			logger.AssertLogContains(t, buf, "[REDACTED_CREDENTIAL]")
		})
	}
}

func TestRespondWithErrorUsesContextLogger(t *testing.T) {
	t.Parallel()

	l, buf := logger.NewTestLogger(t)
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req = req.WithContext(logger.WithLogger(req.Context(), l.With(slog.String("trace_id", "abc"))))
	w := httptest.NewRecorder()

	RespondWithError(w, req, http.StatusNotFound, "not found")

	assert.Equal(t, http.StatusNotFound, w.Code)
	logger.AssertLogField(t, buf, "trace_id", "abc")
}
