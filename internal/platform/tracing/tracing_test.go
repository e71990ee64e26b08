package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Disabled(t *testing.T) {
	t.Parallel()

	tracer, err := New(Config{})
	require.NoError(t, err)
	assert.IsType(t, NoopTracer{}, tracer)

	ctx := context.Background()
	got, end := tracer.Start(ctx, "generate", "task-1")
	assert.Equal(t, ctx, got)
	end(errors.New("ignored"))
}

func TestHTTPClient(t *testing.T) {
	t.Parallel()

	base := &http.Client{Timeout: time.Second}
	assert.Same(t, base, HTTPClient(false, base))

	wrapped := HTTPClient(true, base)
	assert.NotSame(t, base, wrapped)
	assert.Equal(t, time.Second, wrapped.Timeout)

	assert.NotNil(t, HTTPClient(false, nil))
}

func TestInstrumentAWS(t *testing.T) {
	t.Parallel()

	var cfg aws.Config
	InstrumentAWS(false, &cfg)
	assert.Empty(t, cfg.APIOptions)

	InstrumentAWS(true, &cfg)
	assert.NotEmpty(t, cfg.APIOptions)
}

func TestMiddleware_Disabled(t *testing.T) {
	t.Parallel()

	h := Middleware(false, "shortplay")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
