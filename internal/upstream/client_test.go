package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screenlens/demo-gateway/internal/circuitbreaker"
)

func TestCompleteForwardsCredential(t *testing.T) {
	var authHeader, contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		contentType = r.Header.Get("Content-Type")
		w.Write([]byte(`{"id":"cmpl-1"}`))
	}))
	defer server.Close()

	c := New(server.URL, "sk-secret", 5*time.Second)

	result, err := c.Complete(context.Background(), []byte(`{"model":"gpt-4o-mini"}`))
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk-secret", authHeader)
	assert.Equal(t, "application/json", contentType)
	assert.True(t, result.Succeeded())
	assert.Equal(t, "cmpl-1", result.JSON["id"])
}

// An HTTP-level rejection is a Result, not an error, so the caller can pass
// the upstream's own body through. Only transport failures are errors.
func TestCompleteHTTPRejectionIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer server.Close()

	c := New(server.URL, "sk-wrong", 5*time.Second)

	result, err := c.Complete(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	assert.False(t, result.Succeeded())
	assert.Equal(t, http.StatusUnauthorized, result.StatusCode)
	assert.JSONEq(t, `{"error":{"message":"bad key"}}`, string(result.Body))
}

func TestCompleteNonObjectBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[1,2,3]`))
	}))
	defer server.Close()

	c := New(server.URL, "", 5*time.Second)

	result, err := c.Complete(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	assert.Nil(t, result.JSON)
	assert.Equal(t, `[1,2,3]`, string(result.Body))
}

func TestBreakerOpensOnTransportFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c := New(url, "", time.Second)

	for i := 0; i < 5; i++ {
		_, err := c.Complete(context.Background(), []byte(`{}`))
		require.Error(t, err)
		require.NotErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	}

	_, err := c.Complete(context.Background(), []byte(`{}`))
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)

	c.ResetBreaker()
	assert.Equal(t, circuitbreaker.StateClosed, c.BreakerMetrics().State)
}
