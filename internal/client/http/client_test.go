package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() *RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.InitialInterval = time.Millisecond
	cfg.MaxInterval = 5 * time.Millisecond
	return cfg
}

func TestPostSendsJSONAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/things", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "yes", r.Header.Get("X-Extra"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "v", body["k"])

		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"id":"1"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(WithBaseURL(srv.URL+"/"), WithDefaultHeader("X-Extra", "yes"), WithMiddleware(LoggingMiddleware()))
	resp, err := c.Post(context.Background(), "v1/things", map[string]string{"k": "v"}, WithBearerToken("tok"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var out struct{ ID string }
	require.NoError(t, c.ProcessJSONResponse(resp, &out))
	assert.Equal(t, "1", out.ID)
}

func TestRetriesThrottlingWithFreshBody(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]int
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 7, body["n"])

		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewHTTPClient(WithBaseURL(srv.URL), WithRetryConfig(fastRetry()))
	resp, err := c.Post(context.Background(), "/send", map[string]int{"n": 7})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"ErrorInvalidRecipients"}}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(WithBaseURL(srv.URL), WithRetryConfig(fastRetry()))
	resp, err := c.Post(context.Background(), "/send", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	resp.Body.Close()

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
	assert.Contains(t, httpErr.Body, "ErrorInvalidRecipients")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRetriesExhausted(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := fastRetry()
	cfg.MaxRetries = 2
	c := NewHTTPClient(WithBaseURL(srv.URL), WithRetryConfig(cfg))
	_, err := c.Get(context.Background(), "/x")
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestInvalidPathWithoutBaseURL(t *testing.T) {
	c := NewHTTPClient(WithRetryConfig(nil))
	_, err := c.Get(context.Background(), "not a url")
	assert.Error(t, err)
}
