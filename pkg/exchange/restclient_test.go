package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastOptions(retries int) Options {
	return Options{
		Timeout:     2 * time.Second,
		MaxRetries:  retries,
		BackoffBase: time.Millisecond,
		BackoffMax:  5 * time.Millisecond,
		UserAgent:   "p2pcollector-test",
	}
}

// go test -v --run ^TestGetJSONRetriesRetryableStatus$
func TestGetJSONRetriesRetryableStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "spot", r.URL.Query().Get("category"))
		assert.Equal(t, "p2pcollector-test", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := NewRESTClient(srv.URL, fastOptions(3), zap.NewNop())

	var out struct {
		OK bool `json:"ok"`
	}
	err := client.GetJSON(context.Background(), "/v5/market/tickers", url.Values{"category": {"spot"}}, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, int32(3), calls.Load())
}

// go test -v --run ^TestNonRetryableStatusFailsImmediately$
func TestNonRetryableStatusFailsImmediately(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "bad asset", http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewRESTClient(srv.URL, fastOptions(3), zap.NewNop())
	err := client.GetJSON(context.Background(), "/x", nil, nil)

	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusBadRequest))
	assert.Equal(t, int32(1), calls.Load())
}

// go test -v --run ^TestRetriesExhausted$
func TestRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewRESTClient(srv.URL, fastOptions(2), zap.NewNop())
	err := client.GetJSON(context.Background(), "/x", nil, nil)

	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusTooManyRequests))
	assert.Equal(t, int32(3), calls.Load(), "one attempt plus two retries")
}

// go test -v --run ^TestTransportErrorIsRetried$
func TestTransportErrorIsRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	addr := srv.URL
	srv.Close()

	client := NewRESTClient(addr, fastOptions(2), zap.NewNop())
	_, err := client.Do(context.Background(), http.MethodGet, "/x", nil, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempt(s)")
}

// go test -v --run ^TestDecodeErrorIsNotRetried$
func TestDecodeErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	client := NewRESTClient(srv.URL, fastOptions(3), zap.NewNop())
	var out map[string]any
	err := client.GetJSON(context.Background(), "/x", nil, &out)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
	assert.Equal(t, int32(1), calls.Load())
}

// go test -v --run ^TestContextCancelStopsRetrying$
func TestContextCancelStopsRetrying(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	opts := fastOptions(50)
	opts.BackoffBase = 20 * time.Millisecond
	opts.BackoffMax = 20 * time.Millisecond
	client := NewRESTClient(srv.URL, opts, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 70*time.Millisecond)
	defer cancel()
	_, err := client.Do(ctx, http.MethodGet, "/x", nil, nil)

	require.Error(t, err)
	assert.Less(t, calls.Load(), int32(10))
}

// go test -v --run ^TestPostJSONSignsBody$
func TestPostJSONSignsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "signed:16", r.Header.Get("X-Sig"))

		var in map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "USDT", in["asset"])
		_, _ = w.Write([]byte(`{"echo":"` + in["asset"] + `"}`))
	}))
	defer srv.Close()

	opts := fastOptions(0)
	opts.Signer = func(req *http.Request, body []byte) error {
		req.Header.Set("X-Sig", "signed:"+strconv.Itoa(len(body)))
		return nil
	}
	client := NewRESTClient(srv.URL, opts, zap.NewNop())

	var out struct {
		Echo string `json:"echo"`
	}
	require.NoError(t, client.PostJSON(context.Background(), "/search", map[string]string{"asset": "USDT"}, &out))
	assert.Equal(t, "USDT", out.Echo)
}

// go test -v --run ^TestAbsoluteURL$
func TestAbsoluteURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/other", r.URL.Path)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewRESTClient("http://127.0.0.1:1", fastOptions(0), zap.NewNop())
	require.NoError(t, client.GetJSON(context.Background(), srv.URL+"/other", nil, nil))
}
