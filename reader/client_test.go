package reader

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanwatch/config"
)

func testClient() *Client {
	return NewClient("test_source", config.ReaderConfig{
		Timeout:   time.Second,
		UserAgent: "loanwatch-test",
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 100, BurstSize: 10},
	})
}

func TestClientSetsUserAgentAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "loanwatch-test", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"value":42}`))
	}))
	defer srv.Close()

	var out struct {
		Value int `json:"value"`
	}
	require.NoError(t, testClient().GetJSON(context.Background(), srv.URL, &out))
	assert.Equal(t, 42, out.Value)
}

func TestClientPostsJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["ping"]})
	}))
	defer srv.Close()

	var out map[string]string
	require.NoError(t, testClient().PostJSON(context.Background(), srv.URL, map[string]string{"ping": "pong"}, &out))
	assert.Equal(t, "pong", out["echo"])
}

func TestClientStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   error
	}{
		{http.StatusNotFound, `{}`, ErrNotFound},
		{http.StatusInternalServerError, `{}`, ErrUnexpectedStatus},
		{http.StatusOK, `not json`, ErrMalformedPayload},
	}
	for _, c := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(c.status)
			_, _ = w.Write([]byte(c.body))
		}))
		var out map[string]interface{}
		err := testClient().GetJSON(context.Background(), srv.URL, &out)
		srv.Close()
		assert.True(t, errors.Is(err, c.want), "status %d: %v", c.status, err)
	}
}

func TestClientHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out map[string]interface{}
	assert.Error(t, testClient().GetJSON(ctx, "http://127.0.0.1:1", &out))
}

func TestNewLimiterDefaults(t *testing.T) {
	l := NewLimiter(config.RateLimitConfig{})
	assert.Equal(t, 1, l.Burst())
	assert.InDelta(t, 5, float64(l.Limit()), 1e-9)
}
