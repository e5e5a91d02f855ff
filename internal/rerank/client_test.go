package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRerankReordersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rerankRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "bge", req.Model)
		assert.Equal(t, "230205", req.Query)
		assert.Equal(t, 2, req.TopN)

		_, _ = w.Write([]byte(`{"results":[{"index":1,"relevance_score":0.9},{"index":0,"relevance_score":0.1}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL, Model: "bge"}, srv.Client())
	got, err := c.Rerank(context.Background(), "230205", []string{"weather", "230205 bond"})
	require.NoError(t, err)
	assert.Equal(t, []Result{{Index: 0, RelevanceScore: 0.1}, {Index: 1, RelevanceScore: 0.9}}, got)
}

func TestRelevanceSingleDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"relevance_score":0.8}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL}, srv.Client())
	got, err := c.Relevance(context.Background(), "q", "doc")
	require.NoError(t, err)
	assert.InDelta(t, 0.8, got, 1e-9)
}

func TestRerankMisaligned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL}, srv.Client())
	_, err := c.Relevance(context.Background(), "q", "doc")
	assert.ErrorIs(t, err, ErrMisaligned)
}

func TestRelevanceCallsThroughAfterFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) <= 5 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"results":[{"relevance_score":0.8}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL}, srv.Client())
	for i := 0; i < 5; i++ {
		_, err := c.Relevance(context.Background(), "q", "doc")
		require.Error(t, err)
	}

	got, err := c.Relevance(context.Background(), "q", "doc")
	require.NoError(t, err)
	assert.InDelta(t, 0.8, got, 1e-9)
	assert.Equal(t, int32(6), hits.Load())
}
