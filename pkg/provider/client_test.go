package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ownerfi/dealflow/internal/resilience"
)

func fastOpts(url string) []Option {
	return []Option{
		WithBaseURL(url),
		WithRateLimit(10000),
		WithBatchDelay(0, 0),
		WithRetryPolicy(resilience.Policy{Attempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}),
	}
}

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"https://www.zillow.com/memphis-tn/"}, req.SearchURLs)
		assert.Equal(t, 200, req.MaxResults)
		assert.Equal(t, "pagination", req.Mode)

		w.Write([]byte(`{"items":[{"zpid":1,"city":"Memphis"},{"zpid":2,"city":"Bartlett"}]}`))
	}))
	defer srv.Close()

	c := NewClient("key", fastOpts(srv.URL)...)
	items, err := c.Search(context.Background(), SearchQuery{
		Name:       "memphis",
		URL:        "https://www.zillow.com/memphis-tn/",
		MaxResults: 200,
	})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Memphis", items[0].City)
}

func TestSearchRetriesServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"items":[{"zpid":7}]}`))
	}))
	defer srv.Close()

	c := NewClient("key", fastOpts(srv.URL)...)
	items, err := c.Search(context.Background(), SearchQuery{URL: srv.URL})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSearchDoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient("bad-key", fastOpts(srv.URL)...)
	_, err := c.Search(context.Background(), SearchQuery{URL: srv.URL})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDetailsSubBatches(t *testing.T) {
	var batchSizes []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/details", r.URL.Path)
		var req detailRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		batchSizes = append(batchSizes, len(req.URLs))
		w.Write([]byte(`{"items":[{"zpid":1}]}`))
	}))
	defer srv.Close()

	urls := make([]string, 250)
	for i := range urls {
		urls[i] = "https://example.com/p"
	}

	c := NewClient("key", fastOpts(srv.URL)...)
	items, err := c.Details(context.Background(), urls)
	require.NoError(t, err)
	assert.Equal(t, []int{100, 100, 50}, batchSizes)
	assert.Len(t, items, 3)
}

func TestDetailsContinuesPastFailedBatch(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 { // first batch plus its retry
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"items":[{"zpid":9}]}`))
	}))
	defer srv.Close()

	urls := make([]string, 150)
	for i := range urls {
		urls[i] = "https://example.com/p"
	}

	c := NewClient("key", fastOpts(srv.URL)...)
	items, err := c.Details(context.Background(), urls)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestDetailsAllBatchesFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient("key", fastOpts(srv.URL)...)
	_, err := c.Details(context.Background(), []string{"https://example.com/p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all detail batches failed")
}

func TestDetailsEmptyInput(t *testing.T) {
	c := NewClient("key")
	items, err := c.Details(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, items)
}
