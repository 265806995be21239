package retrieval

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/geogov/pkg/contracts"
)

func TestMemoryStoreRanksByTokenOverlap(t *testing.T) {
	store := NewMemoryStore()
	store.Add(
		contracts.Passage{Content: "GDPR applies to personal data processing in Europe", SourceRef: "gdpr"},
		contracts.Passage{Content: "Utah Social Media Regulation Act requires age verification for minors", SourceRef: "utah"},
		contracts.Passage{Content: "The DSA mandates recommender system transparency for minors in Europe", SourceRef: "dsa"},
	)

	out, err := store.Retrieve(context.Background(), "recommender transparency for minors in Europe", 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "dsa", out[0].SourceRef)
}

func TestMemoryStoreNoOverlapReturnsEmpty(t *testing.T) {
	store := NewMemoryStore()
	store.Add(contracts.Passage{Content: "GDPR personal data", SourceRef: "gdpr"})

	out, err := store.Retrieve(context.Background(), "zzz qqq", 5)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestMemoryStoreDeterministicTieBreak(t *testing.T) {
	store := NewMemoryStore()
	store.Add(
		contracts.Passage{Content: "minors protection rules", SourceRef: "first"},
		contracts.Passage{Content: "minors protection rules", SourceRef: "second"},
	)

	for i := 0; i < 5; i++ {
		out, err := store.Retrieve(context.Background(), "minors protection", 1)
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, "first", out[0].SourceRef)
	}
}

func TestHTTPRetrieverRetriesTransientStatuses(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"passages":[{"content":"DSA text","source_ref":"dsa"}]}`))
	}))
	defer srv.Close()

	r := NewHTTPRetriever(srv.URL, nil)
	r.baseDelay = 0

	out, err := r.Retrieve(context.Background(), "dsa", 3)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "dsa", out[0].SourceRef)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPRetrieverRetriesRateLimiting(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"passages":[{"content":"DSA text","source_ref":"dsa"}]}`))
	}))
	defer srv.Close()

	r := NewHTTPRetriever(srv.URL, nil)
	r.baseDelay = 0

	out, err := r.Retrieve(context.Background(), "dsa", 3)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int32(2), calls.Load(), "429 is transient, one retry recovers")
}

func TestHTTPRetrieverFailsFastOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	r := NewHTTPRetriever(srv.URL, nil)
	r.baseDelay = 0

	_, err := r.Retrieve(context.Background(), "q", 3)
	var re *RetrievalError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusBadRequest, re.StatusCode)
	assert.False(t, re.Retryable)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPRetrieverExhaustsRetryBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := NewHTTPRetriever(srv.URL, nil)
	r.baseDelay = 0

	_, err := r.Retrieve(context.Background(), "q", 3)
	var re *RetrievalError
	require.ErrorAs(t, err, &re)
	assert.True(t, re.Retryable)
	assert.Equal(t, int32(4), calls.Load(), "initial attempt plus three retries")
}
