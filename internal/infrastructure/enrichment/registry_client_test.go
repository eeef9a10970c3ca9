package enrichment

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
	"go.uber.org/zap"

	"github.com/receiving/backend/internal/domain/receiving"
)

func newTestClient(t *testing.T, baseURL string) *RegistryClient {
	t.Helper()
	client, err := NewRegistryClient(Config{
		BaseURL:        baseURL,
		APIKey:         "test-key",
		RequestTimeout: 2 * time.Second,
		MaxRetries:     2,
		RetryBackoff:   time.Millisecond,
		Concurrency:    4,
	}, zap.NewNop())
	require.NoError(t, err)
	return client
}

func TestNewRegistryClient_RequiresBaseURL(t *testing.T) {
	_, err := NewRegistryClient(Config{}, zap.NewNop())
	assert.ErrorIs(t, err, ErrRegistryNotConfigured)
}

func TestRegistryClient_Lookup_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "/packages/1A01", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"label":           "1A01",
			"expiration_date": "2026-09-01",
			"strain_name":     "Blue Dream",
			"product_name":    "Blue Dream 3.5g",
		})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	results, err := client.Lookup(context.Background(), []string{"1A01"})
	require.NoError(t, err)
	require.Len(t, results, 1)

	enr := results["1A01"]
	assert.Nil(t, enr.Err)
	assert.Equal(t, "Blue Dream", enr.StrainName)
	require.NotNil(t, enr.ExpirationDate)
	assert.Equal(t, "2026-09-01", enr.ExpirationDate.Format("2006-01-02"))
}

func TestRegistryClient_Lookup_NotFoundIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	results, err := client.Lookup(context.Background(), []string{"1A99"})
	require.NoError(t, err)

	enr := results["1A99"]
	require.NotNil(t, enr.Err)
	assert.Equal(t, receiving.EnrichmentErrorNotFound, enr.Err.Class)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRegistryClient_Lookup_TransientErrorIsRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"label": "1A01"})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	results, err := client.Lookup(context.Background(), []string{"1A01"})
	require.NoError(t, err)

	assert.Nil(t, results["1A01"].Err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRegistryClient_Lookup_ExhaustedRetriesReportUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	results, err := client.Lookup(context.Background(), []string{"1A01"})
	require.NoError(t, err)

	enr := results["1A01"]
	require.NotNil(t, enr.Err)
	assert.Equal(t, receiving.EnrichmentErrorUpstream, enr.Err.Class)
}

func TestRegistryClient_Lookup_OneFailureNeverAbortsBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/packages/1A02" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"label": "ok"})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	results, err := client.Lookup(context.Background(), []string{"1A01", "1A02", "1A03"})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Nil(t, results["1A01"].Err)
	assert.NotNil(t, results["1A02"].Err)
	assert.Nil(t, results["1A03"].Err)
}

func TestRegistryClient_Lookup_EmptyBatch(t *testing.T) {
	client := newTestClient(t, "http://localhost:1")
	results, err := client.Lookup(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRegistryClient_Lookup_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"label": "ok"})
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newTestClient(t, srv.URL)
	_, err := client.Lookup(ctx, []string{"1A01"})
	assert.Error(t, err)
}
