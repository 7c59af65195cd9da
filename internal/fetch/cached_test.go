package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pageServer(t *testing.T, status int, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Cached</title><meta name="description" content="desc"></head><body>x</body></html>`))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestCachedFetcher_ReusesFreshPages(t *testing.T) {
	var hits atomic.Int32
	server := pageServer(t, http.StatusOK, &hits)
	f := NewCachedFetcher(CachedFetcherConfig{CacheTTL: time.Minute})

	for i := 0; i < 3; i++ {
		page, err := f.Fetch(context.Background(), server.URL)
		require.NoError(t, err)
		assert.Equal(t, "Cached", page.Title)
		assert.Equal(t, "desc", page.Description)
		assert.Equal(t, server.URL, page.URL)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestCachedFetcher_Expires(t *testing.T) {
	var hits atomic.Int32
	server := pageServer(t, http.StatusOK, &hits)
	f := NewCachedFetcher(CachedFetcherConfig{CacheTTL: time.Minute})
	now := time.Now()
	f.now = func() time.Time { return now }

	_, err := f.Fetch(context.Background(), server.URL)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = f.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestCachedFetcher_CachesPermanentFailures(t *testing.T) {
	var hits atomic.Int32
	server := pageServer(t, http.StatusNotFound, &hits)
	f := NewCachedFetcher(CachedFetcherConfig{})

	for i := 0; i < 2; i++ {
		_, err := f.Fetch(context.Background(), server.URL)
		require.Error(t, err)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestCachedFetcher_RetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32
	server := pageServer(t, http.StatusServiceUnavailable, &hits)
	f := NewCachedFetcher(CachedFetcherConfig{})

	for i := 0; i < 2; i++ {
		_, err := f.Fetch(context.Background(), server.URL)
		require.Error(t, err)
	}
	assert.Equal(t, int32(2), hits.Load())
	assert.Zero(t, f.Len())
}

func TestCachedFetcher_SharesConcurrentFetches(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		<-release
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<title>Shared</title>`))
	}))
	defer server.Close()

	f := NewCachedFetcher(CachedFetcherConfig{})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			page, err := f.Fetch(context.Background(), server.URL)
			assert.NoError(t, err)
			if page != nil {
				assert.Equal(t, "Shared", page.Title)
			}
		}()
	}

	// Give the goroutines time to join the in-flight request.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), hits.Load())
}

func TestCachedFetcher_EvictsOldest(t *testing.T) {
	var hits atomic.Int32
	server := pageServer(t, http.StatusOK, &hits)
	f := NewCachedFetcher(CachedFetcherConfig{MaxEntries: 2})

	for _, path := range []string{"/a", "/b", "/c"} {
		_, err := f.Fetch(context.Background(), server.URL+path)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, f.Len())

	_, err := f.Fetch(context.Background(), server.URL+"/a")
	require.NoError(t, err)
	assert.Equal(t, int32(4), hits.Load())
}
