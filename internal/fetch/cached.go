package fetch

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL is how long a fetched page is reused.
const DefaultCacheTTL = 6 * time.Hour

// DefaultFailureTTL is how long a permanent failure suppresses refetching.
const DefaultFailureTTL = 30 * time.Minute

// CachedFetcherConfig holds configuration for the cached fetcher.
type CachedFetcherConfig struct {
	CacheTTL   time.Duration
	FailureTTL time.Duration
	// MaxEntries bounds the cache; the oldest entries are evicted first.
	MaxEntries int
	Options    *Options
}

type cacheEntry struct {
	page    *Page
	err     error
	expires time.Time
}

// CachedFetcher fetches pages through an in-memory cache. Concurrent
// requests for the same URL share one fetch.
type CachedFetcher struct {
	config CachedFetcherConfig
	group  singleflight.Group
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
	order   []string
}

// NewCachedFetcher creates a new cached fetcher.
func NewCachedFetcher(config CachedFetcherConfig) *CachedFetcher {
	if config.Options == nil {
		config.Options = DefaultOptions()
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = DefaultCacheTTL
	}
	if config.FailureTTL <= 0 {
		config.FailureTTL = DefaultFailureTTL
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = 512
	}
	return &CachedFetcher{
		config:  config,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// Fetch returns the extracted page for urlStr, from cache when fresh.
func (f *CachedFetcher) Fetch(ctx context.Context, urlStr string) (*Page, error) {
	if entry, ok := f.lookup(urlStr); ok {
		return entry.page, entry.err
	}

	v, err, _ := f.group.Do(urlStr, func() (any, error) {
		if entry, ok := f.lookup(urlStr); ok {
			return entry.page, entry.err
		}
		page, err := f.fetch(ctx, urlStr)
		f.store(urlStr, page, err)
		return page, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*Page), nil
}

func (f *CachedFetcher) fetch(ctx context.Context, urlStr string) (*Page, error) {
	result, err := URL(ctx, urlStr, f.config.Options)
	if err != nil {
		return nil, err
	}
	page, err := ExtractPage(result.HTML)
	if err != nil {
		return nil, &Error{URL: urlStr, Message: "failed to extract page", Cause: err}
	}
	page.URL = urlStr
	return page, nil
}

func (f *CachedFetcher) lookup(urlStr string) (cacheEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.entries[urlStr]
	if !ok || f.now().After(entry.expires) {
		return cacheEntry{}, false
	}
	return entry, true
}

// store caches successes and permanent failures. Transient failures and
// cancellations are not cached.
func (f *CachedFetcher) store(urlStr string, page *Page, err error) {
	ttl := f.config.CacheTTL
	if err != nil {
		var fe *Error
		if !errors.As(err, &fe) || fe.Retryable || ctxErr(err) {
			return
		}
		ttl = f.config.FailureTTL
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.entries[urlStr]; !exists {
		f.order = append(f.order, urlStr)
	}
	f.entries[urlStr] = cacheEntry{page: page, err: err, expires: f.now().Add(ttl)}

	for len(f.order) > f.config.MaxEntries {
		oldest := f.order[0]
		f.order = f.order[1:]
		delete(f.entries, oldest)
	}
}

func ctxErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Len reports the number of cached entries.
func (f *CachedFetcher) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}
