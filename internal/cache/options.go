package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"gestionale/internal/core"
)

// OptionsFetcher reads one select-option list from the backend.
type OptionsFetcher interface {
	Options(ctx context.Context, endpoint string) ([]core.Option, error)
}

// Options caches select-option lists per endpoint and bearer token, so
// users never see lists fetched with someone else's permissions.
type Options struct {
	lru *LRUCache[[]core.Option]
}

func NewOptions(maxSize int, ttl time.Duration) *Options {
	return &Options{lru: NewLRUCache[[]core.Option](maxSize, ttl)}
}

func optionsKey(endpoint, token string) string {
	return endpoint + "\x00" + token
}

// Load returns the lists for endpoints, fetching the missing ones in
// parallel. Any failed fetch fails the whole load.
func (o *Options) Load(ctx context.Context, token string, f OptionsFetcher, endpoints []string) (map[string][]core.Option, error) {
	out := make(map[string][]core.Option, len(endpoints))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	seen := make(map[string]bool, len(endpoints))
	for _, ep := range endpoints {
		if seen[ep] {
			continue
		}
		seen[ep] = true
		if cached, ok := o.lru.Get(optionsKey(ep, token)); ok {
			mu.Lock()
			out[ep] = cached
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			opts, err := f.Options(gctx, ep)
			if err != nil {
				return fmt.Errorf("load options %s: %w", ep, err)
			}
			o.lru.Set(optionsKey(ep, token), opts)
			mu.Lock()
			out[ep] = opts
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// InvalidateEndpoint drops every cached list of endpoint, e.g. after one
// of its records changed.
func (o *Options) InvalidateEndpoint(endpoint string) int {
	return o.lru.DeletePrefix(endpoint + "\x00")
}

// CleanExpired implements Cleaner.
func (o *Options) CleanExpired() int { return o.lru.CleanExpired() }

// Stats returns the underlying hit and miss counters.
func (o *Options) Stats() (hits, misses uint64) { return o.lru.Stats() }
