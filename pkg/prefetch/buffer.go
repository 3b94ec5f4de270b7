// Package prefetch implements a per-file segment cache with lookahead
// prefetching, so sequential reads rarely block on network round-trips.
package prefetch

import (
	"context"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sourcegraph/conc"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"nzbengine/pkg/logger"
)

// Fetcher retrieves and yEnc-decodes the bytes for one segment index.
type Fetcher func(ctx context.Context, index int) ([]byte, error)

// Buffer caches decoded segment bytes for one file and prefetches ahead of
// the read cursor. Once full, the LRU store evicts the least recently used
// entry, one entry per insertion; it does not evict down to half capacity.
// In-flight fetches
// for the same index are deduplicated via singleflight so concurrent callers
// (foreground read + background prefetch) share one network round-trip.
type Buffer struct {
	fetch         Fetcher
	cache         *lru.Cache[int, []byte]
	sf            singleflight.Group
	prefetchCount int
	wg            conc.WaitGroup
}

// New builds a Buffer. prefetchCount and maxCacheSize fall back to the
// spec's defaults (5, 20) when non-positive.
func New(fetch Fetcher, prefetchCount, maxCacheSize int) (*Buffer, error) {
	if prefetchCount <= 0 {
		prefetchCount = 5
	}
	if maxCacheSize <= 0 {
		maxCacheSize = 20
	}
	cache, err := lru.New[int, []byte](maxCacheSize)
	if err != nil {
		return nil, err
	}
	return &Buffer{fetch: fetch, cache: cache, prefetchCount: prefetchCount}, nil
}

// GetSegment returns the decoded bytes for index, fetching on miss and
// scheduling background prefetches for the following prefetchCount indices.
func (b *Buffer) GetSegment(ctx context.Context, index int) ([]byte, error) {
	if data, ok := b.cache.Get(index); ok {
		return data, nil
	}

	data, err, _ := b.sf.Do(keyFor(index), func() (interface{}, error) {
		return b.fetch(ctx, index)
	})
	if err != nil {
		return nil, err
	}
	out := data.([]byte)
	b.cache.Add(index, out)

	b.schedulePrefetch(index)
	return out, nil
}

// schedulePrefetch launches background fetches for [index+1 .. index+N] that
// are neither cached nor already in flight. Prefetch errors are logged and
// swallowed; they must never surface to the foreground reader.
func (b *Buffer) schedulePrefetch(index int) {
	for i := index + 1; i <= index+b.prefetchCount; i++ {
		if _, ok := b.cache.Peek(i); ok {
			continue
		}
		target := i
		b.wg.Go(func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("prefetch panic recovered", "index", target, "panic", r)
				}
			}()
			data, err, _ := b.sf.Do(keyFor(target), func() (interface{}, error) {
				return b.fetch(context.Background(), target)
			})
			if err != nil {
				logger.Debug("prefetch failed", "index", target, "error", err)
				return
			}
			b.cache.Add(target, data.([]byte))
		})
	}
}

// Drain blocks until all in-flight prefetches for this buffer complete. The
// wait runs inside an errgroup derived from ctx, but cancelling ctx does not
// end the wait early.
func (b *Buffer) Drain(ctx context.Context) error {
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		b.wg.Wait()
		return nil
	})
	return g.Wait()
}

func keyFor(index int) string {
	return strconv.Itoa(index)
}
