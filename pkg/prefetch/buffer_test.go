package prefetch

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetSegmentFetchesAndCaches(t *testing.T) {
	var calls int32
	fetch := func(ctx context.Context, i int) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return []byte(fmt.Sprintf("segment-%d", i)), nil
	}
	b, err := New(fetch, 0, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	data, err := b.GetSegment(context.Background(), 0)
	if err != nil {
		t.Fatalf("GetSegment: %v", err)
	}
	if string(data) != "segment-0" {
		t.Fatalf("got %q", data)
	}

	// allow background prefetch goroutines to settle
	time.Sleep(50 * time.Millisecond)
	if err := b.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	if got := atomic.LoadInt32(&calls); got < 2 {
		t.Fatalf("expected at least 2 fetches (miss + prefetch), got %d", got)
	}

	// Second call for an already-prefetched index should be a cache hit with
	// no additional fetch call.
	before := atomic.LoadInt32(&calls)
	if _, err := b.GetSegment(context.Background(), 1); err != nil {
		t.Fatalf("GetSegment(1): %v", err)
	}
	if atomic.LoadInt32(&calls) != before {
		t.Fatalf("expected cache hit, but fetch count grew from %d to %d", before, atomic.LoadInt32(&calls))
	}
}

func TestPrefetchErrorSwallowed(t *testing.T) {
	fetch := func(ctx context.Context, i int) ([]byte, error) {
		if i == 2 {
			return nil, fmt.Errorf("boom")
		}
		return []byte{byte(i)}, nil
	}
	b, err := New(fetch, 3, 10)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := b.GetSegment(context.Background(), 0); err != nil {
		t.Fatalf("foreground fetch should not see prefetch errors: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	_ = b.Drain(context.Background())
}
