package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLookupCacheLoadsOnce(t *testing.T) {
	c := NewLookupCache[string, int](4, time.Minute)
	calls := 0
	load := func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.GetOrLoad(context.Background(), "k", load)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if v != 42 {
			t.Fatalf("expected 42 got %d", v)
		}
	}
	if calls != 1 {
		t.Fatalf("expected 1 load got %d", calls)
	}

	c.Invalidate("k")
	if _, err := c.GetOrLoad(context.Background(), "k", load); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected reload after invalidate, calls=%d", calls)
	}
}

func TestLookupCacheDoesNotCacheErrors(t *testing.T) {
	c := NewLookupCache[int, string](4, time.Minute)
	boom := errors.New("boom")
	if _, err := c.GetOrLoad(context.Background(), 1, func(ctx context.Context) (string, error) {
		return "", boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected boom got %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("error result must not be cached")
	}
}

func TestLookupCacheEvictsBySize(t *testing.T) {
	c := NewLookupCache[int, int](2, time.Minute)
	for i := 0; i < 3; i++ {
		i := i
		c.GetOrLoad(context.Background(), i, func(ctx context.Context) (int, error) { return i, nil })
	}
	if c.Len() != 2 {
		t.Fatalf("expected size bound 2 got %d", c.Len())
	}
}

func TestLookupCacheExpiresByTTL(t *testing.T) {
	c := NewLookupCache[int, int](2, 20*time.Millisecond)
	calls := 0
	load := func(ctx context.Context) (int, error) {
		calls++
		return calls, nil
	}
	c.GetOrLoad(context.Background(), 1, load)
	time.Sleep(60 * time.Millisecond)
	v, _ := c.GetOrLoad(context.Background(), 1, load)
	if v != 2 {
		t.Fatalf("expected expired entry to reload, got %d", v)
	}
}
