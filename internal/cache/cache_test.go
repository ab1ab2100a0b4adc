package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetCachesFetchedValue(t *testing.T) {
	ctx := context.Background()
	ks := NewKeyspace[int64, string]()

	var calls int32
	fetch := func(context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "value", nil
	}

	first, err := ks.Get(ctx, 42, false, fetch)
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	second, err := ks.Get(ctx, 42, false, fetch)
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if first != "value" || second != "value" {
		t.Errorf("values = %q, %q", first, second)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("fetcher ran %d times, want 1", got)
	}
}

func TestGetRefreshBypassesCache(t *testing.T) {
	ctx := context.Background()
	ks := NewKeyspace[string, int]()

	counter := 0
	fetch := func(context.Context) (int, error) {
		counter++
		return counter, nil
	}

	if _, err := ks.Get(ctx, "k", false, fetch); err != nil {
		t.Fatalf("prime: %v", err)
	}
	refreshed, err := ks.Get(ctx, "k", true, fetch)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed != 2 {
		t.Errorf("refresh value = %d, want 2", refreshed)
	}

	// The refreshed value must have overwritten the cached one.
	cached, err := ks.Get(ctx, "k", false, func(context.Context) (int, error) {
		t.Error("fetcher must not run on a cache hit")
		return 0, nil
	})
	if err != nil {
		t.Fatalf("hit after refresh: %v", err)
	}
	if cached != 2 {
		t.Errorf("cached value after refresh = %d, want 2", cached)
	}
}

func TestGetFailedFetchStoresNothing(t *testing.T) {
	ctx := context.Background()
	ks := NewKeyspace[string, int]()

	fetchErr := errors.New("boom")
	if _, err := ks.Get(ctx, "k", false, func(context.Context) (int, error) {
		return 0, fetchErr
	}); !errors.Is(err, fetchErr) {
		t.Fatalf("err = %v, want %v", err, fetchErr)
	}
	if _, ok := ks.Peek("k"); ok {
		t.Error("failed fetch must not populate the cache")
	}
}

func TestGetDeduplicatesConcurrentFetches(t *testing.T) {
	ctx := context.Background()
	ks := NewKeyspace[int, string]()

	var calls int32
	release := make(chan struct{})
	fetch := func(context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "shared", nil
	}

	const workers = 8
	var wg sync.WaitGroup
	results := make([]string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			value, err := ks.Get(ctx, 1, false, fetch)
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
				return
			}
			results[i] = value
		}(i)
	}

	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("fetcher ran %d times under concurrency, want 1", got)
	}
	for i, value := range results {
		if value != "shared" {
			t.Errorf("worker %d got %q", i, value)
		}
	}
}

func TestKeyspacesAreIndependent(t *testing.T) {
	ctx := context.Background()
	feeds := NewKeyspace[int64, string]()
	searches := NewKeyspace[string, string]()

	blocked := make(chan struct{})
	started := make(chan struct{})
	go feeds.Get(ctx, 1, false, func(context.Context) (string, error) {
		close(started)
		<-blocked
		return "slow", nil
	})
	<-started

	// A fetch stuck in the feeds keyspace must not block another keyspace.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := searches.Get(ctx, "q", false, func(context.Context) (string, error) {
			return "fast", nil
		}); err != nil {
			t.Errorf("search get: %v", err)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch in one keyspace blocked another keyspace")
	}
	close(blocked)
}
