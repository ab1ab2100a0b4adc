// Package cache memoizes remote catalog lookups. Each query shape gets its
// own Keyspace with an independent lock, so a slow fetch in one keyspace
// never blocks reads in another; no code path ever holds two keyspace locks
// at once. Entries live for the life of the process — there is no TTL and no
// eviction.
package cache

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Keyspace is a mutex-guarded memo map for a single query shape. Concurrent
// callers for the same missing key share one in-flight fetch instead of each
// hitting the fetcher.
type Keyspace[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]V
	group   singleflight.Group
}

func NewKeyspace[K comparable, V any]() *Keyspace[K, V] {
	return &Keyspace[K, V]{entries: make(map[K]V)}
}

// Get returns the cached value for key unless refresh is set, in which case
// the fetcher always runs and its result overwrites the cached value. On a
// miss the fetcher runs once even under concurrent callers; its result is
// stored and shared. A failed fetch stores nothing.
func (k *Keyspace[K, V]) Get(ctx context.Context, key K, refresh bool, fetch func(context.Context) (V, error)) (V, error) {
	if !refresh {
		k.mu.Lock()
		value, ok := k.entries[key]
		k.mu.Unlock()
		if ok {
			return value, nil
		}
	}

	result, err, _ := k.group.Do(fmt.Sprintf("%v/%t", key, refresh), func() (interface{}, error) {
		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		k.mu.Lock()
		k.entries[key] = value
		k.mu.Unlock()
		return value, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return result.(V), nil
}

// Peek reports whether key is cached without invoking any fetcher.
func (k *Keyspace[K, V]) Peek(key K) (V, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	value, ok := k.entries[key]
	return value, ok
}

// Invalidate drops a single key.
func (k *Keyspace[K, V]) Invalidate(key K) {
	k.mu.Lock()
	delete(k.entries, key)
	k.mu.Unlock()
}

// Len returns the number of cached entries.
func (k *Keyspace[K, V]) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
