// Package sync provides keyed locking for per-resource serialization.
package sync

import "sync"

const shardCount = 64

// ShardedMutex serializes work per key without a global lock. Keys are
// spread across a fixed set of shards, so two keys may share a shard but one
// key always maps to the same one.
type ShardedMutex struct {
	shards [shardCount]sync.Mutex
}

func NewShardedMutex() *ShardedMutex {
	return &ShardedMutex{}
}

// Lock acquires the shard of key.
func (m *ShardedMutex) Lock(key string) {
	m.shards[shardFor(key)].Lock()
}

// Unlock releases the shard of key.
func (m *ShardedMutex) Unlock(key string) {
	m.shards[shardFor(key)].Unlock()
}

// Do runs fn while holding the shard of key.
func (m *ShardedMutex) Do(key string, fn func() error) error {
	m.Lock(key)
	defer m.Unlock(key)
	return fn()
}

// shardFor hashes key with 32-bit FNV-1a. The empty key maps to shard 0.
func shardFor(key string) int {
	if key == "" {
		return 0
	}
	h := uint32(2166136261)
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= 16777619
	}
	return int(h % shardCount)
}
