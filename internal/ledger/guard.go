package ledger

import "sync"

// userGuard provides per-user mutual exclusion for balance mutation using
// sharded mutexes. Instead of a single global lock, users are distributed
// across shards by an FNV-1a hash of the user ID, bounding contention under
// concurrent load while keeping same-user awards strictly serialized.
const numGuardShards = 128

type userGuard struct {
	shards [numGuardShards]sync.Mutex
}

func (g *userGuard) lock(key string) *sync.Mutex {
	m := &g.shards[shardFor(key)]
	m.Lock()
	return m
}

func shardFor(key string) uint32 {
	return fnv1a(key) % numGuardShards
}

// fnv1a gives better hash distribution than simple multiply-add.
func fnv1a(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
