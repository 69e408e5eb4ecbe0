package registry

import (
	"fmt"
	"hash/fnv"
)

// ShardRouter maps a connection identity onto one of a fixed number of
// shards. The mapping is a pure hash-and-modulo so the registry and the
// broadcast workers agree on ownership without any coordination step.
type ShardRouter struct {
	shards int
}

// NewShardRouter builds a router over a fixed shard count. The count is a
// configuration value and never changes at runtime.
func NewShardRouter(shards int) (*ShardRouter, error) {
	if shards <= 0 {
		return nil, fmt.Errorf("registry: shard count must be positive, got %d", shards)
	}
	return &ShardRouter{shards: shards}, nil
}

// ShardFor returns the shard index for a user identity. Deterministic,
// stateless, no failure modes.
func (r *ShardRouter) ShardFor(userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % uint32(r.shards))
}

func (r *ShardRouter) Shards() int { return r.shards }
