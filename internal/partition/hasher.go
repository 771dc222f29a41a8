// Package partition implements the fixed-Q partition-to-owner map:
// deterministic partition assignment, rebalancing on membership change, and
// the ring-walk replica-selection rule.
package partition

import (
	"hash/fnv"

	"github.com/spaolacci/murmur3"
)

// Hasher maps an opaque key to a 32-bit position in the partition hash
// space. The hash function itself is pluggable: callers supply one, the
// partition map only ever calls it.
type Hasher interface {
	Hash(key string) uint32
}

// Murmur3Hasher is the default Hasher, grounded on the murmur3-based
// reference Dynamo-style store found in the example corpus. Murmur3 gives a
// fast, well-distributed 32-bit hash suitable for ring placement.
type Murmur3Hasher struct{}

func (Murmur3Hasher) Hash(key string) uint32 {
	return murmur3.Sum32([]byte(key))
}

// FNVHasher is a dependency-free fallback, useful for tests that want a
// deterministic, easily hand-computed mapping without pulling in murmur3.
type FNVHasher struct{}

func (FNVHasher) Hash(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32()
}
