package partition

import (
	"slices"
	"sort"

	"dynamokv/internal/errs"
)

// NodeID identifies a cluster member. Membership keeps the canonical sorted
// node list; this package only ever receives it as an argument so the two
// packages don't need to import each other.
type NodeID = string

// ID is the lower bound of the hash range a partition covers. Stable
// across rebalancing; only its owner changes.
type ID uint32

// hashSpace is the size of the 32-bit hash space hashers map into.
const hashSpace uint64 = 1 << 32

// rangeWidth returns ceil(hashSpace / q), the width every partition (except
// possibly the last, which absorbs the remainder) covers.
func rangeWidth(q uint32) uint64 {
	if q == 0 {
		return hashSpace
	}
	return (hashSpace + uint64(q) - 1) / uint64(q)
}

// partitionIDs returns the q stable partition lower bounds in ascending
// order: q equal-width ranges, the index into hashSpace scaled by the
// range width, the last range absorbing the remainder.
func partitionIDs(q uint32) []ID {
	w := rangeWidth(q)
	ids := make([]ID, q)
	for i := range ids {
		ids[i] = ID(uint64(i) * w)
	}
	return ids
}

// PartitionForHash computes the partition lower bound containing h, given a
// total partition count q. Total and deterministic: every hash value maps
// to exactly one of the q stable buckets.
func PartitionForHash(h uint32, q uint32) ID {
	if q == 0 {
		return 0
	}
	w := rangeWidth(q)
	idx := uint64(h) / w
	if idx >= uint64(q) {
		idx = uint64(q) - 1
	}
	return ID(idx * w)
}

// Map is the ordered (owner, partition-id) table plus its O(1) secondary
// index. Partition ids are stable across rebalancing; only owners change.
type Map struct {
	q      uint32
	ids    []ID // ascending, length q
	owners map[ID]NodeID
}

// CreatePartitions produces q partitions distributed round-robin across the
// sorted node set. self is accepted so every caller constructs a map the
// same way, but the mapping is a pure function of nodes and q.
func CreatePartitions(q uint32, self NodeID, nodes []NodeID) *Map {
	sorted := sortedCopy(nodes)
	ids := partitionIDs(q)
	owners := make(map[ID]NodeID, q)
	for i, id := range ids {
		owners[id] = sorted[i%len(sorted)]
	}
	return &Map{q: q, ids: ids, owners: owners}
}

// Remap reassigns ownership for newNodes, balancing load while moving as
// few partitions as possible. Three phases, each deterministic given
// sorted node input:
//
//  1. A partition whose current owner is still in newNodes keeps that
//     owner.
//  2. Partitions owned by departed nodes are handed, in ascending
//     partition-ID order, to whichever node currently holds the fewest
//     partitions (ties broken by sorted NodeID).
//  3. While the spread between the heaviest and lightest owner exceeds
//     one, the heaviest owner's highest-ID partition moves to the
//     lightest owner, the greedy steal that gives a newly joined node
//     its fair share without reshuffling everyone else.
//
// The result is balanced to within one partition, and only partitions
// that had to move (orphans plus the minimum steal set) change owner.
func (m *Map) Remap(newNodes []NodeID) *Map {
	sorted := sortedCopy(newNodes)
	survivors := make(map[NodeID]bool, len(sorted))
	for _, n := range sorted {
		survivors[n] = true
	}

	owners := make(map[ID]NodeID, len(m.ids))
	load := make(map[NodeID]int, len(sorted))
	for _, n := range sorted {
		load[n] = 0
	}

	var orphaned []ID
	for _, id := range m.ids {
		owner := m.owners[id]
		if survivors[owner] {
			owners[id] = owner
			load[owner]++
		} else {
			orphaned = append(orphaned, id)
		}
	}

	slices.Sort(orphaned)
	for _, id := range orphaned {
		owner := leastLoaded(sorted, load)
		owners[id] = owner
		load[owner]++
	}

	for {
		heavy := heaviestLoaded(sorted, load)
		light := leastLoaded(sorted, load)
		if load[heavy]-load[light] <= 1 {
			break
		}
		stolen := highestPartitionOf(m.ids, owners, heavy)
		owners[stolen] = light
		load[heavy]--
		load[light]++
	}

	return &Map{q: m.q, ids: append([]ID(nil), m.ids...), owners: owners}
}

// leastLoaded returns the node with the smallest load, breaking ties by
// sorted NodeID (sorted is already ascending, so the first minimum found
// wins the tie).
func leastLoaded(sorted []NodeID, load map[NodeID]int) NodeID {
	best := sorted[0]
	for _, n := range sorted[1:] {
		if load[n] < load[best] {
			best = n
		}
	}
	return best
}

// heaviestLoaded is the mirror of leastLoaded: the first maximum in
// sorted order wins ties.
func heaviestLoaded(sorted []NodeID, load map[NodeID]int) NodeID {
	best := sorted[0]
	for _, n := range sorted[1:] {
		if load[n] > load[best] {
			best = n
		}
	}
	return best
}

// highestPartitionOf returns the largest partition ID owned by node. ids
// is ascending, so the last match wins.
func highestPartitionOf(ids []ID, owners map[ID]NodeID, node NodeID) ID {
	var found ID
	for _, id := range ids {
		if owners[id] == node {
			found = id
		}
	}
	return found
}

// FromOwners reconstructs a Map from an explicit partition-id→owner table,
// used by persistence (and legacy-format upgrade) to restore an exact
// assignment rather than recomputing one.
func FromOwners(q uint32, owners map[ID]NodeID) *Map {
	ids := make([]ID, 0, len(owners))
	for id := range owners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	cp := make(map[ID]NodeID, len(owners))
	for k, v := range owners {
		cp[k] = v
	}
	return &Map{q: q, ids: ids, owners: cp}
}

// Owner returns the node owning partition p.
func (m *Map) Owner(p ID) (NodeID, error) {
	n, ok := m.owners[p]
	if !ok {
		return "", errs.ErrUnknownPartition
	}
	return n, nil
}

// Q returns the total partition count.
func (m *Map) Q() uint32 { return m.q }

// IDs returns the ascending partition-ID list (a copy; callers must not
// mutate the map's internal ordering).
func (m *Map) IDs() []ID {
	return append([]ID(nil), m.ids...)
}

// Owners returns a copy of the partition-to-owner table.
func (m *Map) Owners() map[ID]NodeID {
	out := make(map[ID]NodeID, len(m.owners))
	for k, v := range m.owners {
		out[k] = v
	}
	return out
}

func sortedCopy(nodes []NodeID) []NodeID {
	out := append([]NodeID(nil), nodes...)
	sort.Strings(out)
	return out
}
