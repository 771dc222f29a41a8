// Package membership implements the versioned {nodes, partitions} record
// propagated by gossip, its causal merge, and the single-writer actor that
// owns it in-process.
package membership

import (
	"sort"

	"dynamokv/internal/partition"
	"dynamokv/internal/vclock"
)

// NodeID identifies a cluster member.
type NodeID = partition.NodeID

// State is the convergent membership record: version, node set, and
// partition map. Self is process-local and is never compared, merged, or
// serialized as part of the convergent state.
type State struct {
	Version    vclock.VC
	Nodes      []NodeID
	Partitions *partition.Map
	Self       NodeID
}

// New creates a fresh membership state seeded with self as the only node.
func New(self NodeID, q uint32) *State {
	nodes := []NodeID{self}
	return &State{
		Version:    vclock.New(self),
		Nodes:      nodes,
		Partitions: partition.CreatePartitions(q, self, nodes),
		Self:       self,
	}
}

// Join adds newcomer to the node set, recomputes the partition map via
// Remap, and increments version by actor (the coordinating node handling
// the join request).
func Join(s *State, newcomer NodeID, actor vclock.ActorID) *State {
	nodes := sortedUnion(s.Nodes, []NodeID{newcomer})
	return &State{
		Version:    vclock.Increment(actor, s.Version),
		Nodes:      nodes,
		Partitions: s.Partitions.Remap(nodes),
		Self:       s.Self,
	}
}

// Remove drops departing from the node set and remaps ownership, symmetric
// to Join.
func Remove(s *State, departing NodeID, actor vclock.ActorID) *State {
	nodes := make([]NodeID, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		if n != departing {
			nodes = append(nodes, n)
		}
	}
	return &State{
		Version:    vclock.Increment(actor, s.Version),
		Nodes:      nodes,
		Partitions: s.Partitions.Remap(nodes),
		Self:       s.Self,
	}
}

// Remap replaces the partition map directly, an administrative hard
// remap bypassing the rebalance algorithm.
func Remap(s *State, newMap *partition.Map, actor vclock.ActorID) *State {
	return &State{
		Version:    vclock.Increment(actor, s.Version),
		Nodes:      append([]NodeID(nil), s.Nodes...),
		Partitions: newMap,
		Self:       s.Self,
	}
}

// PartitionsForNode forwards to the underlying partition map using this
// state's current sorted node list.
func (s *State) PartitionsForNode(node NodeID, scope partition.Scope, n int) []partition.ID {
	return s.Partitions.PartitionsForNode(node, scope, s.Nodes, n)
}

func sortedUnion(a, b []NodeID) []NodeID {
	seen := make(map[NodeID]bool, len(a)+len(b))
	out := make([]NodeID, 0, len(a)+len(b))
	for _, n := range append(append([]NodeID{}, a...), b...) {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}
