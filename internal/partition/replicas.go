package partition

import "sort"

// Scope selects which partitions PartitionsForNode reports.
type Scope int

const (
	// Master: partitions whose owner is the given node.
	Master Scope = iota
	// All: partitions for which the node holds any replica.
	All
)

// Replicas walks nodes (assumed already sorted; membership stores the
// node set sorted) starting at start, wrapping around, and returns the
// first n distinct entries. If n >= len(nodes) every node is returned. This
// is the ring-replication rule: find the index of the start node,
// concatenate nodes[i..] with nodes[..i], take the first n.
func Replicas(start NodeID, n int, nodes []NodeID) []NodeID {
	if len(nodes) == 0 {
		return nil
	}
	if n >= len(nodes) {
		return append([]NodeID(nil), nodes...)
	}

	idx := indexOf(start, nodes)
	if idx < 0 {
		idx = 0
	}

	out := make([]NodeID, 0, n)
	for i := 0; i < len(nodes) && len(out) < n; i++ {
		out = append(out, nodes[(idx+i)%len(nodes)])
	}
	return out
}

func indexOf(node NodeID, nodes []NodeID) int {
	for i, n := range nodes {
		if n == node {
			return i
		}
	}
	return -1
}

// reversed returns a new slice with nodes in reverse order.
func reversed(nodes []NodeID) []NodeID {
	out := make([]NodeID, len(nodes))
	for i, n := range nodes {
		out[len(nodes)-1-i] = n
	}
	return out
}

// PartitionsForNode reports partitions associated with node, under the
// given scope (pure given a Map and the current sorted node list;
// membership simply forwards to it):
//
//   - Master: partitions whose owner is node.
//   - All: the union of Master partitions across node's n reverse-replica
//     nodes, the nodes whose forward replica walk (over the original node
//     order) would include node. Reverse-replica nodes are computed by
//     applying the same ring-walk rule to the reversed node list.
func (m *Map) PartitionsForNode(node NodeID, scope Scope, nodes []NodeID, n int) []ID {
	switch scope {
	case Master:
		return m.masterPartitions(node)
	default:
		revReplicas := Replicas(node, n, reversed(nodes))
		seen := make(map[ID]bool)
		var out []ID
		for _, holder := range revReplicas {
			for _, id := range m.masterPartitions(holder) {
				if !seen[id] {
					seen[id] = true
					out = append(out, id)
				}
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
		return out
	}
}

func (m *Map) masterPartitions(node NodeID) []ID {
	var out []ID
	for _, id := range m.ids {
		if m.owners[id] == node {
			out = append(out, id)
		}
	}
	return out
}
