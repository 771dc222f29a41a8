package membership

import "dynamokv/internal/vclock"

// Merge reconciles self against a remote membership state by comparing
// their version clocks: a remote that is equal or behind keeps local, a
// remote that is strictly ahead is adopted wholesale, and concurrent
// versions produce a union of nodes with a merged clock. It is a pure
// function: it never persists or notifies; the actor's install step owns
// those side effects.
func Merge(self, remote *State) *State {
	switch vclock.Compare(self.Version, remote.Version) {
	case vclock.Equal:
		return self
	case vclock.Less:
		// Adopt the remote state wholesale, but keep local identity.
		return &State{
			Version:    remote.Version,
			Nodes:      append([]NodeID(nil), remote.Nodes...),
			Partitions: remote.Partitions,
			Self:       self.Self,
		}
	case vclock.Greater:
		return self
	default: // Concurrent
		nodes := sortedUnion(self.Nodes, remote.Nodes)
		// Remap from the map with the smaller owner at the first partition
		// where the two disagree, so the result does not depend on which
		// side is self.
		base := self.Partitions
		selfOwners, remoteOwners := self.Partitions.Owners(), remote.Partitions.Owners()
		for _, id := range self.Partitions.IDs() {
			if s, r := selfOwners[id], remoteOwners[id]; s != r {
				if r < s {
					base = remote.Partitions
				}
				break
			}
		}
		return &State{
			Version:    vclock.Merge(self.Version, remote.Version),
			Nodes:      nodes,
			Partitions: base.Remap(nodes),
			Self:       self.Self,
		}
	}
}
