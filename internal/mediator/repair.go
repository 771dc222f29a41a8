package mediator

import (
	"context"

	"dynamokv/internal/vclock"
)

// RepairSiblings writes every resolved VersionedValue back to every
// replica in key's current replica set. It is never called from Get:
// read repair is an explicit background task, not a hidden cost of every
// read. Callers (a background anti-entropy worker, an admin endpoint)
// invoke it once they have a Get result with more than one sibling.
//
// Best-effort: individual replica failures are not aggregated into a
// quorum decision, since repair is a convergence optimization, not a
// client-visible operation.
func (m *Mediator) RepairSiblings(ctx context.Context, key string, resolved []vclock.VersionedValue) {
	if len(resolved) == 0 {
		return
	}
	nodes, pid, _ := m.replicaSet(key)

	for _, vv := range resolved {
		pcall(nodes, func(node string) (struct{}, error) {
			return struct{}{}, m.storage.Put(ctx, pid, node, key, vv.Clock, vv.Value)
		})
	}
}
