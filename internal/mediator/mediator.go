package mediator

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"dynamokv/internal/errs"
	"dynamokv/internal/membership"
	"dynamokv/internal/metrics"
	"dynamokv/internal/partition"
	"dynamokv/internal/storage"
	"dynamokv/internal/vclock"
)

// deleteDeadline bounds every delete fanout.
const deleteDeadline = 10 * time.Second

// Quorum holds the (N, R, W) invariants this mediator enforces.
type Quorum struct {
	N, R, W int
}

// ActorSnapshot is the subset of *membership.Actor the mediator needs:
// a lock-free read of the current partition map and node set.
type ActorSnapshot interface {
	Snapshot() *membership.State
}

// Mediator translates single-key operations into N-way replica fanout and
// quorum decisions. It has no background loop of its own: every call is
// synchronous save for its internal parallel fanout.
type Mediator struct {
	actor   ActorSnapshot
	storage storage.Endpoint
	hasher  partition.Hasher
	self    string
	quorum  Quorum
	log     *logrus.Entry
}

// New constructs a Mediator over the given membership view, storage
// endpoint, hasher, and quorum configuration.
func New(actor ActorSnapshot, endpoint storage.Endpoint, hasher partition.Hasher, self string, q Quorum, log *logrus.Entry) *Mediator {
	return &Mediator{actor: actor, storage: endpoint, hasher: hasher, self: self, quorum: q, log: log}
}

// replicaSet resolves key to its N-way replica set under the currently
// installed membership state. A hash landing in a partition with no
// owner, or a replica set larger than the node set, means the installed
// map is torn; routing through it would misplace data, so both are fatal.
// The process logs and exits, and the supervisor restarts it from
// persisted state.
func (m *Mediator) replicaSet(key string) ([]string, partition.ID, *membership.State) {
	state := m.actor.Snapshot()
	h := m.hasher.Hash(key)
	pid := partition.PartitionForHash(h, state.Partitions.Q())
	owner, err := state.Partitions.Owner(pid)
	if err != nil {
		m.log.WithFields(logrus.Fields{"partition": pid, "key": key}).
			WithError(errs.ErrInvariantViolation).Fatal("partition has no owner")
	}
	replicas := partition.Replicas(owner, m.quorum.N, state.Nodes)
	if len(replicas) > len(state.Nodes) {
		m.log.WithFields(logrus.Fields{"replicas": len(replicas), "nodes": len(state.Nodes)}).
			WithError(errs.ErrInvariantViolation).Fatal("replica set exceeds node count")
	}
	return replicas, pid, state
}

func quorumErr(op string, good, bad []Reply[any], required, n int) error {
	return fmt.Errorf("%s: quorum not met (%d/%d, need %d): bad=%v: %w",
		op, len(good), n, required, badSummary(bad), errs.ErrQuorumUnmet)
}

func badSummary(bad []Reply[any]) []string {
	out := make([]string, len(bad))
	for i, r := range bad {
		out[i] = fmt.Sprintf("%s:%s", r.Node, errs.KindOf(r.Err))
	}
	return out
}

// Put increments the write-context clock by self, fans the write out to
// every replica, and succeeds once at least W replicas acknowledge.
func (m *Mediator) Put(ctx context.Context, key string, ctxClock vclock.VC, value []byte) (int, error) {
	nodes, pid, _ := m.replicaSet(key)
	incremented := vclock.Increment(m.self, ctxClock)

	replies := pcall(nodes, func(node string) (struct{}, error) {
		return struct{}{}, m.storage.Put(ctx, pid, node, key, incremented, value)
	})

	good, bad := partitionReplies(replies)
	metrics.ObserveQuorum("put", len(good) >= m.quorum.W)

	if len(good) >= m.quorum.W {
		return len(good), nil
	}
	return len(good), quorumErr("put", toAnyReplies(good), toAnyReplies(bad), m.quorum.W, len(nodes))
}

// Get fans a read out to every replica, reconciles via vclock.ResolveAll,
// and short-circuits to a clean not-found when at least R replicas agree
// the key is absent.
func (m *Mediator) Get(ctx context.Context, key string) ([]vclock.VersionedValue, error) {
	nodes, pid, _ := m.replicaSet(key)

	replies := pcall(nodes, func(node string) (vclock.VersionedValue, error) {
		return m.storage.Get(ctx, pid, node, key)
	})

	good, bad := partitionReplies(replies)
	if len(good) >= m.quorum.R {
		metrics.ObserveQuorum("get", true)
		candidates := make([]vclock.VersionedValue, len(good))
		for i, r := range good {
			candidates[i] = r.Value
		}
		return vclock.ResolveAll(candidates), nil
	}

	notFoundCount := countKind(bad, errs.KindNotFound)
	if notFoundCount >= m.quorum.R {
		metrics.ObserveQuorum("get", true)
		return nil, nil // a quorum of replicas agreed the key is absent
	}

	metrics.ObserveQuorum("get", false)
	return nil, quorumErr("get", toAnyReplies(good), toAnyReplies(bad), m.quorum.R, len(nodes))
}

// HasKey fans out and, once at least R replicas reply, returns the
// majority boolean with the number of replicas that voted for it.
func (m *Mediator) HasKey(ctx context.Context, key string) (bool, int, error) {
	nodes, pid, _ := m.replicaSet(key)

	replies := pcall(nodes, func(node string) (bool, error) {
		return m.storage.HasKey(ctx, pid, node, key)
	})

	good, bad := partitionReplies(replies)
	if len(good) < m.quorum.R {
		metrics.ObserveQuorum("has_key", false)
		return false, 0, quorumErr("has_key", toAnyReplies(good), toAnyReplies(bad), m.quorum.R, len(nodes))
	}

	trueCount := 0
	for _, r := range good {
		if r.Value {
			trueCount++
		}
	}
	metrics.ObserveQuorum("has_key", true)
	majority := trueCount*2 >= len(good)
	count := trueCount
	if !majority {
		count = len(good) - trueCount
	}
	return majority, count, nil
}

// Delete fans out a soft delete with a bounded deadline and a W-quorum
// check, symmetric to Put.
func (m *Mediator) Delete(ctx context.Context, key string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, deleteDeadline)
	defer cancel()

	nodes, pid, _ := m.replicaSet(key)
	replies := pcall(nodes, func(node string) (struct{}, error) {
		return struct{}{}, m.storage.Delete(ctx, pid, node, key)
	})

	good, bad := partitionReplies(replies)
	metrics.ObserveQuorum("delete", len(good) >= m.quorum.W)

	if len(good) >= m.quorum.W {
		return len(good), nil
	}
	return len(good), quorumErr("delete", toAnyReplies(good), toAnyReplies(bad), m.quorum.W, len(nodes))
}

// toAnyReplies discards reply values and keeps node/error, the shape
// quorumErr's diagnostic formatter needs regardless of the operation's
// result type.
func toAnyReplies[T any](rs []Reply[T]) []Reply[any] {
	out := make([]Reply[any], len(rs))
	for i, r := range rs {
		out[i] = Reply[any]{Node: r.Node, Err: r.Err}
	}
	return out
}
