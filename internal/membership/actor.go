package membership

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"dynamokv/internal/metrics"
	"dynamokv/internal/partition"
	"dynamokv/internal/vclock"
)

// OwnershipNotifier is called after an installed state changes nodes or
// partitions, the hook the external storage layer uses to start/stop
// per-partition workers. It is a side effect of installing a new state,
// never of the pure Merge function itself.
type OwnershipNotifier func(old, new *partition.Map)

type commandKind int

const (
	cmdJoin commandKind = iota
	cmdRemove
	cmdRemap
	cmdMerge
	cmdSnapshot
)

type command struct {
	kind   commandKind
	node   NodeID
	newMap *partition.Map
	remote *State
	reply  chan actorReply
}

type actorReply struct {
	state *State
	err   error
}

// Actor owns a membership State exclusively: all mutation happens on its
// single goroutine, in arrival order. A read-optimized atomic snapshot is
// published after every mutation so the mediator can look up the partition
// map without a round trip through this actor's channel, the one piece of
// state shared outside its owning actor.
type Actor struct {
	cmds     chan command
	current  atomic.Pointer[State]
	actorID  vclock.ActorID
	dir      string
	nodeName string
	notifier OwnershipNotifier
	log      *logrus.Entry
}

// NewActor constructs an Actor around initial. It does not start the
// processing loop; call Run in its own goroutine.
func NewActor(initial *State, dir, nodeName string, notifier OwnershipNotifier, log *logrus.Entry) *Actor {
	a := &Actor{
		cmds:     make(chan command, 32),
		actorID:  initial.Self,
		dir:      dir,
		nodeName: nodeName,
		notifier: notifier,
		log:      log,
	}
	a.current.Store(initial)
	return a
}

// Run processes commands until ctx is done. Cancelling ctx drops any
// in-flight reply without corrupting state: callers select on both the
// reply channel and their own context.
func (a *Actor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-a.cmds:
			a.handle(cmd)
		}
	}
}

func (a *Actor) handle(cmd command) {
	old := a.current.Load()
	var next *State
	var err error

	switch cmd.kind {
	case cmdJoin:
		next = Join(old, cmd.node, a.actorID)
	case cmdRemove:
		next = Remove(old, cmd.node, a.actorID)
	case cmdRemap:
		next = Remap(old, cmd.newMap, a.actorID)
	case cmdMerge:
		next = Merge(old, cmd.remote)
	case cmdSnapshot:
		cmd.reply <- actorReply{state: old}
		return
	}

	if next != old {
		if err = a.install(old, next); err != nil {
			a.log.WithError(err).Error("failed to install membership state")
		}
	}

	cmd.reply <- actorReply{state: next, err: err}
}

// install swaps in next, persists it, and, if the node set or partition
// map changed, notifies the storage layer. The side effects belong to
// state installation, not to Merge/Join/Remove/Remap themselves (those
// remain pure and independently testable).
func (a *Actor) install(old, next *State) error {
	a.current.Store(next)

	if err := Save(a.dir, a.nodeName, next); err != nil {
		return fmt.Errorf("persist membership state: %w", err)
	}

	metrics.NodeCount.Set(float64(len(next.Nodes)))
	if old.Partitions != next.Partitions {
		metrics.PartitionOwnershipChanges.Inc()
	}

	if a.notifier != nil && (nodesChanged(old.Nodes, next.Nodes) || old.Partitions != next.Partitions) {
		a.notifier(old.Partitions, next.Partitions)
	}
	return nil
}

func nodesChanged(a, b []NodeID) bool {
	if len(a) != len(b) {
		return true
	}
	for i := range a {
		if a[i] != b[i] {
			return true
		}
	}
	return false
}

// Snapshot returns the currently installed state without going through the
// command channel; safe for concurrent readers (e.g. the mediator).
func (a *Actor) Snapshot() *State {
	return a.current.Load()
}

// Join submits a join request and waits for it to be applied or ctx to be
// cancelled.
func (a *Actor) Join(ctx context.Context, node NodeID) (*State, error) {
	return a.send(ctx, command{kind: cmdJoin, node: node})
}

// Remove submits a remove request.
func (a *Actor) Remove(ctx context.Context, node NodeID) (*State, error) {
	return a.send(ctx, command{kind: cmdRemove, node: node})
}

// RemapTo submits an administrative hard-remap.
func (a *Actor) RemapTo(ctx context.Context, newMap *partition.Map) (*State, error) {
	return a.send(ctx, command{kind: cmdRemap, newMap: newMap})
}

// MergeWith submits a gossip-derived remote state for causal merge.
func (a *Actor) MergeWith(ctx context.Context, remote *State) (*State, error) {
	return a.send(ctx, command{kind: cmdMerge, remote: remote})
}

func (a *Actor) send(ctx context.Context, cmd command) (*State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cmd.reply = make(chan actorReply, 1)
	select {
	case a.cmds <- cmd:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-cmd.reply:
		return r.state, r.err
	case <-ctx.Done():
		// The command may still complete asynchronously; its reply is
		// simply discarded. State is never corrupted by this: install
		// either fully happens on the actor goroutine or not at all.
		return nil, ctx.Err()
	}
}
