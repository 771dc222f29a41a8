package gossip

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"dynamokv/internal/membership"
	"dynamokv/internal/metrics"
	"dynamokv/internal/vclock"
)

// minInterval and maxInterval bound the per-round sleep: a uniform random
// interval in [5s, 10s) so nodes don't tick in lockstep.
const (
	minInterval = 5 * time.Second
	maxInterval = 10 * time.Second
)

// Peer is the subset of PeerClient the Gossiper depends on, narrowed to
// an interface so round logic is testable against a fake.
type Peer interface {
	GetState(ctx context.Context, peerAddr string, self membership.NodeID) (*membership.State, error)
	PushState(ctx context.Context, peerAddr string, merged *membership.State) error
}

// ActorHandle is the subset of *membership.Actor the Gossiper needs:
// a current snapshot to gossip from, and a way to install a merged
// remote. Narrowed to an interface for the same reason as Peer.
type ActorHandle interface {
	Snapshot() *membership.State
	MergeWith(ctx context.Context, remote *membership.State) (*membership.State, error)
}

// Gossiper runs the anti-entropy loop for one node: sleep, pick a random
// peer, exchange, repeat. Stop pauses the loop until a matching Start,
// without tearing down the goroutine.
type Gossiper struct {
	actor ActorHandle
	peer  Peer
	self  membership.NodeID
	log   *logrus.Entry

	stop  chan struct{}
	start chan struct{}

	// Peer selection uses package-level math/rand; gossip has no
	// adversarial requirement, only uniform spread.
}

// New constructs a Gossiper. It does not start running; call Run in its
// own goroutine.
func New(actor ActorHandle, peer Peer, self membership.NodeID, log *logrus.Entry) *Gossiper {
	return &Gossiper{
		actor: actor,
		peer:  peer,
		self:  self,
		log:   log,
		stop:  make(chan struct{}),
		start: make(chan struct{}),
	}
}

// Run executes rounds until ctx is cancelled. peers is re-read from the
// current membership snapshot on every round, so newly joined nodes are
// eligible gossip targets without restarting the loop.
func (g *Gossiper) Run(ctx context.Context) {
	paused := false
	for {
		wait := randomInterval()
		select {
		case <-ctx.Done():
			return
		case <-g.stop:
			paused = true
		case <-g.start:
			paused = false
		case <-time.After(wait):
			if !paused {
				g.round(ctx)
			}
		}

		if paused {
			select {
			case <-ctx.Done():
				return
			case <-g.stop:
				// Already paused; absorb the signal so Stop never blocks.
			case <-g.start:
				paused = false
			}
		}
	}
}

// Stop pauses the loop after any in-flight round completes.
func (g *Gossiper) Stop() { g.stop <- struct{}{} }

// Start resumes a paused loop.
func (g *Gossiper) Start() { g.start <- struct{}{} }

func randomInterval() time.Duration {
	span := maxInterval - minInterval
	return minInterval + time.Duration(rand.Int63n(int64(span)))
}

// round performs one push-pull exchange with a random peer. Transport
// failures are swallowed: the next tick retries with a (likely different)
// random peer.
func (g *Gossiper) round(ctx context.Context) {
	local := g.actor.Snapshot()
	target := pickPeer(local.Nodes, g.self)
	if target == "" {
		return // no peers yet
	}

	roundID := uuid.NewString()
	log := g.log.WithFields(logrus.Fields{"round": roundID, "peer": target})

	roundCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	remote, err := g.peer.GetState(roundCtx, string(target), g.self)
	if err != nil {
		log.WithError(err).Debug("gossip round: peer unreachable")
		metrics.ObserveGossipRound("unreachable")
		return
	}

	if vclock.Compare(local.Version, remote.Version) == vclock.Equal {
		log.Debug("gossip round: already converged")
		metrics.ObserveGossipRound("converged")
		return
	}

	merged, err := g.actor.MergeWith(roundCtx, remote)
	if err != nil {
		log.WithError(err).Warn("gossip round: local merge failed")
		return
	}
	metrics.ObserveGossipRound("merged")

	if err := g.peer.PushState(roundCtx, string(target), merged); err != nil {
		log.WithError(err).Debug("gossip round: push failed")
	}
}

// pickPeer returns a uniformly random node from nodes excluding self, or
// "" if no eligible peer exists.
func pickPeer(nodes []membership.NodeID, self membership.NodeID) membership.NodeID {
	candidates := make([]membership.NodeID, 0, len(nodes))
	for _, n := range nodes {
		if n != self {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	return candidates[rand.Intn(len(candidates))]
}
