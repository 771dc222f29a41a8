package gossip

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dynamokv/internal/membership"
	"dynamokv/internal/vclock"
)

type fakeActor struct {
	snap    *membership.State
	merged  *membership.State
	mergeCt int
}

func (f *fakeActor) Snapshot() *membership.State { return f.snap }

func (f *fakeActor) MergeWith(ctx context.Context, remote *membership.State) (*membership.State, error) {
	f.mergeCt++
	merged := membership.Merge(f.snap, remote)
	f.merged = merged
	f.snap = merged
	return merged, nil
}

type fakePeer struct {
	state   *membership.State
	getErr  error
	pushed  *membership.State
	pushErr error
}

func (f *fakePeer) GetState(ctx context.Context, peerAddr string, self membership.NodeID) (*membership.State, error) {
	return f.state, f.getErr
}

func (f *fakePeer) PushState(ctx context.Context, peerAddr string, merged *membership.State) error {
	f.pushed = merged
	return f.pushErr
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(nilWriter{})
	return logrus.NewEntry(l)
}

type nilWriter struct{}

func (nilWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestRoundSkipsWhenNoPeers(t *testing.T) {
	local := membership.New("a", 8)
	actor := &fakeActor{snap: local}
	peer := &fakePeer{}
	g := New(actor, peer, "a", quietLogger())

	g.round(context.Background())
	assert.Equal(t, 0, actor.mergeCt)
}

func TestRoundSkipsWhenEqual(t *testing.T) {
	local := membership.Join(membership.New("a", 8), "b", "a")
	actor := &fakeActor{snap: local}
	peer := &fakePeer{state: local}
	g := New(actor, peer, "a", quietLogger())

	g.round(context.Background())
	assert.Equal(t, 0, actor.mergeCt, "equal clocks must not trigger a merge")
}

func TestRoundMergesAndPushesOnDivergence(t *testing.T) {
	base := membership.New("a", 8)
	local := membership.Join(base, "b", "a")
	remote := membership.Join(base, "c", "c") // concurrent with local

	actor := &fakeActor{snap: local}
	peer := &fakePeer{state: remote}
	g := New(actor, peer, "a", quietLogger())

	g.round(context.Background())

	require.Equal(t, 1, actor.mergeCt)
	assert.Contains(t, actor.merged.Nodes, membership.NodeID("b"))
	assert.Contains(t, actor.merged.Nodes, membership.NodeID("c"))
	require.NotNil(t, peer.pushed)
}

// TestNewNodeConvergesAfterOneRound boots a fresh node d that knows only
// peer a, runs a single gossip round against a's view of an established
// {a,b,c} cluster, and checks full convergence: d sees all four nodes,
// every partition's owner is one of them, d's version is at least a's,
// and the merged state is pushed back so a converges too.
func TestNewNodeConvergesAfterOneRound(t *testing.T) {
	clusterView := membership.New("a", 8)
	clusterView = membership.Join(clusterView, "b", "a")
	clusterView = membership.Join(clusterView, "c", "a")

	dView := membership.Join(membership.New("d", 8), "a", "d")

	actor := &fakeActor{snap: dView}
	peer := &fakePeer{state: clusterView}
	g := New(actor, peer, "d", quietLogger())

	g.round(context.Background())

	require.Equal(t, 1, actor.mergeCt)
	merged := actor.snap
	assert.Equal(t, []membership.NodeID{"a", "b", "c", "d"}, merged.Nodes)

	for _, id := range merged.Partitions.IDs() {
		owner, err := merged.Partitions.Owner(id)
		require.NoError(t, err)
		assert.Contains(t, merged.Nodes, owner)
	}

	rel := vclock.Compare(merged.Version, clusterView.Version)
	assert.Contains(t, []vclock.Relation{vclock.Equal, vclock.Greater}, rel,
		"the joiner's version must dominate or equal the peer's after merging")

	require.NotNil(t, peer.pushed, "the merged state must be pushed back to the peer")
	assert.ElementsMatch(t, merged.Nodes, peer.pushed.Nodes)
}

func TestRoundSwallowsTransportFailure(t *testing.T) {
	local := membership.Join(membership.New("a", 8), "b", "a")
	actor := &fakeActor{snap: local}
	peer := &fakePeer{getErr: assertErr{}}
	g := New(actor, peer, "a", quietLogger())

	assert.NotPanics(t, func() { g.round(context.Background()) })
	assert.Equal(t, 0, actor.mergeCt)
}

type assertErr struct{}

func (assertErr) Error() string { return "simulated transport failure" }

func TestStartStopPausesLoop(t *testing.T) {
	local := membership.New("a", 8)
	actor := &fakeActor{snap: local}
	peer := &fakePeer{}
	g := New(actor, peer, "a", quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		g.Run(ctx)
		close(done)
	}()

	// Give Run a moment to enter its select loop before signalling.
	time.Sleep(10 * time.Millisecond)
	g.Stop()
	g.Start()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after context cancellation")
	}
}
