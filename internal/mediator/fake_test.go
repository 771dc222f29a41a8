package mediator

import (
	"context"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"dynamokv/internal/errs"
	"dynamokv/internal/membership"
	"dynamokv/internal/partition"
	"dynamokv/internal/vclock"
)

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// fakeSnapshot wraps a fixed *membership.State to satisfy ActorSnapshot.
type fakeSnapshot struct{ state *membership.State }

func (f fakeSnapshot) Snapshot() *membership.State { return f.state }

// fakeHasher always maps every key to hash 0, so every test key lands
// deterministically on partition 0's owner chain.
type fakeHasher struct{}

func (fakeHasher) Hash(string) uint32 { return 0 }

// fakeEndpoint is an in-memory storage.Endpoint double keyed by node+key,
// with per-node up/down toggles so tests can simulate a dead replica or a
// healed network partition.
type fakeEndpoint struct {
	mu    sync.Mutex
	down  map[string]bool
	table map[string]vclock.VersionedValue
}

func newFakeEndpoint() *fakeEndpoint {
	return &fakeEndpoint{down: map[string]bool{}, table: map[string]vclock.VersionedValue{}}
}

func (f *fakeEndpoint) key(node, key string) string { return node + "/" + key }

func (f *fakeEndpoint) setDown(node string, down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down[node] = down
}

func (f *fakeEndpoint) Get(ctx context.Context, p partition.ID, node string, key string) (vclock.VersionedValue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down[node] {
		return vclock.VersionedValue{}, &errs.ReplicaError{Node: node, Kind: errs.KindTransport, Err: errs.ErrTransport}
	}
	v, ok := f.table[f.key(node, key)]
	if !ok {
		return vclock.VersionedValue{}, &errs.ReplicaError{Node: node, Kind: errs.KindNotFound, Err: errs.ErrNotFound}
	}
	return v, nil
}

func (f *fakeEndpoint) Put(ctx context.Context, p partition.ID, node string, key string, clock vclock.VC, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down[node] {
		return &errs.ReplicaError{Node: node, Kind: errs.KindTransport, Err: errs.ErrTransport}
	}
	f.table[f.key(node, key)] = vclock.VersionedValue{Clock: clock.Copy(), Value: append([]byte(nil), value...)}
	return nil
}

func (f *fakeEndpoint) HasKey(ctx context.Context, p partition.ID, node string, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down[node] {
		return false, &errs.ReplicaError{Node: node, Kind: errs.KindTransport, Err: errs.ErrTransport}
	}
	_, ok := f.table[f.key(node, key)]
	return ok, nil
}

func (f *fakeEndpoint) Delete(ctx context.Context, p partition.ID, node string, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down[node] {
		return &errs.ReplicaError{Node: node, Kind: errs.KindTransport, Err: errs.ErrTransport}
	}
	delete(f.table, f.key(node, key))
	return nil
}
