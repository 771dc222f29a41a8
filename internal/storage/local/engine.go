// Package local provides a reference in-process storage endpoint, a
// WAL-backed in-memory table, so the mediator and end-to-end tests have
// something concrete to dispatch to without a real network-attached
// store. It is keyed by (partition, node, key)
// the way the external contract addresses replicas, even though in this
// reference implementation every partition/node pair is served out of
// the same process.
package local

import (
	"context"
	"fmt"
	"sync"

	"dynamokv/internal/errs"
	"dynamokv/internal/partition"
	"dynamokv/internal/vclock"
)

type record struct {
	clock     vclock.VC
	value     []byte
	tombstone bool
}

func replicaKey(p partition.ID, node, key string) string {
	return fmt.Sprintf("%d/%s/%s", p, node, key)
}

// Engine is a single in-memory table guarded by an RWMutex: many readers,
// one writer. Every mutation is first appended to a WAL for crash
// recovery, then applied in memory.
type Engine struct {
	mu   sync.RWMutex
	data map[string]record
	wal  *WAL
}

// New opens (or creates) an Engine rooted at dir, replaying any WAL
// entries from a previous run.
func New(dir string) (*Engine, error) {
	wal, err := openWAL(dir)
	if err != nil {
		return nil, fmt.Errorf("open wal: %w", err)
	}

	e := &Engine{data: make(map[string]record), wal: wal}
	entries, err := wal.readAll()
	if err != nil {
		return nil, fmt.Errorf("replay wal: %w", err)
	}
	for _, ent := range entries {
		e.data[ent.Key] = record{clock: ent.Clock, value: ent.Value, tombstone: ent.Tombstone}
	}
	return e, nil
}

// Get implements storage.Endpoint.
func (e *Engine) Get(ctx context.Context, p partition.ID, node string, key string) (vclock.VersionedValue, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rec, ok := e.data[replicaKey(p, node, key)]
	if !ok || rec.tombstone {
		return vclock.VersionedValue{}, &errs.ReplicaError{Node: node, Kind: errs.KindNotFound, Err: errs.ErrNotFound}
	}
	return vclock.VersionedValue{Clock: rec.clock.Copy(), Value: append([]byte(nil), rec.value...)}, nil
}

// Put implements storage.Endpoint. A write whose clock is strictly
// dominated by the stored clock would regress counters that have already
// been made durable, so it is refused and classified as an invariant
// error; the coordinator counts the refusal toward Bad. Equal and
// concurrent clocks are accepted (concurrent siblings land this way).
func (e *Engine) Put(ctx context.Context, p partition.ID, node string, key string, clock vclock.VC, value []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rk := replicaKey(p, node, key)
	if existing, ok := e.data[rk]; ok {
		if vclock.Compare(clock, existing.clock) == vclock.Less {
			return &errs.ReplicaError{Node: node, Kind: errs.KindInvariant,
				Err: fmt.Errorf("%w: write clock %v regresses stored clock %v", errs.ErrInvariantViolation, clock, existing.clock)}
		}
	}

	entry := walEntry{Op: opPut, Key: rk, Clock: clock, Value: value}
	if err := e.wal.append(entry); err != nil {
		return &errs.ReplicaError{Node: node, Kind: errs.KindStorage, Err: fmt.Errorf("%w: %v", errs.ErrStorage, err)}
	}

	e.data[rk] = record{clock: clock, value: value}
	return nil
}

// HasKey implements storage.Endpoint.
func (e *Engine) HasKey(ctx context.Context, p partition.ID, node string, key string) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rec, ok := e.data[replicaKey(p, node, key)]
	return ok && !rec.tombstone, nil
}

// Delete implements storage.Endpoint as a soft delete (tombstone), so the
// delete itself replicates like any other write.
func (e *Engine) Delete(ctx context.Context, p partition.ID, node string, key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rk := replicaKey(p, node, key)
	existing := e.data[rk]
	clock := vclock.Increment(node, existing.clock)

	entry := walEntry{Op: opDelete, Key: rk, Clock: clock, Tombstone: true}
	if err := e.wal.append(entry); err != nil {
		return &errs.ReplicaError{Node: node, Kind: errs.KindStorage, Err: fmt.Errorf("%w: %v", errs.ErrStorage, err)}
	}

	e.data[rk] = record{clock: clock, tombstone: true}
	return nil
}

// Close releases the underlying WAL file handle.
func (e *Engine) Close() error {
	return e.wal.close()
}
