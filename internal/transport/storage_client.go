// Package transport provides the peer-to-peer wiring the mediator needs to
// reach a StorageEndpoint that lives on another node: an address book
// mapping NodeID to network address, and an HTTP client/server pair that
// implements storage.Endpoint over the wire for non-local replicas.
// Endpoints are addressed by the pair (partition, node); this package is
// what resolves that pair to a network address.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"dynamokv/internal/errs"
	"dynamokv/internal/partition"
	"dynamokv/internal/storage"
	"dynamokv/internal/vclock"
)

// AddrBook resolves a NodeID to the host:port a peer's HTTP API listens
// on. The (partition, node) pair stays a structured value all the way to
// the wire; it is never flattened into a synthesized identifier string,
// only the already-resolved address is stitched into a URL.
type AddrBook interface {
	Addr(node string) (string, bool)
}

// StaticAddrBook is an AddrBook backed by a fixed map, populated at
// startup from the --peers id=host:port flag.
type StaticAddrBook map[string]string

func (b StaticAddrBook) Addr(node string) (string, bool) {
	a, ok := b[node]
	return a, ok
}

// RemoteEndpoint implements storage.Endpoint, dispatching locally-owned
// replicas to a local storage.Endpoint and everything else over HTTP to
// the owning peer.
type RemoteEndpoint struct {
	self  string
	local storage.Endpoint
	addrs AddrBook
	http  *http.Client
}

// NewRemoteEndpoint builds a RemoteEndpoint. Calls targeting self never
// leave the process.
func NewRemoteEndpoint(self string, local storage.Endpoint, addrs AddrBook, timeout time.Duration) *RemoteEndpoint {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &RemoteEndpoint{self: self, local: local, addrs: addrs, http: &http.Client{Timeout: timeout}}
}

func (e *RemoteEndpoint) url(p partition.ID, node, key, suffix string) (string, error) {
	addr, ok := e.addrs.Addr(node)
	if !ok {
		return "", fmt.Errorf("%w: no known address for node %s", errs.ErrTransport, node)
	}
	u := fmt.Sprintf("http://%s/internal/storage/%d/%s/%s", addr, p, node, key)
	if suffix != "" {
		u += "/" + suffix
	}
	return u, nil
}

// Get implements storage.Endpoint.
func (e *RemoteEndpoint) Get(ctx context.Context, p partition.ID, node string, key string) (vclock.VersionedValue, error) {
	if node == e.self {
		return e.local.Get(ctx, p, node, key)
	}

	u, err := e.url(p, node, key, "")
	if err != nil {
		return vclock.VersionedValue{}, &errs.ReplicaError{Node: node, Kind: errs.KindTransport, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return vclock.VersionedValue{}, &errs.ReplicaError{Node: node, Kind: errs.KindTransport, Err: err}
	}
	resp, err := e.http.Do(req)
	if err != nil {
		return vclock.VersionedValue{}, &errs.ReplicaError{Node: node, Kind: errs.KindTimeout, Err: fmt.Errorf("%w: %v", errs.ErrTransport, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return vclock.VersionedValue{}, &errs.ReplicaError{Node: node, Kind: errs.KindNotFound, Err: errs.ErrNotFound}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return vclock.VersionedValue{}, &errs.ReplicaError{Node: node, Kind: errs.KindStorage, Err: fmt.Errorf("%w: status %d", errs.ErrStorage, resp.StatusCode)}
	}

	var wire wireValue
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return vclock.VersionedValue{}, &errs.ReplicaError{Node: node, Kind: errs.KindStorage, Err: err}
	}
	return wire.toVersionedValue(), nil
}

// Put implements storage.Endpoint.
func (e *RemoteEndpoint) Put(ctx context.Context, p partition.ID, node string, key string, clock vclock.VC, value []byte) error {
	if node == e.self {
		return e.local.Put(ctx, p, node, key, clock, value)
	}

	u, err := e.url(p, node, key, "")
	if err != nil {
		return &errs.ReplicaError{Node: node, Kind: errs.KindTransport, Err: err}
	}

	body, err := json.Marshal(wireValue{Clock: clock, Value: value})
	if err != nil {
		return &errs.ReplicaError{Node: node, Kind: errs.KindStorage, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(body))
	if err != nil {
		return &errs.ReplicaError{Node: node, Kind: errs.KindTransport, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		return &errs.ReplicaError{Node: node, Kind: errs.KindTimeout, Err: fmt.Errorf("%w: %v", errs.ErrTransport, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &errs.ReplicaError{Node: node, Kind: errs.KindStorage, Err: fmt.Errorf("%w: status %d", errs.ErrStorage, resp.StatusCode)}
	}
	return nil
}

// HasKey implements storage.Endpoint.
func (e *RemoteEndpoint) HasKey(ctx context.Context, p partition.ID, node string, key string) (bool, error) {
	if node == e.self {
		return e.local.HasKey(ctx, p, node, key)
	}

	u, err := e.url(p, node, key, "has")
	if err != nil {
		return false, &errs.ReplicaError{Node: node, Kind: errs.KindTransport, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, &errs.ReplicaError{Node: node, Kind: errs.KindTransport, Err: err}
	}
	resp, err := e.http.Do(req)
	if err != nil {
		return false, &errs.ReplicaError{Node: node, Kind: errs.KindTimeout, Err: fmt.Errorf("%w: %v", errs.ErrTransport, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, &errs.ReplicaError{Node: node, Kind: errs.KindStorage, Err: fmt.Errorf("%w: status %d", errs.ErrStorage, resp.StatusCode)}
	}

	var wire struct {
		Present bool `json:"present"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return false, &errs.ReplicaError{Node: node, Kind: errs.KindStorage, Err: err}
	}
	return wire.Present, nil
}

// Delete implements storage.Endpoint. The delete deadline is the
// mediator's responsibility; this call honors whatever deadline ctx
// already carries.
func (e *RemoteEndpoint) Delete(ctx context.Context, p partition.ID, node string, key string) error {
	if node == e.self {
		return e.local.Delete(ctx, p, node, key)
	}

	u, err := e.url(p, node, key, "")
	if err != nil {
		return &errs.ReplicaError{Node: node, Kind: errs.KindTransport, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return &errs.ReplicaError{Node: node, Kind: errs.KindTransport, Err: err}
	}
	resp, err := e.http.Do(req)
	if err != nil {
		return &errs.ReplicaError{Node: node, Kind: errs.KindTimeout, Err: fmt.Errorf("%w: %v", errs.ErrTransport, err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &errs.ReplicaError{Node: node, Kind: errs.KindStorage, Err: fmt.Errorf("%w: status %d", errs.ErrStorage, resp.StatusCode)}
	}
	return nil
}

// wireValue is the JSON shape of a VersionedValue on the storage wire.
type wireValue struct {
	Clock vclock.VC `json:"clock"`
	Value []byte    `json:"value"`
}

func (w wireValue) toVersionedValue() vclock.VersionedValue {
	return vclock.VersionedValue{Clock: w.Clock, Value: w.Value}
}
