package gossip

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"dynamokv/internal/membership"
)

// PeerClient performs the two RPCs of a gossip round against a single
// peer address: one http.Client, JSON bodies, a bounded timeout. There is
// no retry here: a failed round simply ends, and the next tick picks a
// fresh peer.
type PeerClient struct {
	http *http.Client
}

// NewPeerClient builds a client with the given per-call timeout.
func NewPeerClient(timeout time.Duration) *PeerClient {
	return &PeerClient{http: &http.Client{Timeout: timeout}}
}

// GetState fetches the peer's current membership state.
func (c *PeerClient) GetState(ctx context.Context, peerAddr string, self membership.NodeID) (*membership.State, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://%s/internal/gossip/state", peerAddr), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gossip: peer %s returned status %d", peerAddr, resp.StatusCode)
	}

	var w wireState
	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
		return nil, err
	}
	return w.toState(self), nil
}

// PushState sends the merged state to the peer so it can install it too,
// completing the push half of push-pull.
func (c *PeerClient) PushState(ctx context.Context, peerAddr string, merged *membership.State) error {
	body, err := json.Marshal(toWire(merged))
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("http://%s/internal/gossip/state", peerAddr), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gossip: peer %s rejected push with status %d", peerAddr, resp.StatusCode)
	}
	return nil
}
