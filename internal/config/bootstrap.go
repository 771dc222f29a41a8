package config

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// peerDeadline bounds the single get_config round-trip at startup.
const peerDeadline = 1000 * time.Millisecond

// Bootstrapper performs the startup reconciliation: after the local config
// file is read, try to adopt cluster invariants from one randomly chosen
// visible peer, so a joining node inherits them automatically.
type Bootstrapper struct {
	http *http.Client
}

// NewBootstrapper builds a Bootstrapper bound to the peerDeadline.
func NewBootstrapper() *Bootstrapper {
	return &Bootstrapper{http: &http.Client{Timeout: peerDeadline}}
}

// Reconcile attempts get_config against one randomly chosen address from
// peers. On success, it overwrites local's cluster-invariant fields with
// the peer's, preserving local's Directory. On an empty peer list or any
// failure it returns local unchanged: an unavailable peer is always
// recovered locally, never propagated.
func (b *Bootstrapper) Reconcile(ctx context.Context, local Config, peers []string, log *logrus.Entry) Config {
	if len(peers) == 0 {
		return local
	}

	peer := peers[rand.Intn(len(peers))]
	roundCtx, cancel := context.WithTimeout(ctx, peerDeadline)
	defer cancel()

	remote, err := b.getConfig(roundCtx, peer)
	if err != nil {
		log.WithField("peer", peer).WithError(err).Warn("config bootstrap: peer unavailable, keeping local defaults")
		return local
	}

	log.WithField("peer", peer).Info("config bootstrap: adopted cluster invariants from peer")
	merged := local
	merged.N = remote.N
	merged.R = remote.R
	merged.W = remote.W
	merged.Q = remote.Q
	merged.StorageMod = remote.StorageMod
	merged.Blocksize = remote.Blocksize
	merged.BufferedWrites = remote.BufferedWrites
	return merged
}

func (b *Bootstrapper) getConfig(ctx context.Context, peerAddr string) (Config, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://%s/internal/config", peerAddr), nil)
	if err != nil {
		return Config{}, err
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return Config{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Config{}, fmt.Errorf("config bootstrap: peer %s returned status %d", peerAddr, resp.StatusCode)
	}

	var cfg Config
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
