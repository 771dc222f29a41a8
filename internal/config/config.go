// Package config holds the cluster invariants (N, R, W, Q, hasher/storage
// selection) and the local-only fields every node loads from its
// configuration file, plus the startup reconciliation that lets a joining
// node inherit those invariants from a visible peer.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config is one node's view of the cluster configuration. N, R, W, Q,
// StorageMod, Blocksize and BufferedWrites are cluster invariants: equal
// on every node and subject to peer reconciliation at startup. Directory
// is local-only and never overwritten by Reconcile.
type Config struct {
	N              int    `json:"n"`
	R              int    `json:"r"`
	W              int    `json:"w"`
	Q              uint32 `json:"q"`
	StorageMod     string `json:"storage_mod"`
	Blocksize      int    `json:"blocksize"`
	BufferedWrites bool   `json:"buffered_writes"`
	Directory      string `json:"directory"`
}

// Defaults returns the engine's built-in defaults, used for any field
// absent from the config file.
func Defaults() Config {
	return Config{
		N:              3,
		R:              2,
		W:              2,
		Q:              64,
		StorageMod:     "local",
		Blocksize:      4096,
		BufferedWrites: true,
		Directory:      "/var/lib/dynamokv",
	}
}

// fileConfig mirrors Config but with pointer fields so the JSON decoder can
// distinguish an absent or null field (both mean "unset") from an explicit
// zero value.
type fileConfig struct {
	N              *int    `json:"n"`
	R              *int    `json:"r"`
	W              *int    `json:"w"`
	Q              *uint32 `json:"q"`
	StorageMod     *string `json:"storage_mod"`
	Blocksize      *int    `json:"blocksize"`
	BufferedWrites *bool   `json:"buffered_writes"`
	Directory      *string `json:"directory"`
}

// Load reads the JSON configuration file at path, layering its fields over
// Defaults(). A missing file is not an error; it simply yields the
// defaults (a node's first-ever boot has nowhere else to get invariants
// from besides a peer, handled separately by Reconcile). Unknown fields in
// the file are ignored, matching encoding/json's default behavior.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	fc.applyTo(&cfg)
	return cfg, nil
}

func (fc fileConfig) applyTo(cfg *Config) {
	if fc.N != nil {
		cfg.N = *fc.N
	}
	if fc.R != nil {
		cfg.R = *fc.R
	}
	if fc.W != nil {
		cfg.W = *fc.W
	}
	if fc.Q != nil {
		cfg.Q = *fc.Q
	}
	if fc.StorageMod != nil {
		cfg.StorageMod = *fc.StorageMod
	}
	if fc.Blocksize != nil {
		cfg.Blocksize = *fc.Blocksize
	}
	if fc.BufferedWrites != nil {
		cfg.BufferedWrites = *fc.BufferedWrites
	}
	if fc.Directory != nil {
		cfg.Directory = *fc.Directory
	}
}

// Validate checks the hard bounds 1<=r<=n and 1<=w<=n. r+w > n is
// recommended but deliberately not enforced.
func (c Config) Validate() error {
	if c.N <= 0 {
		return fmt.Errorf("config: n must be positive, got %d", c.N)
	}
	if c.R < 1 || c.R > c.N {
		return fmt.Errorf("config: r must satisfy 1<=r<=n (n=%d, r=%d)", c.N, c.R)
	}
	if c.W < 1 || c.W > c.N {
		return fmt.Errorf("config: w must satisfy 1<=w<=n (n=%d, w=%d)", c.N, c.W)
	}
	if c.Q == 0 {
		return fmt.Errorf("config: q must be positive")
	}
	return nil
}
