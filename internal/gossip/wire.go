// Package gossip implements anti-entropy: periodic peer selection,
// push-pull state exchange, and convergence via membership.Merge.
package gossip

import (
	"dynamokv/internal/membership"
	"dynamokv/internal/partition"
	"dynamokv/internal/vclock"
)

// wireState is the JSON-over-HTTP shape of a membership.State exchanged
// between peers. Self is deliberately omitted: it is process-local and
// never serialized as part of the convergent state.
type wireState struct {
	Version vclock.VC                 `json:"version"`
	Nodes   []membership.NodeID       `json:"nodes"`
	Q       uint32                    `json:"q"`
	Owners  map[partition.ID]string `json:"owners"`
}

func toWire(s *membership.State) wireState {
	return wireState{
		Version: s.Version.Copy(),
		Nodes:   append([]membership.NodeID(nil), s.Nodes...),
		Q:       s.Partitions.Q(),
		Owners:  s.Partitions.Owners(),
	}
}

// toState reconstructs a membership.State from a wire payload, attaching
// self (never itself transmitted) so the result can be merged locally.
func (w wireState) toState(self membership.NodeID) *membership.State {
	return &membership.State{
		Version:    w.Version,
		Nodes:      append([]membership.NodeID(nil), w.Nodes...),
		Partitions: partition.FromOwners(w.Q, w.Owners),
		Self:       self,
	}
}

// EncodeState renders s in the same wire shape PeerClient sends/receives,
// for use by the server-side gossip handler answering GetState.
func EncodeState(s *membership.State) wireState {
	return toWire(s)
}

// DecodeState parses a server-received wire payload into a State attached
// to self, the counterpart to EncodeState for the PushState handler.
func DecodeState(w wireState, self membership.NodeID) *membership.State {
	return w.toState(self)
}

// WireState is the exported name the HTTP handlers in internal/api use to decode a
// gossip request body without reaching into package-private fields.
type WireState = wireState
