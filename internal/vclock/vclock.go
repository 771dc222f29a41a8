// Package vclock implements vector-clock causality: creation, increment,
// comparison and merge over a map of actor to monotonic counter, plus the
// read-side reconciliation rule used by the mediator.
//
// A vector clock tracks "who wrote what, and does it descend from what I
// already have" without forcing every write in the cluster into one global
// order. Two clocks are only comparable along the partial order induced by
// elementwise ≤; clocks that each have a strictly-greater counter than the
// other are concurrent: real, unresolved conflicts, rather than one
// silently overwriting the other.
package vclock

import (
	"fmt"
	"maps"
	"math"

	"dynamokv/internal/errs"
)

// ActorID identifies the writer (node) that incremented a counter.
type ActorID = string

// VC is an unordered mapping from actor to a monotonically increasing
// counter. The zero value is a nil map; callers that intend to mutate one
// should start from New or Copy.
type VC map[ActorID]uint64

// Relation is the result of comparing two vector clocks.
type Relation int

const (
	Equal Relation = iota
	Less
	Greater
	Concurrent
)

func (r Relation) String() string {
	switch r {
	case Equal:
		return "Equal"
	case Less:
		return "Less"
	case Greater:
		return "Greater"
	default:
		return "Concurrent"
	}
}

// New creates a clock with a single entry {actor: 1}.
func New(actor ActorID) VC {
	return VC{actor: 1}
}

// Increment returns vc with actor's counter incremented by one, creating
// the entry if absent. vc may be nil; the returned clock never is.
// Counters only increase; wrapping one back to zero would reorder history,
// so overflow is fatal (64 bits gives centuries at realistic write rates).
func Increment(actor ActorID, vc VC) VC {
	out := vc.Copy()
	if out == nil {
		out = make(VC, 1)
	}
	if out[actor] == math.MaxUint64 {
		panic(fmt.Errorf("%w: clock counter for %s would overflow", errs.ErrInvariantViolation, actor))
	}
	out[actor]++
	return out
}

// Copy returns a deep copy of vc. A nil receiver copies to nil, matching
// Go map semantics for an absent clock (e.g. a fresh key with no history).
func (vc VC) Copy() VC {
	if vc == nil {
		return nil
	}
	c := make(VC, len(vc))
	maps.Copy(c, vc)
	return c
}

// Compare determines how vc relates to other under the usual vector-clock
// partial order: Equal (identical actor sets and counters), Less (every
// counter in vc is ≤ the corresponding counter in other, with at least one
// strict), Greater (the symmetric case), or Concurrent (neither dominates).
func Compare(vc, other VC) Relation {
	vcGreater := false
	otherGreater := false

	for actor, c := range vc {
		if c > other[actor] {
			vcGreater = true
		} else if c < other[actor] {
			otherGreater = true
		}
	}
	for actor, c := range other {
		if _, ok := vc[actor]; !ok && c > 0 {
			otherGreater = true
		}
	}

	switch {
	case !vcGreater && !otherGreater:
		return Equal
	case vcGreater && !otherGreater:
		return Greater
	case !vcGreater && otherGreater:
		return Less
	default:
		return Concurrent
	}
}

// Merge combines vc and other by taking the elementwise max over the union
// of actors. Merge is commutative, associative and idempotent, which is
// what makes membership gossip converge without coordination.
func Merge(vc, other VC) VC {
	merged := vc.Copy()
	if merged == nil {
		merged = make(VC, len(other))
	}
	for actor, c := range other {
		if c > merged[actor] {
			merged[actor] = c
		}
	}
	return merged
}
