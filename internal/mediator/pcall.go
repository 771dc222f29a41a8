// Package mediator implements the quorum coordinator: per-request replica
// selection, parallel dispatch, quorum decision, and read reconciliation
// via vector clocks.
package mediator

import (
	"sync"

	"dynamokv/internal/errs"
)

// Reply pairs a replica node with either a value (on success) or a
// classified error, the generic shape every quorum operation reduces to.
type Reply[T any] struct {
	Node  string
	Value T
	Err   error
}

// pcall invokes f concurrently against every node in nodes and returns once
// every call has replied. There is no early exit on reaching quorum, so the Bad
// list is always complete for diagnostics and not_found counting. One
// generic helper serves all four quorum operations.
func pcall[T any](nodes []string, f func(node string) (T, error)) []Reply[T] {
	replies := make([]Reply[T], len(nodes))
	var wg sync.WaitGroup
	wg.Add(len(nodes))

	for i, node := range nodes {
		go func(i int, node string) {
			defer wg.Done()
			v, err := f(node)
			replies[i] = Reply[T]{Node: node, Value: v, Err: err}
		}(i, node)
	}
	wg.Wait()
	return replies
}

// partitionReplies splits replies into Good (nil error) and Bad.
func partitionReplies[T any](replies []Reply[T]) (good []Reply[T], bad []Reply[T]) {
	for _, r := range replies {
		if r.Err == nil {
			good = append(good, r)
		} else {
			bad = append(bad, r)
		}
	}
	return good, bad
}

// countKind counts Bad replies classified as kind.
func countKind[T any](bad []Reply[T], kind errs.Kind) int {
	n := 0
	for _, r := range bad {
		if errs.KindOf(r.Err) == kind {
			n++
		}
	}
	return n
}
