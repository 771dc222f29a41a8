// Package errs holds the error taxonomy shared across the coordination
// core: NotFound/Transport/Storage are per-replica outcomes aggregated by
// the mediator; QuorumUnmet is the top-level outcome returned to callers.
// InvariantViolation either ends the process (log.Fatal or panic) or is
// wrapped in a replica's refusal and counted toward Bad. PeerUnavailable
// is declared here but not returned: config bootstrap recovers peer
// failures locally.
package errs

import "errors"

// Kind classifies a single replica reply for quorum bookkeeping.
type Kind int

const (
	// KindOther covers replica errors that are neither NotFound nor a
	// recognized transport/storage failure but still count toward Bad.
	KindOther Kind = iota
	KindNotFound
	KindTransport
	KindStorage
	KindTimeout
	// KindInvariant marks a replica that refused a write because applying
	// it would break a store invariant (a vector clock counter regressing).
	// Process-local invariant breaks are not classified; they crash the
	// process instead.
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindTransport:
		return "transport"
	case KindStorage:
		return "storage"
	case KindTimeout:
		return "timeout"
	case KindInvariant:
		return "invariant"
	default:
		return "other"
	}
}

// Sentinel errors. ErrNotFound is deliberately distinguishable from the
// generic error so callers (and the mediator's Bad-list classifier) can
// special-case it without string matching.
var (
	ErrNotFound           = errors.New("key not found")
	ErrTransport          = errors.New("transport error")
	ErrStorage            = errors.New("storage error")
	ErrQuorumUnmet        = errors.New("quorum not met")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrPeerUnavailable    = errors.New("peer unavailable")
	ErrUnknownPartition   = errors.New("unknown partition")
)

// ReplicaError pairs a replica identifier with the error kind it returned,
// the (node, error_kind) pair quorum diagnostics are built from.
type ReplicaError struct {
	Node string
	Kind Kind
	Err  error
}

func (e ReplicaError) Error() string {
	if e.Err != nil {
		return e.Node + ": " + e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Node + ": " + e.Kind.String()
}

// Unwrap exposes the wrapped sentinel so errors.Is/errors.As (and KindOf's
// errors.Is fallback) see through a ReplicaError to the
// underlying ErrNotFound/ErrTransport/ErrStorage it carries.
func (e ReplicaError) Unwrap() error {
	return e.Err
}

// KindOf classifies err for Bad-list bookkeeping. A nil error is never
// passed here; callers only classify errors. A *ReplicaError's own Kind
// field is authoritative (it distinguishes KindTimeout from KindTransport,
// which the sentinel chain below can't); anything else falls back to
// errors.Is against the sentinel chain.
func KindOf(err error) Kind {
	var re *ReplicaError
	if errors.As(err, &re) {
		return re.Kind
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrTransport):
		return KindTransport
	case errors.Is(err, ErrStorage):
		return KindStorage
	case errors.Is(err, ErrInvariantViolation):
		return KindInvariant
	default:
		return KindOther
	}
}
