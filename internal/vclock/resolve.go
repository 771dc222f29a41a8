package vclock

// VersionedValue pairs an opaque byte payload with the clock that produced
// it. The mediator understands the clock only well enough to select or
// merge it; the payload itself is opaque.
type VersionedValue struct {
	Clock VC
	Value []byte
}

// Resolve reconciles two candidate values read from different replicas.
// If a dominates b (or they're equal), a wins; if b dominates, b wins; if
// concurrent, both are returned as siblings and the caller (never this
// function) decides what to do with them. This is deliberately NOT a
// last-write-wins tiebreak: concurrent siblings must survive a read so
// they can be surfaced to the client or a downstream sync subsystem,
// rather than one silently discarding the other based on wall-clock time.
func Resolve(a, b VersionedValue) []VersionedValue {
	switch Compare(a.Clock, b.Clock) {
	case Greater, Equal:
		return []VersionedValue{a}
	case Less:
		return []VersionedValue{b}
	default: // Concurrent
		return []VersionedValue{a, b}
	}
}

// ResolveAll folds Resolve across a non-empty list of candidates, using the
// first as the base case. Any sibling already accumulated is merged against
// each remaining candidate; a candidate resolved away never reappears.
func ResolveAll(candidates []VersionedValue) []VersionedValue {
	if len(candidates) == 0 {
		return nil
	}
	result := []VersionedValue{candidates[0]}
	for _, next := range candidates[1:] {
		var merged []VersionedValue
		absorbed := false
		for _, cur := range result {
			r := Resolve(cur, next)
			if len(r) == 1 {
				merged = append(merged, r[0])
				absorbed = true
			} else {
				merged = append(merged, cur)
			}
		}
		if !absorbed {
			merged = append(merged, next)
		}
		result = dedupeSiblings(merged)
	}
	return result
}

// dedupeSiblings removes duplicate entries that can arise when folding
// leaves the same sibling present via more than one path.
func dedupeSiblings(vs []VersionedValue) []VersionedValue {
	out := make([]VersionedValue, 0, len(vs))
	seen := make(map[string]bool, len(vs))
	for _, v := range vs {
		key := string(v.Value)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}
