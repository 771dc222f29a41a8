package membership

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"dynamokv/internal/vclock"
)

func TestMergeEqualIsNoop(t *testing.T) {
	s := New("a", 8)
	merged := Merge(s, s)
	assert.Same(t, s, merged)
}

func TestMergeLessAdoptsRemote(t *testing.T) {
	local := New("a", 8)
	remote := Join(local, "b", "a") // remote strictly ahead

	merged := Merge(local, remote)
	assert.ElementsMatch(t, remote.Nodes, merged.Nodes)
	assert.Equal(t, local.Self, merged.Self, "self must never come from remote")
}

func TestMergeGreaterKeepsLocal(t *testing.T) {
	local := New("a", 8)
	remote := New("a", 8) // a fresh, behind state
	ahead := Join(local, "b", "a")

	merged := Merge(ahead, remote)
	assert.Same(t, ahead, merged)
}

func TestMergeConcurrentUnionsNodesAndMergesVersion(t *testing.T) {
	base := New("a", 8)
	left := Join(base, "b", "a")  // {a,b}, version {a:2}
	right := Join(base, "c", "c") // {a,c}, version {a:1, c:1} -- concurrent with left

	rel := vclock.Compare(left.Version, right.Version)
	assert.Equal(t, vclock.Concurrent, rel)

	merged := Merge(left, right)
	assert.ElementsMatch(t, []NodeID{"a", "b", "c"}, merged.Nodes)
	assert.Equal(t, left.Self, merged.Self)
	for _, id := range merged.Partitions.IDs() {
		owner, _ := merged.Partitions.Owner(id)
		assert.Contains(t, merged.Nodes, owner)
	}
}

func TestMergeIsCommutativeOnObservableFields(t *testing.T) {
	base := New("a", 8)
	left := Join(base, "b", "a")
	right := Join(base, "c", "c")

	ab := Merge(left, right)
	ba := Merge(right, left)

	assert.ElementsMatch(t, ab.Nodes, ba.Nodes)
	assert.Equal(t, ab.Partitions.Owners(), ba.Partitions.Owners())
	assert.Equal(t, vclock.Equal, vclock.Compare(ab.Version, ba.Version))
}

func TestMergeIsIdempotent(t *testing.T) {
	base := New("a", 8)
	s := Join(base, "b", "a")
	merged := Merge(s, s)
	assert.Same(t, s, merged)
}
