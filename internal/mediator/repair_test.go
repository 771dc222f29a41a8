package mediator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dynamokv/internal/vclock"
)

func TestRepairSiblingsWritesToEveryReplica(t *testing.T) {
	m, ep := newThreeNodeMediator()

	resolved := []vclock.VersionedValue{{Clock: vclock.Increment("a", nil), Value: []byte("repaired")}}
	m.RepairSiblings(context.Background(), "apple", resolved)

	for _, node := range []string{"a", "b", "c"} {
		got, err := ep.Get(context.Background(), 0, node, "apple")
		require.NoError(t, err)
		assert.Equal(t, []byte("repaired"), got.Value)
	}
}

func TestRepairSiblingsNoopOnEmpty(t *testing.T) {
	m, ep := newThreeNodeMediator()
	m.RepairSiblings(context.Background(), "apple", nil)
	_, err := ep.Get(context.Background(), 0, "a", "apple")
	assert.Error(t, err)
}
