package local

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dynamokv/internal/errs"
	"dynamokv/internal/vclock"
)

func TestPutGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	e, err := New(dir)
	require.NoError(t, err)
	defer e.Close()

	clock := vclock.Increment("a", nil)
	require.NoError(t, e.Put(context.Background(), 0, "a", "k", clock, []byte("v1")))

	got, err := e.Get(context.Background(), 0, "a", "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got.Value)
	assert.Equal(t, vclock.Equal, vclock.Compare(clock, got.Clock))
}

func TestGetNotFound(t *testing.T) {
	dir := t.TempDir()
	e, err := New(dir)
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Get(context.Background(), 0, "a", "missing")
	require.Error(t, err)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestDeleteIsTombstoneAndHidesFromGet(t *testing.T) {
	dir := t.TempDir()
	e, err := New(dir)
	require.NoError(t, err)
	defer e.Close()

	clock := vclock.Increment("a", nil)
	require.NoError(t, e.Put(context.Background(), 0, "a", "k", clock, []byte("v1")))
	require.NoError(t, e.Delete(context.Background(), 0, "a", "k"))

	_, err = e.Get(context.Background(), 0, "a", "k")
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))

	has, err := e.HasKey(context.Background(), 0, "a", "k")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestEngineRecoversFromWALOnRestart(t *testing.T) {
	dir := t.TempDir()
	e1, err := New(dir)
	require.NoError(t, err)

	clock := vclock.Increment("a", nil)
	require.NoError(t, e1.Put(context.Background(), 0, "a", "k", clock, []byte("v1")))
	require.NoError(t, e1.Close())

	e2, err := New(dir)
	require.NoError(t, err)
	defer e2.Close()

	got, err := e2.Get(context.Background(), 0, "a", "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got.Value)
}

func TestPutRejectsRegressedClock(t *testing.T) {
	dir := t.TempDir()
	e, err := New(dir)
	require.NoError(t, err)
	defer e.Close()

	newer := vclock.Increment("a", vclock.Increment("a", nil))
	require.NoError(t, e.Put(context.Background(), 0, "a", "k", newer, []byte("v2")))

	stale := vclock.Increment("a", nil)
	err = e.Put(context.Background(), 0, "a", "k", stale, []byte("v1"))
	require.Error(t, err)
	assert.Equal(t, errs.KindInvariant, errs.KindOf(err))

	// The durable record must be untouched by the refused write.
	got, err := e.Get(context.Background(), 0, "a", "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got.Value)
}

func TestPutAcceptsConcurrentClock(t *testing.T) {
	dir := t.TempDir()
	e, err := New(dir)
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Put(context.Background(), 0, "a", "k", vclock.New("a"), []byte("x")))
	require.NoError(t, e.Put(context.Background(), 0, "a", "k", vclock.New("b"), []byte("y")))
}

func TestHasKeyFalseWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	e, err := New(dir)
	require.NoError(t, err)
	defer e.Close()

	has, err := e.HasKey(context.Background(), 0, "a", "nope")
	require.NoError(t, err)
	assert.False(t, has)
}
