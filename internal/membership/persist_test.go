package membership

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dynamokv/internal/vclock"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := New("a", 8)
	s = Join(s, "b", "a")
	s = Join(s, "c", "a")

	require.NoError(t, Save(dir, "a", s))

	loaded, err := Load(dir, "a", "a")
	require.NoError(t, err)

	assert.Equal(t, vclock.Equal, vclock.Compare(loaded.Version, s.Version))
	assert.ElementsMatch(t, s.Nodes, loaded.Nodes)
	assert.Equal(t, s.Partitions.Owners(), loaded.Partitions.Owners())
}

func TestLoadUpgradesLegacyLayout(t *testing.T) {
	dir := t.TempDir()
	legacy := legacyRecord{
		C:          json.RawMessage(`null`),
		Partitions: map[string]string{"0": "a", "1000000": "b"},
		Version:    map[string]uint64{"a": 3},
		Nodes:      []string{"a", "b"},
		Extra:      json.RawMessage(`null`),
	}
	data, err := json.Marshal(legacy)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.bin"), data, 0o644))

	loaded, err := Load(dir, "a", "a")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, loaded.Nodes)
	assert.Equal(t, uint64(3), loaded.Version["a"])

	// Upgrade-in-place: a second load must now hit the tagged format.
	data2, err := os.ReadFile(filepath.Join(dir, "a.bin"))
	require.NoError(t, err)
	assert.Equal(t, formatVersion1, data2[0])
}

func TestSaveIsAtomic(t *testing.T) {
	dir := t.TempDir()
	s := New("a", 8)
	require.NoError(t, Save(dir, "a", s))

	_, err := os.Stat(filepath.Join(dir, "a.bin.tmp"))
	assert.True(t, os.IsNotExist(err), "temp file must not survive a successful save")
}
