package membership

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"dynamokv/internal/partition"
	"dynamokv/internal/vclock"
)

// formatVersion1 is the only binary layout this loader writes; it also
// accepts an untagged legacy layout and upgrades it in place. The layout
// is explicit and versioned rather than delegated to a language-native
// object serializer, and the legacy reader stays for one release.
const formatVersion1 byte = 1

// Path returns the on-disk location for a node's membership file.
func Path(dir, nodeName string) string {
	return filepath.Join(dir, nodeName+".bin")
}

// Save persists state to <dir>/<nodeName>.bin using write-then-rename for
// atomicity: a crash mid-write leaves the previous file intact.
func Save(dir, nodeName string, s *State) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create membership dir: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteByte(formatVersion1)
	if err := encodeState(&buf, s); err != nil {
		return fmt.Errorf("encode membership state: %w", err)
	}

	path := Path(dir, nodeName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write membership snapshot: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load reads <dir>/<nodeName>.bin. It accepts the current tagged layout and
// the legacy untagged 5-field record; a legacy file is upgraded (re-saved
// in the current format) once successfully parsed. self is supplied by the
// caller since it is process-local and never persisted.
func Load(dir, nodeName string, self NodeID) (*State, error) {
	path := Path(dir, nodeName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty membership file %s", path)
	}

	if data[0] == formatVersion1 {
		s, err := decodeState(bytes.NewReader(data[1:]), self)
		if err != nil {
			return nil, fmt.Errorf("decode membership state: %w", err)
		}
		return s, nil
	}

	s, err := decodeLegacy(data, self)
	if err != nil {
		return nil, fmt.Errorf("decode legacy membership record: %w", err)
	}
	// Upgrade in place, best-effort; a failure here doesn't invalidate the
	// state we already have in hand.
	_ = Save(dir, nodeName, s)
	return s, nil
}

func encodeState(buf *bytes.Buffer, s *State) error {
	writeStringSlice(buf, s.Nodes)
	writeClock(buf, s.Version)
	writePartitions(buf, s.Partitions)
	return nil
}

func decodeState(r *bytes.Reader, self NodeID) (*State, error) {
	nodes, err := readStringSlice(r)
	if err != nil {
		return nil, err
	}
	clock, err := readClock(r)
	if err != nil {
		return nil, err
	}
	parts, err := readPartitions(r)
	if err != nil {
		return nil, err
	}
	return &State{Version: clock, Nodes: nodes, Partitions: parts, Self: self}, nil
}

func writeStringSlice(buf *bytes.Buffer, ss []string) {
	writeU32(buf, uint32(len(ss)))
	for _, s := range ss {
		writeString(buf, s)
	}
}

func readStringSlice(r *bytes.Reader) ([]string, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func writeClock(buf *bytes.Buffer, vc vclock.VC) {
	writeU32(buf, uint32(len(vc)))
	for actor, count := range vc {
		writeString(buf, actor)
		writeU64(buf, count)
	}
}

func readClock(r *bytes.Reader) (vclock.VC, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	vc := make(vclock.VC, n)
	for i := uint32(0); i < n; i++ {
		actor, err := readString(r)
		if err != nil {
			return nil, err
		}
		count, err := readU64(r)
		if err != nil {
			return nil, err
		}
		vc[actor] = count
	}
	return vc, nil
}

func writePartitions(buf *bytes.Buffer, m *partition.Map) {
	writeU32(buf, m.Q())
	owners := m.Owners()
	writeU32(buf, uint32(len(owners)))
	for id, owner := range owners {
		writeU32(buf, uint32(id))
		writeString(buf, owner)
	}
}

func readPartitions(r *bytes.Reader) (*partition.Map, error) {
	q, err := readU32(r)
	if err != nil {
		return nil, err
	}
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	owners := make(map[partition.ID]string, n)
	for i := uint32(0); i < n; i++ {
		id, err := readU32(r)
		if err != nil {
			return nil, err
		}
		owner, err := readString(r)
		if err != nil {
			return nil, err
		}
		owners[partition.ID(id)] = owner
	}
	return partition.FromOwners(q, owners), nil
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeU32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func readU32(r *bytes.Reader) (uint32, error) {
	var tmp [4]byte
	if _, err := readFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(tmp[:]), nil
}

func readU64(r *bytes.Reader) (uint64, error) {
	var tmp [8]byte
	if _, err := readFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(tmp[:]), nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := readFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func readFull(r *bytes.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// legacyRecord mirrors the pre-tag flat 5-field tuple
// {c, partitions, version, nodes, _}. `C` and the trailing `_` field are
// not meaningful to this implementation; they are preserved only so the
// legacy decoder accepts real legacy files without error.
type legacyRecord struct {
	C          json.RawMessage   `json:"c"`
	Partitions map[string]string `json:"partitions"`
	Version    map[string]uint64 `json:"version"`
	Nodes      []string          `json:"nodes"`
	Extra      json.RawMessage   `json:"_"`
}

func decodeLegacy(data []byte, self NodeID) (*State, error) {
	var rec legacyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}

	owners := make(map[partition.ID]string, len(rec.Partitions))
	for idStr, owner := range rec.Partitions {
		var id uint32
		if _, err := fmt.Sscanf(idStr, "%d", &id); err != nil {
			return nil, fmt.Errorf("legacy partition id %q: %w", idStr, err)
		}
		owners[partition.ID(id)] = owner
	}

	vc := make(vclock.VC, len(rec.Version))
	for actor, count := range rec.Version {
		vc[actor] = count
	}

	return &State{
		Version:    vc,
		Nodes:      rec.Nodes,
		Partitions: partition.FromOwners(uint32(len(owners)), owners),
		Self:       self,
	}, nil
}
