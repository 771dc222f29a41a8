package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dynamokv/internal/config"
	"dynamokv/internal/errs"
	"dynamokv/internal/membership"
	"dynamokv/internal/partition"
	"dynamokv/internal/storage/local"
	"dynamokv/internal/vclock"
)

type fakeMediator struct {
	putN     int
	putErr   error
	getVals  []vclock.VersionedValue
	getErr   error
	hasVal   bool
	hasCount int
	hasErr   error
	delN     int
	delErr   error
}

func (f *fakeMediator) Put(ctx context.Context, key string, ctxClock vclock.VC, value []byte) (int, error) {
	return f.putN, f.putErr
}
func (f *fakeMediator) Get(ctx context.Context, key string) ([]vclock.VersionedValue, error) {
	return f.getVals, f.getErr
}
func (f *fakeMediator) HasKey(ctx context.Context, key string) (bool, int, error) {
	return f.hasVal, f.hasCount, f.hasErr
}
func (f *fakeMediator) Delete(ctx context.Context, key string) (int, error) {
	return f.delN, f.delErr
}

type fakeActor struct {
	state *membership.State
}

func (f *fakeActor) Snapshot() *membership.State { return f.state }
func (f *fakeActor) Join(ctx context.Context, node membership.NodeID) (*membership.State, error) {
	f.state = membership.Join(f.state, node, f.state.Self)
	return f.state, nil
}
func (f *fakeActor) Remove(ctx context.Context, node membership.NodeID) (*membership.State, error) {
	f.state = membership.Remove(f.state, node, f.state.Self)
	return f.state, nil
}
func (f *fakeActor) RemapTo(ctx context.Context, newMap *partition.Map) (*membership.State, error) {
	f.state = &membership.State{Version: f.state.Version, Nodes: f.state.Nodes, Partitions: newMap, Self: f.state.Self}
	return f.state, nil
}
func (f *fakeActor) MergeWith(ctx context.Context, remote *membership.State) (*membership.State, error) {
	f.state = membership.Merge(f.state, remote)
	return f.state, nil
}

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newTestHandler(t *testing.T, m *fakeMediator, a *fakeActor) *Handler {
	engine, err := local.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return NewHandler(m, a, nil, config.Defaults(), "a", engine, quietLog())
}

func newTestRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.Register(r)
	return r
}

func TestPutHandlerSuccess(t *testing.T) {
	m := &fakeMediator{putN: 3}
	a := &fakeActor{state: membership.New("a", 8)}
	r := newTestRouter(newTestHandler(t, m, a))

	body, _ := json.Marshal(map[string]any{"value": "v1"})
	req := httptest.NewRequest(http.MethodPut, "/kv/apple", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(3), resp["replicas_written"])
}

func TestPutHandlerQuorumUnmet(t *testing.T) {
	m := &fakeMediator{putErr: errs.ErrQuorumUnmet}
	a := &fakeActor{state: membership.New("a", 8)}
	r := newTestRouter(newTestHandler(t, m, a))

	body, _ := json.Marshal(map[string]any{"value": "v1"})
	req := httptest.NewRequest(http.MethodPut, "/kv/apple", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetHandlerNotFound(t *testing.T) {
	m := &fakeMediator{getVals: nil}
	a := &fakeActor{state: membership.New("a", 8)}
	r := newTestRouter(newTestHandler(t, m, a))

	req := httptest.NewRequest(http.MethodGet, "/kv/apple", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetHandlerSiblings(t *testing.T) {
	m := &fakeMediator{getVals: []vclock.VersionedValue{
		{Clock: vclock.VC{"a": 1}, Value: []byte("x")},
		{Clock: vclock.VC{"b": 1}, Value: []byte("y")},
	}}
	a := &fakeActor{state: membership.New("a", 8)}
	r := newTestRouter(newTestHandler(t, m, a))

	req := httptest.NewRequest(http.MethodGet, "/kv/apple", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestJoinHandler(t *testing.T) {
	m := &fakeMediator{}
	a := &fakeActor{state: membership.New("a", 8)}
	r := newTestRouter(newTestHandler(t, m, a))

	body, _ := json.Marshal(map[string]string{"node": "b"})
	req := httptest.NewRequest(http.MethodPost, "/cluster/join", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.ElementsMatch(t, []membership.NodeID{"a", "b"}, a.state.Nodes)
}

func TestGossipStateRoundTrip(t *testing.T) {
	m := &fakeMediator{}
	a := &fakeActor{state: membership.Join(membership.New("a", 8), "b", "a")}
	r := newTestRouter(newTestHandler(t, m, a))

	req := httptest.NewRequest(http.MethodGet, "/internal/gossip/state", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req2 := httptest.NewRequest(http.MethodPost, "/internal/gossip/state", bytes.NewReader(w.Body.Bytes()))
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req2)
	assert.Equal(t, http.StatusOK, w2.Code)
}

func TestGetConfigHandler(t *testing.T) {
	m := &fakeMediator{}
	a := &fakeActor{state: membership.New("a", 8)}
	r := newTestRouter(newTestHandler(t, m, a))

	req := httptest.NewRequest(http.MethodGet, "/internal/config", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var cfg config.Config
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cfg))
	assert.Equal(t, config.Defaults().N, cfg.N)
}
