// Package api wires the client-facing and peer-facing HTTP surface onto
// one gin.Engine per node: a /kv group for mediator operations, a
// /cluster group for membership administration, and an /internal group
// for gossip exchange, config bootstrap, and storage replication
// callbacks.
package api

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"dynamokv/internal/config"
	"dynamokv/internal/errs"
	"dynamokv/internal/gossip"
	"dynamokv/internal/membership"
	"dynamokv/internal/partition"
	"dynamokv/internal/storage"
	"dynamokv/internal/transport"
	"dynamokv/internal/vclock"
)

// membershipActor is the subset of *membership.Actor the HTTP layer
// needs, kept as a narrow interface for testability, the same shape the
// mediator and gossiper use.
type membershipActor interface {
	Snapshot() *membership.State
	Join(ctx context.Context, node membership.NodeID) (*membership.State, error)
	Remove(ctx context.Context, node membership.NodeID) (*membership.State, error)
	RemapTo(ctx context.Context, newMap *partition.Map) (*membership.State, error)
	MergeWith(ctx context.Context, remote *membership.State) (*membership.State, error)
}

// mediatorOps is the full surface Handler dispatches client KV calls to.
type mediatorOps interface {
	Put(ctx context.Context, key string, ctxClock vclock.VC, value []byte) (int, error)
	Get(ctx context.Context, key string) ([]vclock.VersionedValue, error)
	HasKey(ctx context.Context, key string) (bool, int, error)
	Delete(ctx context.Context, key string) (int, error)
}

// Handler holds every dependency the HTTP layer dispatches into.
type Handler struct {
	mediator  mediatorOps
	actor     membershipActor
	gossiper  *gossip.Gossiper
	cfg       config.Config
	self      membership.NodeID
	localEP   storage.Endpoint
	log       *logrus.Entry
}

// NewHandler constructs a Handler.
func NewHandler(m mediatorOps, actor membershipActor, g *gossip.Gossiper, cfg config.Config, self membership.NodeID, localEP storage.Endpoint, log *logrus.Entry) *Handler {
	return &Handler{mediator: m, actor: actor, gossiper: g, cfg: cfg, self: self, localEP: localEP, log: log}
}

// Register mounts every route group on r.
func (h *Handler) Register(r *gin.Engine) {
	kv := r.Group("/kv")
	kv.GET("/:key", h.Get)
	kv.PUT("/:key", h.Put)
	kv.DELETE("/:key", h.Delete)
	kv.HEAD("/:key", h.HasKey)

	cluster := r.Group("/cluster")
	cluster.POST("/join", h.Join)
	cluster.POST("/remove", h.Remove)
	cluster.GET("/nodes", h.ListNodes)
	cluster.GET("/status", h.Status)
	cluster.POST("/remap", h.Remap)
	cluster.POST("/gossip/stop", h.GossipStop)
	cluster.POST("/gossip/start", h.GossipStart)

	internal := r.Group("/internal")
	internal.GET("/gossip/state", h.GossipGetState)
	internal.POST("/gossip/state", h.GossipPushState)
	internal.GET("/config", h.GetConfig)
	transport.RegisterStorage(internal.Group("/storage"), h.localEP)

	r.GET("/health", h.Health)
}

// ─── Public KV handlers ─────────────────────────────────────────────────

// Put handles PUT /kv/:key. Body: {"context": {actor: counter, ...},
// "value": "<string>"}. The value string is stored as its raw bytes; it is
// not base64-decoded.
func (h *Handler) Put(c *gin.Context) {
	key := c.Param("key")

	var body struct {
		Context vclock.VC `json:"context"`
		Value   string    `json:"value" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	n, err := h.mediator.Put(c.Request.Context(), key, body.Context, []byte(body.Value))
	if err != nil {
		writeQuorumErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "replicas_written": n})
}

// Get handles GET /kv/:key.
func (h *Handler) Get(c *gin.Context) {
	key := c.Param("key")

	vals, err := h.mediator.Get(c.Request.Context(), key)
	if err != nil {
		writeQuorumErr(c, err)
		return
	}
	if len(vals) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if len(vals) > 1 {
		c.JSON(http.StatusConflict, gin.H{"siblings": toWireVersions(vals)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": string(vals[0].Value), "clock": vals[0].Clock})
}

// HasKey handles HEAD /kv/:key.
func (h *Handler) HasKey(c *gin.Context) {
	key := c.Param("key")
	present, _, err := h.mediator.HasKey(c.Request.Context(), key)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	if !present {
		c.Status(http.StatusNotFound)
		return
	}
	c.Status(http.StatusOK)
}

// Delete handles DELETE /kv/:key.
func (h *Handler) Delete(c *gin.Context) {
	key := c.Param("key")
	n, err := h.mediator.Delete(c.Request.Context(), key)
	if err != nil {
		writeQuorumErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "replicas_written": n})
}

// ─── Cluster management handlers ───────────────────────────────────────

// Join handles POST /cluster/join. Body: {"node": "<nodeID>"}.
func (h *Handler) Join(c *gin.Context) {
	var body struct {
		Node string `json:"node" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	state, err := h.actor.Join(c.Request.Context(), membership.NodeID(body.Node))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"nodes": state.Nodes})
}

// Remove handles POST /cluster/remove. Body: {"node": "<nodeID>"}.
func (h *Handler) Remove(c *gin.Context) {
	var body struct {
		Node string `json:"node" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	state, err := h.actor.Remove(c.Request.Context(), membership.NodeID(body.Node))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"nodes": state.Nodes})
}

// Remap handles POST /cluster/remap, the administrative hard-remap.
// Body: {"q": 8, "owners": {"0": "a", "536870912": "b", ...}}. The supplied
// map is installed as-is, bypassing the rebalance algorithm entirely.
func (h *Handler) Remap(c *gin.Context) {
	var body struct {
		Q      uint32            `json:"q" binding:"required"`
		Owners map[string]string `json:"owners" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	owners := make(map[partition.ID]string, len(body.Owners))
	for idStr, owner := range body.Owners {
		var id uint32
		if _, err := fmt.Sscanf(idStr, "%d", &id); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid partition id " + idStr})
			return
		}
		owners[partition.ID(id)] = owner
	}

	newMap := partition.FromOwners(body.Q, owners)
	state, err := h.actor.RemapTo(c.Request.Context(), newMap)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"owners": state.Partitions.Owners()})
}

// ListNodes handles GET /cluster/nodes.
func (h *Handler) ListNodes(c *gin.Context) {
	state := h.actor.Snapshot()
	c.JSON(http.StatusOK, gin.H{"nodes": state.Nodes, "self": h.self})
}

// Status handles GET /cluster/status, a superset of ListNodes useful for
// operator tooling (dynctl cluster status).
func (h *Handler) Status(c *gin.Context) {
	state := h.actor.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"self":    h.self,
		"nodes":   state.Nodes,
		"version": state.Version,
		"q":       state.Partitions.Q(),
		"owners":  state.Partitions.Owners(),
	})
}

// GossipStop handles POST /cluster/gossip/stop, an administrative pause
// of the anti-entropy loop until a matching start, useful when operating
// a node for maintenance.
func (h *Handler) GossipStop(c *gin.Context) {
	if h.gossiper != nil {
		h.gossiper.Stop()
	}
	c.Status(http.StatusOK)
}

// GossipStart handles POST /cluster/gossip/start, resuming a paused loop.
func (h *Handler) GossipStart(c *gin.Context) {
	if h.gossiper != nil {
		h.gossiper.Start()
	}
	c.Status(http.StatusOK)
}

// ─── Internal: gossip + config bootstrap ───────────────────────────────

// GossipGetState answers GET /internal/gossip/state, the pull half of a
// peer's push-pull round.
func (h *Handler) GossipGetState(c *gin.Context) {
	state := h.actor.Snapshot()
	c.JSON(http.StatusOK, gossip.EncodeState(state))
}

// GossipPushState answers POST /internal/gossip/state, the push half: the
// initiator already merged, so this side only needs to merge the pushed
// state into its own. Merge's idempotence makes that safe even though
// the initiator computed the "same" merge independently.
func (h *Handler) GossipPushState(c *gin.Context) {
	var wire gossip.WireState
	if err := json.NewDecoder(c.Request.Body).Decode(&wire); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	remote := gossip.DecodeState(wire, h.self)
	if _, err := h.actor.MergeWith(c.Request.Context(), remote); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

// GetConfig answers GET /internal/config, the call a joining node's
// config.Bootstrapper makes against one visible peer.
func (h *Handler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.cfg)
}

// Health is a liveness/readiness probe endpoint, useful behind a load
// balancer.
func (h *Handler) Health(c *gin.Context) {
	state := h.actor.Snapshot()
	c.JSON(http.StatusOK, gin.H{"node": h.self, "status": "ok", "nodes": len(state.Nodes)})
}

func writeQuorumErr(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if goerrors.Is(err, errs.ErrQuorumUnmet) {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func toWireVersions(vs []vclock.VersionedValue) []gin.H {
	out := make([]gin.H, len(vs))
	for i, v := range vs {
		out[i] = gin.H{"value": string(v.Value), "clock": v.Clock}
	}
	return out
}
