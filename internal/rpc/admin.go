package rpc

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kraklabs/registryd/internal/cluster"
	"github.com/kraklabs/registryd/internal/model"
)

// PeerStatSource exposes the Replicator's observed per-peer stats for
// debugging — replication is fire-and-forget from the client's point of
// view, so this is the only place a dispatch failure becomes visible.
type PeerStatSource interface {
	PeerStats() []cluster.PeerStat
}

// PeerSource exposes cluster membership for debugging.
type PeerSource interface {
	All() []model.Peer
	ReachableCount() int
}

// AdminHandler serves read-only operator endpoints: health, current role,
// and replication peer stats. This is operator tooling, not part of the
// client-facing registry API — registryctl's debug-peers command reads it
// over HTTP instead of requiring direct access to a remote node's database.
type AdminHandler struct {
	nodeCtx model.NodeContext
	role    RoleSource
	peers   PeerSource
	stats   PeerStatSource
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(nodeCtx model.NodeContext, role RoleSource, peers PeerSource, stats PeerStatSource) *AdminHandler {
	return &AdminHandler{nodeCtx: nodeCtx, role: role, peers: peers, stats: stats}
}

// Register mounts the admin routes on r.
func (h *AdminHandler) Register(r *gin.Engine) {
	r.GET("/health", h.health)
	r.GET("/debug/peers", h.debugPeers)
}

func (h *AdminHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"node_id":         h.nodeCtx.NodeID,
		"role":            h.role.Role(),
		"uptime_sec":      h.nodeCtx.Uptime().Seconds(),
		"reachable_peers": h.peers.ReachableCount(),
	})
}

func (h *AdminHandler) debugPeers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"peers": h.peers.All(),
		"stats": h.stats.PeerStats(),
	})
}
