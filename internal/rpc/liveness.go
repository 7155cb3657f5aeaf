package rpc

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kraklabs/registryd/internal/cluster"
	"github.com/kraklabs/registryd/internal/model"
)

// LivenessHandler serves the liveness plane: /ping, used by clients and
// peers to probe whether a node currently believes itself primary, and
// /uptime, used by the Elector on every other node to rank candidates.
//
// Kept on its own address and its own *gin.Engine so a business plane
// saturated with writes never starves liveness probes.
type LivenessHandler struct {
	nodeCtx model.NodeContext
	role    RoleSource
}

// NewLivenessHandler creates a LivenessHandler.
func NewLivenessHandler(nodeCtx model.NodeContext, role RoleSource) *LivenessHandler {
	return &LivenessHandler{nodeCtx: nodeCtx, role: role}
}

// Register mounts the liveness-plane routes on r.
func (h *LivenessHandler) Register(r *gin.Engine) {
	r.GET("/ping", h.ping)
	r.GET("/uptime", h.uptime)
}

// ping answers 200 if this node currently believes itself PRIMARY, 503
// otherwise — used by clients deciding whether a cached primary address is
// still good.
func (h *LivenessHandler) ping(c *gin.Context) {
	if h.role.Role() != model.RolePrimary {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "not primary"})
		return
	}
	c.Status(http.StatusOK)
}

// uptime is always answered regardless of role — it is the raw input to
// every other node's election tick, so it must remain available on a
// backup, and must decode into the same cluster.UptimeInfo the Elector's
// HTTP client expects.
func (h *LivenessHandler) uptime(c *gin.Context) {
	c.JSON(http.StatusOK, cluster.UptimeInfo{
		NodeID:    h.nodeCtx.NodeID,
		UptimeSec: h.nodeCtx.Uptime().Seconds(),
	})
}
