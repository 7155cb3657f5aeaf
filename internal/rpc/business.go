// Package rpc serves the registry's dual-plane surface — business reads and
// writes on one listener, liveness probes on another — as JSON-over-HTTP
// via Gin.
package rpc

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/kraklabs/registryd/internal/cluster"
	"github.com/kraklabs/registryd/internal/model"
)

// ObjectStore is the subset of *store.Store the business plane needs.
type ObjectStore interface {
	Get(name string) (model.Record, bool)
	List() []model.Record
	Touch(name string) bool
}

// WriteReplicator is the subset of *cluster.Replicator the business plane
// needs to apply and fan out writes.
type WriteReplicator interface {
	Replicate(op cluster.Op, req cluster.WriteRequest) error
}

// RoleSource exposes the node's current, independently-derived role.
type RoleSource interface {
	Role() model.Role
}

// BusinessHandler serves Register/Deregister/Update/Get/List/Heartbeat.
// Dependencies are injected from main and routes are attached with a single
// Register(router) call.
type BusinessHandler struct {
	store      ObjectStore
	replicator WriteReplicator
	role       RoleSource
	log        *logrus.Entry
}

// NewBusinessHandler creates a BusinessHandler.
func NewBusinessHandler(store ObjectStore, replicator WriteReplicator, role RoleSource, log *logrus.Entry) *BusinessHandler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &BusinessHandler{store: store, replicator: replicator, role: role, log: log.WithField("component", "business-rpc")}
}

// registerRequest is the payload shared by Register and Update.
type registerRequest struct {
	Address       string `json:"address" binding:"required"`
	Language      string `json:"language"`
	Version       string `json:"version"`
	Region        string `json:"region"`
	IsReplication bool   `json:"is_replication"`
}

type deregisterRequest struct {
	IsReplication bool `json:"is_replication"`
}

// Register mounts all business-plane routes on r.
func (h *BusinessHandler) Register(r *gin.Engine) {
	reg := r.Group("/registry")
	reg.POST("", h.register)
	reg.PUT("/:name", h.update)
	reg.DELETE("/:name", h.deregister)
	reg.GET("/:name", h.get)
	reg.GET("", h.list)
	reg.POST("/:name/heartbeat", h.heartbeat)
}

// notLeader rejects a direct write landing on a backup: only the primary
// accepts client-originated writes, so a non-replication write arriving
// anywhere else fails with Precondition Failed.
func (h *BusinessHandler) notLeader(c *gin.Context) bool {
	if h.role.Role() == model.RolePrimary {
		return false
	}
	c.JSON(http.StatusPreconditionFailed, gin.H{"error": "not leader"})
	return true
}

// register handles POST /registry — Register, an upsert.
func (h *BusinessHandler) register(c *gin.Context) {
	var body struct {
		Name string `json:"name" binding:"required"`
		registerRequest
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !body.IsReplication && h.notLeader(c) {
		return
	}

	if err := h.replicator.Replicate(cluster.OpRegister, cluster.WriteRequest{
		Name: body.Name, Address: body.Address, Language: body.Language,
		Version: body.Version, Region: body.Region, IsReplication: body.IsReplication,
	}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// update handles PUT /registry/:name. Unlike Register's upsert semantics,
// updating a name that isn't registered on the primary is reported as a
// no-op rather than creating it.
func (h *BusinessHandler) update(c *gin.Context) {
	name := c.Param("name")
	var body registerRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !body.IsReplication {
		if h.notLeader(c) {
			return
		}
		if _, ok := h.store.Get(name); !ok {
			c.JSON(http.StatusOK, gin.H{"success": false})
			return
		}
	}

	if err := h.replicator.Replicate(cluster.OpUpdate, cluster.WriteRequest{
		Name: name, Address: body.Address, Language: body.Language,
		Version: body.Version, Region: body.Region, IsReplication: body.IsReplication,
	}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// deregister handles DELETE /registry/:name.
func (h *BusinessHandler) deregister(c *gin.Context) {
	name := c.Param("name")
	var body deregisterRequest
	_ = c.ShouldBindJSON(&body) // body is optional for a DELETE

	if !body.IsReplication && h.notLeader(c) {
		return
	}

	if err := h.replicator.Replicate(cluster.OpDeregister, cluster.WriteRequest{Name: name, IsReplication: body.IsReplication}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// get handles GET /registry/:name — always served from local Store.
func (h *BusinessHandler) get(c *gin.Context) {
	rec, ok := h.store.Get(c.Param("name"))
	if !ok {
		c.JSON(http.StatusOK, gin.H{"address": ""})
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": rec.Address})
}

// list handles GET /registry — always served from local Store, in
// unspecified order. Each entry carries last_seen so callers can judge
// freshness without a separate heartbeat round trip.
func (h *BusinessHandler) list(c *gin.Context) {
	records := h.store.List()
	out := make([]gin.H, 0, len(records))
	for _, rec := range records {
		out = append(out, gin.H{
			"name": rec.Name, "address": rec.Address, "language": rec.Language,
			"version": rec.Version, "region": rec.Region, "last_seen": rec.LastSeen,
		})
	}
	c.JSON(http.StatusOK, gin.H{"objects": out})
}

// heartbeat handles POST /registry/:name/heartbeat.
func (h *BusinessHandler) heartbeat(c *gin.Context) {
	ok := h.store.Touch(c.Param("name"))
	c.JSON(http.StatusOK, gin.H{"ok": ok})
}
