package rpc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/registryd/internal/model"
)

func newLivenessRouter(role model.Role, nodeID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	nodeCtx := model.NodeContext{NodeID: nodeID, StartTS: time.Now().Add(-10 * time.Second)}
	NewLivenessHandler(nodeCtx, fakeRole{role: role}).Register(r)
	return r
}

func TestPingPrimaryReturns200(t *testing.T) {
	r := newLivenessRouter(model.RolePrimary, "node1")
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPingBackupReturns503(t *testing.T) {
	r := newLivenessRouter(model.RoleBackup, "node1")
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// /uptime must answer regardless of role — every other node's Elector
// depends on reading it from a backup.
func TestUptimeAnsweredRegardlessOfRole(t *testing.T) {
	r := newLivenessRouter(model.RoleBackup, "node1")
	req := httptest.NewRequest(http.MethodGet, "/uptime", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var info struct {
		NodeID    string  `json:"node_id"`
		UptimeSec float64 `json:"uptime_sec"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	require.Equal(t, "node1", info.NodeID)
	require.Greater(t, info.UptimeSec, 0.0)
}
