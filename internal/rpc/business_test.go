package rpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/registryd/internal/cluster"
	"github.com/kraklabs/registryd/internal/model"
)

type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string]model.Record
	touched []string
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string]model.Record)}
}

func (f *fakeObjectStore) Get(name string) (model.Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.objects[name]
	return rec, ok
}

func (f *fakeObjectStore) List() []model.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Record, 0, len(f.objects))
	for _, rec := range f.objects {
		out = append(out, rec)
	}
	return out
}

func (f *fakeObjectStore) Touch(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = append(f.touched, name)
	_, ok := f.objects[name]
	return ok
}

type fakeReplicator struct {
	mu    sync.Mutex
	calls []cluster.WriteRequest
	store *fakeObjectStore
}

func (f *fakeReplicator) Replicate(op cluster.Op, req cluster.WriteRequest) error {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	switch op {
	case cluster.OpRegister, cluster.OpUpdate:
		f.store.mu.Lock()
		f.store.objects[req.Name] = model.Record{Name: req.Name, Address: req.Address}
		f.store.mu.Unlock()
	case cluster.OpDeregister:
		f.store.mu.Lock()
		delete(f.store.objects, req.Name)
		f.store.mu.Unlock()
	}
	return nil
}

type fakeRole struct{ role model.Role }

func (f fakeRole) Role() model.Role { return f.role }

func newTestRouter(store *fakeObjectStore, repl *fakeReplicator, role model.Role) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewBusinessHandler(store, repl, fakeRole{role: role}, nil).Register(r)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRegisterRejectedOnBackup(t *testing.T) {
	store := newFakeObjectStore()
	repl := &fakeReplicator{store: store}
	r := newTestRouter(store, repl, model.RoleBackup)

	rec := doJSON(t, r, http.MethodPost, "/registry", map[string]string{"name": "svc-A", "address": "1.2.3.4:80"})
	require.Equal(t, http.StatusPreconditionFailed, rec.Code)
}

func TestRegisterAcceptedOnPrimary(t *testing.T) {
	store := newFakeObjectStore()
	repl := &fakeReplicator{store: store}
	r := newTestRouter(store, repl, model.RolePrimary)

	rec := doJSON(t, r, http.MethodPost, "/registry", map[string]string{"name": "svc-A", "address": "1.2.3.4:80"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/registry/svc-A", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Address string `json:"address"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "1.2.3.4:80", got.Address)
}

func TestReplicationEchoAcceptedOnBackup(t *testing.T) {
	store := newFakeObjectStore()
	repl := &fakeReplicator{store: store}
	r := newTestRouter(store, repl, model.RoleBackup)

	rec := doJSON(t, r, http.MethodPost, "/registry", map[string]any{
		"name": "svc-A", "address": "1.2.3.4:80", "is_replication": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateFailsWhenAbsentOnPrimary(t *testing.T) {
	store := newFakeObjectStore()
	repl := &fakeReplicator{store: store}
	r := newTestRouter(store, repl, model.RolePrimary)

	rec := doJSON(t, r, http.MethodPut, "/registry/svc-missing", map[string]string{"address": "1.2.3.4:80"})
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Success bool `json:"success"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.False(t, got.Success)
}

func TestUpdateRejectedOnBackup(t *testing.T) {
	store := newFakeObjectStore()
	repl := &fakeReplicator{store: store}
	r := newTestRouter(store, repl, model.RoleBackup)

	rec := doJSON(t, r, http.MethodPut, "/registry/svc-A", map[string]string{"address": "1.2.3.4:80"})
	require.Equal(t, http.StatusPreconditionFailed, rec.Code)
}

func TestDeregisterRejectedOnBackup(t *testing.T) {
	store := newFakeObjectStore()
	repl := &fakeReplicator{store: store}
	r := newTestRouter(store, repl, model.RoleBackup)

	rec := doJSON(t, r, http.MethodDelete, "/registry/svc-A", nil)
	require.Equal(t, http.StatusPreconditionFailed, rec.Code)
}

func TestGetAndListAlwaysServedLocally(t *testing.T) {
	store := newFakeObjectStore()
	store.objects["svc-A"] = model.Record{Name: "svc-A", Address: "1.2.3.4:80", LastSeen: 42}
	repl := &fakeReplicator{store: store}
	r := newTestRouter(store, repl, model.RoleBackup)

	rec := doJSON(t, r, http.MethodGet, "/registry/svc-A", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/registry", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Objects []map[string]any `json:"objects"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Objects, 1)
	require.Equal(t, float64(42), got.Objects[0]["last_seen"])
}

// Heartbeat is always answered locally, regardless of role, and never
// reaches the Replicator.
func TestHeartbeatAnsweredOnBackupWithoutReplication(t *testing.T) {
	store := newFakeObjectStore()
	store.objects["svc-A"] = model.Record{Name: "svc-A"}
	repl := &fakeReplicator{store: store}
	r := newTestRouter(store, repl, model.RoleBackup)

	rec := doJSON(t, r, http.MethodPost, "/registry/svc-A/heartbeat", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.True(t, got.OK)

	repl.mu.Lock()
	defer repl.mu.Unlock()
	require.Empty(t, repl.calls, "heartbeat must not go through the replicator")
}

func TestHeartbeatAbsentReturnsFalse(t *testing.T) {
	store := newFakeObjectStore()
	repl := &fakeReplicator{store: store}
	r := newTestRouter(store, repl, model.RolePrimary)

	rec := doJSON(t, r, http.MethodPost, "/registry/svc-missing/heartbeat", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.False(t, got.OK)
}
