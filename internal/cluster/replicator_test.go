package cluster

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kraklabs/registryd/internal/model"
)

type fakeStore struct {
	mu  sync.Mutex
	put []model.Record
	del []string
}

func (f *fakeStore) Put(name string, rec model.Record, origin model.Origin) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec.Name = name
	rec.Origin = origin
	f.put = append(f.put, rec)
	return nil
}

func (f *fakeStore) Delete(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.del = append(f.del, name)
	return true
}

func TestReplicatorAppliesLocallyFirst(t *testing.T) {
	fs := &fakeStore{}
	peers := NewPeers(nil)
	r := NewReplicator("node1", peers, fs, 100*time.Millisecond, nil)

	err := r.Replicate(OpRegister, WriteRequest{Name: "svc-D", Address: "1.2.3.4:80"})
	require.NoError(t, err)

	fs.mu.Lock()
	defer fs.mu.Unlock()
	require.Len(t, fs.put, 1)
	require.Equal(t, "svc-D", fs.put[0].Name)
}

func TestReplicatorFansOutToPeers(t *testing.T) {
	received := make(chan struct{}, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req WriteRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.IsReplication {
			received <- struct{}{}
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	host, portStr, _ := net.SplitHostPort(srv.Listener.Addr().String())
	port, _ := strconv.Atoi(portStr)

	fs := &fakeStore{}
	peers := NewPeers([]model.Peer{{ID: "node2", Host: host, BizPort: port}})
	r := NewReplicator("node1", peers, fs, time.Second, nil)

	require.NoError(t, r.Replicate(OpRegister, WriteRequest{Name: "svc-D", Address: "1.2.3.4:80"}))

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("peer never received replicated write")
	}
}

// A replication echo (is_replication already true) must apply locally and
// stop — re-fanning it out would bounce writes between primary and backup
// forever.
func TestReplicatorEchoDoesNotReFanOut(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	host, portStr, _ := net.SplitHostPort(srv.Listener.Addr().String())
	port, _ := strconv.Atoi(portStr)

	fs := &fakeStore{}
	peers := NewPeers([]model.Peer{{ID: "node2", Host: host, BizPort: port}})
	r := NewReplicator("node1", peers, fs, 200*time.Millisecond, nil)

	require.NoError(t, r.Replicate(OpRegister, WriteRequest{Name: "svc-G", Address: "a", IsReplication: true}))

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(0), hits, "an inbound replication echo must not be re-dispatched to peers")

	fs.mu.Lock()
	defer fs.mu.Unlock()
	require.Len(t, fs.put, 1)
	require.Equal(t, model.OriginReplica, fs.put[0].Origin)
}

func TestReplicatorPeerFailureDoesNotFailClientRequest(t *testing.T) {
	fs := &fakeStore{}
	// Peer that doesn't exist — dispatch will fail, but Replicate must still
	// succeed: replication is fire-and-forget.
	peers := NewPeers([]model.Peer{{ID: "ghost", Host: "127.0.0.1", BizPort: 1}})
	r := NewReplicator("node1", peers, fs, 50*time.Millisecond, nil)

	err := r.Replicate(OpRegister, WriteRequest{Name: "svc-E", Address: "a"})
	require.NoError(t, err)
}

func TestReplicatorTracksPeerStats(t *testing.T) {
	fs := &fakeStore{}
	peers := NewPeers([]model.Peer{{ID: "ghost", Host: "127.0.0.1", BizPort: 1}})
	r := NewReplicator("node1", peers, fs, 50*time.Millisecond, nil)

	require.NoError(t, r.Replicate(OpRegister, WriteRequest{Name: "svc-F", Address: "a"}))

	require.Eventually(t, func() bool {
		stats := r.PeerStats()
		for _, s := range stats {
			if s.PeerID == "ghost" && s.Failures > 0 {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}
