// Package cluster implements the primary/backup replication protocol and the
// uptime-ranked leader election loop.
package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kraklabs/registryd/internal/model"
)

// Op identifies which business-plane write is being replicated.
type Op string

const (
	OpRegister   Op = "register"
	OpUpdate     Op = "update"
	OpDeregister Op = "deregister"
)

// WriteRequest is the logical shape shared by Register/Update/Deregister.
type WriteRequest struct {
	Name          string `json:"name"`
	Address       string `json:"address"`
	Language      string `json:"language"`
	Version       string `json:"version"`
	Region        string `json:"region"`
	IsReplication bool   `json:"is_replication"`
}

// LocalApplier is the subset of *store.Store the Replicator needs. Defined
// here (consumer side) so cluster does not import store's concrete type
// into its public surface beyond what it uses.
type LocalApplier interface {
	Put(name string, rec model.Record, origin model.Origin) error
	Delete(name string) bool
}

// PeerStat is the observable per-peer success/failure count. Replication
// failures are logged AND exposed here so an operator can see them, even
// though the client that triggered the original write never does.
type PeerStat struct {
	PeerID    string
	Successes uint64
	Failures  uint64
}

// Replicator turns a write accepted on the primary into a local Store
// mutation plus a best-effort, fire-and-forget fan-out to every peer: a peer
// failure is logged and counted but never fails the original request.
type Replicator struct {
	selfID  string
	store   LocalApplier
	peers   *Peers
	client  *http.Client
	timeout time.Duration
	log     *logrus.Entry

	statsMu sync.Mutex
	stats   map[string]*PeerStat
}

// NewReplicator creates a Replicator. timeout bounds each outbound peer RPC.
func NewReplicator(selfID string, peers *Peers, store LocalApplier, timeout time.Duration, log *logrus.Entry) *Replicator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Replicator{
		selfID:  selfID,
		store:   store,
		peers:   peers,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
		log:     log.WithField("component", "replicator"),
		stats:   make(map[string]*PeerStat),
	}
}

// Replicate applies op locally then, only if req did not itself arrive via
// replication, fans it out to every peer with is_replication=true. A node
// applying an inbound replication echo never re-fans-out — otherwise writes
// would bounce between primary and backups forever. Peer dispatch is
// fire-and-forget: individual peer failures are recorded but never fail the
// original client request.
func (r *Replicator) Replicate(op Op, req WriteRequest) error {
	if err := r.applyLocal(op, req); err != nil {
		return err
	}

	if req.IsReplication {
		return nil
	}

	req.IsReplication = true
	for _, peer := range r.peers.All() {
		go r.dispatch(peer, op, req)
	}
	return nil
}

// applyLocal tags the record's Origin by whether req arrived as a
// replication echo (OriginReplica, immune to this node's own TTL sweep) or
// as a directly-accepted write (OriginLocal).
func (r *Replicator) applyLocal(op Op, req WriteRequest) error {
	origin := model.OriginLocal
	if req.IsReplication {
		origin = model.OriginReplica
	}

	switch op {
	case OpRegister, OpUpdate:
		return r.store.Put(req.Name, model.Record{
			Address:  req.Address,
			Language: req.Language,
			Version:  req.Version,
			Region:   req.Region,
		}, origin)
	case OpDeregister:
		r.store.Delete(req.Name)
		return nil
	default:
		return fmt.Errorf("unknown replication op %q", op)
	}
}

func (r *Replicator) dispatch(peer model.Peer, op Op, req WriteRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	err := r.send(ctx, peer, op, req)
	r.record(peer.ID, err)
	if err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{
			"peer": peer.ID, "op": op, "name": req.Name,
		}).Warn("replication to peer failed")
	}
}

func (r *Replicator) send(ctx context.Context, peer model.Peer, op Op, req WriteRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	method, url := replicationTarget(peer, op, req.Name)
	httpReq, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("peer %s returned HTTP %d", peer.ID, resp.StatusCode)
	}
	return nil
}

// replicationTarget maps a replication op onto the same business-plane
// route a client would use, so the receiving node's normal handler code
// (role-gated, is_replication-aware) processes it — there is no separate
// internal wire format.
func replicationTarget(peer model.Peer, op Op, name string) (method, url string) {
	base := fmt.Sprintf("http://%s/registry", peer.BizAddr())
	switch op {
	case OpRegister:
		return http.MethodPost, base
	case OpUpdate:
		return http.MethodPut, base + "/" + name
	case OpDeregister:
		return http.MethodDelete, base + "/" + name
	default:
		return http.MethodPost, base
	}
}

func (r *Replicator) record(peerID string, err error) {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()

	s, ok := r.stats[peerID]
	if !ok {
		s = &PeerStat{PeerID: peerID}
		r.stats[peerID] = s
	}
	if err != nil {
		s.Failures++
	} else {
		s.Successes++
	}
}

// PeerStats returns a snapshot of every peer's observed replication
// success/failure counts.
func (r *Replicator) PeerStats() []PeerStat {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()

	out := make([]PeerStat, 0, len(r.stats))
	for _, s := range r.stats {
		out = append(out, *s)
	}
	return out
}
