package cluster

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kraklabs/registryd/internal/model"
)

// UptimeInfo is the liveness-plane uptime response used to rank candidates.
type UptimeInfo struct {
	NodeID    string  `json:"node_id"`
	UptimeSec float64 `json:"uptime_sec"`
}

type candidate struct {
	nodeID string
	uptime float64
}

// Elector independently decides, on each node, whether this node is
// currently PRIMARY. Every election interval it ranks itself against every
// reachable peer by uptime, breaking ties on node_id, and sets its own role
// accordingly.
//
// The role is held in an atomic.Value — a read-only cell every other
// component can poll without taking a lock or holding a reference back into
// the Elector itself.
type Elector struct {
	ctx     model.NodeContext
	peers   *Peers
	client  *http.Client
	timeout time.Duration
	log     *logrus.Entry

	role atomic.Value // model.Role
}

// NewElector creates an Elector. bootstrapPrimary seeds the role guess used
// before the first election round completes.
func NewElector(nodeCtx model.NodeContext, peers *Peers, timeout time.Duration, bootstrapPrimary bool, log *logrus.Entry) *Elector {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	e := &Elector{
		ctx:     nodeCtx,
		peers:   peers,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
		log:     log.WithField("component", "elector"),
	}
	initial := model.RoleBackup
	if bootstrapPrimary {
		initial = model.RolePrimary
	}
	e.role.Store(initial)
	return e
}

// Role returns this node's current, independently-derived role.
func (e *Elector) Role() model.Role {
	return e.role.Load().(model.Role)
}

// Run executes the election loop until ctx is cancelled, ranking peers
// every interval.
func (e *Elector) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.tick() // decide immediately on startup rather than waiting a full interval
	for {
		select {
		case <-ctx.Done():
			e.log.Info("elector stopping")
			return
		case <-ticker.C:
			e.tick()
		}
	}
}

func (e *Elector) tick() {
	candidates := []candidate{{nodeID: e.ctx.NodeID, uptime: e.ctx.Uptime().Seconds()}}

	for _, peer := range e.peers.All() {
		info, err := e.getUptime(peer)
		if err != nil {
			e.peers.SetReachable(peer.ID, false)
			e.log.WithError(err).WithField("peer", peer.ID).Debug("peer unreachable during election round, dropped")
			continue
		}
		e.peers.SetReachable(peer.ID, true)
		candidates = append(candidates, candidate{nodeID: info.NodeID, uptime: info.UptimeSec})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].uptime != candidates[j].uptime {
			return candidates[i].uptime > candidates[j].uptime
		}
		return candidates[i].nodeID < candidates[j].nodeID // deterministic tie-break
	})

	leader := candidates[0].nodeID
	newRole := model.RoleBackup
	if leader == e.ctx.NodeID {
		newRole = model.RolePrimary
	}

	if old := e.Role(); old != newRole {
		e.log.WithFields(logrus.Fields{"from": old, "to": newRole, "leader": leader}).Info("role transition")
	}
	e.role.Store(newRole)
}

func (e *Elector) getUptime(peer model.Peer) (UptimeInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+peer.HBAddr()+"/uptime", nil)
	if err != nil {
		return UptimeInfo{}, err
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return UptimeInfo{}, err
	}
	defer resp.Body.Close()

	var info UptimeInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return UptimeInfo{}, err
	}
	return info, nil
}
