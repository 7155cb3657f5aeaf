package cluster

import (
	"sync"

	"github.com/kraklabs/registryd/internal/model"
)

// Peers tracks the cluster's statically configured peer list plus each
// peer's last-observed reachability, as set by the Elector on every
// election tick. There is no dynamic membership protocol: every node holds
// the full object table and the peer set comes entirely from config at
// boot, so there is no consistent-hash ring or join/leave RPC here.
type Peers struct {
	mu        sync.RWMutex
	peers     map[string]model.Peer
	reachable map[string]bool
}

// NewPeers seeds the tracker with the statically configured peer list.
func NewPeers(initial []model.Peer) *Peers {
	p := &Peers{
		peers:     make(map[string]model.Peer, len(initial)),
		reachable: make(map[string]bool, len(initial)),
	}
	for _, peer := range initial {
		p.peers[peer.ID] = peer
		p.reachable[peer.ID] = true
	}
	return p
}

// All returns a copy of the current peer list.
func (p *Peers) All() []model.Peer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]model.Peer, 0, len(p.peers))
	for _, peer := range p.peers {
		out = append(out, peer)
	}
	return out
}

// SetReachable records whether the given peer answered its last probe.
func (p *Peers) SetReachable(id string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, known := p.peers[id]; known {
		p.reachable[id] = ok
	}
}

// ReachableCount reports how many peers last answered successfully.
func (p *Peers) ReachableCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, ok := range p.reachable {
		if ok {
			n++
		}
	}
	return n
}
