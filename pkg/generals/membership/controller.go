// Package membership implements the operations applied externally to
// every live peer: adding and removing nodes, and toggling fault state.
package membership

import (
	"fmt"

	"github.com/taidopurason/distsys-miniproject-2/pkg/generals/core"
	"github.com/taidopurason/distsys-miniproject-2/pkg/generals/definition"
	"github.com/taidopurason/distsys-miniproject-2/pkg/generals/types"
)

// Controller tracks the cluster's live peers and applies node addition,
// node removal, and fault-state toggles to all of them as an explicit
// service object rather than global mutable state.
type Controller struct {
	log     types.Logger
	metrics *definition.Metrics

	peers map[types.PeerId]*core.Peer
}

// NewController builds a Controller with no tracked peers. metrics may
// be nil, in which case quorum and fault-count observations are simply
// not reported.
func NewController(log types.Logger, metrics *definition.Metrics) *Controller {
	return &Controller{
		log:     log,
		metrics: metrics,
		peers:   make(map[types.PeerId]*core.Peer),
	}
}

// Track registers an already-started peer with the controller so future
// AddNode/RemoveNode/SetFaulty calls reach it too.
func (c *Controller) Track(p *core.Peer) {
	c.peers[p.ID()] = p
}

// Untrack removes a peer from the controller's bookkeeping without
// touching its transport or any other peer's view. RemoveNode already
// drops the removed id itself.
func (c *Controller) Untrack(id types.PeerId) {
	delete(c.peers, id)
}

// Peers returns every currently tracked peer, for the shell's
// print_system-equivalent.
func (c *Controller) Peers() map[types.PeerId]*core.Peer {
	out := make(map[types.PeerId]*core.Peer, len(c.peers))
	for id, p := range c.peers {
		out[id] = p
	}
	return out
}

func (c *Controller) Get(id types.PeerId) (*core.Peer, bool) {
	p, ok := c.peers[id]
	return p, ok
}

// AddNode wires a new peer into every live peer's membership view and
// vice versa. newPeer must already be constructed, started, and know
// about (at least) the current primary, since core.NewPeer requires its
// primary id to be a key of its own initial peer set; AddNode fills in
// every other peer in both directions.
func (c *Controller) AddNode(newPeer *core.Peer, addr string) error {
	id := newPeer.ID()
	if _, exists := c.peers[id]; exists {
		return fmt.Errorf("membership: %w: %s", core.ErrDuplicatePeer, id)
	}

	for existingID, existing := range c.peers {
		if err := existing.AddNode(id, addr); err != nil {
			return fmt.Errorf("membership: wiring %s into %s: %w", id, existingID, err)
		}
	}

	for existingID, existing := range c.peers {
		if existingID == newPeer.PrimaryID() {
			continue // already known to newPeer at construction time
		}
		if err := newPeer.AddNode(existingID, existing.LocalAddress()); err != nil {
			return fmt.Errorf("membership: wiring %s into %s: %w", existingID, id, err)
		}
	}

	c.peers[id] = newPeer
	c.log.Infof("added peer %s", id)
	return nil
}

// RemoveNode removes a peer from every other live peer's membership view
// and stops the removed peer itself.
func (c *Controller) RemoveNode(id types.PeerId) error {
	target, ok := c.peers[id]
	if !ok {
		return fmt.Errorf("membership: %w: %s", core.ErrUnknownPeer, id)
	}

	for otherID, other := range c.peers {
		if otherID == id {
			continue
		}
		if err := other.RemoveNode(id); err != nil {
			c.log.Warnf("removing %s from %s: %v", id, otherID, err)
		}
	}

	delete(c.peers, id)
	if err := target.Stop(); err != nil {
		c.log.Warnf("stopping removed peer %s: %v", id, err)
	}
	c.log.Infof("removed peer %s", id)
	return nil
}

// SetFaulty flips a single peer's fault flag.
func (c *Controller) SetFaulty(id types.PeerId, faulty bool) error {
	p, ok := c.peers[id]
	if !ok {
		return fmt.Errorf("membership: %w: %s", core.ErrUnknownPeer, id)
	}
	p.State().SetFaulty(faulty)
	if c.metrics != nil {
		c.metrics.FaultyPeers.Set(float64(c.FaultyCount()))
	}
	return nil
}

// FaultyCount returns how many tracked peers currently report faulty.
func (c *Controller) FaultyCount() int {
	count := 0
	for _, p := range c.peers {
		if p.State().IsFaulty() {
			count++
		}
	}
	return count
}

// QuorumViolated reports whether the Byzantine bound n >= 3f+1 currently
// does not hold across the tracked peer set. Every violation observed is
// also counted toward the quorum_violations_total metric.
func (c *Controller) QuorumViolated() bool {
	f := c.FaultyCount()
	violated := 3*f+1 > len(c.peers)
	if violated && c.metrics != nil {
		c.metrics.QuorumViolations.Inc()
	}
	return violated
}

// PrimaryID returns the primary id as seen by an arbitrary tracked peer;
// every live peer's view should agree outside of a reconfiguration race.
func (c *Controller) PrimaryID() (types.PeerId, bool) {
	for _, p := range c.peers {
		return p.PrimaryID(), true
	}
	return "", false
}
