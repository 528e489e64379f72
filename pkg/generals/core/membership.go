package core

import (
	"errors"

	"github.com/taidopurason/distsys-miniproject-2/pkg/generals/types"
)

var (
	// ErrUnknownPeer is returned by RemoveNode for an id this peer does
	// not know about.
	ErrUnknownPeer = errors.New("generals: unknown peer id")

	// ErrDuplicatePeer is returned by AddNode for an id already present
	// in the peer set.
	ErrDuplicatePeer = errors.New("generals: duplicate peer id")

	// ErrSelfReference is returned when a membership operation is asked
	// to add or remove this peer's own id.
	ErrSelfReference = errors.New("generals: cannot add or remove self")
)

// AddNode adds a single new peer id and address to this peer's
// membership view: ready is dropped for the duration of the mutation so
// any frame arriving mid-reconfiguration observes the new peer set once
// dispatched.
func (p *Peer) AddNode(id types.PeerId, addr string) error {
	if id == p.id {
		return ErrSelfReference
	}

	p.peersMutex.Lock()
	if _, exists := p.peers[id]; exists {
		p.peersMutex.Unlock()
		return ErrDuplicatePeer
	}
	p.ready.Store(false)
	p.peers[id] = addr
	p.peersMutex.Unlock()

	if err := p.trans.AddPeer(id, addr); err != nil {
		return err
	}
	p.ready.Store(true)
	return nil
}

// RemoveNode tears down the outbound channel to id, drops it from the
// peer set, and re-elects the primary by types.MinPeerId if the removed
// id was primary.
//
// A peer removed mid-round, if it had not yet voted, is recorded as
// having voted Undecided so a round awaiting it can still close instead
// of hanging forever.
func (p *Peer) RemoveNode(id types.PeerId) error {
	if id == p.id {
		return ErrSelfReference
	}

	p.peersMutex.Lock()
	if _, exists := p.peers[id]; !exists {
		p.peersMutex.Unlock()
		return ErrUnknownPeer
	}
	delete(p.peers, id)

	primaryID := p.primaryID
	if id == primaryID {
		ids := make([]types.PeerId, 0, len(p.peers))
		for pid := range p.peers {
			ids = append(ids, pid)
		}
		primaryID = types.MinPeerId(ids)
		p.primaryID = primaryID
	}

	peers := make(map[types.PeerId]string, len(p.peers))
	for pid, paddr := range p.peers {
		peers[pid] = paddr
	}
	p.peersMutex.Unlock()

	p.trans.RemovePeer(id)

	// A round is open while the primary has roundActive set, or while a
	// secondary holds votes it has not yet reported.
	p.mutex.Lock()
	if _, voted := p.received[id]; !voted && (p.roundActive || len(p.received) > 0) {
		p.received[id] = types.Undecided
	}
	p.mutex.Unlock()

	p.checkRoundCompleteLocked(peers, primaryID)
	return nil
}
