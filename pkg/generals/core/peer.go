package core

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/taidopurason/distsys-miniproject-2/pkg/generals/definition"
	"github.com/taidopurason/distsys-miniproject-2/pkg/generals/transport"
	"github.com/taidopurason/distsys-miniproject-2/pkg/generals/types"
)

// Role is recomputed on every message: a peer is primary iff its id
// equals the current primary id.
type Role string

const (
	RolePrimary   Role = "primary"
	RoleSecondary Role = "secondary"
)

// Peer is the per-peer agreement engine: role, peer set, faulty flag,
// and in-round tallies, implementing the Oral Messages state machine. A
// single mutex-guarded struct with a registered transport handler (the
// transport owns the accept loop) and an Invoker for fire-and-forget
// relay sends.
type Peer struct {
	id    types.PeerId
	log   types.Logger
	trans transport.Transport

	invoker     Invoker
	metrics     *definition.Metrics
	decisionLog *DecisionLog

	state types.FaultState

	// peersMutex guards peers and primaryID. Readers inside a single
	// handler invocation must tolerate concurrent mutation by the
	// membership controller; peers are treated as copy-on-write for the
	// duration of one handler call, which snapshot() below provides.
	peersMutex sync.RWMutex
	peers      map[types.PeerId]string
	primaryID  types.PeerId

	// mutex guards received and roundActive.
	mutex       sync.Mutex
	received    map[types.PeerId]types.Order
	roundActive bool
	roundDone   chan struct{}

	// roundMutex serializes overlapping client_order calls at the
	// primary end to end instead of rejecting the later one.
	roundMutex sync.Mutex

	ready atomic.Bool
}

// NewPeer constructs an engine instance from its configuration and
// transport. The transport is expected to already be listening; NewPeer
// registers every known peer (including, harmlessly, itself) with the
// transport and registers the frame handler, then marks the peer ready.
// It does not dial the peers itself: the transport dials each one on the
// first Send to it.
func NewPeer(config *types.PeerConfiguration, trans transport.Transport, invoker Invoker, metrics *definition.Metrics) (*Peer, error) {
	if _, ok := config.Peers[config.ID]; !ok {
		return nil, fmt.Errorf("generals: peer id %s must be a key of its own peer set", config.ID)
	}
	if _, ok := config.Peers[config.PrimaryID]; !ok {
		return nil, fmt.Errorf("generals: primary id %s must be a key of the peer set", config.PrimaryID)
	}

	log := config.Logger
	if log == nil {
		log = definition.NewLogger()
	}
	log = log.WithField("peer_id", config.ID)

	peers := make(map[types.PeerId]string, len(config.Peers))
	for id, addr := range config.Peers {
		peers[id] = addr
	}

	p := &Peer{
		id:          config.ID,
		log:         log,
		trans:       trans,
		invoker:     invoker,
		metrics:     metrics,
		decisionLog: NewDecisionLog(),
		peers:       peers,
		primaryID:   config.PrimaryID,
		received:    make(map[types.PeerId]types.Order),
	}

	for id, addr := range peers {
		if err := trans.AddPeer(id, addr); err != nil {
			return nil, fmt.Errorf("generals: dialing peer %s: %w", id, err)
		}
	}

	trans.Recv(p.handleFrame)
	trans.SetReadyFn(p.ready.Load)
	p.ready.Store(true)
	return p, nil
}

func (p *Peer) ID() types.PeerId { return p.id }

// LocalAddress returns this peer's advertised transport address.
func (p *Peer) LocalAddress() string { return p.trans.LocalAddress() }

// State exposes the fault flag for the (external) fault injector to flip.
func (p *Peer) State() *types.FaultState { return &p.state }

// DecisionLog exposes the in-memory round history for the shell's
// g-history convenience and for tests.
func (p *Peer) DecisionLog() *DecisionLog { return p.decisionLog }

// PrimaryID returns the peer's current view of who is primary.
func (p *Peer) PrimaryID() types.PeerId {
	p.peersMutex.RLock()
	defer p.peersMutex.RUnlock()
	return p.primaryID
}

// Role recomputes this peer's role against its current primary view.
func (p *Peer) Role() Role {
	if p.id == p.PrimaryID() {
		return RolePrimary
	}
	return RoleSecondary
}

// PeerCount returns the size of the current peer set, including self.
func (p *Peer) PeerCount() int {
	p.peersMutex.RLock()
	defer p.peersMutex.RUnlock()
	return len(p.peers)
}

// snapshot returns a copy-on-write view of (peers, primaryID) for the
// duration of one handler invocation.
func (p *Peer) snapshot() (map[types.PeerId]string, types.PeerId) {
	p.peersMutex.RLock()
	defer p.peersMutex.RUnlock()
	peers := make(map[types.PeerId]string, len(p.peers))
	for id, addr := range p.peers {
		peers[id] = addr
	}
	return peers, p.primaryID
}

func (p *Peer) otherPeers(peers map[types.PeerId]string) []types.PeerId {
	others := make([]types.PeerId, 0, len(peers))
	for id := range peers {
		if id != p.id {
			others = append(others, id)
		}
	}
	return others
}

// faultyFilter forwards the value unchanged for a non-faulty peer; a
// faulty one randomizes it independently per call, so two recipients of
// the same relay may see different values.
func (p *Peer) faultyFilter(v types.Order) types.Order {
	if !p.state.IsFaulty() {
		return v
	}
	if rand.Float64() < 0.5 {
		return types.Attack
	}
	return types.Retreat
}

// ClientOrder drives one full round of agreement on order: relay to
// every other peer, wait for their reported majorities, and return the
// resulting vote table. It is only meaningful when this peer is the
// primary; callers get ErrNotPrimary otherwise.
func (p *Peer) ClientOrder(ctx context.Context, order types.Order) (types.Votes, error) {
	p.roundMutex.Lock()
	defer p.roundMutex.Unlock()

	peers, primaryID := p.snapshot()
	if p.id != primaryID {
		return nil, types.ErrNotPrimary
	}

	roundID := uuid.New()
	log := p.log.WithField("round_id", roundID)
	log.Infof("client ordered %s", order)

	others := p.otherPeers(peers)

	p.mutex.Lock()
	p.received = make(map[types.PeerId]types.Order)
	p.roundActive = len(others) > 0
	done := make(chan struct{})
	p.roundDone = done
	p.mutex.Unlock()

	for _, target := range others {
		target := target
		p.invoker.Spawn(func() {
			frame := types.Frame{Sender: p.id, Action: types.ActionOrder, Value: types.EncodeOrder(p.faultyFilter(order))}
			if err := p.trans.Send(ctx, target, frame); err != nil {
				log.Errorf("failed relaying order to %s: %v", target, err)
			}
		})
	}

	if len(others) == 0 {
		// Single-node cluster: no other peer to hear from, close at once.
		close(done)
	}

	select {
	case <-done:
	case <-ctx.Done():
		log.Warnf("client round %s timed out waiting for votes", roundID)
	}

	p.mutex.Lock()
	votes := make(types.Votes, len(others)+1)
	for id, v := range p.received {
		votes[id] = v
	}
	for _, id := range others {
		if _, voted := votes[id]; !voted {
			votes[id] = types.Undecided
		}
	}
	votes[p.id] = order
	p.received = make(map[types.PeerId]types.Order)
	p.roundActive = false
	p.roundDone = nil
	p.mutex.Unlock()

	decision := types.Majority(valuesOf(votes))
	if p.metrics != nil {
		p.metrics.RoundsTotal.Inc()
		p.metrics.RoundOutcomeTotal.WithLabelValues(string(decision)).Inc()
	}
	p.decisionLog.Set(DecisionRecord{RoundID: roundID, Asked: order, Decision: decision, Votes: votes, At: time.Now()})
	log.Infof("round closed with decision %s votes=%v", decision, votes)

	return votes, nil
}

// handleFrame is the transport.Handler registered against this peer's
// transport. It is the single entry point for every inbound frame and is
// invoked concurrently across senders.
func (p *Peer) handleFrame(frame types.Frame) (*types.Frame, error) {
	switch frame.Action {
	case types.ActionOrder:
		value, err := types.DecodeOrder(frame.Value)
		if err != nil {
			return nil, err
		}
		p.handleOrder(frame.Sender, value)
		return nil, nil

	case types.ActionClientOrder:
		value, err := types.DecodeOrder(frame.Value)
		if err != nil {
			return nil, err
		}
		votes, err := p.ClientOrder(context.Background(), value)
		if err != nil {
			return nil, err
		}
		encoded, err := types.EncodeVotes(votes)
		if err != nil {
			return nil, err
		}
		reply := types.Frame{Sender: p.id, Action: types.ActionResponse, Value: encoded}
		return &reply, nil

	case types.ActionResponse:
		// Consumed only by the client stub; the engine drops it.
		return nil, nil

	default:
		return nil, types.ErrUnsupportedAction
	}
}

// handleOrder records one order vote. The same code path serves both
// roles: when the sender is this peer's current primary, the value is
// relayed to every other secondary before the completion check;
// otherwise it is simply tallied.
func (p *Peer) handleOrder(sender types.PeerId, value types.Order) {
	peers, primaryID := p.snapshot()

	p.mutex.Lock()
	p.received[sender] = value
	relay := sender == primaryID
	p.mutex.Unlock()

	if relay {
		for _, target := range p.otherPeers(peers) {
			if target == primaryID {
				continue
			}
			target := target
			p.invoker.Spawn(func() {
				frame := types.Frame{Sender: p.id, Action: types.ActionOrder, Value: types.EncodeOrder(p.faultyFilter(value))}
				if err := p.trans.Send(context.Background(), target, frame); err != nil {
					p.log.Errorf("failed relaying order to %s: %v", target, err)
				}
			})
		}
	}

	p.checkRoundCompleteLocked(peers, primaryID)
}

// checkRoundCompleteLocked re-acquires the mutex to evaluate whether
// every expected vote for the current round has arrived, and either
// closes the primary's round or reports this secondary's majority back
// to the primary. Split out so both handleOrder and the membership
// removal path, which can complete a round early by injecting a
// placeholder vote for a departed peer, can trigger it.
func (p *Peer) checkRoundCompleteLocked(peers map[types.PeerId]string, primaryID types.PeerId) {
	p.mutex.Lock()
	expected := len(peers) - 1
	complete := len(p.received) >= expected
	var report *types.Order
	var isPrimary bool

	if complete {
		if p.id == primaryID {
			isPrimary = true
			if p.roundDone != nil {
				close(p.roundDone)
				p.roundDone = nil
			}
		} else {
			m := types.Majority(valuesOf(p.received))
			report = &m
			p.received = make(map[types.PeerId]types.Order)
		}
	}
	p.mutex.Unlock()

	if !complete || isPrimary {
		return
	}

	frame := types.Frame{Sender: p.id, Action: types.ActionOrder, Value: types.EncodeOrder(*report)}
	p.invoker.Spawn(func() {
		if err := p.trans.Send(context.Background(), primaryID, frame); err != nil {
			p.log.Errorf("failed reporting majority to primary %s: %v", primaryID, err)
		}
	})
}

func valuesOf(m types.Votes) []types.Order {
	out := make([]types.Order, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

// Stop releases this peer's transport and waits for any in-flight relay
// or report sends spawned through the Invoker to finish.
func (p *Peer) Stop() error {
	p.ready.Store(false)
	err := p.trans.Close()
	if wg, ok := p.invoker.(*WaitGroupInvoker); ok {
		wg.Wait()
	}
	return err
}
