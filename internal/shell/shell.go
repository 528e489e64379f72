// Package shell implements the operator REPL that drives a running
// cluster: ordering an attack or retreat, killing and adding peers,
// flipping fault state, and printing the current membership.
package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/taidopurason/distsys-miniproject-2/pkg/generals/client"
	"github.com/taidopurason/distsys-miniproject-2/pkg/generals/core"
	"github.com/taidopurason/distsys-miniproject-2/pkg/generals/membership"
	"github.com/taidopurason/distsys-miniproject-2/pkg/generals/transport"
	"github.com/taidopurason/distsys-miniproject-2/pkg/generals/types"
)

// Shell binds a membership controller and client stub to the local
// operator's peer so a session can drive the cluster interactively.
type Shell struct {
	out  io.Writer
	log  types.Logger
	ctrl *membership.Controller
	cli  *client.Client

	timeout time.Duration

	// nextSpawnID is the next G<n> number g-add tries when minting a
	// peer id; numbers already held by a tracked peer are skipped.
	nextSpawnID int
}

// New builds a Shell driving ctrl and issuing orders through cli.
func New(out io.Writer, log types.Logger, ctrl *membership.Controller, cli *client.Client) *Shell {
	return &Shell{out: out, log: log, ctrl: ctrl, cli: cli, timeout: client.DefaultTimeout}
}

// Run reads commands from in until exit or EOF, one per line.
func (s *Shell) Run(in io.Reader) {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(s.out, "Input command: ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			if !s.dispatch(line) {
				return
			}
		}
		fmt.Fprint(s.out, "Input command: ")
	}
}

func (s *Shell) dispatch(line string) bool {
	args := strings.Fields(line)
	command := args[0]

	if len(args) > 3 {
		fmt.Fprintln(s.out, "Too many arguments")
		return true
	}

	switch command {
	case "actual-order":
		s.actualOrder(args[1:])
	case "g-kill":
		s.kill(args[1:])
	case "g-add":
		s.add(args[1:])
	case "g-state":
		s.state(args[1:])
	case "g-history":
		s.history(args[1:])
	case "exit":
		return false
	default:
		fmt.Fprintln(s.out, "Unknown command")
	}
	return true
}

func (s *Shell) actualOrder(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "usage: actual-order <attack|retreat>")
		return
	}

	order := types.Order(args[0])
	if !order.Valid() {
		fmt.Fprintln(s.out, "order must be attack or retreat")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	decision, votes, err := s.cli.SendOrder(ctx, order)
	if err != nil {
		fmt.Fprintf(s.out, "order failed: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "(%s, %s)\n", decision, formatVotes(votes))
}

func (s *Shell) kill(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "usage: g-kill <PeerId>")
		return
	}

	id := types.PeerId(args[0])
	if err := s.ctrl.RemoveNode(id); err != nil {
		fmt.Fprintln(s.out, "A general with this id does not exist")
		return
	}

	if primaryID, ok := s.ctrl.PrimaryID(); ok {
		if p, ok := s.ctrl.Get(primaryID); ok {
			s.cli.SetPrimary(primaryID, p.LocalAddress())
		}
	}
	s.printSystem()
	s.warnIfQuorumViolated()
}

func (s *Shell) add(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "usage: g-add <k>")
		return
	}

	k, err := strconv.Atoi(args[0])
	if err != nil || k < 0 {
		fmt.Fprintln(s.out, "k must be a non-negative integer")
		return
	}

	for i := 0; i < k; i++ {
		if err := s.spawnOne(); err != nil {
			fmt.Fprintf(s.out, "g-add: %v\n", err)
			break
		}
	}
	s.printSystem()
	s.warnIfQuorumViolated()
}

func (s *Shell) spawnOne() error {
	primaryID, ok := s.ctrl.PrimaryID()
	if !ok {
		return fmt.Errorf("no live peer to learn the primary from")
	}
	primary, ok := s.ctrl.Get(primaryID)
	if !ok {
		return fmt.Errorf("primary %s vanished", primaryID)
	}

	tracked := s.ctrl.Peers()
	id := types.PeerId(fmt.Sprintf("G%d", s.nextSpawnID))
	for _, taken := tracked[id]; taken; _, taken = tracked[id] {
		s.nextSpawnID++
		id = types.PeerId(fmt.Sprintf("G%d", s.nextSpawnID))
	}
	s.nextSpawnID++

	log := s.log.WithField("peer_id", id)
	trans, err := transport.NewTCPTransport("127.0.0.1:0", nil, log)
	if err != nil {
		return fmt.Errorf("binding transport for %s: %w", id, err)
	}

	p, err := core.NewPeer(&types.PeerConfiguration{
		ID:        id,
		Peers:     map[types.PeerId]string{id: trans.LocalAddress(), primaryID: primary.LocalAddress()},
		PrimaryID: primaryID,
		Logger:    log,
	}, trans, core.NewWaitGroupInvoker(), nil)
	if err != nil {
		trans.Close()
		return fmt.Errorf("constructing peer %s: %w", id, err)
	}

	if err := s.ctrl.AddNode(p, trans.LocalAddress()); err != nil {
		p.Stop()
		return fmt.Errorf("wiring peer %s into cluster: %w", id, err)
	}
	return nil
}

func (s *Shell) state(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(s.out, "usage: g-state <PeerId> <Faulty|Non-faulty>")
		return
	}

	id := types.PeerId(args[0])
	var faulty bool
	switch args[1] {
	case "Faulty":
		faulty = true
	case "Non-faulty":
		faulty = false
	default:
		fmt.Fprintln(s.out, "state must be Faulty or Non-faulty")
		return
	}

	if err := s.ctrl.SetFaulty(id, faulty); err != nil {
		fmt.Fprintln(s.out, "A general with this id does not exist")
		return
	}
	s.printSystem()
	s.warnIfQuorumViolated()
}

// warnIfQuorumViolated prints an operator-facing warning whenever the
// tracked peer set can no longer tolerate its faulty peers, i.e.
// 3*faulty+1 > peers.
func (s *Shell) warnIfQuorumViolated() {
	if s.ctrl.QuorumViolated() {
		fmt.Fprintln(s.out, "WARNING: quorum violated, too many faulty peers for the current cluster size")
	}
}

func (s *Shell) history(args []string) {
	id := types.PeerId("")
	if len(args) == 1 {
		id = types.PeerId(args[0])
	}
	if id == "" {
		if primaryID, ok := s.ctrl.PrimaryID(); ok {
			id = primaryID
		}
	}

	p, ok := s.ctrl.Get(id)
	if !ok {
		fmt.Fprintln(s.out, "A general with this id does not exist")
		return
	}

	records, err := p.DecisionLog().Get()
	if err != nil {
		fmt.Fprintf(s.out, "g-history: %v\n", err)
		return
	}
	for _, r := range records {
		fmt.Fprintf(s.out, "%s asked=%s decision=%s votes=%s\n", r.RoundID, r.Asked, r.Decision, formatVotes(r.Votes))
	}
}

func (s *Shell) printSystem() {
	peers := s.ctrl.Peers()
	ids := make([]types.PeerId, 0, len(peers))
	for id := range peers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		p := peers[id]
		role := "secondary"
		if p.Role() == core.RolePrimary {
			role = "primary"
		}
		fmt.Fprintf(s.out, "%s %s %s\n", id, p.State(), role)
	}
}

func formatVotes(votes types.Votes) string {
	ids := make([]string, 0, len(votes))
	for id := range votes {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s: %s", id, votes[types.PeerId(id)]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
