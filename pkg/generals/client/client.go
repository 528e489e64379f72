// Package client implements a thin, short-lived connection to whichever
// peer is currently primary.
package client

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/taidopurason/distsys-miniproject-2/pkg/generals/types"
)

// DefaultTimeout bounds how long the stub waits for a response before
// giving up.
const DefaultTimeout = 5 * time.Second

// Client tracks the current primary and forwards operator-entered orders
// to it.
type Client struct {
	mutex      sync.RWMutex
	primaryID  types.PeerId
	primaryAddr string
	timeout    time.Duration
}

func New(primaryID types.PeerId, primaryAddr string) *Client {
	return &Client{primaryID: primaryID, primaryAddr: primaryAddr, timeout: DefaultTimeout}
}

// SetPrimary is called externally (by the shell, after a membership
// reconfiguration) whenever the primary changes.
func (c *Client) SetPrimary(id types.PeerId, addr string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.primaryID = id
	c.primaryAddr = addr
}

func (c *Client) Primary() (types.PeerId, string) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.primaryID, c.primaryAddr
}

// SendOrder dials the primary, sends a client_order frame, awaits the
// single response frame, and majority-reduces its vote table into the
// final decision.
func (c *Client) SendOrder(ctx context.Context, order types.Order) (types.Order, types.Votes, error) {
	_, addr := c.Primary()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("client: dialing primary %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else if c.timeout > 0 {
		conn.SetDeadline(time.Now().Add(c.timeout))
	}

	frame := types.Frame{Sender: types.Client, Action: types.ActionClientOrder, Value: types.EncodeOrder(order)}
	data, err := frame.Marshal()
	if err != nil {
		return "", nil, err
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		return "", nil, fmt.Errorf("client: sending order: %w", err)
	}

	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return "", nil, fmt.Errorf("client: awaiting response: %w", err)
	}

	reply, err := types.UnmarshalFrame(line)
	if err != nil {
		return "", nil, err
	}
	if reply.Action != types.ActionResponse {
		return "", nil, fmt.Errorf("client: unexpected reply action %s", reply.Action)
	}

	votes, err := types.DecodeVotes(reply.Value)
	if err != nil {
		return "", nil, err
	}

	decision := types.Majority(valuesOf(votes))
	return decision, votes, nil
}

func valuesOf(v types.Votes) []types.Order {
	out := make([]types.Order, 0, len(v))
	for _, o := range v {
		out = append(out, o)
	}
	return out
}
