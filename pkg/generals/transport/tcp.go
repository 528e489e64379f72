package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/taidopurason/distsys-miniproject-2/pkg/generals/types"
)

var (
	// ErrNotAdvertiseAddress is returned when a listener bound to an
	// unspecified address (0.0.0.0) cannot be dialed back by other peers
	// and needs an explicit advertise address instead.
	ErrNotAdvertiseAddress = errors.New("transport: listen address is not advertisable, provide an explicit address")

	// ErrUnknownPeer is returned by Send for an id that was never added
	// to the transport's peer set.
	ErrUnknownPeer = errors.New("transport: unknown peer id")

	// ErrClosed is returned by operations attempted after Close.
	ErrClosed = errors.New("transport: closed")
)

// Handler processes one inbound frame and optionally produces at most
// one reply frame per inbound request.
type Handler func(types.Frame) (*types.Frame, error)

// Transport is the peer transport contract: a persistent outbound
// connection per known peer id, a single registered inbound handler, and
// membership hooks so peers can be added or removed on a live transport.
type Transport interface {
	// Send is fire-and-forget: on a dial or write error the error is
	// returned to the caller and nothing is retried.
	Send(ctx context.Context, target types.PeerId, frame types.Frame) error

	// Recv registers the single handler invoked per inbound frame. Only
	// one handler may be registered; a second call replaces the first.
	Recv(handler Handler)

	// AddPeer registers id at addr as an outbound target, for use by the
	// membership controller's AddNode. TCPTransport does not connect
	// here; it dials the peer on the first Send to it.
	AddPeer(id types.PeerId, addr string) error

	// RemovePeer closes the outbound connection to id, if any.
	RemovePeer(id types.PeerId)

	// SetReadyFn wires the transport's inbound-dispatch gate, which
	// blocks a handler invocation until it reports true, to the engine's
	// own readiness flag once the engine exists.
	SetReadyFn(fn func() bool)

	LocalAddress() string
	Close() error
}

type outbound struct {
	mutex sync.Mutex
	addr  string
	conn  net.Conn
}

// TCPTransport is the concrete Transport: one TCP listener, one
// persistent outbound net.Conn per known peer (dialed lazily, including a
// self-connection that is permitted but never used by the protocol), and
// newline-delimited JSON frames on the wire.
type TCPTransport struct {
	log types.Logger

	listener net.Listener
	localAddr string

	readyFn func() bool

	mutex     sync.RWMutex
	outbounds map[types.PeerId]*outbound
	handler   Handler

	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup
}

// NewTCPTransport binds listenAddr and returns a transport ready to Recv
// once a handler is registered. readyFn is polled before every inbound
// frame is dispatched and blocks dispatch until it returns true; pass a
// function that always returns true if the caller has no warm-up period.
func NewTCPTransport(listenAddr string, readyFn func() bool, log types.Logger) (*TCPTransport, error) {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, err
	}

	addr, ok := ln.Addr().(*net.TCPAddr)
	if !ok || addr.IP.IsUnspecified() {
		ln.Close()
		return nil, ErrNotAdvertiseAddress
	}

	if readyFn == nil {
		readyFn = func() bool { return true }
	}

	t := &TCPTransport{
		log:       log,
		listener:  ln,
		localAddr: addr.String(),
		readyFn:   readyFn,
		outbounds: make(map[types.PeerId]*outbound),
		closed:    make(chan struct{}),
	}

	t.wg.Add(1)
	go t.acceptLoop()
	return t, nil
}

func (t *TCPTransport) LocalAddress() string {
	return t.localAddr
}

// SetReadyFn replaces the readiness predicate polled before each inbound
// frame is dispatched. Used by core.NewPeer to wire the transport to the
// engine's own ready flag once the engine exists, since the transport is
// constructed first.
func (t *TCPTransport) SetReadyFn(fn func() bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.readyFn = fn
}

func (t *TCPTransport) Recv(handler Handler) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.handler = handler
}

func (t *TCPTransport) AddPeer(id types.PeerId, addr string) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.outbounds[id] = &outbound{addr: addr}
	return nil
}

func (t *TCPTransport) RemovePeer(id types.PeerId) {
	t.mutex.Lock()
	ob, ok := t.outbounds[id]
	delete(t.outbounds, id)
	t.mutex.Unlock()

	if ok {
		ob.mutex.Lock()
		if ob.conn != nil {
			ob.conn.Close()
		}
		ob.mutex.Unlock()
	}
}

func (t *TCPTransport) Send(ctx context.Context, target types.PeerId, frame types.Frame) error {
	t.mutex.RLock()
	ob, ok := t.outbounds[target]
	t.mutex.RUnlock()
	if !ok {
		return ErrUnknownPeer
	}

	conn, err := t.dial(ob)
	if err != nil {
		return err
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
	}

	data, err := frame.Marshal()
	if err != nil {
		return err
	}
	data = append(data, '\n')

	ob.mutex.Lock()
	_, err = conn.Write(data)
	ob.mutex.Unlock()
	if err != nil {
		ob.mutex.Lock()
		if ob.conn == conn {
			ob.conn = nil
		}
		ob.mutex.Unlock()
		conn.Close()
	}
	return err
}

func (t *TCPTransport) dial(ob *outbound) (net.Conn, error) {
	ob.mutex.Lock()
	defer ob.mutex.Unlock()

	if ob.conn != nil {
		return ob.conn, nil
	}

	conn, err := net.DialTimeout("tcp", ob.addr, 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", ob.addr, err)
	}
	ob.conn = conn
	return conn, nil
}

func (t *TCPTransport) acceptLoop() {
	defer t.wg.Done()
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.closed:
				return
			default:
				t.log.Errorf("transport: accept failed: %v", err)
				return
			}
		}

		t.wg.Add(1)
		go t.serve(conn)
	}
}

// serve reads newline-delimited frames off one inbound connection for its
// whole lifetime, since peer connections are long-lived, and replies
// in-line on the same connection when the handler produces a response.
func (t *TCPTransport) serve(conn net.Conn) {
	defer t.wg.Done()
	defer conn.Close()

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			t.dispatch(conn, line)
		}
		if err != nil {
			return
		}
	}
}

func (t *TCPTransport) dispatch(conn net.Conn, line []byte) {
	for {
		t.mutex.RLock()
		ready := t.readyFn()
		t.mutex.RUnlock()
		if ready {
			break
		}
		select {
		case <-t.closed:
			return
		case <-time.After(20 * time.Millisecond):
		}
	}

	frame, err := types.UnmarshalFrame(line)
	if err != nil {
		t.log.Warnf("transport: dropping malformed frame: %v", err)
		return
	}

	t.mutex.RLock()
	handler := t.handler
	t.mutex.RUnlock()
	if handler == nil {
		return
	}

	reply, err := handler(frame)
	if err != nil {
		t.log.Errorf("transport: handler failed for %#v: %v", frame, err)
		return
	}
	if reply == nil {
		return
	}

	data, err := reply.Marshal()
	if err != nil {
		t.log.Errorf("transport: failed marshalling reply: %v", err)
		return
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		t.log.Errorf("transport: failed writing reply: %v", err)
	}
}

func (t *TCPTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		err = t.listener.Close()

		t.mutex.Lock()
		for _, ob := range t.outbounds {
			ob.mutex.Lock()
			if ob.conn != nil {
				ob.conn.Close()
			}
			ob.mutex.Unlock()
		}
		t.mutex.Unlock()
	})
	t.wg.Wait()
	return err
}
