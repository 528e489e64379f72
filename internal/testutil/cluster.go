// Package testutil builds small in-process clusters of wired-up peers
// for use by package tests that need more than one general.
package testutil

import (
	"fmt"
	"runtime"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/taidopurason/distsys-miniproject-2/pkg/generals/core"
	"github.com/taidopurason/distsys-miniproject-2/pkg/generals/definition"
	"github.com/taidopurason/distsys-miniproject-2/pkg/generals/membership"
	"github.com/taidopurason/distsys-miniproject-2/pkg/generals/transport"
	"github.com/taidopurason/distsys-miniproject-2/pkg/generals/types"
)

// GeneralCluster boots N in-process peers over real loopback TCP sockets
// on ephemeral ports.
type GeneralCluster struct {
	T          *testing.T
	Controller *membership.Controller
	Metrics    *definition.Metrics
	IDs        []types.PeerId
	PrimaryID  types.PeerId
}

// NewGeneralCluster creates n peers named G0..G(n-1), with G0 as primary,
// all non-faulty, wired to each other, and started.
func NewGeneralCluster(t *testing.T, n int) *GeneralCluster {
	t.Helper()

	log := definition.NewLoggerAt(logrus.WarnLevel)
	metrics := definition.NewMetrics(prometheus.NewRegistry(), "cluster")
	ctrl := membership.NewController(log, metrics)

	ids := make([]types.PeerId, n)
	for i := range ids {
		ids[i] = types.PeerId(fmt.Sprintf("G%d", i))
	}
	primary := ids[0]

	// First pass: bind every transport so every peer's advertised
	// address is known before any peer dials another.
	transports := make(map[types.PeerId]*transport.TCPTransport, n)
	for _, id := range ids {
		trans, err := transport.NewTCPTransport("127.0.0.1:0", nil, log)
		if err != nil {
			t.Fatalf("binding transport for %s: %v", id, err)
		}
		transports[id] = trans
	}

	peerAddrs := make(map[types.PeerId]string, n)
	for id, trans := range transports {
		peerAddrs[id] = trans.LocalAddress()
	}

	for _, id := range ids {
		conf := &types.PeerConfiguration{
			ID:        id,
			Peers:     peerAddrs,
			PrimaryID: primary,
			Logger:    log,
		}
		p, err := core.NewPeer(conf, transports[id], core.NewWaitGroupInvoker(), nil)
		if err != nil {
			t.Fatalf("constructing peer %s: %v", id, err)
		}
		ctrl.Track(p)
	}

	return &GeneralCluster{T: t, Controller: ctrl, Metrics: metrics, IDs: ids, PrimaryID: primary}
}

// Off stops every tracked peer.
func (c *GeneralCluster) Off() {
	for _, p := range c.Controller.Peers() {
		p.Stop()
	}
}

// WaitThisOrTimeout runs cb in a goroutine and reports whether it
// finished within duration.
func WaitThisOrTimeout(cb func(), duration time.Duration) bool {
	done := make(chan struct{})
	go func() {
		cb()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(duration):
		return false
	}
}

// PrintStackTrace dumps every goroutine's stack, used to diagnose a
// cluster that failed to shut down in time.
func PrintStackTrace(t *testing.T) {
	buf := make([]byte, 1<<16)
	n := runtime.Stack(buf, true)
	t.Errorf("%s", buf[:n])
}
