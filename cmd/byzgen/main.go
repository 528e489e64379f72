// Command byzgen runs a single Byzantine generals peer and an operator
// shell for driving it: issuing orders, killing or adding peers, and
// flipping fault state.
package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/taidopurason/distsys-miniproject-2/internal/shell"
	"github.com/taidopurason/distsys-miniproject-2/pkg/generals/client"
	"github.com/taidopurason/distsys-miniproject-2/pkg/generals/core"
	"github.com/taidopurason/distsys-miniproject-2/pkg/generals/definition"
	"github.com/taidopurason/distsys-miniproject-2/pkg/generals/membership"
	"github.com/taidopurason/distsys-miniproject-2/pkg/generals/transport"
	"github.com/taidopurason/distsys-miniproject-2/pkg/generals/types"
)

var (
	id          = kingpin.Flag("id", "this peer's id").Required().String()
	listenAddr  = kingpin.Flag("listen", "address this peer's transport binds and advertises").Required().String()
	primaryID   = kingpin.Flag("primary", "id of the cluster's initial primary").Required().String()
	peerFlags   = kingpin.Flag("peer", "ID=ADDR of another peer in the cluster, repeatable").Strings()
	metricsAddr = kingpin.Flag("metrics-listen", "address to serve Prometheus metrics on, empty to disable").Default("").String()
	debug       = kingpin.Flag("debug", "log at debug level").Bool()
)

func main() {
	kingpin.Parse()

	peers, err := parsePeers(*peerFlags)
	if err != nil {
		kingpin.Fatalf("%v", err)
	}
	peers[types.PeerId(*id)] = *listenAddr

	log := definition.NewLogger()
	if *debug {
		log = definition.NewLoggerAt(logrus.DebugLevel)
	}
	log = log.WithField("peer_id", *id)

	trans, err := transport.NewTCPTransport(*listenAddr, nil, log)
	if err != nil {
		kingpin.Fatalf("binding transport: %v", err)
	}

	registry := prometheus.NewRegistry()
	metrics := definition.NewMetrics(registry, *id)

	peer, err := core.NewPeer(&types.PeerConfiguration{
		ID:        types.PeerId(*id),
		Peers:     peers,
		PrimaryID: types.PeerId(*primaryID),
		Logger:    log,
	}, trans, core.NewWaitGroupInvoker(), metrics)
	if err != nil {
		kingpin.Fatalf("constructing peer: %v", err)
	}
	defer peer.Stop()

	ctrl := membership.NewController(log, metrics)
	ctrl.Track(peer)

	primaryAddr := peers[types.PeerId(*primaryID)]
	cli := client.New(types.PeerId(*primaryID), primaryAddr)

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Errorf("metrics server stopped: %v", err)
			}
		}()
	}

	sh := shell.New(os.Stdout, log, ctrl, cli)
	sh.Run(os.Stdin)
}

func parsePeers(flags []string) (map[types.PeerId]string, error) {
	out := make(map[types.PeerId]string, len(flags))
	for _, f := range flags {
		parts := strings.SplitN(f, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid --peer %q, want ID=ADDR", f)
		}
		out[types.PeerId(parts[0])] = parts[1]
	}
	return out, nil
}
