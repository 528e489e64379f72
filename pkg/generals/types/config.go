package types

// PeerConfiguration describes how a single engine instance is wired into
// the cluster at construction time: the peer's own id, its view of the
// cluster, and who is primary.
type PeerConfiguration struct {
	// ID of this peer.
	ID PeerId

	// ListenAddr is the local TCP address this peer binds to. core.NewPeer
	// does not read it; the transport passed to NewPeer is already bound.
	ListenAddr string

	// Peers maps every known peer id, including this one, to its
	// advertised transport address.
	Peers map[PeerId]string

	// PrimaryID must be a key of Peers.
	PrimaryID PeerId

	// Logger used by every component constructed for this peer. A
	// definition.NewLogger() result if the caller does not supply one.
	Logger Logger
}
