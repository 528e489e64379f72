package types

import "fmt"

// PeerId is the opaque, totally ordered identifier every general in the
// cluster is known by. The zero value is not a valid id.
type PeerId string

// Client is the distinguished sentinel id used by the client stub. It is
// never a key of any peer's peer set and never counted toward a quorum.
const Client PeerId = "client"

// Less orders ids lexicographically over their underlying string. Minted
// ids (G0, G1, G2, ...) sort the way an operator expects for a cluster
// small enough to be driven by hand.
func (p PeerId) Less(other PeerId) bool {
	return p < other
}

func (p PeerId) String() string {
	return string(p)
}

// MinPeerId returns the smallest id in the set by Less, used by the
// membership controller to re-elect a primary. Panics on an empty set,
// since a cluster with zero peers cannot elect anyone.
func MinPeerId(ids []PeerId) PeerId {
	if len(ids) == 0 {
		panic(fmt.Errorf("types: cannot elect a primary from an empty peer set"))
	}
	min := ids[0]
	for _, id := range ids[1:] {
		if id.Less(min) {
			min = id
		}
	}
	return min
}
