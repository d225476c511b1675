package peers

import (
	"crypto/ecdsa"
	"strings"

	"github.com/puffscoin/puffsd/src/crypto/keys"
)

// Peer is a known node.
type Peer struct {
	NodeID  string
	NetAddr string
	Moniker string `json:",omitempty"`
}

// NewPeer creates a Peer with a normalised node id.
func NewPeer(nodeID, netAddr, moniker string) *Peer {
	return &Peer{
		NodeID:  normaliseID(nodeID),
		NetAddr: netAddr,
		Moniker: moniker,
	}
}

// PublicKey parses the node id.
func (p *Peer) PublicKey() (*ecdsa.PublicKey, error) {
	return keys.ParseNodeID(p.NodeID)
}

// normaliseID returns the node id in the lowercase 0x form derived from keys.
func normaliseID(id string) string {
	return "0x" + strings.TrimPrefix(strings.ToLower(id), "0x")
}

// ExcludePeer is used to exclude a single peer from a list of peers.
func ExcludePeer(peers []*Peer, nodeID string) (int, []*Peer) {
	nodeID = normaliseID(nodeID)
	index := -1
	otherPeers := make([]*Peer, 0, len(peers))
	for i, p := range peers {
		if p.NodeID != nodeID {
			otherPeers = append(otherPeers, p)
		} else {
			index = i
		}
	}
	return index, otherPeers
}
