package keys

import (
	"crypto/ecdsa"

	"github.com/btcsuite/btcd/btcec"
	"github.com/pkg/errors"
	"github.com/puffscoin/puffsd/src/common"
)

// NodeID returns the id of the node owning pub: the hex encoded compressed
// form of the key.
func NodeID(pub *ecdsa.PublicKey) string {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return ""
	}
	return common.EncodeToString((*btcec.PublicKey)(pub).SerializeCompressed())
}

// ParseNodeID returns the public key behind a node id.
func ParseNodeID(id string) (*ecdsa.PublicKey, error) {
	raw, err := common.DecodeFromString(id)
	if err != nil {
		return nil, errors.Wrap(err, "decoding node id")
	}

	pub, err := btcec.ParsePubKey(raw, btcec.S256())
	if err != nil {
		return nil, errors.Wrap(err, "parsing node id")
	}
	return pub.ToECDSA(), nil
}
