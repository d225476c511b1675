package keys

import (
	"crypto/ecdsa"

	"github.com/btcsuite/btcd/btcec"
)

// Sign signs a hash with the private key and returns the DER encoded
// signature.
func Sign(priv *ecdsa.PrivateKey, hash []byte) ([]byte, error) {
	sig, err := (*btcec.PrivateKey)(priv).Sign(hash)
	if err != nil {
		return nil, err
	}
	return sig.Serialize(), nil
}

// Verify verifies that sig is a valid signature of hash by the owner of pub.
func Verify(pub *ecdsa.PublicKey, hash []byte, sig []byte) bool {
	s, err := btcec.ParseDERSignature(sig, btcec.S256())
	if err != nil {
		return false
	}
	return s.Verify(hash, (*btcec.PublicKey)(pub))
}
