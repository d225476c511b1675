package types

import (
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

// HashOrNumber is the origin of a header query. Exactly one of Hash or Number
// is meaningful: a non-zero Hash takes precedence.
type HashOrNumber struct {
	Hash   common.Hash
	Number *big.Int
}

// ByHash returns an origin pointing at the block with the given hash.
func ByHash(h common.Hash) HashOrNumber {
	return HashOrNumber{Hash: h}
}

// ByNumber returns an origin pointing at the block with the given number.
func ByNumber(n uint64) HashOrNumber {
	return HashOrNumber{Number: new(big.Int).SetUint64(n)}
}

// IsHash reports whether the origin designates a block by hash.
func (hn HashOrNumber) IsHash() bool {
	return hn.Hash != (common.Hash{})
}

func (hn HashOrNumber) String() string {
	if hn.IsHash() {
		return hn.Hash.Hex()
	}
	if hn.Number == nil {
		return "0"
	}
	return hn.Number.String()
}

// EncodeRLP writes the hash when set, otherwise the number.
func (hn *HashOrNumber) EncodeRLP(w io.Writer) error {
	if hn.IsHash() {
		if hn.Number != nil && hn.Number.Sign() != 0 {
			return errors.New("both origin hash and number provided")
		}
		return rlp.Encode(w, hn.Hash)
	}
	if hn.Number == nil {
		return rlp.Encode(w, new(big.Int))
	}
	return rlp.Encode(w, hn.Number)
}

// DecodeRLP treats a 32 byte string as a hash and anything shorter as a
// number.
func (hn *HashOrNumber) DecodeRLP(s *rlp.Stream) error {
	_, size, err := s.Kind()
	switch {
	case err != nil:
		return err
	case size == common.HashLength:
		hn.Number = nil
		return s.Decode(&hn.Hash)
	case size < common.HashLength:
		hn.Hash = common.Hash{}
		hn.Number = new(big.Int)
		return s.Decode(hn.Number)
	default:
		return fmt.Errorf("invalid input size %d for origin", size)
	}
}
