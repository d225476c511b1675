package types

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"golang.org/x/crypto/sha3"
)

// Header is a block header as carried on the wire. Difficulty and Number are
// arbitrary-precision and encode as RLP big integers.
type Header struct {
	ParentHash  common.Hash
	UncleHash   common.Hash
	Coinbase    common.Address
	Root        common.Hash
	TxHash      common.Hash
	ReceiptHash common.Hash
	Difficulty  *big.Int
	Number      *big.Int
	GasLimit    uint64
	GasUsed     uint64
	Time        uint64
	Extra       []byte
}

// Hash returns the keccak256 hash of the header's RLP encoding.
func (h *Header) Hash() common.Hash {
	return rlpHash(h)
}

// NumberU64 returns the block number, or 0 when it is not set.
func (h *Header) NumberU64() uint64 {
	if h.Number == nil {
		return 0
	}
	return h.Number.Uint64()
}

func (h *Header) String() string {
	return fmt.Sprintf("Header{Number: %v, Hash: %s, Parent: %s}",
		h.Number, h.Hash().TerminalString(), h.ParentHash.TerminalString())
}

// Marshal returns the RLP encoding of the header.
func (h *Header) Marshal() ([]byte, error) {
	return rlp.EncodeToBytes(h)
}

// Unmarshal decodes an RLP encoded header into h.
func (h *Header) Unmarshal(data []byte) error {
	return rlp.DecodeBytes(data, h)
}

func rlpHash(x interface{}) (h common.Hash) {
	hw := sha3.NewLegacyKeccak256()
	rlp.Encode(hw, x)
	hw.Sum(h[:0])
	return h
}
