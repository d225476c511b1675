package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

// Body is the part of a block served in reply to GetBlockBodies: the
// transaction list and the uncle headers. Transactions are opaque to the
// protocol layer and kept in their raw RLP form.
type Body struct {
	Transactions []rlp.RawValue
	Uncles       []*Header
}

// Block is a header together with its body. It encodes as
// [header, transactions, uncles].
type Block struct {
	Header       *Header
	Transactions []rlp.RawValue
	Uncles       []*Header
}

// NewBlock creates a block from a header and a body. A nil body yields an empty
// block.
func NewBlock(header *Header, body *Body) *Block {
	b := &Block{
		Header:       header,
		Transactions: []rlp.RawValue{},
		Uncles:       []*Header{},
	}
	if body != nil {
		if body.Transactions != nil {
			b.Transactions = body.Transactions
		}
		if body.Uncles != nil {
			b.Uncles = body.Uncles
		}
	}
	return b
}

// Hash returns the hash of the block header.
func (b *Block) Hash() common.Hash {
	return b.Header.Hash()
}

// Body strips the header from the block.
func (b *Block) Body() *Body {
	return &Body{
		Transactions: b.Transactions,
		Uncles:       b.Uncles,
	}
}

// Marshal returns the RLP encoding of the block.
func (b *Block) Marshal() ([]byte, error) {
	return rlp.EncodeToBytes(b)
}

// Unmarshal decodes an RLP encoded block into b.
func (b *Block) Unmarshal(data []byte) error {
	return rlp.DecodeBytes(data, b)
}
