package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/puffscoin/puffsd/src/types"
)

// Head identifies the block at the tip of the canonical chain.
type Head struct {
	Hash   string
	Number uint64
}

// Store is an interface for backend stores.
type Store interface {
	// GetBlock returns a block by hash.
	GetBlock(hash common.Hash) (*types.Block, error)
	// GetHeader returns the header of a block by hash.
	GetHeader(hash common.Hash) (*types.Header, error)
	// GetTd returns the total difficulty of the chain ending at hash.
	GetTd(hash common.Hash) (*big.Int, error)
	// SetBlock stores a block and its total difficulty.
	SetBlock(block *types.Block, td *big.Int) error
	// GetCanonicalHash returns the hash of the canonical block at number.
	GetCanonicalHash(number uint64) (common.Hash, error)
	// SetCanonicalHash marks hash as the canonical block at number.
	SetCanonicalHash(number uint64, hash common.Hash) error
	// DeleteCanonicalHash removes the canonical mapping for number.
	DeleteCanonicalHash(number uint64) error
	// GetHead returns the current head.
	GetHead() (Head, error)
	// SetHead records the current head.
	SetHead(head Head) error
	// Close releases the store's resources.
	Close() error
}
