package chain

import (
	"math/big"

	"github.com/puffscoin/puffsd/src/types"
)

// Default chain parameters.
const (
	DefaultNetworkID  = 1
	DefaultDifficulty = 131072
	DefaultGasLimit   = 5000
)

// DefaultGenesisBlock returns the genesis block of the default network.
func DefaultGenesisBlock() *types.Block {
	return types.NewBlock(&types.Header{
		Difficulty: big.NewInt(DefaultDifficulty),
		Number:     big.NewInt(0),
		GasLimit:   DefaultGasLimit,
		Extra:      []byte("puffs genesis"),
	}, nil)
}

// GenerateChain returns n empty blocks extending parent, each with the default
// difficulty and a timestamp equal to its number.
func GenerateChain(parent *types.Header, n int) []*types.Block {
	blocks := make([]*types.Block, 0, n)
	for i := 0; i < n; i++ {
		number := new(big.Int).Add(parent.Number, big.NewInt(1))
		header := &types.Header{
			ParentHash: parent.Hash(),
			Difficulty: big.NewInt(DefaultDifficulty),
			Number:     number,
			GasLimit:   DefaultGasLimit,
			Time:       number.Uint64(),
		}
		blocks = append(blocks, types.NewBlock(header, nil))
		parent = header
	}
	return blocks
}
