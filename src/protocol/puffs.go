package protocol

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/puffscoin/puffsd/src/chain"
	"github.com/puffscoin/puffsd/src/types"
)

// PuffsName is the wire name of the full sync protocol.
const PuffsName = "puffs"

// puffs message codes.
const (
	NewBlockHashesMsg  = 0x01
	GetBlockHeadersMsg = 0x03
	BlockHeadersMsg    = 0x04
	GetBlockBodiesMsg  = 0x05
	BlockBodiesMsg     = 0x06
)

// BlockHashNumber announces one block.
type BlockHashNumber struct {
	Hash   common.Hash
	Number *big.Int
}

// GetBlockHeadersData is a header query: Amount headers starting at Origin,
// Skip blocks apart, towards genesis when Reverse is set.
type GetBlockHeadersData struct {
	Origin  types.HashOrNumber
	Amount  uint64
	Skip    uint64
	Reverse bool
}

var puffsCatalog = NewCatalog(
	rlpEntry[[]BlockHashNumber]("NewBlockHashes", NewBlockHashesMsg, 0),
	rlpEntry[GetBlockHeadersData]("GetBlockHeaders", GetBlockHeadersMsg, BlockHeadersMsg),
	rlpEntry[[]*types.Header]("BlockHeaders", BlockHeadersMsg, 0),
	rlpEntry[[]common.Hash]("GetBlockBodies", GetBlockBodiesMsg, BlockBodiesMsg),
	rlpEntry[[]*types.Body]("BlockBodies", BlockBodiesMsg, 0),
)

// PuffsStatus is the status announced by a puffs peer.
type PuffsStatus struct {
	NetworkID   uint64
	TD          *big.Int
	BestHash    common.Hash
	GenesisHash common.Hash
}

// PuffsProtocol implements the puffs/62 and puffs/63 protocols.
type PuffsProtocol struct {
	base
}

// NewPuffsProtocol creates the puffs protocol backed by c. A zero timeout
// selects DefaultTimeout.
func NewPuffsProtocol(c chain.Chain, timeout time.Duration) *PuffsProtocol {
	p := &PuffsProtocol{}
	p.init(c, timeout)
	return p
}

// Name implements the Protocol interface.
func (p *PuffsProtocol) Name() string {
	return PuffsName
}

// Versions implements the Protocol interface.
func (p *PuffsProtocol) Versions() []uint {
	return []uint{63, 62}
}

// Catalog implements the Protocol interface.
func (p *PuffsProtocol) Catalog() *Catalog {
	return puffsCatalog
}

// Correlation implements the Protocol interface.
func (p *PuffsProtocol) Correlation() Correlation {
	return ByResponseCode
}

// EncodeStatus implements the Protocol interface.
func (p *PuffsProtocol) EncodeStatus() (StatusList, error) {
	var (
		list StatusList
		err  error
	)

	add := func(key string, val interface{}) {
		if err == nil {
			list, err = list.Add(key, val)
		}
	}

	add("networkId", p.chain.NetworkID())
	add("totalDifficulty", p.chain.BlockTd())
	add("bestHash", p.chain.CurrentBlock().Hash())
	add("genesisHash", p.chain.Genesis().Hash())

	return list, err
}

// DecodeStatus implements the Protocol interface. It returns a *PuffsStatus.
func (p *PuffsProtocol) DecodeStatus(list StatusList) (interface{}, error) {
	m := list.Map()
	status := &PuffsStatus{TD: new(big.Int)}

	if err := m.Get("networkId", &status.NetworkID); err != nil {
		return nil, err
	}
	if err := m.Get("totalDifficulty", status.TD); err != nil {
		return nil, err
	}
	if err := m.Get("bestHash", &status.BestHash); err != nil {
		return nil, err
	}
	if err := m.Get("genesisHash", &status.GenesisHash); err != nil {
		return nil, err
	}

	return status, nil
}
