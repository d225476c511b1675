package chain

import (
	"math"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	cm "github.com/puffscoin/puffsd/src/common"
	"github.com/puffscoin/puffsd/src/types"
	"github.com/sirupsen/logrus"
)

// MaxHeaderFetch caps the number of headers returned by a single query.
const MaxHeaderFetch = 192

// Chain is the read-mostly view of the blockchain consumed by the wire
// protocols and the service layer.
type Chain interface {
	// Open loads the chain from its store. Calling it more than once is
	// harmless.
	Open() error
	// NetworkID identifies the network the chain belongs to.
	NetworkID() uint64
	// Genesis returns the genesis header.
	Genesis() *types.Header
	// CurrentHeader returns the head of the header chain.
	CurrentHeader() *types.Header
	// HeaderTd returns the total difficulty at CurrentHeader.
	HeaderTd() *big.Int
	// CurrentBlock returns the head of the block chain.
	CurrentBlock() *types.Block
	// BlockTd returns the total difficulty at CurrentBlock.
	BlockTd() *big.Int
	// GetHeaders returns up to max canonical headers starting at origin,
	// stepping skip+1 blocks at a time, towards genesis when reverse is set.
	GetHeaders(origin types.HashOrNumber, max, skip uint64, reverse bool) ([]*types.Header, error)
	// GetBlock returns the block with the given hash.
	GetBlock(hash common.Hash) (*types.Block, error)
}

// Blockchain implements Chain over a Store. The canonical chain is the one with
// the highest total difficulty.
type Blockchain struct {
	store     Store
	networkID uint64
	genesis   *types.Block

	headerCache *lru.Cache // hash => *types.Header

	mu     sync.RWMutex
	opened bool
	head   *types.Block
	headTd *big.Int

	logger *logrus.Entry
}

// NewBlockchain creates a Blockchain. The store is not touched until Open.
func NewBlockchain(store Store, genesis *types.Block, networkID uint64, cacheSize int, logger *logrus.Entry) (*Blockchain, error) {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}

	return &Blockchain{
		store:       store,
		networkID:   networkID,
		genesis:     genesis,
		headerCache: cache,
		logger:      logger.WithField("component", "chain"),
	}, nil
}

// Open implements the Chain interface. An empty store is initialised with the
// genesis block.
func (c *Blockchain) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.opened {
		return nil
	}

	head, err := c.store.GetHead()
	if cm.IsStore(err, cm.Empty) {
		if err := c.writeGenesis(); err != nil {
			return err
		}
		head, err = c.store.GetHead()
	}
	if err != nil {
		return errors.Wrap(err, "loading head")
	}

	hash := common.HexToHash(head.Hash)

	block, err := c.store.GetBlock(hash)
	if err != nil {
		return errors.Wrap(err, "loading head block")
	}

	td, err := c.store.GetTd(hash)
	if err != nil {
		return errors.Wrap(err, "loading head td")
	}

	stored, err := c.store.GetCanonicalHash(0)
	if err != nil {
		return errors.Wrap(err, "loading genesis")
	}
	if stored != c.genesis.Hash() {
		return errors.Errorf("genesis mismatch: have %s, want %s", stored.Hex(), c.genesis.Hash().Hex())
	}

	c.head = block
	c.headTd = td
	c.opened = true

	c.logger.WithFields(logrus.Fields{
		"number":  block.Header.Number,
		"hash":    hash.TerminalString(),
		"td":      td,
		"genesis": c.genesis.Hash().TerminalString(),
	}).Debug("Opened chain")

	return nil
}

func (c *Blockchain) writeGenesis() error {
	td := new(big.Int)
	if c.genesis.Header.Difficulty != nil {
		td.Set(c.genesis.Header.Difficulty)
	}
	hash := c.genesis.Hash()

	if err := c.store.SetBlock(c.genesis, td); err != nil {
		return err
	}
	if err := c.store.SetCanonicalHash(0, hash); err != nil {
		return err
	}
	return c.store.SetHead(Head{Hash: hash.Hex(), Number: 0})
}

// Close closes the underlying store.
func (c *Blockchain) Close() error {
	return c.store.Close()
}

// NetworkID implements the Chain interface.
func (c *Blockchain) NetworkID() uint64 {
	return c.networkID
}

// Genesis implements the Chain interface.
func (c *Blockchain) Genesis() *types.Header {
	return c.genesis.Header
}

// CurrentHeader implements the Chain interface.
func (c *Blockchain) CurrentHeader() *types.Header {
	return c.CurrentBlock().Header
}

// HeaderTd implements the Chain interface. Headers and blocks are stored
// together so both heads coincide.
func (c *Blockchain) HeaderTd() *big.Int {
	return c.BlockTd()
}

// CurrentBlock implements the Chain interface.
func (c *Blockchain) CurrentBlock() *types.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.head == nil {
		return c.genesis
	}
	return c.head
}

// BlockTd implements the Chain interface.
func (c *Blockchain) BlockTd() *big.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.headTd == nil {
		if d := c.genesis.Header.Difficulty; d != nil {
			return new(big.Int).Set(d)
		}
		return new(big.Int)
	}
	return new(big.Int).Set(c.headTd)
}

// InsertBlock adds a block whose parent is already known. The head moves to
// the new block when its total difficulty exceeds the current one.
func (c *Blockchain) InsertBlock(block *types.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.opened {
		return errors.New("chain not opened")
	}

	parentHash := block.Header.ParentHash
	parentTd, err := c.store.GetTd(parentHash)
	if err != nil {
		if cm.IsStore(err, cm.KeyNotFound) {
			return cm.NewStoreErr("Block", cm.UnknownParent, parentHash.Hex())
		}
		return err
	}

	td := new(big.Int).Set(parentTd)
	if block.Header.Difficulty != nil {
		td.Add(td, block.Header.Difficulty)
	}

	if err := c.store.SetBlock(block, td); err != nil {
		return err
	}
	c.headerCache.Add(block.Hash(), block.Header)

	if td.Cmp(c.headTd) <= 0 {
		return nil
	}

	if err := c.setCanonical(block); err != nil {
		return err
	}

	c.head = block
	c.headTd = td

	c.logger.WithFields(logrus.Fields{
		"number": block.Header.Number,
		"hash":   block.Hash().TerminalString(),
		"td":     td,
	}).Debug("New head")

	return nil
}

// setCanonical rewrites the number => hash index so that it follows block back
// to the first ancestor that is already canonical, and drops entries above
// block left over from the previous head.
func (c *Blockchain) setCanonical(block *types.Block) error {
	number := block.Header.NumberU64()

	for n := number + 1; n <= c.head.Header.NumberU64(); n++ {
		if err := c.store.DeleteCanonicalHash(n); err != nil {
			return err
		}
	}

	header := block.Header
	for {
		n := header.NumberU64()
		hash := header.Hash()

		stored, err := c.store.GetCanonicalHash(n)
		if err == nil && stored == hash {
			break
		}
		if err := c.store.SetCanonicalHash(n, hash); err != nil {
			return err
		}
		if n == 0 {
			break
		}

		header, err = c.getHeader(header.ParentHash)
		if err != nil {
			return err
		}
	}

	return c.store.SetHead(Head{Hash: block.Hash().Hex(), Number: number})
}

func (c *Blockchain) getHeader(hash common.Hash) (*types.Header, error) {
	if h, ok := c.headerCache.Get(hash); ok {
		return h.(*types.Header), nil
	}

	h, err := c.store.GetHeader(hash)
	if err != nil {
		return nil, err
	}
	c.headerCache.Add(hash, h)
	return h, nil
}

// GetHeaderByNumber returns the canonical header at number.
func (c *Blockchain) GetHeaderByNumber(number uint64) (*types.Header, error) {
	hash, err := c.store.GetCanonicalHash(number)
	if err != nil {
		return nil, err
	}
	return c.getHeader(hash)
}

// GetHeaders implements the Chain interface. An unknown origin yields an empty
// result. The walk stops at the first missing header.
func (c *Blockchain) GetHeaders(origin types.HashOrNumber, max, skip uint64, reverse bool) ([]*types.Header, error) {
	if max > MaxHeaderFetch {
		max = MaxHeaderFetch
	}

	headers := []*types.Header{}
	if max == 0 {
		return headers, nil
	}

	var (
		start *types.Header
		err   error
	)
	if origin.IsHash() {
		start, err = c.getHeader(origin.Hash)
	} else {
		if origin.Number != nil && !origin.Number.IsUint64() {
			return headers, nil
		}
		var n uint64
		if origin.Number != nil {
			n = origin.Number.Uint64()
		}
		start, err = c.GetHeaderByNumber(n)
	}
	if cm.IsStore(err, cm.KeyNotFound) {
		return headers, nil
	}
	if err != nil {
		return nil, err
	}

	headers = append(headers, start)

	// skip+1 wraps to zero and would repeat the origin.
	if skip == math.MaxUint64 {
		return headers, nil
	}

	step := skip + 1
	number := start.NumberU64()
	for uint64(len(headers)) < max {
		if reverse {
			if number < step {
				break
			}
			number -= step
		} else {
			if number+step < number {
				break
			}
			number += step
		}

		h, err := c.GetHeaderByNumber(number)
		if cm.IsStore(err, cm.KeyNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		headers = append(headers, h)
	}

	return headers, nil
}

// GetBlock implements the Chain interface.
func (c *Blockchain) GetBlock(hash common.Hash) (*types.Block, error) {
	return c.store.GetBlock(hash)
}
