package chain

import (
	"math/big"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	cm "github.com/puffscoin/puffsd/src/common"
	"github.com/puffscoin/puffsd/src/types"
)

// InmemStore implements the Store interface with plain maps. Nothing is ever
// evicted.
type InmemStore struct {
	mu        sync.RWMutex
	blocks    map[common.Hash]*types.Block
	tds       map[common.Hash]*big.Int
	canonical map[uint64]common.Hash
	head      *Head
}

// NewInmemStore creates an empty InmemStore.
func NewInmemStore() *InmemStore {
	return &InmemStore{
		blocks:    make(map[common.Hash]*types.Block),
		tds:       make(map[common.Hash]*big.Int),
		canonical: make(map[uint64]common.Hash),
	}
}

// GetBlock implements the Store interface.
func (s *InmemStore) GetBlock(hash common.Hash) (*types.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.blocks[hash]
	if !ok {
		return nil, cm.NewStoreErr("Block", cm.KeyNotFound, hash.Hex())
	}
	return b, nil
}

// GetHeader implements the Store interface.
func (s *InmemStore) GetHeader(hash common.Hash) (*types.Header, error) {
	b, err := s.GetBlock(hash)
	if err != nil {
		return nil, cm.NewStoreErr("Header", cm.KeyNotFound, hash.Hex())
	}
	return b.Header, nil
}

// GetTd implements the Store interface.
func (s *InmemStore) GetTd(hash common.Hash) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	td, ok := s.tds[hash]
	if !ok {
		return nil, cm.NewStoreErr("Td", cm.KeyNotFound, hash.Hex())
	}
	return new(big.Int).Set(td), nil
}

// SetBlock implements the Store interface.
func (s *InmemStore) SetBlock(block *types.Block, td *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := block.Hash()
	s.blocks[hash] = block
	s.tds[hash] = new(big.Int).Set(td)
	return nil
}

// GetCanonicalHash implements the Store interface.
func (s *InmemStore) GetCanonicalHash(number uint64) (common.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.canonical[number]
	if !ok {
		return common.Hash{}, cm.NewStoreErr("Canonical", cm.KeyNotFound, strconv.FormatUint(number, 10))
	}
	return h, nil
}

// SetCanonicalHash implements the Store interface.
func (s *InmemStore) SetCanonicalHash(number uint64, hash common.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.canonical[number] = hash
	return nil
}

// DeleteCanonicalHash implements the Store interface.
func (s *InmemStore) DeleteCanonicalHash(number uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.canonical, number)
	return nil
}

// GetHead implements the Store interface.
func (s *InmemStore) GetHead() (Head, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.head == nil {
		return Head{}, cm.NewStoreErr("Head", cm.Empty, "")
	}
	return *s.head, nil
}

// SetHead implements the Store interface.
func (s *InmemStore) SetHead(head Head) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.head = &head
	return nil
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	return nil
}
