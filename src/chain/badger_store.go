package chain

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"
	"strconv"

	"github.com/dgraph-io/badger"
	"github.com/ethereum/go-ethereum/common"
	cm "github.com/puffscoin/puffsd/src/common"
	"github.com/puffscoin/puffsd/src/types"
	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
)

const (
	blockPrefix     = "block"
	tdPrefix        = "td"
	canonicalPrefix = "canon"
	headKey         = "head"
)

// BadgerStore implements the Store interface on top of a Badger database.
// Blocks are stored in their RLP encoding, keyed by hash.
type BadgerStore struct {
	db   *badger.DB
	path string
}

// NewBadgerStore opens the database in path, creating it if nothing is found.
func NewBadgerStore(path string, logger *logrus.Entry) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).
		WithSyncWrites(false).
		WithTruncate(true)

	if logger != nil {
		opts = opts.WithLogger(logger.WithField("ns", "badger"))
	}

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &BadgerStore{
		db:   handle,
		path: path,
	}, nil
}

// StorePath returns the path of the database directory.
func (s *BadgerStore) StorePath() string {
	return s.path
}

//==============================================================================
//Keys

func blockKey(hash common.Hash) []byte {
	return []byte(fmt.Sprintf("%s_%x", blockPrefix, hash))
}

func tdKey(hash common.Hash) []byte {
	return []byte(fmt.Sprintf("%s_%x", tdPrefix, hash))
}

func canonicalKey(number uint64) []byte {
	key := make([]byte, len(canonicalPrefix)+1+8)
	copy(key, canonicalPrefix+"_")
	binary.BigEndian.PutUint64(key[len(canonicalPrefix)+1:], number)
	return key
}

//==============================================================================
//Store interface

// GetBlock implements the Store interface.
func (s *BadgerStore) GetBlock(hash common.Hash) (*types.Block, error) {
	val, err := s.dbGet(blockKey(hash))
	if err != nil {
		return nil, mapError(err, "Block", hash.Hex())
	}

	block := new(types.Block)
	if err := block.Unmarshal(val); err != nil {
		return nil, err
	}
	return block, nil
}

// GetHeader implements the Store interface.
func (s *BadgerStore) GetHeader(hash common.Hash) (*types.Header, error) {
	block, err := s.GetBlock(hash)
	if err != nil {
		return nil, err
	}
	return block.Header, nil
}

// GetTd implements the Store interface.
func (s *BadgerStore) GetTd(hash common.Hash) (*big.Int, error) {
	val, err := s.dbGet(tdKey(hash))
	if err != nil {
		return nil, mapError(err, "Td", hash.Hex())
	}
	return new(big.Int).SetBytes(val), nil
}

// SetBlock implements the Store interface.
func (s *BadgerStore) SetBlock(block *types.Block, td *big.Int) error {
	val, err := block.Marshal()
	if err != nil {
		return err
	}

	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	hash := block.Hash()

	//insert [block_hash] => [block rlp]
	if err := tx.Set(blockKey(hash), val); err != nil {
		return err
	}

	//insert [td_hash] => [td bytes]
	if err := tx.Set(tdKey(hash), td.Bytes()); err != nil {
		return err
	}

	return tx.Commit()
}

// GetCanonicalHash implements the Store interface.
func (s *BadgerStore) GetCanonicalHash(number uint64) (common.Hash, error) {
	val, err := s.dbGet(canonicalKey(number))
	if err != nil {
		return common.Hash{}, mapError(err, "Canonical", strconv.FormatUint(number, 10))
	}
	return common.BytesToHash(val), nil
}

// SetCanonicalHash implements the Store interface.
func (s *BadgerStore) SetCanonicalHash(number uint64, hash common.Hash) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(canonicalKey(number), hash.Bytes())
	})
}

// DeleteCanonicalHash implements the Store interface.
func (s *BadgerStore) DeleteCanonicalHash(number uint64) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(canonicalKey(number))
	})
}

// GetHead implements the Store interface.
func (s *BadgerStore) GetHead() (Head, error) {
	var head Head

	val, err := s.dbGet([]byte(headKey))
	if err != nil {
		if isDBKeyNotFound(err) {
			return head, cm.NewStoreErr("Head", cm.Empty, "")
		}
		return head, err
	}

	dec := codec.NewDecoder(bytes.NewBuffer(val), new(codec.JsonHandle))
	if err := dec.Decode(&head); err != nil {
		return head, err
	}
	return head, nil
}

// SetHead implements the Store interface.
func (s *BadgerStore) SetHead(head Head) error {
	var b bytes.Buffer
	enc := codec.NewEncoder(&b, new(codec.JsonHandle))
	if err := enc.Encode(head); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(headKey), b.Bytes())
	})
}

// Close implements the Store interface.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

//++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++
//DB Methods

func (s *BadgerStore) dbGet(key []byte) ([]byte, error) {
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	return val, err
}

func isDBKeyNotFound(err error) bool {
	return err != nil && err.Error() == badger.ErrKeyNotFound.Error()
}

func mapError(err error, name, key string) error {
	if isDBKeyNotFound(err) {
		return cm.NewStoreErr(name, cm.KeyNotFound, key)
	}
	return err
}
