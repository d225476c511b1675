package chain

import (
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	cm "github.com/puffscoin/puffsd/src/common"
	"github.com/puffscoin/puffsd/src/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadgerStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "badger_db")

	store, err := NewBadgerStore(path, cm.NewTestEntry(t))
	require.NoError(t, err)

	_, err = store.GetHead()
	assert.True(t, cm.IsStore(err, cm.Empty))

	bc, blocks := initBlockchain(t, store, 3)
	head := bc.CurrentBlock().Hash()
	require.NoError(t, bc.Close())

	// reload from disk
	store, err = NewBadgerStore(path, cm.NewTestEntry(t))
	require.NoError(t, err)
	defer store.Close()

	bc, err = NewBlockchain(store, DefaultGenesisBlock(), DefaultNetworkID, 100, cm.NewTestEntry(t))
	require.NoError(t, err)
	require.NoError(t, bc.Open())

	assert.Equal(t, head, bc.CurrentBlock().Hash())
	assert.Equal(t, blocks[2].Hash(), head)

	headers, err := bc.GetHeaders(types.ByNumber(1), 3, 0, false)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, numbers(headers))

	td, err := store.GetTd(head)
	require.NoError(t, err)
	assert.Equal(t, 0, td.Cmp(bc.BlockTd()))

	_, err = store.GetBlock(common.HexToHash("0x02"))
	assert.True(t, cm.IsStore(err, cm.KeyNotFound))
}
