package synchronizer

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	cm "github.com/puffscoin/puffsd/src/common"
	"github.com/puffscoin/puffsd/src/peer"
	"github.com/puffscoin/puffsd/src/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func announce(n int64, b byte) protocol.BlockHashNumber {
	return protocol.BlockHashNumber{Hash: common.Hash{b}, Number: big.NewInt(n)}
}

func TestAnnounced(t *testing.T) {
	s := NewSynchronizer(cm.NewTestEntry(t))
	a := peer.NewPeer("a", "addr-a", "inmem", false, cm.NewTestEntry(t))
	b := peer.NewPeer("b", "addr-b", "inmem", false, cm.NewTestEntry(t))

	_, ok := s.Best()
	assert.False(t, ok)

	s.Announced([]protocol.BlockHashNumber{announce(3, 3), announce(5, 5), announce(4, 4)}, a)
	head, ok := s.Head("a")
	require.True(t, ok)
	assert.Equal(t, common.Hash{5}, head.Hash)
	assert.Equal(t, int64(5), head.Number.Int64())

	// lower announcements do not move the head back
	s.Announced([]protocol.BlockHashNumber{announce(2, 2)}, a)
	head, _ = s.Head("a")
	assert.Equal(t, int64(5), head.Number.Int64())

	s.Announced([]protocol.BlockHashNumber{announce(7, 7)}, b)
	best, ok := s.Best()
	require.True(t, ok)
	assert.Equal(t, "b", best.PeerID)
	assert.Equal(t, common.Hash{7}, best.Hash)

	s.Forget("b")
	best, _ = s.Best()
	assert.Equal(t, "a", best.PeerID)
}

func TestAnnouncedEmpty(t *testing.T) {
	s := NewSynchronizer(nil)
	a := peer.NewPeer("a", "", "inmem", false, nil)

	s.Announced(nil, a)
	s.Announced([]protocol.BlockHashNumber{{Hash: common.Hash{1}}}, a)

	_, ok := s.Head("a")
	assert.False(t, ok)
}

func TestBestTie(t *testing.T) {
	s := NewSynchronizer(nil)
	s.Announced([]protocol.BlockHashNumber{announce(9, 2)}, peer.NewPeer("z", "", "inmem", false, nil))
	s.Announced([]protocol.BlockHashNumber{announce(9, 1)}, peer.NewPeer("m", "", "inmem", false, nil))

	best, ok := s.Best()
	require.True(t, ok)
	assert.Equal(t, "m", best.PeerID)
}
