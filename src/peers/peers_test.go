package peers

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/puffscoin/puffsd/src/crypto/keys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPeers(t *testing.T, n int) []*Peer {
	peers := make([]*Peer, 0, n)
	for i := 0; i < n; i++ {
		key, err := keys.GenerateECDSAKey()
		require.NoError(t, err)
		peers = append(peers, NewPeer(keys.NodeID(&key.PublicKey), fmt.Sprintf("addr%d", i), fmt.Sprintf("peer%d", i)))
	}
	return peers
}

func TestJSONPeers(t *testing.T) {
	store := NewJSONPeers(t.TempDir())

	// Try a read, should get nothing
	_, err := store.Peers()
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))

	peers := newTestPeers(t, 3)
	require.NoError(t, store.SetPeers(peers))

	// Try a read, should find 3 peers
	read, err := store.Peers()
	require.NoError(t, err)
	assert.Equal(t, peers, read)

	for _, p := range read {
		_, err := p.PublicKey()
		assert.NoError(t, err)
	}
}

func TestJSONPeersEmpty(t *testing.T) {
	store := NewJSONPeers(t.TempDir())
	require.NoError(t, os.WriteFile(store.Path(), nil, 0644))

	peers, err := store.Peers()
	require.NoError(t, err)
	assert.Nil(t, peers)
}

func TestJSONPeersNormalise(t *testing.T) {
	peers := newTestPeers(t, 1)
	id := peers[0].NodeID

	store := NewJSONPeers(t.TempDir())
	raw := fmt.Sprintf(`[{"NodeID": "%s", "NetAddr": "addr0"}]`, strings.ToUpper(strings.TrimPrefix(id, "0x")))
	require.NoError(t, os.WriteFile(store.Path(), []byte(raw), 0644))

	read, err := store.Peers()
	require.NoError(t, err)
	require.Len(t, read, 1)
	assert.Equal(t, id, read[0].NodeID)
	assert.Empty(t, read[0].Moniker)
}

func TestStaticPeers(t *testing.T) {
	store := &StaticPeers{}
	peers := newTestPeers(t, 2)

	require.NoError(t, store.SetPeers(peers))
	read, err := store.Peers()
	require.NoError(t, err)
	assert.Equal(t, peers, read)
}

func TestExcludePeer(t *testing.T) {
	peers := newTestPeers(t, 3)

	index, others := ExcludePeer(peers, strings.ToUpper(peers[1].NodeID))
	assert.Equal(t, 1, index)
	assert.Equal(t, []*Peer{peers[0], peers[2]}, others)

	index, others = ExcludePeer(peers, "0x00")
	assert.Equal(t, -1, index)
	assert.Len(t, others, 3)
}

func TestPublicKeyInvalid(t *testing.T) {
	_, err := NewPeer("0x1234", "addr", "").PublicKey()
	assert.Error(t, err)
}
