package net

import (
	"testing"
	"time"

	"github.com/puffscoin/puffsd/src/chain"
	"github.com/puffscoin/puffsd/src/common"
	"github.com/puffscoin/puffsd/src/peer"
	"github.com/puffscoin/puffsd/src/protocol"
	"github.com/stretchr/testify/require"
)

func newTestChain(t *testing.T) *chain.Blockchain {
	bc, err := chain.NewBlockchain(chain.NewInmemStore(), chain.DefaultGenesisBlock(), chain.DefaultNetworkID, 16, common.NewTestEntry(t))
	require.NoError(t, err)
	require.NoError(t, bc.Open())
	for _, b := range chain.GenerateChain(bc.Genesis(), 2) {
		require.NoError(t, bc.InsertBlock(b))
	}
	return bc
}

func puffsOnly(c chain.Chain) []protocol.Protocol {
	return []protocol.Protocol{protocol.NewPuffsProtocol(c, time.Second)}
}

func allProtocols(c chain.Chain) []protocol.Protocol {
	return []protocol.Protocol{
		protocol.NewPuffsProtocol(c, time.Second),
		protocol.NewLesProtocol(c, nil, time.Second),
	}
}

// disconnectOnCleanup tears the peers down and waits for their event streams
// to close before the test returns.
func disconnectOnCleanup(t *testing.T, peers ...*peer.Peer) {
	t.Cleanup(func() {
		for _, p := range peers {
			p.Disconnect("test done")
		}
		for _, p := range peers {
			for range p.Events() {
			}
		}
	})
}

// servePuffsHeaders answers every puffs GetBlockHeaders on p from c.
func servePuffsHeaders(p *peer.Peer, c chain.Chain) {
	go func() {
		for ev := range p.Events() {
			if ev.Err != nil || ev.Message.Name != "GetBlockHeaders" {
				continue
			}
			q := ev.Message.Data.(protocol.GetBlockHeadersData)
			headers, _ := c.GetHeaders(q.Origin, q.Amount, q.Skip, q.Reverse)
			puffs, _ := p.Puffs()
			puffs.BlockHeaders(headers)
		}
	}()
}

func nextPeer(t *testing.T, ch <-chan *peer.Peer) *peer.Peer {
	select {
	case p := <-ch:
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("no inbound peer")
	}
	return nil
}
