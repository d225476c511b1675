package protocol

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/puffscoin/puffsd/src/chain"
	cm "github.com/puffscoin/puffsd/src/common"
	"github.com/puffscoin/puffsd/src/types"
	"github.com/stretchr/testify/require"
)

type testChain struct {
	opens   int32
	genesis *types.Block
	head    *types.Block
	td      *big.Int
}

func newTestChain() *testChain {
	genesis := chain.DefaultGenesisBlock()
	blocks := chain.GenerateChain(genesis.Header, 3)
	return &testChain{
		genesis: genesis,
		head:    blocks[2],
		td:      big.NewInt(4 * chain.DefaultDifficulty),
	}
}

func (c *testChain) Open() error {
	atomic.AddInt32(&c.opens, 1)
	return nil
}

func (c *testChain) NetworkID() uint64 { return chain.DefaultNetworkID }
func (c *testChain) Genesis() *types.Header { return c.genesis.Header }
func (c *testChain) CurrentHeader() *types.Header { return c.head.Header }
func (c *testChain) HeaderTd() *big.Int { return c.td }
func (c *testChain) CurrentBlock() *types.Block { return c.head }
func (c *testChain) BlockTd() *big.Int { return c.td }
func (c *testChain) GetBlock(common.Hash) (*types.Block, error) { return nil, errors.New("no blocks") }

func (c *testChain) GetHeaders(types.HashOrNumber, uint64, uint64, bool) ([]*types.Header, error) {
	return nil, errors.New("no headers")
}

var errPipeClosed = errors.New("pipe closed")

// testSender is one end of an in-memory pipe.
type testSender struct {
	frames chan Frame
	peer   *testSender
	done   chan struct{}
	once   *sync.Once
}

func newTestPipe() (*testSender, *testSender) {
	done := make(chan struct{})
	once := new(sync.Once)
	a := &testSender{frames: make(chan Frame, 64), done: done, once: once}
	b := &testSender{frames: make(chan Frame, 64), done: done, once: once}
	a.peer, b.peer = b, a
	return a, b
}

func (s *testSender) Send(code uint64, payload []byte) error {
	select {
	case <-s.done:
		return errPipeClosed
	case s.peer.frames <- Frame{Code: code, Payload: payload}:
		return nil
	}
}

func (s *testSender) Frames() <-chan Frame { return s.frames }
func (s *testSender) Done() <-chan struct{} { return s.done }
func (s *testSender) Err() error { return nil }

func (s *testSender) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// versioned overrides the versions of a protocol.
type versioned struct {
	Protocol
	versions []uint
}

func (v versioned) Versions() []uint { return v.versions }

type bindResult struct {
	bound *BoundProtocol
	err   error
}

// bindPair binds local and remote to the two ends of a pipe concurrently.
func bindPair(t *testing.T, local, remote Protocol) (*BoundProtocol, *BoundProtocol, *testSender, *testSender, error, error) {
	a, b := newTestPipe()

	ch := make(chan bindResult, 1)
	go func() {
		bound, err := Bind(context.Background(), remote, "local", b, cm.NewTestEntry(t))
		ch <- bindResult{bound, err}
	}()

	lb, lerr := Bind(context.Background(), local, "remote", a, cm.NewTestEntry(t))

	var r bindResult
	select {
	case r = <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("remote bind did not return")
	}

	return lb, r.bound, a, b, lerr, r.err
}

func mustBindPair(t *testing.T, local, remote Protocol) (*BoundProtocol, *BoundProtocol, *testSender, *testSender) {
	lb, rb, a, b, lerr, rerr := bindPair(t, local, remote)
	require.NoError(t, lerr)
	require.NoError(t, rerr)
	t.Cleanup(func() {
		lb.Close()
		rb.Close()
	})
	return lb, rb, a, b
}
