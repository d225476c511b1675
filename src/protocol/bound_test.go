package protocol

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/puffscoin/puffsd/src/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNegotiate(t *testing.T) {
	v, ok := negotiate([]uint{2, 1}, []uint{2})
	assert.True(t, ok)
	assert.Equal(t, uint(2), v)

	v, ok = negotiate([]uint{63, 62}, []uint{62, 61, 63})
	assert.True(t, ok)
	assert.Equal(t, uint(63), v)

	_, ok = negotiate([]uint{1}, []uint{2})
	assert.False(t, ok)
}

func TestBindVersions(t *testing.T) {
	c := newTestChain()

	local := versioned{NewLesProtocol(c, nil, time.Second), []uint{1, 2}}
	remote := versioned{NewLesProtocol(c, nil, time.Second), []uint{2}}

	lb, rb, _, _ := mustBindPair(t, local, remote)
	assert.Equal(t, uint(2), lb.Version())
	assert.Equal(t, uint(2), rb.Version())

	local = versioned{NewLesProtocol(c, nil, time.Second), []uint{1}}
	_, _, _, _, lerr, rerr := bindPair(t, local, remote)
	assert.True(t, IsErr(lerr, VersionMismatch), "err: %v", lerr)
	assert.True(t, IsErr(rerr, VersionMismatch), "err: %v", rerr)
}

func TestBindStatus(t *testing.T) {
	c := newTestChain()
	lb, _, _, _ := mustBindPair(t, NewPuffsProtocol(c, 0), NewPuffsProtocol(c, 0))

	status := PuffsBinding{lb}.Status()
	require.NotNil(t, status)
	assert.Equal(t, c.head.Hash(), status.BestHash)
	assert.Equal(t, uint(63), lb.Version())
	assert.Equal(t, "remote", lb.PeerID())
}

func TestHandshakeTimeout(t *testing.T) {
	a, _ := newTestPipe()

	start := time.Now()
	_, err := Bind(context.Background(), NewPuffsProtocol(newTestChain(), 50*time.Millisecond), "remote", a, nil)
	assert.True(t, IsErr(err, HandshakeTimeout), "err: %v", err)
	assert.True(t, time.Since(start) >= 50*time.Millisecond)
}

func TestHandshakeDisconnect(t *testing.T) {
	a, b := newTestPipe()
	b.Close()

	_, err := Bind(context.Background(), NewPuffsProtocol(newTestChain(), time.Second), "remote", a, nil)
	assert.Error(t, err)
}

func TestRequestTimeout(t *testing.T) {
	c := newTestChain()
	lb, _, _, _ := mustBindPair(t, NewPuffsProtocol(c, 100*time.Millisecond), NewPuffsProtocol(c, 0))

	_, err := PuffsBinding{lb}.GetBlockHeaders(context.Background(), GetBlockHeadersData{Origin: types.ByNumber(1), Amount: 2})
	assert.True(t, IsErr(err, RequestTimeout), "err: %v", err)
	assert.Equal(t, 0, lb.Pending())

	// the slot is free again
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = PuffsBinding{lb}.GetBlockHeaders(ctx, GetBlockHeadersData{Origin: types.ByNumber(1), Amount: 2})
	assert.True(t, IsErr(err, RequestTimeout), "err: %v", err)
	assert.Equal(t, 0, lb.Pending())

	// nothing left to fail on disconnect
	require.NoError(t, lb.Close())
	assert.Equal(t, 0, lb.Pending())
}

func TestDuplicateOutstandingRequest(t *testing.T) {
	c := newTestChain()
	lb, _, _, _ := mustBindPair(t, NewPuffsProtocol(c, time.Second), NewPuffsProtocol(c, 0))

	first := make(chan error, 1)
	go func() {
		_, err := lb.Request(context.Background(), "GetBlockHeaders", GetBlockHeadersData{Amount: 1})
		first <- err
	}()

	require.Eventually(t, func() bool { return lb.Pending() == 1 }, time.Second, time.Millisecond)

	_, err := lb.Request(context.Background(), "GetBlockHeaders", GetBlockHeadersData{Amount: 1})
	assert.True(t, IsErr(err, DuplicateOutstandingRequest), "err: %v", err)

	// a different response code has its own slot
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = lb.Request(ctx, "GetBlockBodies", []common.Hash{})
	assert.True(t, IsErr(err, RequestTimeout), "err: %v", err)

	require.NoError(t, lb.Close())
	assert.True(t, IsErr(<-first, DisconnectedWhilePending))
}

func TestPuffsRequestResponse(t *testing.T) {
	c := newTestChain()
	lb, rb, _, _ := mustBindPair(t, NewPuffsProtocol(c, time.Second), NewPuffsProtocol(c, 0))

	header := &types.Header{Number: big.NewInt(9)}

	go func() {
		m := <-rb.Messages()
		if m.Name == "GetBlockHeaders" {
			PuffsBinding{rb}.BlockHeaders([]*types.Header{header})
		}
	}()

	headers, err := PuffsBinding{lb}.GetBlockHeaders(context.Background(), GetBlockHeadersData{Origin: types.ByNumber(9), Amount: 1})
	require.NoError(t, err)
	require.Len(t, headers, 1)
	assert.Equal(t, header.Hash(), headers[0].Hash())
	assert.Equal(t, 0, lb.Pending())
}

func TestLesRequestIDs(t *testing.T) {
	c := newTestChain()
	lb, rb, _, _ := mustBindPair(t, NewLesProtocol(c, nil, time.Second), NewLesProtocol(c, nil, 0))

	// answer the two requests in reverse order
	go func() {
		var reqs []GetBlockHeadersPacket
		for len(reqs) < 2 {
			m := <-rb.Messages()
			reqs = append(reqs, m.Data.(GetBlockHeadersPacket))
		}
		for i := len(reqs) - 1; i >= 0; i-- {
			LesBinding{rb}.BlockHeaders(BlockHeadersPacket{
				ReqID:   reqs[i].ReqID,
				BV:      new(big.Int).SetUint64(reqs[i].ReqID * 100),
				Headers: []*types.Header{},
			})
		}
	}()

	type res struct {
		packet *BlockHeadersPacket
		err    error
	}
	results := make(chan res, 2)
	for i := 0; i < 2; i++ {
		go func() {
			p, err := LesBinding{lb}.GetBlockHeaders(context.Background(), 0, GetBlockHeadersData{Amount: 1})
			results <- res{p, err}
		}()
	}

	ids := map[uint64]bool{}
	for i := 0; i < 2; i++ {
		r := <-results
		require.NoError(t, r.err)
		ids[r.packet.ReqID] = true
		assert.Equal(t, 0, r.packet.BV.Cmp(new(big.Int).SetUint64(r.packet.ReqID*100)))
	}
	assert.Equal(t, map[uint64]bool{1: true, 2: true}, ids)
}

func TestLesDuplicateRequestID(t *testing.T) {
	c := newTestChain()
	lb, _, _, _ := mustBindPair(t, NewLesProtocol(c, nil, time.Second), NewLesProtocol(c, nil, 0))

	go lb.Request(context.Background(), "GetBlockHeaders", GetBlockHeadersPacket{ReqID: 1})
	require.Eventually(t, func() bool { return lb.Pending() == 1 }, time.Second, time.Millisecond)

	_, err := lb.Request(context.Background(), "GetBlockHeaders", GetBlockHeadersPacket{ReqID: 1})
	assert.True(t, IsErr(err, DuplicateOutstandingRequest), "err: %v", err)

	// allocated ids skip the one in use
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = lb.Request(ctx, "GetBlockHeaders", GetBlockHeadersPacket{})
	assert.True(t, IsErr(err, RequestTimeout), "err: %v", err)
}

func TestUnsolicitedAndInvalidFrames(t *testing.T) {
	c := newTestChain()
	lb, rb, _, b := mustBindPair(t, NewPuffsProtocol(c, time.Second), NewPuffsProtocol(c, 0))

	// unknown code, then garbage for a known code, then a valid message
	require.NoError(t, b.Send(0x7f, []byte{0xc0}))
	require.NoError(t, b.Send(BlockHeadersMsg, []byte{0x01, 0x02}))
	require.NoError(t, PuffsBinding{rb}.NewBlockHashes([]BlockHashNumber{{Number: big.NewInt(2)}}))

	err := <-lb.Errors()
	assert.True(t, IsErr(err, UnknownCode), "err: %v", err)
	err = <-lb.Errors()
	assert.True(t, IsErr(err, DecodeError), "err: %v", err)

	m := <-lb.Messages()
	assert.Equal(t, "NewBlockHashes", m.Name)
	assert.Equal(t, uint64(NewBlockHashesMsg), m.Code)
	hashes := m.Data.([]BlockHashNumber)
	require.Len(t, hashes, 1)
	assert.Equal(t, 0, hashes[0].Number.Cmp(big.NewInt(2)))
}

func TestLesUndecodableResponse(t *testing.T) {
	c := newTestChain()
	lb, _, _, b := mustBindPair(t, NewLesProtocol(c, nil, 5*time.Second), NewLesProtocol(c, nil, 0))

	errs := make(chan error, 4)
	request := func() {
		_, err := LesBinding{lb}.GetBlockHeaders(context.Background(), 0, GetBlockHeadersData{Amount: 1})
		errs <- err
	}
	waitErr := func() error {
		select {
		case err := <-errs:
			return err
		case <-time.After(time.Second):
			t.Fatal("request still pending")
			return nil
		}
	}

	// the id leads the payload but the buffer value is a list
	go request()
	require.Eventually(t, func() bool { return lb.Pending() == 1 }, time.Second, time.Millisecond)

	payload, err := rlp.EncodeToBytes([]interface{}{uint64(1), []uint{}, uint64(5)})
	require.NoError(t, err)
	require.NoError(t, b.Send(LesBlockHeadersMsg, payload))

	err = waitErr()
	assert.True(t, IsErr(err, DecodeError), "err: %v", err)
	err = <-lb.Errors()
	assert.True(t, IsErr(err, DecodeError), "err: %v", err)
	assert.Equal(t, 0, lb.Pending())

	// no id at all fails the only request waiting on the code
	go request()
	require.Eventually(t, func() bool { return lb.Pending() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, b.Send(LesBlockHeadersMsg, []byte{0x01, 0x02}))

	err = waitErr()
	assert.True(t, IsErr(err, DecodeError), "err: %v", err)
	<-lb.Errors()
	assert.Equal(t, 0, lb.Pending())

	// with several waiting the frame answers none of them
	go request()
	go request()
	require.Eventually(t, func() bool { return lb.Pending() == 2 }, time.Second, time.Millisecond)

	require.NoError(t, b.Send(LesBlockHeadersMsg, []byte{0x01, 0x02}))

	err = <-lb.Errors()
	assert.True(t, IsErr(err, DecodeError), "err: %v", err)
	assert.Equal(t, 2, lb.Pending())
}

func TestFramesDrainedOnClose(t *testing.T) {
	c := newTestChain()
	lb, rb, _, _ := mustBindPair(t, NewLesProtocol(c, nil, time.Second), NewLesProtocol(c, nil, 0))

	require.NoError(t, LesBinding{rb}.Announce(AnnounceData{}))
	require.NoError(t, rb.Close())

	<-lb.Done()

	m, ok := <-lb.Messages()
	require.True(t, ok)
	assert.Equal(t, "Announce", m.Name)

	_, ok = <-lb.Messages()
	assert.False(t, ok)
}

func TestCallerErrors(t *testing.T) {
	c := newTestChain()
	lb, _, _, _ := mustBindPair(t, NewPuffsProtocol(c, time.Second), NewPuffsProtocol(c, 0))

	_, err := lb.Request(context.Background(), "Nope", nil)
	assert.True(t, IsErr(err, UnknownMessage))

	_, err = lb.Request(context.Background(), "NewBlockHashes", []BlockHashNumber{})
	assert.True(t, IsErr(err, NoResponse))

	res, err := lb.Call(context.Background(), "NewBlockHashes", []BlockHashNumber{})
	assert.NoError(t, err)
	assert.Nil(t, res)
}

func TestDisconnect(t *testing.T) {
	c := newTestChain()
	lb, rb, _, _ := mustBindPair(t, NewLesProtocol(c, nil, 5*time.Second), NewLesProtocol(c, nil, 0))

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := LesBinding{lb}.GetBlockHeaders(context.Background(), 0, GetBlockHeadersData{Amount: 1})
			errs <- err
		}()
	}
	require.Eventually(t, func() bool { return lb.Pending() == 2 }, time.Second, time.Millisecond)

	// the remote end hangs up
	require.NoError(t, rb.Close())

	for i := 0; i < 2; i++ {
		err := <-errs
		assert.True(t, IsErr(err, DisconnectedWhilePending), "err: %v", err)
	}

	<-lb.Done()
	_, ok := <-lb.Messages()
	assert.False(t, ok)

	err := LesBinding{lb}.Announce(AnnounceData{})
	assert.True(t, IsErr(err, DisconnectedWhilePending), "err: %v", err)
}
