package flowcontrol

import (
	"math"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/puffscoin/puffsd/src/common"
	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1500000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func smallParams() Params {
	return Params{
		BufferLimit:     big.NewInt(10000),
		MaxRechargeRate: big.NewInt(1),
		Costs: map[string]Cost{
			"GetBlockHeaders": {Base: 1000, PerUnit: 1000},
		},
	}
}

func assertBV(t *testing.T, want int64, got *big.Int) {
	t.Helper()
	assert.Equal(t, 0, got.Cmp(big.NewInt(want)), "want %d, got %s", want, got)
}

func TestDefaultRequest(t *testing.T) {
	fc := New(Params{}, newFakeClock(), common.NewTestEntry(t))

	bv := fc.HandleRequest("peer0", "GetBlockHeaders", 2)
	assertBV(t, DefaultBufferLimit-3000, bv)
}

func TestDebitDenyRecharge(t *testing.T) {
	clock := newFakeClock()
	fc := New(smallParams(), clock, common.NewTestEntry(t))

	assertBV(t, 4000, fc.HandleRequest("peer0", "GetBlockHeaders", 5))

	// denied, buffer untouched
	assertBV(t, -1, fc.HandleRequest("peer0", "GetBlockHeaders", 5))

	clock.Advance(1000 * time.Millisecond)
	assertBV(t, 0, fc.HandleRequest("peer0", "GetBlockHeaders", 4))
	assertBV(t, -1, fc.HandleRequest("peer0", "GetBlockHeaders", 0))

	clock.Advance(2 * time.Second)
	assertBV(t, 1000, fc.HandleRequest("peer0", "GetBlockHeaders", 0))

	// recharge is capped at BL
	clock.Advance(time.Hour)
	assertBV(t, 9000, fc.HandleRequest("peer0", "GetBlockHeaders", 0))

	// peers do not share buffers
	assertBV(t, 0, fc.HandleRequest("peer1", "GetBlockHeaders", 9))
}

func TestUnpricedMessage(t *testing.T) {
	fc := New(smallParams(), newFakeClock(), common.NewTestEntry(t))
	assertBV(t, 10000, fc.HandleRequest("peer0", "GetProofs", 100))
}

func TestLargeValues(t *testing.T) {
	bl := new(big.Int).Lsh(big.NewInt(1), 80)
	fc := New(Params{
		BufferLimit:     bl,
		MaxRechargeRate: big.NewInt(1),
		Costs:           map[string]Cost{"GetBlockHeaders": {Base: math.MaxUint64, PerUnit: math.MaxUint64}},
	}, newFakeClock(), common.NewTestEntry(t))

	bv := fc.HandleRequest("peer0", "GetBlockHeaders", 2)

	want := new(big.Int).SetUint64(math.MaxUint64)
	want.Mul(want, big.NewInt(3))
	want.Sub(bl, want)
	assert.Equal(t, 0, bv.Cmp(want))
}

func TestConcurrentRequests(t *testing.T) {
	fc := New(Params{
		BufferLimit:     big.NewInt(1000000),
		MaxRechargeRate: big.NewInt(0),
		Costs:           map[string]Cost{"GetBlockHeaders": {Base: 1000}},
	}, newFakeClock(), common.NewTestEntry(t))

	var wg sync.WaitGroup
	var mu sync.Mutex
	denied := 0

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if fc.HandleRequest("peer0", "GetBlockHeaders", 1).Sign() < 0 {
					mu.Lock()
					denied++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, denied)
	assertBV(t, -1, fc.HandleRequest("peer0", "GetBlockHeaders", 1))
}

func TestRemovePeer(t *testing.T) {
	fc := New(smallParams(), newFakeClock(), common.NewTestEntry(t))

	assertBV(t, 0, fc.HandleRequest("peer0", "GetBlockHeaders", 9))
	fc.RemovePeer("peer0")
	assertBV(t, 4000, fc.HandleRequest("peer0", "GetBlockHeaders", 5))
}

func TestClientTracking(t *testing.T) {
	clock := newFakeClock()
	fc := New(Params{}, clock, common.NewTestEntry(t))
	server := smallParams()

	// unknown server, full buffer assumed
	assert.Equal(t, uint64(9), fc.MaxRequestCount("server0", "GetBlockHeaders", server))

	fc.HandleReply("server0", big.NewInt(500))
	assert.Equal(t, uint64(0), fc.MaxRequestCount("server0", "GetBlockHeaders", server))

	clock.Advance(4500 * time.Millisecond)
	assert.Equal(t, uint64(4), fc.MaxRequestCount("server0", "GetBlockHeaders", server))

	assert.Equal(t, uint64(math.MaxUint64), fc.MaxRequestCount("server0", "GetProofs", server))
	assert.Equal(t, uint64(0), fc.MaxRequestCount("server0", "GetBlockHeaders", Params{}))
}
