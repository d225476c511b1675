package flowcontrol

import (
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Default server parameters.
const (
	DefaultBufferLimit     = 300000000
	DefaultMaxRechargeRate = 10000
	DefaultBaseCost        = 1000
	DefaultPerUnitCost     = 1000
)

// Cost prices one message type.
type Cost struct {
	Base    uint64
	PerUnit uint64
}

// Params are the flow control parameters of a server. They are advertised
// verbatim in the les status.
type Params struct {
	BufferLimit     *big.Int
	MaxRechargeRate *big.Int
	Costs           map[string]Cost
}

// DefaultParams returns the parameters of a default light server.
func DefaultParams() Params {
	return Params{
		BufferLimit:     big.NewInt(DefaultBufferLimit),
		MaxRechargeRate: big.NewInt(DefaultMaxRechargeRate),
		Costs: map[string]Cost{
			"GetBlockHeaders": {Base: DefaultBaseCost, PerUnit: DefaultPerUnitCost},
			"GetBlockBodies":  {Base: DefaultBaseCost, PerUnit: DefaultPerUnitCost},
		},
	}
}

// cost returns base + perUnit*quantity. Messages missing from the table cost
// nothing.
func (p Params) cost(name string, quantity uint64) *big.Int {
	c, ok := p.Costs[name]
	if !ok {
		return new(big.Int)
	}
	res := new(big.Int).SetUint64(c.PerUnit)
	res.Mul(res, new(big.Int).SetUint64(quantity))
	return res.Add(res, new(big.Int).SetUint64(c.Base))
}

// recharge returns min(BL, bv + MRR*elapsed) with elapsed counted in
// milliseconds.
func (p Params) recharge(bv *big.Int, elapsed time.Duration) *big.Int {
	res := new(big.Int).Set(bv)
	if elapsed > 0 {
		inc := new(big.Int).Mul(p.MaxRechargeRate, big.NewInt(int64(elapsed)))
		inc.Div(inc, big.NewInt(int64(time.Millisecond)))
		res.Add(res, inc)
	}
	if res.Cmp(p.BufferLimit) > 0 {
		res.Set(p.BufferLimit)
	}
	return res
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type buffer struct {
	mu         sync.Mutex
	value      *big.Int
	lastUpdate time.Time
}

// FlowControl tracks token buffers: the buffers of the peers this node serves,
// and the last buffer values reported by the servers this node queries.
type FlowControl struct {
	params Params
	clock  Clock

	mu      sync.RWMutex
	peers   map[string]*buffer
	servers map[string]*buffer

	logger *logrus.Entry
}

// New creates a FlowControl with the given server parameters. Missing
// parameters take their default value. A nil clock selects the system clock.
func New(params Params, clock Clock, logger *logrus.Entry) *FlowControl {
	defaults := DefaultParams()
	if params.BufferLimit == nil {
		params.BufferLimit = defaults.BufferLimit
	}
	if params.MaxRechargeRate == nil {
		params.MaxRechargeRate = defaults.MaxRechargeRate
	}
	if params.Costs == nil {
		params.Costs = defaults.Costs
	}

	if clock == nil {
		clock = systemClock{}
	}

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &FlowControl{
		params:  params,
		clock:   clock,
		peers:   make(map[string]*buffer),
		servers: make(map[string]*buffer),
		logger:  logger.WithField("component", "flowcontrol"),
	}
}

// Params returns the server parameters.
func (f *FlowControl) Params() Params {
	return f.params
}

// BufferLimit returns BL.
func (f *FlowControl) BufferLimit() *big.Int {
	return new(big.Int).Set(f.params.BufferLimit)
}

// MaxRechargeRate returns MRR.
func (f *FlowControl) MaxRechargeRate() *big.Int {
	return new(big.Int).Set(f.params.MaxRechargeRate)
}

// getBuffer returns the buffer of id in m, creating a full one on first use.
func (f *FlowControl) getBuffer(m map[string]*buffer, id string, initial *big.Int) *buffer {
	f.mu.RLock()
	b, ok := m[id]
	f.mu.RUnlock()
	if ok {
		return b
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if b, ok := m[id]; ok {
		return b
	}
	b = &buffer{
		value:      new(big.Int).Set(initial),
		lastUpdate: f.clock.Now(),
	}
	m[id] = b
	return b
}

// HandleRequest prices a request of quantity units of the named message from
// peer and decides whether to serve it. If the recharged buffer covers the
// cost, the cost is debited and the remaining buffer value returned. Otherwise
// the returned value is negative and the buffer keeps its recharged value.
func (f *FlowControl) HandleRequest(peer string, name string, quantity uint64) *big.Int {
	b := f.getBuffer(f.peers, peer, f.params.BufferLimit)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := f.clock.Now()
	b.value = f.params.recharge(b.value, now.Sub(b.lastUpdate))
	b.lastUpdate = now

	cost := f.params.cost(name, quantity)
	if b.value.Cmp(cost) < 0 {
		f.logger.WithFields(logrus.Fields{
			"peer":     peer,
			"message":  name,
			"quantity": quantity,
			"cost":     cost,
			"bv":       b.value,
		}).Debug("Request exceeds buffer")
		return big.NewInt(-1)
	}

	b.value.Sub(b.value, cost)
	return new(big.Int).Set(b.value)
}

// HandleReply records the buffer value a server reported in a response.
func (f *FlowControl) HandleReply(server string, bv *big.Int) {
	b := f.getBuffer(f.servers, server, bv)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.value = new(big.Int).Set(bv)
	b.lastUpdate = f.clock.Now()
}

// MaxRequestCount estimates how many units of the named message the server
// would accept right now, given the parameters it advertised. A server that
// never replied is assumed to hold a full buffer.
func (f *FlowControl) MaxRequestCount(server string, name string, params Params) uint64 {
	if params.BufferLimit == nil || params.MaxRechargeRate == nil {
		return 0
	}

	f.mu.RLock()
	b, ok := f.servers[server]
	f.mu.RUnlock()

	ble := new(big.Int).Set(params.BufferLimit)
	if ok {
		b.mu.Lock()
		ble = params.recharge(b.value, f.clock.Now().Sub(b.lastUpdate))
		b.mu.Unlock()
	}

	cost, ok := params.Costs[name]
	if !ok {
		return math.MaxUint64
	}

	base := new(big.Int).SetUint64(cost.Base)
	if ble.Cmp(base) < 0 {
		return 0
	}
	if cost.PerUnit == 0 {
		return math.MaxUint64
	}

	n := ble.Sub(ble, base)
	n.Div(n, new(big.Int).SetUint64(cost.PerUnit))
	if !n.IsUint64() {
		return math.MaxUint64
	}
	return n.Uint64()
}

// RemovePeer forgets every buffer kept for id.
func (f *FlowControl) RemovePeer(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.peers, id)
	delete(f.servers, id)
}
