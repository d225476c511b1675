package protocol

import (
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/puffscoin/puffsd/src/chain"
	"github.com/puffscoin/puffsd/src/flowcontrol"
	"github.com/puffscoin/puffsd/src/types"
)

// LesName is the wire name of the light client protocol.
const LesName = "les"

// les message codes.
const (
	AnnounceMsg           = 0x01
	LesGetBlockHeadersMsg = 0x02
	LesBlockHeadersMsg    = 0x03
	LesGetBlockBodiesMsg  = 0x04
	LesBlockBodiesMsg     = 0x05
)

// AnnounceData announces a new head to light clients.
type AnnounceData struct {
	Hash       common.Hash
	Number     *big.Int
	Td         *big.Int
	ReorgDepth uint64
}

// GetBlockHeadersPacket is a header query tagged with a request id.
type GetBlockHeadersPacket struct {
	ReqID uint64
	Query GetBlockHeadersData
}

// RequestID implements the RequestIDCarrier interface.
func (p GetBlockHeadersPacket) RequestID() uint64 { return p.ReqID }

// WithRequestID implements the RequestIDAssigner interface.
func (p GetBlockHeadersPacket) WithRequestID(id uint64) interface{} {
	p.ReqID = id
	return p
}

// BlockHeadersPacket answers a GetBlockHeadersPacket. BV is the server's buffer
// value after serving the request.
type BlockHeadersPacket struct {
	ReqID   uint64
	BV      *big.Int
	Headers []*types.Header
}

// RequestID implements the RequestIDCarrier interface.
func (p BlockHeadersPacket) RequestID() uint64 { return p.ReqID }

// GetBlockBodiesPacket is a body query tagged with a request id.
type GetBlockBodiesPacket struct {
	ReqID  uint64
	Hashes []common.Hash
}

// RequestID implements the RequestIDCarrier interface.
func (p GetBlockBodiesPacket) RequestID() uint64 { return p.ReqID }

// WithRequestID implements the RequestIDAssigner interface.
func (p GetBlockBodiesPacket) WithRequestID(id uint64) interface{} {
	p.ReqID = id
	return p
}

// BlockBodiesPacket answers a GetBlockBodiesPacket.
type BlockBodiesPacket struct {
	ReqID  uint64
	BV     *big.Int
	Bodies []*types.Body
}

// RequestID implements the RequestIDCarrier interface.
func (p BlockBodiesPacket) RequestID() uint64 { return p.ReqID }

var lesCatalog = NewCatalog(
	rlpEntry[AnnounceData]("Announce", AnnounceMsg, 0),
	rlpEntry[GetBlockHeadersPacket]("GetBlockHeaders", LesGetBlockHeadersMsg, LesBlockHeadersMsg),
	rlpEntry[BlockHeadersPacket]("BlockHeaders", LesBlockHeadersMsg, 0),
	rlpEntry[GetBlockBodiesPacket]("GetBlockBodies", LesGetBlockBodiesMsg, LesBlockBodiesMsg),
	rlpEntry[BlockBodiesPacket]("BlockBodies", LesBlockBodiesMsg, 0),
)

// mrcEntry is one row of the advertised cost table.
type mrcEntry struct {
	Code    uint64
	Base    uint64
	PerUnit uint64
}

// RemoteCost is a row of a server's cost table. Name is empty when the code is
// not defined in the local catalog.
type RemoteCost struct {
	Code    uint64
	Name    string
	Base    uint64
	PerUnit uint64
}

// LesStatus is the status announced by a les peer. The serving fields are only
// set when the peer is a light server.
type LesStatus struct {
	NetworkID   uint64
	HeadTd      *big.Int
	HeadHash    common.Hash
	HeadNum     *big.Int
	GenesisHash common.Hash

	ServeHeaders    bool
	ServeChainSince *big.Int
	ServeStateSince *big.Int
	TxRelay         bool
	BufferLimit     *big.Int
	MaxRechargeRate *big.Int
	Costs           []RemoteCost
}

// IsServer reports whether the peer serves light clients.
func (s *LesStatus) IsServer() bool {
	return s.ServeHeaders
}

// ServerParams returns the flow control parameters advertised by the server,
// indexed by message name. Rows with unknown codes are left out.
func (s *LesStatus) ServerParams() flowcontrol.Params {
	params := flowcontrol.Params{
		BufferLimit:     s.BufferLimit,
		MaxRechargeRate: s.MaxRechargeRate,
		Costs:           make(map[string]flowcontrol.Cost),
	}
	for _, c := range s.Costs {
		if c.Name != "" {
			params.Costs[c.Name] = flowcontrol.Cost{Base: c.Base, PerUnit: c.PerUnit}
		}
	}
	return params
}

// LesProtocol implements the les/1 and les/2 protocols. Without a FlowControl
// the node announces itself as a client and serves nothing.
type LesProtocol struct {
	base
	flow *flowcontrol.FlowControl
}

// NewLesProtocol creates the les protocol backed by c. flow may be nil. A zero
// timeout selects DefaultTimeout.
func NewLesProtocol(c chain.Chain, flow *flowcontrol.FlowControl, timeout time.Duration) *LesProtocol {
	p := &LesProtocol{flow: flow}
	p.init(c, timeout)
	return p
}

// Name implements the Protocol interface.
func (p *LesProtocol) Name() string {
	return LesName
}

// Versions implements the Protocol interface.
func (p *LesProtocol) Versions() []uint {
	return []uint{2, 1}
}

// Catalog implements the Protocol interface.
func (p *LesProtocol) Catalog() *Catalog {
	return lesCatalog
}

// Correlation implements the Protocol interface.
func (p *LesProtocol) Correlation() Correlation {
	return ByRequestID
}

// Flow returns the server flow control, nil when not serving.
func (p *LesProtocol) Flow() *flowcontrol.FlowControl {
	return p.flow
}

// EncodeStatus implements the Protocol interface. The serving keys are only
// included when a FlowControl is configured.
func (p *LesProtocol) EncodeStatus() (StatusList, error) {
	var (
		list StatusList
		err  error
	)

	add := func(key string, val interface{}) {
		if err == nil {
			list, err = list.Add(key, val)
		}
	}

	head := p.chain.CurrentHeader()

	add("networkId", p.chain.NetworkID())
	add("headTd", p.chain.HeaderTd())
	add("headHash", head.Hash())
	add("headNum", head.Number)
	add("genesisHash", p.chain.Genesis().Hash())

	if p.flow != nil {
		mrc, mrcErr := p.costTable()
		if mrcErr != nil {
			return nil, mrcErr
		}

		add("serveHeaders", uint64(1))
		add("serveChainSince", uint64(0))
		add("serveStateSince", uint64(0))
		add("txRelay", uint64(1))
		add("flowControl/BL", p.flow.BufferLimit())
		add("flowControl/MRR", p.flow.MaxRechargeRate())
		add("flowControl/MRC", mrc)
	}

	return list, err
}

// costTable lists the configured costs by code.
func (p *LesProtocol) costTable() ([]mrcEntry, error) {
	costs := p.flow.Params().Costs

	mrc := make([]mrcEntry, 0, len(costs))
	for name, c := range costs {
		e, ok := lesCatalog.ByName(name)
		if !ok {
			return nil, errors.Errorf("cost for unknown message %s", name)
		}
		mrc = append(mrc, mrcEntry{Code: e.Code, Base: c.Base, PerUnit: c.PerUnit})
	}
	sort.Slice(mrc, func(i, j int) bool { return mrc[i].Code < mrc[j].Code })

	return mrc, nil
}

// DecodeStatus implements the Protocol interface. It returns a *LesStatus.
func (p *LesProtocol) DecodeStatus(list StatusList) (interface{}, error) {
	m := list.Map()
	status := &LesStatus{
		HeadTd:  new(big.Int),
		HeadNum: new(big.Int),
	}

	if err := m.Get("networkId", &status.NetworkID); err != nil {
		return nil, err
	}
	if err := m.Get("headTd", status.HeadTd); err != nil {
		return nil, err
	}
	if err := m.Get("headHash", &status.HeadHash); err != nil {
		return nil, err
	}
	if err := m.Get("headNum", status.HeadNum); err != nil {
		return nil, err
	}
	if err := m.Get("genesisHash", &status.GenesisHash); err != nil {
		return nil, err
	}

	status.ServeHeaders = m.Has("serveHeaders")
	status.TxRelay = m.Has("txRelay")

	optional := []struct {
		key string
		dst **big.Int
	}{
		{"serveChainSince", &status.ServeChainSince},
		{"serveStateSince", &status.ServeStateSince},
		{"flowControl/BL", &status.BufferLimit},
		{"flowControl/MRR", &status.MaxRechargeRate},
	}
	for _, o := range optional {
		v := new(big.Int)
		ok, err := m.GetOptional(o.key, v)
		if err != nil {
			return nil, err
		}
		if ok {
			*o.dst = v
		}
	}

	var mrc []mrcEntry
	if _, err := m.GetOptional("flowControl/MRC", &mrc); err != nil {
		return nil, err
	}
	for _, e := range mrc {
		c := RemoteCost{Code: e.Code, Base: e.Base, PerUnit: e.PerUnit}
		if entry, ok := lesCatalog.ByCode(e.Code); ok {
			c.Name = entry.Name
		}
		status.Costs = append(status.Costs, c)
	}

	return status, nil
}
