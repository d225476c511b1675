package service

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/puffscoin/puffsd/src/chain"
	"github.com/puffscoin/puffsd/src/flowcontrol"
	"github.com/puffscoin/puffsd/src/peer"
	"github.com/puffscoin/puffsd/src/protocol"
	"github.com/puffscoin/puffsd/src/synchronizer"
	"github.com/puffscoin/puffsd/src/types"
	"github.com/sirupsen/logrus"
)

// DefaultBanDuration is how long a peer violating flow control is refused.
const DefaultBanDuration = 300000 * time.Millisecond

var (
	// ErrNotLesServer is returned when a light request targets a peer that
	// does not serve les.
	ErrNotLesServer = errors.New("peer is not a les server")

	// ErrInsufficientBuffer is returned when a request would exceed the
	// estimated flow control buffer of the server.
	ErrInsufficientBuffer = errors.New("request exceeds server buffer")
)

// PeerPool is the registry the service adds peers to.
type PeerPool interface {
	Add(p *peer.Peer) error
	Remove(p *peer.Peer)
	Ban(p *peer.Peer, d time.Duration)
}

// Synchronizer receives block announcements.
type Synchronizer interface {
	Announced(hashes []protocol.BlockHashNumber, p *peer.Peer)
}

// forgetter is implemented by synchronizers that keep per-peer state.
type forgetter interface {
	Forget(peerID string)
}

// Config holds the collaborators and settings of a Service. Only Chain is
// required.
type Config struct {
	Chain        chain.Chain
	Pool         PeerPool
	Synchronizer Synchronizer
	Flow         *flowcontrol.FlowControl
	LightServ    bool
	Timeout      time.Duration
	BanDuration  time.Duration
	Logger       *logrus.Entry
}

// Service serves the puffs and les protocols to connected peers.
type Service struct {
	chain        chain.Chain
	pool         PeerPool
	synchronizer Synchronizer
	flow         *flowcontrol.FlowControl
	lightServ    bool
	banDuration  time.Duration
	protocols    []protocol.Protocol

	mu     sync.Mutex
	peers  map[*peer.Peer]struct{}
	wg     sync.WaitGroup
	closed bool

	logger *logrus.Entry
}

// NewService creates a Service. Missing collaborators get defaults: a pool
// of peer.DefaultMaxPeers, a fresh synchronizer and, for light serving, a
// flow control with default parameters.
func NewService(conf Config) *Service {
	logger := conf.Logger
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	if conf.Pool == nil {
		conf.Pool = peer.NewPool(peer.DefaultMaxPeers, logger)
	}
	if conf.Synchronizer == nil {
		conf.Synchronizer = synchronizer.NewSynchronizer(logger)
	}
	if conf.Flow == nil {
		conf.Flow = flowcontrol.New(flowcontrol.DefaultParams(), nil, logger)
	}
	if conf.BanDuration <= 0 {
		conf.BanDuration = DefaultBanDuration
	}

	s := &Service{
		chain:        conf.Chain,
		pool:         conf.Pool,
		synchronizer: conf.Synchronizer,
		flow:         conf.Flow,
		lightServ:    conf.LightServ,
		banDuration:  conf.BanDuration,
		peers:        make(map[*peer.Peer]struct{}),
		logger:       logger.WithField("component", "service"),
	}

	s.protocols = []protocol.Protocol{protocol.NewPuffsProtocol(conf.Chain, conf.Timeout)}
	if conf.LightServ {
		s.protocols = append(s.protocols, protocol.NewLesProtocol(conf.Chain, conf.Flow, conf.Timeout))
	}

	return s
}

// Protocols returns the protocols served to peers.
func (s *Service) Protocols() []protocol.Protocol {
	return s.protocols
}

// Flow returns the flow control shared by the les server and client sides.
func (s *Service) Flow() *flowcontrol.FlowControl {
	return s.flow
}

// Open opens every protocol, and with them the chain. It returns false when
// the protocols were already open.
func (s *Service) Open() (bool, error) {
	opened := false
	for _, p := range s.protocols {
		ok, err := p.Open()
		if err != nil {
			return false, errors.Wrapf(err, "opening %s", p.Name())
		}
		opened = opened || ok
	}
	return opened, nil
}

// AddPeer registers p with the pool and starts serving it. A peer the pool
// refuses is disconnected.
func (s *Service) AddPeer(p *peer.Peer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		p.Disconnect("service closed")
		return errors.New("service closed")
	}

	if err := s.pool.Add(p); err != nil {
		p.Disconnect(err.Error())
		return err
	}

	s.peers[p] = struct{}{}
	s.wg.Add(1)
	go s.consume(p)

	s.logger.WithFields(logrus.Fields{
		"peer":      p.ID,
		"protocols": p.Protocols(),
	}).Debug("Added peer")

	return nil
}

// consume handles the events of p until its event stream closes.
func (s *Service) consume(p *peer.Peer) {
	defer s.wg.Done()

	for ev := range p.Events() {
		if ev.Err != nil {
			s.logger.WithError(ev.Err).WithFields(logrus.Fields{
				"peer":     p.ID,
				"protocol": ev.Protocol,
			}).Debug("Peer error")
			continue
		}

		if err := s.handle(ev.Protocol, ev.Message, p); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"peer":    p.ID,
				"message": ev.Message.Name,
			}).Error("Handling message")
		}
	}

	s.pool.Remove(p)
	s.flow.RemovePeer(p.ID)
	if f, ok := s.synchronizer.(forgetter); ok {
		f.Forget(p.ID)
	}

	s.mu.Lock()
	delete(s.peers, p)
	s.mu.Unlock()

	s.logger.WithField("peer", p.ID).Debug("Peer gone")
}

func (s *Service) handle(name string, m protocol.Message, p *peer.Peer) error {
	switch name {
	case protocol.PuffsName:
		return s.handlePuffs(m, p)
	case protocol.LesName:
		return s.handleLes(m, p)
	}
	return nil
}

func (s *Service) handlePuffs(m protocol.Message, p *peer.Peer) error {
	puffs, _ := p.Puffs()

	switch data := m.Data.(type) {
	case protocol.GetBlockHeadersData:
		headers, err := s.chain.GetHeaders(data.Origin, data.Amount, data.Skip, data.Reverse)
		if err != nil {
			return err
		}
		return puffs.BlockHeaders(headers)
	case []common.Hash:
		return puffs.BlockBodies(s.bodies(data))
	case []protocol.BlockHashNumber:
		s.synchronizer.Announced(data, p)
	}
	return nil
}

func (s *Service) handleLes(m protocol.Message, p *peer.Peer) error {
	if !s.lightServ {
		return nil
	}

	les, _ := p.Les()

	switch data := m.Data.(type) {
	case protocol.GetBlockHeadersPacket:
		bv, ok := s.admit(p, m.Name, data.Query.Amount)
		if !ok {
			return nil
		}
		q := data.Query
		headers, err := s.chain.GetHeaders(q.Origin, q.Amount, q.Skip, q.Reverse)
		if err != nil {
			return err
		}
		return les.BlockHeaders(protocol.BlockHeadersPacket{ReqID: data.ReqID, BV: bv, Headers: headers})
	case protocol.GetBlockBodiesPacket:
		bv, ok := s.admit(p, m.Name, uint64(len(data.Hashes)))
		if !ok {
			return nil
		}
		return les.BlockBodies(protocol.BlockBodiesPacket{ReqID: data.ReqID, BV: bv, Bodies: s.bodies(data.Hashes)})
	}
	return nil
}

// admit debits the cost of a request. A peer that cannot pay is banned and
// gets no reply.
func (s *Service) admit(p *peer.Peer, name string, quantity uint64) (*big.Int, bool) {
	bv := s.flow.HandleRequest(p.ID, name, quantity)
	if bv.Sign() < 0 {
		s.logger.WithField("peer", p.ID).Debug("Dropping peer for violating flow control")
		s.pool.Ban(p, s.banDuration)
		return nil, false
	}
	return bv, true
}

// bodies returns the bodies of the known blocks among hashes, in order.
func (s *Service) bodies(hashes []common.Hash) []*types.Body {
	bodies := make([]*types.Body, 0, len(hashes))
	for _, h := range hashes {
		block, err := s.chain.GetBlock(h)
		if err != nil {
			continue
		}
		bodies = append(bodies, block.Body())
	}
	return bodies
}

// RequestLesHeaders fetches headers from a les server, staying within the
// buffer the server is estimated to hold, and records the buffer value it
// reports back.
func (s *Service) RequestLesHeaders(ctx context.Context, p *peer.Peer, query protocol.GetBlockHeadersData) ([]*types.Header, error) {
	les, ok := p.Les()
	if !ok || les.Status() == nil || !les.Status().IsServer() {
		return nil, errors.Wrap(ErrNotLesServer, p.ID)
	}

	limit := s.flow.MaxRequestCount(p.ID, "GetBlockHeaders", les.Status().ServerParams())
	if query.Amount > limit {
		return nil, errors.Wrapf(ErrInsufficientBuffer, "%d headers, room for %d", query.Amount, limit)
	}

	packet, err := les.GetBlockHeaders(ctx, 0, query)
	if err != nil {
		return nil, err
	}
	if packet.BV != nil {
		s.flow.HandleReply(p.ID, packet.BV)
	}
	return packet.Headers, nil
}

// Close disconnects every peer and waits for their consumers to return.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	peers := make([]*peer.Peer, 0, len(s.peers))
	for p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	for _, p := range peers {
		p.Disconnect("service closed")
	}
	s.wg.Wait()
}
