package net

import (
	"context"
	"crypto/rand"
	"fmt"
	"sort"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
	"github.com/puffscoin/puffsd/src/peer"
	"github.com/puffscoin/puffsd/src/protocol"
	"github.com/sirupsen/logrus"
)

// NewInmemAddr returns a new in-memory addr with
// a randomly generate UUID as the ID.
func NewInmemAddr() string {
	return generateUUID()
}

// generateUUID is used to generate a random UUID.
func generateUUID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Errorf("failed to read random bytes: %v", err))
	}

	return fmt.Sprintf("%08x-%04x-%04x-%04x-%12x",
		buf[0:4],
		buf[4:6],
		buf[6:8],
		buf[8:10],
		buf[10:16])
}

// InmemTransport implements the Transport interface, to allow nodes to be
// tested in-memory without going over a network. Each connection is a set of
// in-memory pipes, one per shared protocol.
type InmemTransport struct {
	sync.RWMutex
	nodeID    string
	localAddr string
	protocols []protocol.Protocol
	routes    map[string]*InmemTransport
	peerCh    chan *peer.Peer
	shutdown  bool
	logger    *logrus.Entry
}

// NewInmemTransport is used to initialize a new transport
// and generates a random local address if none is specified
func NewInmemTransport(addr, nodeID string, protocols []protocol.Protocol, logger *logrus.Entry) (string, *InmemTransport) {
	if addr == "" {
		addr = NewInmemAddr()
	}

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	trans := &InmemTransport{
		nodeID:    nodeID,
		localAddr: addr,
		protocols: protocols,
		routes:    make(map[string]*InmemTransport),
		peerCh:    make(chan *peer.Peer, 16),
		logger:    logger.WithField("transport", "inmem"),
	}
	return addr, trans
}

// Peers implements the Transport interface.
func (i *InmemTransport) Peers() <-chan *peer.Peer {
	return i.peerCh
}

// LocalAddr implements the Transport interface.
func (i *InmemTransport) LocalAddr() string {
	return i.localAddr
}

// AdvertiseAddr implements the Transport interface.
func (i *InmemTransport) AdvertiseAddr() string {
	return i.localAddr
}

// Listen is an empty function as there is no need to defer
// initialisation of the InMem service
func (i *InmemTransport) Listen() {
}

// Connect implements the Transport interface. The remote transport binds its
// side concurrently and delivers its peer on its Peers channel.
func (i *InmemTransport) Connect(ctx context.Context, addr string) (*peer.Peer, error) {
	i.RLock()
	target, ok := i.routes[addr]
	shutdown := i.shutdown
	i.RUnlock()

	if shutdown {
		return nil, ErrTransportShutdown
	}
	if !ok {
		return nil, errors.Errorf("failed to connect to peer: %v", addr)
	}
	if target.nodeID == i.nodeID {
		return nil, ErrSelfConnection
	}

	shared := sharedProtocols(i.protocols, target.protocolNames())
	if len(shared) == 0 {
		return nil, ErrNoSharedProtocol
	}

	local := make([]protocol.Sender, len(shared))
	remote := make([]protocol.Sender, len(shared))
	for k := range shared {
		a, b := NewInmemPipe(DefaultPipeBuffer)
		local[k], remote[k] = a, b
	}

	go target.accept(ctx, i.nodeID, i.localAddr, shared, remote)

	p := peer.NewPeer(target.nodeID, addr, "inmem", false, i.logger)
	if err := bindAll(ctx, p, i.protocols, shared, local); err != nil {
		return nil, err
	}
	return p, nil
}

func (i *InmemTransport) accept(ctx context.Context, nodeID, addr string, shared []string, senders []protocol.Sender) {
	p := peer.NewPeer(nodeID, addr, "inmem", true, i.logger)
	if err := bindAll(ctx, p, i.protocols, shared, senders); err != nil {
		i.logger.WithError(err).WithField("peer", nodeID).Debug("Inbound bind failed")
		return
	}

	i.RLock()
	shutdown := i.shutdown
	i.RUnlock()
	if shutdown {
		p.Disconnect("transport shutdown")
		return
	}

	select {
	case i.peerCh <- p:
	case <-ctx.Done():
		p.Disconnect("context done")
	}
}

func (i *InmemTransport) protocolNames() []string {
	return protocolNames(i.protocols)
}

// ConnectTransport is used to make another transport reachable at addr.
// This allows for local routing.
func (i *InmemTransport) ConnectTransport(addr string, t *InmemTransport) {
	i.Lock()
	defer i.Unlock()
	i.routes[addr] = t
}

// DisconnectTransport is used to remove the ability to route to a given
// address.
func (i *InmemTransport) DisconnectTransport(addr string) {
	i.Lock()
	defer i.Unlock()
	delete(i.routes, addr)
}

// Close is used to permanently disable the transport
func (i *InmemTransport) Close() error {
	i.Lock()
	defer i.Unlock()
	i.shutdown = true
	i.routes = make(map[string]*InmemTransport)
	return nil
}

func protocolNames(protocols []protocol.Protocol) []string {
	names := make([]string, 0, len(protocols))
	for _, p := range protocols {
		names = append(names, p.Name())
	}
	return names
}

// sharedProtocols returns the sorted names present on both sides.
func sharedProtocols(local []protocol.Protocol, remote []string) []string {
	shared := mapset.NewSet[string](protocolNames(local)...).Intersect(mapset.NewSet[string](remote...)).ToSlice()
	sort.Strings(shared)
	return shared
}

// bindAll binds the named protocols to p, in order, one sender each. Both ends
// of a connection bind in the same order. On failure the peer is disconnected.
func bindAll(ctx context.Context, p *peer.Peer, protocols []protocol.Protocol, names []string, senders []protocol.Sender) error {
	byName := make(map[string]protocol.Protocol, len(protocols))
	for _, proto := range protocols {
		byName[proto.Name()] = proto
	}

	for k, name := range names {
		if _, err := p.BindProtocol(ctx, byName[name], senders[k]); err != nil {
			for _, s := range senders[k+1:] {
				s.Close()
			}
			p.Disconnect(fmt.Sprintf("binding %s failed", name))
			return errors.Wrapf(err, "binding %s", name)
		}
	}
	return nil
}
