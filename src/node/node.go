package node

import (
	"context"
	"crypto/ecdsa"
	"os"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"github.com/puffscoin/puffsd/src/chain"
	"github.com/puffscoin/puffsd/src/common"
	"github.com/puffscoin/puffsd/src/config"
	"github.com/puffscoin/puffsd/src/crypto/keys"
	"github.com/puffscoin/puffsd/src/flowcontrol"
	"github.com/puffscoin/puffsd/src/net"
	"github.com/puffscoin/puffsd/src/peer"
	"github.com/puffscoin/puffsd/src/peers"
	"github.com/puffscoin/puffsd/src/protocol"
	"github.com/puffscoin/puffsd/src/service"
	"github.com/puffscoin/puffsd/src/synchronizer"
	"github.com/sirupsen/logrus"
)

// ErrStopped is returned by Open and Start once the node has been stopped.
var ErrStopped = errors.New("node stopped")

// TransportFactory creates the transport of a node once its protocols are
// known.
type TransportFactory func(key *ecdsa.PrivateKey, protocols []protocol.Protocol) (net.Transport, error)

// TCPTransportFactory returns a factory creating a TCP transport from the
// network settings of conf.
func TCPTransportFactory(conf *config.Config) TransportFactory {
	return func(key *ecdsa.PrivateKey, protocols []protocol.Protocol) (net.Transport, error) {
		return net.NewTCPTransport(
			conf.BindAddr,
			conf.AdvertiseAddr,
			key,
			protocols,
			conf.HandshakeTimeout,
			conf.Logger(),
		)
	}
}

// Node ties a chain, the protocol service and a transport together.
type Node struct {
	state

	conf   *config.Config
	logger *logrus.Entry

	newTransport TransportFactory

	mu           sync.Mutex
	id           string
	chain        *chain.Blockchain
	pool         *peer.Pool
	synchronizer *synchronizer.Synchronizer
	service      *service.Service
	trans        net.Transport

	shutdownCh chan struct{}
}

// NewNode is a factory method that returns a Node instance. A nil factory
// selects the TCP transport.
func NewNode(conf *config.Config, factory TransportFactory) *Node {
	if factory == nil {
		factory = TCPTransportFactory(conf)
	}

	return &Node{
		conf:         conf,
		logger:       conf.Logger(),
		newTransport: factory,
		shutdownCh:   make(chan struct{}),
	}
}

// Open loads the node key, the chain and the service, and creates the
// transport. It returns false when the node was already open.
func (n *Node) Open() (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.getState() {
	case Stopped:
		return false, ErrStopped
	case Opened, Running:
		return false, nil
	}

	if err := n.initKey(); err != nil {
		return false, errors.Wrap(err, "loading node key")
	}
	n.id = keys.NodeID(&n.conf.Key.PublicKey)
	n.logger = n.logger.WithField("this_id", common.ShortID(n.id))

	if err := n.initChain(); err != nil {
		return false, errors.Wrap(err, "loading chain")
	}

	n.pool = peer.NewPool(n.conf.MaxPeers, n.logger)
	n.synchronizer = synchronizer.NewSynchronizer(n.logger)
	n.service = service.NewService(service.Config{
		Chain:        n.chain,
		Pool:         n.pool,
		Synchronizer: n.synchronizer,
		Flow:         flowcontrol.New(n.conf.FlowParams(), nil, n.logger),
		LightServ:    n.conf.LightServ,
		Timeout:      n.conf.RequestTimeout,
		BanDuration:  n.conf.BanDuration,
		Logger:       n.logger,
	})

	if _, err := n.service.Open(); err != nil {
		n.chain.Close()
		return false, err
	}

	trans, err := n.newTransport(n.conf.Key, n.service.Protocols())
	if err != nil {
		n.service.Close()
		n.chain.Close()
		return false, errors.Wrap(err, "creating transport")
	}
	n.trans = trans

	n.setState(Opened)

	n.logger.WithFields(logrus.Fields{
		"addr":      trans.AdvertiseAddr(),
		"protocols": len(n.service.Protocols()),
		"head":      n.chain.CurrentHeader().Number,
	}).Info("Node opened")

	return true, nil
}

func (n *Node) initKey() error {
	if n.conf.Key != nil {
		return nil
	}

	keyfile := keys.NewSimpleKeyfile(n.conf.Keyfile())

	key, err := keyfile.ReadKey()
	if err != nil {
		n.logger.WithError(err).Warn("Cannot read private key from file")

		key, err = keys.GenerateECDSAKey()
		if err != nil {
			return err
		}

		if err := keyfile.WriteKey(key); err != nil {
			return err
		}

		n.logger.WithField("id", keys.NodeID(&key.PublicKey)).Info("Created a new key")
	}

	n.conf.Key = key
	return nil
}

func (n *Node) initChain() error {
	var store chain.Store

	if !n.conf.Store {
		store = chain.NewInmemStore()
		n.logger.Debug("created new in-mem store")
	} else {
		n.logger.WithField("path", n.conf.DatabaseDir).Debug("Attempting to load or create database")

		badgerStore, err := chain.NewBadgerStore(n.conf.DatabaseDir, n.logger)
		if err != nil {
			return err
		}
		store = badgerStore
	}

	bc, err := chain.NewBlockchain(store, chain.DefaultGenesisBlock(), n.conf.NetworkID, n.conf.CacheSize, n.logger)
	if err != nil {
		store.Close()
		return err
	}

	if err := bc.Open(); err != nil {
		bc.Close()
		return err
	}

	n.chain = bc
	return nil
}

// Start opens the node if needed, starts the transport listener, forwards
// accepted peers to the service and dials the bootnodes. It returns false when
// the node was already running.
func (n *Node) Start() (bool, error) {
	if _, err := n.Open(); err != nil {
		return false, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.getState() != Opened {
		return false, nil
	}

	go n.trans.Listen()
	n.goFunc(n.acceptPeers)

	for _, addr := range n.conf.Bootnodes {
		addr := addr
		n.goFunc(func() { n.dial(addr, "") })
	}

	known := n.knownPeers()
	for _, p := range known {
		p := p
		n.goFunc(func() { n.dial(p.NetAddr, p.NodeID) })
	}

	n.setState(Running)
	n.logger.WithFields(logrus.Fields{
		"bootnodes": len(n.conf.Bootnodes),
		"known":     len(known),
	}).Info("Node started")

	return true, nil
}

func (n *Node) acceptPeers() {
	for {
		select {
		case p := <-n.trans.Peers():
			if err := n.service.AddPeer(p); err != nil {
				n.logger.WithError(err).WithField("peer", p.ID).Debug("Refused inbound peer")
			}
		case <-n.shutdownCh:
			return
		}
	}
}

// knownPeers reads peers.json from the data directory, leaving out this node.
func (n *Node) knownPeers() []*peers.Peer {
	store := peers.NewJSONPeers(n.conf.DataDir)

	known, err := store.Peers()
	if err != nil {
		if !os.IsNotExist(err) {
			n.logger.WithError(err).WithField("path", store.Path()).Warn("Cannot read known peers")
		}
		return nil
	}

	_, others := peers.ExcludePeer(known, n.id)
	return others
}

// dial connects to addr. A non-empty nodeID must match the remote node.
func (n *Node) dial(addr, nodeID string) {
	ctx, cancel := context.WithTimeout(context.Background(), n.conf.HandshakeTimeout+n.conf.RequestTimeout)
	defer cancel()

	go func() {
		select {
		case <-n.shutdownCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	p, err := n.trans.Connect(ctx, addr)
	if err != nil {
		n.logger.WithError(err).WithField("addr", addr).Warn("Dialing peer")
		return
	}

	if nodeID != "" && p.ID != nodeID {
		n.logger.WithFields(logrus.Fields{
			"addr":     addr,
			"expected": common.ShortID(nodeID),
			"got":      common.ShortID(p.ID),
		}).Warn("Unexpected node id")
		p.Disconnect("unexpected node id")
		return
	}

	if err := n.service.AddPeer(p); err != nil {
		n.logger.WithError(err).WithField("peer", p.ID).Debug("Refused outbound peer")
	}
}

// Connect dials addr and hands the resulting peer to the service.
func (n *Node) Connect(ctx context.Context, addr string) (*peer.Peer, error) {
	if n.getState() != Running {
		return nil, errors.Errorf("node is %s", n.getState())
	}

	p, err := n.trans.Connect(ctx, addr)
	if err != nil {
		return nil, err
	}

	if err := n.service.AddPeer(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Stop closes the transport, disconnects every peer and closes the chain. It
// returns false when there was nothing to stop.
func (n *Node) Stop() (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	prev := n.getState()
	if prev == Stopped {
		return false, nil
	}
	n.setState(Stopped)

	if prev == Created {
		return false, nil
	}

	n.logger.Debug("Stopping node")

	close(n.shutdownCh)

	var result error
	if err := n.trans.Close(); err != nil {
		result = errors.Wrap(err, "closing transport")
	}

	n.waitRoutines()
	n.service.Close()

	if err := n.chain.Close(); err != nil && result == nil {
		result = errors.Wrap(err, "closing chain")
	}

	n.logger.Info("Node stopped")

	return true, result
}

// ID returns the node id, or an empty string before Open.
func (n *Node) ID() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.id
}

// State returns the lifecycle stage of the node.
func (n *Node) State() State {
	return n.getState()
}

// Addr returns the address where other nodes can reach this one.
func (n *Node) Addr() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.trans == nil {
		return ""
	}
	return n.trans.AdvertiseAddr()
}

// Service returns the protocol service, or nil before Open.
func (n *Node) Service() *service.Service {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.service
}

// Pool returns the peer pool, or nil before Open.
func (n *Node) Pool() *peer.Pool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.pool
}

// Chain returns the blockchain, or nil before Open.
func (n *Node) Chain() *chain.Blockchain {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.chain
}

// GetStats returns information about the node.
func (n *Node) GetStats() map[string]string {
	n.mu.Lock()
	defer n.mu.Unlock()

	s := map[string]string{
		"state":      n.getState().String(),
		"id":         n.id,
		"light_serv": strconv.FormatBool(n.conf.LightServ),
	}

	if n.chain != nil {
		s["network_id"] = strconv.FormatUint(n.chain.NetworkID(), 10)
		s["head"] = n.chain.CurrentHeader().Number.String()
		s["td"] = n.chain.HeaderTd().String()
	}

	if n.pool != nil {
		s["num_peers"] = strconv.Itoa(n.pool.Len())
	}

	if n.synchronizer != nil {
		if best, ok := n.synchronizer.Best(); ok {
			s["best_peer"] = best.PeerID
			s["best_number"] = best.Number.String()
		}
	}

	return s
}
