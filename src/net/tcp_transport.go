package net

import (
	"context"
	"crypto/ecdsa"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/puffscoin/puffsd/src/crypto/keys"
	"github.com/puffscoin/puffsd/src/peer"
	"github.com/puffscoin/puffsd/src/protocol"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout applies to dialing, the hello exchange and frame writes.
const DefaultTimeout = 5 * time.Second

/*
TCPTransport provides a network based transport that can be used to
communicate with remote nodes. It requires an underlying stream layer to
provide a stream abstraction.

Each connection starts with a hello exchange in both directions, carrying the
node id, its advertised address, the names of the protocols it speaks and a
nonce. Each side then signs the nonce it received with its node key, proving
that it owns the node id it announced.
Every protocol both ends speak is then bound over the same connection: frames
are RLP encoded as (protocol, code, payload) and routed to the binding of that
protocol on arrival.
*/
type TCPTransport struct {
	key       *ecdsa.PrivateKey
	nodeID    string
	protocols []protocol.Protocol
	stream    StreamLayer
	timeout   time.Duration

	peerCh chan *peer.Peer

	shutdown     bool
	shutdownCh   chan struct{}
	shutdownLock sync.Mutex

	logger *logrus.Entry
}

// NewTCPTransport returns a TCPTransport listening on bindAddr. Accepted
// connections are delivered as peers on Peers once Listen runs.
func NewTCPTransport(
	bindAddr string,
	advertise string,
	key *ecdsa.PrivateKey,
	protocols []protocol.Protocol,
	timeout time.Duration,
	logger *logrus.Entry,
) (*TCPTransport, error) {

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	stream, err := NewTCPStreamLayer(bindAddr, advertise, timeout)
	if err != nil {
		return nil, err
	}

	return NewStreamTransport(stream, key, protocols, timeout, logger), nil
}

// NewStreamTransport creates a transport over an existing stream layer.
func NewStreamTransport(
	stream StreamLayer,
	key *ecdsa.PrivateKey,
	protocols []protocol.Protocol,
	timeout time.Duration,
	logger *logrus.Entry,
) *TCPTransport {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &TCPTransport{
		key:        key,
		nodeID:     keys.NodeID(&key.PublicKey),
		protocols:  protocols,
		stream:     stream,
		timeout:    timeout,
		peerCh:     make(chan *peer.Peer, 16),
		shutdownCh: make(chan struct{}),
		logger:     logger.WithField("transport", "tcp"),
	}
}

// NodeID returns the id this transport announces.
func (n *TCPTransport) NodeID() string {
	return n.nodeID
}

// Peers implements the Transport interface.
func (n *TCPTransport) Peers() <-chan *peer.Peer {
	return n.peerCh
}

// LocalAddr implements the Transport interface.
func (n *TCPTransport) LocalAddr() string {
	addr := n.stream.Addr()

	if addr != nil {
		return addr.String()
	}

	return ""
}

// AdvertiseAddr implements the Transport interface.
func (n *TCPTransport) AdvertiseAddr() string {
	return n.stream.AdvertiseAddr()
}

// IsShutdown is used to check if the transport is shutdown.
func (n *TCPTransport) IsShutdown() bool {
	select {
	case <-n.shutdownCh:
		return true
	default:
		return false
	}
}

// Close is used to stop the network transport.
func (n *TCPTransport) Close() error {
	n.shutdownLock.Lock()
	defer n.shutdownLock.Unlock()

	if !n.shutdown {
		close(n.shutdownCh)
		n.stream.Close()

		n.shutdown = true
	}
	return nil
}

// Listen accepts incoming connections until the transport is closed.
func (n *TCPTransport) Listen() {
	for {
		conn, err := n.stream.Accept()
		if err != nil {
			if n.IsShutdown() {
				return
			}
			n.logger.WithField("error", err).Error("Failed to accept connection")
			continue
		}
		n.logger.WithFields(logrus.Fields{
			"node": conn.LocalAddr(),
			"from": conn.RemoteAddr(),
		}).Debug("accepted connection")

		go n.handleConn(conn)
	}
}

// handleConn sets up an inbound connection and hands its peer to Peers.
func (n *TCPTransport) handleConn(conn net.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*n.timeout)
	defer cancel()

	p, err := n.setupPeer(ctx, conn, true)
	if err != nil {
		n.logger.WithError(err).WithField("from", conn.RemoteAddr()).Debug("Inbound connection failed")
		return
	}

	select {
	case n.peerCh <- p:
	case <-n.shutdownCh:
		p.Disconnect("transport shutdown")
	}
}

// Connect implements the Transport interface.
func (n *TCPTransport) Connect(ctx context.Context, addr string) (*peer.Peer, error) {
	if n.IsShutdown() {
		return nil, ErrTransportShutdown
	}

	conn, err := n.stream.DialContext(ctx, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", addr)
	}

	p, err := n.setupPeer(ctx, conn, false)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to %s", addr)
	}
	return p, nil
}

func (n *TCPTransport) setupPeer(ctx context.Context, conn net.Conn, inbound bool) (*peer.Peer, error) {
	mux := newMuxConn(conn, n.timeout, n.logger)

	remote, err := mux.handshake(n.key, hello{
		NodeID:     n.nodeID,
		ListenAddr: n.AdvertiseAddr(),
		Protocols:  protocolNames(n.protocols),
	})
	if err != nil {
		conn.Close()
		return nil, err
	}

	if remote.NodeID == n.nodeID {
		conn.Close()
		return nil, ErrSelfConnection
	}

	shared := sharedProtocols(n.protocols, remote.Protocols)
	if len(shared) == 0 {
		conn.Close()
		return nil, ErrNoSharedProtocol
	}

	senders := make([]protocol.Sender, len(shared))
	for k, name := range shared {
		senders[k] = mux.sender(name)
	}

	go mux.run()

	address := conn.RemoteAddr().String()
	if inbound && remote.ListenAddr != "" {
		address = remote.ListenAddr
	}

	p := peer.NewPeer(remote.NodeID, address, "tcp", inbound, n.logger)
	if err := bindAll(ctx, p, n.protocols, shared, senders); err != nil {
		return nil, err
	}

	return p, nil
}
