package net

import (
	"context"

	"github.com/pkg/errors"
	"github.com/puffscoin/puffsd/src/peer"
)

var (
	// ErrTransportShutdown is returned when operations on a transport are
	// invoked after it's been terminated.
	ErrTransportShutdown = errors.New("transport shutdown")

	// ErrNoSharedProtocol is returned when a remote node speaks none of our
	// protocols.
	ErrNoSharedProtocol = errors.New("no shared protocol")

	// ErrSelfConnection is returned when a node dials itself.
	ErrSelfConnection = errors.New("connected to self")
)

// Transport connects the node to remote nodes and turns every connection into
// a Peer with one bound protocol per protocol both ends speak.
type Transport interface {

	// Starts the transport listening
	Listen()

	// Peers delivers the peers of accepted connections.
	Peers() <-chan *peer.Peer

	// Connect dials addr and returns the resulting peer.
	Connect(ctx context.Context, addr string) (*peer.Peer, error)

	// LocalAddr is used to return our local address
	LocalAddr() string

	// AdvertiseAddr is used to return our advertise address where other peers
	// can reach us
	AdvertiseAddr() string

	// Close permanently closes a transport, stopping
	// any associated goroutines and freeing other resources.
	Close() error
}
