package net

import (
	"context"
	"net"
)

// StreamLayer provides the connections the TCPTransport runs its hello and
// frames over. Accept and Close come from the embedded listener.
type StreamLayer interface {
	net.Listener

	// DialContext opens an outgoing connection. Dialing stops when ctx is
	// done.
	DialContext(ctx context.Context, address string) (net.Conn, error)

	// AdvertiseAddr is the address remote nodes reach this layer at.
	AdvertiseAddr() string
}
