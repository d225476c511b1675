package net

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
)

var (
	errNotAdvertisable = errors.New("local bind address is not advertisable")
	errNotTCP          = errors.New("local address is not a TCP address")
)

// TCPStreamLayer implements StreamLayer interface for plain TCP.
type TCPStreamLayer struct {
	advertise string
	timeout   time.Duration
	listener  *net.TCPListener
}

// NewTCPStreamLayer binds bindAddr. The advertise address defaults to the
// bound address and must not be unspecified. A zero timeout leaves dials
// bounded by their context only.
func NewTCPStreamLayer(bindAddr, advertise string, timeout time.Duration) (*TCPStreamLayer, error) {
	list, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}

	var resolved net.Addr
	if advertise != "" {
		resolved, err = net.ResolveTCPAddr("tcp", advertise)
		if err != nil {
			list.Close()
			return nil, err
		}
	}

	if resolved == nil {
		resolved = list.Addr()
	}

	addr, ok := resolved.(*net.TCPAddr)
	if !ok {
		list.Close()
		return nil, errNotTCP
	}
	if addr.IP.IsUnspecified() {
		list.Close()
		return nil, errNotAdvertisable
	}

	return &TCPStreamLayer{
		advertise: advertise,
		timeout:   timeout,
		listener:  list.(*net.TCPListener),
	}, nil
}

// DialContext implements the StreamLayer interface. The dial is bounded by
// the layer timeout as well as ctx.
func (t *TCPStreamLayer) DialContext(ctx context.Context, address string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: t.timeout}
	return dialer.DialContext(ctx, "tcp", address)
}

// Accept implements the net.Listener interface.
func (t *TCPStreamLayer) Accept() (c net.Conn, err error) {
	return t.listener.Accept()
}

// Close implements the net.Listener interface.
func (t *TCPStreamLayer) Close() (err error) {
	return t.listener.Close()
}

// Addr implements the net.Listener interface.
func (t *TCPStreamLayer) Addr() net.Addr {
	return t.listener.Addr()
}

// AdvertiseAddr implements the SteamLayer interface.
func (t *TCPStreamLayer) AdvertiseAddr() string {
	if t.advertise != "" {
		return t.advertise
	}
	return t.listener.Addr().String()
}
