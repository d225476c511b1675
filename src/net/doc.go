// Package net implements the transports that connect puffsd nodes.
//
// A transport turns each connection into a peer.Peer with one bound protocol
// per protocol both ends speak. There are two implementations:
//
// - Inmem: in-memory pipes, used for testing
//
// - TCP: communicating over plain TCP
//
// TCP
//
// Each TCP connection opens with a hello exchange in both directions carrying
// the node id, the advertised address and the protocol names. The protocols
// then share the connection: every frame is an RLP list of protocol name,
// message code and payload.
//
// To use the TCP transport, set the following configuration options in the
// Config object (cf config package):
//
// - BindAddr: the IP:PORT of the TCP socket that puffsd binds to.
//
// - AdvertiseAddr: (optional) The address that is advertised to other nodes. If
// BindAddr is a local address not reachable by other peers, it is usefull to
// set AdvertiseAddr to the reachable public address.
//
// Inmem
//
// NewInmemPipe returns two connected protocol.Senders and is the building block
// of the InmemTransport. Transports reach each other through ConnectTransport.
package net
