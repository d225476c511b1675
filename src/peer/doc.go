// Package peer holds the remote end of a connection together with the
// protocols bound to it, and the pool of connected peers.
//
// A Peer owns one BoundProtocol per protocol name. Each binding gets a
// forwarder goroutine that copies its messages and errors onto the peer's
// single Events channel, tagged with the protocol name, so that a consumer
// can serve every protocol of a peer from one loop.
package peer
