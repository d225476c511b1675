// Package service dispatches the messages of connected peers to their
// handlers.
//
// A Service owns the protocols a node speaks: puffs always, and les when the
// node serves light clients. Every peer added to the service gets one consumer
// goroutine reading the peer's merged event stream. Requests are answered from
// the chain; les requests are first priced by the flow control, and a peer
// whose buffer cannot cover a request is banned without a reply. Block
// announcements are forwarded to the synchronizer.
package service
