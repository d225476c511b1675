package protocol

// Frame is a raw message as exchanged with a transport: a protocol local code
// and an encoded payload.
type Frame struct {
	Code    uint64
	Payload []byte
}

// Sender is one peer's duplex channel for one protocol. Transports implement
// it. Frames must be delivered in the order they were received.
type Sender interface {
	// Send hands a frame to the transport.
	Send(code uint64, payload []byte) error
	// Frames delivers received frames.
	Frames() <-chan Frame
	// Done is closed when the connection ends.
	Done() <-chan struct{}
	// Err returns the reason the connection ended, if any.
	Err() error
	// Close ends the connection.
	Close() error
}
