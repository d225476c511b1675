package protocol

import (
	"sync"
	"time"

	"github.com/puffscoin/puffsd/src/chain"
)

// DefaultTimeout bounds the status handshake and every request.
const DefaultTimeout = 5000 * time.Millisecond

// Correlation is the way a protocol matches responses to requests.
type Correlation int

const (
	// ByResponseCode allows one outstanding request per response code.
	ByResponseCode Correlation = iota
	// ByRequestID matches the request id carried by both messages.
	ByRequestID
)

// Protocol describes a sub-protocol. One instance is shared by every peer
// speaking it.
type Protocol interface {
	// Name identifies the protocol on the wire.
	Name() string
	// Versions lists the supported versions, preferred first.
	Versions() []uint
	// Catalog returns the messages defined by the protocol.
	Catalog() *Catalog
	// Correlation tells bindings how to match responses.
	Correlation() Correlation
	// Timeout bounds the handshake and requests.
	Timeout() time.Duration
	// Open opens the backing chain. It returns false if the protocol was
	// already open.
	Open() (bool, error)
	// EncodeStatus builds the local status announcement.
	EncodeStatus() (StatusList, error)
	// DecodeStatus parses a remote status announcement.
	DecodeStatus(StatusList) (interface{}, error)
}

// RequestIDCarrier is implemented by payloads that carry a request id.
type RequestIDCarrier interface {
	RequestID() uint64
}

// RequestIDAssigner is implemented by request payloads whose id is allocated by
// the binding when left at zero.
type RequestIDAssigner interface {
	RequestIDCarrier
	// WithRequestID returns a copy of the payload carrying id.
	WithRequestID(id uint64) interface{}
}

// base holds what the protocol variants have in common.
type base struct {
	chain   chain.Chain
	timeout time.Duration

	mu     sync.Mutex
	opened bool
}

func (b *base) init(c chain.Chain, timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	b.chain = c
	b.timeout = timeout
}

// Timeout implements the Protocol interface.
func (b *base) Timeout() time.Duration {
	return b.timeout
}

// Open implements the Protocol interface.
func (b *base) Open() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.opened {
		return false, nil
	}
	if err := b.chain.Open(); err != nil {
		return false, err
	}
	b.opened = true
	return true, nil
}
