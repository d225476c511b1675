package protocol

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrType enumerates protocol level failures.
type ErrType uint32

const (
	// HandshakeTimeout means the remote status did not arrive in time.
	HandshakeTimeout ErrType = iota
	// VersionMismatch means the peers share no protocol version.
	VersionMismatch
	// RequestTimeout means no matching response arrived before the deadline.
	RequestTimeout
	// DuplicateOutstandingRequest means the correlation slot of a request is
	// already taken.
	DuplicateOutstandingRequest
	// DisconnectedWhilePending means the binding was torn down.
	DisconnectedWhilePending
	// DecodeError means a payload could not be decoded.
	DecodeError
	// UnknownCode means a frame code is absent from the catalog.
	UnknownCode
	// UnknownMessage means a message name is absent from the catalog.
	UnknownMessage
	// NoResponse means a request was issued for a message without a response.
	NoResponse
	// FlowControlViolation means a peer asked for more than its buffer allows.
	// It is never sent to the peer.
	FlowControlViolation
)

func (t ErrType) String() string {
	switch t {
	case HandshakeTimeout:
		return "Handshake Timeout"
	case VersionMismatch:
		return "Version Mismatch"
	case RequestTimeout:
		return "Request Timeout"
	case DuplicateOutstandingRequest:
		return "Duplicate Outstanding Request"
	case DisconnectedWhilePending:
		return "Disconnected"
	case DecodeError:
		return "Decode Error"
	case UnknownCode:
		return "Unknown Code"
	case UnknownMessage:
		return "Unknown Message"
	case NoResponse:
		return "No Response"
	case FlowControlViolation:
		return "Flow Control Violation"
	}
	return "Unknown"
}

// Err is the error type returned by bindings. It records the protocol it
// originates from.
type Err struct {
	protocol string
	errType  ErrType
	detail   string
}

// NewErr creates an Err.
func NewErr(protocol string, errType ErrType, detail string) Err {
	return Err{
		protocol: protocol,
		errType:  errType,
		detail:   detail,
	}
}

// Error implements the error interface.
func (e Err) Error() string {
	if e.detail == "" {
		return fmt.Sprintf("%s: %s", e.protocol, e.errType)
	}
	return fmt.Sprintf("%s: %s: %s", e.protocol, e.errType, e.detail)
}

// Type returns the kind of failure.
func (e Err) Type() ErrType {
	return e.errType
}

// Protocol returns the name of the protocol the error originates from.
func (e Err) Protocol() string {
	return e.protocol
}

// IsErr checks that an error, or the cause of a wrapped error, is an Err of
// type t.
func IsErr(err error, t ErrType) bool {
	protoErr, ok := errors.Cause(err).(Err)
	return ok && protoErr.errType == t
}
