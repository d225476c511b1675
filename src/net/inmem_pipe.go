package net

import (
	"sync"

	"github.com/puffscoin/puffsd/src/protocol"
)

// DefaultPipeBuffer is the per-direction capacity of an in-memory pipe.
const DefaultPipeBuffer = 64

// InmemSender is one end of an in-memory pipe. It implements protocol.Sender.
type InmemSender struct {
	frames chan protocol.Frame
	remote *InmemSender
	pipe   *pipeState
}

type pipeState struct {
	done chan struct{}
	once sync.Once
}

// NewInmemPipe returns two connected senders. Frames sent on one end arrive
// in order on the other. Closing either end closes both.
func NewInmemPipe(bufferSize int) (*InmemSender, *InmemSender) {
	if bufferSize <= 0 {
		bufferSize = DefaultPipeBuffer
	}

	state := &pipeState{done: make(chan struct{})}
	a := &InmemSender{frames: make(chan protocol.Frame, bufferSize), pipe: state}
	b := &InmemSender{frames: make(chan protocol.Frame, bufferSize), pipe: state}
	a.remote, b.remote = b, a

	return a, b
}

// Send implements protocol.Sender. It blocks while the remote buffer is full.
func (s *InmemSender) Send(code uint64, payload []byte) error {
	select {
	case <-s.pipe.done:
		return ErrTransportShutdown
	default:
	}

	select {
	case s.remote.frames <- protocol.Frame{Code: code, Payload: payload}:
		return nil
	case <-s.pipe.done:
		return ErrTransportShutdown
	}
}

// Frames implements protocol.Sender.
func (s *InmemSender) Frames() <-chan protocol.Frame {
	return s.frames
}

// Done implements protocol.Sender.
func (s *InmemSender) Done() <-chan struct{} {
	return s.pipe.done
}

// Err implements protocol.Sender. A pipe only stops when closed.
func (s *InmemSender) Err() error {
	return nil
}

// Close implements protocol.Sender.
func (s *InmemSender) Close() error {
	s.pipe.once.Do(func() { close(s.pipe.done) })
	return nil
}
