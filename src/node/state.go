package node

import (
	"sync"
	"sync/atomic"
)

// State captures the lifecycle stage of a node: Created, Opened, Running or
// Stopped.
type State uint32

const (
	// Created is the initial state of a node.
	Created State = iota
	// Opened means the chain and the service are loaded.
	Opened
	// Running means the transport accepts and dials peers.
	Running
	// Stopped is final.
	Stopped
)

// String ...
func (s State) String() string {
	switch s {
	case Created:
		return "Created"
	case Opened:
		return "Opened"
	case Running:
		return "Running"
	case Stopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

type state struct {
	state State
	wg    sync.WaitGroup
}

func (b *state) getState() State {
	stateAddr := (*uint32)(&b.state)
	return State(atomic.LoadUint32(stateAddr))
}

func (b *state) setState(s State) {
	stateAddr := (*uint32)(&b.state)
	atomic.StoreUint32(stateAddr, uint32(s))
}

// Start a goroutine and add it to waitgroup
func (b *state) goFunc(f func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		f()
	}()
}

func (b *state) waitRoutines() {
	b.wg.Wait()
}
