package peer

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/puffscoin/puffsd/src/common"
	"github.com/puffscoin/puffsd/src/protocol"
	"github.com/sirupsen/logrus"
)

const eventBufferSize = 64

// ErrDisconnected is returned when binding a protocol to a peer that was
// already disconnected.
var ErrDisconnected = errors.New("peer disconnected")

// ErrAlreadyBound is returned when binding a protocol name the peer already
// has a binding for.
var ErrAlreadyBound = errors.New("protocol already bound")

// Event is a message or an error received from one of the peer's bindings.
type Event struct {
	Protocol string
	Message  protocol.Message
	Err      error
}

// Peer is a remote node reachable over Transport at Address.
type Peer struct {
	ID        string
	Address   string
	Inbound   bool
	Transport string

	mu           sync.RWMutex
	bindings     map[string]*protocol.BoundProtocol
	idle         bool
	disconnected bool

	events   chan Event
	quit     chan struct{}
	wg       sync.WaitGroup
	quitOnce sync.Once

	logger *logrus.Entry
}

// NewPeer creates an idle peer with no bound protocols.
func NewPeer(id, address, transport string, inbound bool, logger *logrus.Entry) *Peer {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &Peer{
		ID:        id,
		Address:   address,
		Inbound:   inbound,
		Transport: transport,
		bindings:  make(map[string]*protocol.BoundProtocol),
		idle:      true,
		events:    make(chan Event, eventBufferSize),
		quit:      make(chan struct{}),
		logger:    logger.WithField("peer", common.ShortID(id)),
	}
}

// BindProtocol runs the handshake of proto over sender and attaches the
// resulting binding to the peer. A failed handshake closes sender. Each
// protocol name can be bound once; a second bind is refused and closes its
// sender, leaving the existing binding in place.
func (p *Peer) BindProtocol(ctx context.Context, proto protocol.Protocol, sender protocol.Sender) (*protocol.BoundProtocol, error) {
	if p.isDisconnected() {
		sender.Close()
		return nil, ErrDisconnected
	}
	if p.Understands(proto.Name()) {
		sender.Close()
		return nil, errors.Wrap(ErrAlreadyBound, proto.Name())
	}

	bound, err := protocol.Bind(ctx, proto, p.ID, sender, p.logger)
	if err != nil {
		sender.Close()
		return nil, err
	}

	p.mu.Lock()
	if p.disconnected {
		p.mu.Unlock()
		bound.Close()
		return nil, ErrDisconnected
	}
	if _, ok := p.bindings[proto.Name()]; ok {
		p.mu.Unlock()
		bound.Close()
		return nil, errors.Wrap(ErrAlreadyBound, proto.Name())
	}
	p.bindings[proto.Name()] = bound
	p.wg.Add(1)
	p.mu.Unlock()

	go p.forward(bound)

	return bound, nil
}

// forward copies the events of one binding until it is torn down. Losing a
// binding disconnects the whole peer.
func (p *Peer) forward(b *protocol.BoundProtocol) {
	defer p.wg.Done()

	name := b.Name()
	msgs, errs := b.Messages(), b.Errors()
	for msgs != nil || errs != nil {
		select {
		case m, ok := <-msgs:
			if !ok {
				msgs = nil
				continue
			}
			p.emit(Event{Protocol: name, Message: m})
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			p.emit(Event{Protocol: name, Err: err})
		}
	}

	p.Disconnect(fmt.Sprintf("%s closed", name))
}

func (p *Peer) emit(ev Event) {
	select {
	case p.events <- ev:
	case <-p.quit:
	}
}

// Events delivers the messages and errors of every binding. It is closed after
// Disconnect once all forwarders have returned.
func (p *Peer) Events() <-chan Event {
	return p.events
}

// Understands reports whether a protocol with the given name is bound.
func (p *Peer) Understands(name string) bool {
	_, ok := p.Bound(name)
	return ok
}

// Bound returns the binding of the named protocol.
func (p *Peer) Bound(name string) (*protocol.BoundProtocol, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	b, ok := p.bindings[name]
	return b, ok
}

// Puffs returns the typed puffs binding.
func (p *Peer) Puffs() (protocol.PuffsBinding, bool) {
	b, ok := p.Bound(protocol.PuffsName)
	return protocol.PuffsBinding{BoundProtocol: b}, ok
}

// Les returns the typed les binding.
func (p *Peer) Les() (protocol.LesBinding, bool) {
	b, ok := p.Bound(protocol.LesName)
	return protocol.LesBinding{BoundProtocol: b}, ok
}

// Protocols returns the sorted names of the bound protocols.
func (p *Peer) Protocols() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.bindings))
	for name := range p.bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Idle reports whether the peer is free for a new task.
func (p *Peer) Idle() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.idle
}

// SetIdle marks the peer free or busy.
func (p *Peer) SetIdle(idle bool) {
	p.mu.Lock()
	p.idle = idle
	p.mu.Unlock()
}

func (p *Peer) isDisconnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.disconnected
}

// Disconnect closes every binding, failing their pending requests. Events is
// closed once the forwarders have drained. Calling it again has no effect.
func (p *Peer) Disconnect(reason string) {
	p.quitOnce.Do(func() {
		p.mu.Lock()
		p.disconnected = true
		bindings := make([]*protocol.BoundProtocol, 0, len(p.bindings))
		for _, b := range p.bindings {
			bindings = append(bindings, b)
		}
		p.mu.Unlock()

		p.logger.WithField("reason", reason).Debug("Disconnect")

		close(p.quit)
		for _, b := range bindings {
			b.Close()
		}

		go func() {
			p.wg.Wait()
			close(p.events)
		}()
	})
}

func (p *Peer) String() string {
	direction := "outbound"
	if p.Inbound {
		direction = "inbound"
	}
	return fmt.Sprintf("Peer(%s %s %s/%s)", p.ID, direction, p.Transport, p.Address)
}
