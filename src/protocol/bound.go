package protocol

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// eventBufferSize is the capacity of a binding's Messages and Errors channels.
const eventBufferSize = 64

// Message is a decoded frame that did not answer an outstanding request.
type Message struct {
	Name string
	Code uint64
	Data interface{}
}

type result struct {
	data interface{}
	err  error
}

type pendingRequest struct {
	name     string
	response uint64
	respCh   chan result
	deadline time.Time
}

// BoundProtocol is a Protocol attached to one peer connection. It is created
// by Bind and lives until Close is called or the Sender is done.
type BoundProtocol struct {
	protocol Protocol
	peerID   string
	sender   Sender
	version  uint
	status   interface{}
	timeout  time.Duration

	mu      sync.Mutex
	pending map[uint64]*pendingRequest
	nextID  uint64
	closed  bool

	messages  chan Message
	errors    chan error
	done      chan struct{}
	closeOnce sync.Once

	logger *logrus.Entry
}

// Bind performs the status handshake with the peer behind sender and returns
// the resulting binding. It fails with HandshakeTimeout when no status arrives
// within the protocol timeout and with VersionMismatch when the peers share no
// version.
func Bind(ctx context.Context, p Protocol, peerID string, sender Sender, logger *logrus.Entry) (*BoundProtocol, error) {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	b := &BoundProtocol{
		protocol: p,
		peerID:   peerID,
		sender:   sender,
		timeout:  p.Timeout(),
		pending:  make(map[uint64]*pendingRequest),
		messages: make(chan Message, eventBufferSize),
		errors:   make(chan error, eventBufferSize),
		done:     make(chan struct{}),
		logger: logger.WithFields(logrus.Fields{
			"protocol": p.Name(),
			"peer":     peerID,
		}),
	}

	if err := b.handshake(ctx); err != nil {
		return nil, err
	}

	b.logger.WithField("version", b.version).Debug("Bound protocol")

	go b.readLoop()

	return b, nil
}

func (b *BoundProtocol) handshake(ctx context.Context) error {
	local, err := b.protocol.EncodeStatus()
	if err != nil {
		return errors.Wrap(err, "encoding status")
	}

	payload, err := rlp.EncodeToBytes(&statusEnvelope{
		Versions: b.protocol.Versions(),
		Status:   local,
	})
	if err != nil {
		return errors.Wrap(err, "encoding status")
	}

	if err := b.sender.Send(StatusCode, payload); err != nil {
		return errors.Wrap(err, "sending status")
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	var frame Frame
	select {
	case f, ok := <-b.sender.Frames():
		if !ok {
			return b.newErr(DisconnectedWhilePending, "handshake")
		}
		frame = f
	case <-b.sender.Done():
		return b.newErr(DisconnectedWhilePending, "handshake")
	case <-timer.C:
		return b.newErr(HandshakeTimeout, "")
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return b.newErr(HandshakeTimeout, "")
		}
		return ctx.Err()
	}

	if frame.Code != StatusCode {
		return b.newErr(DecodeError, fmt.Sprintf("expected status, got code %#x", frame.Code))
	}

	var remote statusEnvelope
	if err := rlp.DecodeBytes(frame.Payload, &remote); err != nil {
		return b.newErr(DecodeError, "status: "+err.Error())
	}

	version, ok := negotiate(b.protocol.Versions(), remote.Versions)
	if !ok {
		return b.newErr(VersionMismatch, fmt.Sprintf("local %v, remote %v", b.protocol.Versions(), remote.Versions))
	}

	status, err := b.protocol.DecodeStatus(remote.Status)
	if err != nil {
		return b.newErr(DecodeError, "status: "+err.Error())
	}

	b.version = version
	b.status = status

	return nil
}

// negotiate returns the highest version present in both lists.
func negotiate(local, remote []uint) (uint, bool) {
	common := mapset.NewSet[uint](local...).Intersect(mapset.NewSet[uint](remote...))
	if common.Cardinality() == 0 {
		return 0, false
	}
	versions := common.ToSlice()
	sort.Slice(versions, func(i, j int) bool { return versions[i] > versions[j] })
	return versions[0], true
}

func (b *BoundProtocol) newErr(t ErrType, detail string) Err {
	return NewErr(b.protocol.Name(), t, detail)
}

// Protocol returns the bound protocol.
func (b *BoundProtocol) Protocol() Protocol {
	return b.protocol
}

// Name returns the name of the bound protocol.
func (b *BoundProtocol) Name() string {
	return b.protocol.Name()
}

// PeerID returns the id of the remote peer.
func (b *BoundProtocol) PeerID() string {
	return b.peerID
}

// Version returns the negotiated version.
func (b *BoundProtocol) Version() uint {
	return b.version
}

// Status returns the decoded remote status.
func (b *BoundProtocol) Status() interface{} {
	return b.status
}

// Messages delivers the frames that did not answer a request. It is closed
// once the binding is torn down.
func (b *BoundProtocol) Messages() <-chan Message {
	return b.messages
}

// Errors delivers decode failures and unknown codes. It is closed once the
// binding is torn down.
func (b *BoundProtocol) Errors() <-chan error {
	return b.errors
}

// Done is closed when the binding is torn down.
func (b *BoundProtocol) Done() <-chan struct{} {
	return b.done
}

// Pending returns the number of outstanding requests.
func (b *BoundProtocol) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Send encodes args as the named message and hands it to the Sender. It does
// not wait for a response.
func (b *BoundProtocol) Send(name string, args interface{}) error {
	entry, ok := b.protocol.Catalog().ByName(name)
	if !ok {
		return b.newErr(UnknownMessage, name)
	}

	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return b.newErr(DisconnectedWhilePending, name)
	}

	payload, err := entry.Encode(args)
	if err != nil {
		return errors.Wrapf(err, "encoding %s", name)
	}

	return b.sender.Send(entry.Code, payload)
}

// Request sends the named message and waits for its response, which it returns
// decoded. The wait ends with RequestTimeout after the protocol timeout or when
// ctx expires.
func (b *BoundProtocol) Request(ctx context.Context, name string, args interface{}) (interface{}, error) {
	entry, ok := b.protocol.Catalog().ByName(name)
	if !ok {
		return nil, b.newErr(UnknownMessage, name)
	}
	if entry.Response == 0 {
		return nil, b.newErr(NoResponse, name)
	}

	key, args, req, err := b.addPending(entry, args)
	if err != nil {
		return nil, err
	}

	payload, err := entry.Encode(args)
	if err != nil {
		b.removePending(key, req)
		return nil, errors.Wrapf(err, "encoding %s", name)
	}

	if err := b.sender.Send(entry.Code, payload); err != nil {
		b.removePending(key, req)
		return nil, err
	}

	timer := time.NewTimer(time.Until(req.deadline))
	defer timer.Stop()

	select {
	case r := <-req.respCh:
		return r.data, r.err
	case <-timer.C:
		b.removePending(key, req)
		return nil, b.newErr(RequestTimeout, name)
	case <-ctx.Done():
		b.removePending(key, req)
		if ctx.Err() == context.DeadlineExceeded {
			return nil, b.newErr(RequestTimeout, name)
		}
		return nil, ctx.Err()
	}
}

// Call is the named-call entry point: it issues a Request when the message
// expects a response and a Send otherwise, returning a nil result.
func (b *BoundProtocol) Call(ctx context.Context, name string, args interface{}) (interface{}, error) {
	entry, ok := b.protocol.Catalog().ByName(name)
	if !ok {
		return nil, b.newErr(UnknownMessage, name)
	}
	if entry.Response == 0 {
		return nil, b.Send(name, args)
	}
	return b.Request(ctx, name, args)
}

// addPending reserves the correlation slot of a request. For request id
// protocols, a zero id is replaced by the next free id of the binding.
func (b *BoundProtocol) addPending(entry *MessageEntry, args interface{}) (uint64, interface{}, *pendingRequest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, nil, nil, b.newErr(DisconnectedWhilePending, entry.Name)
	}

	var key uint64
	switch b.protocol.Correlation() {
	case ByRequestID:
		carrier, ok := args.(RequestIDAssigner)
		if !ok {
			return 0, nil, nil, errors.Errorf("%s: %T carries no request id", entry.Name, args)
		}
		key = carrier.RequestID()
		if key == 0 {
			for {
				b.nextID++
				if _, busy := b.pending[b.nextID]; !busy {
					break
				}
			}
			key = b.nextID
			args = carrier.WithRequestID(key)
		}
	default:
		key = entry.Response
	}

	if _, busy := b.pending[key]; busy {
		return 0, nil, nil, b.newErr(DuplicateOutstandingRequest, fmt.Sprintf("%s, key %d", entry.Name, key))
	}

	req := &pendingRequest{
		name:     entry.Name,
		response: entry.Response,
		respCh:   make(chan result, 1),
		deadline: time.Now().Add(b.timeout),
	}
	b.pending[key] = req

	return key, args, req, nil
}

func (b *BoundProtocol) removePending(key uint64, req *pendingRequest) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pending[key] == req {
		delete(b.pending, key)
	}
}

// takePending removes and returns the request keyed by key if it waits for a
// frame of the given code.
func (b *BoundProtocol) takePending(key uint64, code uint64) *pendingRequest {
	b.mu.Lock()
	defer b.mu.Unlock()

	req, ok := b.pending[key]
	if !ok || req.response != code {
		return nil
	}
	delete(b.pending, key)
	return req
}

// Close tears the binding down and closes the Sender. Pending requests fail
// with DisconnectedWhilePending.
func (b *BoundProtocol) Close() error {
	b.teardown()
	return b.sender.Close()
}

func (b *BoundProtocol) teardown() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		for key, req := range b.pending {
			req.respCh <- result{err: b.newErr(DisconnectedWhilePending, req.name)}
			delete(b.pending, key)
		}
		b.mu.Unlock()

		close(b.done)
	})
}

func (b *BoundProtocol) readLoop() {
	defer close(b.errors)
	defer close(b.messages)

	for {
		select {
		case f, ok := <-b.sender.Frames():
			if !ok {
				b.teardown()
				return
			}
			b.handleFrame(f)
		case <-b.sender.Done():
			b.drainFrames()
			b.teardown()
			return
		case <-b.done:
			return
		}
	}
}

// drainFrames handles the frames the sender buffered before it was done.
func (b *BoundProtocol) drainFrames() {
	for {
		select {
		case f, ok := <-b.sender.Frames():
			if !ok {
				return
			}
			b.handleFrame(f)
		default:
			return
		}
	}
}

func (b *BoundProtocol) handleFrame(f Frame) {
	if f.Code == StatusCode {
		b.emitError(b.newErr(UnknownCode, "status after handshake"))
		return
	}

	entry, ok := b.protocol.Catalog().ByCode(f.Code)
	if !ok {
		b.logger.WithField("code", f.Code).Warn("Unknown message code")
		b.emitError(b.newErr(UnknownCode, fmt.Sprintf("%#x", f.Code)))
		return
	}

	data, err := entry.Decode(f.Payload)
	if err != nil {
		decodeErr := b.newErr(DecodeError, fmt.Sprintf("%s: %v", entry.Name, err))
		b.logger.WithError(err).WithField("message", entry.Name).Warn("Failed to decode message")

		// The failed frame still answers a request: the one waiting on its
		// code, or for request id protocols the one named by the leading id.
		if req := b.failedResponseTarget(f); req != nil {
			req.respCh <- result{err: decodeErr}
		}
		b.emitError(decodeErr)
		return
	}

	if req := b.matchPending(f.Code, data); req != nil {
		req.respCh <- result{data: data}
		return
	}

	b.emit(Message{Name: entry.Name, Code: f.Code, Data: data})
}

func (b *BoundProtocol) matchPending(code uint64, data interface{}) *pendingRequest {
	switch b.protocol.Correlation() {
	case ByRequestID:
		carrier, ok := data.(RequestIDCarrier)
		if !ok {
			return nil
		}
		return b.takePending(carrier.RequestID(), code)
	default:
		return b.takePending(code, code)
	}
}

func (b *BoundProtocol) failedResponseTarget(f Frame) *pendingRequest {
	if b.protocol.Correlation() != ByRequestID {
		return b.takePending(f.Code, f.Code)
	}
	if id, ok := leadingRequestID(f.Payload); ok {
		if req := b.takePending(id, f.Code); req != nil {
			return req
		}
	}
	return b.takeSoleWaiter(f.Code)
}

// leadingRequestID reads the id heading a request id payload whose remaining
// fields may not decode.
func leadingRequestID(payload []byte) (uint64, bool) {
	content, _, err := rlp.SplitList(payload)
	if err != nil {
		return 0, false
	}
	id, _, err := rlp.SplitUint64(content)
	return id, err == nil
}

// takeSoleWaiter removes and returns the only request waiting for a frame of
// the given code. It returns nil when none or several are waiting.
func (b *BoundProtocol) takeSoleWaiter(code uint64) *pendingRequest {
	b.mu.Lock()
	defer b.mu.Unlock()

	var (
		key   uint64
		found *pendingRequest
	)
	for k, req := range b.pending {
		if req.response != code {
			continue
		}
		if found != nil {
			return nil
		}
		key, found = k, req
	}
	if found != nil {
		delete(b.pending, key)
	}
	return found
}

func (b *BoundProtocol) emit(m Message) {
	select {
	case b.messages <- m:
	case <-b.done:
	}
}

func (b *BoundProtocol) emitError(err error) {
	select {
	case b.errors <- err:
	case <-b.done:
	}
}
