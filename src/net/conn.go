package net

import (
	"bufio"
	"crypto/ecdsa"
	"crypto/rand"
	"io"
	"net"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
	"github.com/puffscoin/puffsd/src/crypto/keys"
	"github.com/puffscoin/puffsd/src/protocol"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/sha3"
)

const (
	bufSize = 64 * 1024

	// maxFrameSize bounds a single wire frame.
	maxFrameSize = 16 * 1024 * 1024

	nonceSize = 32
)

// ErrAuthFailed is returned when a remote node cannot prove it owns the node
// id it announced.
var ErrAuthFailed = errors.New("node authentication failed")

// hello is the first value written on a connection in both directions.
type hello struct {
	NodeID     string
	ListenAddr string
	Protocols  []string
	Nonce      []byte
}

// auth follows hello: a signature of the nonce received in the remote hello.
type auth struct {
	Signature []byte
}

func newNonce() ([]byte, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return nonce, nil
}

func nonceHash(nonce []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte("puffsd hello"))
	h.Write(nonce)
	return h.Sum(nil)
}

// wireFrame carries one protocol frame over a shared connection.
type wireFrame struct {
	Protocol string
	Code     uint64
	Payload  []byte
}

// muxConn multiplexes the frames of several protocols over one net.Conn.
// Each protocol gets a connSender; closing any of them closes the connection.
type muxConn struct {
	conn    net.Conn
	r       *bufio.Reader
	stream  *rlp.Stream
	w       *bufio.Writer
	timeout time.Duration

	writeLock sync.Mutex
	senders   map[string]*connSender

	done      chan struct{}
	err       error
	errLock   sync.Mutex
	closeOnce sync.Once

	logger *logrus.Entry
}

func newMuxConn(conn net.Conn, timeout time.Duration, logger *logrus.Entry) *muxConn {
	r := bufio.NewReaderSize(conn, bufSize)
	return &muxConn{
		conn:    conn,
		r:       r,
		stream:  rlp.NewStream(r, 0),
		w:       bufio.NewWriterSize(conn, bufSize),
		timeout: timeout,
		senders: make(map[string]*connSender),
		done:    make(chan struct{}),
		logger:  logger,
	}
}

// handshake exchanges hello messages under the connection timeout, then
// signs the remote nonce and checks the remote signature of ours against the
// announced node id.
func (c *muxConn) handshake(key *ecdsa.PrivateKey, local hello) (hello, error) {
	var remote hello

	if c.timeout > 0 {
		c.conn.SetDeadline(time.Now().Add(c.timeout))
		defer c.conn.SetDeadline(time.Time{})
	}

	nonce, err := newNonce()
	if err != nil {
		return remote, err
	}
	local.Nonce = nonce

	if err := c.write(&local); err != nil {
		return remote, errors.Wrap(err, "writing hello")
	}
	if err := c.stream.Decode(&remote); err != nil {
		return remote, errors.Wrap(err, "reading hello")
	}
	if len(remote.Nonce) != nonceSize {
		return remote, errors.Wrapf(ErrAuthFailed, "nonce of %d bytes", len(remote.Nonce))
	}

	pub, err := keys.ParseNodeID(remote.NodeID)
	if err != nil {
		return remote, errors.Wrap(ErrAuthFailed, err.Error())
	}

	sig, err := keys.Sign(key, nonceHash(remote.Nonce))
	if err != nil {
		return remote, err
	}
	if err := c.write(&auth{Signature: sig}); err != nil {
		return remote, errors.Wrap(err, "writing auth")
	}

	var a auth
	if err := c.stream.Decode(&a); err != nil {
		return remote, errors.Wrap(err, "reading auth")
	}
	if !keys.Verify(pub, nonceHash(local.Nonce), a.Signature) {
		return remote, errors.Wrap(ErrAuthFailed, remote.NodeID)
	}

	return remote, nil
}

// sender registers the named protocol. It must be called before run.
func (c *muxConn) sender(name string) *connSender {
	s := &connSender{
		conn:     c,
		protocol: name,
		frames:   make(chan protocol.Frame, DefaultPipeBuffer),
	}
	c.senders[name] = s
	return s
}

func (c *muxConn) write(v interface{}) error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	if c.timeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	}

	if err := rlp.Encode(c.w, v); err != nil {
		return err
	}
	return c.w.Flush()
}

// run routes incoming frames to the protocol senders until the connection
// fails.
func (c *muxConn) run() {
	defer func() {
		for _, s := range c.senders {
			close(s.frames)
		}
	}()

	for {
		var f wireFrame
		if _, size, err := c.stream.Kind(); err != nil {
			c.close(err)
			return
		} else if size > maxFrameSize {
			c.close(errors.Errorf("frame of %d bytes exceeds limit", size))
			return
		}
		if err := c.stream.Decode(&f); err != nil {
			c.close(err)
			return
		}

		s, ok := c.senders[f.Protocol]
		if !ok {
			c.logger.WithField("protocol", f.Protocol).Warn("Frame for unknown protocol")
			continue
		}

		select {
		case s.frames <- protocol.Frame{Code: f.Code, Payload: f.Payload}:
		case <-c.done:
			return
		}
	}
}

// close records err as the reason the connection stopped and closes it.
func (c *muxConn) close(err error) {
	c.closeOnce.Do(func() {
		if err == io.EOF || isClosedErr(err) {
			err = nil
		}
		c.errLock.Lock()
		c.err = err
		c.errLock.Unlock()

		close(c.done)
		c.conn.Close()
	})
}

func (c *muxConn) getErr() error {
	c.errLock.Lock()
	defer c.errLock.Unlock()
	return c.err
}

func isClosedErr(err error) bool {
	return err != nil && errors.Is(err, net.ErrClosed)
}

// connSender is the protocol.Sender of one protocol on a muxConn.
type connSender struct {
	conn     *muxConn
	protocol string
	frames   chan protocol.Frame
}

// Send implements protocol.Sender.
func (s *connSender) Send(code uint64, payload []byte) error {
	select {
	case <-s.conn.done:
		return ErrTransportShutdown
	default:
	}

	err := s.conn.write(&wireFrame{Protocol: s.protocol, Code: code, Payload: payload})
	if err != nil {
		s.conn.close(err)
	}
	return err
}

// Frames implements protocol.Sender.
func (s *connSender) Frames() <-chan protocol.Frame {
	return s.frames
}

// Done implements protocol.Sender.
func (s *connSender) Done() <-chan struct{} {
	return s.conn.done
}

// Err implements protocol.Sender.
func (s *connSender) Err() error {
	return s.conn.getErr()
}

// Close implements protocol.Sender.
func (s *connSender) Close() error {
	s.conn.close(nil)
	return nil
}
