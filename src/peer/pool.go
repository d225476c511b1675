package peer

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultMaxPeers is the pool size used when none is given.
const DefaultMaxPeers = 25

var (
	// ErrPeerBanned is returned by Add for a peer whose ban has not expired.
	ErrPeerBanned = errors.New("peer is banned")
	// ErrTooManyPeers is returned by Add when the pool is full.
	ErrTooManyPeers = errors.New("too many peers")
	// ErrPeerExists is returned by Add for an id already in the pool.
	ErrPeerExists = errors.New("peer already connected")
)

// Pool is the set of connected peers, keyed by id, plus the ban list.
type Pool struct {
	sync.RWMutex

	peers    map[string]*Peer
	banned   map[string]time.Time
	maxPeers int
	now      func() time.Time

	logger *logrus.Entry
}

// NewPool creates an empty pool accepting up to maxPeers peers.
func NewPool(maxPeers int, logger *logrus.Entry) *Pool {
	if maxPeers <= 0 {
		maxPeers = DefaultMaxPeers
	}

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &Pool{
		peers:    make(map[string]*Peer),
		banned:   make(map[string]time.Time),
		maxPeers: maxPeers,
		now:      time.Now,
		logger:   logger.WithField("component", "pool"),
	}
}

// Add registers a connected peer.
func (pp *Pool) Add(p *Peer) error {
	pp.Lock()
	defer pp.Unlock()

	if pp.isBanned(p.ID) {
		return errors.Wrap(ErrPeerBanned, p.ID)
	}
	if _, ok := pp.peers[p.ID]; ok {
		return errors.Wrap(ErrPeerExists, p.ID)
	}
	if len(pp.peers) >= pp.maxPeers {
		return errors.Wrapf(ErrTooManyPeers, "max %d", pp.maxPeers)
	}

	pp.peers[p.ID] = p

	pp.logger.WithFields(logrus.Fields{
		"peer":  p.ID,
		"peers": len(pp.peers),
	}).Debug("Added peer")

	return nil
}

// Remove drops p from the pool. A different peer registered under the same id
// is left alone.
func (pp *Pool) Remove(p *Peer) {
	pp.Lock()
	defer pp.Unlock()

	if pp.peers[p.ID] == p {
		delete(pp.peers, p.ID)
		pp.logger.WithField("peer", p.ID).Debug("Removed peer")
	}
}

// Get returns the peer with the given id.
func (pp *Pool) Get(id string) (*Peer, bool) {
	pp.RLock()
	defer pp.RUnlock()
	p, ok := pp.peers[id]
	return p, ok
}

// Peers returns the connected peers ordered by id.
func (pp *Pool) Peers() []*Peer {
	pp.RLock()
	defer pp.RUnlock()

	res := make([]*Peer, 0, len(pp.peers))
	for _, p := range pp.peers {
		res = append(res, p)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// Len returns the number of connected peers.
func (pp *Pool) Len() int {
	pp.RLock()
	defer pp.RUnlock()
	return len(pp.peers)
}

// Idle returns the first idle peer that has the named protocol bound, or nil.
func (pp *Pool) Idle(name string) *Peer {
	for _, p := range pp.Peers() {
		if p.Idle() && p.Understands(name) {
			return p
		}
	}
	return nil
}

// Ban disconnects p and refuses it for d.
func (pp *Pool) Ban(p *Peer, d time.Duration) {
	pp.Lock()
	pp.banned[p.ID] = pp.now().Add(d)
	if pp.peers[p.ID] == p {
		delete(pp.peers, p.ID)
	}
	pp.Unlock()

	pp.logger.WithFields(logrus.Fields{
		"peer":     p.ID,
		"duration": d,
	}).Info("Banned peer")

	p.Disconnect("banned")
}

// IsBanned reports whether id is currently banned.
func (pp *Pool) IsBanned(id string) bool {
	pp.Lock()
	defer pp.Unlock()
	return pp.isBanned(id)
}

// isBanned expects the lock to be held. Expired bans are forgotten.
func (pp *Pool) isBanned(id string) bool {
	expiry, ok := pp.banned[id]
	if !ok {
		return false
	}
	if !pp.now().Before(expiry) {
		delete(pp.banned, id)
		return false
	}
	return true
}
