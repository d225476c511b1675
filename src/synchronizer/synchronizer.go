// Package synchronizer tracks the chain heads that peers announce.
package synchronizer

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/puffscoin/puffsd/src/peer"
	"github.com/puffscoin/puffsd/src/protocol"
	"github.com/sirupsen/logrus"
)

// Announcement is the highest block a peer has announced.
type Announcement struct {
	PeerID string
	Hash   common.Hash
	Number *big.Int
}

// Synchronizer records block announcements per peer. Choosing what to fetch
// is left to its callers.
type Synchronizer struct {
	mu    sync.RWMutex
	heads map[string]Announcement

	logger *logrus.Entry
}

// NewSynchronizer creates an empty Synchronizer.
func NewSynchronizer(logger *logrus.Entry) *Synchronizer {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &Synchronizer{
		heads:  make(map[string]Announcement),
		logger: logger.WithField("component", "synchronizer"),
	}
}

// Announced records the highest of the announced blocks for p.
func (s *Synchronizer) Announced(hashes []protocol.BlockHashNumber, p *peer.Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	head, ok := s.heads[p.ID]
	for _, h := range hashes {
		if h.Number == nil {
			continue
		}
		if !ok || h.Number.Cmp(head.Number) > 0 {
			head = Announcement{PeerID: p.ID, Hash: h.Hash, Number: new(big.Int).Set(h.Number)}
			ok = true
		}
	}
	if !ok {
		return
	}
	s.heads[p.ID] = head

	s.logger.WithFields(logrus.Fields{
		"peer":   p.ID,
		"number": head.Number,
		"hash":   head.Hash.Hex(),
	}).Debug("Announced")
}

// Forget drops the announcements of a peer.
func (s *Synchronizer) Forget(peerID string) {
	s.mu.Lock()
	delete(s.heads, peerID)
	s.mu.Unlock()
}

// Head returns the highest announcement of a peer.
func (s *Synchronizer) Head(peerID string) (Announcement, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.heads[peerID]
	return a, ok
}

// Best returns the highest announcement across all peers. Ties go to the
// lowest peer id.
func (s *Synchronizer) Best() (Announcement, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		best  Announcement
		found bool
	)
	for _, a := range s.heads {
		if !found {
			best, found = a, true
			continue
		}
		switch c := a.Number.Cmp(best.Number); {
		case c > 0, c == 0 && a.PeerID < best.PeerID:
			best = a
		}
	}
	return best, found
}
