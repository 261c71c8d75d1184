// Package store implements the info-hash / peer / token index that backs
// get_peers and announce_peer: for each info-hash, the set of peers that have
// announced it and the single token issued for it.
package store

import (
	"fmt"
	"sync"

	"github.com/Sloaix/torrent-dht/internal/kademlia"
)

// MaxInfoHashes and MaxPeersPerHash bound the store's memory footprint.
const (
	MaxInfoHashes   = 1 << 20 // 1,048,576
	MaxPeersPerHash = 100
)

type entry struct {
	peers map[kademlia.Endpoint]struct{}
	token string
}

// Store is an info_hash_hex -> {peer set, token} index. A token, once set for
// a given info-hash, is fixed for the lifetime of that entry; writes carrying
// a different token are rejected rather than overwriting it.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func New() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// Add inserts peer under hashHex with the given token. It is rejected (false
// and a non-nil error) without mutation if: the store is at its info-hash limit and hashHex
// is new; hashHex already has a token that differs from token; or hashHex's
// peer set is already at capacity. The token is recorded on the first
// successful write for a new hashHex and never changes afterward.
func (s *Store) Add(hashHex string, peer kademlia.Endpoint, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[hashHex]
	if !exists {
		if len(s.entries) >= MaxInfoHashes {
			return false, fmt.Errorf("store: info-hash limit (%d) reached", MaxInfoHashes)
		}
		e = &entry{peers: make(map[kademlia.Endpoint]struct{}), token: token}
		s.entries[hashHex] = e
	}
	if e.token != token {
		return false, fmt.Errorf("store: token mismatch for info-hash %s", hashHex)
	}
	if _, already := e.peers[peer]; !already && len(e.peers) >= MaxPeersPerHash {
		return false, fmt.Errorf("store: peer limit (%d) reached for info-hash %s", MaxPeersPerHash, hashHex)
	}

	e.peers[peer] = struct{}{}
	return true, nil
}

// AddList applies Add for each peer in peers, stopping at the first rejected
// peer is not required by the design — each peer is evaluated independently
// so a full peer set for one info-hash does not block the rest.
func (s *Store) AddList(hashHex string, peers []kademlia.Endpoint, token string) {
	for _, p := range peers {
		s.Add(hashHex, p, token)
	}
}

// Find returns the peers stored for hashHex, or (nil, false) if absent.
func (s *Store) Find(hashHex string) ([]kademlia.Endpoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[hashHex]
	if !ok || len(e.peers) == 0 {
		return nil, false
	}
	out := make([]kademlia.Endpoint, 0, len(e.peers))
	for p := range e.peers {
		out = append(out, p)
	}
	return out, true
}

// FindToken returns the token stored for hashHex, or ("", false) if absent.
func (s *Store) FindToken(hashHex string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[hashHex]
	if !ok {
		return "", false
	}
	return e.token, true
}

// Remove deletes both the peer set and the token for hashHex.
func (s *Store) Remove(hashHex string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, hashHex)
}

// Len returns the number of distinct info-hashes currently stored.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
