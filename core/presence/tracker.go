// Package presence keeps track of which users hold at least one open real-time connection.
//
// State lives in memory only and is lost on restart: a fresh process reports everybody offline
// until their clients reconnect.
package presence

import (
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const DefaultShards = 32

type shard struct {
	mu    sync.RWMutex
	conns map[string]map[string]struct{} // {userID: {connID}}
}

// Tracker maps user IDs to their set of open connection IDs.
// Users are spread over independently locked shards so unrelated users never contend.
type Tracker struct {
	shards []*shard
	mask   uint64
}

// NewTracker returns a Tracker with n shards (rounded up to a power of two).
func NewTracker(n int) *Tracker {
	if n <= 0 {
		n = DefaultShards
	}
	size := 1
	for size < n {
		size <<= 1
	}
	t := &Tracker{
		shards: make([]*shard, size),
		mask:   uint64(size - 1),
	}
	for i := range t.shards {
		t.shards[i] = &shard{conns: make(map[string]map[string]struct{})}
	}
	return t
}

func (t *Tracker) shardFor(userID string) *shard {
	return t.shards[xxhash.Sum64String(userID)&t.mask]
}

// Connect adds connID to the user's set. It returns true if the user just came online.
func (t *Tracker) Connect(userID, connID string) (first bool) {
	s := t.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.conns[userID]
	if !ok {
		set = make(map[string]struct{}, 1)
		s.conns[userID] = set
	}
	set[connID] = struct{}{}
	return !ok
}

// Disconnect removes exactly connID from the user's set. It returns true if the user just went offline.
// Unknown users or connections are ignored.
func (t *Tracker) Disconnect(userID, connID string) (last bool) {
	s := t.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.conns[userID]
	if !ok {
		return false
	}
	if _, ok = set[connID]; !ok {
		return false
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(s.conns, userID)
		return true
	}
	return false
}

func (t *Tracker) IsOnline(userID string) bool {
	s := t.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns[userID]) > 0
}

// Connections returns a sorted snapshot of the user's connection IDs.
func (t *Tracker) Connections(userID string) []string {
	s := t.shardFor(userID)
	s.mu.RLock()
	set := s.conns[userID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// OnlineUsers returns a sorted snapshot of every online user ID.
// Shards are visited one at a time, so the result is not an atomic cut across users.
func (t *Tracker) OnlineUsers() []string {
	ids := make([]string, 0)
	for _, s := range t.shards {
		s.mu.RLock()
		for id := range s.conns {
			ids = append(ids, id)
		}
		s.mu.RUnlock()
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of online users and open connections.
func (t *Tracker) Count() (users, conns int) {
	for _, s := range t.shards {
		s.mu.RLock()
		users += len(s.conns)
		for _, set := range s.conns {
			conns += len(set)
		}
		s.mu.RUnlock()
	}
	return users, conns
}
