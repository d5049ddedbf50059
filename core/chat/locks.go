package chat

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const lockStripes = 256

// keyedLocks serialises work per key over a fixed set of mutexes.
// Two keys may share a stripe; that only costs some contention.
type keyedLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (l *keyedLocks) lock(key string) func() {
	mu := &l.stripes[xxhash.Sum64String(key)%lockStripes]
	mu.Lock()
	return mu.Unlock
}
