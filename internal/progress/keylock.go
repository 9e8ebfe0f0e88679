package progress

import (
	"hash/fnv"
	"sync"
)

// KeyLock striped mutex serializing writers of the same (username, courseID).
// Different keys may share a stripe, which only costs contention.
type KeyLock struct {
	stripes []sync.Mutex
}

// NewKeyLock create a KeyLock with n stripes
func NewKeyLock(n int) *KeyLock {
	if n < 1 {
		n = 1
	}
	return &KeyLock{stripes: make([]sync.Mutex, n)}
}

func (kl *KeyLock) stripe(username, courseID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(username))
	h.Write([]byte{0})
	h.Write([]byte(courseID))
	return &kl.stripes[h.Sum32()%uint32(len(kl.stripes))]
}

// Lock acquires the stripe of the key and returns its unlock func
func (kl *KeyLock) Lock(username, courseID string) func() {
	mu := kl.stripe(username, courseID)
	mu.Lock()
	return mu.Unlock
}
