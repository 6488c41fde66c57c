package sync

import (
	base "sync"
)

const (
	pointsPerStripe = 200
)

// StripedLock consistently maps an unbounded key space onto a fixed set of
// mutexes. Distinct keys may share a stripe, so a holder must never wait on
// another key while holding one.
type StripedLock struct {
	locks []base.Mutex
	ring  *ring
}

// NewStripedLock returns a new StripedLock with a static number of stripes.
func NewStripedLock(stripes uint) *StripedLock {
	if stripes == 0 {
		stripes = 1
	}

	return &StripedLock{
		locks: make([]base.Mutex, stripes),
		ring:  newRing(stripes, pointsPerStripe),
	}
}

// Get gets the lock for a key
func (l *StripedLock) Get(key []byte) *base.Mutex {
	return &l.locks[l.ring.stripe(key)]
}

// Lock locks the stripe for key and returns the func that unlocks it.
func (l *StripedLock) Lock(key []byte) (unlock func()) {
	mu := l.Get(key)
	mu.Lock()
	return mu.Unlock
}
