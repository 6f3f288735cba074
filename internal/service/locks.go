package service

import "sync"

// userLocks hands out one mutex per user ID. Holding the user's lock across
// check, gateway confirmation and apply is what serialises concurrent
// consumptions and keeps the ledger free of lost updates.
//
// Locks are never evicted; one idle mutex per user seen since startup is
// cheap enough at this service's scale.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for userID and returns its unlock function.
func (u *userLocks) Lock(userID string) func() {
	u.mu.Lock()
	m, ok := u.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		u.locks[userID] = m
	}
	u.mu.Unlock()

	m.Lock()
	return m.Unlock
}
