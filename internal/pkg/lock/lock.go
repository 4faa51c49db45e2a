// Package lock provides per-user in-flight guards.
package lock

import (
	"sync"
)

// UserLock admits at most one in-flight operation per user id. It never
// blocks: a second caller for a busy user is turned away.
type UserLock struct {
	mu   sync.Mutex
	held map[int64]struct{}
}

// NewUserLock creates a new UserLock instance.
func NewUserLock() *UserLock {
	return &UserLock{held: make(map[int64]struct{})}
}

// TryLock acquires the user's guard without blocking.
// Returns true if the guard was acquired, false if another holder has it.
func (ul *UserLock) TryLock(userID int64) bool {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	if _, busy := ul.held[userID]; busy {
		return false
	}
	ul.held[userID] = struct{}{}
	return true
}

// Unlock releases the user's guard. Releasing a free guard is a no-op.
func (ul *UserLock) Unlock(userID int64) {
	ul.mu.Lock()
	delete(ul.held, userID)
	ul.mu.Unlock()
}

// Do runs fn only if the user's guard is free, returning ErrBusy otherwise.
func (ul *UserLock) Do(userID int64, fn func() error) error {
	if !ul.TryLock(userID) {
		return ErrBusy
	}
	defer ul.Unlock(userID)
	return fn()
}

// size returns the number of users holding a guard.
func (ul *UserLock) size() int {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	return len(ul.held)
}
