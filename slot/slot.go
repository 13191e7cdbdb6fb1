// Package slot holds the decrypted manifest for one session.
//
// A Slot is written at most once. Waiters registered before the write are
// resolved exactly once, in registration order, and the waiter list is
// cleared under the same lock that stores the content.
package slot

import (
	"context"
	"errors"
	"sync"
)

// ErrConflict is returned by Set when the slot already holds different content.
var ErrConflict = errors.New("slot: manifest already set with different content")

// ErrReset is returned by Await when the slot is reset before content arrives.
var ErrReset = errors.New("slot: reset before manifest was set")

type waiter struct {
	id      uint64
	resolve func(string)
}

// Slot is a write-once manifest holder with FIFO waiters.
// The zero value is ready to use.
type Slot struct {
	mu      sync.Mutex
	content string
	set     bool
	waiters []waiter
	nextID  uint64
	// resetCh is closed on Reset to release blocked Await calls.
	resetCh chan struct{}
}

// New returns an empty slot.
func New() *Slot {
	return &Slot{}
}

func (s *Slot) resetChLocked() chan struct{} {
	if s.resetCh == nil {
		s.resetCh = make(chan struct{})
	}
	return s.resetCh
}

// Set stores content and resolves pending waiters in FIFO order.
//
// Setting identical content again returns nil and resolves nothing.
// Setting different content returns ErrConflict and keeps the original.
func (s *Slot) Set(content string) error {
	s.mu.Lock()
	if s.set {
		same := s.content == content
		s.mu.Unlock()
		if same {
			return nil
		}
		return ErrConflict
	}
	s.content = content
	s.set = true
	pending := s.waiters
	s.waiters = nil
	s.mu.Unlock()

	for _, w := range pending {
		w.resolve(content)
	}
	return nil
}

// Content returns the stored manifest and whether it is set.
func (s *Slot) Content() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.content, s.set
}

// IsSet reports whether content has been stored.
func (s *Slot) IsSet() bool {
	_, ok := s.Content()
	return ok
}

// Notify registers fn to run with the content once it is set.
// If content is already set, fn runs immediately on the caller's goroutine.
// The returned cancel func removes fn if it has not run yet.
func (s *Slot) Notify(fn func(string)) (cancel func()) {
	s.mu.Lock()
	if s.set {
		content := s.content
		s.mu.Unlock()
		fn(content)
		return func() {}
	}
	id := s.nextID
	s.nextID++
	s.waiters = append(s.waiters, waiter{id: id, resolve: fn})
	s.mu.Unlock()

	return func() { s.remove(id) }
}

func (s *Slot) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range s.waiters {
		if w.id == id {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return
		}
	}
}

// Pending returns the number of registered waiters.
func (s *Slot) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waiters)
}

// Await returns the content, blocking until Set, Reset or ctx is done.
// A canceled waiter is removed and never resolved.
func (s *Slot) Await(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.set {
		content := s.content
		s.mu.Unlock()
		return content, nil
	}
	resetCh := s.resetChLocked()
	ch := make(chan string, 1)
	id := s.nextID
	s.nextID++
	s.waiters = append(s.waiters, waiter{id: id, resolve: func(c string) { ch <- c }})
	s.mu.Unlock()

	select {
	case content := <-ch:
		return content, nil
	case <-resetCh:
		return "", ErrReset
	case <-ctx.Done():
		s.remove(id)
		return "", ctx.Err()
	}
}

// Reset clears content and drops outstanding waiters without resolving them.
// Blocked Await calls return ErrReset.
func (s *Slot) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content = ""
	s.set = false
	s.waiters = nil
	if s.resetCh != nil {
		close(s.resetCh)
		s.resetCh = nil
	}
}
