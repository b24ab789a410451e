// Copyright 2026 The JazzPetri Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package watch provides a single-slot, multi-reader channel that broadcasts
// the latest value of some state.
//
// The slot carries a version that is bumped on every change. Each Receiver
// remembers the last version it observed, so receivers catch up
// independently. Intermediate values are coalesced: a receiver that falls
// behind sees only the most recent value, never a stale replay.
//
// Example:
//
//	tx, rx := watch.New(Term{Number: 1})
//	go func() {
//	    for rx.Changed(ctx) == nil {
//	        ref := rx.BorrowAndUpdate()
//	        observe(ref.Value().Number)
//	        ref.Release()
//	    }
//	}()
//	tx.SendIfModified(func(t *Term) bool {
//	    if t.Number >= proposed {
//	        return false // no-op update wakes nobody
//	    }
//	    t.Number = proposed
//	    return true
//	})
//
// A Ref holds the slot's read lock, and the lock is not reentrant. While a Ref
// is outstanding, the same goroutine must not call any other method of the
// channel: a write deadlocks at once, and a second Borrow or Changed
// deadlocks as soon as a writer is waiting. Release the Ref first.
package watch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	// ErrClosed is returned by Changed and HasChanged once every sender has
	// been closed and nothing unseen remains. SendError wraps it when no
	// receiver is left.
	ErrClosed = errors.New("watch: channel closed")
)

// SendError is returned by Send when no receiver remains.
// Value holds the value that was not stored.
type SendError[T any] struct {
	Value T
}

// Error implements the error interface.
func (e *SendError[T]) Error() string {
	return fmt.Sprintf("watch: send failed: %v", ErrClosed)
}

// Unwrap returns ErrClosed.
func (e *SendError[T]) Unwrap() error {
	return ErrClosed
}

type shared[T any] struct {
	mu        sync.RWMutex
	value     T
	version   uint64
	senders   int
	receivers int

	// notify is closed and replaced on every version bump and when the last
	// sender closes.
	notify chan struct{}
}

func (s *shared[T]) broadcastLocked() {
	close(s.notify)
	s.notify = make(chan struct{})
}

// Sender publishes new values into the slot. It is safe for concurrent use.
type Sender[T any] struct {
	s      *shared[T]
	closed atomic.Bool
}

// Receiver observes the slot. A Receiver tracks its own seen version and must
// be used by one goroutine at a time; Clone it for another goroutine.
type Receiver[T any] struct {
	s      *shared[T]
	seen   uint64
	closed atomic.Bool
}

// New creates a watch channel holding initial. The returned receiver has
// already seen initial.
func New[T any](initial T) (*Sender[T], *Receiver[T]) {
	s := &shared[T]{
		value:     initial,
		senders:   1,
		receivers: 1,
		notify:    make(chan struct{}),
	}
	return &Sender[T]{s: s}, &Receiver[T]{s: s}
}

// Send replaces the slot with v and marks it unseen for every receiver.
// If no receiver remains the slot is left untouched and Send returns a
// *SendError carrying v.
func (tx *Sender[T]) Send(v T) error {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.receivers == 0 {
		return &SendError[T]{Value: v}
	}
	s.value = v
	s.version++
	s.broadcastLocked()
	return nil
}

// SendIfModified applies modify to the slot in place while holding the write
// lock. Receivers are notified only if modify returns true. It reports
// whether a notification was sent. It works whether or not receivers exist.
func (tx *Sender[T]) SendIfModified(modify func(v *T) bool) bool {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if !modify(&s.value) {
		return false
	}
	s.version++
	s.broadcastLocked()
	return true
}

// SendModify applies modify to the slot in place and always notifies.
func (tx *Sender[T]) SendModify(modify func(v *T)) {
	tx.SendIfModified(func(v *T) bool {
		modify(v)
		return true
	})
}

// SendReplace stores v regardless of receivers and returns the previous value.
func (tx *Sender[T]) SendReplace(v T) T {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.value
	s.value = v
	s.version++
	s.broadcastLocked()
	return old
}

// Borrow returns a read-only view of the current value. It does not touch any
// receiver's seen state. The caller must Release the Ref.
func (tx *Sender[T]) Borrow() *Ref[T] {
	tx.s.mu.RLock()
	return &Ref[T]{s: tx.s}
}

// Subscribe creates a new receiver that has already seen the current value.
func (tx *Sender[T]) Subscribe() *Receiver[T] {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()

	s.receivers++
	return &Receiver[T]{s: s, seen: s.version}
}

// ReceiverCount returns the number of open receivers.
func (tx *Sender[T]) ReceiverCount() int {
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	return tx.s.receivers
}

// IsClosed reports whether every receiver has been closed.
func (tx *Sender[T]) IsClosed() bool {
	return tx.ReceiverCount() == 0
}

// Clone returns another sender for the same slot.
func (tx *Sender[T]) Clone() *Sender[T] {
	clone := &Sender[T]{s: tx.s}
	if tx.closed.Load() {
		clone.closed.Store(true)
		return clone
	}

	tx.s.mu.Lock()
	tx.s.senders++
	tx.s.mu.Unlock()
	return clone
}

// Close releases this sender. When the last sender closes, receivers waiting
// in Changed return ErrClosed unless an unseen value remains.
// Close is idempotent per handle.
func (tx *Sender[T]) Close() {
	if !tx.closed.CompareAndSwap(false, true) {
		return
	}

	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()

	s.senders--
	if s.senders == 0 {
		s.broadcastLocked()
	}
}

// Changed waits until the slot holds a version this receiver has not seen,
// then marks it seen.
//
// If an unseen value is already present Changed returns immediately. It
// returns ErrClosed once every sender has been closed and nothing unseen
// remains, and ctx.Err() if ctx is done first.
func (rx *Receiver[T]) Changed(ctx context.Context) error {
	s := rx.s
	for {
		s.mu.RLock()
		if s.version != rx.seen {
			rx.seen = s.version
			s.mu.RUnlock()
			return nil
		}
		if s.senders == 0 {
			s.mu.RUnlock()
			return ErrClosed
		}
		notify := s.notify
		s.mu.RUnlock()

		select {
		case <-notify:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Borrow returns a read-only view of the current value without marking it
// seen. The caller must Release the Ref.
func (rx *Receiver[T]) Borrow() *Ref[T] {
	rx.s.mu.RLock()
	return &Ref[T]{s: rx.s, changed: rx.s.version != rx.seen}
}

// BorrowAndUpdate returns a read-only view of the current value and marks it
// seen. The caller must Release the Ref.
func (rx *Receiver[T]) BorrowAndUpdate() *Ref[T] {
	rx.s.mu.RLock()
	ref := &Ref[T]{s: rx.s, changed: rx.s.version != rx.seen}
	rx.seen = rx.s.version
	return ref
}

// HasChanged reports whether the slot holds a value this receiver has not
// seen. It returns ErrClosed once every sender has been closed.
func (rx *Receiver[T]) HasChanged() (bool, error) {
	s := rx.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.senders == 0 {
		return false, ErrClosed
	}
	return s.version != rx.seen, nil
}

// MarkChanged forces the current value to count as unseen.
func (rx *Receiver[T]) MarkChanged() {
	rx.s.mu.RLock()
	rx.seen = rx.s.version - 1
	rx.s.mu.RUnlock()
}

// MarkUnchanged marks the current value as seen without reading it.
func (rx *Receiver[T]) MarkUnchanged() {
	rx.s.mu.RLock()
	rx.seen = rx.s.version
	rx.s.mu.RUnlock()
}

// Clone returns a new receiver with the same seen state.
func (rx *Receiver[T]) Clone() *Receiver[T] {
	s := rx.s
	s.mu.Lock()
	defer s.mu.Unlock()

	s.receivers++
	return &Receiver[T]{s: s, seen: rx.seen}
}

// Close releases this receiver. Once every receiver is closed, Send fails.
// Close is idempotent per handle.
func (rx *Receiver[T]) Close() {
	if !rx.closed.CompareAndSwap(false, true) {
		return
	}

	rx.s.mu.Lock()
	rx.s.receivers--
	rx.s.mu.Unlock()
}

// Ref is a scope-bounded, read-only view of the slot. It holds the slot's
// read lock until Release, so senders block while a Ref is outstanding.
// Keep the scope short, and do not touch the channel again from the holding
// goroutine until Release: the read lock is not reentrant.
type Ref[T any] struct {
	s        *shared[T]
	changed  bool
	released bool
}

// Value returns a pointer to the slot. The pointee must not be modified and
// the pointer must not be used after Release.
func (r *Ref[T]) Value() *T {
	return &r.s.value
}

// HasChanged reports whether the value was unseen by the borrowing receiver
// at the time of the borrow. It is always false for a Ref from a Sender.
func (r *Ref[T]) HasChanged() bool {
	return r.changed
}

// Release drops the read lock. Calling it more than once is a no-op.
func (r *Ref[T]) Release() {
	if r.released {
		return
	}
	r.released = true
	r.s.mu.RUnlock()
}
