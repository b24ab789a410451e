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

// Package oneshot provides a single-value channel for request/response
// rendezvous between exactly two goroutines.
//
// At most one value is ever transmitted. Send consumes the Sender. Closing
// the Sender without sending wakes the Receiver with ErrSenderDropped, so a
// waiting receiver never hangs. Closing the Receiver first makes Send fail
// and hand the value back inside a *SendError.
//
// Example:
//
//	tx, rx := oneshot.New[Response]()
//	go func() {
//	    defer tx.Close()
//	    if err := tx.Send(handle(req)); err != nil {
//	        // receiver went away; err carries the undelivered value
//	    }
//	}()
//	resp, err := rx.Recv(ctx)
package oneshot

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrSenderDropped is returned by Recv when the sender was closed without sending.
	ErrSenderDropped = errors.New("oneshot: sender dropped without sending")

	// ErrReceiverClosed is wrapped by SendError when the receiver was closed before Send.
	ErrReceiverClosed = errors.New("oneshot: receiver closed")

	// ErrSenderUsed is wrapped by SendError when Send is called on a consumed sender.
	ErrSenderUsed = errors.New("oneshot: sender already used")

	// ErrEmpty is returned by TryRecv while no value has been sent yet.
	ErrEmpty = errors.New("oneshot: no value yet")

	// ErrReceived is returned when the value has already been taken.
	ErrReceived = errors.New("oneshot: value already received")
)

// SendError is returned by Send when the value could not be delivered.
// Value holds exactly what the caller tried to send.
type SendError[T any] struct {
	Value T
	Err   error
}

// Error implements the error interface.
func (e *SendError[T]) Error() string {
	return fmt.Sprintf("oneshot: send failed: %v", e.Err)
}

// Unwrap returns the reason the send failed.
func (e *SendError[T]) Unwrap() error {
	return e.Err
}

type state[T any] struct {
	mu             sync.Mutex
	value          T
	hasValue       bool
	taken          bool
	senderDone     bool
	receiverClosed bool

	// done is closed when the sender sends or is closed.
	done chan struct{}
}

// Sender is the sending half of a oneshot channel.
type Sender[T any] struct {
	s *state[T]
}

// Receiver is the receiving half of a oneshot channel.
// A Receiver must be used by a single goroutine.
type Receiver[T any] struct {
	s *state[T]
}

// New creates a connected Sender/Receiver pair.
func New[T any]() (*Sender[T], *Receiver[T]) {
	s := &state[T]{done: make(chan struct{})}
	return &Sender[T]{s: s}, &Receiver[T]{s: s}
}

// Send delivers v and consumes the sender.
//
// If the receiver has been closed, or the sender was already used or closed,
// Send returns a *SendError carrying v.
func (tx *Sender[T]) Send(v T) error {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.senderDone {
		return &SendError[T]{Value: v, Err: ErrSenderUsed}
	}
	s.senderDone = true
	close(s.done)

	if s.receiverClosed {
		return &SendError[T]{Value: v, Err: ErrReceiverClosed}
	}
	s.value = v
	s.hasValue = true
	return nil
}

// Close drops the sender without sending. A pending Recv resolves with
// ErrSenderDropped. Close after Send is a no-op, so it is safe to defer.
func (tx *Sender[T]) Close() {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.senderDone {
		return
	}
	s.senderDone = true
	close(s.done)
}

// IsClosed reports whether the receiver has been closed.
// Producers use it to skip work whose result nobody will read.
func (tx *Sender[T]) IsClosed() bool {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	return tx.s.receiverClosed
}

// Recv waits for the value.
//
// It returns ErrSenderDropped if the sender was closed without sending, and
// ctx.Err() if ctx is done first. Cancelling a Recv leaves the channel
// untouched; a later Recv can still get the value.
func (rx *Receiver[T]) Recv(ctx context.Context) (T, error) {
	select {
	case <-rx.s.done:
		return rx.take()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// TryRecv returns the value if it has been sent, or ErrEmpty if the sender is
// still pending.
func (rx *Receiver[T]) TryRecv() (T, error) {
	select {
	case <-rx.s.done:
		return rx.take()
	default:
		var zero T
		return zero, ErrEmpty
	}
}

func (rx *Receiver[T]) take() (T, error) {
	s := rx.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	switch {
	case s.hasValue:
		v := s.value
		s.value = zero
		s.hasValue = false
		s.taken = true
		return v, nil
	case s.taken:
		return zero, ErrReceived
	default:
		return zero, ErrSenderDropped
	}
}

// Done returns a channel that is closed once Recv would not block.
func (rx *Receiver[T]) Done() <-chan struct{} {
	return rx.s.done
}

// Close drops the receiver. A later Send fails and returns its value.
// A value that was sent but not received is discarded.
func (rx *Receiver[T]) Close() {
	s := rx.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	s.receiverClosed = true
	s.value = zero
	s.hasValue = false
}
