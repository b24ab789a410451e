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

// Package mpsc provides an unbounded multi-producer, single-consumer channel.
//
// Unlike a buffered Go channel, Send never blocks and never fails for lack of
// capacity. It fails only when the receiver has been closed, and the
// undelivered message is handed back in a *SendError.
//
// Senders are reference counted: Clone adds a strong handle and Close
// releases one. When the last strong sender is closed, Recv drains whatever
// is still queued and then reports closure with ok == false. A WeakSender
// does not keep the channel open and can be upgraded only while the channel
// is still viable.
//
// Example:
//
//	tx, rx := mpsc.New[Event]()
//	for i := 0; i < workers; i++ {
//	    go produce(tx.Clone())
//	}
//	tx.Close()
//	for {
//	    ev, ok, err := rx.Recv(ctx)
//	    if err != nil || !ok {
//	        break
//	    }
//	    handle(ev)
//	}
package mpsc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	// ErrClosed is wrapped by SendError when the receiver has been closed.
	ErrClosed = errors.New("mpsc: receiver closed")

	// ErrSenderClosed is wrapped by SendError when Send is called on a closed Sender handle.
	ErrSenderClosed = errors.New("mpsc: sender handle closed")

	// ErrEmpty is returned by TryRecv when nothing is queued right now.
	ErrEmpty = errors.New("mpsc: channel empty")

	// ErrDisconnected is returned by TryRecv when the queue is empty and no
	// sender remains, or the receiver has been closed.
	ErrDisconnected = errors.New("mpsc: channel disconnected")
)

// SendError is returned by Send when the message could not be queued.
// Value holds the undelivered message.
type SendError[T any] struct {
	Value T
	Err   error
}

// Error implements the error interface.
func (e *SendError[T]) Error() string {
	return fmt.Sprintf("mpsc: send failed: %v", e.Err)
}

// Unwrap returns the reason the send failed.
func (e *SendError[T]) Unwrap() error {
	return e.Err
}

// chanState is shared by every handle of one channel.
type chanState[T any] struct {
	mu sync.Mutex
	q  queue[T]

	// strong is the number of open Sender handles.
	strong         int
	receiverClosed bool

	// wake has capacity one. A single receiver means one pending signal is
	// enough to never lose a wakeup.
	wake chan struct{}
}

func (c *chanState[T]) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Sender is a strong sending handle. It is safe for concurrent use.
type Sender[T any] struct {
	c      *chanState[T]
	closed atomic.Bool
}

// WeakSender is a non-owning handle that does not keep the channel open.
type WeakSender[T any] struct {
	c *chanState[T]
}

// Receiver is the single consuming handle. It must be used by one goroutine at a time.
type Receiver[T any] struct {
	c *chanState[T]
}

// New creates an unbounded channel with one strong Sender.
func New[T any]() (*Sender[T], *Receiver[T]) {
	c := &chanState[T]{
		strong: 1,
		wake:   make(chan struct{}, 1),
	}
	return &Sender[T]{c: c}, &Receiver[T]{c: c}
}

// Send queues msg without blocking.
//
// It fails with a *SendError carrying msg when the receiver has been closed
// (ErrClosed) or when this handle has been closed (ErrSenderClosed).
func (tx *Sender[T]) Send(msg T) error {
	if tx.closed.Load() {
		return &SendError[T]{Value: msg, Err: ErrSenderClosed}
	}

	c := tx.c
	c.mu.Lock()
	if c.receiverClosed {
		c.mu.Unlock()
		return &SendError[T]{Value: msg, Err: ErrClosed}
	}
	c.q.push(msg)
	c.mu.Unlock()

	c.signal()
	return nil
}

// Clone returns a new strong handle to the same channel.
// Cloning a closed handle, or a handle racing its own Close past the last
// strong reference, returns a closed handle. A channel that reached end of
// stream is never reopened.
func (tx *Sender[T]) Clone() *Sender[T] {
	clone := &Sender[T]{c: tx.c}

	c := tx.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if tx.closed.Load() || c.strong == 0 {
		clone.closed.Store(true)
		return clone
	}
	c.strong++
	return clone
}

// Close releases this strong handle. When the last strong handle is closed
// the receiver observes end of stream after draining the queue.
// Close is idempotent per handle.
func (tx *Sender[T]) Close() {
	if !tx.closed.CompareAndSwap(false, true) {
		return
	}

	c := tx.c
	c.mu.Lock()
	c.strong--
	last := c.strong == 0
	c.mu.Unlock()

	if last {
		c.signal()
	}
}

// Downgrade returns a WeakSender for the same channel.
func (tx *Sender[T]) Downgrade() *WeakSender[T] {
	return &WeakSender[T]{c: tx.c}
}

// IsClosed reports whether the receiver has been closed.
func (tx *Sender[T]) IsClosed() bool {
	tx.c.mu.Lock()
	defer tx.c.mu.Unlock()
	return tx.c.receiverClosed
}

// SameChannel reports whether tx and other feed the same receiver.
func (tx *Sender[T]) SameChannel(other *Sender[T]) bool {
	return tx.c == other.c
}

// Upgrade returns a new strong Sender if the channel is still viable.
//
// The channel is viable while at least one strong Sender is open and the
// receiver is open. Once the strong count has dropped to zero the channel
// is closed for good: Upgrade fails even if the receiver is still alive,
// because the receiver may already have observed end of stream.
func (w *WeakSender[T]) Upgrade() (*Sender[T], bool) {
	c := w.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.strong == 0 || c.receiverClosed {
		return nil, false
	}
	c.strong++
	return &Sender[T]{c: c}, true
}

// Recv waits for the next message.
//
// It returns (msg, true, nil) for a message, (zero, false, nil) once every
// strong sender is closed and the queue is drained, and (zero, false,
// ctx.Err()) if ctx is done first. A cancelled Recv loses no message.
func (rx *Receiver[T]) Recv(ctx context.Context) (T, bool, error) {
	c := rx.c
	var zero T

	for {
		c.mu.Lock()
		if c.receiverClosed {
			c.mu.Unlock()
			return zero, false, nil
		}
		if v, ok := c.q.pop(); ok {
			c.mu.Unlock()
			return v, true, nil
		}
		if c.strong == 0 {
			c.mu.Unlock()
			return zero, false, nil
		}
		c.mu.Unlock()

		select {
		case <-c.wake:
		case <-ctx.Done():
			return zero, false, ctx.Err()
		}
	}
}

// TryRecv returns the next message without waiting.
// It returns ErrEmpty when nothing is queued but senders remain, and
// ErrDisconnected when the channel can produce no further messages.
func (rx *Receiver[T]) TryRecv() (T, error) {
	c := rx.c
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	if c.receiverClosed {
		return zero, ErrDisconnected
	}
	if v, ok := c.q.pop(); ok {
		return v, nil
	}
	if c.strong == 0 {
		return zero, ErrDisconnected
	}
	return zero, ErrEmpty
}

// Len returns the number of queued messages.
func (rx *Receiver[T]) Len() int {
	rx.c.mu.Lock()
	defer rx.c.mu.Unlock()
	return rx.c.q.len()
}

// Close drops the receiver. Queued messages are discarded and every
// subsequent Send fails, returning its message.
func (rx *Receiver[T]) Close() {
	c := rx.c
	c.mu.Lock()
	defer c.mu.Unlock()

	c.receiverClosed = true
	c.q.reset()
}
