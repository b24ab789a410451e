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

package spawn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// JoinError reports that a task did not produce a value, either because it
// panicked or because it was cancelled.
type JoinError struct {
	id         uuid.UUID
	panicked   bool
	panicValue any
	cause      error
}

// Error implements the error interface.
func (e *JoinError) Error() string {
	if e.panicked {
		return fmt.Sprintf("spawn: task %s panicked: %v", e.id, e.panicValue)
	}
	return fmt.Sprintf("spawn: task %s cancelled: %v", e.id, e.cause)
}

// Unwrap returns the cancellation cause, if any.
func (e *JoinError) Unwrap() error {
	return e.cause
}

// IsPanic reports whether the task panicked.
func (e *JoinError) IsPanic() bool {
	return e.panicked
}

// IsCancelled reports whether the task was cancelled.
func (e *JoinError) IsCancelled() bool {
	return !e.panicked
}

// Panic returns the recovered panic value, or nil if the task was cancelled.
func (e *JoinError) Panic() any {
	return e.panicValue
}

// ID returns the task identifier.
func (e *JoinError) ID() uuid.UUID {
	return e.id
}

// IsPanic reports whether err is, or wraps, a JoinError for a panicked task.
func IsPanic(err error) bool {
	var je *JoinError
	return errors.As(err, &je) && je.IsPanic()
}

// IsCancelled reports whether err is, or wraps, a JoinError for a cancelled
// task.
func IsCancelled(err error) bool {
	var je *JoinError
	return errors.As(err, &je) && je.IsCancelled()
}

// JoinHandle is the awaitable result of a spawned task.
type JoinHandle[T any] struct {
	id     uuid.UUID
	cancel context.CancelCauseFunc

	once    sync.Once
	done    chan struct{}
	value   T
	err     error
	aborted atomic.Bool
}

// Spawn schedules fn on s and returns its handle without blocking.
//
// fn receives a context derived from ctx that is also cancelled by Abort and
// by a forced spawner shutdown. If s has been shut down the handle resolves
// immediately with a cancelled JoinError wrapping ErrShutdown.
func Spawn[T any](s Spawner, ctx context.Context, fn func(ctx context.Context) T) *JoinHandle[T] {
	taskCtx, cancel := context.WithCancelCause(ctx)
	h := &JoinHandle[T]{
		id:     uuid.New(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	var result T
	t := Task{
		ID:  h.id,
		Run: func(ctx context.Context) { result = fn(ctx) },
		Done: func(out Outcome) {
			h.finish(result, out)
		},
	}
	if err := s.Submit(taskCtx, t); err != nil {
		h.finish(result, Outcome{Cancelled: true, Cause: err})
	}
	return h
}

func (h *JoinHandle[T]) finish(v T, out Outcome) {
	h.once.Do(func() {
		switch {
		case out.Panicked:
			h.err = &JoinError{id: h.id, panicked: true, panicValue: out.PanicValue}
		case out.Cancelled:
			h.err = &JoinError{id: h.id, cause: out.Cause}
		case h.aborted.Load():
			h.err = &JoinError{id: h.id, cause: ErrAborted}
		default:
			h.value = v
		}
		h.cancel(nil)
		close(h.done)
	})
}

// Join waits for the task to finish and returns its value.
//
// It returns a *JoinError if the task panicked or was cancelled, and
// ctx.Err() if ctx is done first. Abandoning a Join does not affect the task.
func (h *JoinHandle[T]) Join(ctx context.Context) (T, error) {
	select {
	case <-h.done:
		return h.value, h.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done returns a channel that is closed once the task has finished.
func (h *JoinHandle[T]) Done() <-chan struct{} {
	return h.done
}

// ID returns the task identifier.
func (h *JoinHandle[T]) ID() uuid.UUID {
	return h.id
}

// IsFinished reports whether the task has finished.
func (h *JoinHandle[T]) IsFinished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Abort requests cancellation of the task by cancelling its context.
// A task that has not finished when Abort is called resolves with a
// cancelled JoinError wrapping ErrAborted, even if it returns a value.
// Aborting a finished task has no effect.
func (h *JoinHandle[T]) Abort() {
	if h.IsFinished() {
		return
	}
	h.aborted.Store(true)
	h.cancel(ErrAborted)
}
