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

package clock

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrElapsed is returned by Timeout and TimeoutAt when the deadline passes
// before the raced operation completes.
var ErrElapsed = errors.New("deadline has elapsed")

// ElapsedError reports a deadline that expired before an operation completed.
// It matches ErrElapsed with errors.Is.
type ElapsedError struct {
	// Deadline is the instant that expired.
	Deadline Instant
}

// Error implements the error interface.
func (e *ElapsedError) Error() string {
	return fmt.Sprintf("%s (deadline %s)", ErrElapsed, e.Deadline)
}

// Unwrap returns ErrElapsed.
func (e *ElapsedError) Unwrap() error {
	return ErrElapsed
}

// Operation is a unit of work raced against a deadline.
// It must return promptly once ctx is cancelled.
type Operation[T any] func(ctx context.Context) (T, error)

type outcome[T any] struct {
	value    T
	err      error
	panicked bool
	panicVal any
}

// Timeout runs op and waits at most d for it to finish.
// It is TimeoutAt with a deadline of c.Now() + d.
func Timeout[T any](ctx context.Context, c Clock, d time.Duration, op Operation[T]) (T, error) {
	return TimeoutAt(ctx, c, c.Now().Add(d), op)
}

// TimeoutAt races op against deadline on clock c and produces exactly one outcome:
//   - op's result, if op finishes first
//   - an *ElapsedError, if the deadline passes first
//   - ctx.Err(), if ctx is done first
//
// When op loses the race its context is cancelled and its result is
// discarded. Cancellation is cooperative: op is not interrupted, it is only
// asked to stop and nobody waits for it.
//
// A panic in op is re-raised on the caller's goroutine when op wins the race.
func TimeoutAt[T any](ctx context.Context, c Clock, deadline Instant, op Operation[T]) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sleep := c.SleepUntil(deadline)
	defer sleep.Stop()

	done := make(chan outcome[T], 1)
	go func() {
		var o outcome[T]
		defer func() {
			if r := recover(); r != nil {
				o.panicked = true
				o.panicVal = r
			}
			done <- o
		}()
		o.value, o.err = op(opCtx)
	}()

	select {
	case o := <-done:
		return finish(o)
	case <-sleep.Done():
		// An operation that completed at the same moment still wins.
		select {
		case o := <-done:
			return finish(o)
		default:
		}
		return zero, &ElapsedError{Deadline: deadline}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func finish[T any](o outcome[T]) (T, error) {
	if o.panicked {
		panic(o.panicVal)
	}
	return o.value, o.err
}
