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
	"sync"
)

type sleepState int

const (
	sleepPending sleepState = iota
	sleepFired
	sleepStopped
)

// Sleep is a single-use suspension created by a Clock.
//
// Lifecycle: pending -> fired (Done is closed) or pending -> stopped.
// A stopped Sleep never fires and Done is never closed.
//
// Sleep is safe for concurrent use.
type Sleep struct {
	deadline Instant
	done     chan struct{}

	mu    sync.Mutex
	state sleepState

	// release frees the backing timer registration. Set by the clock while
	// holding mu, so fire can never observe a half-built Sleep.
	release func()
}

func newSleep(deadline Instant) *Sleep {
	return &Sleep{
		deadline: deadline,
		done:     make(chan struct{}),
	}
}

// fire resolves the sleep. Returns false if it already fired or was stopped.
func (s *Sleep) fire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != sleepPending {
		return false
	}
	s.state = sleepFired
	close(s.done)
	return true
}

// Deadline returns the instant after which the sleep resolves.
func (s *Sleep) Deadline() Instant {
	return s.deadline
}

// Done returns a channel that is closed when the sleep resolves.
func (s *Sleep) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the sleep resolves or ctx is done.
// Returning early because of ctx does not stop the sleep; call Stop for that.
func (s *Sleep) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop cancels a pending sleep and releases its timer.
// It returns true if the call prevented the sleep from firing.
// Stopping a fired or already stopped sleep is a no-op.
func (s *Sleep) Stop() bool {
	s.mu.Lock()
	if s.state != sleepPending {
		s.mu.Unlock()
		return false
	}
	s.state = sleepStopped
	release := s.release
	s.mu.Unlock()

	if release != nil {
		release()
	}
	return true
}

// Fired reports whether the sleep has resolved.
func (s *Sleep) Fired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == sleepFired
}
