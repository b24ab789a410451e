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
	"sort"
	"sync"
	"time"
)

// VirtualClock provides a Clock implementation with manual time control for testing.
// Unlike RealTimeClock, VirtualClock does not use actual wall-clock time. Instead,
// time only advances when explicitly commanded via AdvanceTo or AdvanceBy methods.
//
// Pending sleeps are kept ordered by deadline. Advancing the clock fires every
// sleep whose deadline has been reached, in non-decreasing deadline order;
// sleeps with equal deadlines fire in creation order.
//
// VirtualClock is safe for concurrent use by multiple goroutines. All operations
// are protected by an internal mutex.
//
// Example:
//
//	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
//	clk := clock.NewVirtualClock(start)
//
//	s := clock.SleepFor(clk, 5*time.Second)
//
//	select {
//	case <-s.Done():
//	    t.Fatal("sleep fired before time advanced")
//	default:
//	}
//
//	clk.AdvanceBy(10 * time.Second)
//	<-s.Done()
type VirtualClock struct {
	mu      sync.Mutex
	current time.Time
	pending []*Sleep

	// changed is closed and replaced whenever the pending set changes.
	changed chan struct{}
}

// NewVirtualClock creates a new virtual clock starting at the specified time.
// The clock's time will only advance when AdvanceTo() or AdvanceBy() is called.
func NewVirtualClock(start time.Time) *VirtualClock {
	return &VirtualClock{
		current: start,
		pending: make([]*Sleep, 0),
		changed: make(chan struct{}),
	}
}

// Now returns the current virtual instant.
func (v *VirtualClock) Now() Instant {
	v.mu.Lock()
	defer v.mu.Unlock()
	return Instant{t: v.current}
}

// SleepUntil registers a sleep that fires when virtual time reaches deadline.
// If the deadline is not after the current virtual time, the sleep fires immediately.
func (v *VirtualClock) SleepUntil(deadline Instant) *Sleep {
	s := newSleep(deadline)

	v.mu.Lock()
	defer v.mu.Unlock()

	if !deadline.t.After(v.current) {
		s.fire()
		return s
	}

	// Insert after any sleep with an equal deadline to keep creation order.
	idx := sort.Search(len(v.pending), func(i int) bool {
		return v.pending[i].deadline.t.After(deadline.t)
	})
	v.pending = append(v.pending, nil)
	copy(v.pending[idx+1:], v.pending[idx:])
	v.pending[idx] = s

	s.mu.Lock()
	s.release = func() { v.remove(s) }
	s.mu.Unlock()

	v.notifyLocked()
	return s
}

// remove drops a stopped sleep from the pending set.
func (v *VirtualClock) remove(s *Sleep) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for i, p := range v.pending {
		if p == s {
			v.pending = append(v.pending[:i], v.pending[i+1:]...)
			v.notifyLocked()
			return
		}
	}
}

// AdvanceTo advances the virtual clock to target and fires all sleeps whose
// deadlines have been reached.
//
// If target is not after the current time, AdvanceTo is a no-op: the clock
// never moves backward.
func (v *VirtualClock) AdvanceTo(target Instant) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !target.t.After(v.current) {
		return
	}

	v.current = target.t
	v.fireDueLocked()
}

// AdvanceBy advances the virtual clock by d and fires all sleeps whose
// deadlines have been reached.
//
// If d is <= 0, AdvanceBy is a no-op.
func (v *VirtualClock) AdvanceBy(d time.Duration) {
	if d <= 0 {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.current = v.current.Add(d)
	v.fireDueLocked()
}

// fireDueLocked fires the due prefix of the pending set in deadline order.
// Must be called with mutex locked.
func (v *VirtualClock) fireDueLocked() {
	n := 0
	for n < len(v.pending) && !v.pending[n].deadline.t.After(v.current) {
		v.pending[n].fire()
		n++
	}
	if n == 0 {
		return
	}

	remaining := make([]*Sleep, len(v.pending)-n)
	copy(remaining, v.pending[n:])
	v.pending = remaining
	v.notifyLocked()
}

func (v *VirtualClock) notifyLocked() {
	close(v.changed)
	v.changed = make(chan struct{})
}

// PendingSleeps returns the number of sleeps waiting to fire.
// This is useful for testing to verify that sleeps have been properly cleaned up.
func (v *VirtualClock) PendingSleeps() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.pending)
}

// NextDeadline returns the earliest pending deadline.
// The boolean is false when nothing is pending.
func (v *VirtualClock) NextDeadline() (Instant, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(v.pending) == 0 {
		return Instant{}, false
	}
	return v.pending[0].deadline, true
}

// BlockUntilSleepers waits until at least n sleeps are pending or ctx is done.
// Tests use it to make sure a goroutine has registered its sleep before the
// clock is advanced.
func (v *VirtualClock) BlockUntilSleepers(ctx context.Context, n int) error {
	for {
		v.mu.Lock()
		if len(v.pending) >= n {
			v.mu.Unlock()
			return nil
		}
		changed := v.changed
		v.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
