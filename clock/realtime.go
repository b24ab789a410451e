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
	"sort"
	"sync"
	"time"
)

// RealTimeClock provides the production Clock implementation.
// Now reads the Go monotonic clock. Pending sleeps are kept in one
// deadline-ordered set driven by a single runtime timer, so sleeps with
// different deadlines resolve in deadline order and never before their
// deadline.
//
// RealTimeClock is safe for concurrent use by multiple goroutines. The zero
// value is ready to use.
//
// Example:
//
//	clk := clock.NewRealTimeClock()
//	start := clk.Now()
//	_ = clock.SleepFor(clk, time.Second).Wait(ctx)
//	elapsed := clk.Now().Sub(start) // at least 1 second
type RealTimeClock struct {
	mu      sync.Mutex
	pending []*Sleep
	timer   *time.Timer
}

// NewRealTimeClock creates a new real-time clock for production use.
func NewRealTimeClock() *RealTimeClock {
	return &RealTimeClock{}
}

// Now returns the current instant. The value carries a monotonic reading,
// so Sub and comparisons are immune to wall-clock steps.
func (r *RealTimeClock) Now() Instant {
	return Instant{t: time.Now()}
}

// SleepUntil registers a sleep that fires once deadline has passed.
//
// A deadline that has already passed still goes through the pending set, so
// any earlier sleep that is due but not yet fired resolves first.
func (r *RealTimeClock) SleepUntil(deadline Instant) *Sleep {
	s := newSleep(deadline)

	r.mu.Lock()
	defer r.mu.Unlock()

	// Insert after any sleep with an equal deadline to keep creation order.
	idx := sort.Search(len(r.pending), func(i int) bool {
		return r.pending[i].deadline.t.After(deadline.t)
	})
	r.pending = append(r.pending, nil)
	copy(r.pending[idx+1:], r.pending[idx:])
	r.pending[idx] = s

	s.mu.Lock()
	s.release = func() { r.remove(s) }
	s.mu.Unlock()

	r.fireDueLocked()
	return s
}

// remove drops a stopped sleep from the pending set.
func (r *RealTimeClock) remove(s *Sleep) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, p := range r.pending {
		if p == s {
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			if i == 0 {
				r.armLocked()
			}
			return
		}
	}
}

// tick runs on the timer goroutine.
func (r *RealTimeClock) tick() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fireDueLocked()
}

// fireDueLocked fires the due prefix of the pending set in deadline order
// and re-arms the timer for the next deadline.
// Must be called with mutex locked.
func (r *RealTimeClock) fireDueLocked() {
	now := time.Now()
	n := 0
	for n < len(r.pending) && !r.pending[n].deadline.t.After(now) {
		r.pending[n].fire()
		n++
	}
	if n > 0 {
		remaining := make([]*Sleep, len(r.pending)-n)
		copy(remaining, r.pending[n:])
		r.pending = remaining
	}
	r.armLocked()
}

// armLocked points the timer at the earliest pending deadline, or stops it
// when nothing is pending. A stale tick only re-checks the pending set.
func (r *RealTimeClock) armLocked() {
	if len(r.pending) == 0 {
		if r.timer != nil {
			r.timer.Stop()
		}
		return
	}

	d := time.Until(r.pending[0].deadline.t)
	if r.timer == nil {
		r.timer = time.AfterFunc(d, r.tick)
		return
	}
	r.timer.Reset(d)
}

// PendingSleeps returns the number of sleeps waiting to fire.
func (r *RealTimeClock) PendingSleeps() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
