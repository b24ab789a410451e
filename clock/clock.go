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

// Package clock provides the time abstraction used by asyncrt backends.
//
// The package defines an opaque monotonic Instant, a Clock that produces
// instants and sleeps, and the Timeout/TimeoutAt helpers that race an
// operation against a deadline.
//
// Key Features:
//   - Clock interface abstracts all time operations
//   - RealTimeClock uses the Go runtime timers and the monotonic clock
//   - VirtualClock provides manual time control for deterministic tests
//   - Sleep is a single-use suspension that can be stopped before it fires
//   - Timeout abandons the raced operation cooperatively on expiry
//
// A Sleep never resolves before its deadline. It may resolve late when the
// scheduler is under load.
//
// Example usage in production:
//
//	clk := clock.NewRealTimeClock()
//	start := clk.Now()
//	if err := clock.SleepFor(clk, 150*time.Millisecond).Wait(ctx); err != nil {
//	    return err
//	}
//	// Deadline chains are built from a recorded instant, not from repeated
//	// duration arithmetic, so they do not drift.
//	next := clk.SleepUntil(start.Add(300 * time.Millisecond))
//
// Example usage in tests:
//
//	clk := clock.NewVirtualClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
//	s := clock.SleepFor(clk, 5*time.Second)
//	clk.AdvanceBy(10 * time.Second) // instantly advance
//	<-s.Done()                      // resolved
package clock

import "time"

// Instant is an opaque, totally ordered point on a Clock's monotonic timeline.
//
// Instants are only meaningful relative to other instants produced by the
// same Clock. Comparing instants of different clocks is undefined.
// The zero Instant is before every instant a Clock produces.
type Instant struct {
	t time.Time
}

// Add returns the instant d after i.
func (i Instant) Add(d time.Duration) Instant {
	return Instant{t: i.t.Add(d)}
}

// Sub returns the duration i-u. If i is before u the result is negative.
func (i Instant) Sub(u Instant) time.Duration {
	return i.t.Sub(u.t)
}

// Before reports whether i is strictly before u.
func (i Instant) Before(u Instant) bool {
	return i.t.Before(u.t)
}

// After reports whether i is strictly after u.
func (i Instant) After(u Instant) bool {
	return i.t.After(u.t)
}

// Equal reports whether i and u are the same instant.
func (i Instant) Equal(u Instant) bool {
	return i.t.Equal(u.t)
}

// Compare returns -1 if i is before u, +1 if after, 0 if equal.
func (i Instant) Compare(u Instant) int {
	return i.t.Compare(u.t)
}

// IsZero reports whether i is the zero Instant.
func (i Instant) IsZero() bool {
	return i.t.IsZero()
}

// String formats the instant for logs.
func (i Instant) String() string {
	return i.t.Format(time.RFC3339Nano)
}

// Clock abstracts time operations for testing and production.
// Implementations must be safe for concurrent use by multiple goroutines.
//
// The Clock interface provides two core operations:
//   - Now() returns the current instant
//   - SleepUntil() returns a Sleep that resolves once the deadline has passed
//
// Duration based sleeps are derived with SleepFor.
//
// In production, use RealTimeClock which delegates to Go's time package.
// In tests, use VirtualClock which allows manual time advancement.
type Clock interface {
	// Now returns the current instant according to this clock.
	// Successive calls never go backwards.
	Now() Instant

	// SleepUntil returns a Sleep that resolves once deadline has passed.
	// A deadline that is not after Now() resolves immediately.
	// The Sleep must never resolve before deadline.
	SleepUntil(deadline Instant) *Sleep
}

// SleepFor returns a Sleep that resolves once d has elapsed on c.
// A non-positive d resolves immediately.
func SleepFor(c Clock, d time.Duration) *Sleep {
	return c.SleepUntil(c.Now().Add(d))
}
