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

package rt

import (
	"context"
	"errors"
	"time"

	"github.com/jazzpetri/asyncrt/clock"
	"github.com/jazzpetri/asyncrt/mpsc"
	"github.com/jazzpetri/asyncrt/oneshot"
	"github.com/jazzpetri/asyncrt/spawn"
	"github.com/jazzpetri/asyncrt/watch"
)

// Metric names recorded by the facade.
const (
	MetricTimeoutsElapsed = "asyncrt_timeouts_elapsed_total"
	MetricOneshotChannels = "asyncrt_oneshot_channels_total"
	MetricMpscChannels    = "asyncrt_mpsc_channels_total"
	MetricWatchChannels   = "asyncrt_watch_channels_total"
)

// Spawn schedules fn on r's spawner. See spawn.Spawn.
func Spawn[T any](ctx context.Context, r Runtime, fn func(ctx context.Context) T) *spawn.JoinHandle[T] {
	return spawn.Spawn(r.Spawner(), ctx, fn)
}

// IsPanic reports whether err is a JoinError for a panicked task.
func IsPanic(err error) bool {
	return spawn.IsPanic(err)
}

// Now returns the current instant of r's clock.
func Now(r Runtime) clock.Instant {
	return r.Clock().Now()
}

// Sleep waits for d on r's clock. If ctx is done first the timer is
// released and ctx.Err() is returned.
func Sleep(ctx context.Context, r Runtime, d time.Duration) error {
	return wait(ctx, clock.SleepFor(r.Clock(), d))
}

// SleepUntil waits until deadline on r's clock.
func SleepUntil(ctx context.Context, r Runtime, deadline clock.Instant) error {
	return wait(ctx, r.Clock().SleepUntil(deadline))
}

func wait(ctx context.Context, s *clock.Sleep) error {
	if err := s.Wait(ctx); err != nil {
		s.Stop()
		return err
	}
	return nil
}

// Timeout runs op with a deadline d from now on r's clock. See clock.Timeout.
func Timeout[T any](ctx context.Context, r Runtime, d time.Duration, op clock.Operation[T]) (T, error) {
	v, err := clock.Timeout(ctx, r.Clock(), d, op)
	countElapsed(r, err)
	return v, err
}

// TimeoutAt runs op with an absolute deadline on r's clock.
func TimeoutAt[T any](ctx context.Context, r Runtime, deadline clock.Instant, op clock.Operation[T]) (T, error) {
	v, err := clock.TimeoutAt(ctx, r.Clock(), deadline, op)
	countElapsed(r, err)
	return v, err
}

func countElapsed(r Runtime, err error) {
	if errors.Is(err, clock.ErrElapsed) {
		r.Metrics().Inc(MetricTimeoutsElapsed)
	}
}

// Oneshot creates a single-use channel.
func Oneshot[T any](r Runtime) (*oneshot.Sender[T], *oneshot.Receiver[T]) {
	r.Metrics().Inc(MetricOneshotChannels)
	return oneshot.New[T]()
}

// Unbounded creates an unbounded multi-producer, single-consumer channel.
func Unbounded[T any](r Runtime) (*mpsc.Sender[T], *mpsc.Receiver[T]) {
	r.Metrics().Inc(MetricMpscChannels)
	return mpsc.New[T]()
}

// Watch creates a watch channel holding initial.
func Watch[T any](r Runtime, initial T) (*watch.Sender[T], *watch.Receiver[T]) {
	r.Metrics().Inc(MetricWatchChannels)
	return watch.New(initial)
}
