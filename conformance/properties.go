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

package conformance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jazzpetri/asyncrt/clock"
	"github.com/jazzpetri/asyncrt/mpsc"
	"github.com/jazzpetri/asyncrt/oneshot"
	"github.com/jazzpetri/asyncrt/rt"
	"github.com/jazzpetri/asyncrt/spawn"
	"github.com/jazzpetri/asyncrt/watch"
)

// Properties returns the full property set in a stable order.
func Properties() []Property {
	return []Property{
		{Name: "mpsc.fifo", Description: "a single sender's messages arrive in send order", Check: checkMpscFIFO},
		{Name: "mpsc.multi_sender_close", Description: "end of stream only after every sender closes and the queue drains", Check: checkMpscMultiSenderClose},
		{Name: "mpsc.weak_upgrade", Description: "weak senders upgrade only while the channel is viable", Check: checkMpscWeakUpgrade},
		{Name: "oneshot.roundtrip", Description: "a sent value is received exactly once", Check: checkOneshotRoundTrip},
		{Name: "oneshot.sender_dropped", Description: "closing the sender wakes the receiver with an error", Check: checkOneshotSenderDropped},
		{Name: "watch.changed", Description: "changed resolves once per unseen version and wakes waiters", Check: checkWatchChanged},
		{Name: "watch.send_if_modified", Description: "no-op modifications wake nobody", Check: checkWatchSendIfModified},
		{Name: "timeout.completes", Description: "a fast operation's result passes through", Check: checkTimeoutCompletes},
		{Name: "timeout.elapsed", Description: "a slow operation yields an elapsed error and stops being driven", Check: checkTimeoutElapsed},
		{Name: "sleep.ordering", Description: "sleeps never fire early and fire in deadline order", Check: checkSleepOrdering},
		{Name: "spawn.scenario_abc", Description: "a spawned producer's A, B, C arrive in order followed by closure", Check: checkSpawnScenarioABC},
		{Name: "spawn.panic", Description: "a panicking task reports a panic join error and the executor survives", Check: checkSpawnPanic},
	}
}

func checkMpscFIFO(ctx context.Context, r rt.Runtime) error {
	const n = 1000
	tx, rx := rt.Unbounded[int](r)
	rt.Spawn(ctx, r, func(ctx context.Context) struct{} {
		defer tx.Close()
		for i := 0; i < n; i++ {
			_ = tx.Send(i)
		}
		return struct{}{}
	})

	for i := 0; i < n; i++ {
		v, ok, err := rx.Recv(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("channel closed after %d of %d messages", i, n)
		}
		if v != i {
			return fmt.Errorf("message %d = %d", i, v)
		}
	}
	return expectEndOfStream(ctx, rx)
}

func checkMpscMultiSenderClose(ctx context.Context, r rt.Runtime) error {
	type msg struct{ sender, seq int }
	const senders, each = 4, 250

	tx, rx := rt.Unbounded[msg](r)
	for s := 0; s < senders; s++ {
		clone := tx.Clone()
		rt.Spawn(ctx, r, func(ctx context.Context) struct{} {
			defer clone.Close()
			for i := 0; i < each; i++ {
				_ = clone.Send(msg{sender: s, seq: i})
			}
			return struct{}{}
		})
	}
	tx.Close()

	next := make([]int, senders)
	for count := 0; count < senders*each; count++ {
		m, ok, err := rx.Recv(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("channel closed after %d of %d messages", count, senders*each)
		}
		if m.seq != next[m.sender] {
			return fmt.Errorf("sender %d: seq %d arrived, expected %d", m.sender, m.seq, next[m.sender])
		}
		next[m.sender]++
	}
	return expectEndOfStream(ctx, rx)
}

func checkMpscWeakUpgrade(ctx context.Context, r rt.Runtime) error {
	tx, rx := rt.Unbounded[string](r)
	weak := tx.Downgrade()

	up, ok := weak.Upgrade()
	if !ok {
		return errors.New("upgrade failed while a strong sender was open")
	}
	if err := up.Send("via-weak"); err != nil {
		return fmt.Errorf("send via upgraded sender: %w", err)
	}
	if v, err := rx.TryRecv(); err != nil || v != "via-weak" {
		return fmt.Errorf("TryRecv() = %q, %v", v, err)
	}

	tx.Close()
	up.Close()
	if _, ok := weak.Upgrade(); ok {
		return errors.New("upgrade succeeded after every strong sender closed")
	}

	tx2, rx2 := rt.Unbounded[string](r)
	defer tx2.Close()
	weak2 := tx2.Downgrade()
	rx2.Close()
	if _, ok := weak2.Upgrade(); ok {
		return errors.New("upgrade succeeded after the receiver closed")
	}
	return nil
}

func checkOneshotRoundTrip(ctx context.Context, r rt.Runtime) error {
	tx, rx := rt.Oneshot[string](r)
	rt.Spawn(ctx, r, func(ctx context.Context) error { return tx.Send("pong") })

	v, err := rx.Recv(ctx)
	if err != nil {
		return err
	}
	if v != "pong" {
		return fmt.Errorf("received %q, expected pong", v)
	}
	if _, err := rx.Recv(ctx); !errors.Is(err, oneshot.ErrReceived) {
		return fmt.Errorf("second Recv() = %v, expected ErrReceived", err)
	}
	return nil
}

func checkOneshotSenderDropped(ctx context.Context, r rt.Runtime) error {
	tx, rx := rt.Oneshot[int](r)
	rt.Spawn(ctx, r, func(ctx context.Context) struct{} {
		tx.Close()
		return struct{}{}
	})
	if _, err := rx.Recv(ctx); !errors.Is(err, oneshot.ErrSenderDropped) {
		return fmt.Errorf("Recv() = %v, expected ErrSenderDropped", err)
	}
	return nil
}

func checkWatchChanged(ctx context.Context, r rt.Runtime) error {
	tx, rx := rt.Watch(r, 0)

	if err := tx.Send(1); err != nil {
		return err
	}
	if err := rx.Changed(ctx); err != nil {
		return fmt.Errorf("Changed() with unseen value: %w", err)
	}
	ref := rx.Borrow()
	got := *ref.Value()
	ref.Release()
	if got != 1 {
		return fmt.Errorf("borrowed %d after Changed, expected 1", got)
	}

	rt.Spawn(ctx, r, func(ctx context.Context) struct{} {
		defer tx.Close()
		_ = tx.Send(2)
		return struct{}{}
	})
	if err := rx.Changed(ctx); err != nil {
		return fmt.Errorf("Changed() waiting for spawned update: %w", err)
	}
	ref = rx.BorrowAndUpdate()
	got = *ref.Value()
	ref.Release()
	if got != 2 {
		return fmt.Errorf("borrowed %d, expected 2", got)
	}
	if err := rx.Changed(ctx); !errors.Is(err, watch.ErrClosed) {
		return fmt.Errorf("Changed() after sender closed = %v, expected ErrClosed", err)
	}
	return nil
}

func checkWatchSendIfModified(ctx context.Context, r rt.Runtime) error {
	tx, rx := rt.Watch(r, uint64(5))
	defer tx.Close()

	propose := func(term uint64) bool {
		return tx.SendIfModified(func(cur *uint64) bool {
			if *cur >= term {
				return false
			}
			*cur = term
			return true
		})
	}

	if propose(3) {
		return errors.New("stale proposal reported a modification")
	}
	if changed, err := rx.HasChanged(); err != nil || changed {
		return fmt.Errorf("HasChanged() = %v, %v after no-op", changed, err)
	}
	if !propose(8) {
		return errors.New("newer proposal reported no modification")
	}
	if changed, err := rx.HasChanged(); err != nil || !changed {
		return fmt.Errorf("HasChanged() = %v, %v after modification", changed, err)
	}
	return nil
}

func checkTimeoutCompletes(ctx context.Context, r rt.Runtime) error {
	v, err := rt.Timeout(ctx, r, time.Second, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if err != nil {
		return err
	}
	if v != 42 {
		return fmt.Errorf("Timeout() = %d, expected 42", v)
	}
	return nil
}

func checkTimeoutElapsed(ctx context.Context, r rt.Runtime) error {
	stopped := make(chan struct{})
	start := rt.Now(r)
	_, err := rt.Timeout(ctx, r, 20*time.Millisecond, func(opCtx context.Context) (int, error) {
		defer close(stopped)
		select {
		case <-opCtx.Done():
			return 0, opCtx.Err()
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	})

	if !errors.Is(err, clock.ErrElapsed) {
		return fmt.Errorf("Timeout() = %v, expected ErrElapsed", err)
	}
	if elapsed := rt.Now(r).Sub(start); elapsed < 20*time.Millisecond {
		return fmt.Errorf("elapsed after %v, before its 20ms deadline", elapsed)
	}
	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return errors.New("operation still running after the deadline")
	}
}

func checkSleepOrdering(ctx context.Context, r rt.Runtime) error {
	const n = 50
	const spacing = 100 * time.Microsecond

	base := rt.Now(r)
	sleeps := make([]*clock.Sleep, n)
	// Created in reverse so creation order differs from deadline order.
	for i := n - 1; i >= 0; i-- {
		sleeps[i] = r.Clock().SleepUntil(base.Add(time.Duration(i+1) * spacing))
	}

	var (
		mu         sync.Mutex
		violations []string
		wg         sync.WaitGroup
	)
	for i, s := range sleeps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Wait(ctx); err != nil {
				return
			}
			now := rt.Now(r)
			mu.Lock()
			defer mu.Unlock()
			if now.Before(s.Deadline()) {
				violations = append(violations, fmt.Sprintf("sleep %d fired %v early", i, s.Deadline().Sub(now)))
			}
			for j := 0; j < i; j++ {
				if !sleeps[j].Fired() {
					violations = append(violations, fmt.Sprintf("sleep %d fired before sleep %d", i, j))
				}
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	if len(violations) > 0 {
		return errors.New(violations[0])
	}
	return nil
}

func checkSpawnScenarioABC(ctx context.Context, r rt.Runtime) error {
	tx, rx := rt.Unbounded[string](r)
	rt.Spawn(ctx, r, func(ctx context.Context) struct{} {
		defer tx.Close()
		for _, v := range []string{"A", "B", "C"} {
			_ = tx.Send(v)
		}
		return struct{}{}
	})

	for _, want := range []string{"A", "B", "C"} {
		got, ok, err := rx.Recv(ctx)
		if err != nil {
			return err
		}
		if !ok || got != want {
			return fmt.Errorf("Recv() = %q, %v; expected %q", got, ok, want)
		}
	}
	return expectEndOfStream(ctx, rx)
}

func checkSpawnPanic(ctx context.Context, r rt.Runtime) error {
	_, err := rt.Spawn(ctx, r, func(ctx context.Context) int {
		panic("conformance: deliberate panic")
	}).Join(ctx)
	if !rt.IsPanic(err) {
		return fmt.Errorf("Join() = %v, expected panic join error", err)
	}
	var je *spawn.JoinError
	if errors.As(err, &je) && je.Panic() != "conformance: deliberate panic" {
		return fmt.Errorf("panic value = %v", je.Panic())
	}

	v, err := rt.Spawn(ctx, r, func(ctx context.Context) int { return 1 }).Join(ctx)
	if err != nil || v != 1 {
		return fmt.Errorf("task after panic = %d, %v", v, err)
	}
	return nil
}

func expectEndOfStream[T any](ctx context.Context, rx *mpsc.Receiver[T]) error {
	v, ok, err := rx.Recv(ctx)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("unexpected extra message %v", v)
	}
	return nil
}
