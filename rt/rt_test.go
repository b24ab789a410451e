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
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/jazzpetri/asyncrt/clock"
	"github.com/jazzpetri/asyncrt/config"
	"github.com/jazzpetri/asyncrt/observe"
	"github.com/jazzpetri/asyncrt/spawn"
)

func newRuntime(t *testing.T, opts ...Option) *GoRuntime {
	t.Helper()
	r, err := New(opts...)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	return r
}

// pingPong is written against the Runtime interface only.
func pingPong[R Runtime](ctx context.Context, r R) (string, error) {
	tx, rx := Oneshot[string](r)
	h := Spawn(ctx, r, func(ctx context.Context) error {
		return tx.Send("pong")
	})
	got, err := rx.Recv(ctx)
	if err != nil {
		return "", err
	}
	if _, err := h.Join(ctx); err != nil {
		return "", err
	}
	return got, nil
}

func TestDefaults(t *testing.T) {
	r := newRuntime(t)

	if _, ok := r.Clock().(*clock.RealTimeClock); !ok {
		t.Errorf("default clock = %T, expected *clock.RealTimeClock", r.Clock())
	}
	if r.Spawner().Policy() != spawn.MultiThread {
		t.Errorf("default policy = %v, expected multi_thread", r.Spawner().Policy())
	}
	if _, ok := r.Logger().(*observe.NoOpLogger); !ok {
		t.Errorf("default logger = %T, expected no-op", r.Logger())
	}
	if _, ok := r.Metrics().(*observe.NoOpMetrics); !ok {
		t.Errorf("default metrics = %T, expected no-op", r.Metrics())
	}
	if _, ok := r.Tracer().(*observe.NoOpTracer); !ok {
		t.Errorf("default tracer = %T, expected no-op", r.Tracer())
	}
}

func TestPingPongBothPolicies(t *testing.T) {
	for _, p := range []spawn.Policy{spawn.MultiThread, spawn.CurrentThread} {
		t.Run(p.String(), func(t *testing.T) {
			r := newRuntime(t, WithPolicy(p))
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			got, err := pingPong(ctx, r)
			if err != nil || got != "pong" {
				t.Errorf("pingPong() = %q, %v; expected pong", got, err)
			}
		})
	}
}

func TestSpawnPanicThroughFacade(t *testing.T) {
	r := newRuntime(t)
	_, err := Spawn(context.Background(), r, func(ctx context.Context) int {
		panic("bad state")
	}).Join(context.Background())
	if !IsPanic(err) {
		t.Errorf("Join() = %v, expected panic", err)
	}
}

func TestChannelConstructorsRecordMetrics(t *testing.T) {
	metrics := observe.NewPrometheusMetrics(nil)
	r := newRuntime(t, WithMetrics(metrics))

	tx1, rx1 := Unbounded[int](r)
	_ = tx1.Send(1)
	if v, err := rx1.TryRecv(); err != nil || v != 1 {
		t.Errorf("unbounded TryRecv() = %d, %v", v, err)
	}

	wtx, wrx := Watch(r, "init")
	_ = wtx.Send("next")
	if changed, _ := wrx.HasChanged(); !changed {
		t.Error("watch receiver missed update")
	}
	Oneshot[int](r)
	Oneshot[int](r)

	var buf bytes.Buffer
	if err := metrics.WriteText(&buf); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		MetricMpscChannels + " 1",
		MetricWatchChannels + " 1",
		MetricOneshotChannels + " 2",
	} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("metrics missing %q:\n%s", want, buf.String())
		}
	}
}

func TestTimeoutElapsedRecordsMetric(t *testing.T) {
	metrics := observe.NewPrometheusMetrics(nil)
	r := newRuntime(t, WithMetrics(metrics))

	v, err := Timeout(context.Background(), r, time.Second, func(ctx context.Context) (int, error) {
		return 1, nil
	})
	if err != nil || v != 1 {
		t.Fatalf("Timeout() = %d, %v; expected 1, nil", v, err)
	}

	_, err = Timeout(context.Background(), r, 10*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(err, clock.ErrElapsed) {
		t.Fatalf("Timeout() = %v, expected ErrElapsed", err)
	}

	var buf bytes.Buffer
	_ = metrics.WriteText(&buf)
	if !strings.Contains(buf.String(), MetricTimeoutsElapsed+" 1") {
		t.Errorf("expected exactly one elapsed timeout recorded:\n%s", buf.String())
	}
}

func TestSleepOnVirtualClock(t *testing.T) {
	vc := clock.NewVirtualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	r := newRuntime(t, WithClock(vc))
	start := Now(r)

	done := make(chan error, 1)
	go func() { done <- Sleep(context.Background(), r, 3*time.Second) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := vc.BlockUntilSleepers(ctx, 1); err != nil {
		t.Fatal(err)
	}

	vc.AdvanceBy(2 * time.Second)
	select {
	case <-done:
		t.Fatal("Sleep() returned before its deadline")
	default:
	}

	vc.AdvanceBy(time.Second)
	if err := <-done; err != nil {
		t.Errorf("Sleep() = %v", err)
	}
	if got := Now(r).Sub(start); got != 3*time.Second {
		t.Errorf("elapsed virtual time = %v, expected 3s", got)
	}

	// SleepUntil a past instant resolves immediately.
	if err := SleepUntil(context.Background(), r, start); err != nil {
		t.Errorf("SleepUntil(past) = %v", err)
	}
}

func TestCancelledSleepReleasesTimer(t *testing.T) {
	vc := clock.NewVirtualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	r := newRuntime(t, WithClock(vc))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Sleep(ctx, r, time.Hour) }()

	if err := vc.BlockUntilSleepers(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Sleep() = %v, expected context.Canceled", err)
	}
	if n := vc.PendingSleeps(); n != 0 {
		t.Errorf("PendingSleeps() = %d after cancelled Sleep, expected 0", n)
	}
}

func TestTimeoutAtOnVirtualClock(t *testing.T) {
	vc := clock.NewVirtualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	r := newRuntime(t, WithClock(vc))
	deadline := Now(r).Add(150 * time.Millisecond)

	result := make(chan error, 1)
	go func() {
		_, err := TimeoutAt(context.Background(), r, deadline, func(ctx context.Context) (struct{}, error) {
			<-ctx.Done()
			return struct{}{}, ctx.Err()
		})
		result <- err
	}()

	if err := vc.BlockUntilSleepers(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	vc.AdvanceTo(deadline)

	select {
	case err := <-result:
		var elapsed *clock.ElapsedError
		if !errors.As(err, &elapsed) {
			t.Fatalf("TimeoutAt() = %v, expected *clock.ElapsedError", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("TimeoutAt() did not expire after advancing to its deadline")
	}
}

func TestThreadRngSeeded(t *testing.T) {
	a := newRuntime(t, WithSeed(7))
	b := newRuntime(t, WithSeed(7))

	ra1, ra2 := a.ThreadRng(), a.ThreadRng()
	rb1, rb2 := b.ThreadRng(), b.ThreadRng()

	for i := 0; i < 10; i++ {
		if ra1.Uint64() != rb1.Uint64() || ra2.Uint64() != rb2.Uint64() {
			t.Fatal("same seed produced different sequences")
		}
	}

	c, d := newRuntime(t, WithSeed(7)).ThreadRng(), newRuntime(t, WithSeed(7)).ThreadRng()
	_ = c.Uint64()
	first := c.Uint64()
	_ = d.Uint64()
	if first != d.Uint64() {
		t.Error("seeded sources diverged")
	}

	// Sources handed out by one runtime are independent.
	x, y := a.ThreadRng(), a.ThreadRng()
	same := true
	for i := 0; i < 4; i++ {
		if x.Uint64() != y.Uint64() {
			same = false
		}
	}
	if same {
		t.Error("consecutive ThreadRng() sources produced identical output")
	}
}

func TestRngDuration(t *testing.T) {
	g := newRng(1)
	lo, hi := 150*time.Millisecond, 300*time.Millisecond
	for i := 0; i < 1000; i++ {
		d := g.Duration(lo, hi)
		if d < lo || d >= hi {
			t.Fatalf("Duration() = %v, outside [%v, %v)", d, lo, hi)
		}
	}
	if d := g.Duration(hi, lo); d != hi {
		t.Errorf("Duration(hi, lo) = %v, expected %v", d, hi)
	}
	if n := g.IntN(3); n < 0 || n >= 3 {
		t.Errorf("IntN(3) = %d", n)
	}
	if f := g.Float64(); f < 0 || f >= 1 {
		t.Errorf("Float64() = %v", f)
	}

	xs := []int{1, 2, 3, 4, 5}
	g.Shuffle(len(xs), func(i, j int) { xs[i], xs[j] = xs[j], xs[i] })
	sum := 0
	for _, x := range xs {
		sum += x
	}
	if sum != 15 {
		t.Errorf("Shuffle() lost elements: %v", xs)
	}
}

func TestRngDurationExtremeBounds(t *testing.T) {
	g := newRng(7)
	tests := []struct {
		name   string
		lo, hi time.Duration
	}{
		{"full range", math.MinInt64, math.MaxInt64},
		{"negative to max", -time.Hour, math.MaxInt64},
		{"min to positive", math.MinInt64, time.Hour},
		{"one wide", math.MaxInt64 - 1, math.MaxInt64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 100; i++ {
				d := g.Duration(tt.lo, tt.hi)
				if d < tt.lo || d >= tt.hi {
					t.Fatalf("Duration(%d, %d) = %d, outside range", tt.lo, tt.hi, d)
				}
			}
		})
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Policy = "current_thread"
	cfg.Metrics = true
	cfg.Seed = 3
	cfg.LogLevel = "disabled"

	r, err := FromConfig(cfg)
	if err != nil {
		t.Fatalf("FromConfig() = %v", err)
	}
	defer r.Close(context.Background())

	if r.Spawner().Policy() != spawn.CurrentThread {
		t.Errorf("policy = %v, expected current_thread", r.Spawner().Policy())
	}
	if _, ok := r.Metrics().(*observe.PrometheusMetrics); !ok {
		t.Errorf("metrics = %T, expected *observe.PrometheusMetrics", r.Metrics())
	}
	if _, ok := r.Logger().(*observe.ZerologLogger); !ok {
		t.Errorf("logger = %T, expected *observe.ZerologLogger", r.Logger())
	}

	// Options passed alongside the config win.
	vc := clock.NewVirtualClock(time.Unix(0, 0))
	r2, err := FromConfig(cfg, WithClock(vc), WithMetrics(nil))
	if err != nil {
		t.Fatal(err)
	}
	defer r2.Close(context.Background())
	if r2.Clock() != clock.Clock(vc) {
		t.Error("WithClock override ignored")
	}
	if _, ok := r2.Metrics().(*observe.NoOpMetrics); !ok {
		t.Errorf("metrics = %T, expected override to no-op", r2.Metrics())
	}

	cfg.Policy = "fibers"
	if _, err := FromConfig(cfg); err == nil {
		t.Error("FromConfig() accepted an invalid policy")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	r, err := New(WithPolicy(spawn.CurrentThread))
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Close(context.Background()); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if err := r.Close(context.Background()); err != nil {
		t.Errorf("second Close() = %v", err)
	}

	_, err = Spawn(context.Background(), r, func(ctx context.Context) int { return 1 }).Join(context.Background())
	if !errors.Is(err, spawn.ErrShutdown) {
		t.Errorf("Spawn() after Close = %v, expected ErrShutdown", err)
	}
}

func TestCloseTimesOut(t *testing.T) {
	r, err := New(WithShutdownTimeout(20 * time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	started := make(chan struct{})
	h := Spawn(context.Background(), r, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return context.Cause(ctx)
	})
	<-started

	if err := r.Close(context.Background()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Close() = %v, expected DeadlineExceeded", err)
	}
	if cause, _ := h.Join(context.Background()); !errors.Is(cause, spawn.ErrShutdown) {
		t.Errorf("task cause = %v, expected ErrShutdown", cause)
	}
}
