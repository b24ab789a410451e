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

// Package spawn schedules units of work onto goroutines and reports their
// results through JoinHandles.
//
// Two scheduling policies are provided. MultiThread starts a goroutine per
// unit; CurrentThread funnels every unit through a single executor goroutine
// fed by an unbounded run queue.
//
// Panics inside spawned work are recovered and surface as a *JoinError on the
// handle. They never take down the executor.
//
// Example:
//
//	s := spawn.NewMultiThread(spawn.WithLogger(logger))
//	defer s.Shutdown(ctx)
//
//	h := spawn.Spawn(s, ctx, func(ctx context.Context) int {
//	    return compute(ctx)
//	})
//	v, err := h.Join(ctx)
//	if spawn.IsPanic(err) {
//	    ...
//	}
//
// A CurrentThread unit must not wait on another unit of the same spawner:
// the executor runs one unit at a time, so the awaited unit never starts.
package spawn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jazzpetri/asyncrt/observe"
)

var (
	// ErrShutdown is returned by Submit once the spawner has been shut down.
	ErrShutdown = errors.New("spawn: spawner shut down")

	// ErrAborted is the cause of a JoinError for a task stopped via Abort.
	ErrAborted = errors.New("spawn: task aborted")
)

// Metric names recorded by the built-in spawners.
const (
	MetricTasksSpawned   = "asyncrt_tasks_spawned_total"
	MetricTaskPanics     = "asyncrt_task_panics_total"
	MetricTasksCancelled = "asyncrt_tasks_cancelled_total"
	MetricTasksRunning   = "asyncrt_tasks_running"
	MetricTaskDuration   = "asyncrt_task_duration_seconds"
)

// Task is a unit of work handed to a Spawner.
type Task struct {
	// ID identifies the task in logs, spans and JoinErrors.
	ID uuid.UUID

	// Run performs the work. It should return promptly once ctx is done.
	Run func(ctx context.Context)

	// Done is called exactly once after Run returns, panics, or is skipped
	// because ctx was already done. It is never called if Submit fails.
	Done func(Outcome)
}

// Outcome describes how a Task ended.
type Outcome struct {
	// Panicked is set if Run panicked; PanicValue holds the recovered value.
	Panicked   bool
	PanicValue any

	// Cancelled is set if Run never started because its context was done.
	// Cause holds the reason.
	Cancelled bool
	Cause     error

	Duration time.Duration
}

// Spawner runs Tasks. Implementations must be safe for concurrent use.
type Spawner interface {
	// Submit schedules t without blocking the caller.
	// It returns ErrShutdown once Shutdown has been called.
	Submit(ctx context.Context, t Task) error

	// Policy reports the scheduling policy.
	Policy() Policy

	// Shutdown stops accepting work and waits for accepted work to finish.
	// If ctx is done first, every running task's context is cancelled with
	// ErrShutdown and ctx.Err() is returned.
	Shutdown(ctx context.Context) error
}

// New creates a spawner for the given policy.
func New(policy Policy, opts ...Option) (Spawner, error) {
	switch policy {
	case MultiThread:
		return NewMultiThread(opts...), nil
	case CurrentThread:
		return NewCurrentThread(opts...), nil
	default:
		return nil, fmt.Errorf("spawn: unsupported policy %v", policy)
	}
}

// Option configures a built-in spawner.
type Option func(*instrument)

// WithLogger sets the logger. Nil selects a no-op logger.
func WithLogger(l observe.Logger) Option {
	return func(in *instrument) { in.logger = observe.LoggerOrNoOp(l) }
}

// WithMetrics sets the metrics collector. Nil selects a no-op collector.
func WithMetrics(m observe.MetricsCollector) Option {
	return func(in *instrument) { in.metrics = observe.MetricsOrNoOp(m) }
}

// WithTracer sets the tracer. Nil selects a no-op tracer.
func WithTracer(t observe.Tracer) Option {
	return func(in *instrument) { in.tracer = observe.TracerOrNoOp(t) }
}

// instrument holds what both executors share: observability and the root
// context that a forced shutdown cancels.
type instrument struct {
	policy  Policy
	logger  observe.Logger
	metrics observe.MetricsCollector
	tracer  observe.Tracer

	root       context.Context
	cancelRoot context.CancelCauseFunc

	// inflight counts accepted tasks whose Done has not yet been called.
	inflight sync.WaitGroup
}

func newInstrument(policy Policy, opts []Option) *instrument {
	root, cancel := context.WithCancelCause(context.Background())
	in := &instrument{
		policy:     policy,
		logger:     &observe.NoOpLogger{},
		metrics:    &observe.NoOpMetrics{},
		tracer:     &observe.NoOpTracer{},
		root:       root,
		cancelRoot: cancel,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

func (in *instrument) accepted(t Task) {
	in.metrics.Inc(MetricTasksSpawned)
	in.logger.Debug("Task spawned", map[string]interface{}{
		"task_id": t.ID.String(),
		"policy":  in.policy.String(),
	})
}

func (in *instrument) rejected(t Task) {
	in.logger.Warn("Task rejected after shutdown", map[string]interface{}{
		"task_id": t.ID.String(),
		"policy":  in.policy.String(),
	})
}

// run executes t with panic recovery and reports the Outcome.
func (in *instrument) run(ctx context.Context, t Task) {
	defer in.inflight.Done()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stop := context.AfterFunc(in.root, func() { cancel(ErrShutdown) })
	defer stop()
	// AfterFunc runs asynchronously on an already-done root.
	if in.root.Err() != nil {
		cancel(context.Cause(in.root))
	}

	if ctx.Err() != nil {
		in.metrics.Inc(MetricTasksCancelled)
		in.logger.Debug("Task cancelled before start", map[string]interface{}{
			"task_id": t.ID.String(),
			"cause":   context.Cause(ctx).Error(),
		})
		t.Done(Outcome{Cancelled: true, Cause: context.Cause(ctx)})
		return
	}

	span := in.tracer.StartSpan("spawn.task")
	defer span.End()
	span.SetAttribute("task_id", t.ID.String())
	span.SetAttribute("policy", in.policy.String())

	in.metrics.Add(MetricTasksRunning, 1)
	start := time.Now()

	var out Outcome
	func() {
		defer func() {
			if r := recover(); r != nil {
				out.Panicked = true
				out.PanicValue = r
			}
		}()
		t.Run(ctx)
	}()

	out.Duration = time.Since(start)
	in.metrics.Add(MetricTasksRunning, -1)
	in.metrics.Observe(MetricTaskDuration, out.Duration.Seconds())

	if out.Panicked {
		span.RecordError(fmt.Errorf("panic: %v", out.PanicValue))
		in.metrics.Inc(MetricTaskPanics)
		in.logger.Error("Task panicked", map[string]interface{}{
			"task_id": t.ID.String(),
			"policy":  in.policy.String(),
			"panic":   fmt.Sprint(out.PanicValue),
		})
	} else {
		in.logger.Debug("Task completed", map[string]interface{}{
			"task_id":  t.ID.String(),
			"duration": out.Duration.String(),
		})
	}

	t.Done(out)
}

// wait blocks until every accepted task has reported, or ctx is done. In the
// latter case the root context is cancelled so running tasks can bail out.
func (in *instrument) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		in.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		in.cancelRoot(ErrShutdown)
		return nil
	case <-ctx.Done():
		in.cancelRoot(ErrShutdown)
		in.logger.Warn("Shutdown deadline reached; cancelling running tasks", map[string]interface{}{
			"policy": in.policy.String(),
		})
		return ctx.Err()
	}
}
