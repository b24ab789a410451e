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

// Package rt is the runtime facade: one capability bundle exposing time,
// channels, task spawning, randomness and observability.
//
// Application code depends on the Runtime interface and calls the generic
// functions in this package, so it never names a concrete backend:
//
//	func electionLoop[R rt.Runtime](ctx context.Context, r R, term *watch.Receiver[uint64]) {
//	    rng := r.ThreadRng()
//	    for {
//	        timeout := rng.Duration(150*time.Millisecond, 300*time.Millisecond)
//	        _, err := rt.Timeout(ctx, r, timeout, func(ctx context.Context) (struct{}, error) {
//	            return struct{}{}, term.Changed(ctx)
//	        })
//	        if errors.Is(err, clock.ErrElapsed) {
//	            startElection()
//	        }
//	    }
//	}
//
// GoRuntime is the reference backend. Build it with New or FromConfig.
package rt

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jazzpetri/asyncrt/clock"
	"github.com/jazzpetri/asyncrt/config"
	"github.com/jazzpetri/asyncrt/observe"
	"github.com/jazzpetri/asyncrt/spawn"
)

// Runtime bundles every capability application code needs.
type Runtime interface {
	// Clock returns the time source used by Sleep, Timeout and Now.
	Clock() clock.Clock

	// Spawner returns the task scheduler used by Spawn.
	Spawner() spawn.Spawner

	// ThreadRng returns a new unshared random source. It must stay on the
	// goroutine that requested it.
	ThreadRng() *Rng

	// Logger returns the structured logger. It is never nil.
	Logger() observe.Logger

	// Metrics returns the metrics collector. It is never nil.
	Metrics() observe.MetricsCollector

	// Tracer returns the tracer. It is never nil.
	Tracer() observe.Tracer
}

// GoRuntime is the reference Runtime backed by goroutines and Go timers.
type GoRuntime struct {
	clock   clock.Clock
	spawner spawn.Spawner
	logger  observe.Logger
	metrics observe.MetricsCollector
	tracer  observe.Tracer
	seeds   *seedSource

	shutdownTimeout time.Duration
	closeOnce       sync.Once
	closeErr        error
}

type options struct {
	clock           clock.Clock
	policy          spawn.Policy
	spawner         spawn.Spawner
	logger          observe.Logger
	metrics         observe.MetricsCollector
	tracer          observe.Tracer
	seed            uint64
	shutdownTimeout time.Duration
}

// Option configures a GoRuntime.
type Option func(*options)

// WithClock sets the clock. The default is a RealTimeClock.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithPolicy selects the spawn policy. The default is MultiThread.
func WithPolicy(p spawn.Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithSpawner supplies a custom spawner, overriding WithPolicy.
func WithSpawner(s spawn.Spawner) Option {
	return func(o *options) { o.spawner = s }
}

// WithLogger sets the logger.
func WithLogger(l observe.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m observe.MetricsCollector) Option {
	return func(o *options) { o.metrics = m }
}

// WithTracer sets the tracer.
func WithTracer(t observe.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithSeed makes ThreadRng deterministic. Zero selects a random seed.
func WithSeed(seed uint64) Option {
	return func(o *options) { o.seed = seed }
}

// WithShutdownTimeout bounds how long Close waits when its context has no
// deadline. The default is 5s.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) { o.shutdownTimeout = d }
}

// New builds a GoRuntime.
func New(opts ...Option) (*GoRuntime, error) {
	o := options{
		policy:          spawn.MultiThread,
		shutdownTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	r := &GoRuntime{
		clock:           o.clock,
		logger:          observe.LoggerOrNoOp(o.logger),
		metrics:         observe.MetricsOrNoOp(o.metrics),
		tracer:          observe.TracerOrNoOp(o.tracer),
		seeds:           newSeedSource(o.seed),
		shutdownTimeout: o.shutdownTimeout,
	}
	if r.clock == nil {
		r.clock = clock.NewRealTimeClock()
	}

	r.spawner = o.spawner
	if r.spawner == nil {
		s, err := spawn.New(o.policy,
			spawn.WithLogger(r.logger),
			spawn.WithMetrics(r.metrics),
			spawn.WithTracer(r.tracer),
		)
		if err != nil {
			return nil, fmt.Errorf("rt: %w", err)
		}
		r.spawner = s
	}

	r.logger.Debug("Runtime started", map[string]interface{}{
		"policy": r.spawner.Policy().String(),
	})
	return r, nil
}

// FromConfig builds a GoRuntime from cfg. It installs a console logger on
// stderr at cfg.LogLevel and, when cfg.Metrics is set, a Prometheus
// collector on a fresh registry. opts are applied last and may override
// either.
func FromConfig(cfg config.Config, opts ...Option) (*GoRuntime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	policy, err := cfg.SpawnPolicy()
	if err != nil {
		return nil, err
	}
	level, err := cfg.ZerologLevel()
	if err != nil {
		return nil, err
	}

	base := []Option{
		WithPolicy(policy),
		WithSeed(cfg.Seed),
		WithShutdownTimeout(cfg.ShutdownTimeout),
		WithLogger(observe.NewConsoleLogger(os.Stderr, cfg.App, level)),
	}
	if cfg.Metrics {
		base = append(base, WithMetrics(observe.NewPrometheusMetrics(prometheus.NewRegistry())))
	}
	return New(append(base, opts...)...)
}

// Clock returns the runtime clock.
func (r *GoRuntime) Clock() clock.Clock { return r.clock }

// Spawner returns the runtime spawner.
func (r *GoRuntime) Spawner() spawn.Spawner { return r.spawner }

// Logger returns the runtime logger.
func (r *GoRuntime) Logger() observe.Logger { return r.logger }

// Metrics returns the runtime metrics collector.
func (r *GoRuntime) Metrics() observe.MetricsCollector { return r.metrics }

// Tracer returns the runtime tracer.
func (r *GoRuntime) Tracer() observe.Tracer { return r.tracer }

// ThreadRng returns a new random source seeded from the runtime's seed
// sequence. With a fixed seed the sequence of returned sources is
// reproducible.
func (r *GoRuntime) ThreadRng() *Rng {
	return newRng(r.seeds.next())
}

// Close shuts the spawner down, waiting for running tasks. If ctx has no
// deadline the runtime's shutdown timeout applies. Close is idempotent.
func (r *GoRuntime) Close(ctx context.Context) error {
	r.closeOnce.Do(func() {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.shutdownTimeout)
			defer cancel()
		}
		if err := r.spawner.Shutdown(ctx); err != nil {
			r.logger.Warn("Runtime shutdown incomplete", map[string]interface{}{
				"error": err.Error(),
			})
			r.closeErr = fmt.Errorf("rt: close: %w", err)
			return
		}
		r.logger.Debug("Runtime stopped", nil)
	})
	return r.closeErr
}
