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

// Package conformance checks a Runtime backend against the behavioural
// contracts of its primitives.
//
// Each Property exercises one contract end to end through the rt facade:
// channel ordering and closure, weak sender upgrades, watch change
// notification, timeouts, sleep ordering and task panics. Running the suite
// yields a Report in which every property is either satisfied or carries a
// message describing the violation.
//
// # Usage
//
//	r, _ := rt.New(rt.WithPolicy(spawn.CurrentThread))
//	report := conformance.NewSuite(r).Run(ctx)
//	if !report.AllSatisfied() {
//	    // backend is broken
//	}
//
// The properties measure wall-clock behaviour, so the Runtime must use a
// real-time clock.
package conformance

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jazzpetri/asyncrt/rt"
)

// MetricFailures counts violated properties.
const MetricFailures = "asyncrt_conformance_failures_total"

// Property is a named behavioural check. Check returns nil if the property
// holds.
type Property struct {
	Name        string
	Description string
	Check       func(ctx context.Context, r rt.Runtime) error
}

// Result is the outcome of checking one property.
type Result struct {
	// Property is the name of the property that was checked
	Property string

	// Satisfied is true if the check returned nil
	Satisfied bool

	// Message explains a violation; empty when satisfied
	Message string

	Duration time.Duration
}

// Report aggregates the results of one suite run.
type Report struct {
	// Policy is the spawn policy of the runtime under test
	Policy string

	Results  []Result
	Duration time.Duration
}

// AllSatisfied returns true if every result is satisfied.
// An empty report is vacuously satisfied.
func (r *Report) AllSatisfied() bool {
	for _, res := range r.Results {
		if !res.Satisfied {
			return false
		}
	}
	return true
}

// Failed returns the violated results.
func (r *Report) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if !res.Satisfied {
			failed = append(failed, res)
		}
	}
	return failed
}

// String renders one line per property followed by a summary line.
func (r *Report) String() string {
	var b strings.Builder
	for _, res := range r.Results {
		status := "PASS"
		if !res.Satisfied {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "%s  %-26s %8s", status, res.Property, res.Duration.Round(time.Microsecond))
		if res.Message != "" {
			fmt.Fprintf(&b, "  %s", res.Message)
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "%d/%d properties satisfied (policy %s, %s)\n",
		len(r.Results)-len(r.Failed()), len(r.Results), r.Policy, r.Duration.Round(time.Millisecond))
	return b.String()
}

// Suite runs properties against one runtime.
type Suite struct {
	runtime    rt.Runtime
	properties []Property
	limit      time.Duration
}

// SuiteOption configures a Suite.
type SuiteOption func(*Suite)

// WithLimit bounds the time each property may take. The default is 5s.
func WithLimit(d time.Duration) SuiteOption {
	return func(s *Suite) { s.limit = d }
}

// WithProperties replaces the default property set.
func WithProperties(props ...Property) SuiteOption {
	return func(s *Suite) { s.properties = props }
}

// NewSuite creates a suite running Properties() against r.
func NewSuite(r rt.Runtime, opts ...SuiteOption) *Suite {
	s := &Suite{
		runtime:    r,
		properties: Properties(),
		limit:      5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select returns the properties whose names are listed, in the given order.
// It fails on an unknown name.
func Select(names ...string) ([]Property, error) {
	all := Properties()
	out := make([]Property, 0, len(names))
	for _, name := range names {
		i := slices.IndexFunc(all, func(p Property) bool { return p.Name == name })
		if i < 0 {
			return nil, fmt.Errorf("conformance: unknown property %q", name)
		}
		out = append(out, all[i])
	}
	return out, nil
}

// Run checks every property sequentially on the calling goroutine.
func (s *Suite) Run(ctx context.Context) *Report {
	start := time.Now()
	report := &Report{Policy: s.runtime.Spawner().Policy().String()}
	for _, p := range s.properties {
		report.Results = append(report.Results, s.check(ctx, p))
	}
	report.Duration = time.Since(start)
	return report
}

func (s *Suite) check(ctx context.Context, p Property) (res Result) {
	r := s.runtime
	span := r.Tracer().StartSpan("conformance." + p.Name)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.limit)
	defer cancel()

	start := time.Now()
	res.Property = p.Name
	defer func() {
		if rec := recover(); rec != nil {
			res.Satisfied = false
			res.Message = fmt.Sprintf("panic: %v", rec)
		}
		res.Duration = time.Since(start)

		fields := map[string]interface{}{
			"property": p.Name,
			"duration": res.Duration.String(),
		}
		if res.Satisfied {
			r.Logger().Debug("Property satisfied", fields)
			return
		}
		fields["reason"] = res.Message
		span.SetAttribute("violation", res.Message)
		r.Metrics().Inc(MetricFailures)
		r.Logger().Error("Property violated", fields)
	}()

	if err := p.Check(ctx, r); err != nil {
		res.Message = err.Error()
		span.RecordError(err)
		return res
	}
	res.Satisfied = true
	return res
}
