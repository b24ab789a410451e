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

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/jazzpetri/asyncrt/config"
	"github.com/jazzpetri/asyncrt/conformance"
	"github.com/jazzpetri/asyncrt/observe"
	"github.com/jazzpetri/asyncrt/rt"
)

var errViolations = errors.New("conformance properties violated")

type checkOptions struct {
	configPath string
	policy     string
	metrics    bool
	only       []string
	limit      time.Duration
}

func newCheckCmd() *cobra.Command {
	var opts checkOptions
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run the conformance suite against the Go runtime",
		Long: `Run every conformance property against the reference runtime and print
one line per property. The command exits non-zero if any property is violated.

Settings are read from --config (TOML or YAML), then ASYNCRT_* environment
variables, then flags.

Example:
  asyncrt check --policy current_thread --metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "path to a TOML or YAML config file")
	f.StringVar(&opts.policy, "policy", "", "spawn policy: multi_thread or current_thread")
	f.BoolVar(&opts.metrics, "metrics", false, "print Prometheus metrics after the run")
	f.StringSliceVar(&opts.only, "only", nil, "run only the named properties")
	f.DurationVar(&opts.limit, "limit", 5*time.Second, "time limit per property")
	return cmd
}

func runCheck(cmd *cobra.Command, opts checkOptions) (err error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.policy != "" {
		cfg.Policy = opts.policy
	}
	if opts.metrics {
		cfg.Metrics = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := cfg.ZerologLevel()
	if err != nil {
		return err
	}
	r, err := rt.FromConfig(cfg,
		rt.WithLogger(observe.NewConsoleLogger(cmd.ErrOrStderr(), cfg.App, level)),
		rt.WithTracer(observe.NewOTelTracer(otel.Tracer("github.com/jazzpetri/asyncrt"))),
	)
	if err != nil {
		return err
	}
	defer closeInto(cmd.Context(), r, &err)

	suiteOpts := []conformance.SuiteOption{conformance.WithLimit(opts.limit)}
	if len(opts.only) > 0 {
		props, err := conformance.Select(opts.only...)
		if err != nil {
			return err
		}
		suiteOpts = append(suiteOpts, conformance.WithProperties(props...))
	}

	report := conformance.NewSuite(r, suiteOpts...).Run(cmd.Context())
	fmt.Fprint(cmd.OutOrStdout(), report.String())

	if prom, ok := r.Metrics().(*observe.PrometheusMetrics); ok {
		fmt.Fprintln(cmd.OutOrStdout())
		if err := prom.WriteText(cmd.OutOrStdout()); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}

	if !report.AllSatisfied() {
		return fmt.Errorf("%w: %d of %d", errViolations, len(report.Failed()), len(report.Results))
	}
	return nil
}

type closer interface {
	Close(ctx context.Context) error
}

// closeInto closes c and stores its error in *err unless *err is already set.
func closeInto(ctx context.Context, c closer, err *error) {
	if cerr := c.Close(ctx); cerr != nil && *err == nil {
		*err = cerr
	}
}
