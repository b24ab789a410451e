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
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestCheckSelectedProperties(t *testing.T) {
	out, _, err := execute(t, "check", "--only", "mpsc.fifo,spawn.scenario_abc", "--policy", "current_thread")
	if err != nil {
		t.Fatalf("check = %v\n%s", err, out)
	}
	for _, want := range []string{"PASS  mpsc.fifo", "PASS  spawn.scenario_abc", "2/2 properties satisfied", "current_thread"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCheckMetricsDump(t *testing.T) {
	out, _, err := execute(t, "check", "--only", "oneshot.roundtrip", "--metrics")
	if err != nil {
		t.Fatalf("check = %v", err)
	}
	for _, want := range []string{"asyncrt_tasks_spawned_total 1", "asyncrt_oneshot_channels_total 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q:\n%s", want, out)
		}
	}
}

func TestCheckWithConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "asyncrt.yaml")
	body := "app: cfgtest\npolicy: current_thread\nlog_level: disabled\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	out, _, err := execute(t, "check", "--config", path, "--only", "watch.changed")
	if err != nil {
		t.Fatalf("check = %v", err)
	}
	if !strings.Contains(out, "policy current_thread") {
		t.Errorf("config policy not applied:\n%s", out)
	}
}

func TestCheckErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "bad policy", args: []string{"check", "--policy", "fibers"}, want: "Policy"},
		{name: "unknown property", args: []string{"check", "--only", "mpsc.lifo"}, want: "unknown property"},
		{name: "missing config", args: []string{"check", "--config", "/nonexistent/asyncrt.toml"}, want: "asyncrt.toml"},
		{name: "positional args", args: []string{"check", "extra"}, want: "unknown command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, expected to contain %q", err, tt.want)
			}
			if errors.Is(err, errViolations) {
				t.Errorf("setup error reported as violation: %v", err)
			}
		})
	}
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "asyncrt dev (go") {
		t.Errorf("version output = %q", out)
	}
}

type fakeCloser struct {
	err    error
	closed bool
}

func (f *fakeCloser) Close(ctx context.Context) error {
	f.closed = true
	return f.err
}

func TestCloseIntoReportsShutdownError(t *testing.T) {
	shutdownErr := errors.New("rt: close: context deadline exceeded")
	runErr := errors.New("run failed")

	tests := []struct {
		name     string
		runErr   error
		closeErr error
		want     error
	}{
		{"both succeed", nil, nil, nil},
		{"close error surfaces", nil, shutdownErr, shutdownErr},
		{"run error wins", runErr, shutdownErr, runErr},
		{"run error kept", runErr, nil, runErr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeCloser{err: tt.closeErr}
			err := tt.runErr
			closeInto(context.Background(), c, &err)

			if !c.closed {
				t.Error("Close() was not called")
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, expected %v", err, tt.want)
			}
		})
	}
}
