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

package spawn

import (
	"fmt"
	"strings"
)

// Policy selects how spawned work is scheduled.
type Policy int

const (
	// MultiThread runs every unit of work on its own goroutine. Units run in
	// parallel across GOMAXPROCS OS threads.
	MultiThread Policy = iota

	// CurrentThread runs every unit of work sequentially on one dedicated
	// executor goroutine locked to its OS thread.
	CurrentThread
)

// String returns the configuration name of the policy.
func (p Policy) String() string {
	switch p {
	case MultiThread:
		return "multi_thread"
	case CurrentThread:
		return "current_thread"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy parses a configuration name as produced by Policy.String.
// Matching is case-insensitive and accepts '-' in place of '_'.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_") {
	case "multi_thread":
		return MultiThread, nil
	case "current_thread":
		return CurrentThread, nil
	default:
		return 0, fmt.Errorf("spawn: unknown policy %q", s)
	}
}
