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
	"context"
	"sync"
)

// MultiThreadSpawner starts a goroutine per task.
type MultiThreadSpawner struct {
	*instrument

	mu     sync.RWMutex
	closed bool
}

// NewMultiThread creates a MultiThread spawner.
func NewMultiThread(opts ...Option) *MultiThreadSpawner {
	return &MultiThreadSpawner{instrument: newInstrument(MultiThread, opts)}
}

// Submit starts t on a new goroutine.
func (s *MultiThreadSpawner) Submit(ctx context.Context, t Task) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.rejected(t)
		return ErrShutdown
	}
	s.inflight.Add(1)
	s.accepted(t)
	go s.run(ctx, t)
	return nil
}

// Policy returns MultiThread.
func (s *MultiThreadSpawner) Policy() Policy {
	return MultiThread
}

// Shutdown stops accepting tasks and waits for running ones.
func (s *MultiThreadSpawner) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	return s.wait(ctx)
}
