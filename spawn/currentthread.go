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
	"runtime"
	"sync"

	"github.com/jazzpetri/asyncrt/mpsc"
)

type queued struct {
	ctx  context.Context
	task Task
}

// CurrentThreadSpawner runs tasks one at a time, in submission order, on a
// single executor goroutine locked to its OS thread.
type CurrentThreadSpawner struct {
	*instrument

	mu     sync.RWMutex
	closed bool
	queue  *mpsc.Sender[queued]
	exited chan struct{}
}

// NewCurrentThread creates a CurrentThread spawner and starts its executor.
func NewCurrentThread(opts ...Option) *CurrentThreadSpawner {
	tx, rx := mpsc.New[queued]()
	s := &CurrentThreadSpawner{
		instrument: newInstrument(CurrentThread, opts),
		queue:      tx,
		exited:     make(chan struct{}),
	}
	go s.loop(rx)
	return s
}

func (s *CurrentThreadSpawner) loop(rx *mpsc.Receiver[queued]) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(s.exited)

	for {
		q, ok, err := rx.Recv(context.Background())
		if err != nil || !ok {
			return
		}
		s.run(q.ctx, q.task)
	}
}

// Submit appends t to the run queue.
func (s *CurrentThreadSpawner) Submit(ctx context.Context, t Task) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.rejected(t)
		return ErrShutdown
	}
	s.inflight.Add(1)
	if err := s.queue.Send(queued{ctx: ctx, task: t}); err != nil {
		s.inflight.Done()
		return ErrShutdown
	}
	s.accepted(t)
	return nil
}

// Policy returns CurrentThread.
func (s *CurrentThreadSpawner) Policy() Policy {
	return CurrentThread
}

// Shutdown closes the run queue and waits for the executor to drain it.
// Tasks still queued when ctx expires run with a cancelled context, so they
// report as cancelled without executing.
func (s *CurrentThreadSpawner) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.queue.Close()
	}
	s.mu.Unlock()

	if err := s.wait(ctx); err != nil {
		return err
	}
	<-s.exited
	return nil
}
