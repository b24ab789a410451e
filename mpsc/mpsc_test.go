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

package mpsc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func recvAll[T any](t *testing.T, rx *Receiver[T]) []T {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out []T
	for {
		v, ok, err := rx.Recv(ctx)
		if err != nil {
			t.Fatalf("Recv() error = %v", err)
		}
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

func TestSingleSenderFIFO(t *testing.T) {
	tx, rx := New[int]()

	const n = 5000
	go func() {
		defer tx.Close()
		for i := 0; i < n; i++ {
			if err := tx.Send(i); err != nil {
				t.Errorf("Send(%d) = %v", i, err)
				return
			}
		}
	}()

	got := recvAll(t, rx)
	if len(got) != n {
		t.Fatalf("received %d messages, expected %d", len(got), n)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("message %d = %d, expected %d", i, v, i)
		}
	}
}

func TestClonedSendersPreserveOwnOrder(t *testing.T) {
	type msg struct {
		sender int
		seq    int
	}
	tx, rx := New[msg]()

	const senders, perSender = 8, 500
	var wg sync.WaitGroup
	for s := 0; s < senders; s++ {
		clone := tx.Clone()
		wg.Add(1)
		go func(id int, clone *Sender[msg]) {
			defer wg.Done()
			defer clone.Close()
			for i := 0; i < perSender; i++ {
				if err := clone.Send(msg{sender: id, seq: i}); err != nil {
					t.Errorf("Send() = %v", err)
					return
				}
			}
		}(s, clone)
	}
	tx.Close()

	got := recvAll(t, rx)
	wg.Wait()

	if len(got) != senders*perSender {
		t.Fatalf("received %d messages, expected %d", len(got), senders*perSender)
	}
	next := make([]int, senders)
	for _, m := range got {
		if m.seq != next[m.sender] {
			t.Fatalf("sender %d: got seq %d, expected %d", m.sender, m.seq, next[m.sender])
		}
		next[m.sender]++
	}
}

func TestCloseDrainsBeforeEndOfStream(t *testing.T) {
	tx, rx := New[string]()
	for _, s := range []string{"a", "b", "c"} {
		if err := tx.Send(s); err != nil {
			t.Fatal(err)
		}
	}
	tx.Close()

	got := recvAll(t, rx)
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("received %v, expected [a b c]", got)
	}

	// End of stream is sticky.
	if _, ok, err := rx.Recv(context.Background()); ok || err != nil {
		t.Errorf("Recv() after close = ok %v, err %v; expected false, nil", ok, err)
	}
}

func TestPendingRecvWakesOnLastClose(t *testing.T) {
	tx, rx := New[int]()
	clone := tx.Clone()
	done := make(chan bool, 1)

	go func() {
		_, ok, _ := rx.Recv(context.Background())
		done <- ok
	}()

	tx.Close()
	select {
	case <-done:
		t.Fatal("Recv() resolved while a strong sender was still open")
	case <-time.After(20 * time.Millisecond):
	}

	clone.Close()
	select {
	case ok := <-done:
		if ok {
			t.Error("Recv() ok = true, expected closed")
		}
	case <-time.After(time.Second):
		t.Fatal("Recv() hung after all senders closed")
	}
}

func TestSendAfterReceiverClosed(t *testing.T) {
	tx, rx := New[int]()
	if err := tx.Send(1); err != nil {
		t.Fatal(err)
	}
	rx.Close()

	if !tx.IsClosed() {
		t.Error("IsClosed() = false after receiver Close")
	}

	err := tx.Send(42)
	var sendErr *SendError[int]
	if !errors.As(err, &sendErr) {
		t.Fatalf("Send() = %v, expected *SendError", err)
	}
	if sendErr.Value != 42 {
		t.Errorf("SendError.Value = %d, expected 42", sendErr.Value)
	}
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Send() error = %v, expected ErrClosed", err)
	}
	if _, err := rx.TryRecv(); !errors.Is(err, ErrDisconnected) {
		t.Errorf("TryRecv() after Close = %v, expected ErrDisconnected", err)
	}
}

func TestSendOnClosedHandle(t *testing.T) {
	tx, _ := New[int]()
	tx.Close()
	tx.Close() // idempotent

	err := tx.Send(1)
	if !errors.Is(err, ErrSenderClosed) {
		t.Errorf("Send() on closed handle = %v, expected ErrSenderClosed", err)
	}
}

func TestTryRecv(t *testing.T) {
	tx, rx := New[int]()

	if _, err := rx.TryRecv(); !errors.Is(err, ErrEmpty) {
		t.Errorf("TryRecv() on empty open channel = %v, expected ErrEmpty", err)
	}

	_ = tx.Send(1)
	if rx.Len() != 1 {
		t.Errorf("Len() = %d, expected 1", rx.Len())
	}
	if v, err := rx.TryRecv(); err != nil || v != 1 {
		t.Errorf("TryRecv() = %d, %v; expected 1, nil", v, err)
	}

	_ = tx.Send(2)
	tx.Close()
	if v, err := rx.TryRecv(); err != nil || v != 2 {
		t.Errorf("TryRecv() after close = %d, %v; expected queued 2", v, err)
	}
	if _, err := rx.TryRecv(); !errors.Is(err, ErrDisconnected) {
		t.Errorf("TryRecv() on drained closed channel = %v, expected ErrDisconnected", err)
	}
}

func TestRecvContextCancelledLosesNothing(t *testing.T) {
	tx, rx := New[int]()
	defer tx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, ok, err := rx.Recv(ctx); ok || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Recv() = ok %v, err %v; expected DeadlineExceeded", ok, err)
	}

	_ = tx.Send(7)
	if v, ok, err := rx.Recv(context.Background()); !ok || err != nil || v != 7 {
		t.Errorf("Recv() = %d, %v, %v; expected 7", v, ok, err)
	}
}

func TestWeakSender(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(tx *Sender[int], rx *Receiver[int]) *Sender[int]
		expectOK bool
	}{
		{
			name:     "strong sender and receiver alive",
			setup:    func(tx *Sender[int], rx *Receiver[int]) *Sender[int] { return tx },
			expectOK: true,
		},
		{
			name: "all strong senders closed, receiver alive",
			setup: func(tx *Sender[int], rx *Receiver[int]) *Sender[int] {
				tx.Close()
				return nil
			},
			expectOK: false,
		},
		{
			name: "receiver closed, strong sender alive",
			setup: func(tx *Sender[int], rx *Receiver[int]) *Sender[int] {
				rx.Close()
				return tx
			},
			expectOK: false,
		},
		{
			name: "everything closed",
			setup: func(tx *Sender[int], rx *Receiver[int]) *Sender[int] {
				tx.Close()
				rx.Close()
				return nil
			},
			expectOK: false,
		},
		{
			name: "original closed but a clone keeps it alive",
			setup: func(tx *Sender[int], rx *Receiver[int]) *Sender[int] {
				clone := tx.Clone()
				tx.Close()
				return clone
			},
			expectOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, rx := New[int]()
			weak := tx.Downgrade()
			keep := tt.setup(tx, rx)

			up, ok := weak.Upgrade()
			if ok != tt.expectOK {
				t.Fatalf("Upgrade() ok = %v, expected %v", ok, tt.expectOK)
			}
			if !ok {
				if up != nil {
					t.Error("Upgrade() returned a sender on failure")
				}
				return
			}
			if !up.SameChannel(tx) {
				t.Error("upgraded sender feeds a different channel")
			}

			// Round trip: a message sent via the upgraded handle is received unchanged.
			if err := up.Send(99); err != nil {
				t.Fatalf("Send() via upgraded sender = %v", err)
			}
			if v, err := rx.TryRecv(); err != nil || v != 99 {
				t.Errorf("TryRecv() = %d, %v; expected 99", v, err)
			}

			// The upgraded handle is strong: it keeps the channel open on its own.
			if keep != nil {
				keep.Close()
			}
			if _, err := rx.TryRecv(); !errors.Is(err, ErrEmpty) {
				t.Errorf("TryRecv() with only upgraded sender = %v, expected ErrEmpty", err)
			}
			up.Close()
			if _, err := rx.TryRecv(); !errors.Is(err, ErrDisconnected) {
				t.Errorf("TryRecv() after closing upgraded sender = %v, expected ErrDisconnected", err)
			}
		})
	}
}

func TestWeakSenderDoesNotKeepChannelOpen(t *testing.T) {
	tx, rx := New[int]()
	weak := tx.Downgrade()
	tx.Close()

	if _, ok, err := rx.Recv(context.Background()); ok || err != nil {
		t.Errorf("Recv() = ok %v, err %v; expected end of stream with only a weak sender", ok, err)
	}
	if _, ok := weak.Upgrade(); ok {
		t.Error("Upgrade() succeeded after end of stream")
	}
}

func TestCloneOfClosedHandle(t *testing.T) {
	tx, rx := New[int]()
	tx.Close()

	if _, err := rx.TryRecv(); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("TryRecv() = %v, expected ErrDisconnected", err)
	}
	clone := tx.Clone()
	if err := clone.Send(1); !errors.Is(err, ErrSenderClosed) {
		t.Errorf("Send() on clone of closed handle = %v, expected ErrSenderClosed", err)
	}
	if _, err := rx.TryRecv(); !errors.Is(err, ErrDisconnected) {
		t.Errorf("TryRecv() after clone = %v, channel was reopened", err)
	}
}

func TestCloneRacingCloseNeverReopens(t *testing.T) {
	for i := 0; i < 500; i++ {
		tx, _ := New[int]()
		c := tx.c

		stop := make(chan struct{})
		reopened := make(chan bool, 1)
		go func() {
			sawZero := false
			for {
				c.mu.Lock()
				strong := c.strong
				c.mu.Unlock()
				if strong == 0 {
					sawZero = true
				} else if sawZero {
					reopened <- true
					return
				}
				select {
				case <-stop:
					reopened <- false
					return
				default:
				}
			}
		}()

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx.Close()
		}()
		clone := tx.Clone()
		wg.Wait()
		clone.Close()
		close(stop)

		if <-reopened {
			t.Fatalf("iteration %d: strong count rose after reaching zero", i)
		}
		c.mu.Lock()
		strong := c.strong
		c.mu.Unlock()
		if strong != 0 {
			t.Fatalf("iteration %d: strong = %d after every handle closed, expected 0", i, strong)
		}
	}
}

func TestQueueCompaction(t *testing.T) {
	var q queue[int]
	for i := 0; i < 3*compactThreshold; i++ {
		q.push(i)
	}
	for i := 0; i < 2*compactThreshold; i++ {
		v, ok := q.pop()
		if !ok || v != i {
			t.Fatalf("pop() = %d, %v; expected %d", v, ok, i)
		}
	}
	if q.len() != compactThreshold {
		t.Fatalf("len() = %d, expected %d", q.len(), compactThreshold)
	}
	for i := 2 * compactThreshold; i < 3*compactThreshold; i++ {
		v, ok := q.pop()
		if !ok || v != i {
			t.Fatalf("pop() after compaction = %d, %v; expected %d", v, ok, i)
		}
	}
	if _, ok := q.pop(); ok {
		t.Error("pop() on empty queue returned a value")
	}
}
