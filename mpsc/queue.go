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

// compactThreshold is the number of consumed slots tolerated at the head of
// the buffer before the live tail is moved down.
const compactThreshold = 1024

// queue is an unbounded FIFO. It is not synchronized; chanState guards it.
type queue[T any] struct {
	buf  []T
	head int
}

func (q *queue[T]) push(v T) {
	q.buf = append(q.buf, v)
}

func (q *queue[T]) pop() (T, bool) {
	var zero T
	if q.head == len(q.buf) {
		return zero, false
	}

	v := q.buf[q.head]
	q.buf[q.head] = zero
	q.head++

	switch {
	case q.head == len(q.buf):
		q.buf = q.buf[:0]
		q.head = 0
	case q.head >= compactThreshold && q.head*2 >= len(q.buf):
		n := copy(q.buf, q.buf[q.head:])
		clear(q.buf[n:])
		q.buf = q.buf[:n]
		q.head = 0
	}
	return v, true
}

func (q *queue[T]) len() int {
	return len(q.buf) - q.head
}

func (q *queue[T]) reset() {
	clear(q.buf)
	q.buf = nil
	q.head = 0
}
