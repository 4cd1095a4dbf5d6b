// Copyright (c) 2024 The Sprout Dispatcher Authors.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package queue implements the dispatcher's priority event queue: a
// heap ordered by (priority desc, enqueue-time asc, sequence asc), with a
// blocking Pop that consumers use to wait for work and a Terminate that
// wakes every blocked consumer; after Terminate, Pop still drains the
// remaining events before it starts failing.
package queue

import (
	"container/heap"
	"sync"

	"github.com/uber-go/tally"

	"github.com/sipmesh/dispatcher/api/event"
	"github.com/sipmesh/dispatcher/internal/clock"
)

// Queue is a multi-producer, multi-consumer priority queue of *event.Event.
// The zero value is not usable; construct with New.
type Queue struct {
	mu   sync.Mutex
	cond *sync.Cond
	h    eventHeap

	clock      clock.Clock
	seq        uint64
	terminated bool
	depthGauge tally.Gauge
}

// New constructs an empty Queue. scope may be nil, in which case queue
// depth is not reported.
func New(clk clock.Clock, scope tally.Scope) *Queue {
	q := &Queue{clock: clk}
	q.cond = sync.NewCond(&q.mu)
	if scope != nil {
		q.depthGauge = scope.Gauge("queue_depth")
	}
	return q
}

// Push enqueues ev, respecting priority-then-age order, and wakes one
// blocked consumer. Push never fails: the queue is unbounded, since
// admission control (internal/admission), not the queue, is where
// saturation is handled.
func (q *Queue) Push(ev *event.Event) {
	q.mu.Lock()
	ev.Stamp(q.clock.Now(), q.seq)
	q.seq++
	heap.Push(&q.h, ev)
	q.reportDepthLocked()
	q.mu.Unlock()
	q.cond.Signal()
}

// Pop blocks until an event is available or the queue is terminated. It
// returns (event, true) on success. After Terminate, Pop continues to
// drain whatever remains in priority order before returning (nil, false)
// forever.
func (q *Queue) Pop() (*event.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.h.Len() == 0 {
		if q.terminated {
			return nil, false
		}
		q.cond.Wait()
	}

	ev := heap.Pop(&q.h).(*event.Event)
	q.reportDepthLocked()
	return ev, true
}

// Terminate marks the queue closed and wakes every blocked consumer.
// Events already queued are still returned by subsequent Pop calls, in
// order, until the queue is empty. Terminate is idempotent.
func (q *Queue) Terminate() {
	q.mu.Lock()
	q.terminated = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Len reports the number of events currently queued. Besides tests and
// diagnostics, the classifier uses it for its queue high-water check.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.h.Len()
}

func (q *Queue) reportDepthLocked() {
	if q.depthGauge != nil {
		q.depthGauge.Update(float64(q.h.Len()))
	}
}
