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

package queue

import "github.com/sipmesh/dispatcher/api/event"

// eventHeap implements container/heap.Interface over *event.Event. Every
// method here must be called while the owning Queue's lock is held, since
// they are invoked indirectly through heap.Push/heap.Pop.
type eventHeap []*event.Event

// Len must be called in the context of a lock.
func (h eventHeap) Len() int { return len(h) }

// Less orders by priority descending, then enqueue time ascending, then
// sequence number ascending. The sequence number only matters if two events
// were stamped with identical times, which a monotonic clock makes
// possible only in adversarial tests; it guarantees a total order so the
// heap never has to break a tie arbitrarily.
// Less must be called in the context of a lock.
func (h eventHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.Priority() != b.Priority() {
		return a.Priority() > b.Priority()
	}
	if !a.EnqueuedAt().Equal(b.EnqueuedAt()) {
		return a.EnqueuedAt().Before(b.EnqueuedAt())
	}
	return a.Seq() < b.Seq()
}

// Swap must be called in the context of a lock.
func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].SetHeapIndex(i)
	h[j].SetHeapIndex(j)
}

// Push implements heap.Interface. Do NOT call it directly; use
// container/heap.Push via Queue.Push.
func (h *eventHeap) Push(x interface{}) {
	ev := x.(*event.Event)
	ev.SetHeapIndex(len(*h))
	*h = append(*h, ev)
}

// Pop implements heap.Interface. Do NOT call it directly; use
// container/heap.Pop via Queue.Pop.
func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	ev.SetHeapIndex(-1)
	return ev
}
