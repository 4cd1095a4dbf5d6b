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

// Package event defines the unit of work that flows through the dispatcher's
// priority queue: either a received SIP message awaiting processing, or a
// deferred callback.
package event

import (
	"time"

	"github.com/sipmesh/dispatcher/api/transport"
)

// Priority is a small nonnegative integer. Higher numeric value means higher
// priority, and higher priority events are popped from the queue sooner.
type Priority uint8

const (
	// Default is the priority assigned to SUBSCRIBE requests, responses, and
	// callbacks.
	Default Priority = 0

	// High is the priority assigned to OPTIONS requests.
	High Priority = 10
)

// Admission records how an admitted message reached the queue, so the worker
// knows whether it owes the load monitor a completion report.
type Admission uint8

const (
	// Uncontrolled events were admitted without consulting the load monitor
	// (responses, OPTIONS, SUBSCRIBE) and never produce a completion report.
	Uncontrolled Admission = iota
	// Controlled events were admitted after a successful AdmitRequest call
	// and must produce exactly one completion report.
	Controlled
)

// Kind distinguishes the two event variants the queue carries.
type Kind uint8

const (
	// KindMessage is a received SIP message awaiting processing.
	KindMessage Kind = iota
	// KindCallback is a deferred unit of work to run on a worker goroutine.
	KindCallback
)

// Callback is a deferred unit of work submitted directly to the dispatcher,
// bypassing classification and admission control. Release is always called
// after Run returns, even if Run panics, mirroring the source's guarantee
// that a queued callback's destructor always fires after it executes.
type Callback interface {
	Run()
	Release()
}

// Message is the queued representation of a received SIP message: the
// classifier's decisions (admission class, deadline) plus the opaque
// transport message itself.
type Message struct {
	Msg       transport.Message
	Admission Admission
	// Deadline is the instant after which a worker must late-drop this
	// message instead of dispatching it. The zero Time means no deadline
	// (only message events carry one; callbacks never do).
	Deadline time.Time
	// Trail is an opaque tracing identifier threaded through from the
	// producer, used only for observability.
	Trail uint32
}

// HasDeadline reports whether m carries a deadline at all.
func (m *Message) HasDeadline() bool {
	return !m.Deadline.IsZero()
}

// Event is a tagged union of the two variants the queue carries. enqueuedAt
// and seq are stamped exclusively by the queue, under its lock, so that
// ordering ties are always broken by true insertion order regardless of how
// fast or skewed producer clocks are.
type Event struct {
	Kind     Kind
	Message  *Message
	Callback Callback

	priority   Priority
	enqueuedAt time.Time
	seq        uint64

	// index is the event's position in the queue's heap, kept up to date
	// by the heap's Swap/Push/Pop; it is not meaningful outside the queue
	// package.
	index int
}

// NewMessageEvent constructs a KindMessage event at Default priority. The
// caller assigns priority separately with SetPriority before pushing, since
// priority is a classifier decision, not a field of Message.
func NewMessageEvent(m *Message) Event {
	return Event{Kind: KindMessage, Message: m}
}

// NewCallbackEvent constructs a KindCallback event.
func NewCallbackEvent(cb Callback) Event {
	return Event{Kind: KindCallback, Callback: cb}
}

// Priority returns the event's queueing priority: for a message event, the
// value last given to SetPriority (Default if none); callbacks are always
// Default.
func (e *Event) Priority() Priority {
	if e.Kind == KindCallback {
		return Default
	}
	return e.priority
}

// SetPriority assigns the event's queueing priority. It is exported for use
// by the classifier package, which is the only caller expected to set it;
// the queue itself never changes it after Push.
func (e *Event) SetPriority(p Priority) { e.priority = p }

// Stamp records the enqueue time and sequence number used to break priority
// ties. It must only be called by the queue package, while holding the
// queue's lock, so that concurrent producers on skewed or fast clocks still
// observe a monotonic insertion order.
func (e *Event) Stamp(at time.Time, seq uint64) {
	e.enqueuedAt = at
	e.seq = seq
}

// EnqueuedAt returns the time Stamp recorded.
func (e *Event) EnqueuedAt() time.Time { return e.enqueuedAt }

// Seq returns the tie-breaking sequence number Stamp recorded.
func (e *Event) Seq() uint64 { return e.seq }

// HeapIndex and SetHeapIndex back container/heap's index bookkeeping; only
// the queue package calls them.
func (e *Event) HeapIndex() int     { return e.index }
func (e *Event) SetHeapIndex(i int) { e.index = i }
