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

// Package classify turns an inbound transport message into either an
// enqueued event or a synthesized 503, and gives callbacks a separate,
// unclassified entry point onto the same queue.
package classify

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/sipmesh/dispatcher/api/event"
	"github.com/sipmesh/dispatcher/api/transport"
	"github.com/sipmesh/dispatcher/internal/admission"
	"github.com/sipmesh/dispatcher/internal/clock"
	"github.com/sipmesh/dispatcher/internal/queue"
)

// Enqueuer classifies inbound messages, consults admission control, and
// either pushes an event onto the queue or synthesizes a 503 directly. It
// also exposes the unclassified callback entry point.
type Enqueuer struct {
	queue         *queue.Queue
	admission     *admission.Controller
	transport     transport.Collaborator
	clock         clock.Clock
	onQueueWait   time.Duration
	highWaterMark int
}

// New constructs an Enqueuer. onQueueWait is the configured
// request-on-queue timeout used to compute each message event's deadline.
// highWaterMark is the queue depth at or above which admission-controlled
// requests are rejected ahead of admission control; zero disables the
// check.
func New(q *queue.Queue, ctrl *admission.Controller, coll transport.Collaborator, clk clock.Clock, onQueueWait time.Duration, highWaterMark int) *Enqueuer {
	return &Enqueuer{
		queue:         q,
		admission:     ctrl,
		transport:     coll,
		clock:         clk,
		onQueueWait:   onQueueWait,
		highWaterMark: highWaterMark,
	}
}

// priorityFor assigns the queueing priority per the data model: OPTIONS
// requests go first, everything else (including responses, SUBSCRIBE, and
// callbacks) is default priority.
func priorityFor(msg transport.Message) event.Priority {
	if !msg.IsResponse() && msg.Method() == "OPTIONS" {
		return event.High
	}
	return event.Default
}

// OnInbound classifies an inbound message and trail identifier, producing
// exactly one of: an enqueued MESSAGE event, or a synthesized and
// transmitted 503. It never enqueues and synthesizes a 503 for the same
// message.
func (e *Enqueuer) OnInbound(ctx context.Context, msg transport.Message, trail uint32) {
	span, _ := opentracing.StartSpanFromContext(ctx, "dispatcher.classify")
	defer span.Finish()
	span.SetTag("sip.call_id", msg.CallID())

	if e.highWaterMark > 0 && !admission.IsExempt(msg) && e.queue.Len() >= e.highWaterMark {
		span.SetTag("dispatcher.admission", "reject_high_water")
		resp := e.transport.Synthesize503(msg)
		e.transport.Transmit(resp)
		e.transport.Release(msg)
		return
	}

	decision := e.admission.Classify(msg, trail)
	span.SetTag("dispatcher.admission", decisionName(decision))

	if decision == admission.Reject503 {
		resp := e.transport.Synthesize503(msg)
		e.transport.Transmit(resp)
		e.transport.Release(msg)
		return
	}

	priority := priorityFor(msg)
	span.SetTag("dispatcher.priority", int(priority))

	now := e.clock.Now()
	qmsg := &event.Message{
		Msg:       msg,
		Admission: admissionFor(decision),
		Deadline:  now.Add(e.onQueueWait),
		Trail:     trail,
	}
	ev := event.NewMessageEvent(qmsg)
	ev.SetPriority(priority)
	e.queue.Push(&ev)
}

// SubmitCallback pushes a CALLBACK event directly onto the queue,
// bypassing classification and admission control entirely.
func (e *Enqueuer) SubmitCallback(cb event.Callback) {
	ev := event.NewCallbackEvent(cb)
	e.queue.Push(&ev)
}

func admissionFor(d admission.Decision) event.Admission {
	if d == admission.AdmitControlled {
		return event.Controlled
	}
	return event.Uncontrolled
}

func decisionName(d admission.Decision) string {
	switch d {
	case admission.AdmitControlled:
		return "admit_controlled"
	case admission.AdmitUncontrolled:
		return "admit_uncontrolled"
	case admission.Reject503:
		return "reject_503"
	default:
		return "unknown"
	}
}
