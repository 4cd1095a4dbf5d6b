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

// Package admission decides, per inbound message, whether it is accepted
// into the queue, accepted without consulting the load monitor, or
// rejected outright.
package admission

import (
	"time"

	"github.com/sipmesh/dispatcher/api/loadmonitor"
	"github.com/sipmesh/dispatcher/api/transport"
)

// Decision is the outcome of Controller.Classify.
type Decision uint8

const (
	// AdmitControlled means the message was accepted after a successful
	// load monitor check, and RequestComplete must be reported for it
	// exactly once.
	AdmitControlled Decision = iota
	// AdmitUncontrolled means the message was accepted without consulting
	// the load monitor at all; no completion report is ever owed.
	AdmitUncontrolled
	// Reject503 means the message must not be enqueued; the caller
	// synthesizes and transmits a 503 instead.
	Reject503
)

// uncontrolledMethods never consult the load monitor: OPTIONS carries
// keepalive/health semantics that must survive overload, and SUBSCRIBE
// failures would corrupt subscription state downstream.
var uncontrolledMethods = map[string]bool{
	"OPTIONS":   true,
	"SUBSCRIBE": true,
}

// Controller wraps a loadmonitor.Monitor with the method/response
// exemptions the SIP layer requires. It holds no state of its own beyond
// the injected monitor, so it is safe for concurrent use by as many
// classifier goroutines as are running.
type Controller struct {
	monitor loadmonitor.Monitor
}

// New constructs a Controller backed by monitor. monitor must not be nil.
func New(monitor loadmonitor.Monitor) *Controller {
	return &Controller{monitor: monitor}
}

// Classify decides the admission outcome for msg. Responses, OPTIONS, and
// SUBSCRIBE requests are always admitted without consulting the monitor;
// every other request is admitted or rejected based on
// Monitor.AdmitRequest.
func (c *Controller) Classify(msg transport.Message, trail uint32) Decision {
	if IsExempt(msg) {
		return AdmitUncontrolled
	}
	if c.monitor.AdmitRequest(trail) {
		return AdmitControlled
	}
	return Reject503
}

// IsExempt reports whether msg is a response, OPTIONS, or SUBSCRIBE
// request — the set that Classify always admits without consulting the
// monitor. Callers that need to apply a rejection path of their own ahead
// of Classify (e.g. a queue high-water check) must skip it for exempt
// messages the same way Classify does.
func IsExempt(msg transport.Message) bool {
	return msg.IsResponse() || uncontrolledMethods[msg.Method()]
}

// ReportComplete forwards a completion report to the load monitor. Callers
// must invoke this for every event that was admitted as AdmitControlled,
// whether it was dispatched successfully or late-dropped, and must not
// invoke it for AdmitUncontrolled or Reject503 outcomes.
func (c *Controller) ReportComplete(msg transport.Message, latency time.Duration) {
	c.monitor.RequestComplete(msg, latency)
}

// TargetLatency returns the monitor's current target latency, sampled
// once per dispatch by the worker pool.
func (c *Controller) TargetLatency() time.Duration {
	return c.monitor.TargetLatency()
}
