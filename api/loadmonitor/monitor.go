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

// Package loadmonitor defines the contract the dispatcher consumes from an
// external load monitor, plus a small reference implementation used only by
// tests and standalone examples. The dispatcher does not implement or
// depend on any particular admission algorithm; it only calls this
// interface.
package loadmonitor

import (
	"time"

	"github.com/sipmesh/dispatcher/api/transport"
)

// Monitor is the load monitor contract consumed by the admission controller
// and the worker pool. All three methods are called from worker or
// classifier goroutines and must be safe for concurrent use.
type Monitor interface {
	// AdmitRequest decides whether a new admission-controlled request
	// should be accepted, given the current load. trail is an opaque
	// tracing identifier, threaded through for correlation only.
	AdmitRequest(trail uint32) bool
	// RequestComplete reports that an admission-controlled request
	// finished (dispatched or late-dropped) after latency, so the
	// monitor's load estimate reflects reality.
	RequestComplete(msg transport.Message, latency time.Duration)
	// TargetLatency returns the monitor's current target per-request
	// latency. A zero value means no target is available yet.
	TargetLatency() time.Duration
}
