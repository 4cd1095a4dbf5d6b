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

package loadmonitor

import (
	"time"

	"go.uber.org/atomic"

	"github.com/sipmesh/dispatcher/api/transport"
)

// InMemory is a small reference Monitor: it admits requests up to a fixed
// outstanding-request limit and derives its target latency from an
// exponentially weighted moving average of reported completion latencies.
// It exists only so the module is runnable and testable standalone; it is
// not part of the dispatcher's contract, and production deployments are
// expected to supply their own Monitor backed by a real load-estimation
// algorithm.
//
// The admit/release bookkeeping is a lock-free CAS loop in the style of
// internal/ratelimit.Throttle: outstanding is advanced optimistically and
// retried on contention, rather than held behind a mutex.
type InMemory struct {
	limit       int64
	outstanding atomic.Int64
	targetNanos atomic.Int64
	alpha       float64
}

// NewInMemory returns an InMemory monitor that admits at most maxOutstanding
// concurrent controlled requests. initialTarget seeds TargetLatency before
// any completion has been reported.
func NewInMemory(maxOutstanding int, initialTarget time.Duration) *InMemory {
	m := &InMemory{
		limit: int64(maxOutstanding),
		alpha: 0.2,
	}
	m.targetNanos.Store(initialTarget.Nanoseconds())
	return m
}

// AdmitRequest admits the request if fewer than the configured limit of
// requests are currently outstanding.
func (m *InMemory) AdmitRequest(_ uint32) bool {
	for {
		current := m.outstanding.Load()
		if current >= m.limit {
			return false
		}
		if m.outstanding.CAS(current, current+1) {
			return true
		}
		// Lost the race with a concurrent admit/complete; retry with a
		// fresh read. Contention here is expected under load and the loop
		// converges quickly since outstanding only ever moves by one.
	}
}

// RequestComplete releases one slot of outstanding capacity and folds
// latency into the moving average used by TargetLatency.
func (m *InMemory) RequestComplete(_ transport.Message, latency time.Duration) {
	for {
		current := m.outstanding.Load()
		if current == 0 {
			break
		}
		if m.outstanding.CAS(current, current-1) {
			break
		}
	}

	for {
		prev := m.targetNanos.Load()
		next := int64(m.alpha*float64(latency.Nanoseconds()) + (1-m.alpha)*float64(prev))
		if m.targetNanos.CAS(prev, next) {
			return
		}
	}
}

// TargetLatency returns the current exponentially weighted moving average
// of reported completion latencies.
func (m *InMemory) TargetLatency() time.Duration {
	return time.Duration(m.targetNanos.Load())
}

var _ Monitor = (*InMemory)(nil)
