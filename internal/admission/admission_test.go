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

package admission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipmesh/dispatcher/api/transport"
)

type fakeMessage struct {
	method     string
	isResponse bool
}

func (m fakeMessage) Method() string   { return m.method }
func (m fakeMessage) IsResponse() bool { return m.isResponse }
func (m fakeMessage) CallID() string   { return "call-1" }

type fakeMonitor struct {
	admit    bool
	target   time.Duration
	reported []time.Duration
}

func (m *fakeMonitor) AdmitRequest(trail uint32) bool { return m.admit }
func (m *fakeMonitor) RequestComplete(msg transport.Message, latency time.Duration) {
	m.reported = append(m.reported, latency)
}
func (m *fakeMonitor) TargetLatency() time.Duration { return m.target }

func TestNeverRejectOptions(t *testing.T) {
	mon := &fakeMonitor{admit: false}
	c := New(mon)

	got := c.Classify(fakeMessage{method: "OPTIONS"}, 1)
	assert.Equal(t, AdmitUncontrolled, got, "OPTIONS must survive overload without consulting the monitor")
}

func TestNeverRejectSubscribe(t *testing.T) {
	mon := &fakeMonitor{admit: false}
	c := New(mon)

	got := c.Classify(fakeMessage{method: "SUBSCRIBE"}, 1)
	assert.Equal(t, AdmitUncontrolled, got)
}

func TestNeverRejectResponse(t *testing.T) {
	mon := &fakeMonitor{admit: false}
	c := New(mon)

	got := c.Classify(fakeMessage{method: "INVITE", isResponse: true}, 1)
	assert.Equal(t, AdmitUncontrolled, got, "responses close out committed work and must always be processed")
}

func TestStandardInviteIsControlled(t *testing.T) {
	mon := &fakeMonitor{admit: true}
	c := New(mon)

	got := c.Classify(fakeMessage{method: "INVITE"}, 1)
	assert.Equal(t, AdmitControlled, got)
}

func TestOverloadedInviteIsRejected(t *testing.T) {
	mon := &fakeMonitor{admit: false}
	c := New(mon)

	got := c.Classify(fakeMessage{method: "INVITE"}, 1)
	assert.Equal(t, Reject503, got)
}

func TestReportCompleteForwardsToMonitor(t *testing.T) {
	mon := &fakeMonitor{}
	c := New(mon)

	msg := fakeMessage{method: "INVITE"}
	c.ReportComplete(msg, 42*time.Millisecond)

	require.Len(t, mon.reported, 1)
	assert.Equal(t, 42*time.Millisecond, mon.reported[0])
}

func TestTargetLatencyPassesThrough(t *testing.T) {
	mon := &fakeMonitor{target: 10 * time.Microsecond}
	c := New(mon)
	assert.Equal(t, 10*time.Microsecond, c.TargetLatency())
}
