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

package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sipmesh/dispatcher/api/event"
	"github.com/sipmesh/dispatcher/api/transport"
	"github.com/sipmesh/dispatcher/internal/admission"
	"github.com/sipmesh/dispatcher/internal/clock"
	"github.com/sipmesh/dispatcher/internal/queue"
)

type fakeMessage struct {
	method     string
	isResponse bool
	callID     string
}

func (m fakeMessage) Method() string   { return m.method }
func (m fakeMessage) IsResponse() bool { return m.isResponse }
func (m fakeMessage) CallID() string   { return m.callID }

type completionReport struct {
	msg     transport.Message
	latency time.Duration
}

type fakeMonitor struct {
	mu       sync.Mutex
	target   time.Duration
	reported []completionReport
}

func (m *fakeMonitor) AdmitRequest(uint32) bool { return true }
func (m *fakeMonitor) RequestComplete(msg transport.Message, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reported = append(m.reported, completionReport{msg, latency})
}
func (m *fakeMonitor) TargetLatency() time.Duration { return m.target }

func (m *fakeMonitor) reports() []completionReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]completionReport(nil), m.reported...)
}

type fakeCollaborator struct {
	mu          sync.Mutex
	onRxRequest func(context.Context, transport.Message) error
	synthesized []transport.Message
	transmitted []transport.Response
	released    []transport.Message
}

func (c *fakeCollaborator) Synthesize503(msg transport.Message) transport.Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.synthesized = append(c.synthesized, msg)
	return "503"
}
func (c *fakeCollaborator) Transmit(resp transport.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transmitted = append(c.transmitted, resp)
}
func (c *fakeCollaborator) Release(msg transport.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = append(c.released, msg)
}
func (c *fakeCollaborator) OnRxRequest(ctx context.Context, msg transport.Message) error {
	if c.onRxRequest != nil {
		return c.onRxRequest(ctx, msg)
	}
	return nil
}
func (c *fakeCollaborator) OnRxResponse(context.Context, transport.Message) error { return nil }

func (c *fakeCollaborator) snapshotSynthesized() []transport.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]transport.Message(nil), c.synthesized...)
}

func (c *fakeCollaborator) snapshotReleased() []transport.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]transport.Message(nil), c.released...)
}

func newPool(t *testing.T, fc *clock.FakeClock, mon *fakeMonitor, coll *fakeCollaborator, q *queue.Queue) *Pool {
	t.Helper()
	p, err := New(Config{
		NumWorkers: 1,
		Queue:      q,
		Admission:  admission.New(mon),
		Transport:  coll,
		Clock:      fc,
	})
	require.NoError(t, err)
	return p
}

func TestNewRejectsZeroWorkers(t *testing.T) {
	_, err := New(Config{NumWorkers: 0})
	assert.Error(t, err)
}

func TestStandardInviteDispatchesAndReports(t *testing.T) {
	fc := clock.NewFake()
	mon := &fakeMonitor{}
	coll := &fakeCollaborator{}
	q := queue.New(fc, nil)

	p := newPool(t, fc, mon, coll, q)
	p.Start()

	msg := fakeMessage{method: "INVITE", callID: "c1"}
	qmsg := &event.Message{Msg: msg, Admission: event.Controlled, Deadline: fc.Now().Add(time.Second)}
	ev := event.NewMessageEvent(qmsg)
	q.Push(&ev)

	q.Terminate()
	require.NoError(t, p.Wait())

	require.Len(t, mon.reports(), 1)
	assert.Empty(t, coll.snapshotSynthesized())
	require.Len(t, coll.snapshotReleased(), 1)
}

func TestRejectOldInviteLateDrops(t *testing.T) {
	fc := clock.NewFake()
	mon := &fakeMonitor{}
	coll := &fakeCollaborator{}
	q := queue.New(fc, nil)

	p := newPool(t, fc, mon, coll, q)

	msg := fakeMessage{method: "INVITE", callID: "c1"}
	qmsg := &event.Message{Msg: msg, Admission: event.Controlled, Deadline: fc.Now().Add(10 * time.Millisecond)}
	ev := event.NewMessageEvent(qmsg)
	q.Push(&ev)

	fc.Add(15 * time.Millisecond)

	p.Start()
	q.Terminate()
	require.NoError(t, p.Wait())

	require.Len(t, coll.snapshotSynthesized(), 1, "a late-dropped controlled message still gets a 503")
	require.Len(t, mon.reports(), 1)
	require.Len(t, coll.snapshotReleased(), 1)
}

func TestDeadlineExactlyAtNowIsNotExpired(t *testing.T) {
	fc := clock.NewFake()
	mon := &fakeMonitor{}
	coll := &fakeCollaborator{}
	q := queue.New(fc, nil)

	p := newPool(t, fc, mon, coll, q)

	msg := fakeMessage{method: "INVITE", callID: "c1"}
	qmsg := &event.Message{Msg: msg, Admission: event.Controlled, Deadline: fc.Now()}
	ev := event.NewMessageEvent(qmsg)
	q.Push(&ev)

	p.Start()
	q.Terminate()
	require.NoError(t, p.Wait())

	assert.Empty(t, coll.snapshotSynthesized(), "a deadline equal to now must not be treated as expired")
}

func TestUncontrolledLateDropSkipsReportAndResponse(t *testing.T) {
	fc := clock.NewFake()
	mon := &fakeMonitor{}
	coll := &fakeCollaborator{}
	q := queue.New(fc, nil)

	p := newPool(t, fc, mon, coll, q)

	msg := fakeMessage{method: "OPTIONS", callID: "c1"}
	qmsg := &event.Message{Msg: msg, Admission: event.Uncontrolled, Deadline: fc.Now().Add(10 * time.Millisecond)}
	ev := event.NewMessageEvent(qmsg)
	ev.SetPriority(event.High)
	q.Push(&ev)

	fc.Add(15 * time.Millisecond)

	p.Start()
	q.Terminate()
	require.NoError(t, p.Wait())

	assert.Empty(t, coll.snapshotSynthesized())
	assert.Empty(t, mon.reports())
	require.Len(t, coll.snapshotReleased(), 1)
}

func TestSlowInviteEmitsSlowTransaction(t *testing.T) {
	fc := clock.NewFake()
	mon := &fakeMonitor{target: 10 * time.Microsecond}
	coll := &fakeCollaborator{
		onRxRequest: func(context.Context, transport.Message) error {
			fc.Add(6000 * time.Millisecond)
			return nil
		},
	}
	q := queue.New(fc, nil)
	core, logs := observer.New(zap.DebugLevel)

	p, err := New(Config{
		NumWorkers: 1,
		Queue:      q,
		Admission:  admission.New(mon),
		Transport:  coll,
		Clock:      fc,
		Logger:     zap.New(core),
	})
	require.NoError(t, err)

	msg := fakeMessage{method: "INVITE", callID: "c1"}
	qmsg := &event.Message{Msg: msg, Admission: event.Controlled, Deadline: fc.Now().Add(time.Second)}
	ev := event.NewMessageEvent(qmsg)
	q.Push(&ev)

	p.Start()
	q.Terminate()
	require.NoError(t, p.Wait())

	assert.Equal(t, 1, logs.FilterMessage("slow transaction").Len(), "6000ms exceeds 50x the 10us target")

	reports := mon.reports()
	require.Len(t, reports, 1)
	assert.Equal(t, 6000*time.Millisecond, reports[0].latency, "slow dispatch still completes normally and reports full elapsed time")
}

func TestPanickingDownstreamStillReportsCompletion(t *testing.T) {
	fc := clock.NewFake()
	mon := &fakeMonitor{}
	coll := &fakeCollaborator{
		onRxRequest: func(context.Context, transport.Message) error {
			panic("application logic exploded")
		},
	}
	q := queue.New(fc, nil)

	p := newPool(t, fc, mon, coll, q)

	msg := fakeMessage{method: "INVITE", callID: "c1"}
	qmsg := &event.Message{Msg: msg, Admission: event.Controlled, Deadline: fc.Now().Add(time.Second)}
	ev := event.NewMessageEvent(qmsg)
	q.Push(&ev)

	p.Start()
	q.Terminate()
	require.NoError(t, p.Wait(), "a panicking handler must not kill the worker or the pool")

	require.Len(t, mon.reports(), 1, "the event is still fatal-to-itself but the completion report still fires")
	require.Len(t, coll.snapshotReleased(), 1)
}

type fakeCallback struct {
	ran      chan struct{}
	released chan struct{}
}

func newFakeCallback() *fakeCallback {
	return &fakeCallback{ran: make(chan struct{}, 1), released: make(chan struct{}, 1)}
}

func (c *fakeCallback) Run()     { c.ran <- struct{}{} }
func (c *fakeCallback) Release() { c.released <- struct{}{} }

func TestCallbackRunsAndReleases(t *testing.T) {
	fc := clock.NewFake()
	mon := &fakeMonitor{}
	coll := &fakeCollaborator{}
	q := queue.New(fc, nil)

	p := newPool(t, fc, mon, coll, q)

	cb := newFakeCallback()
	ev := event.NewCallbackEvent(cb)
	q.Push(&ev)

	p.Start()
	q.Terminate()
	require.NoError(t, p.Wait())

	select {
	case <-cb.ran:
	default:
		t.Fatal("callback was never run")
	}
	select {
	case <-cb.released:
	default:
		t.Fatal("callback was never released")
	}
}
