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

package sipdispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/sipmesh/dispatcher/api/event"
	"github.com/sipmesh/dispatcher/api/loadmonitor"
	"github.com/sipmesh/dispatcher/api/transport"
	"github.com/sipmesh/dispatcher/internal/admission"
	"github.com/sipmesh/dispatcher/internal/classify"
	"github.com/sipmesh/dispatcher/internal/clock"
	"github.com/sipmesh/dispatcher/internal/dispatch"
	"github.com/sipmesh/dispatcher/internal/lifecycle"
	"github.com/sipmesh/dispatcher/internal/queue"
)

// Dispatcher receives messages from a transport.Collaborator, admits or
// rejects them under load, prioritizes them, and hands them to a pool of
// worker goroutines. It is an explicit owning value: there is no
// package-level singleton, and callers are responsible for the value New
// returns for the lifetime of the process.
type Dispatcher struct {
	cfg       Config
	coll      transport.Collaborator
	monitor   loadmonitor.Monitor
	clock     clock.Clock
	queue     *queue.Queue
	enqueuer  *classify.Enqueuer
	pool      *dispatch.Pool
	lifecycle *lifecycle.Once
}

// New validates cfg, wires the queue, admission controller, classifier,
// and worker pool together, and returns an idle Dispatcher. It does not
// start any goroutines; call Start for that. New fails fast on
// misconfiguration: a zero NumWorkers, a nil collaborator or monitor, or a
// RequestOnQueueTimeout under a millisecond.
func New(cfg Config, coll transport.Collaborator, monitor loadmonitor.Monitor) (*Dispatcher, error) {
	if cfg.NumWorkers < 1 {
		return nil, fmt.Errorf("sipdispatch: NumWorkers must be at least 1, got %d", cfg.NumWorkers)
	}
	if coll == nil {
		return nil, fmt.Errorf("sipdispatch: a transport.Collaborator is required")
	}
	if monitor == nil {
		return nil, fmt.Errorf("sipdispatch: a loadmonitor.Monitor is required")
	}
	if cfg.RequestOnQueueTimeout < time.Millisecond {
		return nil, fmt.Errorf("sipdispatch: RequestOnQueueTimeout must be at least 1ms, got %v", cfg.RequestOnQueueTimeout)
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewReal()
	}

	q := queue.New(clk, cfg.Scope)
	ctrl := admission.New(monitor)
	enqueuer := classify.New(q, ctrl, coll, clk, cfg.RequestOnQueueTimeout, cfg.QueueHighWaterMark)

	pool, err := dispatch.New(dispatch.Config{
		NumWorkers:     cfg.NumWorkers,
		Queue:          q,
		Admission:      ctrl,
		Transport:      coll,
		Clock:          clk,
		Logger:         cfg.Logger,
		SlowMultiplier: cfg.SlowTransactionMultiplier,
	})
	if err != nil {
		return nil, err
	}

	return &Dispatcher{
		cfg:       cfg,
		coll:      coll,
		monitor:   monitor,
		clock:     clk,
		queue:     q,
		enqueuer:  enqueuer,
		pool:      pool,
		lifecycle: lifecycle.NewOnce(),
	}, nil
}

// Start spawns the worker pool. It is idempotent and safe to call
// concurrently with itself and with Stop: the first caller does the work,
// later callers block until it finishes and observe the same result.
func (d *Dispatcher) Start() error {
	return d.lifecycle.Start(func() error {
		d.pool.Start()
		return nil
	})
}

// Stop terminates the queue, waits for every worker to exit, and returns
// their combined error, if any. It is idempotent and safe to call
// concurrently with itself and with Start. Events still queued when Stop
// is called are drained and their messages released by the worker pool
// exactly as they would be during normal operation; none are silently
// discarded.
func (d *Dispatcher) Stop() error {
	return d.lifecycle.Stop(func() error {
		d.queue.Terminate()
		return d.pool.Wait()
	})
}

// OnInbound is the producer hook the transport collaborator calls, from
// any of its own reader goroutines, for every received message. The
// dispatcher takes ownership of msg: it eventually calls Transport.Release
// on it exactly once and, when the message is rejected or an
// admission-controlled request is late-dropped, also calls
// Transport.Synthesize503 and Transport.Transmit.
func (d *Dispatcher) OnInbound(msg transport.Message, trail uint32) {
	d.enqueuer.OnInbound(context.Background(), msg, trail)
}

// SubmitCallback pushes cb onto the queue as a CALLBACK event, bypassing
// classification and admission control. cb may be submitted from any
// goroutine, including worker goroutines themselves.
func (d *Dispatcher) SubmitCallback(cb event.Callback) {
	d.enqueuer.SubmitCallback(cb)
}
