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

// Package dispatch drains the priority queue with a fixed pool of worker
// goroutines, dispatching each popped event to downstream processing with
// bounded latency measurement, deadline-based late-drop, and panic
// survival.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sipmesh/dispatcher/api/event"
	"github.com/sipmesh/dispatcher/api/transport"
	"github.com/sipmesh/dispatcher/internal/admission"
	"github.com/sipmesh/dispatcher/internal/clock"
	"github.com/sipmesh/dispatcher/internal/errgroup"
	"github.com/sipmesh/dispatcher/internal/obs"
	"github.com/sipmesh/dispatcher/internal/queue"
)

// defaultSlowMultiplier is the factor applied to the sampled target latency
// beyond which a dispatch is logged as a slow transaction.
const defaultSlowMultiplier = 50

// Config configures a Pool. NumWorkers must be at least 1.
type Config struct {
	NumWorkers     int
	Queue          *queue.Queue
	Admission      *admission.Controller
	Transport      transport.Collaborator
	Clock          clock.Clock
	Logger         *zap.Logger
	SlowMultiplier int
}

// Pool owns the worker goroutines that drain a Queue. The zero value is not
// usable; construct with New.
type Pool struct {
	cfg   Config
	group errgroup.Group
}

// New validates cfg and constructs a Pool. It returns an error for
// misconfiguration (e.g. NumWorkers < 1) instead of starting any
// goroutines, so a failed construction never half-registers workers.
func New(cfg Config) (*Pool, error) {
	if cfg.NumWorkers < 1 {
		return nil, fmt.Errorf("dispatch: NumWorkers must be at least 1, got %d", cfg.NumWorkers)
	}
	if cfg.SlowMultiplier <= 0 {
		cfg.SlowMultiplier = defaultSlowMultiplier
	}
	return &Pool{cfg: cfg}, nil
}

// Start spawns NumWorkers goroutines, each running the dispatch loop until
// the queue is terminated.
func (p *Pool) Start() {
	for i := 0; i < p.cfg.NumWorkers; i++ {
		p.group.Go(p.runWorker)
	}
}

// Wait blocks until every worker goroutine has exited (which happens only
// after the queue is terminated and drained) and returns their combined
// error, if any.
func (p *Pool) Wait() error {
	return p.group.Wait()
}

// runWorker is a single worker's pop/dispatch loop. It never returns a
// non-nil error in steady-state operation; the return type exists so it
// can be handed directly to errgroup.Group.Go.
func (p *Pool) runWorker() error {
	for {
		ev, ok := p.cfg.Queue.Pop()
		if !ok {
			return nil
		}
		p.handle(ev)
	}
}

func (p *Pool) handle(ev *event.Event) {
	if ev.Kind == event.KindCallback {
		p.handleCallback(ev)
		return
	}
	p.handleMessage(ev)
}

func (p *Pool) handleCallback(ev *event.Event) {
	defer ev.Callback.Release()
	ev.Callback.Run()
}

// handleMessage implements the MESSAGE branch of the dispatch loop: late
// drop on an expired deadline, otherwise invoke downstream processing and
// report completion and slow-transaction status.
func (p *Pool) handleMessage(ev *event.Event) {
	msg := ev.Message
	defer p.cfg.Transport.Release(msg.Msg)

	now := p.cfg.Clock.Now()
	// Strict greater-than: a message popped exactly at its deadline is
	// treated as not yet expired.
	if msg.HasDeadline() && now.After(msg.Deadline) {
		p.lateDrop(ev, now)
		return
	}

	targetLatency := p.cfg.Admission.TargetLatency()

	dispatchStart := now
	err := obs.InvokeDownstream(context.Background(), p.cfg.Logger, msg.Msg, p.downstreamFunc(msg.Msg))
	if err != nil && p.cfg.Logger != nil {
		p.cfg.Logger.Error("downstream processing failed",
			zap.String("method", msg.Msg.Method()),
			zap.String("callID", msg.Msg.CallID()),
			zap.Error(err))
	}

	elapsed := p.cfg.Clock.Now().Sub(dispatchStart)
	if targetLatency > 0 && elapsed > targetLatency*time.Duration(p.cfg.SlowMultiplier) {
		obs.LogSlowTransaction(p.cfg.Logger, msg.Msg, elapsed, targetLatency, p.cfg.SlowMultiplier)
	}

	if msg.Admission == event.Controlled {
		p.cfg.Admission.ReportComplete(msg.Msg, elapsed)
	}
}

func (p *Pool) lateDrop(ev *event.Event, now time.Time) {
	msg := ev.Message
	queueLatency := now.Sub(ev.EnqueuedAt())
	obs.LogLateDrop(p.cfg.Logger, msg.Msg, queueLatency)

	if msg.Admission == event.Controlled {
		resp := p.cfg.Transport.Synthesize503(msg.Msg)
		p.cfg.Transport.Transmit(resp)
		p.cfg.Admission.ReportComplete(msg.Msg, queueLatency)
	}
}

func (p *Pool) downstreamFunc(msg transport.Message) func(context.Context, transport.Message) error {
	if msg.IsResponse() {
		return p.cfg.Transport.OnRxResponse
	}
	return p.cfg.Transport.OnRxRequest
}
