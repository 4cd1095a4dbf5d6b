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

// Package lifecycle guards the dispatcher's process-wide Start/Stop
// sequence with a monotonic state machine, so both are idempotent and safe
// to call concurrently.
package lifecycle

import (
	"errors"
	syncatomic "sync/atomic"

	"go.uber.org/atomic"
)

// State represents the states a lifecycle object can be in.
type State int

const (
	// Idle indicates the Lifecycle hasn't been operated on yet.
	Idle State = iota
	// Starting indicates that Start has begun but hasn't finished yet.
	Starting
	// Running indicates that Start has finished and the lifecycle is
	// available.
	Running
	// Stopping indicates that Stop has been called but hasn't finished yet.
	Stopping
	// Stopped indicates that the lifecycle has been stopped.
	Stopped
	// Errored indicates that the lifecycle experienced an error during
	// Start or Stop and its state can no longer be reasoned about.
	Errored
)

var stateToName = map[State]string{
	Idle:     "idle",
	Starting: "starting",
	Running:  "running",
	Stopping: "stopping",
	Stopped:  "stopped",
	Errored:  "errored",
}

func (s State) String() string {
	if name, ok := stateToName[s]; ok {
		return name
	}
	return "unknown"
}

// Once advances monotonically through the states above using at-most-once
// Start and Stop implementations in a thread-safe manner. This is the
// process-wide state S with explicit init/teardown that the dispatcher's
// lifecycle is built around: there is no ambient singleton, just a value a
// caller owns and calls Start/Stop on.
type Once struct {
	startCh    chan struct{}
	stoppingCh chan struct{}
	stopCh     chan struct{}

	err   syncatomic.Value
	state atomic.Int32
}

// NewOnce returns a lifecycle controller starting in the Idle state.
func NewOnce() *Once {
	return &Once{
		startCh:    make(chan struct{}),
		stoppingCh: make(chan struct{}),
		stopCh:     make(chan struct{}),
	}
}

// Start runs f at most once and returns its error. Concurrent or later
// calls block until the first call's f returns, then return the same
// error.
func (o *Once) Start(f func() error) error {
	if o.state.CAS(int32(Idle), int32(Starting)) {
		var err error
		if f != nil {
			err = f()
		}

		if err != nil {
			o.setError(err)
			o.state.Store(int32(Errored))
			close(o.stoppingCh)
			close(o.stopCh)
		} else {
			o.state.Store(int32(Running))
		}
		close(o.startCh)
		return err
	}

	<-o.startCh
	return o.loadError()
}

// Stop runs f at most once and returns its error. Concurrent or later
// calls block until the first call's f returns, then return the same
// error. Calling Stop before Start preempts Start: the lifecycle moves
// directly to Stopped and a subsequent Start call is a no-op that returns
// nil.
func (o *Once) Stop(f func() error) error {
	if o.state.CAS(int32(Idle), int32(Stopped)) {
		close(o.startCh)
		close(o.stoppingCh)
		close(o.stopCh)
		return nil
	}

	<-o.startCh

	if o.state.CAS(int32(Running), int32(Stopping)) {
		close(o.stoppingCh)

		var err error
		if f != nil {
			err = f()
		}

		if err != nil {
			o.setError(err)
			o.state.Store(int32(Errored))
		} else {
			o.state.Store(int32(Stopped))
		}
		close(o.stopCh)
		return err
	}

	<-o.stopCh
	return o.loadError()
}

// Started returns a channel that closes once Start's state transition
// completes (successfully or not).
func (o *Once) Started() <-chan struct{} { return o.startCh }

// Stopping returns a channel that closes once Stop begins running its
// function.
func (o *Once) Stopping() <-chan struct{} { return o.stoppingCh }

// Stopped returns a channel that closes once Stop's state transition
// completes (successfully or not).
func (o *Once) Stopped() <-chan struct{} { return o.stopCh }

func (o *Once) setError(err error) { o.err.Store(err) }

func (o *Once) loadError() error {
	v := o.err.Load()
	if v == nil {
		return nil
	}
	if err, ok := v.(error); ok {
		return err
	}
	return errors.New("lifecycle error was not an error value")
}

// State returns the lifecycle's current state. The lifecycle may have
// progressed further by the time the caller observes the result.
func (o *Once) State() State { return State(o.state.Load()) }

// IsRunning reports whether the lifecycle is currently in the Running
// state.
func (o *Once) IsRunning() bool { return o.State() == Running }
