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

// Package errgroup collects errors from a fixed pool of worker goroutines
// so that Dispatcher.Stop can report every worker's terminal error instead
// of only the first.
package errgroup

import (
	"sync"

	"go.uber.org/multierr"
)

// Group runs a set of worker goroutines and aggregates their errors.
//
// Unlike internal/errorsync.ErrorWaiter, which collects errors in an
// unspecified slice, Group combines them with multierr so the dispatcher
// can log and return a single error from Stop.
type Group struct {
	wait sync.WaitGroup
	mu   sync.Mutex
	err  error
}

// Go spawns f in its own goroutine. Wait blocks until every goroutine
// spawned this way has returned.
func (g *Group) Go(f func() error) {
	g.wait.Add(1)
	go func() {
		defer g.wait.Done()
		if err := f(); err != nil {
			g.mu.Lock()
			g.err = multierr.Append(g.err, err)
			g.mu.Unlock()
		}
	}()
}

// Wait blocks until all goroutines spawned with Go have returned, then
// returns their combined error, or nil if none failed.
func (g *Group) Wait() error {
	g.wait.Wait()
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}
