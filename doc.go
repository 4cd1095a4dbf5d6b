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

// Package sipdispatch is the thread dispatcher at the heart of a SIP
// signaling node: it receives messages from a transport collaborator,
// admits or rejects them under load, prioritizes them, hands them to a
// pool of worker goroutines for application processing, and measures their
// service latency.
//
// It is the hot path between "bytes parsed into a SIP message" and
// "application logic invoked", and it owns the node's overload behavior
// and fairness under stress. It does not parse SIP itself, does not
// implement an admission algorithm, and does not know about any specific
// application service; all three are external collaborators consumed
// through the api/transport and api/loadmonitor interfaces.
//
// A Dispatcher is constructed with New and owns its own lifecycle: Start
// spawns its worker pool, and Stop terminates the queue, lets the workers
// drain whatever was still queued, and waits for them to exit. The
// transport collaborator feeds messages in by calling Dispatcher.OnInbound
// directly; Start does not register any hook with it. There is no
// package-level singleton; callers own the value New returns.
package sipdispatch
