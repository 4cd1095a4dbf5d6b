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

// Package transport defines the capability set the dispatcher core consumes
// from its transport collaborator: a received SIP message, an outbound
// response built from it, and the hooks used to synthesize, transmit,
// release, and dispatch them. The dispatcher never parses or emits SIP wire
// bytes itself; it only calls through this interface.
package transport

import "context"

// Message is an inbound, fully-parsed SIP message handle owned by the
// transport collaborator until the dispatcher calls Release on it. The core
// only reads the fields below; a concrete implementation may carry
// arbitrarily more (headers, bodies, routing state) that the dispatcher
// never touches.
type Message interface {
	// Method returns the SIP method name (e.g. "INVITE", "OPTIONS"). For
	// responses, implementations should return the method of the request
	// the response answers.
	Method() string
	// IsResponse reports whether this message is a SIP response rather
	// than a request.
	IsResponse() bool
	// CallID returns the message's Call-ID, used only for tracing.
	CallID() string
}

// Response is an outbound SIP message handle ready for transmission,
// produced by Collaborator.Synthesize503.
type Response interface{}

// Collaborator is the capability set the dispatcher needs from the
// surrounding transport and application layer. It is deliberately narrow:
// "something that can handle a message" and "something that can
// synthesize/transmit a response", modeled as plain interfaces rather than
// an abstract-base-class-with-helper pair, since Go's interfaces already
// express the capability set directly.
type Collaborator interface {
	// Synthesize503 builds a 503 Service Unavailable response from a
	// request that was rejected by admission control or late-dropped from
	// the queue.
	Synthesize503(msg Message) Response
	// Transmit sends a response built by Synthesize503 (or otherwise) back
	// to the peer.
	Transmit(resp Response)
	// Release returns ownership of msg to the transport collaborator. It
	// is called exactly once per message: by the worker after dispatch or
	// late-drop handling completes, or by the classifier after the 503 for
	// a rejected message has been transmitted.
	Release(msg Message)
	// OnRxRequest invokes application processing for a received request.
	// It may block for the duration of application logic and may return
	// an error or panic; both are treated as message-scoped failures by
	// the dispatcher (see the worker pool's dispatch loop).
	OnRxRequest(ctx context.Context, msg Message) error
	// OnRxResponse invokes application processing for a received SIP
	// response.
	OnRxResponse(ctx context.Context, msg Message) error
}
