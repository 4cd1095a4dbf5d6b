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

// Package obs holds the dispatcher's observability helpers: panic-safe
// invocation of downstream handlers, and zap.Logger.Check-guarded logging
// so that building log fields for a message that would be dropped costs
// nothing on the hot path.
package obs

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/sipmesh/dispatcher/api/transport"
)

// InvokeDownstream calls fn (OnRxRequest or OnRxResponse) for msg, recovering
// any panic and converting it into a returned error instead of letting it
// unwind past the worker goroutine. A panicking handler therefore still
// produces exactly one completion report and one released message, same as
// any other handler error.
func InvokeDownstream(ctx context.Context, logger *zap.Logger, msg transport.Message, fn func(context.Context, transport.Message) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = logPanic(logger, r, msg)
		}
	}()
	return fn(ctx, msg)
}

func logPanic(logger *zap.Logger, recovered interface{}, msg transport.Message) error {
	err := fmt.Errorf("panic: %v", recovered)
	if logger != nil {
		logger.Error("downstream handler panicked",
			zap.String("method", msg.Method()),
			zap.String("callID", msg.CallID()),
			zap.Error(err),
			zap.Stack("stack"),
		)
		return err
	}
	log.Printf("downstream handler panicked: %v\n%s", recovered, debug.Stack())
	return err
}

// LogSlowTransaction emits a trace event for a dispatch whose total elapsed
// time exceeded its slow-transaction threshold. It is a no-op if logger is
// nil or the warn level is disabled, so the caller never pays for building
// the fields on the fast path.
func LogSlowTransaction(logger *zap.Logger, msg transport.Message, elapsed, targetLatency time.Duration, multiplier int) {
	if logger == nil {
		return
	}
	ce := logger.Check(zap.WarnLevel, "slow transaction")
	if ce == nil {
		return
	}
	ce.Write(
		zap.String("method", msg.Method()),
		zap.String("callID", msg.CallID()),
		zap.Duration("elapsed", elapsed),
		zap.Duration("targetLatency", targetLatency),
		zap.Int("multiplier", multiplier),
	)
}

// LogLateDrop emits a debug event for a message that missed its queue
// deadline and was dropped without dispatch.
func LogLateDrop(logger *zap.Logger, msg transport.Message, queueLatency time.Duration) {
	if logger == nil {
		return
	}
	ce := logger.Check(zap.DebugLevel, "late-dropped queued message")
	if ce == nil {
		return
	}
	ce.Write(
		zap.String("method", msg.Method()),
		zap.String("callID", msg.CallID()),
		zap.Duration("queueLatency", queueLatency),
	)
}
