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
	"fmt"
	"io/ioutil"
	"time"

	"github.com/uber-go/tally"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/sipmesh/dispatcher/internal/clock"
)

// Config specifies the parameters of a new Dispatcher constructed via New.
type Config struct {
	// NumWorkers is the steady-state worker pool size. Must be at least 1.
	NumWorkers int
	// RequestOnQueueTimeout is the deadline a message event is given once
	// enqueued; a worker that pops it after this much time has elapsed
	// late-drops it instead of dispatching it. Must be at least
	// time.Millisecond.
	RequestOnQueueTimeout time.Duration
	// SlowTransactionMultiplier is the factor applied to the load
	// monitor's sampled target latency beyond which a dispatch is logged
	// as a slow transaction. Defaults to 50 if zero.
	SlowTransactionMultiplier int
	// QueueHighWaterMark, when greater than zero, is the queue depth at
	// or above which admission-controlled requests are rejected with a
	// 503 ahead of admission control, without counting against the load
	// monitor's own admission accounting. OPTIONS, SUBSCRIBE, and
	// responses are exempt, matching their blanket exemption from
	// rejection elsewhere. Zero disables the check.
	QueueHighWaterMark int
	// Scope receives dispatcher metrics (the queue depth gauge). May be
	// nil, in which case no metrics are reported.
	Scope tally.Scope
	// Logger receives dispatcher log events. May be nil, in which case
	// only recovered downstream panics are logged, through the standard
	// log package; all other log events are dropped.
	Logger *zap.Logger
	// Clock is the time source used for enqueue stamping, deadlines, and
	// latency measurement. Defaults to clock.NewReal() if nil.
	Clock clock.Clock
}

// fileConfig is the YAML-decodable subset of Config: the queue timeout is
// read as an integer number of milliseconds, and resource handles (Scope,
// Logger, Clock) are supplied by the caller in code, not read from a file.
type fileConfig struct {
	NumWorkers                int `yaml:"num_workers"`
	RequestOnQueueTimeoutMS   int `yaml:"request_on_queue_timeout_ms"`
	SlowTransactionMultiplier int `yaml:"slow_transaction_multiplier"`
	QueueHighWaterMark        int `yaml:"queue_high_water_mark"`
}

// LoadConfig reads a YAML file at path and merges its values into base,
// returning the result. Only NumWorkers, RequestOnQueueTimeout,
// SlowTransactionMultiplier, and QueueHighWaterMark are read from the file,
// and a zero or absent value leaves base's value in place; base's Scope,
// Logger, and Clock are preserved unchanged.
func LoadConfig(path string, base Config) (Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("sipdispatch: reading config %q: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("sipdispatch: parsing config %q: %w", path, err)
	}

	cfg := base
	if fc.NumWorkers != 0 {
		cfg.NumWorkers = fc.NumWorkers
	}
	if fc.RequestOnQueueTimeoutMS != 0 {
		cfg.RequestOnQueueTimeout = time.Duration(fc.RequestOnQueueTimeoutMS) * time.Millisecond
	}
	if fc.SlowTransactionMultiplier != 0 {
		cfg.SlowTransactionMultiplier = fc.SlowTransactionMultiplier
	}
	if fc.QueueHighWaterMark != 0 {
		cfg.QueueHighWaterMark = fc.QueueHighWaterMark
	}
	return cfg, nil
}
