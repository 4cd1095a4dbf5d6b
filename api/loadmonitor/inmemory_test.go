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

package loadmonitor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryAdmitsUpToLimit(t *testing.T) {
	m := NewInMemory(2, time.Millisecond)

	assert.True(t, m.AdmitRequest(1))
	assert.True(t, m.AdmitRequest(2))
	assert.False(t, m.AdmitRequest(3), "a third concurrent request must be rejected at the limit")
}

func TestInMemoryReleasesOnComplete(t *testing.T) {
	m := NewInMemory(1, time.Millisecond)

	require.True(t, m.AdmitRequest(1))
	require.False(t, m.AdmitRequest(2))

	m.RequestComplete(nil, time.Millisecond)

	assert.True(t, m.AdmitRequest(3), "completing a request must free its slot")
}

func TestInMemoryTargetLatencyConverges(t *testing.T) {
	m := NewInMemory(10, 0)

	for i := 0; i < 50; i++ {
		m.RequestComplete(nil, 10*time.Millisecond)
	}

	got := m.TargetLatency()
	assert.InDelta(t, 10*time.Millisecond, got, float64(time.Millisecond), "moving average should converge near the steady reported latency")
}

func TestInMemoryConcurrentAdmitRespectsLimit(t *testing.T) {
	m := NewInMemory(5, time.Millisecond)

	var wg sync.WaitGroup
	var admitted int32
	var mu sync.Mutex

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(trail uint32) {
			defer wg.Done()
			if m.AdmitRequest(trail) {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}(uint32(i))
	}
	wg.Wait()

	assert.EqualValues(t, 5, admitted, "no more than the configured limit may be admitted concurrently")
}
