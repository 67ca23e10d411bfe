// The MIT License
//
// Copyright (c) 2020 Temporal Technologies Inc.  All rights reserved.
//
// Copyright (c) 2020 Uber Technologies, Inc.
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

package executor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/gabrieltanase42/legion/common/backoff"
	"github.com/gabrieltanase42/legion/common/clock"
	"github.com/gabrieltanase42/legion/common/log"
	"github.com/gabrieltanase42/legion/common/metrics"
)

type executorSuite struct {
	suite.Suite
	*require.Assertions

	scheduler Scheduler
}

func TestExecutorSuite(t *testing.T) {
	s := new(executorSuite)
	suite.Run(t, s)
}

func (s *executorSuite) SetupTest() {
	s.Assertions = require.New(s.T())
	s.scheduler = NewScheduler(4, 4, log.NewTestLogger(s.T()), metrics.NoopMetricsHandler)
	s.scheduler.Start()
}

func (s *executorSuite) TearDownTest() {
	s.scheduler.Stop()
}

func (s *executorSuite) TestSubmitRunsAll() {
	const n = 100
	var executed int64
	var wg sync.WaitGroup
	wg.Add(n)

	for i := 0; i < n; i++ {
		s.scheduler.Submit(RunnableFunc(func() {
			atomic.AddInt64(&executed, 1)
			wg.Done()
		}))
	}

	wg.Wait()
	s.Equal(int64(n), atomic.LoadInt64(&executed))
}

func (s *executorSuite) TestSequentialOrderingPerKey() {
	const n = 200
	key := []byte("operation-1")
	results := make([]int, 0, n)
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(n)

	for i := 0; i < n; i++ {
		i := i
		s.scheduler.SubmitSequential(key, RunnableFunc(func() {
			mu.Lock()
			results = append(results, i)
			mu.Unlock()
			wg.Done()
		}))
	}

	wg.Wait()
	for i := 0; i < n; i++ {
		s.Equal(i, results[i])
	}
}

func (s *executorSuite) TestSubmitFromWorkerDoesNotDeadlock() {
	done := make(chan struct{})
	s.scheduler.Submit(RunnableFunc(func() {
		s.scheduler.Submit(RunnableFunc(func() {
			close(done)
		}))
	}))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.FailNow("nested submit deadlocked")
	}
}

func (s *executorSuite) TestReschedulerResubmitsAfterBackoff() {
	timeSource := clock.NewEventTimeSource()
	policy := backoff.NewExponentialRetryPolicy(time.Second).WithMaximumAttempts(3)
	rescheduler := NewRescheduler(s.scheduler, timeSource, policy, log.NewTestLogger(s.T()))

	done := make(chan struct{})
	ok := rescheduler.Add(RunnableFunc(func() { close(done) }), 0)
	s.True(ok)
	s.Equal(1, rescheduler.Len())

	timeSource.Advance(2 * time.Second)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.FailNow("rescheduled work never ran")
	}
	s.Equal(0, rescheduler.Len())

	// attempts beyond the policy bound are rejected
	s.False(rescheduler.Add(RunnableFunc(func() {}), 3))
}
