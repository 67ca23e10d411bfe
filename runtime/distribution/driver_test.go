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

package distribution

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/time/rate"

	"github.com/gabrieltanase42/legion/common/backoff"
	"github.com/gabrieltanase42/legion/common/clock"
	"github.com/gabrieltanase42/legion/common/executor"
	"github.com/gabrieltanase42/legion/common/log"
	"github.com/gabrieltanase42/legion/common/metrics"
	"github.com/gabrieltanase42/legion/runtime/wire"
)

// captureTransport records outbound envelopes instead of delivering them.
type captureTransport struct {
	node wire.NodeID

	mu   sync.Mutex
	sent []wire.Envelope
}

func (t *captureTransport) LocalNode() wire.NodeID { return t.node }

func (t *captureTransport) Send(_ wire.NodeID, env wire.Envelope) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, env)
	return nil
}

func (t *captureTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

// inlineScheduler runs submitted work on the caller, so rescheduled
// requests fire deterministically inside the test.
type inlineScheduler struct{}

func (inlineScheduler) Start() {}
func (inlineScheduler) Stop()  {}

func (inlineScheduler) Submit(r executor.Runnable) { r.Run() }

func (inlineScheduler) SubmitSequential(_ []byte, r executor.Runnable) { r.Run() }

type driverSuite struct {
	suite.Suite
	*require.Assertions

	transport  *captureTransport
	timeSource *clock.EventTimeSource
}

func TestDriverSuite(t *testing.T) {
	s := new(driverSuite)
	suite.Run(t, s)
}

func (s *driverSuite) SetupTest() {
	s.Assertions = require.New(s.T())
	s.transport = &captureTransport{node: 1}
	s.timeSource = clock.NewEventTimeSource()
}

func (s *driverSuite) newDriver(limiter *rate.Limiter) *Driver {
	rescheduler := executor.NewRescheduler(
		inlineScheduler{},
		s.timeSource,
		backoff.NewExponentialRetryPolicy(10*time.Millisecond).
			WithMaximumAttempts(3),
		log.NewTestLogger(s.T()),
	)
	return NewDriver(s.transport, limiter, nil, rescheduler, log.NewTestLogger(s.T()), metrics.NoopMetricsHandler)
}

func (s *driverSuite) TestRateLimitedRequestRetriesAfterBackoff() {
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	d := s.newDriver(limiter)

	s.NoError(d.RequestSteal(2))
	s.Equal(1, s.transport.count())

	// the burst is spent; this one goes through the rescheduler
	s.NoError(d.RequestSteal(2))
	s.Equal(1, s.transport.count())

	limiter.SetLimit(rate.Inf)
	s.timeSource.Advance(time.Second)
	s.Equal(2, s.transport.count(), "the deferred request must be resent once the limiter admits it")
	s.Equal(wire.MessageStealRequest, s.transport.sent[1].Type)
}

func (s *driverSuite) TestExhaustedRetriesDropTheRequest() {
	d := s.newDriver(rate.NewLimiter(0, 0))

	s.NoError(d.RequestSteal(2))
	for i := 0; i < 10; i++ {
		s.timeSource.Advance(time.Second)
	}
	s.Zero(s.transport.count(), "a request the limiter never admits is dropped, not sent")
}

func (s *driverSuite) TestUnlimitedDriverSendsImmediately() {
	d := NewDriver(s.transport, nil, nil, nil, log.NewTestLogger(s.T()), metrics.NoopMetricsHandler)
	s.NoError(d.RequestSteal(3))
	s.Equal(1, s.transport.count())
}
