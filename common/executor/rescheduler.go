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

	"github.com/gabrieltanase42/legion/common/backoff"
	"github.com/gabrieltanase42/legion/common/clock"
	"github.com/gabrieltanase42/legion/common/log"
	"github.com/gabrieltanase42/legion/common/log/tag"
)

type (
	// Rescheduler resubmits deferred work to the scheduler after a backoff
	// interval. It exists for transient conditions that have no event to
	// continue on; event-driven deferral never goes through here.
	Rescheduler interface {
		// Add resubmits r after the policy interval for the given attempt.
		// Returns false if the retry policy is exhausted.
		Add(r Runnable, attempt int) bool

		Len() int
	}

	reschedulerImpl struct {
		scheduler   Scheduler
		timeSource  clock.TimeSource
		retryPolicy backoff.RetryPolicy
		logger      log.Logger

		mu      sync.Mutex
		pending int
	}
)

func NewRescheduler(
	scheduler Scheduler,
	timeSource clock.TimeSource,
	retryPolicy backoff.RetryPolicy,
	logger log.Logger,
) Rescheduler {
	return &reschedulerImpl{
		scheduler:   scheduler,
		timeSource:  timeSource,
		retryPolicy: retryPolicy,
		logger:      logger,
	}
}

func (r *reschedulerImpl) Add(runnable Runnable, attempt int) bool {
	delay := r.retryPolicy.ComputeNextDelay(attempt)
	if delay < 0 {
		r.logger.Warn("dropping rescheduled work, retry policy exhausted",
			tag.NewIntTag("attempt", attempt))
		return false
	}

	r.mu.Lock()
	r.pending++
	r.mu.Unlock()

	r.timeSource.AfterFunc(delay, func() {
		r.mu.Lock()
		r.pending--
		r.mu.Unlock()
		r.scheduler.Submit(runnable)
	})
	return true
}

func (r *reschedulerImpl) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}
