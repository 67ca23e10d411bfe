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

package backoff

import (
	"math"
	"math/rand"
	"time"
)

const (
	// NoInterval means a retry policy dimension is unbounded.
	NoInterval = time.Duration(0)

	defaultBackoffCoefficient = 2.0
	defaultMaximumInterval    = 10 * time.Second
	defaultMaximumAttempts    = 0
)

type (
	// RetryPolicy computes the backoff interval for a given attempt.
	// ComputeNextDelay returns a negative duration when retries are
	// exhausted.
	RetryPolicy interface {
		ComputeNextDelay(attempt int) time.Duration
	}

	// ExponentialRetryPolicy grows the interval geometrically with
	// bounded jitter.
	ExponentialRetryPolicy struct {
		initialInterval    time.Duration
		backoffCoefficient float64
		maximumInterval    time.Duration
		maximumAttempts    int
	}
)

// NewExponentialRetryPolicy returns a policy with default coefficient and
// maximum interval.
func NewExponentialRetryPolicy(initialInterval time.Duration) *ExponentialRetryPolicy {
	return &ExponentialRetryPolicy{
		initialInterval:    initialInterval,
		backoffCoefficient: defaultBackoffCoefficient,
		maximumInterval:    defaultMaximumInterval,
		maximumAttempts:    defaultMaximumAttempts,
	}
}

func (p *ExponentialRetryPolicy) WithBackoffCoefficient(coefficient float64) *ExponentialRetryPolicy {
	p.backoffCoefficient = coefficient
	return p
}

func (p *ExponentialRetryPolicy) WithMaximumInterval(maximumInterval time.Duration) *ExponentialRetryPolicy {
	p.maximumInterval = maximumInterval
	return p
}

// WithMaximumAttempts bounds the number of retries. Zero means unbounded.
func (p *ExponentialRetryPolicy) WithMaximumAttempts(maximumAttempts int) *ExponentialRetryPolicy {
	p.maximumAttempts = maximumAttempts
	return p
}

// ComputeNextDelay returns the backoff before attempt+1, with up to 20%
// jitter, or a negative duration when attempts are exhausted.
func (p *ExponentialRetryPolicy) ComputeNextDelay(attempt int) time.Duration {
	if p.maximumAttempts != 0 && attempt >= p.maximumAttempts {
		return -1
	}

	interval := float64(p.initialInterval) * math.Pow(p.backoffCoefficient, float64(attempt))
	if p.maximumInterval != NoInterval {
		interval = math.Min(interval, float64(p.maximumInterval))
	}
	if interval <= 0 {
		return -1
	}

	jitter := interval * 0.2 * rand.Float64()
	return time.Duration(interval*0.8 + jitter)
}
