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

	farm "github.com/dgryski/go-farm"

	"github.com/gabrieltanase42/legion/common/log"
	"github.com/gabrieltanase42/legion/common/metrics"
)

const (
	statusInitialized int32 = iota
	statusStarted
	statusStopped
)

type (
	// Runnable is a unit of deferred work.
	Runnable interface {
		Run()
	}

	// RunnableFunc adapts a closure into a Runnable.
	RunnableFunc func()

	// Scheduler runs deferred continuations on a fixed worker pool.
	// Submit never blocks; queues are unbounded so lifecycle stages can
	// safely resubmit work from inside a worker.
	Scheduler interface {
		Start()
		Stop()

		// Submit runs r on any worker.
		Submit(r Runnable)

		// SubmitSequential runs r on the lane selected by key. Work
		// submitted with the same key executes in submission order and
		// never concurrently with itself.
		SubmitSequential(key []byte, r Runnable)
	}

	lane struct {
		sync.Mutex
		queue  []Runnable
		signal chan struct{}
	}

	schedulerImpl struct {
		status     int32
		shutdownCh chan struct{}
		shutdownWG sync.WaitGroup

		workerCount int
		shared      *lane
		lanes       []*lane

		logger         log.Logger
		metricsHandler metrics.Handler
	}
)

func (f RunnableFunc) Run() { f() }

// NewScheduler returns a Scheduler with workerCount workers draining the
// shared queue and laneCount sequential lanes, one goroutine each.
func NewScheduler(
	workerCount int,
	laneCount int,
	logger log.Logger,
	metricsHandler metrics.Handler,
) Scheduler {
	if workerCount <= 0 || laneCount <= 0 {
		panic("executor: worker and lane counts must be positive")
	}

	lanes := make([]*lane, laneCount)
	for i := range lanes {
		lanes[i] = newLane()
	}
	return &schedulerImpl{
		status:         statusInitialized,
		shutdownCh:     make(chan struct{}),
		workerCount:    workerCount,
		shared:         newLane(),
		lanes:          lanes,
		logger:         logger,
		metricsHandler: metricsHandler,
	}
}

func newLane() *lane {
	return &lane{signal: make(chan struct{}, 1)}
}

func (s *schedulerImpl) Start() {
	if !atomic.CompareAndSwapInt32(&s.status, statusInitialized, statusStarted) {
		return
	}

	for i := 0; i < s.workerCount; i++ {
		s.shutdownWG.Add(1)
		go s.drain(s.shared)
	}
	for _, l := range s.lanes {
		s.shutdownWG.Add(1)
		go s.drain(l)
	}
}

func (s *schedulerImpl) Stop() {
	if !atomic.CompareAndSwapInt32(&s.status, statusStarted, statusStopped) {
		return
	}
	close(s.shutdownCh)
	s.shutdownWG.Wait()
}

func (s *schedulerImpl) Submit(r Runnable) {
	s.shared.push(r)
	s.metricsHandler.Gauge(metrics.ExecutorQueueDepthGauge).Record(float64(s.shared.len()))
}

func (s *schedulerImpl) SubmitSequential(key []byte, r Runnable) {
	idx := farm.Fingerprint32(key) % uint32(len(s.lanes))
	s.lanes[idx].push(r)
}

func (s *schedulerImpl) drain(l *lane) {
	defer s.shutdownWG.Done()

	for {
		r := l.pop()
		if r != nil {
			r.Run()
			continue
		}

		select {
		case <-l.signal:
		case <-s.shutdownCh:
			return
		}
	}
}

func (l *lane) push(r Runnable) {
	l.Lock()
	l.queue = append(l.queue, r)
	l.Unlock()

	select {
	case l.signal <- struct{}{}:
	default:
	}
}

func (l *lane) pop() Runnable {
	l.Lock()
	defer l.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	r := l.queue[0]
	l.queue = l.queue[1:]
	return r
}

func (l *lane) len() int {
	l.Lock()
	defer l.Unlock()
	return len(l.queue)
}
