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

package runtime

import (
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/gabrieltanase42/legion/common/backoff"
	"github.com/gabrieltanase42/legion/common/clock"
	"github.com/gabrieltanase42/legion/common/config"
	"github.com/gabrieltanase42/legion/common/dynamicconfig"
	"github.com/gabrieltanase42/legion/common/executor"
	"github.com/gabrieltanase42/legion/common/log"
	"github.com/gabrieltanase42/legion/common/log/tag"
	"github.com/gabrieltanase42/legion/common/metrics"
	"github.com/gabrieltanase42/legion/runtime/depgraph"
	"github.com/gabrieltanase42/legion/runtime/distribution"
	"github.com/gabrieltanase42/legion/runtime/policy"
	"github.com/gabrieltanase42/legion/runtime/task"
	"github.com/gabrieltanase42/legion/runtime/transport"
	"github.com/gabrieltanase42/legion/runtime/wire"
)

const (
	statusInitialized int32 = iota
	statusStarted
	statusStopped
)

// Runtime is one address space of the task runtime: the lifecycle engine
// with its scheduler, the distribution driver when a transport is
// attached, and the config plane. Every address space in a process gets
// its own Runtime; they share nothing but the bus.
type Runtime struct {
	status int32

	cfg            *config.Config
	node           wire.NodeID
	logger         log.Logger
	metricsHandler metrics.Handler

	scheduler executor.Scheduler
	dcFile    *dynamicconfig.FileClient
	driver    *distribution.Driver
	engine    *task.Engine

	// ready gates inbound message dispatch on construction finishing.
	ready chan struct{}
}

// NewRuntime wires one address space. bus may be nil for a single-node
// runtime; work then never migrates. pol may be nil to run with the
// default keep-local policy.
func NewRuntime(
	cfg *config.Config,
	bus *transport.Bus,
	pol policy.Policy,
	logger log.Logger,
	metricsHandler metrics.Handler,
) (*Runtime, error) {
	if pol == nil {
		pol = policy.NewDefaultPolicy()
	}

	rt := &Runtime{
		status:         statusInitialized,
		cfg:            cfg,
		node:           wire.NodeID(cfg.AddressSpace),
		logger:         log.With(logger, tag.AddressSpace(cfg.AddressSpace)),
		metricsHandler: metricsHandler,
		ready:          make(chan struct{}),
	}

	dcClient := dynamicconfig.Client(dynamicconfig.NewStaticClient())
	if cfg.DynamicConfigPath != "" {
		fc, err := dynamicconfig.NewFileClient(cfg.DynamicConfigPath, rt.logger)
		if err != nil {
			return nil, fmt.Errorf("runtime: dynamic config: %w", err)
		}
		rt.dcFile = fc
		dcClient = fc
	}

	rt.scheduler = executor.NewScheduler(
		cfg.Executor.WorkerCount,
		cfg.Executor.LaneCount,
		rt.logger,
		metricsHandler,
	)

	if bus != nil {
		tr := bus.Attach(rt.node, transport.HandlerFunc(func(env wire.Envelope) {
			<-rt.ready
			rt.engine.HandleMessage(env)
		}))
		var limiter *rate.Limiter
		if cfg.Steal.Enabled {
			limiter = rate.NewLimiter(rate.Limit(cfg.Steal.RatePerSecond), cfg.Steal.Burst)
		}
		rescheduler := executor.NewRescheduler(
			rt.scheduler,
			clock.NewRealTimeSource(),
			backoff.NewExponentialRetryPolicy(10*time.Millisecond).
				WithMaximumInterval(time.Second).
				WithMaximumAttempts(5),
			rt.logger,
		)
		rt.driver = distribution.NewDriver(tr, limiter, nil, rescheduler, rt.logger, metricsHandler)
	}

	rt.engine = task.NewEngine(
		rt.node,
		pol,
		depgraph.NewInMemEngine(),
		rt.driver,
		rt.scheduler,
		dynamicconfig.NewCollection(dcClient),
		rt.logger,
		metricsHandler,
	)
	close(rt.ready)
	return rt, nil
}

// Start brings up the worker pool. Idempotent.
func (rt *Runtime) Start() {
	if !atomic.CompareAndSwapInt32(&rt.status, statusInitialized, statusStarted) {
		return
	}
	rt.scheduler.Start()
	rt.logger.Info("runtime started")
}

// Stop drains the worker pool and releases the config watcher. The shared
// bus stays up; its owner closes it.
func (rt *Runtime) Stop() {
	if !atomic.CompareAndSwapInt32(&rt.status, statusStarted, statusStopped) {
		return
	}
	rt.scheduler.Stop()
	if rt.dcFile != nil {
		rt.dcFile.Close()
	}
	rt.logger.Info("runtime stopped")
}

// Node returns this runtime's address space.
func (rt *Runtime) Node() wire.NodeID {
	return rt.node
}

// Engine exposes the lifecycle engine, mainly for tests and tooling.
func (rt *Runtime) Engine() *task.Engine {
	return rt.engine
}

// StealPoolSize reports how much stealable work is parked locally. Zero
// on a single-node runtime.
func (rt *Runtime) StealPoolSize() int {
	if rt.driver == nil {
		return 0
	}
	return rt.driver.PoolSize()
}

// RequestSteal asks target for work. A no-op when stealing is disabled or
// the runtime has no transport.
func (rt *Runtime) RequestSteal(target wire.NodeID) error {
	if rt.driver == nil || !rt.cfg.Steal.Enabled {
		return nil
	}
	return rt.driver.RequestSteal(target)
}
