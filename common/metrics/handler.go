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

package metrics

import (
	"time"
)

type (
	// Tag is a metric dimension.
	Tag struct {
		Key   string
		Value string
	}

	// Handler records metrics for the runtime. Implementations must be
	// safe for concurrent use.
	Handler interface {
		WithTags(tags ...Tag) Handler
		Counter(name string) CounterIface
		Timer(name string) TimerIface
		Gauge(name string) GaugeIface
	}

	CounterIface interface {
		Record(n int64, tags ...Tag)
	}

	TimerIface interface {
		Record(d time.Duration, tags ...Tag)
	}

	GaugeIface interface {
		Record(v float64, tags ...Tag)
	}
)

// StringTag returns a string dimension.
func StringTag(key string, value string) Tag {
	return Tag{Key: key, Value: value}
}

// Metric names emitted by the runtime.
const (
	TaskActivatedCounter        = "task_activated"
	TaskCompletedCounter        = "task_completed"
	TaskCommittedCounter        = "task_committed"
	TaskSpeculatedCounter       = "task_speculation_resolved"
	SliceCreatedCounter         = "slice_created"
	SliceEnumeratedCounter      = "slice_enumerated"
	PointExecutedCounter        = "point_executed"
	TaskMigratedCounter         = "task_migrated"
	StealRequestCounter         = "steal_request"
	StealRequestDeferredCounter = "steal_request_deferred"
	StealGrantedCounter         = "steal_granted"
	PolicyViolationCounter      = "policy_violation"
	LedgerMergeCounter          = "ledger_merge"
	ReductionFoldCounter        = "reduction_fold"
	WireMessageCounter          = "wire_message"
	TaskExecutionLatencyTimer   = "task_execution_latency"
	LaunchCompleteTimer         = "launch_complete_latency"
	ExecutorQueueDepthGauge     = "executor_queue_depth"
)
