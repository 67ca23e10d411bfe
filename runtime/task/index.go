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

package task

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gabrieltanase42/legion/common/log/tag"
	"github.com/gabrieltanase42/legion/common/metrics"
	"github.com/gabrieltanase42/legion/runtime/domain"
	"github.com/gabrieltanase42/legion/runtime/event"
	"github.com/gabrieltanase42/legion/runtime/fraction"
	"github.com/gabrieltanase42/legion/runtime/future"
	"github.com/gabrieltanase42/legion/runtime/ledger"
	"github.com/gabrieltanase42/legion/runtime/policy"
	"github.com/gabrieltanase42/legion/runtime/region"
)

// IndexTask is a task operation launched over every point of an index
// domain. It never executes anything itself: its domain decomposes into
// slices, the slices into point tasks, and mapped/complete/commit
// progress flows back up as (denominator, point count) reports. Each
// stage fires exactly when the reciprocal-denominator sum reaches one and
// the point count matches the launch total.
type IndexTask struct {
	TaskOp

	dom           domain.Rect
	argMap        map[domain.Point][]byte
	redop         region.ReductionOpID
	deterministic bool
	parent        Parent

	totalPoints  int64
	futureMap    *future.Map
	reducer      *future.Reducer
	result       *future.Future
	precondition *event.Event

	aggMu           sync.Mutex
	sliced          bool
	mappedFrac      *fraction.Tracker
	completeFrac    *fraction.Tracker
	committedFrac   *fraction.Tracker
	mappedPoints    int64
	completePoints  int64
	committedPoints int64
	mappedDone      bool
	completeDone    bool

	launchStart time.Time
}

func newIndexTask(e *Engine, ctxIndex int64, dom domain.Rect, l Launch) *IndexTask {
	it := &IndexTask{
		dom:           dom,
		argMap:        l.ArgMap,
		redop:         l.Redop,
		deterministic: l.Deterministic,
		parent:        l.Parent,
		totalPoints:   dom.Volume(),
		mappedFrac:    fraction.NewTracker(),
		completeFrac:  fraction.NewTracker(),
		committedFrac: fraction.NewTracker(),
	}
	it.Reset(uuid.New(), ctxIndex, l.Variant, l.Args)
	it.engine = e
	it.logger = e.logger
	it.requirements = l.Requirements
	it.inputFutures = l.Futures
	it.barriers = l.Barriers
	it.grants = l.Grants
	if l.Predicate != nil {
		it.predicate = l.Predicate
	}
	it.defaultResult = l.DefaultResult
	it.homeNode = e.node
	it.currentNode = e.node
	it.targetNode = e.node

	if l.Redop != 0 {
		it.result = future.New()
	} else {
		it.futureMap = future.NewMap(dom)
	}
	it.completeHook = it.onComplete
	it.commitHook = it.onCommit
	e.metricsHandler.Counter(metrics.TaskActivatedCounter).Record(1)
	return it
}

// prepipeline validates requirements and picks initial options. Pairwise
// interference is only reported for an index launch: per-point projection
// may make the instances disjoint, and real interference is caught once
// points exist.
func (it *IndexTask) prepipeline() error {
	for i := range it.requirements {
		if err := it.requirements[i].Validate(); err != nil {
			return &PrivilegeError{TaskID: it.id, RequirementIndex: i, Cause: err}
		}
	}
	for i := range it.requirements {
		for j := i + 1; j < len(it.requirements); j++ {
			if it.requirements[i].Interferes(&it.requirements[j]) {
				it.logger.Warn("index launch requirements may interfere",
					tag.TaskID(it.id.String()),
					tag.RequirementIndex(i),
					tag.RequirementIndex(j))
			}
		}
	}
	if it.redop != 0 {
		op, ok := future.LookupReductionOp(it.redop)
		if !ok {
			return fmt.Errorf("task %v: unknown reduction operator %d", it.id, it.redop)
		}
		it.reducer = future.NewReducer(op, it.deterministic)
	}

	opts, err := it.engine.policy.SelectTaskOptions(it.taskInfo())
	if err != nil {
		return err
	}
	it.targetNode = opts.TargetNode
	it.mu.Lock()
	it.stealable = opts.Stealable
	it.mu.Unlock()

	it.transit(StatePrepipelined)
	return nil
}

func (it *IndexTask) analyze() {
	it.precondition = it.engine.deps.Register(it)
	it.transit(StateAnalyzed)
	it.transit(StateReady)
}

// advance is the ready-stage re-entry: resolve or speculate the guard,
// then place.
func (it *IndexTask) advance() {
	value, resolved := it.predicate.Value()
	if !resolved {
		dec := it.engine.policy.Speculate(it.taskInfo())
		if !dec.Speculate || !dec.PredictedValue {
			it.predicate.ResolvedEvent().OnTrigger(func() {
				it.engine.schedule(it.id, it.advance)
			})
			return
		}
	} else if !value {
		it.shortCircuit()
		return
	}
	it.place()
}

// place waits for the launch preconditions, then spawns the root slice.
// The whole launch initially counts as one slice of denominator one; its
// placement target comes from the task options, so an index launch routed
// to another node decomposes entirely there while fraction reports flow
// back here.
func (it *IndexTask) place() {
	it.transit(StatePlaced)

	pre := make([]*event.Event, 0, 1+len(it.inputFutures)+len(it.barriers)+len(it.grants))
	pre = append(pre, it.precondition)
	for _, f := range it.inputFutures {
		pre = append(pre, f.Ready())
	}
	for _, b := range it.barriers {
		pre = append(pre, b.WaitEvent())
	}
	for _, g := range it.grants {
		pre = append(pre, g.Acquire())
	}
	event.Merge(pre...).OnTrigger(func() {
		it.engine.schedule(it.id, it.spawnRootSlice)
	})
}

func (it *IndexTask) spawnRootSlice() {
	if value, resolved := it.predicate.Value(); resolved && !value {
		it.shortCircuit()
		return
	}

	e := it.engine
	it.aggMu.Lock()
	it.sliced = true
	it.launchStart = time.Now()
	it.aggMu.Unlock()
	it.clearStealable()
	it.transit(StateDecomposed)
	it.AddChild() // surrogate child standing for the whole slice tree

	root := newRootSlice(it, it.targetNode, false)
	e.metricsHandler.Counter(metrics.SliceCreatedCounter).Record(1)
	e.logger.Debug("spawned root slice",
		tag.TaskID(it.id.String()),
		tag.Domain(it.dom.String()),
		tag.PointCount(it.totalPoints))
	e.schedule(root.id, root.run)
}

// Sliced reports whether decomposition has begun.
func (it *IndexTask) Sliced() bool {
	it.aggMu.Lock()
	defer it.aggMu.Unlock()
	return it.sliced
}

// FutureMap returns the launch's per-point result map, nil for reduction
// launches.
func (it *IndexTask) FutureMap() *future.Map {
	return it.futureMap
}

// Result returns the launch's folded result future, nil for future-map
// launches.
func (it *IndexTask) Result() *future.Future {
	return it.result
}

// depositPoint routes one point's value into the launch aggregate.
func (it *IndexTask) depositPoint(p domain.Point, res []byte, owned bool) {
	if it.reducer != nil {
		it.engine.metricsHandler.Counter(metrics.ReductionFoldCounter).Record(1)
		it.reducer.Contribute(p, res, owned)
		return
	}
	it.futureMap.SetPoint(p, res)
}

// ReturnSliceMapped accounts one terminal slice's mapping progress. The
// launch is mapped exactly when the fraction reaches one and the point
// counts agree.
func (it *IndexTask) ReturnSliceMapped(denominator, points int64) {
	it.aggMu.Lock()
	it.mappedPoints += points
	whole := it.mappedFrac.Add(denominator)
	if whole && it.mappedPoints != it.totalPoints {
		it.aggMu.Unlock()
		panic(fmt.Sprintf("task %v: mapped fraction whole with %d of %d points",
			it.id, it.mappedPoints, it.totalPoints))
	}
	done := whole && !it.mappedDone
	if done {
		it.mappedDone = true
	}
	it.aggMu.Unlock()
	if !done {
		return
	}

	it.transit(StateMapped)
	it.transit(StateLaunched)
}

// ReturnSliceComplete accounts one terminal slice's completion, folding in
// its resource ledger and any result payloads that executed remotely.
func (it *IndexTask) ReturnSliceComplete(
	denominator, points int64,
	led *ledger.Ledger,
	results map[domain.Point][]byte,
) {
	if led != nil && led != it.resources {
		if err := it.resources.Merge(led); err != nil {
			// a created key claimed by two slices; contract violation,
			// this launch makes no further progress
			it.logger.Error("slice ledger merge rejected",
				tag.TaskID(it.id.String()), tag.Error(err))
			return
		}
		it.engine.metricsHandler.Counter(metrics.LedgerMergeCounter).Record(1)
	}
	for p, v := range results {
		it.depositPoint(p, v, true)
	}

	it.aggMu.Lock()
	it.completePoints += points
	whole := it.completeFrac.Add(denominator)
	if whole && it.completePoints != it.totalPoints {
		it.aggMu.Unlock()
		panic(fmt.Sprintf("task %v: complete fraction whole with %d of %d points",
			it.id, it.completePoints, it.totalPoints))
	}
	done := whole && !it.completeDone
	if done {
		it.completeDone = true
	}
	started := it.launchStart
	it.aggMu.Unlock()
	if !done {
		return
	}

	if it.reducer != nil {
		it.result.Set(it.reducer.Finalize())
	} else {
		it.futureMap.TriggerComplete()
	}
	for _, g := range it.grants {
		g.Release()
	}
	if !started.IsZero() {
		it.engine.metricsHandler.Timer(metrics.LaunchCompleteTimer).Record(time.Since(started))
	}

	it.noteSelfComplete()
	it.ChildComplete()
}

// ReturnSliceCommit accounts one terminal slice's commit; the launch
// commits once the whole slice tree has.
func (it *IndexTask) ReturnSliceCommit(denominator, points int64) {
	it.aggMu.Lock()
	it.committedPoints += points
	whole := it.committedFrac.Add(denominator)
	if whole && it.committedPoints != it.totalPoints {
		it.aggMu.Unlock()
		panic(fmt.Sprintf("task %v: commit fraction whole with %d of %d points",
			it.id, it.committedPoints, it.totalPoints))
	}
	it.aggMu.Unlock()
	if !whole {
		return
	}
	it.ChildCommitted()
}

// shortCircuit is the predicate-false path for a whole launch: every
// point's slot gets the precomputed default, deferred until the default
// future is itself ready.
func (it *IndexTask) shortCircuit() {
	e := it.engine
	e.metricsHandler.Counter(metrics.TaskSpeculatedCounter).Record(1)
	e.logger.Debug("index launch predicate resolved false",
		tag.TaskID(it.id.String()))
	it.clearStealable()

	finish := func(v []byte) {
		if it.reducer != nil {
			it.result.Set(v)
		} else {
			it.dom.Iterate(func(p domain.Point) bool {
				it.futureMap.SetPoint(p, v)
				return true
			})
			it.futureMap.TriggerComplete()
		}
		it.noteSelfComplete()
	}

	if it.defaultResult == nil {
		finish(nil)
		return
	}
	it.defaultResult.Ready().OnTrigger(func() {
		e.schedule(it.id, func() {
			v, _ := it.defaultResult.Get()
			finish(v)
		})
	})
}

func (it *IndexTask) onComplete() {
	it.engine.metricsHandler.Counter(metrics.TaskCompletedCounter).Record(1)
	if it.parent != nil {
		if err := it.parent.MergeLedger(it.resources); err != nil {
			it.logger.Error("resource ledger merge rejected",
				tag.TaskID(it.id.String()), tag.Error(err))
		}
		it.parent.ChildComplete()
	}
}

func (it *IndexTask) onCommit() {
	it.engine.metricsHandler.Counter(metrics.TaskCommittedCounter).Record(1)
	if it.parent != nil {
		it.parent.ChildCommitted()
	}
	it.engine.dropIndex(it.id)
}

func (it *IndexTask) taskInfo() policy.TaskInfo {
	return policy.TaskInfo{
		ID:           it.id,
		VariantID:    int64(it.variant),
		IndexLaunch:  true,
		LaunchDomain: it.dom,
		Requirements: it.requirements,
		CurrentNode:  it.currentNode,
		HomeNode:     it.homeNode,
	}
}
