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

	"github.com/google/uuid"

	"github.com/gabrieltanase42/legion/common/log/tag"
	"github.com/gabrieltanase42/legion/common/metrics"
	"github.com/gabrieltanase42/legion/runtime/domain"
	"github.com/gabrieltanase42/legion/runtime/fraction"
	"github.com/gabrieltanase42/legion/runtime/ledger"
	"github.com/gabrieltanase42/legion/runtime/policy"
	"github.com/gabrieltanase42/legion/runtime/region"
	"github.com/gabrieltanase42/legion/runtime/wire"
)

// SliceTask is one placement unit of an index launch: the launch
// restricted to a sub-domain, weighted by a denominator for the owner's
// fractional accounting. A slice either recurses into finer slices or is
// the terminal unit that enumerates its domain into point tasks; exactly
// one of the two happens. Intermediate slices used purely to fan out
// placement report nothing and are discarded once their children spawn.
type SliceTask struct {
	engine   *Engine
	id       uuid.UUID
	ctxIndex int64

	// index is the owning launch when it lives on this node; otherwise
	// reports are sent to ownerNode under indexID.
	index     *IndexTask
	indexID   uuid.UUID
	ownerNode wire.NodeID

	variant       VariantID
	args          []byte
	argMap        map[domain.Point][]byte
	requirements  []region.Requirement
	redop         region.ReductionOpID
	deterministic bool

	// launchDomain is the full index domain; projection ranks are
	// computed against it, not the slice's own sub-domain.
	launchDomain domain.Rect
	dom          domain.Rect
	denominator  int64
	recurse      bool
	targetNode   wire.NodeID

	mu              sync.Mutex
	stealable       bool
	taken           bool
	started         bool
	total           int
	mappedPoints    int
	completePoints  int
	committedPoints int
	resources       *ledger.Ledger
	results         map[domain.Point][]byte
	points          []*PointTask
}

func newRootSlice(it *IndexTask, target wire.NodeID, stealable bool) *SliceTask {
	sl := &SliceTask{
		engine:        it.engine,
		id:            uuid.New(),
		ctxIndex:      it.ctxIndex,
		indexID:       it.id,
		ownerNode:     it.homeNode,
		variant:       it.variant,
		args:          it.args,
		argMap:        it.argMap,
		requirements:  it.requirements,
		redop:         it.redop,
		deterministic: it.deterministic,
		launchDomain:  it.dom,
		dom:           it.dom,
		denominator:   1,
		recurse:       true,
		targetNode:    target,
		stealable:     stealable,
		resources:     ledger.New(),
	}
	if it.homeNode == it.engine.node {
		sl.index = it
	}
	return sl
}

func (sl *SliceTask) child(dec policy.SliceDecision, denominator int64) *SliceTask {
	return &SliceTask{
		engine:        sl.engine,
		id:            uuid.New(),
		ctxIndex:      sl.ctxIndex,
		index:         sl.index,
		indexID:       sl.indexID,
		ownerNode:     sl.ownerNode,
		variant:       sl.variant,
		args:          sl.args,
		argMap:        sl.argMap,
		requirements:  sl.requirements,
		redop:         sl.redop,
		deterministic: sl.deterministic,
		launchDomain:  sl.launchDomain,
		dom:           dec.Domain,
		denominator:   denominator,
		recurse:       dec.Recurse,
		targetNode:    dec.TargetNode,
		stealable:     dec.Stealable,
		resources:     ledger.New(),
	}
}

// run drives one scheduling turn of the slice: migrate if the target is
// elsewhere, otherwise split or enumerate.
func (sl *SliceTask) run() {
	sl.mu.Lock()
	if sl.taken {
		sl.mu.Unlock()
		return
	}
	sl.started = true
	sl.mu.Unlock()

	e := sl.engine
	if sl.targetNode != e.node {
		if e.driver != nil {
			e.driver.Unregister(sl.id)
		}
		e.metricsHandler.Counter(metrics.TaskMigratedCounter).Record(1)
		e.logger.Debug("migrating slice",
			tag.TaskID(sl.id.String()),
			tag.Domain(sl.dom.String()),
			tag.TargetAddressSpace(uint32(sl.targetNode)))
		e.send(sl.targetNode, wire.MessageSliceSend, sl.encode())
		return
	}

	if sl.recurse {
		sl.decompose()
		return
	}
	sl.enumerate()
}

// decompose consults the placement policy with the slice's full
// sub-domain and fans out one child slice per returned tuple. Children
// inherit denominator = parent denominator times the tuple count, which
// keeps the reciprocal sum over terminal slices at exactly one whatever
// the recursion depth. A violating policy response is fatal to the
// launch.
func (sl *SliceTask) decompose() {
	e := sl.engine
	sl.clearStealable()

	decisions, err := e.policy.SliceDomain(policy.SliceInfo{
		Task:        sl.taskInfo(),
		Domain:      sl.dom,
		Denominator: sl.denominator,
	})
	if err == nil {
		err = policy.ValidateSliceDecisions(sl.indexID, sl.dom, decisions, e.verifyDisjoint())
	}
	if err != nil {
		sl.fail(err)
		return
	}

	childDen := fraction.ChildDenominator(sl.denominator, len(decisions))
	e.logger.Debug("decomposed slice",
		tag.TaskID(sl.indexID.String()),
		tag.Domain(sl.dom.String()),
		tag.SliceCount(len(decisions)),
		tag.Denominator(childDen))

	for _, dec := range decisions {
		child := sl.child(dec, childDen)
		e.metricsHandler.Counter(metrics.SliceCreatedCounter).Record(1)
		if child.stealable && child.targetNode == e.node && e.driver != nil {
			e.driver.Register(child)
		}
		e.schedule(child.id, child.run)
	}
	// this slice was pure fan-out; the children carry the whole fraction
}

// enumerate is the terminal path: build one point task per point of the
// sub-domain, projecting per-point requirements, and dispatch them all.
func (sl *SliceTask) enumerate() {
	e := sl.engine
	sl.clearStealable()
	e.metricsHandler.Counter(metrics.SliceEnumeratedCounter).Record(1)

	pts := sl.dom.Points()
	sl.mu.Lock()
	sl.total = len(pts)
	if sl.index == nil {
		sl.results = make(map[domain.Point][]byte, len(pts))
	}
	sl.mu.Unlock()

	for _, p := range pts {
		reqs := make([]region.Requirement, len(sl.requirements))
		for i := range sl.requirements {
			projected, err := region.Project(sl.requirements[i], p, sl.launchDomain)
			if err != nil {
				sl.fail(err)
				return
			}
			reqs[i] = projected
		}
		args := sl.args
		if v, ok := sl.argMap[p]; ok {
			args = v
		}

		pt := e.acquirePoint()
		pt.initSlicePoint(e, sl, p, args, reqs)
		sl.mu.Lock()
		sl.points = append(sl.points, pt)
		sl.mu.Unlock()
		e.schedule(pt.id, pt.runLocalStages)
	}
}

func (sl *SliceTask) clearStealable() {
	sl.mu.Lock()
	sl.stealable = false
	sl.mu.Unlock()
	if sl.engine.driver != nil {
		sl.engine.driver.Unregister(sl.id)
	}
}

// TrySteal claims the slice for a thief. Only a slice that has not yet
// started its local turn can move.
func (sl *SliceTask) TrySteal() (wire.MessageType, []byte, bool) {
	sl.mu.Lock()
	if !sl.stealable || sl.taken || sl.started {
		sl.mu.Unlock()
		return 0, nil, false
	}
	sl.taken = true
	sl.stealable = false
	sl.mu.Unlock()
	return wire.MessageSliceSend, sl.encode(), true
}

// UniqueID implements the steal-pool item contract.
func (sl *SliceTask) UniqueID() uuid.UUID {
	return sl.id
}

// Stealable reports current steal eligibility.
func (sl *SliceTask) Stealable() bool {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.stealable && !sl.started && !sl.taken
}

// pointResult routes one point's result: deposited straight into the
// owning launch's aggregate when it is local, buffered for the completion
// report when the owner is remote.
func (sl *SliceTask) pointResult(p domain.Point, res []byte) {
	if sl.index != nil {
		sl.index.depositPoint(p, res, true)
		return
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.results[p] = res
}

func (sl *SliceTask) pointMapped() {
	sl.mu.Lock()
	sl.mappedPoints++
	done := sl.mappedPoints == sl.total
	sl.mu.Unlock()
	if !done {
		return
	}

	if sl.index != nil {
		sl.index.ReturnSliceMapped(sl.denominator, int64(sl.total))
		return
	}
	sl.engine.send(sl.ownerNode, wire.MessageSliceMapped,
		encodeSliceProgress(sl.indexID, sl.denominator, int64(sl.total)))
}

// pointComplete absorbs one point's ledger and, once every point has
// reported, sends the slice's completion upward with the merged ledger
// and any buffered result payloads. A duplicate created key in a
// same-process merge can only be a runtime bug.
func (sl *SliceTask) pointComplete(pt *PointTask) {
	if err := sl.resources.Merge(pt.resources); err != nil {
		panic(fmt.Sprintf("slice %v: %v", sl.id, err))
	}
	sl.engine.metricsHandler.Counter(metrics.LedgerMergeCounter).Record(1)

	sl.mu.Lock()
	sl.completePoints++
	done := sl.completePoints == sl.total
	results := sl.results
	sl.mu.Unlock()
	if !done {
		return
	}

	if sl.index != nil {
		sl.index.ReturnSliceComplete(sl.denominator, int64(sl.total), sl.resources, nil)
		return
	}
	sl.engine.send(sl.ownerNode, wire.MessageSliceComplete,
		encodeSliceComplete(sl.indexID, sl.denominator, int64(sl.total), sl.resources, results))
}

func (sl *SliceTask) pointCommitted(pt *PointTask) {
	sl.engine.releasePoint(pt)

	sl.mu.Lock()
	sl.committedPoints++
	done := sl.committedPoints == sl.total
	if done {
		sl.points = nil
	}
	sl.mu.Unlock()
	if !done {
		return
	}

	if sl.index != nil {
		sl.index.ReturnSliceCommit(sl.denominator, int64(sl.total))
		return
	}
	sl.engine.send(sl.ownerNode, wire.MessageSliceCommit,
		encodeSliceProgress(sl.indexID, sl.denominator, int64(sl.total)))
}

func (sl *SliceTask) fail(err error) {
	e := sl.engine
	if _, ok := err.(*policy.ViolationError); ok {
		e.metricsHandler.Counter(metrics.PolicyViolationCounter).Record(1)
	}
	e.logger.Error("slice failed",
		tag.TaskID(sl.indexID.String()),
		tag.Domain(sl.dom.String()),
		tag.Denominator(sl.denominator),
		tag.Error(err))
}

func (sl *SliceTask) taskInfo() policy.TaskInfo {
	return policy.TaskInfo{
		ID:           sl.indexID,
		VariantID:    int64(sl.variant),
		IndexLaunch:  true,
		LaunchDomain: sl.launchDomain,
		Requirements: sl.requirements,
		CurrentNode:  sl.engine.node,
		HomeNode:     sl.ownerNode,
	}
}
