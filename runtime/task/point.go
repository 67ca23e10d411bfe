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
	"time"

	"github.com/google/uuid"

	"github.com/gabrieltanase42/legion/common/log/tag"
	"github.com/gabrieltanase42/legion/common/metrics"
	"github.com/gabrieltanase42/legion/common/pool"
	"github.com/gabrieltanase42/legion/runtime/domain"
	"github.com/gabrieltanase42/legion/runtime/event"
	"github.com/gabrieltanase42/legion/runtime/future"
	"github.com/gabrieltanase42/legion/runtime/ledger"
	"github.com/gabrieltanase42/legion/runtime/policy"
	"github.com/gabrieltanase42/legion/runtime/region"
	"github.com/gabrieltanase42/legion/runtime/wire"
)

// PointTask is a task operation bound to exactly one domain point. It is
// owned either by the submitting context (individual launch) or by the
// slice that enumerated it. Point tasks are recycled through the engine's
// arena; handle staleness catches use after release.
type PointTask struct {
	TaskOp

	point  domain.Point
	handle pool.Handle

	// owner is the enumerating slice, nil for individual launches and for
	// migrated-in copies.
	owner  *SliceTask
	parent Parent

	// migrated marks a copy that arrived from another node; completion and
	// commit notifications route back to homeNode under the original id.
	migrated bool
	// taken marks a task claimed by a steal; the queued local stage run
	// must back off.
	taken bool

	result        *future.Future
	instances     []region.InstanceRef
	virtualMapped []bool
	mapped        bool
	precondition  *event.Event
}

func (pt *PointTask) reset() {
	pt.point = domain.Point{}
	pt.owner = nil
	pt.parent = nil
	pt.migrated = false
	pt.taken = false
	pt.result = nil
	pt.instances = nil
	pt.virtualMapped = nil
	pt.mapped = false
	pt.precondition = nil
}

// init configures a context-submitted single-point task.
func (pt *PointTask) init(e *Engine, ctxIndex int64, l Launch) {
	pt.reset()
	pt.Reset(uuid.New(), ctxIndex, l.Variant, l.Args)
	pt.engine = e
	pt.logger = e.logger
	pt.point = l.Point
	pt.parent = l.Parent
	pt.requirements = l.Requirements
	pt.inputFutures = l.Futures
	pt.barriers = l.Barriers
	pt.grants = l.Grants
	if l.Predicate != nil {
		pt.predicate = l.Predicate
	}
	pt.defaultResult = l.DefaultResult
	pt.homeNode = e.node
	pt.currentNode = e.node
	pt.targetNode = e.node
	pt.result = future.New()
	pt.installHooks()
	e.metricsHandler.Counter(metrics.TaskActivatedCounter).Record(1)
}

// initSlicePoint configures a point task enumerated by a slice. Placement
// and analysis already happened at the launch level, so the point starts
// with its requirements projected and no further policy options to pick.
func (pt *PointTask) initSlicePoint(
	e *Engine,
	sl *SliceTask,
	p domain.Point,
	args []byte,
	reqs []region.Requirement,
) {
	pt.reset()
	pt.Reset(uuid.New(), sl.ctxIndex, sl.variant, args)
	pt.engine = e
	pt.logger = e.logger
	pt.point = p
	pt.owner = sl
	pt.requirements = reqs
	pt.homeNode = e.node
	pt.currentNode = e.node
	pt.targetNode = e.node
	pt.precondition = event.Triggered()
	pt.installHooks()
	e.metricsHandler.Counter(metrics.TaskActivatedCounter).Record(1)
}

func (pt *PointTask) installHooks() {
	pt.completeHook = pt.onComplete
	pt.commitHook = pt.onCommit
}

// prepipeline validates region requirements, checks pairwise interference
// (fatal for single-point tasks), and consults the policy for initial
// placement options.
func (pt *PointTask) prepipeline() error {
	for i := range pt.requirements {
		if err := pt.requirements[i].Validate(); err != nil {
			return &PrivilegeError{TaskID: pt.id, RequirementIndex: i, Cause: err}
		}
	}
	for i := range pt.requirements {
		for j := i + 1; j < len(pt.requirements); j++ {
			if pt.requirements[i].Interferes(&pt.requirements[j]) {
				return &InterferenceError{TaskID: pt.id, First: i, Second: j}
			}
		}
	}

	opts, err := pt.engine.policy.SelectTaskOptions(pt.taskInfo())
	if err != nil {
		return err
	}
	pt.targetNode = opts.TargetNode
	pt.mu.Lock()
	pt.stealable = opts.Stealable && !opts.OriginMapped
	pt.originMapped = opts.OriginMapped
	pt.mu.Unlock()

	pt.transit(StatePrepipelined)
	return nil
}

// analyze registers the operation for dependence ordering. Called in
// program order within the submitting context.
func (pt *PointTask) analyze() {
	pt.precondition = pt.engine.deps.Register(pt)
	pt.transit(StateAnalyzed)
	pt.transit(StateReady)
}

// advance is the ready-stage re-entry: resolve or speculate the predicate
// guard, then place.
func (pt *PointTask) advance() {
	value, resolved := pt.predicate.Value()
	if !resolved {
		dec := pt.engine.policy.Speculate(pt.taskInfo())
		if !dec.Speculate || !dec.PredictedValue {
			pt.predicate.ResolvedEvent().OnTrigger(func() {
				pt.engine.schedule(pt.id, pt.advance)
			})
			return
		}
		// speculating true; the guard is consulted again before mapping
	} else if !value {
		pt.shortCircuit()
		return
	}
	pt.place()
}

// place makes the local-vs-remote decision. Migration waits until input
// futures have resolved so their values travel with the task, and until
// the dependence precondition, barriers, and grants are satisfied, so
// nothing remains to wait on at the origin once the task leaves.
func (pt *PointTask) place() {
	pt.transit(StatePlaced)

	if pt.targetNode == pt.currentNode {
		if pt.Stealable() && pt.engine.driver != nil {
			// park in the steal pool while queued; a thief may claim it
			// before the local stage runs
			pt.engine.driver.Register(pt)
			pt.engine.schedule(pt.id, pt.mapAndLaunch)
			return
		}
		pt.mapAndLaunch()
		return
	}

	if pt.originMapped {
		// mapping is finalized here; the origin keeps its copy and the
		// remote side goes straight to launch
		if !pt.doMap() {
			return
		}
	}

	// the dependence precondition, barriers, and grants are process-local
	// objects, so all of them are satisfied here before the task leaves;
	// a held grant is released when the remote completion report arrives
	ready := make([]*event.Event, 0, 1+len(pt.inputFutures)+len(pt.barriers)+len(pt.grants))
	ready = append(ready, pt.precondition)
	for _, f := range pt.inputFutures {
		ready = append(ready, f.Ready())
	}
	for _, b := range pt.barriers {
		ready = append(ready, b.WaitEvent())
	}
	for _, g := range pt.grants {
		ready = append(ready, g.Acquire())
	}
	event.Merge(ready...).OnTrigger(func() {
		pt.engine.schedule(pt.id, pt.sendAway)
	})
}

func (pt *PointTask) sendAway() {
	e := pt.engine
	e.metricsHandler.Counter(metrics.TaskMigratedCounter).Record(1)
	e.logger.Info("migrating task",
		tag.TaskID(pt.id.String()),
		tag.TargetAddressSpace(uint32(pt.targetNode)))

	// the retained record is the completion-event surrogate: the remote
	// copy is its single child and reports complete/commit back here
	pt.AddChild()
	e.registerMigratedOut(pt)
	if !pt.originMapped {
		pt.clearStealable()
	}
	e.send(pt.targetNode, wire.MessageTaskSend, pt.encode())

	if pt.originMapped {
		// mapping was finalized before migration; the retained copy
		// records the mapped stage and counts as dispatched
		pt.transit(StateMapped)
		pt.transit(StateLaunched)
	}
}

// runLocalStages walks a point through the fast local stages into map and
// launch. Used for points enumerated by a slice and for migrated-in
// copies, where prepipeline, analysis, and placement already happened at
// the launch level or at the origin.
func (pt *PointTask) runLocalStages() {
	pt.transit(StatePrepipelined)
	pt.transit(StateAnalyzed)
	pt.transit(StateReady)
	pt.transit(StatePlaced)
	pt.mapAndLaunch()
}

func (pt *PointTask) runMigrated() {
	pt.runLocalStages()
}

func (pt *PointTask) mapAndLaunch() {
	pt.mu.Lock()
	taken := pt.taken
	pt.mu.Unlock()
	if taken {
		return
	}
	if pt.mapped {
		pt.transit(StateMapped)
		pt.launch()
		return
	}
	if value, resolved := pt.predicate.Value(); resolved && !value {
		pt.shortCircuit()
		return
	}
	if !pt.doMap() {
		return
	}
	pt.transit(StateMapped)
	pt.launch()
}

// doMap consults the policy for a physical-instance assignment and
// validates it. Mapping permanently clears steal eligibility. Returns
// false when the policy response is a fatal violation.
func (pt *PointTask) doMap() bool {
	pt.clearStealable()
	if pt.engine.driver != nil {
		pt.engine.driver.Unregister(pt.id)
	}

	dec, err := pt.engine.policy.MapTask(policy.PointInfo{
		Task:         pt.taskInfo(),
		Point:        pt.point,
		Requirements: pt.requirements,
	})
	if err == nil {
		err = policy.ValidateMapDecision(pt.id, pt.requirements, dec)
	}
	if err != nil {
		pt.fail(err)
		return false
	}

	pt.instances = dec.Instances
	pt.virtualMapped = make([]bool, len(dec.Instances))
	for i, ref := range dec.Instances {
		pt.virtualMapped[i] = ref.Virtual
		if !ref.Virtual && ref.Instance.Unacquired {
			pt.logger.Warn("policy mapped an unacquired instance",
				tag.TaskID(pt.id.String()),
				tag.RequirementIndex(i))
		}
	}
	pt.mapped = true
	pt.mu.Lock()
	alreadyPlaced := pt.state >= StatePlaced
	pt.mu.Unlock()
	if !alreadyPlaced {
		panic(fmt.Sprintf("task %v: mapped before placement", pt.id))
	}
	if pt.owner != nil {
		pt.owner.pointMapped()
	}
	return true
}

// launch builds the merged precondition from dependence analysis, input
// futures, barriers, and grants, then dispatches execution once it fires.
func (pt *PointTask) launch() {
	pt.transit(StateLaunched)

	pre := make([]*event.Event, 0, 1+len(pt.inputFutures)+len(pt.barriers)+len(pt.grants))
	pre = append(pre, pt.precondition)
	for _, f := range pt.inputFutures {
		pre = append(pre, f.Ready())
	}
	for _, b := range pt.barriers {
		pre = append(pre, b.WaitEvent())
	}
	for _, g := range pt.grants {
		pre = append(pre, g.Acquire())
	}
	event.Merge(pre...).OnTrigger(func() {
		pt.engine.schedule(pt.id, pt.execute)
	})
}

func (pt *PointTask) execute() {
	e := pt.engine
	fn, ok := LookupVariant(pt.variant)
	if !ok {
		pt.fail(fmt.Errorf("task %v: unknown variant %d", pt.id, pt.variant))
		return
	}

	start := time.Now()
	res, err := fn(&ExecContext{
		Node:      e.node,
		Point:     pt.point,
		Args:      pt.args,
		Futures:   pt.inputFutures,
		Instances: pt.instances,
		Ledger:    pt.resources,
	})
	e.metricsHandler.Timer(metrics.TaskExecutionLatencyTimer).Record(time.Since(start))
	for _, g := range pt.grants {
		g.Release()
	}
	if err != nil {
		pt.fail(fmt.Errorf("task %v: variant %d failed: %w", pt.id, pt.variant, err))
		return
	}
	e.metricsHandler.Counter(metrics.PointExecutedCounter).Record(1)

	pt.deposit(res)
	pt.noteSelfComplete()
}

// deposit routes the point's result: its own future for an individual
// launch, the owning slice for an enumerated point, or back to the origin
// for a migrated copy (carried on the completion message instead).
func (pt *PointTask) deposit(res []byte) {
	switch {
	case pt.migrated:
		pt.result = future.Completed(res)
	case pt.owner != nil:
		pt.owner.pointResult(pt.point, res)
	default:
		pt.result.Set(res)
	}
}

// shortCircuit is the predicate-false path: skip mapping and execution and
// complete with the precomputed default result. The task's future
// completes only once the default future's own readiness event fires.
func (pt *PointTask) shortCircuit() {
	e := pt.engine
	e.metricsHandler.Counter(metrics.TaskSpeculatedCounter).Record(1)
	e.logger.Debug("predicate resolved false, completing with default result",
		tag.TaskID(pt.id.String()))
	pt.clearStealable()
	if e.driver != nil {
		e.driver.Unregister(pt.id)
	}

	if pt.defaultResult == nil {
		pt.deposit(nil)
		pt.noteSelfComplete()
		return
	}
	pt.defaultResult.Ready().OnTrigger(func() {
		e.schedule(pt.id, func() {
			v, _ := pt.defaultResult.Get()
			pt.deposit(v)
			pt.noteSelfComplete()
		})
	})
}

// returnRemoteComplete is the origin half of a migrated point's
// completion: absorb the remote ledger, deposit the result, and satisfy
// both completion conditions (the retained copy has no work of its own).
func (pt *PointTask) returnRemoteComplete(res []byte, remote *ledger.Ledger) {
	for _, g := range pt.grants {
		g.Release()
	}
	if remote != nil {
		if err := pt.resources.Merge(remote); err != nil {
			pt.fail(err)
			return
		}
	}
	pt.deposit(res)
	pt.noteSelfComplete()
	pt.ChildComplete()
}

func (pt *PointTask) returnRemoteCommit() {
	pt.engine.dropMigratedOut(pt.id)
	pt.ChildCommitted()
}

func (pt *PointTask) onComplete() {
	e := pt.engine
	e.metricsHandler.Counter(metrics.TaskCompletedCounter).Record(1)

	switch {
	case pt.migrated:
		res, _ := pt.result.Get()
		e.send(pt.homeNode, wire.MessagePointComplete, encodePointComplete(pt.id, res, pt.resources))
	case pt.owner != nil:
		pt.owner.pointComplete(pt)
	case pt.parent != nil:
		if err := pt.parent.MergeLedger(pt.resources); err != nil {
			e.logger.Error("resource ledger merge rejected",
				tag.TaskID(pt.id.String()), tag.Error(err))
		}
		pt.parent.ChildComplete()
	}
}

func (pt *PointTask) onCommit() {
	e := pt.engine
	e.metricsHandler.Counter(metrics.TaskCommittedCounter).Record(1)

	switch {
	case pt.migrated:
		enc := wire.NewEncoder()
		enc.WriteUUID(pt.id)
		e.send(pt.homeNode, wire.MessagePointCommit, enc.Bytes())
		e.releasePoint(pt)
	case pt.owner != nil:
		pt.owner.pointCommitted(pt)
	default:
		if pt.parent != nil {
			pt.parent.ChildCommitted()
		}
		e.releasePoint(pt)
	}
}

// fail terminates this launch's progress. Structural and contract
// violations are never retried; they indicate a bug in the submitted task
// or the policy agent.
func (pt *PointTask) fail(err error) {
	e := pt.engine
	if _, ok := err.(*policy.ViolationError); ok {
		e.metricsHandler.Counter(metrics.PolicyViolationCounter).Record(1)
	}
	e.logger.Error("task launch failed",
		tag.TaskID(pt.id.String()),
		tag.Point(pt.point.String()),
		tag.TaskState(pt.State().String()),
		tag.Error(err))
}

// TrySteal claims the task for a thief node. It succeeds only while the
// task is parked in the steal pool, still stealable, and every condition
// a policy-driven migration would wait out at the origin already holds:
// input futures resolved so their values can travel, the dependence
// precondition fired, barriers arrived. Tasks holding grants are never
// stolen; a thief cannot acquire a process-local grant on the origin's
// behalf. The origin keeps a surrogate record exactly as for a
// policy-driven migration.
func (pt *PointTask) TrySteal() (wire.MessageType, []byte, bool) {
	pt.mu.Lock()
	if !pt.stealable || pt.taken || pt.state != StatePlaced {
		pt.mu.Unlock()
		return 0, nil, false
	}
	if len(pt.grants) > 0 || !pt.precondition.HasTriggered() {
		pt.mu.Unlock()
		return 0, nil, false
	}
	for _, b := range pt.barriers {
		if !b.WaitEvent().HasTriggered() {
			pt.mu.Unlock()
			return 0, nil, false
		}
	}
	for _, f := range pt.inputFutures {
		if !f.Ready().HasTriggered() {
			pt.mu.Unlock()
			return 0, nil, false
		}
	}
	pt.stealable = false
	pt.taken = true
	pt.mu.Unlock()

	pt.AddChild()
	pt.engine.registerMigratedOut(pt)
	return wire.MessageTaskSend, pt.encode(), true
}

func (pt *PointTask) taskInfo() policy.TaskInfo {
	return policy.TaskInfo{
		ID:           pt.id,
		VariantID:    int64(pt.variant),
		IndexLaunch:  false,
		Requirements: pt.requirements,
		CurrentNode:  pt.currentNode,
		HomeNode:     pt.homeNode,
	}
}
