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

	"github.com/gabrieltanase42/legion/common/dynamicconfig"
	"github.com/gabrieltanase42/legion/common/executor"
	"github.com/gabrieltanase42/legion/common/log"
	"github.com/gabrieltanase42/legion/common/log/tag"
	"github.com/gabrieltanase42/legion/common/metrics"
	"github.com/gabrieltanase42/legion/common/pool"
	"github.com/gabrieltanase42/legion/runtime/depgraph"
	"github.com/gabrieltanase42/legion/runtime/distribution"
	"github.com/gabrieltanase42/legion/runtime/domain"
	"github.com/gabrieltanase42/legion/runtime/event"
	"github.com/gabrieltanase42/legion/runtime/future"
	"github.com/gabrieltanase42/legion/runtime/ledger"
	"github.com/gabrieltanase42/legion/runtime/policy"
	"github.com/gabrieltanase42/legion/runtime/region"
	"github.com/gabrieltanase42/legion/runtime/wire"
)

// VerifySliceDisjointness asks the engine to re-validate that policy slice
// decisions are pairwise disjoint.
const VerifySliceDisjointness = dynamicconfig.Key("runtime.verifySliceDisjointness")

type (
	// Parent is the enclosing operation or context a launch reports into:
	// child registration, complete/commit notifications, and the final
	// resource-ledger merge once the whole launch is complete.
	Parent interface {
		AddChild()
		ChildComplete()
		ChildCommitted()
		MergeLedger(l *ledger.Ledger) error
	}

	// Launch carries everything the submitting context provides for a
	// single or index launch.
	Launch struct {
		Variant      VariantID
		Point        domain.Point
		Args         []byte
		ArgMap       map[domain.Point][]byte
		Requirements []region.Requirement
		Futures      []*future.Future
		Barriers     []*event.Barrier
		Grants       []*event.Grant

		// Predicate guards the launch; nil means unconditionally true.
		Predicate *Predicate
		// DefaultResult supplies the precomputed result used when the
		// predicate resolves false.
		DefaultResult *future.Future

		// Redop selects a reduction launch; zero means a future-map launch.
		Redop         region.ReductionOpID
		Deterministic bool

		Parent Parent
	}

	// Engine drives task operations through the lifecycle on one address
	// space. It owns the point-task arena, the table of live index
	// launches, and the records of operations migrated away.
	Engine struct {
		node           wire.NodeID
		policy         policy.Policy
		deps           depgraph.Engine
		driver         *distribution.Driver
		scheduler      executor.Scheduler
		logger         log.Logger
		metricsHandler metrics.Handler

		verifyDisjoint dynamicconfig.BoolPropertyFn

		mu          sync.Mutex
		ctxSeq      int64
		indexOps    map[uuid.UUID]*IndexTask
		migratedOut map[uuid.UUID]*PointTask

		pointPool *pool.Pool[PointTask]
	}
)

// NewEngine builds a lifecycle engine for one address space. The driver
// may be nil on a single-node runtime; any policy decision that would
// migrate work then panics.
func NewEngine(
	node wire.NodeID,
	pol policy.Policy,
	deps depgraph.Engine,
	driver *distribution.Driver,
	scheduler executor.Scheduler,
	dc *dynamicconfig.Collection,
	logger log.Logger,
	metricsHandler metrics.Handler,
) *Engine {
	return &Engine{
		node:           node,
		policy:         pol,
		deps:           deps,
		driver:         driver,
		scheduler:      scheduler,
		logger:         log.With(logger, tag.AddressSpace(uint32(node))),
		metricsHandler: metricsHandler,
		verifyDisjoint: dc.GetBoolProperty(VerifySliceDisjointness, false),
		indexOps:       make(map[uuid.UUID]*IndexTask),
		migratedOut:    make(map[uuid.UUID]*PointTask),
		pointPool:      pool.New[PointTask](),
	}
}

// Node returns the engine's address space.
func (e *Engine) Node() wire.NodeID {
	return e.node
}

// NextContextIndex hands out program-order indices for one submitting
// context.
func (e *Engine) NextContextIndex() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ctxSeq++
	return e.ctxSeq
}

// SubmitSingle runs prepipeline and dependence analysis synchronously, in
// program order, then drives the rest of the lifecycle asynchronously.
// The returned future is populated when the task completes.
func (e *Engine) SubmitSingle(l Launch) (*future.Future, error) {
	pt := e.acquirePoint()
	pt.init(e, e.NextContextIndex(), l)

	if err := pt.prepipeline(); err != nil {
		e.releasePoint(pt)
		return nil, err
	}
	pt.analyze()

	if l.Parent != nil {
		l.Parent.AddChild()
	}
	result := pt.result
	e.schedule(pt.id, pt.advance)
	return result, nil
}

// SubmitIndex launches a task over every point of dom. For non-reduction
// launches the returned map holds one future per point; for reduction
// launches the returned future holds the folded value. Exactly one of the
// two is non-nil.
func (e *Engine) SubmitIndex(dom domain.Rect, l Launch) (*future.Map, *future.Future, error) {
	if dom.Empty() {
		return nil, nil, fmt.Errorf("task: index launch over empty domain %v", dom)
	}

	it := newIndexTask(e, e.NextContextIndex(), dom, l)
	if err := it.prepipeline(); err != nil {
		return nil, nil, err
	}
	it.analyze()

	if l.Parent != nil {
		l.Parent.AddChild()
	}
	e.registerIndex(it)
	e.schedule(it.id, it.advance)
	return it.futureMap, it.result, nil
}

// HandleMessage dispatches one cross-node message. It implements the
// transport handler contract; decode failures and unknown destinations
// are runtime bugs and panic.
func (e *Engine) HandleMessage(env wire.Envelope) {
	e.metricsHandler.Counter(metrics.WireMessageCounter).Record(
		1, metrics.StringTag("message_type", env.Type.String()))

	switch env.Type {
	case wire.MessageTaskSend:
		pt := e.acquirePoint()
		if err := pt.decode(e, env.Payload); err != nil {
			e.releasePoint(pt)
			panic(fmt.Sprintf("task: bad %v payload from node %d: %v", env.Type, env.Source, err))
		}
		e.schedule(pt.id, pt.runMigrated)

	case wire.MessageSliceSend:
		sl, err := decodeSlice(e, env.Payload)
		if err != nil {
			panic(fmt.Sprintf("task: bad %v payload from node %d: %v", env.Type, env.Source, err))
		}
		e.schedule(sl.id, sl.run)

	case wire.MessageStealResponse:
		// stolen work arrives wrapped: inner message type, then the normal
		// migration payload
		d := wire.NewDecoder(env.Payload)
		inner, err := d.ReadUint8()
		if err != nil {
			panic(fmt.Sprintf("task: bad %v payload from node %d: %v", env.Type, env.Source, err))
		}
		payload, err := d.ReadBytes()
		if err != nil {
			panic(fmt.Sprintf("task: bad %v payload from node %d: %v", env.Type, env.Source, err))
		}
		e.HandleMessage(wire.Envelope{Type: wire.MessageType(inner), Source: env.Source, Payload: payload})

	case wire.MessageSliceMapped:
		id, den, pts, err := decodeSliceProgress(env.Payload)
		if err != nil {
			panic(fmt.Sprintf("task: bad %v payload from node %d: %v", env.Type, env.Source, err))
		}
		e.mustIndex(id).ReturnSliceMapped(den, pts)

	case wire.MessageSliceComplete:
		rep, err := decodeSliceComplete(env.Payload)
		if err != nil {
			panic(fmt.Sprintf("task: bad %v payload from node %d: %v", env.Type, env.Source, err))
		}
		e.mustIndex(rep.indexID).ReturnSliceComplete(rep.denominator, rep.points, rep.resources, rep.results)

	case wire.MessageSliceCommit:
		id, den, pts, err := decodeSliceProgress(env.Payload)
		if err != nil {
			panic(fmt.Sprintf("task: bad %v payload from node %d: %v", env.Type, env.Source, err))
		}
		e.mustIndex(id).ReturnSliceCommit(den, pts)

	case wire.MessagePointComplete:
		rep, err := decodePointComplete(env.Payload)
		if err != nil {
			panic(fmt.Sprintf("task: bad %v payload from node %d: %v", env.Type, env.Source, err))
		}
		e.mustMigratedOut(rep.pointID).returnRemoteComplete(rep.result, rep.resources)

	case wire.MessagePointCommit:
		d := wire.NewDecoder(env.Payload)
		id, err := d.ReadUUID()
		if err != nil {
			panic(fmt.Sprintf("task: bad %v payload from node %d: %v", env.Type, env.Source, err))
		}
		e.mustMigratedOut(id).returnRemoteCommit()

	case wire.MessageStealRequest:
		e.driver.HandleStealRequest(env.Source)

	default:
		panic(fmt.Sprintf("task: unknown message type %v from node %d", env.Type, env.Source))
	}
}

// schedule re-enters the state machine on the executor. All stages of one
// operation share a sequential lane so they never interleave.
func (e *Engine) schedule(id uuid.UUID, fn func()) {
	key := id
	e.scheduler.SubmitSequential(key[:], executor.RunnableFunc(fn))
}

func (e *Engine) send(target wire.NodeID, t wire.MessageType, payload []byte) {
	if e.driver == nil {
		panic(fmt.Sprintf("task: no distribution driver, can not send %v to node %d", t, target))
	}
	if err := e.driver.Send(target, t, payload); err != nil {
		e.logger.Error("failed to send message",
			tag.MessageType(t.String()),
			tag.TargetAddressSpace(uint32(target)),
			tag.Error(err))
	}
}

func (e *Engine) registerIndex(it *IndexTask) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.indexOps[it.id] = it
}

func (e *Engine) dropIndex(id uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.indexOps, id)
}

func (e *Engine) mustIndex(id uuid.UUID) *IndexTask {
	e.mu.Lock()
	defer e.mu.Unlock()
	it, ok := e.indexOps[id]
	if !ok {
		panic(fmt.Sprintf("task: slice report for unknown index launch %v", id))
	}
	return it
}

func (e *Engine) registerMigratedOut(pt *PointTask) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.migratedOut[pt.id] = pt
}

func (e *Engine) mustMigratedOut(id uuid.UUID) *PointTask {
	e.mu.Lock()
	defer e.mu.Unlock()
	pt, ok := e.migratedOut[id]
	if !ok {
		panic(fmt.Sprintf("task: remote report for unknown migrated task %v", id))
	}
	return pt
}

func (e *Engine) dropMigratedOut(id uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.migratedOut, id)
}

// acquirePoint takes a recycled point task from the arena.
func (e *Engine) acquirePoint() *PointTask {
	h, pt := e.pointPool.Acquire()
	pt.handle = h
	return pt
}

// releasePoint returns a committed point task to the arena. The stale
// handle check in the pool catches any use after release.
func (e *Engine) releasePoint(pt *PointTask) {
	h := pt.handle
	pt.handle = pool.NilHandle
	e.pointPool.Release(h)
}
