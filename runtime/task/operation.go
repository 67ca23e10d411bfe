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

	"github.com/gabrieltanase42/legion/common/log"
	"github.com/gabrieltanase42/legion/runtime/event"
	"github.com/gabrieltanase42/legion/runtime/future"
	"github.com/gabrieltanase42/legion/runtime/ledger"
	"github.com/gabrieltanase42/legion/runtime/region"
	"github.com/gabrieltanase42/legion/runtime/wire"
)

// TaskOp is the per-operation bookkeeping shared by every task kind:
// identity, region requirements, input futures, synchronization arrivals,
// the predicate guard, placement fields, the resource ledger, and the
// staged lifecycle driver. Operations are recycled through a pool; Reset
// reinitializes one for a new activation and identity is unique per
// activation, never per object.
type TaskOp struct {
	id       uuid.UUID
	ctxIndex int64
	variant  VariantID
	args     []byte

	requirements []region.Requirement
	inputFutures []*future.Future
	barriers     []*event.Barrier
	grants       []*event.Grant

	predicate     *Predicate
	defaultResult *future.Future

	homeNode    wire.NodeID
	currentNode wire.NodeID
	targetNode  wire.NodeID

	resources *ledger.Ledger

	engine *Engine
	logger log.Logger

	// mu guards only this operation's own state, counters, and flags.
	// There is no global lock; cross-operation independence is load
	// bearing.
	mu                sync.Mutex
	state             State
	stealable         bool
	originMapped      bool
	ownDone           bool
	children          int
	childrenComplete  int
	childrenCommitted int

	completeEvent *event.Event
	commitEvent   *event.Event

	// completeHook and commitHook run once, outside the mutex, right after
	// the corresponding transition fires. Owners use them for upward
	// reporting.
	completeHook func()
	commitHook   func()
}

// Reset reinitializes a recycled operation for a new activation.
func (op *TaskOp) Reset(id uuid.UUID, ctxIndex int64, variant VariantID, args []byte) {
	op.id = id
	op.ctxIndex = ctxIndex
	op.variant = variant
	op.args = args
	op.requirements = nil
	op.inputFutures = nil
	op.barriers = nil
	op.grants = nil
	op.predicate = TruePredicate()
	op.defaultResult = nil
	op.homeNode = 0
	op.currentNode = 0
	op.targetNode = 0
	op.resources = ledger.New()
	op.engine = nil
	op.logger = nil
	op.state = StatePending
	op.stealable = false
	op.originMapped = false
	op.ownDone = false
	op.children = 0
	op.childrenComplete = 0
	op.childrenCommitted = 0
	op.completeEvent = event.New()
	op.commitEvent = event.New()
	op.completeHook = nil
	op.commitHook = nil
}

// UniqueID returns the operation's identity.
func (op *TaskOp) UniqueID() uuid.UUID {
	return op.id
}

// ContextIndex returns the operation's program-order index within its
// submitting context.
func (op *TaskOp) ContextIndex() int64 {
	return op.ctxIndex
}

// Requirements returns the operation's region requirements.
func (op *TaskOp) Requirements() []region.Requirement {
	return op.requirements
}

// EffectsEvent fires when all of the operation's region effects are
// visible, which is when the operation completes.
func (op *TaskOp) EffectsEvent() *event.Event {
	return op.completeEvent
}

// CommitEvent fires when the operation commits.
func (op *TaskOp) CommitEvent() *event.Event {
	return op.commitEvent
}

// Ledger returns the operation's resource ledger.
func (op *TaskOp) Ledger() *ledger.Ledger {
	return op.resources
}

// MergeLedger folds a completed child launch's ledger into this
// operation's own.
func (op *TaskOp) MergeLedger(child *ledger.Ledger) error {
	return op.resources.Merge(child)
}

// HomeNode is the address space the operation was submitted on.
func (op *TaskOp) HomeNode() wire.NodeID {
	return op.homeNode
}

// CurrentNode is the address space the operation currently lives on.
func (op *TaskOp) CurrentNode() wire.NodeID {
	return op.currentNode
}

// TargetNode is where placement decided the operation should run.
func (op *TaskOp) TargetNode() wire.NodeID {
	return op.targetNode
}

// State returns the operation's current lifecycle stage.
func (op *TaskOp) State() State {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.state
}

// Stealable reports whether the operation may still be stolen. It is true
// only strictly before mapping or decomposition and becomes permanently
// false afterward.
func (op *TaskOp) Stealable() bool {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.stealable
}

// OriginMapped reports whether mapping was finalized before migration.
func (op *TaskOp) OriginMapped() bool {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.originMapped
}

func (op *TaskOp) transit(next State) {
	op.mu.Lock()
	defer op.mu.Unlock()
	op.state.Transit(next)
}

// clearStealable permanently revokes steal eligibility. Mapping or
// decomposing an operation calls it before anything else.
func (op *TaskOp) clearStealable() {
	op.mu.Lock()
	defer op.mu.Unlock()
	op.stealable = false
}

// AddChild registers a sub-operation spawned by this operation. The child
// must report back through ChildComplete and ChildCommitted. Adding a
// child after completion panics; the two-condition protocol requires all
// children to be known before the own-done half fires.
func (op *TaskOp) AddChild() {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.state >= StateComplete {
		panic(fmt.Sprintf("task %v: child added after completion", op.id))
	}
	op.children++
}

// ChildComplete records one child's completion and fires the complete
// transition if this was the second of the two conditions.
func (op *TaskOp) ChildComplete() {
	op.mu.Lock()
	op.childrenComplete++
	if op.childrenComplete > op.children {
		op.mu.Unlock()
		panic(fmt.Sprintf("task %v: more child completions than children", op.id))
	}
	completed := op.tryCompleteLocked()
	committed := op.tryCommitLocked()
	op.mu.Unlock()
	op.fire(completed, committed)
}

// ChildCommitted records one child's commit and fires the commit
// transition if this was the last outstanding condition.
func (op *TaskOp) ChildCommitted() {
	op.mu.Lock()
	op.childrenCommitted++
	if op.childrenCommitted > op.children {
		op.mu.Unlock()
		panic(fmt.Sprintf("task %v: more child commits than children", op.id))
	}
	committed := op.tryCommitLocked()
	op.mu.Unlock()
	op.fire(false, committed)
}

// noteSelfComplete records that the operation's own terminal event has
// fired. Completion requires both this and all children complete;
// whichever condition arrives second triggers the transition, making the
// self-driven and child-driven paths commutative and idempotent.
func (op *TaskOp) noteSelfComplete() {
	op.mu.Lock()
	if op.ownDone {
		op.mu.Unlock()
		panic(fmt.Sprintf("task %v: own completion reported twice", op.id))
	}
	op.ownDone = true
	completed := op.tryCompleteLocked()
	committed := op.tryCommitLocked()
	op.mu.Unlock()
	op.fire(completed, committed)
}

func (op *TaskOp) tryCompleteLocked() bool {
	if op.state >= StateComplete {
		return false
	}
	if !op.ownDone || op.childrenComplete < op.children {
		return false
	}
	op.state.Transit(StateComplete)
	return true
}

func (op *TaskOp) tryCommitLocked() bool {
	if op.state != StateComplete {
		return false
	}
	if op.childrenCommitted < op.children {
		return false
	}
	op.state.Transit(StateCommitted)
	return true
}

// fire triggers transition events and owner hooks outside the mutex.
// Hooks are installed before the operation is scheduled, so reading them
// here without the lock is safe.
func (op *TaskOp) fire(completed, committed bool) {
	if completed {
		op.completeEvent.Trigger()
		if op.completeHook != nil {
			op.completeHook()
		}
	}
	if committed {
		op.commitEvent.Trigger()
		if op.commitHook != nil {
			op.commitHook()
		}
	}
}
