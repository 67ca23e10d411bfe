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
	"encoding/binary"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/gabrieltanase42/legion/common/dynamicconfig"
	"github.com/gabrieltanase42/legion/common/executor"
	"github.com/gabrieltanase42/legion/common/log"
	"github.com/gabrieltanase42/legion/common/metrics"
	"github.com/gabrieltanase42/legion/runtime/depgraph"
	"github.com/gabrieltanase42/legion/runtime/domain"
	"github.com/gabrieltanase42/legion/runtime/event"
	"github.com/gabrieltanase42/legion/runtime/future"
	"github.com/gabrieltanase42/legion/runtime/ledger"
	"github.com/gabrieltanase42/legion/runtime/policy"
	"github.com/gabrieltanase42/legion/runtime/region"
	"github.com/gabrieltanase42/legion/runtime/wire"
)

const (
	testSumOpID    region.ReductionOpID = 7001
	testConcatOpID region.ReductionOpID = 7002
)

type testSumOp struct{}

func (testSumOp) ID() region.ReductionOpID { return testSumOpID }
func (testSumOp) Identity() []byte         { return make([]byte, 8) }
func (testSumOp) Fold(into, value []byte) []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out,
		binary.LittleEndian.Uint64(into)+binary.LittleEndian.Uint64(value))
	return out
}

type testConcatOp struct{}

func (testConcatOp) ID() region.ReductionOpID { return testConcatOpID }
func (testConcatOp) Identity() []byte         { return nil }
func (testConcatOp) Fold(into, value []byte) []byte {
	return append(append([]byte(nil), into...), value...)
}

func init() {
	future.RegisterReductionOp(testSumOp{})
	future.RegisterReductionOp(testConcatOp{})
}

// testVariantSeq hands out process-unique variant ids; the variant
// registry is global and tests must not collide.
var testVariantSeq int64 = 1000

// testPolicy wraps the default policy with a per-test decomposition
// override.
type testPolicy struct {
	*policy.DefaultPolicy

	sliceDomain func(policy.SliceInfo) ([]policy.SliceDecision, error)
}

func (p *testPolicy) SliceDomain(slice policy.SliceInfo) ([]policy.SliceDecision, error) {
	if p.sliceDomain != nil {
		return p.sliceDomain(slice)
	}
	return p.DefaultPolicy.SliceDomain(slice)
}

// captureParent records child lifecycle notifications the way a
// submitting context would receive them.
type captureParent struct {
	mu        sync.Mutex
	children  int
	complete  int
	committed int
	merged    *ledger.Ledger

	committedCh chan struct{}
}

func newCaptureParent() *captureParent {
	return &captureParent{
		merged:      ledger.New(),
		committedCh: make(chan struct{}, 16),
	}
}

func (p *captureParent) AddChild() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.children++
}

func (p *captureParent) ChildComplete() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.complete++
}

func (p *captureParent) ChildCommitted() {
	p.mu.Lock()
	p.committed++
	p.mu.Unlock()
	p.committedCh <- struct{}{}
}

func (p *captureParent) MergeLedger(l *ledger.Ledger) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.merged.Merge(l)
}

func (p *captureParent) counts() (children, complete, committed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.children, p.complete, p.committed
}

type engineSuite struct {
	suite.Suite
	*require.Assertions

	scheduler executor.Scheduler
	pol       *testPolicy
	engine    *Engine
}

func TestEngineSuite(t *testing.T) {
	s := new(engineSuite)
	suite.Run(t, s)
}

func (s *engineSuite) SetupTest() {
	s.Assertions = require.New(s.T())

	logger := log.NewTestLogger(s.T())
	s.scheduler = executor.NewScheduler(4, 8, logger, metrics.NoopMetricsHandler)
	s.scheduler.Start()

	s.pol = &testPolicy{DefaultPolicy: policy.NewDefaultPolicy()}
	s.engine = NewEngine(
		wire.NodeID(1),
		s.pol,
		depgraph.NewInMemEngine(),
		nil,
		s.scheduler,
		dynamicconfig.NewCollection(dynamicconfig.NewStaticClient()),
		logger,
		metrics.NoopMetricsHandler,
	)
}

func (s *engineSuite) TearDownTest() {
	s.scheduler.Stop()
}

func (s *engineSuite) registerVariant(fn VariantFn) VariantID {
	id := VariantID(atomic.AddInt64(&testVariantSeq, 1))
	RegisterVariant(id, fn)
	return id
}

func (s *engineSuite) wait(ev *event.Event) {
	select {
	case <-ev.Done():
	case <-time.After(10 * time.Second):
		s.FailNow("timed out waiting for event")
	}
}

func (s *engineSuite) waitCommitted(parent *captureParent) {
	select {
	case <-parent.committedCh:
	case <-time.After(10 * time.Second):
		s.FailNow("timed out waiting for commit notification")
	}
}

func rwRequirement(tree region.TreeID) region.Requirement {
	r := region.LogicalRegion{Tree: tree, IndexSpace: 1, FieldSpace: 1}
	return region.Requirement{
		HandleType: region.SingularHandle,
		Region:     r,
		Parent:     r,
		Privilege:  region.ReadWrite,
		Coherence:  region.Exclusive,
		Fields:     []region.FieldID{1},
	}
}

func pointValue(p domain.Point) []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, uint64(p.Coords[0]))
	return out
}

func (s *engineSuite) TestSingleTaskExecutesAndReportsUpward() {
	created := region.LogicalRegion{Tree: 42, IndexSpace: 7, FieldSpace: 7}
	variant := s.registerVariant(func(ec *ExecContext) ([]byte, error) {
		s.NoError(ec.Ledger.RegisterCreatedRegion(created, true))
		return []byte("done"), nil
	})

	parent := newCaptureParent()
	f, err := s.engine.SubmitSingle(Launch{
		Variant:      variant,
		Requirements: []region.Requirement{rwRequirement(1)},
		Parent:       parent,
	})
	s.NoError(err)

	s.waitCommitted(parent)
	v, ok := f.Get()
	s.True(ok)
	s.Equal([]byte("done"), v)

	children, complete, committed := parent.counts()
	s.Equal(1, children)
	s.Equal(1, complete)
	s.Equal(1, committed)
	s.True(parent.merged.CreatedRegions()[created], "created region must surface in the parent ledger")
}

func (s *engineSuite) TestSingleTaskWaitsForInputFuture() {
	input := future.New()
	variant := s.registerVariant(func(ec *ExecContext) ([]byte, error) {
		v, ok := ec.Futures[0].Get()
		s.True(ok, "input future must be resolved before the body runs")
		return append([]byte("got:"), v...), nil
	})

	f, err := s.engine.SubmitSingle(Launch{
		Variant: variant,
		Futures: []*future.Future{input},
	})
	s.NoError(err)

	time.Sleep(50 * time.Millisecond)
	s.False(f.Ready().HasTriggered(), "task must not run before its input resolves")

	input.Set([]byte("x"))
	s.wait(f.Ready())
	v, _ := f.Get()
	s.Equal([]byte("got:x"), v)
}

func (s *engineSuite) TestWriterAfterWriterRunsInProgramOrder() {
	var mu sync.Mutex
	var order []string
	first := s.registerVariant(func(*ExecContext) ([]byte, error) {
		time.Sleep(100 * time.Millisecond)
		mu.Lock()
		order = append(order, "first")
		mu.Unlock()
		return nil, nil
	})
	second := s.registerVariant(func(*ExecContext) ([]byte, error) {
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
		return nil, nil
	})

	req := rwRequirement(1)
	_, err := s.engine.SubmitSingle(Launch{Variant: first, Requirements: []region.Requirement{req}})
	s.NoError(err)
	f2, err := s.engine.SubmitSingle(Launch{Variant: second, Requirements: []region.Requirement{req}})
	s.NoError(err)

	s.wait(f2.Ready())
	mu.Lock()
	defer mu.Unlock()
	s.Equal([]string{"first", "second"}, order)
}

func (s *engineSuite) TestSubmitSingleRejectsInterference() {
	variant := s.registerVariant(func(*ExecContext) ([]byte, error) { return nil, nil })
	_, err := s.engine.SubmitSingle(Launch{
		Variant:      variant,
		Requirements: []region.Requirement{rwRequirement(1), rwRequirement(1)},
	})
	s.Error(err)
	s.IsType(&InterferenceError{}, err)
}

func (s *engineSuite) TestSubmitSingleRejectsMalformedRequirement() {
	variant := s.registerVariant(func(*ExecContext) ([]byte, error) { return nil, nil })
	bad := rwRequirement(1)
	bad.Fields = nil
	_, err := s.engine.SubmitSingle(Launch{
		Variant:      variant,
		Requirements: []region.Requirement{bad},
	})
	s.Error(err)
	s.IsType(&PrivilegeError{}, err)
}

func (s *engineSuite) TestSubmitIndexRejectsEmptyDomain() {
	variant := s.registerVariant(func(*ExecContext) ([]byte, error) { return nil, nil })
	_, _, err := s.engine.SubmitIndex(domain.NewRect1D(4, 3), Launch{Variant: variant})
	s.Error(err)
}

func (s *engineSuite) TestIndexLaunchPerPointFutures() {
	variant := s.registerVariant(func(ec *ExecContext) ([]byte, error) {
		return pointValue(ec.Point), nil
	})

	parent := newCaptureParent()
	dom := domain.NewRect1D(0, 7)
	fm, red, err := s.engine.SubmitIndex(dom, Launch{Variant: variant, Parent: parent})
	s.NoError(err)
	s.Nil(red)

	s.wait(fm.Complete())
	for _, p := range dom.Points() {
		v, ok := fm.Get(p).Get()
		s.True(ok)
		s.Equal(pointValue(p), v)
	}

	s.waitCommitted(parent)
	s.engine.mu.Lock()
	live := len(s.engine.indexOps)
	s.engine.mu.Unlock()
	s.Zero(live, "committed launch must leave the index table")
}

func (s *engineSuite) TestIndexLaunchRecursiveDecomposition() {
	// Two levels of recursion: 8 points split 2-then-2 into four terminal
	// slices of two points, denominators 1/4 each. The launch completes
	// only if the reciprocal sum and point counts line up exactly.
	s.pol.sliceDomain = func(si policy.SliceInfo) ([]policy.SliceDecision, error) {
		pieces := si.Domain.SplitEven(2)
		out := make([]policy.SliceDecision, 0, len(pieces))
		for _, piece := range pieces {
			out = append(out, policy.SliceDecision{
				Domain:     piece,
				TargetNode: si.Task.CurrentNode,
				Recurse:    piece.Volume() > 2,
			})
		}
		return out, nil
	}

	variant := s.registerVariant(func(ec *ExecContext) ([]byte, error) {
		return pointValue(ec.Point), nil
	})

	parent := newCaptureParent()
	dom := domain.NewRect1D(0, 7)
	fm, _, err := s.engine.SubmitIndex(dom, Launch{Variant: variant, Parent: parent})
	s.NoError(err)

	s.wait(fm.Complete())
	for _, p := range dom.Points() {
		v, ok := fm.Get(p).Get()
		s.True(ok)
		s.Equal(pointValue(p), v)
	}
	s.waitCommitted(parent)
}

func (s *engineSuite) TestIndexLaunchEagerReductionSum() {
	variant := s.registerVariant(func(ec *ExecContext) ([]byte, error) {
		out := make([]byte, 8)
		binary.LittleEndian.PutUint64(out, uint64(ec.Point.Coords[0]+1))
		return out, nil
	})

	dom := domain.NewRect1D(0, 7)
	fm, red, err := s.engine.SubmitIndex(dom, Launch{Variant: variant, Redop: testSumOpID})
	s.NoError(err)
	s.Nil(fm)

	s.wait(red.Ready())
	v, _ := red.Get()
	s.Equal(uint64(36), binary.LittleEndian.Uint64(v))
}

func (s *engineSuite) TestIndexLaunchDeterministicFoldOrder() {
	// Points execute concurrently in arbitrary order; a deterministic
	// reduction must still fold contributions in point order.
	variant := s.registerVariant(func(ec *ExecContext) ([]byte, error) {
		return []byte{byte('a' + ec.Point.Coords[0])}, nil
	})

	dom := domain.NewRect1D(0, 7)
	_, red, err := s.engine.SubmitIndex(dom, Launch{
		Variant:       variant,
		Redop:         testConcatOpID,
		Deterministic: true,
	})
	s.NoError(err)

	s.wait(red.Ready())
	v, _ := red.Get()
	s.Equal("abcdefgh", string(v))
}

func (s *engineSuite) TestIndexLaunchArgMapOverridesArgs() {
	variant := s.registerVariant(func(ec *ExecContext) ([]byte, error) {
		return ec.Args, nil
	})

	dom := domain.NewRect1D(0, 2)
	special := domain.NewPoint(1)
	fm, _, err := s.engine.SubmitIndex(dom, Launch{
		Variant: variant,
		Args:    []byte("shared"),
		ArgMap:  map[domain.Point][]byte{special: []byte("override")},
	})
	s.NoError(err)

	s.wait(fm.Complete())
	for _, p := range dom.Points() {
		v, _ := fm.Get(p).Get()
		if p == special {
			s.Equal([]byte("override"), v)
		} else {
			s.Equal([]byte("shared"), v)
		}
	}
}

func (s *engineSuite) TestPredicateFalseSingleUsesDeferredDefault() {
	var executed int64
	variant := s.registerVariant(func(*ExecContext) ([]byte, error) {
		atomic.AddInt64(&executed, 1)
		return nil, nil
	})

	pred := NewPredicate()
	def := future.New()
	parent := newCaptureParent()
	f, err := s.engine.SubmitSingle(Launch{
		Variant:       variant,
		Predicate:     pred,
		DefaultResult: def,
		Parent:        parent,
	})
	s.NoError(err)

	pred.Resolve(false)
	time.Sleep(50 * time.Millisecond)
	s.False(f.Ready().HasTriggered(), "completion must wait for the default result")

	def.Set([]byte("fallback"))
	s.wait(f.Ready())
	v, _ := f.Get()
	s.Equal([]byte("fallback"), v)
	s.waitCommitted(parent)
	s.Zero(atomic.LoadInt64(&executed), "body must not run when the guard is false")
}

func (s *engineSuite) TestPredicateFalseIndexFillsEveryPoint() {
	var executed int64
	variant := s.registerVariant(func(*ExecContext) ([]byte, error) {
		atomic.AddInt64(&executed, 1)
		return nil, nil
	})

	pred := NewPredicate()
	pred.Resolve(false)
	parent := newCaptureParent()
	dom := domain.NewRect1D(0, 3)
	fm, _, err := s.engine.SubmitIndex(dom, Launch{
		Variant:       variant,
		Predicate:     pred,
		DefaultResult: future.Completed([]byte("skip")),
		Parent:        parent,
	})
	s.NoError(err)

	s.wait(fm.Complete())
	for _, p := range dom.Points() {
		v, _ := fm.Get(p).Get()
		s.Equal([]byte("skip"), v)
	}
	s.waitCommitted(parent)
	s.Zero(atomic.LoadInt64(&executed), "body must not run when the guard is false")
}

func (s *engineSuite) TestIndexLaunchLedgersMergeIntoParent() {
	variant := s.registerVariant(func(ec *ExecContext) ([]byte, error) {
		r := region.LogicalRegion{
			Tree:       region.TreeID(100 + ec.Point.Coords[0]),
			IndexSpace: 1,
			FieldSpace: 1,
		}
		return nil, ec.Ledger.RegisterCreatedRegion(r, true)
	})

	parent := newCaptureParent()
	dom := domain.NewRect1D(0, 3)
	fm, _, err := s.engine.SubmitIndex(dom, Launch{Variant: variant, Parent: parent})
	s.NoError(err)

	s.wait(fm.Complete())
	s.waitCommitted(parent)

	created := parent.merged.CreatedRegions()
	s.Len(created, 4, "every point's created region must reach the parent")
	for _, p := range dom.Points() {
		r := region.LogicalRegion{
			Tree:       region.TreeID(100 + p.Coords[0]),
			IndexSpace: 1,
			FieldSpace: 1,
		}
		s.Contains(created, r)
	}
}

// stealCandidate builds a point parked in the placed, stealable state,
// the shape a thief finds in the steal pool.
func (s *engineSuite) stealCandidate(l Launch) *PointTask {
	pt := s.engine.acquirePoint()
	pt.init(s.engine, 0, l)
	pt.precondition = event.Triggered()
	pt.mu.Lock()
	pt.state = StatePlaced
	pt.stealable = true
	pt.mu.Unlock()
	return pt
}

func (s *engineSuite) TestStealGuardRequiresSatisfiedPreconditions() {
	variant := s.registerVariant(func(*ExecContext) ([]byte, error) {
		return nil, nil
	})

	b := event.NewBarrier(1)
	pt := s.stealCandidate(Launch{Variant: variant, Barriers: []*event.Barrier{b}})
	_, _, ok := pt.TrySteal()
	s.False(ok, "a task with an unarrived barrier must stay put")
	b.Arrive()
	_, _, ok = pt.TrySteal()
	s.True(ok)

	g := event.NewGrant()
	gp := s.stealCandidate(Launch{Variant: variant, Grants: []*event.Grant{g}})
	_, _, ok = gp.TrySteal()
	s.False(ok, "grant-holding tasks never move; a thief cannot acquire for the origin")

	pre := event.New()
	dp := s.stealCandidate(Launch{Variant: variant})
	dp.precondition = pre
	_, _, ok = dp.TrySteal()
	s.False(ok, "dependence predecessors must complete before the task can move")
	pre.Trigger()
	_, _, ok = dp.TrySteal()
	s.True(ok)
}
