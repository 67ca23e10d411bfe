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

package tests

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/gabrieltanase42/legion/common/config"
	"github.com/gabrieltanase42/legion/common/log"
	"github.com/gabrieltanase42/legion/common/metrics"
	"github.com/gabrieltanase42/legion/runtime"
	"github.com/gabrieltanase42/legion/runtime/domain"
	"github.com/gabrieltanase42/legion/runtime/event"
	"github.com/gabrieltanase42/legion/runtime/future"
	"github.com/gabrieltanase42/legion/runtime/policy"
	"github.com/gabrieltanase42/legion/runtime/region"
	"github.com/gabrieltanase42/legion/runtime/task"
	"github.com/gabrieltanase42/legion/runtime/transport"
	"github.com/gabrieltanase42/legion/runtime/wire"
)

const clusterSumOpID region.ReductionOpID = 7101

type clusterSumOp struct{}

func (clusterSumOp) ID() region.ReductionOpID { return clusterSumOpID }
func (clusterSumOp) Identity() []byte         { return make([]byte, 8) }
func (clusterSumOp) Fold(into, value []byte) []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out,
		binary.LittleEndian.Uint64(into)+binary.LittleEndian.Uint64(value))
	return out
}

func init() {
	future.RegisterReductionOp(clusterSumOp{})
}

var clusterVariantSeq int64 = 3000

// nodePolicy wraps the default policy with per-node overrides and an
// optional gate that stalls mapping, used to hold work in the steal pool.
type nodePolicy struct {
	*policy.DefaultPolicy

	selectTaskOptions func(policy.TaskInfo) (policy.TaskOptions, error)
	sliceDomain       func(policy.SliceInfo) ([]policy.SliceDecision, error)
	mapGate           chan struct{}
}

func (p *nodePolicy) SelectTaskOptions(t policy.TaskInfo) (policy.TaskOptions, error) {
	if p.selectTaskOptions != nil {
		return p.selectTaskOptions(t)
	}
	return p.DefaultPolicy.SelectTaskOptions(t)
}

func (p *nodePolicy) SliceDomain(si policy.SliceInfo) ([]policy.SliceDecision, error) {
	if p.sliceDomain != nil {
		return p.sliceDomain(si)
	}
	return p.DefaultPolicy.SliceDomain(si)
}

func (p *nodePolicy) MapTask(pi policy.PointInfo) (policy.MapDecision, error) {
	if p.mapGate != nil {
		<-p.mapGate
	}
	return p.DefaultPolicy.MapTask(pi)
}

// execRecorder tracks which address space each task body ran on, keyed by
// the task's argument bytes.
type execRecorder struct {
	mu    sync.Mutex
	nodes map[string]wire.NodeID
}

func newExecRecorder() *execRecorder {
	return &execRecorder{nodes: make(map[string]wire.NodeID)}
}

func (r *execRecorder) record(key string, node wire.NodeID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[key] = node
}

func (r *execRecorder) node(key string) (wire.NodeID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[key]
	return n, ok
}

func (r *execRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.nodes)
}

type DistributedTestSuite struct {
	suite.Suite
	*require.Assertions

	bus      *transport.Bus
	runtimes map[wire.NodeID]*runtime.Runtime
}

func TestDistributedTestSuite(t *testing.T) {
	suite.Run(t, new(DistributedTestSuite))
}

func (s *DistributedTestSuite) SetupTest() {
	s.Assertions = require.New(s.T())
	s.bus = nil
	s.runtimes = nil
}

func (s *DistributedTestSuite) TearDownTest() {
	for _, rt := range s.runtimes {
		rt.Stop()
	}
	if s.bus != nil {
		s.bus.Close()
	}
}

// startCluster brings up one runtime per policy on a shared bus. tweak,
// when non-nil, adjusts each node's config before construction.
func (s *DistributedTestSuite) startCluster(
	pols map[wire.NodeID]policy.Policy,
	tweak func(node wire.NodeID, cfg *config.Config),
) {
	s.bus = transport.NewBus()
	s.runtimes = make(map[wire.NodeID]*runtime.Runtime, len(pols))
	for node, pol := range pols {
		cfg := config.Default()
		cfg.AddressSpace = uint32(node)
		if tweak != nil {
			tweak(node, cfg)
		}
		rt, err := runtime.NewRuntime(cfg, s.bus, pol, log.NewTestLogger(s.T()), metrics.NoopMetricsHandler)
		s.NoError(err)
		rt.Start()
		s.runtimes[node] = rt
	}
}

func (s *DistributedTestSuite) registerVariant(fn task.VariantFn) task.VariantID {
	id := task.VariantID(atomic.AddInt64(&clusterVariantSeq, 1))
	task.RegisterVariant(id, fn)
	return id
}

func (s *DistributedTestSuite) drain(c *runtime.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.NoError(c.Drain(ctx))
}

func (s *DistributedTestSuite) TestTaskMigratesToTargetNode() {
	created := region.LogicalRegion{Tree: 9, IndexSpace: 9, FieldSpace: 9}
	rec := newExecRecorder()
	variant := s.registerVariant(func(ec *task.ExecContext) ([]byte, error) {
		rec.record(string(ec.Args), ec.Node)
		if err := ec.Ledger.RegisterCreatedRegion(created, true); err != nil {
			return nil, err
		}
		return []byte("remote result"), nil
	})

	s.startCluster(map[wire.NodeID]policy.Policy{
		1: &nodePolicy{
			DefaultPolicy: policy.NewDefaultPolicy(),
			selectTaskOptions: func(policy.TaskInfo) (policy.TaskOptions, error) {
				return policy.TaskOptions{TargetNode: 2}, nil
			},
		},
		2: policy.NewDefaultPolicy(),
	}, nil)

	c := s.runtimes[1].NewContext()
	f, err := c.ExecuteTask(task.Launch{Variant: variant, Args: []byte("t1")})
	s.NoError(err)

	s.drain(c)
	v, ok := f.Get()
	s.True(ok, "origin must observe the migrated task's result")
	s.Equal([]byte("remote result"), v)

	node, ok := rec.node("t1")
	s.True(ok)
	s.Equal(wire.NodeID(2), node)
	s.Contains(c.Ledger().CreatedRegions(), created,
		"the remote ledger must flow back through the origin into the context")
}

func (s *DistributedTestSuite) TestMigratedTaskWaitsForWriterPredecessor() {
	var (
		mu    sync.Mutex
		order []string
	)
	record := func(step string) {
		mu.Lock()
		order = append(order, step)
		mu.Unlock()
	}

	slow := s.registerVariant(func(*task.ExecContext) ([]byte, error) {
		time.Sleep(100 * time.Millisecond)
		record("first-writer")
		return nil, nil
	})
	fast := s.registerVariant(func(*task.ExecContext) ([]byte, error) {
		record("second-writer")
		return nil, nil
	})

	s.startCluster(map[wire.NodeID]policy.Policy{
		1: &nodePolicy{
			DefaultPolicy: policy.NewDefaultPolicy(),
			selectTaskOptions: func(t policy.TaskInfo) (policy.TaskOptions, error) {
				if t.VariantID == int64(fast) {
					return policy.TaskOptions{TargetNode: 2}, nil
				}
				return policy.TaskOptions{TargetNode: t.CurrentNode}, nil
			},
		},
		2: policy.NewDefaultPolicy(),
	}, nil)

	req := rwRequirement(3)
	c := s.runtimes[1].NewContext()
	_, err := c.ExecuteTask(task.Launch{Variant: slow, Requirements: []region.Requirement{req}})
	s.NoError(err)
	_, err = c.ExecuteTask(task.Launch{Variant: fast, Requirements: []region.Requirement{req}})
	s.NoError(err)

	s.drain(c)
	mu.Lock()
	defer mu.Unlock()
	s.Equal([]string{"first-writer", "second-writer"}, order,
		"a migrated writer must not run before its conflicting predecessor")
}

func (s *DistributedTestSuite) TestMigratedTaskWaitsForBarrier() {
	rec := newExecRecorder()
	variant := s.registerVariant(func(ec *task.ExecContext) ([]byte, error) {
		rec.record(string(ec.Args), ec.Node)
		return nil, nil
	})

	s.startCluster(map[wire.NodeID]policy.Policy{
		1: &nodePolicy{
			DefaultPolicy: policy.NewDefaultPolicy(),
			selectTaskOptions: func(policy.TaskInfo) (policy.TaskOptions, error) {
				return policy.TaskOptions{TargetNode: 2}, nil
			},
		},
		2: policy.NewDefaultPolicy(),
	}, nil)

	b := event.NewBarrier(1)
	c := s.runtimes[1].NewContext()
	_, err := c.ExecuteTask(task.Launch{
		Variant:  variant,
		Args:     []byte("gated"),
		Barriers: []*event.Barrier{b},
	})
	s.NoError(err)

	time.Sleep(50 * time.Millisecond)
	s.Zero(rec.count(), "the task must not leave the origin before the barrier fires")

	b.Arrive()
	s.drain(c)
	node, ok := rec.node("gated")
	s.True(ok)
	s.Equal(wire.NodeID(2), node)
}

func (s *DistributedTestSuite) TestOriginMappedTaskExecutesRemotely() {
	rec := newExecRecorder()
	variant := s.registerVariant(func(ec *task.ExecContext) ([]byte, error) {
		rec.record(string(ec.Args), ec.Node)
		return ec.Args, nil
	})

	s.startCluster(map[wire.NodeID]policy.Policy{
		1: &nodePolicy{
			DefaultPolicy: policy.NewDefaultPolicy(),
			selectTaskOptions: func(policy.TaskInfo) (policy.TaskOptions, error) {
				return policy.TaskOptions{TargetNode: 2, OriginMapped: true}, nil
			},
		},
		2: policy.NewDefaultPolicy(),
	}, nil)

	c := s.runtimes[1].NewContext()
	f, err := c.ExecuteTask(task.Launch{
		Variant:      variant,
		Args:         []byte("om"),
		Requirements: []region.Requirement{rwRequirement(1)},
	})
	s.NoError(err)

	s.drain(c)
	v, _ := f.Get()
	s.Equal([]byte("om"), v)
	node, _ := rec.node("om")
	s.Equal(wire.NodeID(2), node)
}

func (s *DistributedTestSuite) TestIndexSpreadsAcrossNodes() {
	variant := s.registerVariant(func(ec *task.ExecContext) ([]byte, error) {
		r := region.LogicalRegion{
			Tree:       region.TreeID(200 + ec.Point.Coords[0]),
			IndexSpace: 1,
			FieldSpace: 1,
		}
		if err := ec.Ledger.RegisterCreatedRegion(r, true); err != nil {
			return nil, err
		}
		return []byte{byte(ec.Node)}, nil
	})

	s.startCluster(map[wire.NodeID]policy.Policy{
		1: &policy.DefaultPolicy{Nodes: []wire.NodeID{1, 2}, SlicesPerNode: 1},
		2: policy.NewDefaultPolicy(),
	}, nil)

	c := s.runtimes[1].NewContext()
	dom := domain.NewRect1D(0, 7)
	fm, _, err := c.ExecuteIndex(dom, task.Launch{Variant: variant})
	s.NoError(err)

	s.drain(c)
	for _, p := range dom.Points() {
		v, ok := fm.Get(p).Get()
		s.True(ok)
		if p.Coords[0] < 4 {
			s.Equal([]byte{1}, v, "point %v should run on node 1", p)
		} else {
			s.Equal([]byte{2}, v, "point %v should run on node 2", p)
		}
	}
	s.Len(c.Ledger().CreatedRegions(), 8,
		"every point's created region must converge on the origin context")
}

func (s *DistributedTestSuite) TestIndexReslicesOnRemoteNode() {
	rec := newExecRecorder()
	variant := s.registerVariant(func(ec *task.ExecContext) ([]byte, error) {
		rec.record(ec.Point.String(), ec.Node)
		return []byte{byte(ec.Point.Coords[0])}, nil
	})

	s.startCluster(map[wire.NodeID]policy.Policy{
		// node 1 hands the whole launch to node 2 and never slices itself
		1: &nodePolicy{
			DefaultPolicy: policy.NewDefaultPolicy(),
			selectTaskOptions: func(policy.TaskInfo) (policy.TaskOptions, error) {
				return policy.TaskOptions{TargetNode: 2}, nil
			},
		},
		// node 2 re-slices the arriving launch into two terminal slices
		2: &nodePolicy{
			DefaultPolicy: policy.NewDefaultPolicy(),
			sliceDomain: func(si policy.SliceInfo) ([]policy.SliceDecision, error) {
				pieces := si.Domain.SplitEven(2)
				out := make([]policy.SliceDecision, 0, len(pieces))
				for _, piece := range pieces {
					out = append(out, policy.SliceDecision{Domain: piece, TargetNode: si.Task.CurrentNode})
				}
				return out, nil
			},
		},
	}, nil)

	c := s.runtimes[1].NewContext()
	dom := domain.NewRect1D(0, 7)
	fm, _, err := c.ExecuteIndex(dom, task.Launch{Variant: variant})
	s.NoError(err)

	s.drain(c)
	for _, p := range dom.Points() {
		v, ok := fm.Get(p).Get()
		s.True(ok)
		s.Equal([]byte{byte(p.Coords[0])}, v)
		node, _ := rec.node(p.String())
		s.Equal(wire.NodeID(2), node, "every point must run on the re-slicing node")
	}
}

func (s *DistributedTestSuite) TestDistributedReductionSum() {
	variant := s.registerVariant(func(ec *task.ExecContext) ([]byte, error) {
		out := make([]byte, 8)
		binary.LittleEndian.PutUint64(out, uint64(ec.Point.Coords[0]+1))
		return out, nil
	})

	s.startCluster(map[wire.NodeID]policy.Policy{
		1: &policy.DefaultPolicy{Nodes: []wire.NodeID{1, 2}, SlicesPerNode: 1},
		2: policy.NewDefaultPolicy(),
	}, nil)

	c := s.runtimes[1].NewContext()
	_, red, err := c.ExecuteIndex(domain.NewRect1D(0, 7), task.Launch{
		Variant: variant,
		Redop:   clusterSumOpID,
	})
	s.NoError(err)

	s.drain(c)
	v, ok := red.Get()
	s.True(ok)
	s.Equal(uint64(36), binary.LittleEndian.Uint64(v))
}

func (s *DistributedTestSuite) TestStealRelievesBusyNode() {
	rec := newExecRecorder()
	variant := s.registerVariant(func(ec *task.ExecContext) ([]byte, error) {
		rec.record(string(ec.Args), ec.Node)
		return ec.Args, nil
	})

	gate := make(chan struct{})
	s.startCluster(map[wire.NodeID]policy.Policy{
		1: &nodePolicy{
			DefaultPolicy: policy.NewDefaultPolicy(),
			selectTaskOptions: func(t policy.TaskInfo) (policy.TaskOptions, error) {
				return policy.TaskOptions{TargetNode: t.CurrentNode, Stealable: true}, nil
			},
			mapGate: gate,
		},
		2: policy.NewDefaultPolicy(),
	}, func(node wire.NodeID, cfg *config.Config) {
		if node == 1 {
			// a single lane so parked work stays parked while the first
			// task is stuck in mapping
			cfg.Executor.WorkerCount = 1
			cfg.Executor.LaneCount = 1
		}
	})

	c := s.runtimes[1].NewContext()
	_, err := c.ExecuteTask(task.Launch{Variant: variant, Args: []byte("a")})
	s.NoError(err)
	_, err = c.ExecuteTask(task.Launch{Variant: variant, Args: []byte("b")})
	s.NoError(err)

	s.Eventually(func() bool {
		return s.runtimes[1].StealPoolSize() >= 1
	}, 5*time.Second, 5*time.Millisecond, "stealable work must park on the busy node")

	s.NoError(s.runtimes[2].RequestSteal(1))
	s.Eventually(func() bool {
		return rec.count() >= 1
	}, 5*time.Second, 5*time.Millisecond, "the thief must run the stolen task")

	close(gate)
	s.drain(c)

	nodeA, okA := rec.node("a")
	nodeB, okB := rec.node("b")
	s.True(okA)
	s.True(okB)
	s.ElementsMatch([]wire.NodeID{1, 2}, []wire.NodeID{nodeA, nodeB},
		"one task stays home, the stolen one runs on the thief")
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
