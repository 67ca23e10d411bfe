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

package policy

import (
	"github.com/gabrieltanase42/legion/runtime/region"
	"github.com/gabrieltanase42/legion/runtime/wire"
)

type (
	// DefaultPolicy keeps tasks local, splits index launches into evenly
	// sized blocks round-robined over the known nodes, and maps every
	// requirement to a fresh instance in the local memory. It is the
	// fallback when no application mapper is registered.
	DefaultPolicy struct {
		// Nodes are the address spaces slices may be placed on. Empty
		// means everything stays local.
		Nodes []wire.NodeID
		// SlicesPerNode bounds how many blocks each node receives.
		SlicesPerNode int
	}
)

var _ Policy = (*DefaultPolicy)(nil)

// NewDefaultPolicy returns a policy that keeps all work on the local node.
func NewDefaultPolicy() *DefaultPolicy {
	return &DefaultPolicy{SlicesPerNode: 1}
}

func (p *DefaultPolicy) SelectTaskOptions(task TaskInfo) (TaskOptions, error) {
	return TaskOptions{
		TargetNode:   task.CurrentNode,
		Stealable:    false,
		OriginMapped: false,
	}, nil
}

func (p *DefaultPolicy) SliceDomain(slice SliceInfo) ([]SliceDecision, error) {
	nodes := p.Nodes
	if len(nodes) == 0 {
		nodes = []wire.NodeID{slice.Task.CurrentNode}
	}
	slicesPerNode := p.SlicesPerNode
	if slicesPerNode <= 0 {
		slicesPerNode = 1
	}

	pieces := slice.Domain.SplitEven(len(nodes) * slicesPerNode)
	decisions := make([]SliceDecision, 0, len(pieces))
	for i, piece := range pieces {
		decisions = append(decisions, SliceDecision{
			Domain:     piece,
			TargetNode: nodes[i%len(nodes)],
			Recurse:    false,
			Stealable:  false,
		})
	}
	return decisions, nil
}

func (p *DefaultPolicy) MapTask(point PointInfo) (MapDecision, error) {
	refs := make([]region.InstanceRef, 0, len(point.Requirements))
	for _, req := range point.Requirements {
		inst := region.NewPhysicalInstance(region.MemoryID(point.Task.CurrentNode), req.Region, req.Fields)
		refs = append(refs, region.InstanceRef{Instance: inst})
	}
	return MapDecision{Instances: refs}, nil
}

func (p *DefaultPolicy) Speculate(TaskInfo) SpeculationDecision {
	return SpeculationDecision{Speculate: false}
}
