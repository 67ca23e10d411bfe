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
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/gabrieltanase42/legion/runtime/domain"
	"github.com/gabrieltanase42/legion/runtime/region"
	"github.com/gabrieltanase42/legion/runtime/wire"
)

type policySuite struct {
	suite.Suite
	*require.Assertions

	taskID uuid.UUID
}

func TestPolicySuite(t *testing.T) {
	s := new(policySuite)
	suite.Run(t, s)
}

func (s *policySuite) SetupTest() {
	s.Assertions = require.New(s.T())
	s.taskID = uuid.New()
}

func (s *policySuite) TestValidateSliceDecisions_Exact() {
	parent := domain.NewRect1D(0, 7)
	decisions := []SliceDecision{
		{Domain: domain.NewRect1D(0, 3)},
		{Domain: domain.NewRect1D(4, 7)},
	}
	s.NoError(ValidateSliceDecisions(s.taskID, parent, decisions, true))
}

func (s *policySuite) TestValidateSliceDecisions_EmptyList() {
	err := ValidateSliceDecisions(s.taskID, domain.NewRect1D(0, 7), nil, false)
	s.Error(err)
	s.IsType(&ViolationError{}, err)
}

func (s *policySuite) TestValidateSliceDecisions_EmptySlice() {
	decisions := []SliceDecision{
		{Domain: domain.NewRect1D(0, 7)},
		{Domain: domain.NewRect1D(5, 4)},
	}
	s.Error(ValidateSliceDecisions(s.taskID, domain.NewRect1D(0, 7), decisions, false))
}

func (s *policySuite) TestValidateSliceDecisions_DimensionMismatch() {
	decisions := []SliceDecision{
		{Domain: domain.NewRect(domain.NewPoint(0, 0), domain.NewPoint(3, 1))},
	}
	s.Error(ValidateSliceDecisions(s.taskID, domain.NewRect1D(0, 7), decisions, false))
}

func (s *policySuite) TestValidateSliceDecisions_VolumeMismatch() {
	decisions := []SliceDecision{
		{Domain: domain.NewRect1D(0, 3)},
		{Domain: domain.NewRect1D(4, 6)},
	}
	s.Error(ValidateSliceDecisions(s.taskID, domain.NewRect1D(0, 7), decisions, false))
}

func (s *policySuite) TestValidateSliceDecisions_OverlapOnlyWhenVerifying() {
	// volumes sum correctly but the pieces overlap; caught only by the
	// optional disjointness verification
	decisions := []SliceDecision{
		{Domain: domain.NewRect1D(0, 4)},
		{Domain: domain.NewRect1D(4, 6)},
	}
	s.NoError(ValidateSliceDecisions(s.taskID, domain.NewRect1D(0, 7), decisions, false))
	s.Error(ValidateSliceDecisions(s.taskID, domain.NewRect1D(0, 7), decisions, true))
}

func (s *policySuite) TestValidateSliceDecisions_EscapesDomain() {
	decisions := []SliceDecision{
		{Domain: domain.NewRect1D(0, 8)},
	}
	s.Error(ValidateSliceDecisions(s.taskID, domain.NewRect1D(0, 7), decisions, false))
}

func requirement() region.Requirement {
	r := region.LogicalRegion{Tree: 1, IndexSpace: 1, FieldSpace: 1}
	return region.Requirement{
		HandleType: region.SingularHandle,
		Region:     r,
		Parent:     r,
		Privilege:  region.ReadWrite,
		Coherence:  region.Exclusive,
		Fields:     []region.FieldID{1, 2},
	}
}

func (s *policySuite) TestValidateMapDecision() {
	req := requirement()
	inst := region.NewPhysicalInstance(1, req.Region, req.Fields)

	s.NoError(ValidateMapDecision(s.taskID, []region.Requirement{req}, MapDecision{
		Instances: []region.InstanceRef{{Instance: inst}},
	}))

	// count mismatch
	s.Error(ValidateMapDecision(s.taskID, []region.Requirement{req}, MapDecision{}))

	// nil instance without virtual flag
	s.Error(ValidateMapDecision(s.taskID, []region.Requirement{req}, MapDecision{
		Instances: []region.InstanceRef{{}},
	}))

	// virtual mapping is always acceptable
	s.NoError(ValidateMapDecision(s.taskID, []region.Requirement{req}, MapDecision{
		Instances: []region.InstanceRef{region.VirtualRef()},
	}))

	// wrong region tree
	wrongTree := region.NewPhysicalInstance(1, region.LogicalRegion{Tree: 9, IndexSpace: 1, FieldSpace: 1}, req.Fields)
	s.Error(ValidateMapDecision(s.taskID, []region.Requirement{req}, MapDecision{
		Instances: []region.InstanceRef{{Instance: wrongTree}},
	}))

	// missing fields
	partial := region.NewPhysicalInstance(1, req.Region, []region.FieldID{1})
	s.Error(ValidateMapDecision(s.taskID, []region.Requirement{req}, MapDecision{
		Instances: []region.InstanceRef{{Instance: partial}},
	}))
}

func (s *policySuite) TestValidateMapDecision_ReductionInstance() {
	req := requirement()
	req.Privilege = region.Reduce
	req.Redop = 7

	other := region.NewPhysicalInstance(1, region.LogicalRegion{Tree: 1, IndexSpace: 2, FieldSpace: 1}, req.Fields)
	err := ValidateMapDecision(s.taskID, []region.Requirement{req}, MapDecision{
		Instances: []region.InstanceRef{{Instance: other}},
	})
	s.Error(err)

	ok := region.NewPhysicalInstance(1, req.Region, req.Fields)
	s.NoError(ValidateMapDecision(s.taskID, []region.Requirement{req}, MapDecision{
		Instances: []region.InstanceRef{{Instance: ok}},
	}))
}

func (s *policySuite) TestDefaultPolicySliceCoversDomain() {
	p := &DefaultPolicy{Nodes: []wire.NodeID{0, 1, 2}, SlicesPerNode: 2}
	dom := domain.NewRect1D(0, 63)
	decisions, err := p.SliceDomain(SliceInfo{
		Task:   TaskInfo{ID: s.taskID, LaunchDomain: dom},
		Domain: dom,
	})
	s.NoError(err)
	s.NoError(ValidateSliceDecisions(s.taskID, dom, decisions, true))

	seen := make(map[wire.NodeID]int)
	for _, d := range decisions {
		seen[d.TargetNode]++
	}
	s.Len(seen, 3)
}

func (s *policySuite) TestDefaultPolicyMapTask() {
	p := NewDefaultPolicy()
	req := requirement()
	decision, err := p.MapTask(PointInfo{
		Task:         TaskInfo{ID: s.taskID},
		Point:        domain.NewPoint(0),
		Requirements: []region.Requirement{req},
	})
	s.NoError(err)
	s.NoError(ValidateMapDecision(s.taskID, []region.Requirement{req}, decision))
}
