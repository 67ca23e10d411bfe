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

package region

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/gabrieltanase42/legion/runtime/domain"
)

type regionSuite struct {
	suite.Suite
	*require.Assertions
}

func TestRegionSuite(t *testing.T) {
	s := new(regionSuite)
	suite.Run(t, s)
}

func (s *regionSuite) SetupTest() {
	s.Assertions = require.New(s.T())
}

func singular(tree TreeID, is IndexSpaceID, priv Privilege, fields ...FieldID) Requirement {
	r := LogicalRegion{Tree: tree, IndexSpace: is, FieldSpace: 1}
	return Requirement{
		HandleType: SingularHandle,
		Region:     r,
		Parent:     r,
		Privilege:  priv,
		Coherence:  Exclusive,
		Fields:     fields,
	}
}

func (s *regionSuite) TestValidate() {
	req := singular(1, 1, ReadWrite, 1, 2)
	s.NoError(req.Validate())

	noFields := singular(1, 1, ReadWrite)
	s.Error(noFields.Validate())

	dup := singular(1, 1, ReadOnly, 1, 1)
	s.Error(dup.Validate())

	reduceNoOp := singular(1, 1, Reduce, 1)
	s.Error(reduceNoOp.Validate())
	reduceNoOp.Redop = 7
	s.NoError(reduceNoOp.Validate())

	wrongTree := singular(1, 1, ReadOnly, 1)
	wrongTree.Parent.Tree = 2
	s.Error(wrongTree.Validate())
}

func (s *regionSuite) TestInterference() {
	a := singular(1, 1, ReadWrite, 1)
	b := singular(1, 1, ReadOnly, 1)
	s.True(a.Interferes(&b))

	// both readers never interfere
	c := singular(1, 1, ReadOnly, 1)
	s.False(b.Interferes(&c))

	// disjoint fields never interfere
	d := singular(1, 1, ReadWrite, 2)
	s.False(a.Interferes(&d))

	// different regions never interfere
	e := singular(1, 2, ReadWrite, 1)
	s.False(a.Interferes(&e))

	// simultaneous coherence on both sides tolerates sharing
	f := singular(1, 1, ReadWrite, 1)
	f.Coherence = Simultaneous
	g := singular(1, 1, ReadWrite, 1)
	g.Coherence = Simultaneous
	s.False(f.Interferes(&g))

	// projected requirements are decided per point, not statically
	h := singular(1, 1, ReadWrite, 1)
	h.HandleType = PartitionProjectionHandle
	s.False(h.Interferes(&a))
}

func (s *regionSuite) TestProjectSingularPassesThrough() {
	req := singular(1, 1, ReadOnly, 1)
	got, err := Project(req, domain.NewPoint(3), domain.NewRect1D(0, 7))
	s.NoError(err)
	s.Equal(req, got)
}

func (s *regionSuite) TestProjectPerPointRegionsDiffer() {
	req := Requirement{
		HandleType: PartitionProjectionHandle,
		Partition:  LogicalPartition{Tree: 1, Partition: 5, FieldSpace: 1},
		Projection: IdentityProjection,
		Privilege:  ReadWrite,
		Coherence:  Exclusive,
		Fields:     []FieldID{1},
	}
	launch := domain.NewRect1D(0, 7)

	p0, err := Project(req, domain.NewPoint(0), launch)
	s.NoError(err)
	p1, err := Project(req, domain.NewPoint(1), launch)
	s.NoError(err)

	s.Equal(SingularHandle, p0.HandleType)
	s.Equal(SingularHandle, p1.HandleType)
	s.NotEqual(p0.Region, p1.Region)
	s.Equal(TreeID(1), p0.Region.Tree)
}

func (s *regionSuite) TestProjectUnknownProjection() {
	req := Requirement{
		HandleType: PartitionProjectionHandle,
		Projection: 9999,
		Fields:     []FieldID{1},
	}
	_, err := Project(req, domain.NewPoint(0), domain.NewRect1D(0, 1))
	s.Error(err)
}

func (s *regionSuite) TestInstanceCoversFields() {
	inst := NewPhysicalInstance(1, LogicalRegion{Tree: 1, IndexSpace: 1, FieldSpace: 1}, []FieldID{1, 2, 3})
	s.True(inst.CoversFields([]FieldID{1, 3}))
	s.False(inst.CoversFields([]FieldID{1, 4}))
}
