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
	"fmt"

	"github.com/gabrieltanase42/legion/runtime/domain"
)

type (
	// TreeID identifies a region tree.
	TreeID uint64

	// IndexSpaceID identifies an index space.
	IndexSpaceID uint64

	// IndexPartitionID identifies a partition of an index space.
	IndexPartitionID uint64

	// FieldSpaceID identifies a field space.
	FieldSpaceID uint64

	// FieldID identifies a field within a field space.
	FieldID uint32

	// LogicalRegion names one region: a (tree, index space, field space)
	// triple.
	LogicalRegion struct {
		Tree       TreeID
		IndexSpace IndexSpaceID
		FieldSpace FieldSpaceID
	}

	// LogicalPartition names a partition of a logical region.
	LogicalPartition struct {
		Tree       TreeID
		Partition  IndexPartitionID
		FieldSpace FieldSpaceID
	}
)

// Privilege is the access a task requests on a region.
type Privilege uint8

const (
	NoAccess Privilege = iota
	ReadOnly
	ReadWrite
	WriteDiscard
	Reduce
)

func (p Privilege) String() string {
	switch p {
	case NoAccess:
		return "no-access"
	case ReadOnly:
		return "read-only"
	case ReadWrite:
		return "read-write"
	case WriteDiscard:
		return "write-discard"
	case Reduce:
		return "reduce"
	default:
		return fmt.Sprintf("privilege(%d)", p)
	}
}

// IsWrite reports whether the privilege can mutate the region.
func (p Privilege) IsWrite() bool {
	return p == ReadWrite || p == WriteDiscard || p == Reduce
}

// Coherence is the sharing annotation on a requirement.
type Coherence uint8

const (
	Exclusive Coherence = iota
	Atomic
	Simultaneous
	Relaxed
)

func (c Coherence) String() string {
	switch c {
	case Exclusive:
		return "exclusive"
	case Atomic:
		return "atomic"
	case Simultaneous:
		return "simultaneous"
	case Relaxed:
		return "relaxed"
	default:
		return fmt.Sprintf("coherence(%d)", c)
	}
}

// HandleType says whether a requirement names a single region or projects
// a partition (or region) per launch point.
type HandleType uint8

const (
	SingularHandle HandleType = iota
	PartitionProjectionHandle
	RegionProjectionHandle
)

type (
	// ProjectionID selects a registered projection function.
	ProjectionID uint32

	// ProjectionFn maps a launch point to the point-specific subregion of
	// a projected requirement.
	ProjectionFn func(req Requirement, p domain.Point, launchDomain domain.Rect) LogicalRegion

	// ReductionOpID names a registered reduction operator. Zero means no
	// reduction.
	ReductionOpID uint32

	// Requirement is one region requirement of a task.
	Requirement struct {
		HandleType HandleType
		Region     LogicalRegion
		Partition  LogicalPartition
		Projection ProjectionID

		Privilege Privilege
		Coherence Coherence
		Redop     ReductionOpID

		// Parent is the region from which privileges derive.
		Parent LogicalRegion

		Fields []FieldID
	}
)

// Validate checks the structural constraints a requirement must satisfy
// before any analysis runs.
func (r *Requirement) Validate() error {
	if len(r.Fields) == 0 {
		return fmt.Errorf("requirement on region %v has no fields", r.Region)
	}
	seen := make(map[FieldID]struct{}, len(r.Fields))
	for _, f := range r.Fields {
		if _, ok := seen[f]; ok {
			return fmt.Errorf("requirement on region %v repeats field %d", r.Region, f)
		}
		seen[f] = struct{}{}
	}
	if r.Privilege == Reduce && r.Redop == 0 {
		return fmt.Errorf("reduce requirement on region %v has no reduction operator", r.Region)
	}
	if r.Privilege != Reduce && r.Redop != 0 {
		return fmt.Errorf("requirement on region %v names reduction operator %d without reduce privilege", r.Region, r.Redop)
	}
	if r.HandleType == SingularHandle && r.Region.Tree != r.Parent.Tree {
		return fmt.Errorf("region %v is not in the tree of its declared parent %v", r.Region, r.Parent)
	}
	return nil
}

// Interferes reports whether two requirements of the same task unsafely
// overlap: same region data, at least one writer, and no coherence
// annotation that tolerates the sharing.
func (r *Requirement) Interferes(other *Requirement) bool {
	if r.HandleType != SingularHandle || other.HandleType != SingularHandle {
		// projected requirements may become disjoint per point; decided
		// downstream once projection happens
		return false
	}
	if r.Region != other.Region {
		return false
	}
	if !fieldsOverlap(r.Fields, other.Fields) {
		return false
	}
	if !r.Privilege.IsWrite() && !other.Privilege.IsWrite() {
		return false
	}
	if r.Coherence == Simultaneous && other.Coherence == Simultaneous {
		return false
	}
	if r.Coherence == Relaxed || other.Coherence == Relaxed {
		return false
	}
	return true
}

func fieldsOverlap(a, b []FieldID) bool {
	set := make(map[FieldID]struct{}, len(a))
	for _, f := range a {
		set[f] = struct{}{}
	}
	for _, f := range b {
		if _, ok := set[f]; ok {
			return true
		}
	}
	return false
}
