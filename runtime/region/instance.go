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
	"github.com/google/uuid"
)

type (
	// MemoryID identifies a memory in some address space.
	MemoryID uint64

	// PhysicalInstance is an opaque handle to concrete storage backing a
	// region's fields. The instance/memory manager owns its contents;
	// the lifecycle only records assignments.
	PhysicalInstance struct {
		ID     uuid.UUID
		Memory MemoryID
		Region LogicalRegion
		Fields []FieldID

		// Unacquired marks an instance the policy mapped without holding
		// an acquisition. Execution proceeds, but instance lifetime is
		// then the policy's problem, not the runtime's.
		Unacquired bool
	}

	// InstanceRef is the mapping decision for one requirement: either a
	// concrete instance or a virtual mapping deferred to the enclosing
	// context.
	InstanceRef struct {
		Virtual  bool
		Instance *PhysicalInstance
	}
)

// NewPhysicalInstance allocates an instance handle covering the given
// fields of a region.
func NewPhysicalInstance(memory MemoryID, r LogicalRegion, fields []FieldID) *PhysicalInstance {
	return &PhysicalInstance{
		ID:     uuid.New(),
		Memory: memory,
		Region: r,
		Fields: append([]FieldID(nil), fields...),
	}
}

// VirtualRef returns a virtual-mapped reference.
func VirtualRef() InstanceRef {
	return InstanceRef{Virtual: true}
}

// CoversFields reports whether the instance backs every requested field.
func (pi *PhysicalInstance) CoversFields(fields []FieldID) bool {
	have := make(map[FieldID]struct{}, len(pi.Fields))
	for _, f := range pi.Fields {
		have[f] = struct{}{}
	}
	for _, f := range fields {
		if _, ok := have[f]; !ok {
			return false
		}
	}
	return true
}
