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

package tag

// Error wraps an error for logging.
func Error(err error) Tag {
	return NewErrorTag(err)
}

// TaskID tags the unique identity of a task operation.
func TaskID(id string) Tag {
	return NewStringTag("task-id", id)
}

// ParentTaskID tags the identity of a task's owning operation.
func ParentTaskID(id string) Tag {
	return NewStringTag("parent-task-id", id)
}

// TaskState tags the lifecycle state of a task operation.
func TaskState(state string) Tag {
	return NewStringTag("task-state", state)
}

// VariantID tags the registered task variant being executed.
func VariantID(id int64) Tag {
	return NewInt64Tag("variant-id", id)
}

// AddressSpace tags the address space a message or operation refers to.
func AddressSpace(node uint32) Tag {
	return NewInt64Tag("address-space", int64(node))
}

// TargetAddressSpace tags the destination of a migration.
func TargetAddressSpace(node uint32) Tag {
	return NewInt64Tag("target-address-space", int64(node))
}

// Point tags a domain point.
func Point(p string) Tag {
	return NewStringTag("point", p)
}

// Domain tags an index-launch domain.
func Domain(d string) Tag {
	return NewStringTag("domain", d)
}

// Denominator tags a slice's fractional weight.
func Denominator(d int64) Tag {
	return NewInt64Tag("denominator", d)
}

// RequirementIndex tags a region-requirement index within a task.
func RequirementIndex(idx int) Tag {
	return NewIntTag("requirement-index", idx)
}

// SliceCount tags how many slices a decomposition produced.
func SliceCount(n int) Tag {
	return NewIntTag("slice-count", n)
}

// PointCount tags how many points a slice or launch covers.
func PointCount(n int64) Tag {
	return NewInt64Tag("point-count", n)
}

// MessageType tags a wire message type.
func MessageType(t string) Tag {
	return NewStringTag("message-type", t)
}

// StealTarget tags the node a steal request was sent to.
func StealTarget(node uint32) Tag {
	return NewInt64Tag("steal-target", int64(node))
}
