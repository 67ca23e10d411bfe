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

package ledger

import (
	"fmt"
	"sync"

	"github.com/gabrieltanase42/legion/runtime/region"
)

type (
	// FieldKey names a field within a field space.
	FieldKey struct {
		FieldSpace region.FieldSpaceID
		Field      region.FieldID
	}

	// DuplicateError reports a created-resource key registered by more
	// than one ledger in a single propagation step.
	DuplicateError struct {
		Kind string
		Key  interface{}
	}

	// Ledger accumulates the resources a task operation created and
	// deleted. Ledgers merge strictly upward: point into slice, slice
	// into index launch, index launch into the submitting context. The
	// created maps record whether each resource is local to the creating
	// context; non-local created resources stop propagating at the
	// context merge because their owning context already tracks them.
	Ledger struct {
		mu sync.Mutex

		createdRegions map[region.LogicalRegion]bool
		deletedRegions map[region.LogicalRegion]struct{}

		createdFields map[FieldKey]bool
		deletedFields map[FieldKey]struct{}

		createdFieldSpaces map[region.FieldSpaceID]bool
		deletedFieldSpaces map[region.FieldSpaceID]struct{}

		createdIndexSpaces map[region.IndexSpaceID]bool
		deletedIndexSpaces map[region.IndexSpaceID]struct{}

		createdPartitions map[region.IndexPartitionID]bool
		deletedPartitions map[region.IndexPartitionID]struct{}
	}
)

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("ledger: %s %v registered as created twice in one propagation step", e.Kind, e.Key)
}

// New returns an empty ledger.
func New() *Ledger {
	l := &Ledger{}
	l.reset()
	return l
}

func (l *Ledger) reset() {
	l.createdRegions = make(map[region.LogicalRegion]bool)
	l.deletedRegions = make(map[region.LogicalRegion]struct{})
	l.createdFields = make(map[FieldKey]bool)
	l.deletedFields = make(map[FieldKey]struct{})
	l.createdFieldSpaces = make(map[region.FieldSpaceID]bool)
	l.deletedFieldSpaces = make(map[region.FieldSpaceID]struct{})
	l.createdIndexSpaces = make(map[region.IndexSpaceID]bool)
	l.deletedIndexSpaces = make(map[region.IndexSpaceID]struct{})
	l.createdPartitions = make(map[region.IndexPartitionID]bool)
	l.deletedPartitions = make(map[region.IndexPartitionID]struct{})
}

// Reset empties the ledger for reuse from a pool.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reset()
}

// Empty reports whether nothing has been recorded.
func (l *Ledger) Empty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.createdRegions) == 0 && len(l.deletedRegions) == 0 &&
		len(l.createdFields) == 0 && len(l.deletedFields) == 0 &&
		len(l.createdFieldSpaces) == 0 && len(l.deletedFieldSpaces) == 0 &&
		len(l.createdIndexSpaces) == 0 && len(l.deletedIndexSpaces) == 0 &&
		len(l.createdPartitions) == 0 && len(l.deletedPartitions) == 0
}

// RegisterCreatedRegion records a region created by this operation.
func (l *Ledger) RegisterCreatedRegion(r region.LogicalRegion, local bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.createdRegions[r]; ok {
		return &DuplicateError{Kind: "region", Key: r}
	}
	l.createdRegions[r] = local
	return nil
}

// RegisterDeletedRegion records a region deleted by this operation.
func (l *Ledger) RegisterDeletedRegion(r region.LogicalRegion) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deletedRegions[r] = struct{}{}
}

// RegisterCreatedField records a field created by this operation.
func (l *Ledger) RegisterCreatedField(k FieldKey, local bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.createdFields[k]; ok {
		return &DuplicateError{Kind: "field", Key: k}
	}
	l.createdFields[k] = local
	return nil
}

// RegisterDeletedField records a field deleted by this operation.
func (l *Ledger) RegisterDeletedField(k FieldKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deletedFields[k] = struct{}{}
}

// RegisterCreatedFieldSpace records a field space created by this operation.
func (l *Ledger) RegisterCreatedFieldSpace(fs region.FieldSpaceID, local bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.createdFieldSpaces[fs]; ok {
		return &DuplicateError{Kind: "field space", Key: fs}
	}
	l.createdFieldSpaces[fs] = local
	return nil
}

// RegisterDeletedFieldSpace records a field space deleted by this operation.
func (l *Ledger) RegisterDeletedFieldSpace(fs region.FieldSpaceID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deletedFieldSpaces[fs] = struct{}{}
}

// RegisterCreatedIndexSpace records an index space created by this operation.
func (l *Ledger) RegisterCreatedIndexSpace(is region.IndexSpaceID, local bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.createdIndexSpaces[is]; ok {
		return &DuplicateError{Kind: "index space", Key: is}
	}
	l.createdIndexSpaces[is] = local
	return nil
}

// RegisterDeletedIndexSpace records an index space deleted by this operation.
func (l *Ledger) RegisterDeletedIndexSpace(is region.IndexSpaceID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deletedIndexSpaces[is] = struct{}{}
}

// RegisterCreatedPartition records an index partition created by this
// operation.
func (l *Ledger) RegisterCreatedPartition(ip region.IndexPartitionID, local bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.createdPartitions[ip]; ok {
		return &DuplicateError{Kind: "index partition", Key: ip}
	}
	l.createdPartitions[ip] = local
	return nil
}

// RegisterDeletedPartition records an index partition deleted by this
// operation.
func (l *Ledger) RegisterDeletedPartition(ip region.IndexPartitionID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deletedPartitions[ip] = struct{}{}
}

// Merge folds a child ledger into this one. A created key arriving twice is
// a contract violation and aborts the merge with a DuplicateError; deleted
// sets union silently. Merging never loses an entry.
func (l *Ledger) Merge(child *Ledger) error {
	if child == l {
		panic("ledger: merging a ledger into itself")
	}

	child.mu.Lock()
	defer child.mu.Unlock()
	l.mu.Lock()
	defer l.mu.Unlock()

	for r := range child.createdRegions {
		if _, ok := l.createdRegions[r]; ok {
			return &DuplicateError{Kind: "region", Key: r}
		}
	}
	for k := range child.createdFields {
		if _, ok := l.createdFields[k]; ok {
			return &DuplicateError{Kind: "field", Key: k}
		}
	}
	for fs := range child.createdFieldSpaces {
		if _, ok := l.createdFieldSpaces[fs]; ok {
			return &DuplicateError{Kind: "field space", Key: fs}
		}
	}
	for is := range child.createdIndexSpaces {
		if _, ok := l.createdIndexSpaces[is]; ok {
			return &DuplicateError{Kind: "index space", Key: is}
		}
	}
	for ip := range child.createdPartitions {
		if _, ok := l.createdPartitions[ip]; ok {
			return &DuplicateError{Kind: "index partition", Key: ip}
		}
	}

	for r, local := range child.createdRegions {
		l.createdRegions[r] = local
	}
	for r := range child.deletedRegions {
		l.deletedRegions[r] = struct{}{}
	}
	for k, local := range child.createdFields {
		l.createdFields[k] = local
	}
	for k := range child.deletedFields {
		l.deletedFields[k] = struct{}{}
	}
	for fs, local := range child.createdFieldSpaces {
		l.createdFieldSpaces[fs] = local
	}
	for fs := range child.deletedFieldSpaces {
		l.deletedFieldSpaces[fs] = struct{}{}
	}
	for is, local := range child.createdIndexSpaces {
		l.createdIndexSpaces[is] = local
	}
	for is := range child.deletedIndexSpaces {
		l.deletedIndexSpaces[is] = struct{}{}
	}
	for ip, local := range child.createdPartitions {
		l.createdPartitions[ip] = local
	}
	for ip := range child.deletedPartitions {
		l.deletedPartitions[ip] = struct{}{}
	}
	return nil
}

// StripNonLocal drops created entries flagged non-local. Call before the
// final merge into the submitting context; those resources are scoped to
// the context that created them and must not propagate further.
func (l *Ledger) StripNonLocal() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for r, local := range l.createdRegions {
		if !local {
			delete(l.createdRegions, r)
		}
	}
	for k, local := range l.createdFields {
		if !local {
			delete(l.createdFields, k)
		}
	}
	for fs, local := range l.createdFieldSpaces {
		if !local {
			delete(l.createdFieldSpaces, fs)
		}
	}
	for is, local := range l.createdIndexSpaces {
		if !local {
			delete(l.createdIndexSpaces, is)
		}
	}
	for ip, local := range l.createdPartitions {
		if !local {
			delete(l.createdPartitions, ip)
		}
	}
}

// CreatedRegions returns a snapshot of created regions and their local
// flags.
func (l *Ledger) CreatedRegions() map[region.LogicalRegion]bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[region.LogicalRegion]bool, len(l.createdRegions))
	for r, local := range l.createdRegions {
		out[r] = local
	}
	return out
}

// DeletedRegions returns a snapshot of deleted regions.
func (l *Ledger) DeletedRegions() map[region.LogicalRegion]struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[region.LogicalRegion]struct{}, len(l.deletedRegions))
	for r := range l.deletedRegions {
		out[r] = struct{}{}
	}
	return out
}

// CreatedIndexSpaces returns a snapshot of created index spaces.
func (l *Ledger) CreatedIndexSpaces() map[region.IndexSpaceID]bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[region.IndexSpaceID]bool, len(l.createdIndexSpaces))
	for is, local := range l.createdIndexSpaces {
		out[is] = local
	}
	return out
}

// CreatedFields returns a snapshot of created fields.
func (l *Ledger) CreatedFields() map[FieldKey]bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[FieldKey]bool, len(l.createdFields))
	for k, local := range l.createdFields {
		out[k] = local
	}
	return out
}
