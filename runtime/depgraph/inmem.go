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

package depgraph

import (
	"sync"

	"github.com/gabrieltanase42/legion/runtime/event"
	"github.com/gabrieltanase42/legion/runtime/region"
)

type (
	fieldUsers struct {
		// lastWriter's effects event, nil if no writer yet
		lastWriter *event.Event
		// readers since the last writer
		readers []*event.Event
		// reducers since the last writer, all with the same operator
		reduceOp region.ReductionOpID
		reducers []*event.Event
	}

	fieldKey struct {
		region region.LogicalRegion
		field  region.FieldID
	}

	// InMemEngine orders operations per (region, field): readers depend
	// on the last writer; writers depend on the last writer and every
	// reader since; reductions with the same operator run concurrently
	// like readers but act as writers against everything else.
	InMemEngine struct {
		mu    sync.Mutex
		users map[fieldKey]*fieldUsers
	}
)

var _ Engine = (*InMemEngine)(nil)

func NewInMemEngine() *InMemEngine {
	return &InMemEngine{users: make(map[fieldKey]*fieldUsers)}
}

func (e *InMemEngine) Register(op Operation) *event.Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	var preconditions []*event.Event
	effects := op.EffectsEvent()

	for _, req := range op.Requirements() {
		if req.HandleType != region.SingularHandle {
			// projected requirements are analyzed at the launch level;
			// per-point regions are ordered by their enumerating slice
			continue
		}
		for _, f := range req.Fields {
			key := fieldKey{region: req.Region, field: f}
			u, ok := e.users[key]
			if !ok {
				u = &fieldUsers{}
				e.users[key] = u
			}
			preconditions = append(preconditions, e.registerUse(u, req, effects)...)
		}
	}

	return event.Merge(preconditions...)
}

func (e *InMemEngine) registerUse(
	u *fieldUsers,
	req region.Requirement,
	effects *event.Event,
) []*event.Event {
	switch {
	case req.Privilege == region.ReadOnly || req.Privilege == region.NoAccess:
		// readers see the last writer's effects and every outstanding
		// reduction's, but not each other's
		pre := make([]*event.Event, 0, len(u.reducers)+1)
		if u.lastWriter != nil {
			pre = append(pre, u.lastWriter)
		}
		pre = append(pre, u.reducers...)
		u.readers = append(u.readers, effects)
		return pre

	case req.Privilege == region.Reduce && u.reduceOp == req.Redop && len(u.reducers) > 0:
		// same-operator reductions fold concurrently, but a reader since
		// the epoch opened still conflicts
		pre := make([]*event.Event, 0, len(u.readers)+1)
		if u.lastWriter != nil {
			pre = append(pre, u.lastWriter)
		}
		pre = append(pre, u.readers...)
		u.reducers = append(u.reducers, effects)
		return pre

	default:
		// read-write, write-discard, or a reduction starting a new epoch:
		// wait for the writer and everything since, then become the writer
		pre := make([]*event.Event, 0, len(u.readers)+len(u.reducers)+1)
		if u.lastWriter != nil {
			pre = append(pre, u.lastWriter)
		}
		pre = append(pre, u.readers...)
		pre = append(pre, u.reducers...)

		u.lastWriter = effects
		u.readers = nil
		u.reducers = nil
		if req.Privilege == region.Reduce {
			u.reduceOp = req.Redop
			u.reducers = []*event.Event{effects}
			u.lastWriter = nil
		} else {
			u.reduceOp = 0
		}
		return pre
	}
}
