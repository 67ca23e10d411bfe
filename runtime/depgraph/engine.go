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
	"github.com/google/uuid"

	"github.com/gabrieltanase42/legion/runtime/event"
	"github.com/gabrieltanase42/legion/runtime/region"
)

type (
	// Operation is what the dependence engine needs to know about a task
	// operation: its identity, its region requirements, and the event
	// that fires when its region effects are visible.
	Operation interface {
		UniqueID() uuid.UUID
		Requirements() []region.Requirement
		EffectsEvent() *event.Event
	}

	// Engine orders operations by their region requirements. Register is
	// called at the analysis stage boundary, in program order within a
	// context, and returns the precondition event the operation must wait
	// on before mapping. The lifecycle never reimplements this logic.
	Engine interface {
		Register(op Operation) *event.Event
	}
)
