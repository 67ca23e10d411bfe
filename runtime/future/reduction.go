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

package future

import (
	"fmt"
	"sync"

	"github.com/gabrieltanase42/legion/runtime/domain"
	"github.com/gabrieltanase42/legion/runtime/region"
)

type (
	// ReductionOp folds point results into a single buffer. Fold must be
	// associative; it need not be commutative, which is why the
	// deterministic discipline exists. Operators that (de)serialize state
	// around the fold rely on the reducer's lock for exclusion.
	ReductionOp interface {
		ID() region.ReductionOpID
		Identity() []byte
		Fold(into []byte, value []byte) []byte
	}

	// Reducer folds per-point results under one of two disciplines.
	// Eager folds each result as it arrives, under a lock. Deterministic
	// buffers raw results keyed by point and folds them in domain-point
	// order at finalization, so the final buffer is independent of
	// arrival order.
	Reducer struct {
		op            ReductionOp
		deterministic bool

		mu        sync.Mutex
		finalized bool
		buffer    []byte
		pending   map[domain.Point][]byte
	}
)

var (
	redopMu  sync.RWMutex
	redopReg = make(map[region.ReductionOpID]ReductionOp)
)

// RegisterReductionOp installs an operator. Re-registering an id panics.
func RegisterReductionOp(op ReductionOp) {
	if op.ID() == 0 {
		panic("future: reduction op id 0 is reserved")
	}
	redopMu.Lock()
	defer redopMu.Unlock()
	if _, ok := redopReg[op.ID()]; ok {
		panic(fmt.Sprintf("future: reduction op %d registered twice", op.ID()))
	}
	redopReg[op.ID()] = op
}

// LookupReductionOp resolves a registered operator.
func LookupReductionOp(id region.ReductionOpID) (ReductionOp, bool) {
	redopMu.RLock()
	defer redopMu.RUnlock()
	op, ok := redopReg[id]
	return op, ok
}

// NewReducer returns a reducer for the given operator and discipline.
func NewReducer(op ReductionOp, deterministic bool) *Reducer {
	r := &Reducer{
		op:            op,
		deterministic: deterministic,
	}
	if deterministic {
		r.pending = make(map[domain.Point][]byte)
	} else {
		r.buffer = op.Identity()
	}
	return r
}

// Contribute folds or buffers one point's result. A fold either consumes a
// value it owns or copies a borrowed one before folding, never both; pass
// owned=false for values whose backing array the caller will reuse.
func (r *Reducer) Contribute(p domain.Point, value []byte, owned bool) {
	if !owned {
		value = append([]byte(nil), value...)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		panic(fmt.Sprintf("reducer: contribution from %v after finalization", p))
	}

	if r.deterministic {
		if _, ok := r.pending[p]; ok {
			panic(fmt.Sprintf("reducer: point %v contributed twice", p))
		}
		r.pending[p] = value
		return
	}
	r.buffer = r.op.Fold(r.buffer, value)
}

// Finalize performs any buffered folds in domain-point order and returns
// the final buffer. It is called once, when the launch is otherwise
// complete.
func (r *Reducer) Finalize() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		panic("reducer: finalized twice")
	}
	r.finalized = true

	if !r.deterministic {
		return r.buffer
	}

	points := make([]domain.Point, 0, len(r.pending))
	for p := range r.pending {
		points = append(points, p)
	}
	domain.SortPoints(points)

	buffer := r.op.Identity()
	for _, p := range points {
		buffer = r.op.Fold(buffer, r.pending[p])
	}
	r.pending = nil
	return buffer
}
