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

package task

import (
	"fmt"
	"sync"

	"github.com/gabrieltanase42/legion/runtime/domain"
	"github.com/gabrieltanase42/legion/runtime/future"
	"github.com/gabrieltanase42/legion/runtime/ledger"
	"github.com/gabrieltanase42/legion/runtime/region"
	"github.com/gabrieltanase42/legion/runtime/wire"
)

type (
	// VariantID names a registered task function. Variant ids must agree
	// across address spaces; registration happens at process start.
	VariantID int64

	// ExecContext is what a task function sees when it runs: the point it
	// executes, its raw argument bytes, resolved input futures, the
	// instance assignment per region requirement, and the operation's own
	// resource ledger for recording created or deleted resources.
	ExecContext struct {
		Node      wire.NodeID
		Point     domain.Point
		Args      []byte
		Futures   []*future.Future
		Instances []region.InstanceRef
		Ledger    *ledger.Ledger
	}

	// VariantFn is the body of a task variant. The returned bytes become
	// the point's future value or reduction contribution.
	VariantFn func(ec *ExecContext) ([]byte, error)
)

var (
	variantMu  sync.RWMutex
	variantReg = make(map[VariantID]VariantFn)
)

// RegisterVariant installs a task function. Re-registering an id panics.
func RegisterVariant(id VariantID, fn VariantFn) {
	if fn == nil {
		panic(fmt.Sprintf("task: variant %d registered with nil function", id))
	}
	variantMu.Lock()
	defer variantMu.Unlock()
	if _, ok := variantReg[id]; ok {
		panic(fmt.Sprintf("task: variant %d registered twice", id))
	}
	variantReg[id] = fn
}

// LookupVariant resolves a registered task function.
func LookupVariant(id VariantID) (VariantFn, bool) {
	variantMu.RLock()
	defer variantMu.RUnlock()
	fn, ok := variantReg[id]
	return fn, ok
}
