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

package fraction

import (
	"fmt"
	"math/big"
	"sync"
)

var one = big.NewRat(1, 1)

type (
	// Tracker accumulates Σ 1/denominator over reported slices of an index
	// launch. The launch is fully accounted exactly when the sum is the
	// rational value 1, no matter how deeply slices were re-split: a split
	// of a slice with denominator D into k children gives each child
	// denominator D*k, so reciprocals always re-sum to the parent's share.
	Tracker struct {
		mu  sync.Mutex
		sum *big.Rat
	}
)

// NewTracker returns a tracker with sum zero.
func NewTracker() *Tracker {
	return &Tracker{sum: new(big.Rat)}
}

// Add accumulates 1/denominator and reports whether the sum has reached 1.
// Overshooting 1 means a slice was double counted.
func (t *Tracker) Add(denominator int64) bool {
	if denominator <= 0 {
		panic(fmt.Sprintf("fraction: non-positive denominator %d", denominator))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.sum.Add(t.sum, big.NewRat(1, denominator))
	switch t.sum.Cmp(one) {
	case 0:
		return true
	case 1:
		panic(fmt.Sprintf("fraction: sum %v exceeds 1 after adding 1/%d", t.sum, denominator))
	default:
		return false
	}
}

// Whole reports whether the sum has reached 1.
func (t *Tracker) Whole() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sum.Cmp(one) == 0
}

func (t *Tracker) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sum.RatString()
}

// ChildDenominator returns the denominator assigned to each child when a
// slice with the given denominator splits into childCount pieces. The
// product check guards against overflow under pathological re-splitting.
func ChildDenominator(parent int64, childCount int) int64 {
	if parent <= 0 || childCount <= 0 {
		panic(fmt.Sprintf("fraction: invalid split parent=%d children=%d", parent, childCount))
	}
	child := parent * int64(childCount)
	if child/int64(childCount) != parent {
		panic(fmt.Sprintf("fraction: denominator overflow splitting %d into %d", parent, childCount))
	}
	return child
}
