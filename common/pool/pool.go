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

package pool

import (
	"fmt"
	"sync"
)

type (
	// Handle identifies a live slot in a Pool. A handle becomes stale as
	// soon as its slot is released; stale handles are detected by the
	// generation check rather than by accident.
	Handle struct {
		index      int32
		generation uint32
	}

	slot[T any] struct {
		generation uint32
		live       bool
		value      T
	}

	// Pool is an arena of recycled objects addressed by generation-checked
	// handles. Objects are reinitialized by the caller between uses; the
	// pool itself only tracks liveness.
	Pool[T any] struct {
		mu    sync.Mutex
		slots []*slot[T]
		free  []int32
	}
)

// NilHandle is the zero Handle; it never resolves.
var NilHandle = Handle{index: -1}

func (h Handle) String() string {
	return fmt.Sprintf("%d@%d", h.index, h.generation)
}

// New returns an empty pool.
func New[T any]() *Pool[T] {
	return &Pool[T]{}
}

// Acquire returns a handle to a fresh or recycled slot and a pointer to its
// value. The value retains whatever state the previous occupant left; the
// caller must reset it.
func (p *Pool[T]) Acquire() (Handle, *T) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var idx int32
	if n := len(p.free); n > 0 {
		idx = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		idx = int32(len(p.slots))
		p.slots = append(p.slots, &slot[T]{})
	}

	s := p.slots[idx]
	s.generation++
	s.live = true
	return Handle{index: idx, generation: s.generation}, &s.value
}

// Get resolves a handle, returning false if the handle is stale or nil.
func (p *Pool[T]) Get(h Handle) (*T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if h.index < 0 || int(h.index) >= len(p.slots) {
		return nil, false
	}
	s := p.slots[h.index]
	if !s.live || s.generation != h.generation {
		return nil, false
	}
	return &s.value, true
}

// Release returns a slot to the free list. Releasing a stale handle panics,
// since it means two owners raced on the same slot.
func (p *Pool[T]) Release(h Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if h.index < 0 || int(h.index) >= len(p.slots) {
		panic(fmt.Sprintf("pool: release of invalid handle %v", h))
	}
	s := p.slots[h.index]
	if !s.live || s.generation != h.generation {
		panic(fmt.Sprintf("pool: double release of handle %v", h))
	}
	s.live = false
	p.free = append(p.free, h.index)
}

// Len returns the number of live slots.
func (p *Pool[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots) - len(p.free)
}
