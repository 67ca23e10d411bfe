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

package event

import (
	"fmt"
	"sync"
)

type (
	// Barrier is a phase barrier: it fires once the expected number of
	// arrivals have been recorded. Tasks list barriers among their launch
	// preconditions and arrive on completion.
	Barrier struct {
		mu        sync.Mutex
		expected  int64
		arrived   int64
		triggered *Event
	}

	// Grant serializes access to a resource across unrelated launches.
	// Acquisition fires the granted event; Release lets the next holder
	// acquire.
	Grant struct {
		mu      sync.Mutex
		held    bool
		granted *Event
		queue   []*Event
	}
)

// NewBarrier returns a barrier expecting the given number of arrivals.
func NewBarrier(expected int64) *Barrier {
	if expected <= 0 {
		panic(fmt.Sprintf("event: barrier arrival count must be positive, got %d", expected))
	}
	return &Barrier{
		expected:  expected,
		triggered: New(),
	}
}

// Arrive records one arrival, firing the barrier on the last one.
func (b *Barrier) Arrive() {
	b.mu.Lock()
	b.arrived++
	if b.arrived > b.expected {
		b.mu.Unlock()
		panic(fmt.Sprintf("event: barrier arrivals %d exceed expected %d", b.arrived, b.expected))
	}
	last := b.arrived == b.expected
	b.mu.Unlock()

	if last {
		b.triggered.Trigger()
	}
}

// WaitEvent returns the event that fires when all arrivals are in.
func (b *Barrier) WaitEvent() *Event {
	return b.triggered
}

// NewGrant returns an unheld grant.
func NewGrant() *Grant {
	return &Grant{}
}

// Acquire returns an event that fires when the caller holds the grant.
func (g *Grant) Acquire() *Event {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.held {
		g.held = true
		return Triggered()
	}
	e := New()
	g.queue = append(g.queue, e)
	return e
}

// Release passes the grant to the next waiter, if any.
func (g *Grant) Release() {
	g.mu.Lock()
	if !g.held {
		g.mu.Unlock()
		panic("event: release of unheld grant")
	}
	var next *Event
	if len(g.queue) > 0 {
		next = g.queue[0]
		g.queue = g.queue[1:]
	} else {
		g.held = false
	}
	g.mu.Unlock()

	if next != nil {
		next.Trigger()
	}
}
